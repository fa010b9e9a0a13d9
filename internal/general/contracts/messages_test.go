package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bus-tracker/internal/tracker/domain"
)

func TestDecode(t *testing.T) {
	t.Run("register", func(t *testing.T) {
		msg, err := Decode([]byte(`{"type":"register","userType":"driver","userId":"u1","identity":"bus1","token":"tok"}`))
		require.NoError(t, err)

		reg, ok := msg.(Register)
		require.True(t, ok)
		assert.Equal(t, "driver", reg.UserType)
		assert.Equal(t, "u1", reg.UserID)
		assert.Equal(t, "bus1", reg.Identity)
		assert.Equal(t, "tok", reg.Token)
	})

	t.Run("location_update", func(t *testing.T) {
		msg, err := Decode([]byte(`{"type":"location_update","location":{"latitude":15.36,"longitude":75.09},"speed":42.5,"heading":180,"timestamp":1710158400000}`))
		require.NoError(t, err)

		upd, ok := msg.(LocationUpdate)
		require.True(t, ok)
		assert.Equal(t, 15.36, upd.Location.Latitude)
		assert.Equal(t, 75.09, upd.Location.Longitude)
		assert.Equal(t, 42.5, upd.SpeedKmh)
		assert.Equal(t, 180.0, upd.Heading)
		assert.Equal(t, int64(1710158400000), upd.Timestamp)
	})

	t.Run("request_predictions", func(t *testing.T) {
		msg, err := Decode([]byte(`{"type":"request_predictions"}`))
		require.NoError(t, err)
		_, ok := msg.(RequestPredictions)
		assert.True(t, ok)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := Decode([]byte(`{"type":"teleport"}`))
		assert.ErrorIs(t, err, domain.ErrUnknownMessageType)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := Decode([]byte(`{"userType":"driver"}`))
		assert.ErrorIs(t, err, domain.ErrMalformedPayload)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := Decode([]byte(`{not json`))
		assert.ErrorIs(t, err, domain.ErrMalformedPayload)
	})

	t.Run("server-to-client type is not accepted inbound", func(t *testing.T) {
		_, err := Decode([]byte(`{"type":"predictions"}`))
		assert.ErrorIs(t, err, domain.ErrUnknownMessageType)
	})
}

func TestNewBusLocation(t *testing.T) {
	ts := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)
	loc := NewBusLocation(domain.VehicleLocationSample{
		VehicleID:      "bus1",
		Latitude:       15.36,
		Longitude:      75.09,
		SpeedKmh:       42.5,
		HeadingDegrees: 90,
		Timestamp:      ts,
	})

	assert.Equal(t, TypeLocationUpdate, loc.Type)
	assert.Equal(t, "bus1", loc.BusID)
	assert.Equal(t, ts.UnixMilli(), loc.Timestamp)
	assert.Equal(t, 90.0, loc.Heading)
}
