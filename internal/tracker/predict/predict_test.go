package predict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bus-tracker/internal/tracker/domain"
)

func flatFactor(t time.Time) float64 { return 1.0 }

func TestHaversine(t *testing.T) {
	t.Run("zero for identical points", func(t *testing.T) {
		assert.Zero(t, Haversine(15.3525, 75.0820, 15.3525, 75.0820))
	})

	t.Run("symmetric", func(t *testing.T) {
		ab := Haversine(15.40, 75.10, 15.3525, 75.0820)
		ba := Haversine(15.3525, 75.0820, 15.40, 75.10)
		assert.InDelta(t, ab, ba, 1e-9)
	})

	t.Run("one degree of longitude at the equator", func(t *testing.T) {
		d := Haversine(0, 0, 0, 1)
		assert.InDelta(t, 111190.0, d, 500)
	})
}

func TestTrafficConfig_Factor(t *testing.T) {
	cfg := DefaultTrafficConfig()
	tests := []struct {
		hour     int
		expected float64
	}{
		{hour: 8, expected: 0.7},
		{hour: 9, expected: 0.7},
		{hour: 17, expected: 0.6},
		{hour: 19, expected: 0.6},
		{hour: 12, expected: 0.9},
		{hour: 23, expected: 0.9},
		{hour: 3, expected: 0.9},
	}

	for _, test := range tests {
		at := time.Date(2024, 3, 11, test.hour, 30, 0, 0, time.UTC)
		assert.Equal(t, test.expected, cfg.Factor(at), "hour %d", test.hour)
	}
}

func TestEstimateArrival(t *testing.T) {
	now := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)
	dest := domain.Destination{Latitude: 15.3525, Longitude: 75.0820}

	sample := func(lat, lon, speed float64) domain.VehicleLocationSample {
		return domain.VehicleLocationSample{
			VehicleID: "bus1",
			Latitude:  lat, Longitude: lon,
			SpeedKmh:  speed,
			Timestamp: now,
		}
	}

	t.Run("zero distance yields eta now", func(t *testing.T) {
		res := EstimateArrival(sample(15.3525, 75.0820, 40), dest, now, flatFactor, 30)
		assert.Zero(t, res.DistanceMeters)
		assert.True(t, res.EtaTimestamp.Equal(now))
		assert.Equal(t, "0 minutes", res.EtaDurationText)
	})

	t.Run("moving vehicle keeps its reported speed", func(t *testing.T) {
		res := EstimateArrival(sample(15.40, 75.10, 42), dest, now, flatFactor, 30)
		assert.Equal(t, 42.0, res.CurrentSpeedKmh)
		assert.Equal(t, 42.0, res.AdjustedSpeedKmh)
		assert.Greater(t, res.DistanceMeters, 0.0)
		assert.True(t, res.EtaTimestamp.After(now))
	})

	t.Run("near-zero speed falls back to cruise default", func(t *testing.T) {
		res := EstimateArrival(sample(15.40, 75.10, 3), dest, now, flatFactor, 30)
		assert.Equal(t, 3.0, res.CurrentSpeedKmh)
		assert.Equal(t, 30.0, res.AdjustedSpeedKmh)
	})

	t.Run("negative speed treated as zero", func(t *testing.T) {
		res := EstimateArrival(sample(15.40, 75.10, -12), dest, now, flatFactor, 30)
		assert.Zero(t, res.CurrentSpeedKmh)
		assert.Equal(t, 30.0, res.AdjustedSpeedKmh)
	})

	t.Run("traffic factor scales effective speed", func(t *testing.T) {
		half := func(time.Time) float64 { return 0.5 }
		res := EstimateArrival(sample(15.40, 75.10, 40), dest, now, half, 30)
		assert.Equal(t, 20.0, res.AdjustedSpeedKmh)
	})

	t.Run("eta non-decreasing in distance", func(t *testing.T) {
		near := EstimateArrival(sample(15.36, 75.085, 40), dest, now, flatFactor, 30)
		far := EstimateArrival(sample(15.50, 75.20, 40), dest, now, flatFactor, 30)
		require.Greater(t, far.DistanceMeters, near.DistanceMeters)
		assert.False(t, far.EtaTimestamp.Before(near.EtaTimestamp))
	})

	t.Run("eta non-increasing in speed", func(t *testing.T) {
		slow := EstimateArrival(sample(15.50, 75.20, 20), dest, now, flatFactor, 30)
		fast := EstimateArrival(sample(15.50, 75.20, 60), dest, now, flatFactor, 30)
		assert.False(t, fast.EtaTimestamp.After(slow.EtaTimestamp))
	})
}

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		meters   float64
		expected string
	}{
		{meters: 0, expected: "0 m"},
		{meters: 850, expected: "850 m"},
		{meters: 999.4, expected: "999 m"},
		{meters: 1000, expected: "1.0 km"},
		{meters: 1234, expected: "1.2 km"},
		{meters: 15640, expected: "15.6 km"},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, FormatDistance(test.meters))
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{d: 0, expected: "0 minutes"},
		{d: 90 * time.Second, expected: "2 minutes"},
		{d: 30 * time.Minute, expected: "30 minutes"},
		{d: 60 * time.Minute, expected: "60 minutes"},
		{d: 61 * time.Minute, expected: "1 hours 1 minutes"},
		{d: 125 * time.Minute, expected: "2 hours 5 minutes"},
		{d: -5 * time.Minute, expected: "0 minutes"},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, FormatDuration(test.d))
	}
}

func TestEngine_Estimate(t *testing.T) {
	now := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)
	dest := domain.Destination{Latitude: 15.3525, Longitude: 75.0820}

	t.Run("history hint replaces cruise default for a stopped vehicle", func(t *testing.T) {
		engine := NewEngine(dest, flatFactor, 30)
		engine.Hint = func(string) (float64, bool) { return 44, true }

		res := engine.Estimate(domain.VehicleLocationSample{
			VehicleID: "bus1", Latitude: 15.40, Longitude: 75.10, SpeedKmh: 0, Timestamp: now,
		}, now)
		assert.Equal(t, 44.0, res.AdjustedSpeedKmh)
	})

	t.Run("hint never overrides a live moving speed", func(t *testing.T) {
		engine := NewEngine(dest, flatFactor, 30)
		engine.Hint = func(string) (float64, bool) { return 44, true }

		res := engine.Estimate(domain.VehicleLocationSample{
			VehicleID: "bus1", Latitude: 15.40, Longitude: 75.10, SpeedKmh: 50, Timestamp: now,
		}, now)
		assert.Equal(t, 50.0, res.AdjustedSpeedKmh)
	})
}
