package contracts

import (
	"encoding/json"
	"fmt"

	"bus-tracker/internal/tracker/domain"
)

// Message types exchanged over the websocket transport. The set is closed:
// decoding anything outside it yields ErrUnknownMessageType.
const (
	TypeRegister              = "register"
	TypeRegistrationConfirmed = "registration_confirmed"
	TypeLocationUpdate        = "location_update"
	TypeLocationUpdateAck     = "location_update_ack"
	TypeRequestPredictions    = "request_predictions"
	TypePredictions           = "predictions"
	TypeInitialState          = "initial_state"
	TypeDriverConnected       = "driver_connected"
	TypeDriverDisconnected    = "driver_disconnected"
	TypeError                 = "error"
)

// GeoPoint is a latitude/longitude pair as carried on the wire.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ----- client -> server -----

// Register declares the session's role and identity.
// Token is optional; it is required when the server runs with a JWT secret.
type Register struct {
	Type     string `json:"type"`
	UserType string `json:"userType"`
	UserID   string `json:"userId"`
	Identity string `json:"identity"`
	Token    string `json:"token,omitempty"`
}

// LocationUpdate carries one position sample from a driver session.
// The vehicle identity comes from the session's registration, never from the
// payload. Timestamp is unix milliseconds; zero means "server receive time".
type LocationUpdate struct {
	Type      string   `json:"type"`
	Location  GeoPoint `json:"location"`
	SpeedKmh  float64  `json:"speed"`
	Heading   float64  `json:"heading,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

// RequestPredictions asks for arrival predictions for all known vehicles.
type RequestPredictions struct {
	Type string `json:"type"`
}

// ----- server -> client -----

// RegistrationConfirmed acknowledges a Register message.
type RegistrationConfirmed struct {
	Type     string `json:"type"`
	UserType string `json:"userType"`
	Identity string `json:"identity"`
}

// BusLocation is the fan-out form of an accepted location update.
type BusLocation struct {
	Type      string   `json:"type"`
	BusID     string   `json:"busId"`
	Location  GeoPoint `json:"location"`
	SpeedKmh  float64  `json:"speed"`
	Heading   float64  `json:"heading,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// LocationUpdateAck confirms receipt of a driver's location update.
// Accepted is false when the sample was dropped as stale; drivers must not
// see a hard failure for ordinary network jitter.
type LocationUpdateAck struct {
	Type     string `json:"type"`
	Accepted bool   `json:"accepted"`
}

// Predictions is the response to RequestPredictions.
type Predictions struct {
	Type        string                    `json:"type"`
	Predictions []domain.PredictionResult `json:"predictions"`
}

// InitialState gives a newly registered rider the current location of every
// known vehicle.
type InitialState struct {
	Type      string        `json:"type"`
	Locations []BusLocation `json:"locations"`
}

// DriverEvent announces a driver (un)registration to riders.
type DriverEvent struct {
	Type  string `json:"type"` // driver_connected | driver_disconnected
	BusID string `json:"busId"`
}

// ErrorMessage reports a non-fatal request failure back to the sender.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(msg string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: msg}
}

// NewBusLocation converts a stored sample into its fan-out form.
func NewBusLocation(s domain.VehicleLocationSample) BusLocation {
	return BusLocation{
		Type:      TypeLocationUpdate,
		BusID:     s.VehicleID,
		Location:  GeoPoint{Latitude: s.Latitude, Longitude: s.Longitude},
		SpeedKmh:  s.SpeedKmh,
		Heading:   s.HeadingDegrees,
		Timestamp: s.Timestamp.UnixMilli(),
	}
}

// Decode parses one inbound client frame into its typed variant.
// It returns domain.ErrMalformedPayload for structurally invalid JSON and
// domain.ErrUnknownMessageType for types outside the client set.
func Decode(raw []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}

	switch envelope.Type {
	case TypeRegister:
		var m Register
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
		}
		return m, nil
	case TypeLocationUpdate:
		var m LocationUpdate
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
		}
		return m, nil
	case TypeRequestPredictions:
		var m RequestPredictions
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
		}
		return m, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", domain.ErrMalformedPayload)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMessageType, envelope.Type)
	}
}
