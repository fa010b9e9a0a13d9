package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role is the declared role of a transport session. A session starts
// unregistered and may transition to driver or rider exactly once.
type Role string

const (
	RoleUnregistered Role = ""
	RoleDriver       Role = "driver"
	RoleRider        Role = "rider"
)

// ParseRole validates a wire-level role string.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleDriver:
		return RoleDriver, nil
	case RoleRider:
		return RoleRider, nil
	default:
		return RoleUnregistered, fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Valid reports whether the role is one of the two registrable roles.
func (r Role) Valid() bool {
	return r == RoleDriver || r == RoleRider
}

func (r Role) String() string {
	if r == RoleUnregistered {
		return "unregistered"
	}
	return string(r)
}

// VehicleLocationSample is the latest known state of one vehicle.
type VehicleLocationSample struct {
	VehicleID      string
	Latitude       float64
	Longitude      float64
	SpeedKmh       float64
	HeadingDegrees float64
	Timestamp      time.Time
}

// Validate checks the sample's invariants. Negative speed is not an error;
// the prediction engine clamps it to zero.
func (s VehicleLocationSample) Validate() error {
	if strings.TrimSpace(s.VehicleID) == "" {
		return ErrEmptyVehicleID
	}
	if s.Latitude < -90 || s.Latitude > 90 {
		return ErrInvalidLatitude
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		return ErrInvalidLongitude
	}
	return nil
}

// Destination is the fixed arrival target. It is supplied by configuration
// and read-only to the tracking core.
type Destination struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// PredictionResult is derived on demand and never persisted.
type PredictionResult struct {
	VehicleID        string    `json:"vehicleId"`
	DistanceMeters   float64   `json:"distanceMeters"`
	CurrentSpeedKmh  float64   `json:"currentSpeedKmh"`
	AdjustedSpeedKmh float64   `json:"adjustedSpeedKmh"`
	EtaTimestamp     time.Time `json:"etaTimestamp"`
	EtaDurationText  string    `json:"etaDurationText"`
	DistanceText     string    `json:"distanceText"`
}
