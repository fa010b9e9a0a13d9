package domain

import "errors"

var (
	ErrInvalidRole        = errors.New("invalid role")
	ErrRoleConflict       = errors.New("session already registered with a different role")
	ErrUnauthorized       = errors.New("location updates require a matching driver session")
	ErrStaleUpdate        = errors.New("location timestamp does not advance the stored sample")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMalformedPayload   = errors.New("malformed payload")
	ErrTransportFailure   = errors.New("transport failure")
	ErrSlowConsumer       = errors.New("outbound queue full")

	ErrEmptyVehicleID   = errors.New("vehicle id cannot be empty")
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
)
