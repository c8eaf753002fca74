package coordinator

import "errors"

// Sentinel errors for the coordinator. Check with errors.Is().
var (
	// ErrMQTTRequired indicates the coordinator was constructed without a
	// bus client.
	ErrMQTTRequired = errors.New("coordinator: mqtt client required")

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("coordinator: already started")
)
