package supervisor

import "errors"

// Sentinel errors for the supervisor. Check with errors.Is().
var (
	// ErrMQTTRequired indicates the engine was constructed without a bus
	// client.
	ErrMQTTRequired = errors.New("supervisor: mqtt client required")

	// ErrReasonerUnavailable indicates the reasoner backend could not be
	// reached or returned a non-success response.
	ErrReasonerUnavailable = errors.New("supervisor: reasoner unavailable")
)
