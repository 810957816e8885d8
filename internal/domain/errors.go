package domain

import "errors"

// Error taxonomy shared by the coordinator and the transports.
// Callers wrap these with fmt.Errorf("%w: ...") and match with errors.Is.
var (
	// ErrAuth is fatal to a connection: bad credential or event outside the active state.
	ErrAuth = errors.New("authentication failed")
	// ErrProtocol marks a frame that does not fit the protocol (unknown type, bad JSON).
	ErrProtocol = errors.New("protocol violation")
	// ErrValidation marks a well-formed request with invalid content.
	ErrValidation = errors.New("validation failed")
	// ErrGateway marks a persistence failure.
	ErrGateway = errors.New("storage failure")
	// ErrNotFound is returned when an addressed record does not exist.
	ErrNotFound = errors.New("not found")
)
