package engine

import "errors"

// Sentinel errors for engine client failures. Callers use these to decide
// between "retry later" (connection, timeout, unavailable) and "give up"
// (rejected).
var (
	// ErrConnection means the engine could not be reached or kept failing
	// with retryable server errors.
	ErrConnection = errors.New("engine connection error")
	// ErrTimeout means the overall call deadline elapsed.
	ErrTimeout = errors.New("engine call timeout")
	// ErrRejected means the engine answered with a permanent 4xx rejection.
	ErrRejected = errors.New("engine rejected request")
	// ErrUnavailable means the circuit breaker is open and no network
	// attempt was made.
	ErrUnavailable = errors.New("engine unavailable (circuit open)")
)
