package session

import "errors"

// Common errors
var (
	ErrNotInitialized      = errors.New("radio link not initialized")
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotJoined           = errors.New("not joined to network")
	ErrMaxAttemptsExceeded = errors.New("join failed after maximum attempts")
	ErrAllAttemptsFailed   = errors.New("all transmission attempts failed")
	ErrClassNotSupported   = errors.New("device class not supported")
)
