package camera

import "errors"

// Domain-specific errors for camera operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnavailable is returned when the camera cannot be reached or
	// answers with an unexpected status.
	ErrUnavailable = errors.New("camera: unavailable")

	// ErrUnauthorized is returned when the camera rejects the configured
	// credentials.
	ErrUnauthorized = errors.New("camera: unauthorized")
)
