package common

import "errors"

var (
	// ErrNotFound covers both a missing metadata row and a missing backend object.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a (name, visibility) pair is already taken.
	ErrConflict = errors.New("conflict")

	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrEncodingFailed      = errors.New("encoding failed")
	ErrPartialProvisioning = errors.New("partial provisioning")

	// ErrInvalidName is returned for empty names and names that parse as a UUID.
	ErrInvalidName = errors.New("invalid name")
)

// ErrInvalidPayload is returned for request content that cannot be decoded.
var ErrInvalidPayload = errors.New("invalid payload")
