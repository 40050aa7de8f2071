package rscp

import "errors"

// Domain errors for the RSCP protocol package.
var (
	// ErrConnectionFailed is returned when the TCP connection to the
	// device cannot be established.
	ErrConnectionFailed = errors.New("rscp: connection failed")

	// ErrAuthFailed is returned when the device rejects the configured
	// credentials or grants access level zero.
	ErrAuthFailed = errors.New("rscp: authentication failed")

	// ErrNotConnected is returned when an operation requires a
	// connection but the client is closed or broken.
	ErrNotConnected = errors.New("rscp: not connected")

	// ErrQueryFailed is returned when a request/response round trip
	// fails at the transport level.
	ErrQueryFailed = errors.New("rscp: query failed")

	// ErrEmptyResponse is returned when the device answers with a
	// frame that carries no items.
	ErrEmptyResponse = errors.New("rscp: response has no data")

	// ErrInvalidFrame is returned when a received frame is malformed:
	// bad magic, unsupported version, CRC mismatch or truncated items.
	ErrInvalidFrame = errors.New("rscp: invalid frame")

	// ErrTagNotFound is returned when a tag is absent from an item list.
	ErrTagNotFound = errors.New("rscp: tag not found")

	// ErrMissingValue is returned when an item is present but carries
	// no value.
	ErrMissingValue = errors.New("rscp: missing value")

	// ErrTypeMismatch is returned when a value cannot be coerced to
	// the requested type.
	ErrTypeMismatch = errors.New("rscp: type mismatch")
)
