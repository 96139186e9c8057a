package dining

import "errors"

var (
	// ErrInvalidArgument is returned synchronously for programmer errors such
	// as a nil identity or an empty action.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is wrapped by object stores when the requested id does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrMalformedEnvelope is wrapped when an envelope payload lacks a required field.
	ErrMalformedEnvelope = errors.New("malformed envelope")
)
