package types

import "errors"

// Value-related errors
var (
	// ErrTypeMismatch is returned when two values of different types are
	// compared, or a literal does not match its column's declared type
	ErrTypeMismatch = errors.New("value type mismatch")

	// ErrUnknownType is returned when a type name or id does not resolve
	// to a known column type
	ErrUnknownType = errors.New("unknown value type")

	// ErrMalformedValue is returned when a stored text bound cannot be
	// decoded as its declared type
	ErrMalformedValue = errors.New("malformed value text")
)
