package ninep

import "errors"

var (
	// ErrMessageTooLarge indicates that encoding a message would exceed the
	// destination buffer (equivalently, the negotiated msize).
	ErrMessageTooLarge = errors.New("ninep: message too large for buffer")

	// ErrShortBuffer indicates that a decode was attempted on fewer bytes
	// than the message type's fixed body requires, or, for a type whose body
	// has an exact size, on a body of any other length.
	ErrShortBuffer = errors.New("ninep: buffer too short for message type")

	// ErrUnknownType indicates that the type byte in a frame did not match
	// any known message type.
	ErrUnknownType = errors.New("ninep: unknown message type")

	// ErrTooManyNames indicates a Twalk with more path elements than the
	// wire format's u16 nwname field can carry (more than 0xFFFF). No lower
	// cap is applied; a long walk is bounded only by the message size.
	ErrTooManyNames = errors.New("ninep: too many walk names")
)
