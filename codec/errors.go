package codec

import "errors"

var (
	ErrShortBuffer  = errors.New("codec: buffer too short for field")
	ErrFieldTooLong = errors.New("codec: field exceeds maximum length")
	ErrBadCapCount  = errors.New("codec: capability list length is not a multiple of 3")
)
