package codec

import "errors"

// Codec errors
var (
	ErrMalformed   = errors.New("malformed payload")
	ErrMissingId   = errors.New("missing id")
	ErrInvalidJSON = errors.New("invalid json")
)
