package hostfunc

import "errors"

var (
	ErrMalformedRequest = errors.New("malformed http request")
	ErrTimeout          = errors.New("http request timed out")
	ErrHostNotAllowed   = errors.New("host not allowed")
	ErrInputOutOfRange  = errors.New("input offset out of range")
)
