package messages

import (
	"errors"
	"fmt"
)

// ErrMalformed is wrapped by every structural validation failure.
var ErrMalformed = errors.New("malformed message")

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// IsMalformed reports whether err is a structural validation failure.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}
