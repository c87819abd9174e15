package scoring

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks submissions with missing or out-of-range values.
var ErrInvalidInput = errors.New("invalid input")

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
