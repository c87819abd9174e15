package calendar

import "errors"

// ErrInvalidDay is returned for strings that are not YYYY-MM-DD dates.
var ErrInvalidDay = errors.New("invalid day")
