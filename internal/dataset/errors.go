package dataset

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks data that could not be produced: the file failed to load
// or the table lacks the columns an operation needs. The accompanying value is
// always empty rather than nil.
var ErrUnavailable = errors.New("data unavailable")

// UnavailableError carries the reason data is unavailable.
type UnavailableError struct {
	Path   string
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if e.Path != "" {
		return fmt.Sprintf("%s unavailable: %s", e.Path, msg)
	}
	return "unavailable: " + msg
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUnavailable) match any UnavailableError.
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }
