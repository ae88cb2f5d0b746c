package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotConflict        = errors.New("requested range overlaps an existing booking")
	ErrNoAvailability      = errors.New("no free slot left in the doctor's working day")
	ErrBusy                = errors.New("doctor calendar is busy, retry shortly")
)

// ValidationError reports input rejected before any write.
type ValidationError struct {
	Field string
	msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.msg
	}
	return e.Field + ": " + e.msg
}

func validationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
