package booking

import (
	"errors"
	"fmt"
)

// ErrPersistence marks failures of the backing store. The booking is rolled
// back as a whole when it is returned.
var ErrPersistence = errors.New("meeting persistence failed")

// ConflictError reports the first existing meeting that blocks a booking.
type ConflictError struct {
	UserID      int64
	MeetingName string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("User %d has a conflicting meeting: %s", e.UserID, e.MeetingName)
}

// IsConflict reports whether err carries a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
