package instance

import (
	"errors"
	"fmt"
)

// ErrInstanceNotFound is returned when no session entry exists for an id.
var ErrInstanceNotFound = errors.New("instance not found")

// ErrNotConnected is returned when a send is attempted on an instance whose
// session is not usable yet.
var ErrNotConnected = errors.New("instance not connected")

// ValidationError reports a missing or invalid create field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %q is required", e.Field)
}
