package apperr

import "fmt"

// NotFoundError signals that a request matched no data, e.g. an export
// filter with zero rows or an unknown component name.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// NotFound builds a NotFoundError with a formatted message.
func NotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// AuthError signals a missing, invalid or expired credential. The message
// is deliberately uniform regardless of the underlying cause.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
