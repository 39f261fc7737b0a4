package utils

import "errors"

var (
	ErrorRecordNotFound  = errors.New("record not found")
	ErrorServiceNotReady = errors.New("service not ready")
)

// ValidationError carries a user-facing message for a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
