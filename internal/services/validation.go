package services

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ValidationError reports a malformed or missing request field. It is
// resolved before any side effect takes place and is always returned to
// the caller synchronously.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationHelper provides shared struct validation.
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper.
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates tagged struct fields, converting the first
// failure into a ValidationError.
func (vh *ValidationHelper) ValidateStruct(s any) error {
	err := vh.validator.Struct(s)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		first := verrs[0]
		return &ValidationError{
			Field:   first.Field(),
			Message: fmt.Sprintf("failed on '%s' validation", first.Tag()),
		}
	}
	return err
}
