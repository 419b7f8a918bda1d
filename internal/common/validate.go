package common

import (
	"net/http"

	validator "github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags on the payload and converts failures into an
// AppError suitable for rendering.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		fields := map[string]string{}
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		return NewAppError("VALIDATION", "invalid payload", http.StatusUnprocessableEntity, err).withDetails(fields)
	}
	return nil
}

func (e *AppError) withDetails(details any) *AppError {
	e.Details = details
	return e
}
