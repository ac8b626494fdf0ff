package httpx

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// ValidationFields flattens validator errors into a field -> message map.
// Returns nil when err is nil so callers can gate on the result.
func ValidationFields(err error) map[string]string {
	if err == nil {
		return nil
	}
	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fieldErr := range verrs {
			fields[fieldErr.Field()] = "failed on " + fieldErr.Tag()
		}
		return fields
	}
	fields["general"] = err.Error()
	return fields
}
