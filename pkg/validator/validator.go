package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]

		if name == "-" {
			return ""
		}

		return name
	})

	return &Validator{validate: v}
}

// Validate checks i against its `validate` tags. Values that are not structs are accepted as is.
func (v *Validator) Validate(i any) ([]ValidationError, bool) {
	if i == nil {
		return nil, true
	}

	t := reflect.TypeOf(i)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, true
	}

	err := v.validate.Struct(i)
	if err == nil {
		return nil, true
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []ValidationError{{Code: "INVALID", Message: err.Error()}}, false
	}

	result := make([]ValidationError, 0, len(validationErrors))
	for _, fe := range validationErrors {
		var message string
		switch fe.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", fe.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
		case "max":
			message = fmt.Sprintf("%s must not exceed %s", fe.Field(), fe.Param())
		case "gte":
			message = fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
		case "lte":
			message = fmt.Sprintf("%s must be less than or equal to %s", fe.Field(), fe.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
		case "uuid", "uuid4":
			message = fmt.Sprintf("%s must be a valid uuid", fe.Field())
		case "url", "http_url":
			message = fmt.Sprintf("%s must be a valid url", fe.Field())
		default:
			message = fmt.Sprintf("%s is invalid", fe.Field())
		}

		result = append(result, ValidationError{
			Field:   fe.Namespace()[strings.Index(fe.Namespace(), ".")+1:],
			Code:    strings.ToUpper(fe.Tag()),
			Message: message,
		})
	}

	return result, false
}
