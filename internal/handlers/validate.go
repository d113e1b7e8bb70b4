package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON name so messages match the wire format
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest runs struct validation and rewrites the first failure into
// a caller-facing message.
func validateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "gt":
		return fmt.Errorf("%s must be greater than %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Errorf("%s must be at least %s", fe.Field(), fe.Param())
	case "email":
		return fmt.Errorf("%s must be a valid email address", fe.Field())
	case "url":
		return fmt.Errorf("%s must be a valid URL", fe.Field())
	case "uuid":
		return fmt.Errorf("%s must be a valid UUID", fe.Field())
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Errorf("%s is invalid", fe.Field())
	}
}
