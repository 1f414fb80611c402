package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/username/standingbank/backend/src/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		// amounts travel as strings to keep decimal precision
		mustRegister(v, "decimal_gt0", func(fl validator.FieldLevel) bool {
			d, err := decimal.NewFromString(fl.Field().String())
			return err == nil && d.IsPositive()
		})
		mustRegister(v, "date", func(fl validator.FieldLevel) bool {
			_, err := models.ParseDate(fl.Field().String())
			return err == nil
		})
		validate = v
	})
	return validate
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

// ValidateStruct checks the `validate` tags of a request payload and
// reports the first violation as a *models.ValidationError.
func ValidateStruct(payload any) error {
	err := getValidator().Struct(payload)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return formatFieldError(verrs[0])
	}
	return models.NewValidationError("", "%v", err)
}

func formatFieldError(fe validator.FieldError) error {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "required_without":
		return models.NewValidationError(field, "is required")
	case "excluded_with":
		return models.NewValidationError(field, "cannot be combined with %s", fe.Param())
	case "decimal_gt0":
		return models.NewValidationError(field, "must be a decimal number greater than zero")
	case "date":
		return models.NewValidationError(field, "must be a date in YYYY-MM-DD format")
	case "oneof":
		return models.NewValidationError(field, "must be one of: %s", fe.Param())
	case "max":
		return models.NewValidationError(field, "exceeds maximum length of %s", fe.Param())
	case "gte", "min":
		return models.NewValidationError(field, "must be at least %s", fe.Param())
	default:
		return models.NewValidationError(field, "failed '%s' validation", fe.Tag())
	}
}
