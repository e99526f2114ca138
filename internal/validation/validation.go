// Package validation wraps a shared go-playground validator and reports
// failures as validation_failed domain errors.
package validation

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"codeberg.org/mutker/hashtop/internal/errors"
	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the process-wide validator instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report fields by their JSON names so messages match request bodies.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})

	return validate
}

// Struct validates s and returns an ErrValidation error naming every
// offending field, or nil.
func Struct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.New().Wrap(errors.ErrValidation, err)
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, describe(fe))
	}

	return errors.New().WithMessage(errors.ErrValidation, strings.Join(messages, "; "))
}

// Var validates a single value against tag.
func Var(name string, value any, tag string) error {
	if err := Validator().Var(value, tag); err != nil {
		return errors.New().WithMessage(errors.ErrValidation, fmt.Sprintf("%s is invalid", name))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	// Drop the root struct name.
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "unique":
		return fmt.Sprintf("%s must not repeat %s", field, fe.Param())
	case "eth_addr":
		return field + " must be a 0x-prefixed 40 digit hex address"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
