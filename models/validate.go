package models

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the education and
// occupation tags registered
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("education", func(fl validator.FieldLevel) bool {
			return IsEducation(fl.Field().String())
		})
		_ = validate.RegisterValidation("occupation", func(fl validator.FieldLevel) bool {
			return IsOccupation(fl.Field().String())
		})
	})
	return validate
}

// Validate checks v against its validate tags
func Validate(v any) error {
	return Validator().Struct(v)
}

// IsEducation reports whether s is a known education level
func IsEducation(s string) bool {
	return contains(EducationLevels, s)
}

// IsOccupation reports whether s is a known occupation
func IsOccupation(s string) bool {
	return contains(Occupations, s)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// ValidationMessage turns a validator error into one readable sentence.
// Other errors are returned as their plain message.
func ValidationMessage(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		switch e.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is required", e.Field()))
		case "education":
			msgs = append(msgs, fmt.Sprintf("field %s must be one of: %s", e.Field(), strings.Join(EducationLevels, ", ")))
		case "occupation":
			msgs = append(msgs, fmt.Sprintf("field %s must be one of: %s", e.Field(), strings.Join(Occupations, ", ")))
		case "min":
			msgs = append(msgs, fmt.Sprintf("field %s must be at least %s", e.Field(), e.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("field %s must be at most %s", e.Field(), e.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("field %s must be one of: %s", e.Field(), e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is invalid", e.Field()))
		}
	}
	return strings.Join(msgs, ", ")
}
