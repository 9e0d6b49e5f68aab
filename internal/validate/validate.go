// ABOUTME: Struct validation that reports the first failure as an apperr ValidationError
// ABOUTME: Field names come from json tags; rules come from go-playground/validator tags

// Package validate checks tagged structs before any store call is made.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/2389/fitportal/internal/access"
	"github.com/2389/fitportal/internal/apperr"
)

var (
	once     sync.Once
	instance *validator.Validate
)

func engine() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(jsonName)
		mustRegister(v, "notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		mustRegister(v, "role", func(fl validator.FieldLevel) bool {
			return access.Role(fl.Field().String()).Valid()
		})
		instance = v
	})
	return instance
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("registering %s validation: %v", tag, err))
	}
}

func jsonName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return sf.Name
	}
	return name
}

// Struct validates v and returns the first failing field, in declaration
// order, as a ValidationError.
func Struct(v any) error {
	err := engine().Struct(v)
	if err == nil {
		return nil
	}
	return translate(err)
}

// Var validates a single value against tag, reporting failures for field.
func Var(field string, value any, tag string) error {
	err := engine().Var(value, tag)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return apperr.Validation(field, Message(fieldErrs[0].Tag(), fieldErrs[0].Param()))
	}
	return apperr.Validation(field, err.Error())
}

func translate(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperr.Validation("", err.Error())
	}
	fe := fieldErrs[0]
	return apperr.Validation(fieldPath(fe), Message(fe.Tag(), fe.Param()))
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

// Message renders a validation rule as a short reason.
func Message(rule, param string) string {
	switch rule {
	case "required", "notblank":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "gt":
		return "must be greater than " + param
	case "gte":
		return "must be at least " + param
	case "lte":
		return "must be at most " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	case "uri", "url":
		return "must be a valid URI"
	case "role":
		return "must be a known role"
	case "unique":
		return "must not contain duplicates"
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
