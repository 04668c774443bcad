// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package validation validates inbound payloads with go-playground/validator.
//
// A single validator instance is shared process-wide; it caches struct
// metadata and is safe for concurrent use. Field names in error messages use
// the struct's json tag so clients see the names they sent.
//
// Custom tags:
//   - roomid: non-empty, at most 128 bytes, no '/' or control characters
//   - userid: same rules as roomid
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const maxIDLength = 128

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single failed rule.
type FieldError struct {
	field   string
	tag     string
	param   string
	message string
}

// Field returns the json name of the failing field.
func (e *FieldError) Field() string { return e.field }

// Tag returns the failing validation tag.
func (e *FieldError) Tag() string { return e.tag }

// Param returns the tag parameter, e.g. "100" for max=100.
func (e *FieldError) Param() string { return e.param }

func (e *FieldError) Error() string { return e.message }

// RequestValidationError collects every failed rule of one struct.
type RequestValidationError struct {
	errors []FieldError
}

// Errors returns the individual field failures.
func (ve *RequestValidationError) Errors() []FieldError {
	return ve.errors
}

// Fields returns the names of the failing fields, in struct order.
func (ve *RequestValidationError) Fields() []string {
	out := make([]string, len(ve.errors))
	for i := range ve.errors {
		out[i] = ve.errors[i].field
	}
	return out
}

func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(ve.errors))
	for i := range ve.errors {
		messages[i] = ve.errors[i].message
	}
	return strings.Join(messages, "; ")
}

// GetValidator returns the shared validator.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		// Registration only fails for empty tags or nil funcs.
		_ = validate.RegisterValidation("roomid", validateIdentifier)
		_ = validate.RegisterValidation("userid", validateIdentifier)
	})
	return validate
}

// ValidateStruct validates s. It returns nil when every rule passes.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &RequestValidationError{
			errors: []FieldError{{field: "unknown", tag: "unknown", message: err.Error()}},
		}
	}

	fieldErrors := make([]FieldError, len(validationErrs))
	for i, fe := range validationErrs {
		fieldErrors[i] = FieldError{
			field:   fe.Field(),
			tag:     fe.Tag(),
			param:   fe.Param(),
			message: translateError(fe),
		}
	}
	return &RequestValidationError{errors: fieldErrors}
}

// ValidateVar validates a single value against tag.
func ValidateVar(v interface{}, tag string) error {
	return GetValidator().Var(v, tag)
}

// validateIdentifier backs the roomid and userid tags. Storage keys are
// '/'-separated, so ids must not contain one.
func validateIdentifier(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" || len(s) > maxIDLength {
		return false
	}
	for _, r := range s {
		if r == '/' || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

var errorMessageTemplates = map[string]string{
	"required": "%s is required",
	"roomid":   "%s must be a room id without '/' (max 128 bytes)",
	"userid":   "%s must be a user id without '/' (max 128 bytes)",
	"uuid":     "%s must be a UUID",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"min":   "%s must be at least %s",
	"max":   "%s must be at most %s",
}

func translateError(fe validator.FieldError) string {
	if template, ok := errorMessageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(template, fe.Field())
	}
	if template, ok := errorMessageWithParam[fe.Tag()]; ok {
		if fe.Kind() == reflect.String && (fe.Tag() == "min" || fe.Tag() == "max") {
			return fmt.Sprintf(template+" characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf(template, fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}
