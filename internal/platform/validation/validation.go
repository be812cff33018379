// Package validation adapts go-playground/validator to echo and renders
// failures as a field to message map keyed by JSON names.
package validation

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// FieldErrors maps a JSON field path (e.g. "recurrence.end_date") to a
// human-readable message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+fe[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator implements echo.Validator.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &Validator{v: v}
}

// Validate returns FieldErrors when i fails its validate tags.
func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := make(FieldErrors, len(ve))
	for _, fe := range ve {
		out[fieldPath(fe)] = message(fe)
	}
	return out
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "gtfield":
		return "must be after " + jsonName(fe.Param())
	case "datetime":
		return "must be a date in " + fe.Param() + " format"
	case "email":
		return "must be a valid email address"
	case "e164":
		return "must be a phone number in E.164 format"
	case "timezone":
		return "must be an IANA time zone"
	case "iso3166_1_alpha2":
		return "must be a two-letter country code"
	case "dive":
		return "is invalid"
	}
	return "failed " + fe.Tag() + " validation"
}

// jsonName converts a Go field name such as StartTime to start_time.
func jsonName(goName string) string {
	var b strings.Builder
	for i, r := range goName {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Field builds a single-field error, for checks done outside struct tags.
func Field(path, msg string) FieldErrors {
	return FieldErrors{path: msg}
}

// HTTPError renders FieldErrors as a 400 with a "fields" body. Other errors
// are returned unchanged.
func HTTPError(err error) error {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]interface{}{
			"message": "validation failed",
			"fields":  fe,
		})
	}
	return err
}
