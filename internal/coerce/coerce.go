// Package coerce interprets raw cell values against declared field types.
// Every function returns a typed result or a structured failure; nothing in
// this package panics or returns a Go error for field-level problems, so the
// row mapper can aggregate failures across a whole row.
package coerce

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"lead-engine/internal/schema"
)

// Result is a successfully coerced value.
type Result struct {
	// Value is the typed value: string, float64, bool or time.Time.
	Value interface{}
	// Norm is the normalized comparison form used for uniqueness checks
	// (email lowercased, phone digits-only).
	Norm string
}

// Failure describes a type mismatch for one value.
type Failure struct {
	Reason string
}

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	digitsOnly   = regexp.MustCompile(`\D`)
)

// Coerce interprets raw against the mapping's declared type.
func Coerce(raw interface{}, m schema.FieldMapping) (Result, *Failure) {
	switch m.Type {
	case schema.FieldTypeText:
		return coerceText(raw)
	case schema.FieldTypeEmail:
		return coerceEmail(raw)
	case schema.FieldTypePhone:
		return coercePhone(raw)
	case schema.FieldTypeNumber:
		return coerceNumber(raw)
	case schema.FieldTypeDate:
		return coerceDate(raw, m.Pattern)
	case schema.FieldTypeBoolean:
		return coerceBoolean(raw)
	case schema.FieldTypeURL:
		return coerceURL(raw)
	case schema.FieldTypeEnum:
		return coerceEnum(raw, m)
	default:
		return Result{}, &Failure{Reason: fmt.Sprintf("unknown field type %q", m.Type)}
	}
}

// IsEmpty reports whether a raw value is empty after trimming. Missing cells
// and keys surface here as nil.
func IsEmpty(raw interface{}) bool {
	if raw == nil {
		return true
	}
	if s, ok := raw.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// rawString renders a raw scalar as a string for string-based coercion.
// Structured payloads deliver numbers as float64 and booleans as bool.
func rawString(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func coerceText(raw interface{}) (Result, *Failure) {
	s := strings.TrimSpace(rawString(raw))
	return Result{Value: s, Norm: strings.ToLower(s)}, nil
}

func coerceEmail(raw interface{}) (Result, *Failure) {
	s := strings.ToLower(strings.TrimSpace(rawString(raw)))
	if !emailPattern.MatchString(s) {
		return Result{}, &Failure{Reason: fmt.Sprintf("%q is not a valid email address", s)}
	}
	return Result{Value: s, Norm: s}, nil
}

func coercePhone(raw interface{}) (Result, *Failure) {
	s := strings.TrimSpace(rawString(raw))
	digits := digitsOnly.ReplaceAllString(s, "")
	if len(digits) < 10 {
		return Result{}, &Failure{Reason: fmt.Sprintf("%q has fewer than 10 digits", s)}
	}
	// Original formatting is preserved in the stored value; only the
	// comparison form is digits-only.
	return Result{Value: s, Norm: digits}, nil
}

func coerceNumber(raw interface{}) (Result, *Failure) {
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case int:
		v = float64(n)
	default:
		s := strings.TrimSpace(rawString(raw))
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Result{}, &Failure{Reason: fmt.Sprintf("%q is not a number", s)}
		}
		v = parsed
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Result{}, &Failure{Reason: "number is not finite"}
	}
	return Result{Value: v, Norm: strconv.FormatFloat(v, 'f', -1, 64)}, nil
}

func coerceDate(raw interface{}, altLayout string) (Result, *Failure) {
	if t, ok := raw.(time.Time); ok {
		return Result{Value: t, Norm: t.UTC().Format("2006-01-02")}, nil
	}

	s := strings.TrimSpace(rawString(raw))
	layouts := []string{time.RFC3339, "2006-01-02"}
	if altLayout != "" {
		layouts = append([]string{altLayout}, layouts...)
	}
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		// Go silently maps two-digit years onto 1969-2068; a value that
		// only parses through such a layout is ambiguous, not a date.
		if hasTwoDigitYear(layout) {
			return Result{}, &Failure{Reason: fmt.Sprintf("%q has an ambiguous two-digit year", s)}
		}
		return Result{Value: t, Norm: t.UTC().Format("2006-01-02")}, nil
	}
	return Result{}, &Failure{Reason: fmt.Sprintf("%q is not a recognized date", s)}
}

func hasTwoDigitYear(layout string) bool {
	return strings.Contains(layout, "06") && !strings.Contains(layout, "2006")
}

func coerceBoolean(raw interface{}) (Result, *Failure) {
	if b, ok := raw.(bool); ok {
		return Result{Value: b, Norm: strconv.FormatBool(b)}, nil
	}

	s := strings.ToLower(strings.TrimSpace(rawString(raw)))
	switch s {
	case "true", "yes", "1":
		return Result{Value: true, Norm: "true"}, nil
	case "false", "no", "0":
		return Result{Value: false, Norm: "false"}, nil
	}
	return Result{}, &Failure{Reason: fmt.Sprintf("%q is not a recognized boolean", s)}
}

func coerceURL(raw interface{}) (Result, *Failure) {
	s := strings.TrimSpace(rawString(raw))
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return Result{}, &Failure{Reason: fmt.Sprintf("%q is not an absolute URL", s)}
	}
	return Result{Value: s, Norm: strings.ToLower(s)}, nil
}

func coerceEnum(raw interface{}, m schema.FieldMapping) (Result, *Failure) {
	s := strings.TrimSpace(rawString(raw))
	allowed := m.EnumValues()
	for _, v := range allowed {
		if s == v {
			return Result{Value: s, Norm: strings.ToLower(s)}, nil
		}
	}
	return Result{}, &Failure{
		Reason: fmt.Sprintf("%q is not one of [%s]", s, strings.Join(allowed, ", ")),
	}
}
