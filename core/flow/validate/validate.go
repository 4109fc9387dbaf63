// Package validate implements acceptance rules for raw user input collected
// by conversation flows.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind identifies a validation rule applied to collected input.
type Kind string

const (
	// KindText accepts any text within length bounds.
	KindText Kind = "text"
	// KindEmail requires an email-shaped value.
	KindEmail Kind = "email"
	// KindPhone requires a phone number with at least ten digits.
	KindPhone Kind = "phone"
	// KindNumber requires the value to parse as a number.
	KindNumber Kind = "number"
	// KindDate requires the value to parse as a calendar date.
	KindDate Kind = "date"
)

// Valid reports whether k is a known validation kind.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindEmail, KindPhone, KindNumber, KindDate:
		return true
	}
	return false
}

// Reasons attached to validation errors.
const (
	ReasonTooShort = "too_short"
	ReasonTooLong  = "too_long"
	ReasonFormat   = "format"
	ReasonEmpty    = "empty"
)

// Error describes a rejected input. The session must stay untouched when the
// caller receives one.
type Error struct {
	Kind   Kind
	Reason string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("validation failed: kind=%s reason=%s", e.Kind, e.Reason)
}

// Code exposes a stable machine-readable code for log derivation.
func (e *Error) Code() string {
	return "VALIDATION_" + strings.ToUpper(e.Reason)
}

var (
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9()\-\s]{10,20}$`)
	digitRe = regexp.MustCompile(`[0-9]`)
)

// Check validates raw input against the rule kind and length bounds.
// minLen/maxLen of zero disable the respective bound.
func Check(raw string, kind Kind, minLen, maxLen int) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return &Error{Kind: kind, Reason: ReasonEmpty}
	}

	length := utf8.RuneCountInString(trimmed)
	if minLen > 0 && length < minLen {
		return &Error{Kind: kind, Reason: ReasonTooShort}
	}
	if maxLen > 0 && length > maxLen {
		return &Error{Kind: kind, Reason: ReasonTooLong}
	}

	switch kind {
	case KindText, "":
		return nil
	case KindEmail:
		if !emailRe.MatchString(trimmed) {
			return &Error{Kind: kind, Reason: ReasonFormat}
		}
	case KindPhone:
		if !phoneRe.MatchString(trimmed) || len(digitRe.FindAllString(trimmed, -1)) < 10 {
			return &Error{Kind: kind, Reason: ReasonFormat}
		}
	case KindNumber:
		if _, err := strconv.ParseFloat(trimmed, 64); err != nil {
			return &Error{Kind: kind, Reason: ReasonFormat}
		}
	case KindDate:
		if _, ok := ParseFlexibleDate(trimmed); !ok {
			return &Error{Kind: kind, Reason: ReasonFormat}
		}
	default:
		return &Error{Kind: kind, Reason: ReasonFormat}
	}
	return nil
}
