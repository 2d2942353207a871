package bill

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is matched by every *ValidationError
var ErrValidation = errors.New("validation failed")

// FieldError describes one broken invariant
type FieldError struct {
	Field    string
	Message  string
	Required bool // the field is required and was absent
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError lists every invariant a bill failed
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	messages := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		messages = append(messages, f.Error())
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(messages, "; "))
}

// Is lets errors.Is(err, ErrValidation) match
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// MissingRequired reports whether any required field was absent
func (e *ValidationError) MissingRequired() bool {
	for _, f := range e.Fields {
		if f.Required {
			return true
		}
	}
	return false
}

// Has reports whether the named field failed
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

type validator struct {
	fields []FieldError
}

func (v *validator) required(field string) {
	v.fields = append(v.fields, FieldError{Field: field, Message: "is required", Required: true})
}

func (v *validator) fail(field, format string, args ...any) {
	v.fields = append(v.fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

// Validate checks b against the bill invariants
func Validate(b Bill) error {
	v := &validator{}
	if strings.TrimSpace(b.Vendor) == "" {
		v.required("vendor")
	}
	checkCommon(v, b)
	return v.err()
}

func checkCommon(v *validator, b Bill) {
	if b.Amount.IsNegative() {
		v.fail("amount", "must not be negative, got %s", b.Amount.String())
	}
	if !b.Amount.Equal(b.Amount.Round(2)) {
		v.fail("amount", "must have at most two fraction digits, got %s", b.Amount.String())
	}
	if !b.IssueDate.IsZero() && !b.DueDate.IsZero() && b.DueDate.Before(b.IssueDate) {
		v.fail("due_date", "%s is before issue date %s", FormatDate(b.DueDate), FormatDate(b.IssueDate))
	}
	if !b.Category.Valid() {
		v.fail("category", "unknown category %q", b.Category)
	}
	if !b.Status.Valid() {
		v.fail("status", "unknown status %q", b.Status)
	}
	for i, item := range b.LineItems {
		if strings.TrimSpace(item.Description) == "" {
			v.fail(fmt.Sprintf("line_items[%d].description", i), "is required")
		}
	}
}
