package common

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string { return e.Field + " " + e.Message }

// ValidationRule returns a failure message, or "" when value passes.
type ValidationRule func(value any) string

// Validator collects every field failure of a request before reporting.
type Validator struct {
	errs []ValidationError
}

func NewValidator() *Validator { return &Validator{} }

// Field runs rules against value in order. Every failing rule is recorded.
func (v *Validator) Field(name string, value any, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if msg := rule(value); msg != "" {
			v.errs = append(v.errs, ValidationError{Field: name, Value: value, Message: msg})
		}
	}
	return v
}

func (v *Validator) HasErrors() bool { return len(v.errs) > 0 }

func (v *Validator) Errors() []ValidationError { return v.errs }

func (v *Validator) ErrorMessage() string {
	var sb strings.Builder
	for i, e := range v.errs {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(e.Error())
	}
	return sb.String()
}

// Err returns nil or an AppError wrapping ErrValidation.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return NewAppError("VALIDATION_ERROR", v.ErrorMessage(), ErrValidation)
}

// ValidateAndReturnError is Err for gRPC-facing callers: failures come back
// as an InvalidArgument status.
func ValidateAndReturnError(v *Validator) error {
	if !v.HasErrors() {
		return nil
	}
	return InvalidArgumentError(v.ErrorMessage())
}

func Required(value any) string {
	switch x := value.(type) {
	case nil:
		return "is required"
	case string:
		if strings.TrimSpace(x) == "" {
			return "is required"
		}
	case []byte:
		if len(x) == 0 {
			return "is required"
		}
	}
	return ""
}

// MaxLength counts runes. Non-string values pass.
func MaxLength(limit int) ValidationRule {
	return func(value any) string {
		if s, ok := value.(string); ok && utf8.RuneCountInString(s) > limit {
			return fmt.Sprintf("must be at most %d characters", limit)
		}
		return ""
	}
}

func UUID(value any) string {
	s, ok := value.(string)
	if !ok {
		return "must be a string"
	}
	if _, err := uuid.Parse(s); err != nil {
		return "must be a valid UUID"
	}
	return ""
}

// OptionalUUID is UUID that lets blank strings through.
func OptionalUUID(value any) string {
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return ""
	}
	return UUID(value)
}
