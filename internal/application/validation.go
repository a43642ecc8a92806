package application

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"

	"arbor/internal/domain"
)

// MaxNameLength bounds node names, in runes
const MaxNameLength = 255

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func payloadValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// ValidateRequired checks if a string field is non-empty (after trimming whitespace).
// Returns a ValidationError if the field is empty.
func ValidateRequired(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   fieldName,
			Message: fmt.Sprintf("%s is required", formatFieldName(fieldName)),
		}
	}
	return nil
}

// formatFieldName converts camelCase field names to space-separated words
// for more readable error messages (e.g., "nodeId" -> "node ID")
func formatFieldName(fieldName string) string {
	replacements := map[string]string{
		"nodeId":           "node ID",
		"nodeIds":          "node IDs",
		"parentId":         "parent ID",
		"newParentId":      "new parent ID",
		"fallbackParentId": "fallback parent ID",
		"workingCopyId":    "working copy ID",
		"nodeType":         "node type",
		"onNameConflict":   "name conflict policy",
	}

	if formatted, ok := replacements[fieldName]; ok {
		return formatted
	}
	return fieldName
}

// ValidateName checks the rules every stored node name follows: non-empty
// after trimming, at most MaxNameLength runes, no path separator, no control
// characters
func ValidateName(fieldName, name string) error {
	if err := ValidateRequired(fieldName, name); err != nil {
		return err
	}
	if n := len([]rune(name)); n > MaxNameLength {
		return &ValidationError{
			Field:   fieldName,
			Message: fmt.Sprintf("name is %d characters, limit is %d", n, MaxNameLength),
		}
	}
	if strings.Contains(name, "/") {
		return &ValidationError{Field: fieldName, Message: "name must not contain '/'"}
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return &ValidationError{Field: fieldName, Message: "name must not contain control characters"}
		}
	}
	return nil
}

// ValidatePayload runs the struct tag rules of a command payload
func ValidatePayload(p domain.Payload) error {
	if p == nil {
		return &ValidationError{Field: "payload", Message: "payload is required"}
	}
	err := payloadValidator().Struct(p)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Field: "payload", Message: err.Error()}
	}
	fe := fieldErrs[0]
	field := fe.Field()
	return &ValidationError{Field: field, Message: describeRule(formatFieldName(field), fe)}
}

func describeRule(display string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return fmt.Sprintf("%s is required", display)
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", display, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", display, fe.Param())
	}
	return fmt.Sprintf("%s failed %q", display, fe.Tag())
}
