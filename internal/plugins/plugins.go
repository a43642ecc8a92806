// Package plugins holds the node types every arbor store knows about
package plugins

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"arbor/internal/application"
	"arbor/internal/application/lifecycle"
)

// Built-in node types
const (
	TypeFolder   = "folder"
	TypeDocument = "document"
	TypeDataset  = "dataset"
	TypeStyleMap = "stylemap"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Builtin returns the built-in registrations in dependency order
func Builtin() []lifecycle.Registration {
	return []lifecycle.Registration{
		Folder(),
		Document(),
		Dataset(),
		StyleMap(),
	}
}

// Register adds the built-in types to r, stopping at the first failure
func Register(r *lifecycle.Registry) error {
	for _, reg := range Builtin() {
		if err := r.Register(reg); err != nil {
			return fmt.Errorf("register %s: %w", reg.NodeType(), err)
		}
	}
	return nil
}

// decode unmarshals entity data into v and validates its tags. Empty data
// decodes to the zero value.
func decode(data json.RawMessage, v any) error {
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, v); err != nil {
			return &application.ValidationError{Field: "data", Message: err.Error()}
		}
	}
	if err := validate.Struct(v); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			fe := errs[0]
			return &application.ValidationError{Field: fe.Field(), Message: fmt.Sprintf("failed the %q rule", fe.Tag())}
		}
		return &application.ValidationError{Field: "data", Message: err.Error()}
	}
	return nil
}
