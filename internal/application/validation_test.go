package application

import (
	"errors"
	"strings"
	"testing"

	"arbor/internal/domain"
)

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name      string
		fieldName string
		value     string
		wantErr   bool
	}{
		{
			name:      "valid value",
			fieldName: "name",
			value:     "Reports",
			wantErr:   false,
		},
		{
			name:      "empty string",
			fieldName: "name",
			value:     "",
			wantErr:   true,
		},
		{
			name:      "whitespace only",
			fieldName: "name",
			value:     "   ",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequired(tt.fieldName, tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRequired() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err != nil {
				var valErr *ValidationError
				if !errors.As(err, &valErr) {
					t.Errorf("expected ValidationError, got %T", err)
					return
				}
				if valErr.Field != tt.fieldName {
					t.Errorf("expected field %s, got %s", tt.fieldName, valErr.Field)
				}
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr string
	}{
		{name: "plain", value: "Folder"},
		{name: "unicode", value: "Résumé ✓"},
		{name: "empty", value: "", wantErr: "is required"},
		{name: "slash", value: "a/b", wantErr: "'/'"},
		{name: "control character", value: "a\tb", wantErr: "control characters"},
		{name: "too long", value: strings.Repeat("x", MaxNameLength+1), wantErr: "limit is 255"},
		{name: "at the limit", value: strings.Repeat("é", MaxNameLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName("name", tt.value)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
			if CodeOf(err) != CodeValidation {
				t.Errorf("expected code %s, got %s", CodeValidation, CodeOf(err))
			}
		})
	}
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name      string
		payload   domain.Payload
		wantField string
	}{
		{
			name:    "valid move",
			payload: domain.MoveNodesPayload{NodeIDs: []string{"a"}},
		},
		{
			name:      "move without ids",
			payload:   domain.MoveNodesPayload{},
			wantField: "nodeIds",
		},
		{
			name:      "bad policy",
			payload:   domain.CommitWorkingCopyPayload{WorkingCopyID: "w", OnNameConflict: "shrug"},
			wantField: "onNameConflict",
		},
		{
			name:    "edit copy needs only node id",
			payload: domain.CreateWorkingCopyPayload{NodeID: "n"},
		},
		{
			name:      "draft needs a type",
			payload:   domain.CreateWorkingCopyPayload{Name: "x"},
			wantField: "nodeType",
		},
		{
			name:      "import needs a snapshot",
			payload:   domain.ImportNodesPayload{},
			wantField: "snapshot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(tt.payload)
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var valErr *ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if valErr.Field != tt.wantField {
				t.Errorf("expected field %s, got %s", tt.wantField, valErr.Field)
			}
		})
	}
}
