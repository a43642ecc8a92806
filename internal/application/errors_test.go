package application

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "nil", err: nil, want: CodeOK},
		{name: "not found", err: NotFound("move", "n1"), want: CodeNodeNotFound},
		{name: "wrapped not found", err: fmt.Errorf("load: %w", NotFound("get", "n1")), want: CodeNodeNotFound},
		{name: "working copy", err: WorkingCopyNotFound("commit", "w"), want: CodeWorkingCopyNotFound},
		{name: "validation", err: &ValidationError{Field: "name", Message: "bad"}, want: CodeValidation},
		{name: "name conflict", err: &NameConflictError{Name: "A"}, want: CodeNameConflict},
		{name: "cycle", err: CycleError("a", "b"), want: CodeCircularReference},
		{name: "stale version", err: &ConflictError{NodeID: "n", Expected: 1, Actual: 2}, want: CodeCommitConflict},
		{name: "empty history", err: ErrNothingToUndo, want: CodeValidation},
		{name: "anything else", err: errors.New("disk on fire"), want: CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	err := Errorf(CodeWorkingCopyExists, "createWorkingCopy", "n1", "copy %s is live", "w1")

	if !errors.Is(err, ErrWorkingCopyExists) {
		t.Errorf("expected errors.Is(err, ErrWorkingCopyExists)")
	}
	if errors.Is(err, ErrNodeNotFound) {
		t.Errorf("did not expect errors.Is(err, ErrNodeNotFound)")
	}
	if got := err.Error(); got != "createWorkingCopy n1: copy w1 is live" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestNameConflictError_IsValidation(t *testing.T) {
	err := &NameConflictError{ParentID: "p", Name: "A"}
	if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrNameConflict) {
		t.Errorf("expected name conflict to match both sentinels")
	}
}
