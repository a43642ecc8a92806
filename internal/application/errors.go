package application

import (
	"errors"
	"fmt"
)

// Code is the error taxonomy carried by command results
type Code string

const (
	CodeOK                  Code = ""
	CodeNodeNotFound        Code = "NODE_NOT_FOUND"
	CodeWorkingCopyNotFound Code = "WORKING_COPY_NOT_FOUND"
	CodeWorkingCopyExists   Code = "WORKING_COPY_EXISTS"
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeNameConflict        Code = "NAME_CONFLICT"
	CodeCircularReference   Code = "CIRCULAR_REFERENCE"
	CodeCommitConflict      Code = "COMMIT_CONFLICT"
	CodeDependencyMissing   Code = "DEPENDENCY_MISSING"
	CodeUnknown             Code = "UNKNOWN_ERROR"
)

// Sentinel errors for the taxonomy codes
var (
	ErrNodeNotFound        = errors.New("node not found")
	ErrWorkingCopyNotFound = errors.New("working copy not found")
	ErrWorkingCopyExists   = errors.New("working copy already exists")
	ErrValidation          = errors.New("validation failed")
	ErrNameConflict        = errors.New("name conflict")
	ErrCircularReference   = errors.New("circular reference")
	ErrCommitConflict      = errors.New("commit conflict")
	ErrDependencyMissing   = errors.New("dependency missing")

	ErrNothingToUndo = fmt.Errorf("nothing to undo: %w", ErrValidation)
	ErrNothingToRedo = fmt.Errorf("nothing to redo: %w", ErrValidation)
)

var sentinelCodes = []struct {
	err  error
	code Code
}{
	{ErrNodeNotFound, CodeNodeNotFound},
	{ErrWorkingCopyNotFound, CodeWorkingCopyNotFound},
	{ErrWorkingCopyExists, CodeWorkingCopyExists},
	{ErrNameConflict, CodeNameConflict},
	{ErrCircularReference, CodeCircularReference},
	{ErrCommitConflict, CodeCommitConflict},
	{ErrDependencyMissing, CodeDependencyMissing},
	{ErrValidation, CodeValidation},
}

// Error is a coded failure of an operation on a node or working copy
type Error struct {
	Code    Code
	Op      string
	ID      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Op != "" && e.ID != "":
		return fmt.Sprintf("%s %s: %s", e.Op, e.ID, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	for _, s := range sentinelCodes {
		if s.err == target {
			return s.code == e.Code
		}
	}
	return false
}

// NotFound reports a missing node
func NotFound(op, id string) error {
	return &Error{Code: CodeNodeNotFound, Op: op, ID: id, Message: "node not found"}
}

// WorkingCopyNotFound reports a missing or expired working copy
func WorkingCopyNotFound(op, id string) error {
	return &Error{Code: CodeWorkingCopyNotFound, Op: op, ID: id, Message: "working copy not found"}
}

// Errorf builds a coded error
func Errorf(code Code, op, id, format string, args ...any) error {
	return &Error{Code: code, Op: op, ID: id, Message: fmt.Sprintf(format, args...)}
}

// ValidationError represents a validation failure with details
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NameConflictError reports a sibling that already carries the name
type NameConflictError struct {
	ParentID string
	Name     string
}

func (e *NameConflictError) Error() string {
	parent := e.ParentID
	if parent == "" {
		parent = "root"
	}
	return fmt.Sprintf("name %q already exists under %s", e.Name, parent)
}

// A rejected collision is also a validation failure
func (e *NameConflictError) Is(target error) bool {
	return target == ErrNameConflict || target == ErrValidation
}

// MoveError represents a move-related failure
type MoveError struct {
	SourceID string
	DestID   string
	Reason   string
	Err      error
}

func (e *MoveError) Error() string {
	dest := e.DestID
	if dest == "" {
		dest = "root"
	}
	return fmt.Sprintf("cannot move %s to %s: %s", e.SourceID, dest, e.Reason)
}

func (e *MoveError) Unwrap() error {
	return e.Err
}

// CycleError is returned when a move or paste would make a node its own ancestor
func CycleError(sourceID, destID string) error {
	return &MoveError{
		SourceID: sourceID,
		DestID:   destID,
		Reason:   "destination is inside the moved branch",
		Err:      ErrCircularReference,
	}
}

// ConflictError reports an optimistic lock failure
type ConflictError struct {
	NodeID   string
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("node %s changed: expected version %d, found %d", e.NodeID, e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrCommitConflict
}

// CodeOf maps any error to its taxonomy code
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	return CodeUnknown
}
