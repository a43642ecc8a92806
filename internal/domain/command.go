package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// CommandKind names a mutation the processor understands
type CommandKind string

const (
	KindCreateWorkingCopy  CommandKind = "createWorkingCopy"
	KindUpdateWorkingCopy  CommandKind = "updateWorkingCopy"
	KindCommitWorkingCopy  CommandKind = "commitWorkingCopy"
	KindDiscardWorkingCopy CommandKind = "discardWorkingCopy"
	KindMoveNodes          CommandKind = "moveNodes"
	KindDuplicateNodes     CommandKind = "duplicateNodes"
	KindPasteNodes         CommandKind = "pasteNodes"
	KindImportNodes        CommandKind = "importNodes"
	KindMoveToTrash        CommandKind = "moveToTrash"
	KindPermanentDelete    CommandKind = "permanentDelete"
	KindRecoverFromTrash   CommandKind = "recoverFromTrash"
	KindUndo               CommandKind = "undo"
	KindRedo               CommandKind = "redo"
)

// Undoable reports whether a command of this kind lands on the undo stack.
// Working copy bookkeeping lives outside the durable tree and is not recorded.
func (k CommandKind) Undoable() bool {
	switch k {
	case KindCreateWorkingCopy, KindUpdateWorkingCopy, KindDiscardWorkingCopy, KindUndo, KindRedo:
		return false
	}
	return true
}

// Payload is the kind-specific body of a command envelope
type Payload interface {
	Kind() CommandKind
}

// CreateWorkingCopyPayload opens an edit of NodeID, or a draft under ParentID
// when NodeID is empty
type CreateWorkingCopyPayload struct {
	NodeID   string          `json:"nodeId,omitempty"`
	ParentID string          `json:"parentId,omitempty"`
	NodeType string          `json:"nodeType,omitempty" validate:"required_without=NodeID"`
	Name     string          `json:"name,omitempty" validate:"required_without=NodeID"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type UpdateWorkingCopyPayload struct {
	WorkingCopyID string           `json:"workingCopyId" validate:"required"`
	Patch         WorkingCopyPatch `json:"patch"`
}

type CommitWorkingCopyPayload struct {
	WorkingCopyID  string             `json:"workingCopyId" validate:"required"`
	OnNameConflict NameConflictPolicy `json:"onNameConflict,omitempty" validate:"omitempty,oneof=error auto-rename"`
}

type DiscardWorkingCopyPayload struct {
	WorkingCopyID string `json:"workingCopyId" validate:"required"`
}

// MoveNodesPayload relocates nodes under NewParentID; empty means root level
type MoveNodesPayload struct {
	NodeIDs        []string           `json:"nodeIds" validate:"required,min=1,dive,required"`
	NewParentID    string             `json:"newParentId,omitempty"`
	OnNameConflict NameConflictPolicy `json:"onNameConflict,omitempty" validate:"omitempty,oneof=error auto-rename"`
}

// DuplicateNodesPayload copies branches next to their sources
type DuplicateNodesPayload struct {
	NodeIDs        []string           `json:"nodeIds" validate:"required,min=1,dive,required"`
	OnNameConflict NameConflictPolicy `json:"onNameConflict,omitempty" validate:"omitempty,oneof=error auto-rename"`
}

// PasteNodesPayload inserts a snapshot under ParentID. A nil snapshot pastes
// the session clipboard.
type PasteNodesPayload struct {
	Snapshot       *Snapshot          `json:"snapshot,omitempty"`
	ParentID       string             `json:"parentId,omitempty"`
	OnNameConflict NameConflictPolicy `json:"onNameConflict,omitempty" validate:"omitempty,oneof=error auto-rename"`
}

// ImportNodesPayload inserts an exported snapshot, regenerating every id
// including shared resources
type ImportNodesPayload struct {
	Snapshot       *Snapshot          `json:"snapshot" validate:"required"`
	ParentID       string             `json:"parentId,omitempty"`
	OnNameConflict NameConflictPolicy `json:"onNameConflict,omitempty" validate:"omitempty,oneof=error auto-rename"`
}

type MoveToTrashPayload struct {
	NodeIDs []string `json:"nodeIds" validate:"required,min=1,dive,required"`
}

type PermanentDeletePayload struct {
	NodeIDs []string `json:"nodeIds" validate:"required,min=1,dive,required"`
}

// RecoverFromTrashPayload restores trashed nodes to where they came from,
// falling back to FallbackParentID when the original parent is gone
type RecoverFromTrashPayload struct {
	NodeIDs          []string           `json:"nodeIds" validate:"required,min=1,dive,required"`
	FallbackParentID string             `json:"fallbackParentId,omitempty"`
	OnNameConflict   NameConflictPolicy `json:"onNameConflict,omitempty" validate:"omitempty,oneof=error auto-rename"`
}

// UndoPayload reverts the latest record, or the latest one of GroupID
type UndoPayload struct {
	GroupID string `json:"groupId,omitempty"`
}

type RedoPayload struct {
	GroupID string `json:"groupId,omitempty"`
}

func (CreateWorkingCopyPayload) Kind() CommandKind  { return KindCreateWorkingCopy }
func (UpdateWorkingCopyPayload) Kind() CommandKind  { return KindUpdateWorkingCopy }
func (CommitWorkingCopyPayload) Kind() CommandKind  { return KindCommitWorkingCopy }
func (DiscardWorkingCopyPayload) Kind() CommandKind { return KindDiscardWorkingCopy }
func (MoveNodesPayload) Kind() CommandKind          { return KindMoveNodes }
func (DuplicateNodesPayload) Kind() CommandKind     { return KindDuplicateNodes }
func (PasteNodesPayload) Kind() CommandKind         { return KindPasteNodes }
func (ImportNodesPayload) Kind() CommandKind        { return KindImportNodes }
func (MoveToTrashPayload) Kind() CommandKind        { return KindMoveToTrash }
func (PermanentDeletePayload) Kind() CommandKind    { return KindPermanentDelete }
func (RecoverFromTrashPayload) Kind() CommandKind   { return KindRecoverFromTrash }
func (UndoPayload) Kind() CommandKind               { return KindUndo }
func (RedoPayload) Kind() CommandKind               { return KindRedo }

// CommandEnvelope is the immutable unit the processor applies and records
type CommandEnvelope struct {
	CommandID string
	GroupID   string
	Kind      CommandKind
	Payload   Payload
	IssuedAt  time.Time
}

// NewEnvelope stamps a payload with a fresh command id and issue time
func NewEnvelope(groupID string, payload Payload) CommandEnvelope {
	return CommandEnvelope{
		CommandID: NewID(),
		GroupID:   groupID,
		Kind:      payload.Kind(),
		Payload:   payload,
		IssuedAt:  time.Now().UTC(),
	}
}

type envelopeJSON struct {
	CommandID string          `json:"commandId"`
	GroupID   string          `json:"groupId,omitempty"`
	Kind      CommandKind     `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	IssuedAt  time.Time       `json:"issuedAt"`
}

// MarshalJSON writes the envelope with its payload inline
func (e CommandEnvelope) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelopeJSON{
		CommandID: e.CommandID,
		GroupID:   e.GroupID,
		Kind:      e.Kind,
		Payload:   payload,
		IssuedAt:  e.IssuedAt,
	})
}

// UnmarshalJSON decodes the payload according to kind
func (e *CommandEnvelope) UnmarshalJSON(data []byte) error {
	var raw envelopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	payload, err := DecodePayload(raw.Kind, raw.Payload)
	if err != nil {
		return err
	}
	*e = CommandEnvelope{
		CommandID: raw.CommandID,
		GroupID:   raw.GroupID,
		Kind:      raw.Kind,
		Payload:   payload,
		IssuedAt:  raw.IssuedAt,
	}
	if e.CommandID == "" {
		e.CommandID = NewID()
	}
	if e.IssuedAt.IsZero() {
		e.IssuedAt = time.Now().UTC()
	}
	return nil
}

// DecodePayload builds the typed payload for kind from raw JSON
func DecodePayload(kind CommandKind, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch kind {
	case KindCreateWorkingCopy:
		p = &CreateWorkingCopyPayload{}
	case KindUpdateWorkingCopy:
		p = &UpdateWorkingCopyPayload{}
	case KindCommitWorkingCopy:
		p = &CommitWorkingCopyPayload{}
	case KindDiscardWorkingCopy:
		p = &DiscardWorkingCopyPayload{}
	case KindMoveNodes:
		p = &MoveNodesPayload{}
	case KindDuplicateNodes:
		p = &DuplicateNodesPayload{}
	case KindPasteNodes:
		p = &PasteNodesPayload{}
	case KindImportNodes:
		p = &ImportNodesPayload{}
	case KindMoveToTrash:
		p = &MoveToTrashPayload{}
	case KindPermanentDelete:
		p = &PermanentDeletePayload{}
	case KindRecoverFromTrash:
		p = &RecoverFromTrashPayload{}
	case KindUndo:
		p = &UndoPayload{}
	case KindRedo:
		p = &RedoPayload{}
	default:
		return nil, fmt.Errorf("unknown command kind %q", kind)
	}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
	}
	return derefPayload(p), nil
}

// derefPayload hands out value payloads so type switches see one form
func derefPayload(p Payload) Payload {
	switch v := p.(type) {
	case *CreateWorkingCopyPayload:
		return *v
	case *UpdateWorkingCopyPayload:
		return *v
	case *CommitWorkingCopyPayload:
		return *v
	case *DiscardWorkingCopyPayload:
		return *v
	case *MoveNodesPayload:
		return *v
	case *DuplicateNodesPayload:
		return *v
	case *PasteNodesPayload:
		return *v
	case *ImportNodesPayload:
		return *v
	case *MoveToTrashPayload:
		return *v
	case *PermanentDeletePayload:
		return *v
	case *RecoverFromTrashPayload:
		return *v
	case *UndoPayload:
		return *v
	case *RedoPayload:
		return *v
	}
	return p
}
