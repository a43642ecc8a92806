package commands

import (
	"sync"
	"time"

	"arbor/internal/domain"
)

// DefaultHistoryLimit bounds the undo and redo stacks
const DefaultHistoryLimit = 100

// UndoRecord is one undoable unit: a command, or a run of commands that
// shared a group id
type UndoRecord struct {
	CommandID string
	GroupID   string
	Kind      domain.CommandKind
	Changes   Changeset
	At        time.Time
}

// History holds the undo and redo stacks. The top of each stack is the last
// element.
type History struct {
	mu    sync.Mutex
	limit int
	undo  []UndoRecord
	redo  []UndoRecord

	// mergeable is set while the top of the undo stack was the last thing
	// pushed, so a following command of the same group may join it
	mergeable bool
}

// NewHistory creates a history keeping at most limit records per stack
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Push records a newly applied command and clears the redo stack. A command
// that changed nothing leaves no record but still clears redo.
func (h *History) Push(rec UndoRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.redo = nil
	n := len(h.undo)
	if rec.Changes.Empty() {
		if n == 0 || rec.GroupID == "" || h.undo[n-1].GroupID != rec.GroupID {
			h.mergeable = false
		}
		return
	}
	if h.mergeable && n > 0 && rec.GroupID != "" && h.undo[n-1].GroupID == rec.GroupID {
		top := &h.undo[n-1]
		top.Changes = top.Changes.Merge(rec.Changes)
		top.CommandID = rec.CommandID
		top.At = rec.At
		return
	}
	h.undo = trim(append(h.undo, rec), h.limit)
	h.mergeable = true
}

// Depth returns the sizes of the undo and redo stacks
func (h *History) Depth() (undo, redo int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo), len(h.redo)
}

// Clear drops both stacks
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.undo, h.redo = nil, nil
	h.mergeable = false
}

// peekUndo finds the record undo would revert: the latest one, or the latest
// one of groupID. The stacks are not changed.
func (h *History) peekUndo(groupID string) (int, UndoRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return find(h.undo, groupID)
}

func (h *History) peekRedo(groupID string) (int, UndoRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return find(h.redo, groupID)
}

// completeUndo moves the undo record at i to the redo stack, replacing its
// changes with the inverse that was applied
func (h *History) completeUndo(i int, inverse Changeset) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec := h.undo[i]
	rec.Changes = inverse
	h.undo = append(h.undo[:i], h.undo[i+1:]...)
	h.redo = trim(append(h.redo, rec), h.limit)
	h.mergeable = false
}

func (h *History) completeRedo(i int, inverse Changeset) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec := h.redo[i]
	rec.Changes = inverse
	h.redo = append(h.redo[:i], h.redo[i+1:]...)
	h.undo = trim(append(h.undo, rec), h.limit)
	h.mergeable = false
}

func find(stack []UndoRecord, groupID string) (int, UndoRecord, bool) {
	for i := len(stack) - 1; i >= 0; i-- {
		if groupID == "" || stack[i].GroupID == groupID {
			return i, stack[i], true
		}
	}
	return 0, UndoRecord{}, false
}

func trim(stack []UndoRecord, limit int) []UndoRecord {
	if len(stack) <= limit {
		return stack
	}
	return append([]UndoRecord(nil), stack[len(stack)-limit:]...)
}
