package domain

import "time"

// EventType classifies a change notification
type EventType string

const (
	EventNodeCreated     EventType = "node-created"
	EventNodeUpdated     EventType = "node-updated"
	EventNodeDeleted     EventType = "node-deleted"
	EventChildrenChanged EventType = "children-changed"

	// EventSnapshot carries current state when a subscription opens
	EventSnapshot EventType = "snapshot"

	// Working copy events only reach working copy subscriptions
	EventWorkingCopyCreated   EventType = "working-copy-created"
	EventWorkingCopyUpdated   EventType = "working-copy-updated"
	EventWorkingCopyCommitted EventType = "working-copy-committed"
	EventWorkingCopyDiscarded EventType = "working-copy-discarded"
)

// IsWorkingCopyEvent reports whether the type belongs to the working copy family
func (t EventType) IsWorkingCopyEvent() bool {
	switch t {
	case EventWorkingCopyCreated, EventWorkingCopyUpdated, EventWorkingCopyCommitted, EventWorkingCopyDiscarded:
		return true
	}
	return false
}

// TreeChangeEvent describes one effect of a committed command.
// All events of a command share Seq and CommandID.
type TreeChangeEvent struct {
	Type             EventType    `json:"type"`
	NodeID           string       `json:"nodeId,omitempty"`
	Node             *TreeNode    `json:"node,omitempty"`
	PreviousNode     *TreeNode    `json:"previousNode,omitempty"`
	ParentID         string       `json:"parentId,omitempty"`
	PreviousParentID string       `json:"previousParentId,omitempty"`
	AffectedChildren []string     `json:"affectedChildren,omitempty"`
	WorkingCopy      *WorkingCopy `json:"workingCopy,omitempty"`

	// Nodes and WorkingCopies hold current state for snapshot events
	Nodes         []TreeNode    `json:"nodes,omitempty"`
	WorkingCopies []WorkingCopy `json:"workingCopies,omitempty"`

	Seq       int64     `json:"seq"`
	CommandID string    `json:"commandId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Moved reports whether an update changed the node's parent
func (e TreeChangeEvent) Moved() bool {
	return e.Type == EventNodeUpdated && e.ParentID != e.PreviousParentID
}
