package commands

import (
	"slices"
	"time"

	"arbor/internal/domain"
)

// Publisher receives the events of each committed command, in commit order
type Publisher interface {
	Publish(events []domain.TreeChangeEvent)
}

// changeEvents derives the notifications for a committed changeset. Node
// events come first in write order, then one children-changed event per
// surviving parent whose child list changed.
func changeEvents(cs Changeset, seq int64, commandID string, at time.Time) []domain.TreeChangeEvent {
	stamp := func(ev domain.TreeChangeEvent) domain.TreeChangeEvent {
		ev.Seq = seq
		ev.CommandID = commandID
		ev.Timestamp = at
		return ev
	}

	// Parents created or deleted by this command get no children event
	transient := make(map[string]bool)
	for _, c := range cs.Nodes {
		if c.Before == nil || c.After == nil {
			transient[c.ID] = true
		}
	}

	var events []domain.TreeChangeEvent
	var parents []string
	affected := make(map[string][]string)
	touch := func(parentID, childID string) {
		if transient[parentID] {
			return
		}
		if _, ok := affected[parentID]; !ok {
			parents = append(parents, parentID)
		}
		if !slices.Contains(affected[parentID], childID) {
			affected[parentID] = append(affected[parentID], childID)
		}
	}

	for _, c := range cs.Nodes {
		switch {
		case c.Before == nil:
			events = append(events, stamp(domain.TreeChangeEvent{
				Type:     domain.EventNodeCreated,
				NodeID:   c.ID,
				Node:     c.After,
				ParentID: c.After.ParentID,
			}))
			touch(c.After.ParentID, c.ID)
		case c.After == nil:
			events = append(events, stamp(domain.TreeChangeEvent{
				Type:             domain.EventNodeDeleted,
				NodeID:           c.ID,
				PreviousNode:     c.Before,
				PreviousParentID: c.Before.ParentID,
			}))
			touch(c.Before.ParentID, c.ID)
		default:
			events = append(events, stamp(domain.TreeChangeEvent{
				Type:             domain.EventNodeUpdated,
				NodeID:           c.ID,
				Node:             c.After,
				PreviousNode:     c.Before,
				ParentID:         c.After.ParentID,
				PreviousParentID: c.Before.ParentID,
			}))
			if c.Before.ParentID != c.After.ParentID {
				touch(c.Before.ParentID, c.ID)
				touch(c.After.ParentID, c.ID)
			} else if c.Before.Name != c.After.Name {
				// Order by name changed
				touch(c.After.ParentID, c.ID)
			}
		}
	}

	for _, parentID := range parents {
		children := affected[parentID]
		slices.Sort(children)
		events = append(events, stamp(domain.TreeChangeEvent{
			Type:             domain.EventChildrenChanged,
			NodeID:           parentID,
			ParentID:         parentID,
			AffectedChildren: children,
		}))
	}
	return events
}

// workingCopyEvent builds the single event of a working copy command
func workingCopyEvent(t domain.EventType, wc *domain.WorkingCopy, seq int64, commandID string, at time.Time) domain.TreeChangeEvent {
	return domain.TreeChangeEvent{
		Type:        t,
		NodeID:      wc.NodeID,
		ParentID:    wc.ParentID,
		WorkingCopy: wc,
		Seq:         seq,
		CommandID:   commandID,
		Timestamp:   at,
	}
}
