package events

import (
	"slices"

	"arbor/internal/application"
	"arbor/internal/domain"
)

// ParentOf resolves the parent of id as of the event being matched.
// ok is false for ids the resolver does not know.
type ParentOf func(id string) (parentID string, ok bool)

// Filter decides whether a subscriber sees a published event. Implementations
// hold no state and have no side effects. Snapshot events bypass filters.
type Filter interface {
	Match(ev domain.TreeChangeEvent, parents ParentOf) bool
}

// Scope names a subscription kind
type Scope string

const (
	ScopeNode          Scope = "node"
	ScopeChildren      Scope = "children"
	ScopeSubtree       Scope = "subtree"
	ScopeWorkingCopies Scope = "workingCopies"
)

// NodeFilter passes events about one node
type NodeFilter struct {
	NodeID    string
	NodeTypes []string
}

func (f NodeFilter) Match(ev domain.TreeChangeEvent, _ ParentOf) bool {
	if ev.Type.IsWorkingCopyEvent() || ev.NodeID != f.NodeID {
		return false
	}
	return typeAllowed(f.NodeTypes, ev)
}

// ChildrenFilter passes events about the direct children of ParentID,
// including children moving in or out, and the parent's own child-list
// notifications
type ChildrenFilter struct {
	ParentID  string
	NodeTypes []string
}

func (f ChildrenFilter) Match(ev domain.TreeChangeEvent, _ ParentOf) bool {
	switch ev.Type {
	case domain.EventChildrenChanged:
		return ev.NodeID == f.ParentID
	case domain.EventNodeCreated:
		return ev.ParentID == f.ParentID && typeAllowed(f.NodeTypes, ev)
	case domain.EventNodeDeleted:
		return ev.PreviousParentID == f.ParentID && typeAllowed(f.NodeTypes, ev)
	case domain.EventNodeUpdated:
		return (ev.ParentID == f.ParentID || ev.PreviousParentID == f.ParentID) && typeAllowed(f.NodeTypes, ev)
	}
	return false
}

// SubtreeFilter passes events about RootID and the nodes below it, at most
// MaxDepth levels down. A negative MaxDepth means unbounded.
type SubtreeFilter struct {
	RootID    string
	MaxDepth  int
	NodeTypes []string
}

func (f SubtreeFilter) Match(ev domain.TreeChangeEvent, parents ParentOf) bool {
	switch ev.Type {
	case domain.EventChildrenChanged:
		return f.holdsChildrenOf(ev.NodeID, parents)
	case domain.EventNodeCreated, domain.EventNodeDeleted:
		return f.holds(ev.NodeID, parents) && typeAllowed(f.NodeTypes, ev)
	case domain.EventNodeUpdated:
		if !typeAllowed(f.NodeTypes, ev) {
			return false
		}
		if f.holds(ev.NodeID, parents) {
			return true
		}
		// Moved out: it was inside while under its previous parent
		return ev.Moved() && f.holdsChildrenOf(ev.PreviousParentID, parents)
	}
	return false
}

func (f SubtreeFilter) holds(id string, parents ParentOf) bool {
	_, ok := DepthBelow(parents, f.RootID, id, f.MaxDepth)
	return ok
}

// holdsChildrenOf reports whether children of parentID fall inside the range
func (f SubtreeFilter) holdsChildrenOf(parentID string, parents ParentOf) bool {
	d, ok := DepthBelow(parents, f.RootID, parentID, f.MaxDepth)
	return ok && (f.MaxDepth < 0 || d+1 <= f.MaxDepth)
}

// WorkingCopyFilter passes working copy events. With NodeID set only edits
// of that node pass; drafts pass only with IncludeAllDrafts.
type WorkingCopyFilter struct {
	NodeID           string
	IncludeAllDrafts bool
}

func (f WorkingCopyFilter) Match(ev domain.TreeChangeEvent, _ ParentOf) bool {
	if !ev.Type.IsWorkingCopyEvent() || ev.WorkingCopy == nil {
		return false
	}
	wc := ev.WorkingCopy
	if wc.IsDraft {
		return f.IncludeAllDrafts
	}
	return f.NodeID == "" || wc.NodeID == f.NodeID
}

// DepthBelow reports how many levels id sits below rootID by walking parent
// pointers. An empty rootID stands for the root level, which holds every node
// with a parent chain ending at a root outside the trash. The walk gives up past maxDepth
// (negative means unbounded) and treats a cycle as "not a descendant".
func DepthBelow(parents ParentOf, rootID, id string, maxDepth int) (int, bool) {
	limit := maxDepth
	if limit < 0 || limit > application.MaxDepth {
		limit = application.MaxDepth
	}

	visited := make(map[string]bool)
	depth := 0
	for cur := id; ; depth++ {
		if cur == rootID {
			return depth, true
		}
		if cur == "" || cur == domain.TrashRootID || visited[cur] || depth >= limit {
			return 0, false
		}
		visited[cur] = true

		parentID, ok := parents(cur)
		if !ok {
			return 0, false
		}
		cur = parentID
	}
}

func typeAllowed(types []string, ev domain.TreeChangeEvent) bool {
	if len(types) == 0 {
		return true
	}
	n := ev.Node
	if n == nil {
		n = ev.PreviousNode
	}
	return n != nil && slices.Contains(types, n.NodeType)
}
