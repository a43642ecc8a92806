package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"arbor/internal/domain"
)

// tree: r/a/b/c, r/d, x<->y cycle, t in the trash
func testParents() ParentOf {
	parents := map[string]string{
		"r": "", "a": "r", "b": "a", "c": "b", "d": "r",
		"x": "y", "y": "x",
		domain.TrashRootID: "", "t": domain.TrashRootID,
	}
	return func(id string) (string, bool) {
		p, ok := parents[id]
		return p, ok
	}
}

func TestDepthBelow(t *testing.T) {
	tests := []struct {
		name      string
		root      string
		id        string
		maxDepth  int
		wantDepth int
		wantOK    bool
	}{
		{name: "root itself", root: "a", id: "a", maxDepth: -1, wantDepth: 0, wantOK: true},
		{name: "child", root: "a", id: "b", maxDepth: -1, wantDepth: 1, wantOK: true},
		{name: "grandchild", root: "a", id: "c", maxDepth: -1, wantDepth: 2, wantOK: true},
		{name: "within depth", root: "r", id: "b", maxDepth: 2, wantDepth: 2, wantOK: true},
		{name: "beyond depth", root: "r", id: "c", maxDepth: 2},
		{name: "depth zero", root: "r", id: "a", maxDepth: 0},
		{name: "sibling branch", root: "a", id: "d", maxDepth: -1},
		{name: "cycle", root: "r", id: "x", maxDepth: -1},
		{name: "unknown", root: "r", id: "ghost", maxDepth: -1},
		{name: "root level", root: "", id: "c", maxDepth: -1, wantDepth: 4, wantOK: true},
		{name: "trash is not root level", root: "", id: "t", maxDepth: -1},
		{name: "inside the trash", root: domain.TrashRootID, id: "t", maxDepth: -1, wantDepth: 1, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			depth, ok := DepthBelow(testParents(), tt.root, tt.id, tt.maxDepth)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantDepth, depth)
		})
	}
}

func folderAt(id, parent string) *domain.TreeNode {
	return &domain.TreeNode{ID: id, ParentID: parent, NodeType: "folder", Name: id}
}

func created(id, parent string) domain.TreeChangeEvent {
	return domain.TreeChangeEvent{Type: domain.EventNodeCreated, NodeID: id, Node: folderAt(id, parent), ParentID: parent}
}

func moved(id, from, to string) domain.TreeChangeEvent {
	return domain.TreeChangeEvent{
		Type: domain.EventNodeUpdated, NodeID: id,
		Node: folderAt(id, to), PreviousNode: folderAt(id, from),
		ParentID: to, PreviousParentID: from,
	}
}

func deleted(id, parent string) domain.TreeChangeEvent {
	return domain.TreeChangeEvent{Type: domain.EventNodeDeleted, NodeID: id, PreviousNode: folderAt(id, parent), PreviousParentID: parent}
}

func childrenChanged(parent string, children ...string) domain.TreeChangeEvent {
	return domain.TreeChangeEvent{Type: domain.EventChildrenChanged, NodeID: parent, ParentID: parent, AffectedChildren: children}
}

func wcEvent(wc domain.WorkingCopy) domain.TreeChangeEvent {
	return domain.TreeChangeEvent{Type: domain.EventWorkingCopyUpdated, NodeID: wc.NodeID, WorkingCopy: &wc}
}

func TestChildrenFilter(t *testing.T) {
	f := ChildrenFilter{ParentID: "a"}
	tests := []struct {
		name string
		ev   domain.TreeChangeEvent
		want bool
	}{
		{name: "created under parent", ev: created("n", "a"), want: true},
		{name: "created elsewhere", ev: created("n", "d"), want: false},
		{name: "moved in", ev: moved("d", "r", "a"), want: true},
		{name: "moved out", ev: moved("b", "a", "r"), want: true},
		{name: "moved between others", ev: moved("c", "b", "r"), want: false},
		{name: "deleted from parent", ev: deleted("b", "a"), want: true},
		{name: "deleted grandchild", ev: deleted("c", "b"), want: false},
		{name: "own child list", ev: childrenChanged("a", "b"), want: true},
		{name: "other child list", ev: childrenChanged("b", "c"), want: false},
		{name: "the parent itself", ev: moved("a", "r", "d"), want: false},
		{name: "working copy", ev: wcEvent(domain.WorkingCopy{NodeID: "b", ParentID: "a"}), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Match(tt.ev, testParents()))
		})
	}
}

func TestChildrenFilter_NodeTypes(t *testing.T) {
	f := ChildrenFilter{ParentID: "a", NodeTypes: []string{"document"}}
	assert.False(t, f.Match(created("n", "a"), testParents()))

	doc := created("n", "a")
	doc.Node.NodeType = "document"
	assert.True(t, f.Match(doc, testParents()))
	assert.True(t, f.Match(childrenChanged("a", "n"), testParents()), "child lists carry no type")
}

func TestSubtreeFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter SubtreeFilter
		ev     domain.TreeChangeEvent
		want   bool
	}{
		{name: "root updated", filter: SubtreeFilter{RootID: "a", MaxDepth: -1}, ev: moved("a", "r", "d"), want: true},
		{name: "deep update", filter: SubtreeFilter{RootID: "a", MaxDepth: -1}, ev: moved("c", "b", "b"), want: true},
		{name: "moved out", filter: SubtreeFilter{RootID: "a", MaxDepth: -1}, ev: moved("c", "b", "d"), want: true},
		{name: "unrelated", filter: SubtreeFilter{RootID: "a", MaxDepth: -1}, ev: moved("d", "r", "r"), want: false},
		{name: "too deep", filter: SubtreeFilter{RootID: "a", MaxDepth: 1}, ev: created("n", "b"), want: false},
		{name: "within depth", filter: SubtreeFilter{RootID: "a", MaxDepth: 2}, ev: created("n", "b"), want: true},
		{name: "deleted below", filter: SubtreeFilter{RootID: "a", MaxDepth: -1}, ev: deleted("c", "b"), want: true},
		{name: "child list in range", filter: SubtreeFilter{RootID: "a", MaxDepth: 2}, ev: childrenChanged("b", "c"), want: true},
		{name: "child list past range", filter: SubtreeFilter{RootID: "a", MaxDepth: 1}, ev: childrenChanged("b", "c"), want: false},
		{name: "cycle is outside", filter: SubtreeFilter{RootID: "r", MaxDepth: -1}, ev: moved("x", "y", "y"), want: false},
		{name: "root level sees live nodes", filter: SubtreeFilter{MaxDepth: -1}, ev: created("n", "c"), want: true},
		{name: "root level skips trash", filter: SubtreeFilter{MaxDepth: -1}, ev: created("n", "t"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parents := testParents()
			// created nodes resolve through their own event
			resolve := func(id string) (string, bool) {
				if tt.ev.Node != nil && id == tt.ev.NodeID {
					return tt.ev.Node.ParentID, true
				}
				return parents(id)
			}
			assert.Equal(t, tt.want, tt.filter.Match(tt.ev, resolve))
		})
	}
}

func TestWorkingCopyFilter(t *testing.T) {
	edit := domain.WorkingCopy{ID: "w1", NodeID: "a", NodeType: "folder"}
	other := domain.WorkingCopy{ID: "w2", NodeID: "b", NodeType: "folder"}
	draft := domain.WorkingCopy{ID: "w3", IsDraft: true, ParentID: "a", NodeType: "folder"}

	tests := []struct {
		name   string
		filter WorkingCopyFilter
		ev     domain.TreeChangeEvent
		want   bool
	}{
		{name: "edit of the node", filter: WorkingCopyFilter{NodeID: "a"}, ev: wcEvent(edit), want: true},
		{name: "edit of another node", filter: WorkingCopyFilter{NodeID: "a"}, ev: wcEvent(other), want: false},
		{name: "any edit", filter: WorkingCopyFilter{}, ev: wcEvent(other), want: true},
		{name: "draft hidden", filter: WorkingCopyFilter{}, ev: wcEvent(draft), want: false},
		{name: "draft shown", filter: WorkingCopyFilter{IncludeAllDrafts: true}, ev: wcEvent(draft), want: true},
		{name: "tree event", filter: WorkingCopyFilter{}, ev: created("n", "a"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(tt.ev, nil))
		})
	}
}

func TestNodeFilter(t *testing.T) {
	f := NodeFilter{NodeID: "b"}
	assert.True(t, f.Match(moved("b", "a", "r"), nil))
	assert.True(t, f.Match(childrenChanged("b", "c"), nil))
	assert.False(t, f.Match(moved("c", "b", "r"), nil))
	assert.False(t, f.Match(wcEvent(domain.WorkingCopy{NodeID: "b"}), nil))

	typed := NodeFilter{NodeID: "b", NodeTypes: []string{"document"}}
	assert.False(t, typed.Match(deleted("b", "a"), nil))
}
