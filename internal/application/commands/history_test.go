package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbor/internal/domain"
)

func nodeAt(id, parent, name string, version int64) *domain.TreeNode {
	return &domain.TreeNode{ID: id, ParentID: parent, Name: name, NodeType: "folder", Version: version}
}

func changeOf(id string, before, after *domain.TreeNode) Changeset {
	return Changeset{Nodes: []NodeChange{{ID: id, Before: before, After: after}}}
}

func TestHistory_Push(t *testing.T) {
	tests := []struct {
		name      string
		groups    []string
		wantUndo  int
		wantTopID string
	}{
		{name: "ungrouped stay apart", groups: []string{"", ""}, wantUndo: 2, wantTopID: "c1"},
		{name: "same group merges", groups: []string{"g", "g", "g"}, wantUndo: 1, wantTopID: "c2"},
		{name: "different groups stay apart", groups: []string{"g", "h"}, wantUndo: 2, wantTopID: "c1"},
		{name: "group interrupted", groups: []string{"g", "", "g"}, wantUndo: 3, wantTopID: "c2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHistory(0)
			for i, g := range tt.groups {
				id := "c" + string(rune('0'+i))
				h.Push(UndoRecord{CommandID: id, GroupID: g, Changes: changeOf(id, nil, nodeAt(id, "", id, 1))})
			}
			undo, redo := h.Depth()
			assert.Equal(t, tt.wantUndo, undo)
			assert.Zero(t, redo)

			_, top, ok := h.peekUndo("")
			require.True(t, ok)
			assert.Equal(t, tt.wantTopID, top.CommandID)
		})
	}
}

func TestHistory_UndoRedoMovesRecords(t *testing.T) {
	h := NewHistory(0)
	h.Push(UndoRecord{CommandID: "a", GroupID: "g", Changes: changeOf("a", nil, nodeAt("a", "", "a", 1))})
	h.Push(UndoRecord{CommandID: "b", Changes: changeOf("b", nil, nodeAt("b", "", "b", 1))})

	i, rec, ok := h.peekUndo("g")
	require.True(t, ok)
	assert.Equal(t, "a", rec.CommandID)
	h.completeUndo(i, changeOf("a", nodeAt("a", "", "a", 1), nil))

	undo, redo := h.Depth()
	assert.Equal(t, 1, undo)
	assert.Equal(t, 1, redo)

	// A record back from redo does not absorb the next push of its group
	i, _, ok = h.peekRedo("")
	require.True(t, ok)
	h.completeRedo(i, changeOf("a", nil, nodeAt("a", "", "a", 2)))
	h.Push(UndoRecord{CommandID: "c", GroupID: "g", Changes: changeOf("c", nil, nodeAt("c", "", "c", 1))})
	undo, redo = h.Depth()
	assert.Equal(t, 3, undo)
	assert.Zero(t, redo)

	_, _, ok = h.peekRedo("")
	assert.False(t, ok)
}

func TestHistory_Limit(t *testing.T) {
	h := NewHistory(3)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		h.Push(UndoRecord{CommandID: id})
	}
	undo, _ := h.Depth()
	assert.Equal(t, 3, undo)

	_, _, ok := h.peekUndo("")
	require.True(t, ok)
	i, rec, _ := h.peekUndo("")
	assert.Equal(t, 2, i)
	assert.Equal(t, "e", rec.CommandID)

	h.Clear()
	undo, redo := h.Depth()
	assert.Zero(t, undo+redo)
}

func TestChangeset_Merge(t *testing.T) {
	tests := []struct {
		name  string
		first Changeset
		later Changeset
		want  []NodeChange
	}{
		{
			name:  "create then delete drops out",
			first: changeOf("a", nil, nodeAt("a", "", "a", 1)),
			later: changeOf("a", nodeAt("a", "", "a", 1), nil),
		},
		{
			name:  "two renames keep the outer images",
			first: changeOf("a", nodeAt("a", "", "a", 1), nodeAt("a", "", "b", 2)),
			later: changeOf("a", nodeAt("a", "", "b", 2), nodeAt("a", "", "c", 3)),
			want:  []NodeChange{{ID: "a", Before: nodeAt("a", "", "a", 1), After: nodeAt("a", "", "c", 3)}},
		},
		{
			name:  "rows keep first-touch order",
			first: changeOf("b", nil, nodeAt("b", "", "b", 1)),
			later: Changeset{Nodes: []NodeChange{
				{ID: "a", Before: nil, After: nodeAt("a", "", "a", 1)},
				{ID: "b", Before: nodeAt("b", "", "b", 1), After: nodeAt("b", "a", "b", 2)},
			}},
			want: []NodeChange{
				{ID: "b", Before: nil, After: nodeAt("b", "a", "b", 2)},
				{ID: "a", Before: nil, After: nodeAt("a", "", "a", 1)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.first.Merge(tt.later)
			assert.Equal(t, tt.want, got.Nodes)
			assert.Equal(t, len(tt.want) == 0, got.Empty())
		})
	}
}
