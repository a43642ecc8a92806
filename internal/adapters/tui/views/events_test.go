package views

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"arbor/internal/domain"
)

func TestFormatEvent(t *testing.T) {
	before := &domain.TreeNode{ID: "n1", Name: "Draft", ParentID: "p1"}
	after := &domain.TreeNode{ID: "n1", Name: "Final", ParentID: "p2"}

	tests := []struct {
		name string
		ev   domain.TreeChangeEvent
		want string
	}{
		{"created", domain.TreeChangeEvent{Type: domain.EventNodeCreated, Seq: 3, Node: after}, "+ Final"},
		{"deleted", domain.TreeChangeEvent{Type: domain.EventNodeDeleted, Seq: 4, NodeID: "n1", PreviousNode: before}, "- Draft"},
		{"renamed", domain.TreeChangeEvent{Type: domain.EventNodeUpdated, Seq: 5, Node: after, PreviousNode: before}, "~ Draft -> Final"},
		{"moved", domain.TreeChangeEvent{Type: domain.EventNodeUpdated, Seq: 6, Node: after, ParentID: "p2", PreviousParentID: "p1"}, "~ Final moved"},
		{"children", domain.TreeChangeEvent{Type: domain.EventChildrenChanged, Seq: 7, NodeID: "p2", AffectedChildren: []string{"n1"}}, "children of p2 (1)"},
		{"snapshot", domain.TreeChangeEvent{Type: domain.EventSnapshot, Nodes: []domain.TreeNode{*after}}, "snapshot of 1 nodes"},
		{"working copy", domain.TreeChangeEvent{Type: domain.EventWorkingCopyCreated, Seq: 8}, "working-copy-created"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := FormatEvent(tt.ev)
			assert.Contains(t, line, tt.want)
			assert.Contains(t, line, fmt.Sprintf("#%d", tt.ev.Seq))
		})
	}
}

func TestEventLog_KeepsTail(t *testing.T) {
	m := NewEventLogModel(80, 5)
	for i := range maxEventLines + 10 {
		m.Append(domain.TreeChangeEvent{Type: domain.EventNodeCreated, Seq: int64(i + 1), NodeID: fmt.Sprintf("n%d", i+1)})
	}
	assert.Equal(t, maxEventLines, m.Len())
	assert.Contains(t, m.View(), fmt.Sprintf("n%d", maxEventLines+10))
	assert.NotContains(t, m.View(), "#1 ")
}
