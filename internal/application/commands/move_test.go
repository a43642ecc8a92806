package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"arbor/internal/application"
	"arbor/internal/domain"
)

func TestMoveNodes(t *testing.T) {
	// Tree: a/b/c, d, and "x" under both a and d
	type tree struct{ a, b, c, d, ax, dx string }
	build := func(h *harness) tree {
		var tr tree
		tr.a = h.folder("", "a")
		tr.b = h.folder(tr.a, "b")
		tr.c = h.folder(tr.b, "c")
		tr.d = h.folder("", "d")
		tr.ax = h.folder(tr.a, "x")
		tr.dx = h.folder(tr.d, "x")
		return tr
	}

	tests := []struct {
		name     string
		payload  func(tr tree) domain.MoveNodesPayload
		wantCode application.Code
		check    func(t *testing.T, h *harness, tr tree)
	}{
		{
			name:    "under sibling",
			payload: func(tr tree) domain.MoveNodesPayload { return domain.MoveNodesPayload{NodeIDs: []string{tr.b}, NewParentID: tr.d} },
			check: func(t *testing.T, h *harness, tr tree) {
				assert.Equal(t, tr.d, h.node(tr.b).ParentID)
				assert.Equal(t, tr.b, h.node(tr.c).ParentID)
			},
		},
		{
			name:     "under itself",
			payload:  func(tr tree) domain.MoveNodesPayload { return domain.MoveNodesPayload{NodeIDs: []string{tr.a}, NewParentID: tr.a} },
			wantCode: application.CodeCircularReference,
		},
		{
			name:     "under grandchild",
			payload:  func(tr tree) domain.MoveNodesPayload { return domain.MoveNodesPayload{NodeIDs: []string{tr.a}, NewParentID: tr.c} },
			wantCode: application.CodeCircularReference,
		},
		{
			name: "cycle later in the batch rolls back earlier moves",
			payload: func(tr tree) domain.MoveNodesPayload {
				return domain.MoveNodesPayload{NodeIDs: []string{tr.d, tr.a}, NewParentID: tr.b}
			},
			wantCode: application.CodeCircularReference,
			check: func(t *testing.T, h *harness, tr tree) {
				assert.Equal(t, "", h.node(tr.d).ParentID)
			},
		},
		{
			name:    "to root",
			payload: func(tr tree) domain.MoveNodesPayload { return domain.MoveNodesPayload{NodeIDs: []string{tr.c}} },
			check: func(t *testing.T, h *harness, tr tree) {
				assert.Equal(t, "", h.node(tr.c).ParentID)
			},
		},
		{
			name:    "name collision renames",
			payload: func(tr tree) domain.MoveNodesPayload { return domain.MoveNodesPayload{NodeIDs: []string{tr.dx}, NewParentID: tr.a} },
			check: func(t *testing.T, h *harness, tr tree) {
				assert.Equal(t, "x (2)", h.node(tr.dx).Name)
				assert.Equal(t, "x", h.node(tr.ax).Name)
			},
		},
		{
			name: "name collision with error policy",
			payload: func(tr tree) domain.MoveNodesPayload {
				return domain.MoveNodesPayload{NodeIDs: []string{tr.dx}, NewParentID: tr.a, OnNameConflict: domain.NameConflictError}
			},
			wantCode: application.CodeNameConflict,
		},
		{
			name:     "missing node",
			payload:  func(tr tree) domain.MoveNodesPayload { return domain.MoveNodesPayload{NodeIDs: []string{"ghost"}} },
			wantCode: application.CodeNodeNotFound,
		},
		{
			name:     "missing parent",
			payload:  func(tr tree) domain.MoveNodesPayload { return domain.MoveNodesPayload{NodeIDs: []string{tr.a}, NewParentID: "ghost"} },
			wantCode: application.CodeNodeNotFound,
		},
		{
			name: "into the trash",
			payload: func(tr tree) domain.MoveNodesPayload {
				return domain.MoveNodesPayload{NodeIDs: []string{tr.a}, NewParentID: domain.TrashRootID}
			},
			wantCode: application.CodeValidation,
		},
		{
			name:     "the trash itself",
			payload:  func(tr tree) domain.MoveNodesPayload { return domain.MoveNodesPayload{NodeIDs: []string{domain.TrashRootID}} },
			wantCode: application.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 0)
			tr := build(h)
			before := h.shape()

			res := h.submit(tt.payload(tr))
			assert.Equal(t, tt.wantCode, res.Code, res.Error)
			if tt.wantCode != application.CodeOK {
				assert.Equal(t, before, h.shape(), "a failed move changes nothing")
			}
			if tt.check != nil {
				tt.check(t, h, tr)
			}
		})
	}
}

func TestMoveNodes_TrashedNodeMustBeRecovered(t *testing.T) {
	h := newHarness(t, 0)
	a := h.folder("", "a")
	child := h.folder(a, "child")
	h.must(h.submit(domain.MoveToTrashPayload{NodeIDs: []string{a}}))

	res := h.submit(domain.MoveNodesPayload{NodeIDs: []string{child}})
	assert.Equal(t, application.CodeValidation, res.Code)

	res = h.submit(domain.MoveNodesPayload{NodeIDs: []string{h.folder("", "b")}, NewParentID: a})
	assert.Equal(t, application.CodeValidation, res.Code)
}
