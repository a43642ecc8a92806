package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbor/internal/domain"
)

func TestDuplicateNodes(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	a := h.folder("", "Maps")
	doc := h.create(a, "document", "readme", `{"body":"see `+a+`"}`)
	h.folder(a, "nested")

	res := h.must(h.submit(domain.DuplicateNodesPayload{NodeIDs: []string{a, doc}}))
	require.Len(t, res.NodeIDs, 1, "doc is copied with its ancestor only once")

	copyID := res.NodeIDs[0]
	cp := h.node(copyID)
	assert.Equal(t, "Maps (Copy)", cp.Name)
	assert.Equal(t, int64(1), cp.Version)
	assert.ElementsMatch(t, []string{"nested", "readme"}, h.childNames(copyID))
	assert.Equal(t, 2, cp.DescendantCount)

	// Entity data follows the copy and points at copied ids
	docCopy := res.IDMap[doc]
	require.NotEmpty(t, docCopy)
	rec, err := h.store.GetEntity(ctx, "document", docCopy)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.JSONEq(t, `{"body":"see `+a+`"}`, string(rec.Data), "only whole-string ids are remapped")

	again := h.must(h.submit(domain.DuplicateNodesPayload{NodeIDs: []string{a}}))
	assert.Equal(t, "Maps (Copy) (2)", h.node(again.NodeID).Name)
}

func TestDuplicateNodes_RemapsInternalReferences(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	a := h.folder("", "A")
	target := h.folder(a, "target")
	doc := h.create(a, "document", "link", `{"ref":"`+target+`"}`)

	res := h.must(h.submit(domain.DuplicateNodesPayload{NodeIDs: []string{a}}))

	rec, err := h.store.GetEntity(ctx, "document", res.IDMap[doc])
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.JSONEq(t, `{"ref":"`+res.IDMap[target]+`"}`, string(rec.Data))
}

func TestDuplicateNodes_SharesRelationalResource(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	ds := h.create("", "dataset", "cities", `{"tableId":"t1","table":{"rows":2}}`)

	res := h.must(h.submit(domain.DuplicateNodesPayload{NodeIDs: []string{ds}}))

	table, err := h.store.GetResource(ctx, "table", "t1")
	require.NoError(t, err)
	require.NotNil(t, table)
	assert.ElementsMatch(t, []string{ds, res.NodeID}, table.ReferencingNodeIDs)
	assert.Equal(t, 2, table.ReferenceCount)
}
