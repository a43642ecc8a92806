package query

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbor/internal/adapters/sqlite"
	"arbor/internal/application"
	"arbor/internal/application/lifecycle"
	"arbor/internal/domain"
)

type fixture struct {
	store *sqlite.Store
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := sqlite.NewStore(nil)
	require.NoError(t, store.Open(filepath.Join(t.TempDir(), "arbor.db")))
	t.Cleanup(func() { store.Close() })

	docMeta := domain.EntityMetadata{NodeType: "document", EntityType: domain.EntityPeer}
	dsMeta := domain.EntityMetadata{
		NodeType:     "dataset",
		EntityType:   domain.EntityRelational,
		Relationship: domain.Relationship{Cardinality: domain.ManyToMany, ForeignKey: "tableId"},
		ReferenceManagement: &domain.ReferenceManagement{
			CountField: "referenceCount", NodeListField: "referencingNodeIds",
			AutoDeleteWhenZero: true, DataField: "table", ResourceKind: "table",
		},
	}
	registry := lifecycle.NewRegistry()
	registry.MustRegister(
		lifecycle.Registration{Metadata: domain.EntityMetadata{NodeType: "folder"}},
		lifecycle.Registration{Metadata: docMeta, Handler: lifecycle.NewTableHandler(docMeta)},
		lifecycle.Registration{Metadata: dsMeta, Handler: lifecycle.NewTableHandler(dsMeta)},
	)
	require.NoError(t, registry.Provision(context.Background(), store))

	return &fixture{store: store, svc: NewService(store, lifecycle.NewManager(registry, nil), nil)}
}

func folder(id, parent, name string) domain.TreeNode {
	now := time.Now().UTC()
	return domain.TreeNode{ID: id, ParentID: parent, NodeType: "folder", Name: name, CreatedAt: now, UpdatedAt: now, Version: 1}
}

// put writes rows as given, malformed ones included
func (f *fixture) put(t *testing.T, nodes ...domain.TreeNode) {
	t.Helper()
	ctx := context.Background()
	tx, err := f.store.BeginTx(ctx)
	require.NoError(t, err)
	for _, n := range nodes {
		require.NoError(t, tx.PutNode(ctx, n))
	}
	require.NoError(t, tx.Commit())
}

// tree: a/b/c, a/d, e; x<->y form a parent cycle
func (f *fixture) seed(t *testing.T) {
	f.put(t,
		folder("a", "", "Alpha"),
		folder("b", "a", "Beta"),
		folder("c", "b", "Gamma"),
		folder("d", "a", "Delta"),
		folder("e", "", "Epsilon"),
		folder("x", "y", "Loop x"),
		folder("y", "x", "Loop y"),
	)
}

func ids(nodes []domain.TreeNode) []string {
	return domain.NodeIDs(nodes)
}

func TestGetNode(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	n, err := f.svc.GetNode(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "Beta", n.Name)

	_, err = f.svc.GetNode(ctx, "missing")
	assert.ErrorIs(t, err, application.ErrNodeNotFound)

	_, err = f.svc.GetNode(ctx, "")
	assert.ErrorIs(t, err, application.ErrValidation)
}

func TestGetChildren_Paged(t *testing.T) {
	f := newFixture(t)
	f.put(t, folder("p", "", "p"))
	for _, name := range []string{"e", "B", "a", "d", "C"} {
		f.put(t, folder("p-"+name, "p", name))
	}
	ctx := context.Background()

	tests := []struct {
		name      string
		offset    int
		limit     int
		wantNames []string
		wantMore  bool
	}{
		{name: "first page", offset: 0, limit: 2, wantNames: []string{"a", "B"}, wantMore: true},
		{name: "middle page", offset: 2, limit: 2, wantNames: []string{"C", "d"}, wantMore: true},
		{name: "last page", offset: 4, limit: 2, wantNames: []string{"e"}},
		{name: "past the end", offset: 9, limit: 2, wantNames: []string{}},
		{name: "default limit", offset: 0, limit: 0, wantNames: []string{"a", "B", "C", "d", "e"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.svc.GetChildren(ctx, "p", tt.offset, tt.limit)
			require.NoError(t, err)
			names := make([]string, len(page.Nodes))
			for i, n := range page.Nodes {
				names[i] = n.Name
			}
			assert.Equal(t, tt.wantNames, names)
			assert.Equal(t, 5, page.Total)
			assert.Equal(t, tt.wantMore, page.HasMore)
		})
	}

	_, err := f.svc.GetChildren(ctx, "p", -1, 0)
	assert.ErrorIs(t, err, application.ErrValidation)
	_, err = f.svc.GetChildren(ctx, "missing", 0, 0)
	assert.ErrorIs(t, err, application.ErrNodeNotFound)
}

func TestGetChildren_RootHidesTrash(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	page, err := f.svc.GetChildren(context.Background(), "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "e"}, ids(page.Nodes))
}

func TestGetDescendants(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		id       string
		maxDepth int
		want     []string
	}{
		{name: "unbounded", id: "a", maxDepth: -1, want: []string{"b", "d", "c"}},
		{name: "children only", id: "a", maxDepth: 1, want: []string{"b", "d"}},
		{name: "depth zero", id: "a", maxDepth: 0, want: []string{}},
		{name: "leaf", id: "c", maxDepth: -1, want: []string{}},
		{name: "cycle terminates", id: "x", maxDepth: -1, want: []string{"y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.GetDescendants(ctx, tt.id, tt.maxDepth)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestGetAncestorsAndPath(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	chain, err := f.svc.GetAncestors(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(chain))

	path, err := f.svc.GetPathToRoot(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(path))

	chain, err = f.svc.GetAncestors(ctx, "e")
	require.NoError(t, err)
	assert.Empty(t, chain)

	// A cycle stops the walk instead of failing
	chain, err = f.svc.GetAncestors(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, ids(chain))
}

func TestFilterNodesByType(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	trashed := folder("t", domain.TrashRootID, "Trashed")
	trashed.TrashedFrom = "a"
	trashed.TrashedAt = time.Now()
	f.put(t, trashed, folder("tc", "t", "Trashed child"), folder("orphan", "gone", "Orphan"))
	ctx := context.Background()

	live, err := f.svc.FilterNodesByType(ctx, "folder", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "d", "e", "c"}, ids(live), "sorted by name, cycles and orphans left out")

	all, err := f.svc.FilterNodesByType(ctx, "folder", true)
	require.NoError(t, err)
	assert.Contains(t, ids(all), "t")
	assert.Contains(t, ids(all), "tc")
	assert.NotContains(t, ids(all), "x")
	assert.NotContains(t, ids(all), domain.TrashRootID)

	none, err := f.svc.FilterNodesByType(ctx, "document", false)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestExportNodes(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()
	f.put(t, domain.TreeNode{ID: "doc", ParentID: "b", NodeType: "document", Name: "readme", Version: 1})
	f.put(t, domain.TreeNode{ID: "ds", ParentID: "a", NodeType: "dataset", Name: "cities", Version: 1})

	tx, err := f.store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.PutEntity(ctx, domain.EntityRecord{Kind: "document", ID: "doc", NodeID: "doc", Data: json.RawMessage(`{"body":"hi"}`)}))
	require.NoError(t, tx.PutEntity(ctx, domain.EntityRecord{Kind: "dataset", ID: "ds", NodeID: "ds", Data: json.RawMessage(`{"tableId":"t1"}`)}))
	require.NoError(t, tx.PutResource(ctx, domain.RelationalResource{Kind: "table", ID: "t1", ReferenceCount: 1, ReferencingNodeIDs: []string{"ds"}, Data: json.RawMessage(`{"rows":2}`)}))
	require.NoError(t, tx.Commit())

	// b is covered by a and is not a root of its own
	snap, err := f.svc.ExportNodes(ctx, []string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, domain.SnapshotFormat, snap.Format)
	assert.Equal(t, []string{"a"}, snap.Roots)
	assert.Len(t, snap.Nodes, 6)

	root, ok := snap.Node("a")
	require.True(t, ok)
	assert.Empty(t, root.ParentID)
	doc, ok := snap.Node("doc")
	require.True(t, ok)
	assert.Equal(t, "b", doc.ParentID)
	assert.JSONEq(t, `{"body":"hi"}`, string(doc.Entity))

	res, ok := snap.Resource("table", "t1")
	require.True(t, ok)
	assert.JSONEq(t, `{"rows":2}`, string(res.Data))

	_, err = f.svc.CopyNodes(ctx, []string{domain.TrashRootID})
	assert.ErrorIs(t, err, application.ErrValidation)
	_, err = f.svc.CopyNodes(ctx, []string{"missing"})
	assert.ErrorIs(t, err, application.ErrNodeNotFound)
}

func TestCopyNodes_SubtreeRootParentCleared(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	snap, err := f.svc.CopyNodes(context.Background(), []string{"c", "d"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, snap.Roots)
	for _, n := range snap.Nodes {
		assert.Empty(t, n.ParentID)
	}
}
