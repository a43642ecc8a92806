package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbor/internal/adapters/sqlite"
	"arbor/internal/domain"
	"arbor/internal/ports"
)

type fixture struct {
	store   *sqlite.Store
	manager *Manager
}

func newFixture(t *testing.T, regs ...Registration) *fixture {
	t.Helper()
	store := sqlite.NewStore(nil)
	require.NoError(t, store.Open(filepath.Join(t.TempDir(), "arbor.db")))
	t.Cleanup(func() { store.Close() })

	registry := NewRegistry()
	registry.MustRegister(regs...)
	require.NoError(t, registry.Provision(context.Background(), store))

	return &fixture{store: store, manager: NewManager(registry, nil)}
}

func (f *fixture) inTx(t *testing.T, fn func(tx ports.NodeTx) error) error {
	t.Helper()
	ctx := context.Background()
	tx, err := f.store.BeginTx(ctx)
	require.NoError(t, err)
	if err := fn(tx); err != nil {
		require.NoError(t, tx.Rollback())
		return err
	}
	return tx.Commit()
}

func datasetRegistration() Registration {
	meta := datasetMeta()
	return Registration{Metadata: meta, Handler: NewTableHandler(meta)}
}

func testNode(id, nodeType string) domain.TreeNode {
	now := time.Now().UTC()
	return domain.TreeNode{ID: id, NodeType: nodeType, Name: id, Version: 1, CreatedAt: now, UpdatedAt: now}
}

func TestManager_RelationalReferenceCounting(t *testing.T) {
	f := newFixture(t, datasetRegistration())
	ctx := context.Background()

	// First node creates the resource from the seed field
	first := testNode("d1", "dataset")
	require.NoError(t, f.inTx(t, func(tx ports.NodeTx) error {
		return f.manager.CreateEntity(ctx, tx, first, json.RawMessage(`{"tableId":"t1","table":{"rows":3}}`), nil)
	}))

	// Two more reference it
	nodes := []domain.TreeNode{first, testNode("d2", "dataset"), testNode("d3", "dataset")}
	for _, n := range nodes[1:] {
		require.NoError(t, f.inTx(t, func(tx ports.NodeTx) error {
			return f.manager.CreateEntity(ctx, tx, n, json.RawMessage(`{"tableId":"t1"}`), nil)
		}))
	}

	res, err := f.store.GetResource(ctx, "table", "t1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 3, res.ReferenceCount)
	assert.Len(t, res.ReferencingNodeIDs, 3)
	assert.JSONEq(t, `{"rows":3}`, string(res.Data))

	link, err := f.store.GetEntity(ctx, "dataset", "d1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tableId":"t1"}`, string(link.Data), "seed field is moved onto the resource")

	// Deleting N-1 referrers keeps the resource alive
	for i, n := range nodes {
		require.NoError(t, f.inTx(t, func(tx ports.NodeTx) error {
			return f.manager.DeleteEntities(ctx, tx, []domain.TreeNode{n})
		}))

		res, err := f.store.GetResource(ctx, "table", "t1")
		require.NoError(t, err)
		if i < len(nodes)-1 {
			require.NotNil(t, res, "resource deleted after %d of %d deletions", i+1, len(nodes))
			assert.Equal(t, len(nodes)-i-1, res.ReferenceCount)
			assert.Equal(t, res.ReferenceCount, len(res.ReferencingNodeIDs))
		} else {
			assert.Nil(t, res, "resource must be deleted with the last referrer")
		}
	}
}

func TestManager_RelationalCreatesResourceWhenKeyMissing(t *testing.T) {
	f := newFixture(t, datasetRegistration())
	ctx := context.Background()

	n := testNode("d1", "dataset")
	require.NoError(t, f.inTx(t, func(tx ports.NodeTx) error {
		return f.manager.CreateEntity(ctx, tx, n, json.RawMessage(`{"table":{"rows":1}}`), nil)
	}))

	res, err := f.manager.ResourceOf(ctx, f.store, n)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"d1"}, res.ReferencingNodeIDs)
}

func TestManager_UpdateRelinks(t *testing.T) {
	f := newFixture(t, datasetRegistration())
	ctx := context.Background()
	n := testNode("d1", "dataset")

	require.NoError(t, f.inTx(t, func(tx ports.NodeTx) error {
		return f.manager.CreateEntity(ctx, tx, n, json.RawMessage(`{"tableId":"t1"}`), nil)
	}))
	require.NoError(t, f.inTx(t, func(tx ports.NodeTx) error {
		return f.manager.UpdateEntity(ctx, tx, n, json.RawMessage(`{"tableId":"t2"}`))
	}))

	old, err := f.store.GetResource(ctx, "table", "t1")
	require.NoError(t, err)
	assert.Nil(t, old)

	current, err := f.store.GetResource(ctx, "table", "t2")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, 1, current.ReferenceCount)

	// An update without a key keeps the link
	require.NoError(t, f.inTx(t, func(tx ports.NodeTx) error {
		return f.manager.UpdateEntity(ctx, tx, n, json.RawMessage(`{"label":"x"}`))
	}))
	link, err := f.store.GetEntity(ctx, "dataset", "d1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tableId":"t2","label":"x"}`, string(link.Data))
}

func TestManager_CascadeDelete(t *testing.T) {
	tests := []struct {
		name     string
		cascade  bool
		wantRows bool
	}{
		{name: "cascading peer loses its row", cascade: true, wantRows: false},
		{name: "non cascading peer keeps its row", cascade: false, wantRows: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := domain.EntityMetadata{
				NodeType:     "document",
				EntityType:   domain.EntityPeer,
				Relationship: domain.Relationship{Cardinality: domain.OneToOne, CascadeDelete: tt.cascade},
			}
			f := newFixture(t, Registration{Metadata: meta, Handler: NewTableHandler(meta)})
			ctx := context.Background()
			n := testNode("doc", "document")

			require.NoError(t, f.inTx(t, func(tx ports.NodeTx) error {
				return f.manager.CreateEntity(ctx, tx, n, json.RawMessage(`{"body":"x"}`), nil)
			}))
			require.NoError(t, f.inTx(t, func(tx ports.NodeTx) error {
				return f.manager.DeleteEntities(ctx, tx, []domain.TreeNode{n})
			}))

			rec, err := f.store.GetEntity(ctx, "document", "doc")
			require.NoError(t, err)
			assert.Equal(t, tt.wantRows, rec != nil)
		})
	}
}

func TestManager_GroupRowsKeepOrder(t *testing.T) {
	meta := domain.EntityMetadata{
		NodeType:     "stylemap",
		EntityType:   domain.EntityGroup,
		Relationship: domain.Relationship{Cardinality: domain.OneToMany, CascadeDelete: true},
	}
	f := newFixture(t, Registration{Metadata: meta, Handler: NewTableHandler(meta)})
	ctx := context.Background()
	src := testNode("s1", "stylemap")
	dst := testNode("s2", "stylemap")

	require.NoError(t, f.inTx(t, func(tx ports.NodeTx) error {
		return f.manager.CreateEntity(ctx, tx, src, json.RawMessage(`[{"c":"red"},{"c":"blue"},{"c":"green"}]`), nil)
	}))
	require.NoError(t, f.inTx(t, func(tx ports.NodeTx) error {
		return f.manager.DuplicateEntity(ctx, tx, src, dst, domain.IDMap{"s1": "s2"})
	}))

	for _, n := range []domain.TreeNode{src, dst} {
		data, err := f.manager.EntityData(ctx, f.store, n)
		require.NoError(t, err)
		assert.JSONEq(t, `[{"c":"red"},{"c":"blue"},{"c":"green"}]`, string(data))
	}

	recs, err := f.store.ListEntities(ctx, "stylemap", "s2")
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestManager_HookErrorAbortsWrite(t *testing.T) {
	meta := domain.EntityMetadata{NodeType: "document", EntityType: domain.EntityPeer}
	veto := errors.New("not today")
	var seen []string
	reg := Registration{
		Metadata: meta,
		Handler:  NewTableHandler(meta),
		Hooks: Hooks{
			BeforeCreate: func(ctx context.Context, ev HookEvent) error {
				seen = append(seen, "beforeCreate:"+ev.Node.ID)
				if ev.Node.ID == "blocked" {
					return veto
				}
				return nil
			},
			AfterCreate: func(ctx context.Context, ev HookEvent) error {
				seen = append(seen, fmt.Sprintf("afterCreate:%s:%s", ev.Node.ID, ev.Data))
				return nil
			},
		},
	}
	f := newFixture(t, reg)
	ctx := context.Background()

	err := f.inTx(t, func(tx ports.NodeTx) error {
		return f.manager.CreateEntity(ctx, tx, testNode("blocked", "document"), json.RawMessage(`{}`), nil)
	})
	assert.ErrorIs(t, err, veto)

	require.NoError(t, f.inTx(t, func(tx ports.NodeTx) error {
		return f.manager.CreateEntity(ctx, tx, testNode("ok", "document"), json.RawMessage(`{}`), nil)
	}))

	assert.Equal(t, []string{"beforeCreate:blocked", "beforeCreate:ok", "afterCreate:ok:{}"}, seen)
	rec, err := f.store.GetEntity(ctx, "document", "blocked")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestManager_DeleteHooksWithoutHandler(t *testing.T) {
	veto := errors.New("folder is pinned")
	var seen []string
	reg := Registration{
		Metadata: domain.EntityMetadata{NodeType: "folder"},
		Hooks: Hooks{
			BeforeDelete: func(ctx context.Context, ev HookEvent) error {
				seen = append(seen, "beforeDelete:"+ev.Node.ID)
				if ev.Node.ID == "pinned" {
					return veto
				}
				return nil
			},
			AfterDelete: func(ctx context.Context, ev HookEvent) error {
				seen = append(seen, "afterDelete:"+ev.Node.ID)
				return nil
			},
		},
	}
	f := newFixture(t, reg)
	ctx := context.Background()

	require.NoError(t, f.inTx(t, func(tx ports.NodeTx) error {
		return f.manager.DeleteEntities(ctx, tx, []domain.TreeNode{testNode("plain", "folder")})
	}))
	err := f.inTx(t, func(tx ports.NodeTx) error {
		return f.manager.DeleteEntities(ctx, tx, []domain.TreeNode{testNode("pinned", "folder")})
	})
	assert.ErrorIs(t, err, veto)

	assert.Equal(t, []string{"beforeDelete:plain", "afterDelete:plain", "beforeDelete:pinned"}, seen)
}
