package commands

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"arbor/internal/adapters/badger"
	"arbor/internal/adapters/sqlite"
	"arbor/internal/application/lifecycle"
	"arbor/internal/application/workingcopy"
	"arbor/internal/domain"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.TreeChangeEvent
}

func (r *recordingPublisher) Publish(events []domain.TreeChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

// drain returns and forgets everything published so far
func (r *recordingPublisher) drain() []domain.TreeChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

type harness struct {
	t         *testing.T
	store     *sqlite.Store
	ephemeral *badger.Store
	proc      *Processor
	published *recordingPublisher
}

func datasetMeta() domain.EntityMetadata {
	return domain.EntityMetadata{
		NodeType:     "dataset",
		EntityType:   domain.EntityRelational,
		Relationship: domain.Relationship{Cardinality: domain.ManyToMany, ForeignKey: "tableId"},
		ReferenceManagement: &domain.ReferenceManagement{
			CountField:         "referenceCount",
			NodeListField:      "referencingNodeIds",
			AutoDeleteWhenZero: true,
			DataField:          "table",
			ResourceKind:       "table",
		},
	}
}

func newHarness(t *testing.T, historyLimit int) *harness {
	t.Helper()
	ctx := context.Background()

	store := sqlite.NewStore(nil)
	require.NoError(t, store.Open(filepath.Join(t.TempDir(), "arbor.db")))
	t.Cleanup(func() { store.Close() })

	ephemeral, err := badger.Open(badger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { ephemeral.Close() })

	docMeta := domain.EntityMetadata{
		NodeType:     "document",
		EntityType:   domain.EntityPeer,
		Relationship: domain.Relationship{Cardinality: domain.OneToOne, CascadeDelete: true},
	}
	registry := lifecycle.NewRegistry()
	registry.MustRegister(
		lifecycle.Registration{Metadata: domain.EntityMetadata{NodeType: "folder"}},
		lifecycle.Registration{Metadata: docMeta, Handler: lifecycle.NewTableHandler(docMeta)},
		lifecycle.Registration{Metadata: datasetMeta(), Handler: lifecycle.NewTableHandler(datasetMeta())},
	)
	require.NoError(t, registry.Provision(ctx, store))

	entities := lifecycle.NewManager(registry, nil)
	published := &recordingPublisher{}
	proc := NewProcessor(Options{
		Store:         store,
		Ephemeral:     ephemeral,
		WorkingCopies: workingcopy.NewManager(store, ephemeral, entities, nil),
		Entities:      entities,
		Publisher:     published,
		HistoryLimit:  historyLimit,
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- proc.Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &harness{t: t, store: store, ephemeral: ephemeral, proc: proc, published: published}
}

func (h *harness) submit(payload domain.Payload) CommandResult {
	return h.submitGroup("", payload)
}

func (h *harness) submitGroup(groupID string, payload domain.Payload) CommandResult {
	h.t.Helper()
	return h.proc.Submit(context.Background(), domain.NewEnvelope(groupID, payload))
}

func (h *harness) must(res CommandResult) CommandResult {
	h.t.Helper()
	require.True(h.t, res.Success, "command failed: %s (%s)", res.Error, res.Code)
	return res
}

// create commits a draft and returns the new node id
func (h *harness) create(parentID, nodeType, name, data string) string {
	h.t.Helper()
	var raw json.RawMessage
	if data != "" {
		raw = json.RawMessage(data)
	}
	wc := h.must(h.submit(domain.CreateWorkingCopyPayload{ParentID: parentID, NodeType: nodeType, Name: name, Data: raw}))
	res := h.must(h.submit(domain.CommitWorkingCopyPayload{WorkingCopyID: wc.WorkingCopyID}))
	return res.NodeID
}

func (h *harness) folder(parentID, name string) string {
	h.t.Helper()
	return h.create(parentID, "folder", name, "")
}

func (h *harness) node(id string) *domain.TreeNode {
	h.t.Helper()
	n, err := h.store.GetNode(context.Background(), id)
	require.NoError(h.t, err)
	return n
}

func (h *harness) childNames(parentID string) []string {
	h.t.Helper()
	children, err := h.store.ListChildren(context.Background(), parentID)
	require.NoError(h.t, err)
	names := make([]string, len(children))
	for i, c := range children {
		names[i] = c.Name
	}
	return names
}

// shape returns id -> parent/name for every node, for state comparisons
// that ignore versions and timestamps
func (h *harness) shape() map[string]string {
	h.t.Helper()
	out := map[string]string{}
	err := h.store.ScanNodes(context.Background(), func(n domain.TreeNode) error {
		out[n.ID] = n.ParentID + "/" + n.Name
		return nil
	})
	require.NoError(h.t, err)
	return out
}
