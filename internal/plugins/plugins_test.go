package plugins_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbor/internal/adapters/badger"
	"arbor/internal/adapters/sqlite"
	"arbor/internal/application"
	"arbor/internal/application/commands"
	"arbor/internal/application/lifecycle"
	"arbor/internal/application/workingcopy"
	"arbor/internal/domain"
	"arbor/internal/plugins"
)

type fixture struct {
	t     *testing.T
	store *sqlite.Store
	proc  *commands.Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := sqlite.NewStore(nil)
	require.NoError(t, store.Open(filepath.Join(t.TempDir(), "arbor.db")))
	t.Cleanup(func() { store.Close() })

	ephemeral, err := badger.Open(badger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { ephemeral.Close() })

	registry := lifecycle.NewRegistry()
	require.NoError(t, plugins.Register(registry))
	require.NoError(t, registry.Provision(ctx, store))

	entities := lifecycle.NewManager(registry, nil)
	proc := commands.NewProcessor(commands.Options{
		Store:         store,
		Ephemeral:     ephemeral,
		WorkingCopies: workingcopy.NewManager(store, ephemeral, entities, nil),
		Entities:      entities,
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- proc.Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &fixture{t: t, store: store, proc: proc}
}

func (f *fixture) create(parentID, nodeType, name, data string) commands.CommandResult {
	f.t.Helper()
	var raw json.RawMessage
	if data != "" {
		raw = json.RawMessage(data)
	}
	ctx := context.Background()
	wc := f.proc.Submit(ctx, domain.NewEnvelope("", domain.CreateWorkingCopyPayload{
		ParentID: parentID, NodeType: nodeType, Name: name, Data: raw,
	}))
	require.True(f.t, wc.Success, wc.Error)
	return f.proc.Submit(ctx, domain.NewEnvelope("", domain.CommitWorkingCopyPayload{WorkingCopyID: wc.WorkingCopyID}))
}

func TestRegister_Order(t *testing.T) {
	r := lifecycle.NewRegistry()
	require.NoError(t, plugins.Register(r))
	assert.Equal(t, []string{"folder", "document", "dataset", "stylemap"}, r.Types())

	err := plugins.Register(r)
	require.Error(t, err)
	assert.ErrorIs(t, err, application.ErrValidation)
}

func TestStyleMap_NeedsDataset(t *testing.T) {
	r := lifecycle.NewRegistry()
	err := r.Register(plugins.StyleMap())
	require.Error(t, err)
	assert.Equal(t, application.CodeDependencyMissing, application.CodeOf(err))
}

func TestDocument_Validation(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantCode application.Code
	}{
		{name: "no data", data: ""},
		{name: "markdown", data: `{"title":"Notes","format":"markdown","body":"# hi"}`},
		{name: "unknown format", data: `{"format":"pdf"}`, wantCode: application.CodeValidation},
		{name: "not an object", data: `[1,2]`, wantCode: application.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res := f.create("", plugins.TypeDocument, "doc", tt.data)
			assert.Equal(t, tt.wantCode, res.Code, res.Error)
			assert.Equal(t, tt.wantCode == "", res.Success)
		})
	}
}

func TestDataset_SeedsTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.create("", plugins.TypeDataset, "sales", `{"table":{"rows":4},"caption":"Q1"}`)
	require.True(t, first.Success, first.Error)

	records, err := f.store.ListEntities(ctx, plugins.TypeDataset, first.NodeID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	var ds plugins.DatasetData
	require.NoError(t, json.Unmarshal(records[0].Data, &ds))
	require.NotEmpty(t, ds.TableID)
	assert.Nil(t, ds.Table)

	second := f.create("", plugins.TypeDataset, "sales view", `{"tableId":"`+ds.TableID+`"}`)
	require.True(t, second.Success, second.Error)

	res, err := f.store.GetResource(ctx, plugins.TableResource, ds.TableID)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 2, res.ReferenceCount)
	assert.ElementsMatch(t, []string{first.NodeID, second.NodeID}, res.ReferencingNodeIDs)
	assert.JSONEq(t, `{"rows":4}`, string(res.Data))
}

func TestStyleMap_Rules(t *testing.T) {
	f := newFixture(t)
	ds := f.create("", plugins.TypeDataset, "regions", `{}`)
	require.True(t, ds.Success, ds.Error)
	folder := f.create("", plugins.TypeFolder, "maps", "")
	require.True(t, folder.Success, folder.Error)

	rule := func(datasetID, color string) string {
		return `{"datasetId":"` + datasetID + `","field":"region","value":"north","color":"` + color + `"}`
	}

	tests := []struct {
		name     string
		data     string
		wantCode application.Code
	}{
		{name: "empty", data: ""},
		{name: "valid rules", data: "[" + rule(ds.NodeID, "#ff0000") + "," + rule(ds.NodeID, "#00f") + "]"},
		{name: "bad color", data: "[" + rule(ds.NodeID, "red") + "]", wantCode: application.CodeValidation},
		{name: "missing field", data: `[{"datasetId":"` + ds.NodeID + `","color":"#fff"}]`, wantCode: application.CodeValidation},
		{name: "folder is not a dataset", data: "[" + rule(folder.NodeID, "#fff") + "]", wantCode: application.CodeValidation},
		{name: "unknown dataset", data: "[" + rule("nope", "#fff") + "]", wantCode: application.CodeValidation},
		{name: "object instead of list", data: `{"rules":[]}`, wantCode: application.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.create(folder.NodeID, plugins.TypeStyleMap, tt.name, tt.data)
			assert.Equal(t, tt.wantCode, res.Code, res.Error)
		})
	}
}

func TestRegisterCustom(t *testing.T) {
	r := lifecycle.NewRegistry()
	require.NoError(t, plugins.Register(r))

	err := plugins.RegisterCustom(r, []domain.EntityMetadata{
		{NodeType: "note", EntityType: domain.EntityPeer, Relationship: domain.Relationship{Cardinality: domain.OneToOne, CascadeDelete: true}},
		{NodeType: "bookmark"},
	})
	require.NoError(t, err)

	note, ok := r.Lookup("note")
	require.True(t, ok)
	assert.NotNil(t, note.Handler)
	bookmark, ok := r.Lookup("bookmark")
	require.True(t, ok)
	assert.Nil(t, bookmark.Handler)

	err = plugins.RegisterCustom(r, []domain.EntityMetadata{{NodeType: "Bad-Type"}})
	assert.True(t, errors.Is(err, application.ErrValidation))
}
