package engine

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbor/internal/application"
	"arbor/internal/application/events"
	"arbor/internal/config"
	"arbor/internal/domain"
	"arbor/internal/logging"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	home := t.TempDir()
	cfg := config.Default()
	cfg.Home = home
	cfg.Database = filepath.Join(home, "arbor.db")
	cfg.Ephemeral.Path = ""
	cfg.Ephemeral.InMemory = true
	cfg.Metrics.Enabled = false
	return cfg
}

func openEngine(t *testing.T, cfg config.Config) *Engine {
	t.Helper()
	e, err := Open(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// do runs fn against a live engine with a deadline
func do(t *testing.T, e *Engine, fn func(context.Context, *Client)) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()
	fn(ctx, e.Client())
}

func names(t *testing.T, ctx context.Context, c *Client, parentID string) []string {
	t.Helper()
	page, err := c.GetChildren(ctx, parentID, 0, 0)
	require.NoError(t, err)
	out := make([]string, len(page.Nodes))
	for i, n := range page.Nodes {
		out[i] = n.Name
	}
	return out
}

func TestEngine_CopyPasteUndo(t *testing.T) {
	e := openEngine(t, testConfig(t))

	do(t, e, func(ctx context.Context, c *Client) {
		folder := c.CreateNode(ctx, "", "folder", "Reports", nil, "")
		require.True(t, folder.Success, folder.Error)
		doc := c.CreateNode(ctx, folder.NodeID, "document", "Summary", json.RawMessage(`{"title":"Q1"}`), "")
		require.True(t, doc.Success, doc.Error)

		snap, err := c.CopyNodes(ctx, []string{folder.NodeID})
		require.NoError(t, err)
		assert.Len(t, snap.Nodes, 2)

		pasted := c.Submit(ctx, domain.PasteNodesPayload{})
		require.True(t, pasted.Success, pasted.Error)
		assert.Equal(t, []string{"Reports", "Reports (2)"}, names(t, ctx, c, ""))

		undo, redo := c.HistoryDepth()
		assert.Equal(t, 3, undo)
		assert.Equal(t, 0, redo)

		require.True(t, c.Submit(ctx, domain.UndoPayload{}).Success)
		assert.Equal(t, []string{"Reports"}, names(t, ctx, c, ""))
		require.True(t, c.Submit(ctx, domain.RedoPayload{}).Success)
		assert.Equal(t, []string{"Reports", "Reports (2)"}, names(t, ctx, c, ""))

		copied := pasted.IDMap[doc.NodeID]
		require.NotEmpty(t, copied)
		node, err := c.GetNode(ctx, copied)
		require.NoError(t, err)
		data, err := c.EntityData(ctx, *node)
		require.NoError(t, err)
		assert.JSONEq(t, `{"title":"Q1"}`, string(data))
	})
}

func TestEngine_FailedCreateDiscardsDraft(t *testing.T) {
	e := openEngine(t, testConfig(t))

	do(t, e, func(ctx context.Context, c *Client) {
		res := c.CreateNode(ctx, "", "document", "bad", json.RawMessage(`{"format":"pdf"}`), "")
		assert.False(t, res.Success)
		assert.Equal(t, application.CodeValidation, res.Code)

		wcs, err := c.ListWorkingCopies(ctx)
		require.NoError(t, err)
		assert.Empty(t, wcs)
	})
}

func TestEngine_SubscriptionSeesCommands(t *testing.T) {
	e := openEngine(t, testConfig(t))

	var sub *events.Subscription
	do(t, e, func(ctx context.Context, c *Client) {
		folder := c.CreateNode(ctx, "", "folder", "Inbox", nil, "")
		require.True(t, folder.Success, folder.Error)

		var err error
		sub, err = c.SubscribeChildren(context.Background(), folder.NodeID, events.ChildrenOptions{})
		require.NoError(t, err)

		doc := c.CreateNode(ctx, folder.NodeID, "document", "note", nil, "")
		require.True(t, doc.Success, doc.Error)

		deadline := time.After(2 * time.Second)
		for {
			select {
			case ev := <-sub.Events:
				if ev.Type != domain.EventNodeCreated {
					continue
				}
				assert.Equal(t, doc.NodeID, ev.NodeID)
				assert.Equal(t, doc.Seq, ev.Seq)
				return
			case <-deadline:
				t.Fatal("no created event")
			}
		}
	})

	// Stopping the engine ends the stream
	select {
	case err := <-sub.Errors:
		assert.ErrorIs(t, err, events.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription still open")
	}
}

func TestEngine_JanitorSweepsWorkingCopies(t *testing.T) {
	cfg := testConfig(t)
	cfg.Janitor.SweepInterval = 10 * time.Millisecond
	cfg.Janitor.WorkingCopyTTL = time.Millisecond
	e := openEngine(t, cfg)

	do(t, e, func(ctx context.Context, c *Client) {
		wc := c.Submit(ctx, domain.CreateWorkingCopyPayload{NodeType: "folder", Name: "draft"})
		require.True(t, wc.Success, wc.Error)

		assert.Eventually(t, func() bool {
			wcs, err := c.ListWorkingCopies(ctx)
			return err == nil && len(wcs) == 0
		}, 2*time.Second, 10*time.Millisecond)

		_, err := c.GetWorkingCopy(ctx, wc.WorkingCopyID)
		assert.Equal(t, application.CodeWorkingCopyNotFound, application.CodeOf(err))
	})
}

func TestEngine_ConfiguredTypes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Types = []domain.EntityMetadata{{
		NodeType:     "note",
		EntityType:   domain.EntityPeer,
		Relationship: domain.Relationship{Cardinality: domain.OneToOne, CascadeDelete: true},
	}}
	e := openEngine(t, cfg)

	do(t, e, func(ctx context.Context, c *Client) {
		assert.Contains(t, c.Types(), "note")
		res := c.CreateNode(ctx, "", "note", "n", json.RawMessage(`{"text":"hi"}`), "")
		require.True(t, res.Success, res.Error)

		found, err := c.FilterNodesByType(ctx, "note", false)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, res.NodeID, found[0].ID)
	})
}

func TestEngine_DoStopsWithCallback(t *testing.T) {
	e := openEngine(t, testConfig(t))

	errBoom := errors.New("boom")
	var seq int64
	err := e.Do(context.Background(), func(ctx context.Context, c *Client) error {
		res := c.CreateNode(ctx, "", "folder", "a", nil, "")
		if !res.Success {
			return res.Err()
		}
		seq = c.Seq()
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, int64(2), seq)

	res := e.Client().Submit(context.Background(), domain.UndoPayload{})
	assert.False(t, res.Success)
}

func TestOpen_RejectsBadType(t *testing.T) {
	cfg := testConfig(t)
	cfg.Types = []domain.EntityMetadata{{NodeType: "child", DependsOn: []string{"parent"}}}

	_, err := Open(context.Background(), cfg, logging.Discard())
	require.Error(t, err)
	assert.Equal(t, application.CodeDependencyMissing, application.CodeOf(err))
}
