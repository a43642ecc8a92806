package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"arbor/internal/application/commands"
	"arbor/internal/application/events"
	"arbor/internal/application/query"
	"arbor/internal/domain"
)

// Client is the single entry point for adapters. Mutations go through the
// command processor; reads go straight to the store.
type Client struct {
	engine *Engine
}

// Submit runs one command
func (c *Client) Submit(ctx context.Context, payload domain.Payload) commands.CommandResult {
	return c.SubmitGroup(ctx, "", payload)
}

// SubmitGroup runs one command as part of an undo group
func (c *Client) SubmitGroup(ctx context.Context, groupID string, payload domain.Payload) commands.CommandResult {
	return c.engine.proc.Submit(ctx, domain.NewEnvelope(groupID, payload))
}

// SubmitEnvelope runs a prepared envelope, as decoded from JSON
func (c *Client) SubmitEnvelope(ctx context.Context, env domain.CommandEnvelope) commands.CommandResult {
	return c.engine.proc.Submit(ctx, env)
}

// CreateNode opens a draft and commits it. The draft is discarded when the
// commit fails.
func (c *Client) CreateNode(ctx context.Context, parentID, nodeType, name string, data json.RawMessage, policy domain.NameConflictPolicy) commands.CommandResult {
	wc := c.Submit(ctx, domain.CreateWorkingCopyPayload{ParentID: parentID, NodeType: nodeType, Name: name, Data: data})
	if !wc.Success {
		return wc
	}
	res := c.Submit(ctx, domain.CommitWorkingCopyPayload{WorkingCopyID: wc.WorkingCopyID, OnNameConflict: policy})
	if !res.Success {
		c.Submit(ctx, domain.DiscardWorkingCopyPayload{WorkingCopyID: wc.WorkingCopyID})
	}
	return res
}

// Seq is the sequence number of the last committed command
func (c *Client) Seq() int64 {
	return c.engine.proc.Seq()
}

// HistoryDepth reports how many steps can be undone and redone
func (c *Client) HistoryDepth() (undo, redo int) {
	return c.engine.proc.History().Depth()
}

// Types lists the registered node types
func (c *Client) Types() []string {
	return c.engine.registry.Types()
}

func (c *Client) GetNode(ctx context.Context, id string) (*domain.TreeNode, error) {
	return c.engine.queries.GetNode(ctx, id)
}

func (c *Client) GetChildren(ctx context.Context, parentID string, offset, limit int) (*query.Page, error) {
	return c.engine.queries.GetChildren(ctx, parentID, offset, limit)
}

func (c *Client) GetDescendants(ctx context.Context, id string, maxDepth int) ([]domain.TreeNode, error) {
	return c.engine.queries.GetDescendants(ctx, id, maxDepth)
}

func (c *Client) GetAncestors(ctx context.Context, id string) ([]domain.TreeNode, error) {
	return c.engine.queries.GetAncestors(ctx, id)
}

func (c *Client) GetPathToRoot(ctx context.Context, id string) ([]domain.TreeNode, error) {
	return c.engine.queries.GetPathToRoot(ctx, id)
}

func (c *Client) FilterNodesByType(ctx context.Context, nodeType string, includeTrash bool) ([]domain.TreeNode, error) {
	return c.engine.queries.FilterNodesByType(ctx, nodeType, includeTrash)
}

func (c *Client) SearchNodes(ctx context.Context, opts query.SearchOptions) ([]query.SearchResult, error) {
	return c.engine.queries.SearchNodes(ctx, opts)
}

// EntityData returns the stored entity of a node, nil for types without data
func (c *Client) EntityData(ctx context.Context, node domain.TreeNode) (json.RawMessage, error) {
	return c.engine.entities.EntityData(ctx, c.engine.store, node)
}

// CopyNodes snapshots the branches and keeps the snapshot in the session
// clipboard, where a paste without an explicit snapshot finds it
func (c *Client) CopyNodes(ctx context.Context, ids []string) (*domain.Snapshot, error) {
	snap, err := c.engine.queries.CopyNodes(ctx, ids)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode clipboard: %w", err)
	}
	if err := c.engine.ephemeral.PutSession(ctx, domain.ClipboardSessionKey, raw); err != nil {
		return nil, fmt.Errorf("store clipboard: %w", err)
	}
	return snap, nil
}

func (c *Client) ExportNodes(ctx context.Context, ids []string) (*domain.Snapshot, error) {
	return c.engine.queries.ExportNodes(ctx, ids)
}

func (c *Client) GetWorkingCopy(ctx context.Context, id string) (*domain.WorkingCopy, error) {
	return c.engine.wcs.Get(ctx, id)
}

func (c *Client) ListWorkingCopies(ctx context.Context) ([]domain.WorkingCopy, error) {
	return c.engine.wcs.List(ctx)
}

func (c *Client) SubscribeNode(ctx context.Context, nodeID string, opts events.NodeOptions) (*events.Subscription, error) {
	return c.engine.events.SubscribeNode(ctx, nodeID, opts)
}

func (c *Client) SubscribeChildren(ctx context.Context, parentID string, opts events.ChildrenOptions) (*events.Subscription, error) {
	return c.engine.events.SubscribeChildren(ctx, parentID, opts)
}

func (c *Client) SubscribeSubtree(ctx context.Context, rootID string, opts events.SubtreeOptions) (*events.Subscription, error) {
	return c.engine.events.SubscribeSubtree(ctx, rootID, opts)
}

func (c *Client) SubscribeWorkingCopies(ctx context.Context, opts events.WorkingCopyOptions) (*events.Subscription, error) {
	return c.engine.events.SubscribeWorkingCopies(ctx, opts)
}
