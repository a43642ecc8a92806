package events

import (
	"context"

	"arbor/internal/application"
	"arbor/internal/domain"
)

// NodeOptions configures SubscribeNode
type NodeOptions struct {
	IncludeInitialValue bool
	NodeTypes           []string
}

// ChildrenOptions configures SubscribeChildren
type ChildrenOptions struct {
	IncludeInitialValue bool
	NodeTypes           []string
}

// SubtreeOptions configures SubscribeSubtree. MaxDepth zero means unbounded.
type SubtreeOptions struct {
	IncludeInitialValue bool
	MaxDepth            int
	NodeTypes           []string
}

// WorkingCopyOptions configures SubscribeWorkingCopies. An empty NodeID
// follows edits of every node.
type WorkingCopyOptions struct {
	IncludeInitialValue bool
	NodeID              string
	IncludeAllDrafts    bool
}

// SubscribeNode streams events about one node
func (m *Manager) SubscribeNode(ctx context.Context, nodeID string, opts NodeOptions) (*Subscription, error) {
	if err := requireID("nodeId", nodeID); err != nil {
		return nil, err
	}
	filter := NodeFilter{NodeID: nodeID, NodeTypes: opts.NodeTypes}

	var initial func(context.Context) (domain.TreeChangeEvent, error)
	if opts.IncludeInitialValue {
		initial = func(ctx context.Context) (domain.TreeChangeEvent, error) {
			n, err := m.store.GetNode(ctx, nodeID)
			if err != nil {
				return domain.TreeChangeEvent{}, err
			}
			if n == nil {
				return domain.TreeChangeEvent{}, application.NotFound("subscribeNode", nodeID)
			}
			return domain.TreeChangeEvent{NodeID: nodeID, Node: n, ParentID: n.ParentID, Nodes: []domain.TreeNode{*n}}, nil
		}
	}
	return m.subscribe(ctx, ScopeNode, filter, initial), nil
}

// SubscribeChildren streams events about the direct children of parentID.
// An empty parentID follows the root level.
func (m *Manager) SubscribeChildren(ctx context.Context, parentID string, opts ChildrenOptions) (*Subscription, error) {
	filter := ChildrenFilter{ParentID: parentID, NodeTypes: opts.NodeTypes}

	var initial func(context.Context) (domain.TreeChangeEvent, error)
	if opts.IncludeInitialValue {
		initial = func(ctx context.Context) (domain.TreeChangeEvent, error) {
			if err := m.mustExist(ctx, "subscribeChildren", parentID); err != nil {
				return domain.TreeChangeEvent{}, err
			}
			children, err := m.store.ListChildren(ctx, parentID)
			if err != nil {
				return domain.TreeChangeEvent{}, err
			}
			return domain.TreeChangeEvent{NodeID: parentID, ParentID: parentID, Nodes: nonNil(children)}, nil
		}
	}
	return m.subscribe(ctx, ScopeChildren, filter, initial), nil
}

// SubscribeSubtree streams events about rootID and everything below it
func (m *Manager) SubscribeSubtree(ctx context.Context, rootID string, opts SubtreeOptions) (*Subscription, error) {
	if opts.MaxDepth < 0 {
		return nil, &application.ValidationError{Field: "maxDepth", Message: "must not be negative"}
	}
	depth := opts.MaxDepth
	if depth == 0 {
		depth = -1
	}
	filter := SubtreeFilter{RootID: rootID, MaxDepth: depth, NodeTypes: opts.NodeTypes}

	var initial func(context.Context) (domain.TreeChangeEvent, error)
	if opts.IncludeInitialValue {
		initial = func(ctx context.Context) (domain.TreeChangeEvent, error) {
			nodes, err := m.subtree(ctx, rootID, depth)
			if err != nil {
				return domain.TreeChangeEvent{}, err
			}
			return domain.TreeChangeEvent{NodeID: rootID, Nodes: nonNil(nodes)}, nil
		}
	}
	return m.subscribe(ctx, ScopeSubtree, filter, initial), nil
}

// SubscribeWorkingCopies streams working copy events
func (m *Manager) SubscribeWorkingCopies(ctx context.Context, opts WorkingCopyOptions) (*Subscription, error) {
	filter := WorkingCopyFilter{NodeID: opts.NodeID, IncludeAllDrafts: opts.IncludeAllDrafts}

	var initial func(context.Context) (domain.TreeChangeEvent, error)
	if opts.IncludeInitialValue {
		initial = func(ctx context.Context) (domain.TreeChangeEvent, error) {
			all, err := m.ephemeral.ListWorkingCopies(ctx)
			if err != nil {
				return domain.TreeChangeEvent{}, err
			}
			visible := []domain.WorkingCopy{}
			for i := range all {
				probe := domain.TreeChangeEvent{Type: domain.EventWorkingCopyUpdated, WorkingCopy: &all[i]}
				if filter.Match(probe, nil) {
					visible = append(visible, all[i])
				}
			}
			return domain.TreeChangeEvent{NodeID: opts.NodeID, WorkingCopies: visible}, nil
		}
	}
	return m.subscribe(ctx, ScopeWorkingCopies, filter, initial), nil
}

// subtree lists rootID and its descendants, or the whole live tree for the
// root level
func (m *Manager) subtree(ctx context.Context, rootID string, maxDepth int) ([]domain.TreeNode, error) {
	if rootID == "" {
		roots, err := m.store.ListChildren(ctx, "")
		if err != nil {
			return nil, err
		}
		if maxDepth > 0 {
			maxDepth--
		}
		return application.Subtree(ctx, m.store, roots, maxDepth)
	}

	root, err := m.store.GetNode(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, application.NotFound("subscribeSubtree", rootID)
	}
	return application.Subtree(ctx, m.store, []domain.TreeNode{*root}, maxDepth)
}

func (m *Manager) mustExist(ctx context.Context, op, id string) error {
	if id == "" {
		return nil
	}
	n, err := m.store.GetNode(ctx, id)
	if err != nil {
		return err
	}
	if n == nil {
		return application.NotFound(op, id)
	}
	return nil
}

func nonNil(nodes []domain.TreeNode) []domain.TreeNode {
	if nodes == nil {
		return []domain.TreeNode{}
	}
	return nodes
}
