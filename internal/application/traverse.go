package application

import (
	"context"

	"arbor/internal/domain"
	"arbor/internal/ports"
)

// MaxDepth bounds every parent-pointer walk. A chain longer than this is
// treated as malformed.
const MaxDepth = 10_000

// Ancestors returns the chain above id, nearest parent first. A cycle or a
// dangling parent ends the walk.
func Ancestors(ctx context.Context, r ports.NodeReader, id string) ([]domain.TreeNode, error) {
	node, err := r.GetNode(ctx, id)
	if err != nil || node == nil {
		return nil, err
	}

	var chain []domain.TreeNode
	visited := map[string]bool{node.ID: true}
	for parentID := node.ParentID; parentID != "" && len(chain) < MaxDepth; {
		if visited[parentID] {
			break
		}
		visited[parentID] = true

		parent, err := r.GetNode(ctx, parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}
		chain = append(chain, *parent)
		parentID = parent.ParentID
	}
	return chain, nil
}

// IsAncestor reports whether ancestorID sits above id
func IsAncestor(ctx context.Context, r ports.NodeReader, ancestorID, id string) (bool, error) {
	chain, err := Ancestors(ctx, r, id)
	if err != nil {
		return false, err
	}
	for _, n := range chain {
		if n.ID == ancestorID {
			return true, nil
		}
	}
	return false, nil
}

// IsTrashRoot reports whether id names the trash root
func IsTrashRoot(id string) bool {
	return id == domain.TrashRootID
}

// InTrash reports whether node is the trash root or lies beneath it
func InTrash(ctx context.Context, r ports.NodeReader, node domain.TreeNode) (bool, error) {
	if node.IsTrashRoot() || node.ParentID == domain.TrashRootID {
		return true, nil
	}
	if node.ParentID == "" {
		return false, nil
	}
	return IsAncestor(ctx, r, domain.TrashRootID, node.ID)
}

// Subtree collects the branches below roots breadth first, parents before
// children. The roots themselves come first. maxDepth < 0 means unbounded;
// 0 returns only the roots. Each node is visited once.
func Subtree(ctx context.Context, r ports.NodeReader, roots []domain.TreeNode, maxDepth int) ([]domain.TreeNode, error) {
	visited := make(map[string]bool, len(roots))
	out := make([]domain.TreeNode, 0, len(roots))
	level := make([]string, 0, len(roots))
	for _, n := range roots {
		if visited[n.ID] {
			continue
		}
		visited[n.ID] = true
		out = append(out, n)
		level = append(level, n.ID)
	}

	for depth := 0; len(level) > 0 && (maxDepth < 0 || depth < maxDepth); depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		children, err := r.ListChildrenOf(ctx, level)
		if err != nil {
			return nil, err
		}
		level = level[:0]
		for _, c := range children {
			if visited[c.ID] {
				continue
			}
			visited[c.ID] = true
			out = append(out, c)
			level = append(level, c.ID)
		}
	}
	return out, nil
}

// TopmostOnly drops nodes that have an ancestor in the same selection so a
// branch is handled once
func TopmostOnly(ctx context.Context, r ports.NodeReader, nodes []domain.TreeNode) ([]domain.TreeNode, error) {
	selected := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		selected[n.ID] = true
	}
	out := make([]domain.TreeNode, 0, len(nodes))
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		chain, err := Ancestors(ctx, r, n.ID)
		if err != nil {
			return nil, err
		}
		covered := false
		for _, a := range chain {
			if selected[a.ID] {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, n)
		}
	}
	return out, nil
}
