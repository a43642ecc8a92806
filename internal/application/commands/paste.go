package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"arbor/internal/application"
	"arbor/internal/application/workingcopy"
	"arbor/internal/domain"
	"arbor/internal/ports"
)

// PasteNodesCommand inserts a copied snapshot under a parent. Node ids are
// regenerated; shared resources keep their ids so pasted links join the
// resources they were copied from.
type PasteNodesCommand struct {
	svc     *TreeMutations
	Payload domain.PasteNodesPayload
}

// NewPasteNodesCommand creates a new PasteNodesCommand
func NewPasteNodesCommand(svc *TreeMutations, payload domain.PasteNodesPayload) *PasteNodesCommand {
	return &PasteNodesCommand{svc: svc, Payload: payload}
}

// Validate checks the payload shape
func (c *PasteNodesCommand) Validate() error {
	return application.ValidatePayload(c.Payload)
}

// Execute pastes the payload snapshot, or the session clipboard when none is given
func (c *PasteNodesCommand) Execute(ctx context.Context, tx ports.NodeTx) (*Outcome, error) {
	snap := c.Payload.Snapshot
	if snap == nil {
		var err error
		if snap, err = c.svc.clipboard(ctx); err != nil {
			return nil, err
		}
	}
	return c.svc.insertSnapshot(ctx, tx, "pasteNodes", snap, c.Payload.ParentID, c.Payload.OnNameConflict, false)
}

// ImportNodesCommand inserts an exported snapshot. Every id is regenerated,
// shared resources included, so an import never touches existing data.
type ImportNodesCommand struct {
	svc     *TreeMutations
	Payload domain.ImportNodesPayload
}

// NewImportNodesCommand creates a new ImportNodesCommand
func NewImportNodesCommand(svc *TreeMutations, payload domain.ImportNodesPayload) *ImportNodesCommand {
	return &ImportNodesCommand{svc: svc, Payload: payload}
}

// Validate checks the payload shape
func (c *ImportNodesCommand) Validate() error {
	return application.ValidatePayload(c.Payload)
}

// Execute imports the snapshot
func (c *ImportNodesCommand) Execute(ctx context.Context, tx ports.NodeTx) (*Outcome, error) {
	return c.svc.insertSnapshot(ctx, tx, "importNodes", c.Payload.Snapshot, c.Payload.ParentID, c.Payload.OnNameConflict, true)
}

func (s *TreeMutations) clipboard(ctx context.Context) (*domain.Snapshot, error) {
	raw, err := s.ephemeral.GetSession(ctx, domain.ClipboardSessionKey)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, &application.ValidationError{Field: "snapshot", Message: "the clipboard is empty"}
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, &application.ValidationError{Field: "snapshot", Message: fmt.Sprintf("clipboard is unreadable: %v", err)}
	}
	return &snap, nil
}

// insertSnapshot writes the branches of snap under parentID. Snapshot data
// comes from outside, so the walk guards against cycles and unknown types.
func (s *TreeMutations) insertSnapshot(ctx context.Context, tx ports.NodeTx, op string, snap *domain.Snapshot, parentID string, policy domain.NameConflictPolicy, regenerateResources bool) (*Outcome, error) {
	if snap.Format != "" && snap.Format != domain.SnapshotFormat {
		return nil, &application.ValidationError{Field: "snapshot", Message: fmt.Sprintf("unsupported snapshot format %q", snap.Format)}
	}
	if err := s.checkDestination(ctx, tx, op, "parentId", parentID); err != nil {
		return nil, err
	}

	order, roots, err := s.snapshotOrder(snap)
	if err != nil {
		return nil, err
	}
	if len(order) == 0 {
		return nil, &application.ValidationError{Field: "snapshot", Message: "snapshot holds no nodes"}
	}

	idMap := domain.IDMap{}
	for _, n := range order {
		idMap[n.ID] = domain.NewID()
	}
	carried := make(map[string]domain.RelationalResource, len(snap.Resources))
	for _, res := range snap.Resources {
		id := res.ID
		if regenerateResources {
			if _, ok := idMap[id]; !ok {
				idMap[id] = domain.NewID()
			}
			id = idMap[id]
		}
		carried[rowKey(res.Kind, id)] = res
	}
	lookup := func(kind, id string) (domain.RelationalResource, bool) {
		res, ok := carried[rowKey(kind, id)]
		return res, ok
	}

	names := newSiblingNames(tx)
	now := s.now()
	written := make([]domain.TreeNode, len(order))
	var created []string
	for i, n := range order {
		node := domain.TreeNode{
			ID:        idMap[n.ID],
			ParentID:  idMap[n.ParentID],
			NodeType:  n.NodeType,
			Name:      domain.NormalizeName(n.Name),
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		}
		rootPolicy := domain.NameConflictAutoRename
		if roots[n.ID] {
			node.ParentID = parentID
			rootPolicy = policy
			created = append(created, node.ID)
		}
		taken, err := names.under(ctx, node.ParentID)
		if err != nil {
			return nil, err
		}
		if node.Name, err = workingcopy.ResolveIn(taken, node.ParentID, node.Name, rootPolicy); err != nil {
			return nil, err
		}
		if err := tx.PutNode(ctx, node); err != nil {
			return nil, fmt.Errorf("insert %s: %w", n.ID, err)
		}
		written[i] = node
	}

	for i, n := range order {
		if err := s.entities.Restore(ctx, tx, written[i], idMap.Remap(n.Entity), lookup); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("snapshot inserted", "op", op, "roots", len(created), "nodes", len(order))
	return &Outcome{NodeID: firstOf(created), NodeIDs: created, IDMap: idMap}, nil
}

// snapshotOrder lists the reachable snapshot nodes parents first and marks
// the branch roots. Nodes caught in a parent cycle are never reached.
func (s *TreeMutations) snapshotOrder(snap *domain.Snapshot) ([]domain.SnapshotNode, map[string]bool, error) {
	byID := make(map[string]domain.SnapshotNode, len(snap.Nodes))
	for _, n := range snap.Nodes {
		byID[n.ID] = n
	}

	var rootIDs []string
	if len(snap.Roots) > 0 {
		rootIDs = snap.Roots
	} else {
		for _, n := range snap.Nodes {
			if _, ok := byID[n.ParentID]; !ok {
				rootIDs = append(rootIDs, n.ID)
			}
		}
	}

	registry := s.entities.Registry()
	children := snap.Children()
	roots := make(map[string]bool, len(rootIDs))
	visited := make(map[string]bool, len(snap.Nodes))
	var order []domain.SnapshotNode
	queue := make([]domain.SnapshotNode, 0, len(rootIDs))
	for _, id := range rootIDs {
		n, ok := byID[id]
		if !ok {
			return nil, nil, &application.ValidationError{Field: "snapshot", Message: fmt.Sprintf("root %s is not in the snapshot", id)}
		}
		if !roots[id] {
			roots[id] = true
			queue = append(queue, n)
		}
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if visited[n.ID] {
			continue
		}
		visited[n.ID] = true

		if n.NodeType == domain.TrashNodeType || !registry.Has(n.NodeType) {
			return nil, nil, &application.ValidationError{Field: "snapshot", Message: fmt.Sprintf("node %s has unknown type %q", n.ID, n.NodeType)}
		}
		if err := application.ValidateName("name", domain.NormalizeName(n.Name)); err != nil {
			return nil, nil, err
		}
		order = append(order, n)
		for _, child := range children[n.ID] {
			if !visited[child.ID] && !roots[child.ID] {
				queue = append(queue, child)
			}
		}
	}
	return order, roots, nil
}
