package commands

import (
	"context"
	"fmt"

	"arbor/internal/application"
	"arbor/internal/application/workingcopy"
	"arbor/internal/domain"
	"arbor/internal/ports"
)

// DuplicateNodesCommand copies branches next to their sources. The copy of
// each branch root is named "<name> (Copy)".
type DuplicateNodesCommand struct {
	svc     *TreeMutations
	Payload domain.DuplicateNodesPayload
}

// NewDuplicateNodesCommand creates a new DuplicateNodesCommand
func NewDuplicateNodesCommand(svc *TreeMutations, payload domain.DuplicateNodesPayload) *DuplicateNodesCommand {
	return &DuplicateNodesCommand{svc: svc, Payload: payload}
}

// Validate checks the payload shape
func (c *DuplicateNodesCommand) Validate() error {
	return application.ValidatePayload(c.Payload)
}

// Execute copies each selected branch once. A node selected together with
// one of its ancestors is copied as part of that ancestor's branch.
func (c *DuplicateNodesCommand) Execute(ctx context.Context, tx ports.NodeTx) (*Outcome, error) {
	const op = "duplicateNodes"

	nodes, err := c.svc.loadLive(ctx, tx, op, c.Payload.NodeIDs)
	if err != nil {
		return nil, err
	}
	roots, err := application.TopmostOnly(ctx, tx, nodes)
	if err != nil {
		return nil, err
	}

	// Allocate every id first so entity data can point across branches
	idMap := domain.IDMap{}
	branches := make([][]domain.TreeNode, len(roots))
	for i, root := range roots {
		branch, err := application.Subtree(ctx, tx, []domain.TreeNode{root}, -1)
		if err != nil {
			return nil, err
		}
		for _, n := range branch {
			idMap[n.ID] = domain.NewID()
		}
		branches[i] = branch
	}

	names := newSiblingNames(tx)
	now := c.svc.now()
	var created []string
	for i, root := range roots {
		taken, err := names.under(ctx, root.ParentID)
		if err != nil {
			return nil, err
		}
		rootName, err := workingcopy.ResolveIn(taken, root.ParentID, domain.CopyName(root.Name), c.Payload.OnNameConflict)
		if err != nil {
			return nil, err
		}

		copies := make([]domain.TreeNode, len(branches[i]))
		for j, src := range branches[i] {
			cp := domain.TreeNode{
				ID:        idMap[src.ID],
				ParentID:  idMap[src.ParentID],
				NodeType:  src.NodeType,
				Name:      src.Name,
				CreatedAt: now,
				UpdatedAt: now,
				Version:   1,
			}
			if j == 0 {
				cp.ParentID = root.ParentID
				cp.Name = rootName
			}
			if err := tx.PutNode(ctx, cp); err != nil {
				return nil, fmt.Errorf("duplicate %s: %w", src.ID, err)
			}
			copies[j] = cp
		}
		for j, src := range branches[i] {
			if err := c.svc.entities.DuplicateEntity(ctx, tx, src, copies[j], idMap); err != nil {
				return nil, err
			}
		}
		created = append(created, copies[0].ID)
	}

	c.svc.logger.Debug("branches duplicated", "branches", len(created), "nodes", len(idMap))
	return &Outcome{NodeID: firstOf(created), NodeIDs: created, IDMap: idMap}, nil
}
