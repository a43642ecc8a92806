package commands

import (
	"context"
	"fmt"

	"arbor/internal/application"
	"arbor/internal/domain"
	"arbor/internal/ports"
)

// PermanentDeleteCommand removes branches and their entity data for good.
// Selecting the trash root empties the trash.
type PermanentDeleteCommand struct {
	svc     *TreeMutations
	Payload domain.PermanentDeletePayload
}

// NewPermanentDeleteCommand creates a new PermanentDeleteCommand
func NewPermanentDeleteCommand(svc *TreeMutations, payload domain.PermanentDeletePayload) *PermanentDeleteCommand {
	return &PermanentDeleteCommand{svc: svc, Payload: payload}
}

// Validate checks the payload shape
func (c *PermanentDeleteCommand) Validate() error {
	return application.ValidatePayload(c.Payload)
}

// Execute deletes every node below and including the selection. Ids are
// handed to the store in one call, which binds them in chunks.
func (c *PermanentDeleteCommand) Execute(ctx context.Context, tx ports.NodeTx) (*Outcome, error) {
	const op = "permanentDelete"

	selected, err := c.svc.load(ctx, tx, op, c.Payload.NodeIDs)
	if err != nil {
		return nil, err
	}
	var roots []domain.TreeNode
	for _, n := range selected {
		if !n.IsTrashRoot() {
			roots = append(roots, n)
			continue
		}
		trashed, err := tx.ListChildren(ctx, domain.TrashRootID)
		if err != nil {
			return nil, err
		}
		roots = append(roots, trashed...)
	}
	roots, err = application.TopmostOnly(ctx, tx, roots)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return &Outcome{}, nil
	}

	doomed, err := application.Subtree(ctx, tx, roots, -1)
	if err != nil {
		return nil, err
	}
	if err := c.svc.entities.DeleteEntities(ctx, tx, doomed); err != nil {
		return nil, err
	}
	ids := domain.NodeIDs(doomed)
	if err := tx.DeleteNodes(ctx, ids); err != nil {
		return nil, fmt.Errorf("delete nodes: %w", err)
	}

	c.svc.logger.Debug("nodes deleted", "branches", len(roots), "nodes", len(ids))
	return &Outcome{NodeID: roots[0].ID, NodeIDs: ids}, nil
}
