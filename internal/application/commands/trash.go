package commands

import (
	"context"
	"fmt"
	"time"

	"arbor/internal/application"
	"arbor/internal/application/workingcopy"
	"arbor/internal/domain"
	"arbor/internal/ports"
)

// MoveToTrashCommand parks branches under the trash root, remembering where
// each came from
type MoveToTrashCommand struct {
	svc     *TreeMutations
	Payload domain.MoveToTrashPayload
}

// NewMoveToTrashCommand creates a new MoveToTrashCommand
func NewMoveToTrashCommand(svc *TreeMutations, payload domain.MoveToTrashPayload) *MoveToTrashCommand {
	return &MoveToTrashCommand{svc: svc, Payload: payload}
}

// Validate checks the payload shape
func (c *MoveToTrashCommand) Validate() error {
	return application.ValidatePayload(c.Payload)
}

// Execute trashes each selected branch once. Names may repeat in the trash.
func (c *MoveToTrashCommand) Execute(ctx context.Context, tx ports.NodeTx) (*Outcome, error) {
	const op = "moveToTrash"

	nodes, err := c.svc.loadLive(ctx, tx, op, c.Payload.NodeIDs)
	if err != nil {
		return nil, err
	}
	roots, err := application.TopmostOnly(ctx, tx, nodes)
	if err != nil {
		return nil, err
	}

	now := c.svc.now()
	trashed := make([]string, 0, len(roots))
	for _, n := range roots {
		n.TrashedFrom = n.ParentID
		n.TrashedAt = now
		n.ParentID = domain.TrashRootID
		n.Version++
		n.UpdatedAt = now
		if err := tx.PutNode(ctx, n); err != nil {
			return nil, fmt.Errorf("trash %s: %w", n.ID, err)
		}
		trashed = append(trashed, n.ID)
	}

	c.svc.logger.Debug("nodes trashed", "count", len(trashed))
	return &Outcome{NodeID: firstOf(trashed), NodeIDs: trashed}, nil
}

// RecoverFromTrashCommand puts trashed branches back
type RecoverFromTrashCommand struct {
	svc     *TreeMutations
	Payload domain.RecoverFromTrashPayload
}

// NewRecoverFromTrashCommand creates a new RecoverFromTrashCommand
func NewRecoverFromTrashCommand(svc *TreeMutations, payload domain.RecoverFromTrashPayload) *RecoverFromTrashCommand {
	return &RecoverFromTrashCommand{svc: svc, Payload: payload}
}

// Validate checks the payload shape
func (c *RecoverFromTrashCommand) Validate() error {
	return application.ValidatePayload(c.Payload)
}

// Execute restores each node under its original parent. When that parent is
// gone or itself trashed the fallback parent is used, then the root level.
func (c *RecoverFromTrashCommand) Execute(ctx context.Context, tx ports.NodeTx) (*Outcome, error) {
	const op = "recoverFromTrash"

	nodes, err := c.svc.load(ctx, tx, op, c.Payload.NodeIDs)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.ParentID != domain.TrashRootID {
			return nil, &application.ValidationError{Field: "nodeIds", Message: fmt.Sprintf("node %s is not in the trash", n.ID)}
		}
	}
	if fb := c.Payload.FallbackParentID; fb != "" {
		if err := c.svc.checkDestination(ctx, tx, op, "fallbackParentId", fb); err != nil {
			return nil, err
		}
	}

	names := newSiblingNames(tx)
	now := c.svc.now()
	recovered := make([]string, 0, len(nodes))
	for _, n := range nodes {
		dest, err := c.destination(ctx, tx, n)
		if err != nil {
			return nil, err
		}
		taken, err := names.under(ctx, dest)
		if err != nil {
			return nil, err
		}
		name, err := workingcopy.ResolveIn(taken, dest, n.Name, c.Payload.OnNameConflict)
		if err != nil {
			return nil, err
		}

		n.ParentID = dest
		n.Name = name
		n.TrashedFrom = ""
		n.TrashedAt = time.Time{}
		n.Version++
		n.UpdatedAt = now
		if err := tx.PutNode(ctx, n); err != nil {
			return nil, fmt.Errorf("recover %s: %w", n.ID, err)
		}
		recovered = append(recovered, n.ID)
	}

	c.svc.logger.Debug("nodes recovered", "count", len(recovered))
	return &Outcome{NodeID: firstOf(recovered), NodeIDs: recovered}, nil
}

func (c *RecoverFromTrashCommand) destination(ctx context.Context, r ports.NodeReader, n domain.TreeNode) (string, error) {
	if n.TrashedFrom == "" {
		return "", nil
	}
	parent, err := r.GetNode(ctx, n.TrashedFrom)
	if err != nil {
		return "", err
	}
	if parent != nil {
		trashed, err := application.InTrash(ctx, r, *parent)
		if err != nil {
			return "", err
		}
		if !trashed {
			return parent.ID, nil
		}
	}
	return c.Payload.FallbackParentID, nil
}
