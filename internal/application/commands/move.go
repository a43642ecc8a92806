package commands

import (
	"context"
	"fmt"

	"arbor/internal/application"
	"arbor/internal/application/workingcopy"
	"arbor/internal/domain"
	"arbor/internal/ports"
)

// MoveNodesCommand relocates branches under a new parent
type MoveNodesCommand struct {
	svc     *TreeMutations
	Payload domain.MoveNodesPayload
}

// NewMoveNodesCommand creates a new MoveNodesCommand
func NewMoveNodesCommand(svc *TreeMutations, payload domain.MoveNodesPayload) *MoveNodesCommand {
	return &MoveNodesCommand{svc: svc, Payload: payload}
}

// Validate checks the payload shape
func (c *MoveNodesCommand) Validate() error {
	return application.ValidatePayload(c.Payload)
}

// Execute moves every node in order. A move that would put a node under
// itself fails the whole command.
func (c *MoveNodesCommand) Execute(ctx context.Context, tx ports.NodeTx) (*Outcome, error) {
	const op = "moveNodes"
	dest := c.Payload.NewParentID

	if err := c.svc.checkDestination(ctx, tx, op, "newParentId", dest); err != nil {
		return nil, err
	}
	nodes, err := c.svc.loadLive(ctx, tx, op, c.Payload.NodeIDs)
	if err != nil {
		return nil, err
	}
	names := newSiblingNames(tx)
	taken, err := names.under(ctx, dest)
	if err != nil {
		return nil, err
	}

	now := c.svc.now()
	var moved []string
	for _, n := range nodes {
		if n.ParentID == dest {
			continue
		}
		if err := checkCycle(ctx, tx, n.ID, dest); err != nil {
			return nil, err
		}
		name, err := workingcopy.ResolveIn(taken, dest, n.Name, c.Payload.OnNameConflict)
		if err != nil {
			return nil, err
		}

		n.ParentID = dest
		n.Name = name
		n.Version++
		n.UpdatedAt = now
		if err := tx.PutNode(ctx, n); err != nil {
			return nil, fmt.Errorf("move %s: %w", n.ID, err)
		}
		moved = append(moved, n.ID)
	}

	c.svc.logger.Debug("nodes moved", "count", len(moved), "parent", dest)
	return &Outcome{NodeID: firstOf(moved), NodeIDs: moved}, nil
}

// checkCycle rejects moving nodeID under dest when dest is nodeID itself or
// one of its descendants. The walk sees earlier moves of the same command.
func checkCycle(ctx context.Context, r ports.NodeReader, nodeID, dest string) error {
	if dest == "" {
		return nil
	}
	if dest == nodeID {
		return application.CycleError(nodeID, dest)
	}
	below, err := application.IsAncestor(ctx, r, nodeID, dest)
	if err != nil {
		return err
	}
	if below {
		return application.CycleError(nodeID, dest)
	}
	return nil
}
