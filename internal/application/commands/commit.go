package commands

import (
	"context"

	"arbor/internal/application"
	"arbor/internal/application/workingcopy"
	"arbor/internal/domain"
	"arbor/internal/ports"
)

// CommitWorkingCopyCommand writes a working copy into the tree
type CommitWorkingCopyCommand struct {
	wcs     *workingcopy.Manager
	Payload domain.CommitWorkingCopyPayload
}

// NewCommitWorkingCopyCommand creates a new CommitWorkingCopyCommand
func NewCommitWorkingCopyCommand(wcs *workingcopy.Manager, payload domain.CommitWorkingCopyPayload) *CommitWorkingCopyCommand {
	return &CommitWorkingCopyCommand{wcs: wcs, Payload: payload}
}

// Validate checks the payload shape
func (c *CommitWorkingCopyCommand) Validate() error {
	return application.ValidatePayload(c.Payload)
}

// Execute commits the copy. The copy is deleted only once the transaction
// has committed, so a failed commit leaves it open for another attempt.
func (c *CommitWorkingCopyCommand) Execute(ctx context.Context, tx ports.NodeTx) (*Outcome, error) {
	node, wc, err := c.wcs.Commit(ctx, tx, c.Payload.WorkingCopyID, c.Payload.OnNameConflict)
	if err != nil {
		return nil, err
	}
	committed := *wc
	committed.NodeID = node.ID
	return &Outcome{
		NodeID:      node.ID,
		NodeIDs:     []string{node.ID},
		WorkingCopy: &committed,
		finalize: func(ctx context.Context) error {
			return c.wcs.Finalize(ctx, wc.ID)
		},
	}, nil
}
