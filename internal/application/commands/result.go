package commands

import (
	"errors"

	"arbor/internal/application"
	"arbor/internal/domain"
)

// ErrProcessorStopped is reported for commands submitted after Run returned
var ErrProcessorStopped = errors.New("command processor stopped")

// CommandResult is what a submitted command reports back. Failures carry a
// taxonomy code; Go errors never cross the processor boundary.
type CommandResult struct {
	Success       bool             `json:"success"`
	CommandID     string           `json:"commandId"`
	Seq           int64            `json:"seq,omitempty"`
	NodeID        string           `json:"nodeId,omitempty"`
	NodeIDs       []string         `json:"nodeIds,omitempty"`
	WorkingCopyID string           `json:"workingCopyId,omitempty"`
	IDMap         domain.IDMap     `json:"idMap,omitempty"`
	Error         string           `json:"error,omitempty"`
	Code          application.Code `json:"code,omitempty"`
}

// Err rebuilds an error from a failed result, nil on success
func (r CommandResult) Err() error {
	if r.Success {
		return nil
	}
	return &application.Error{Code: r.Code, Op: "command", ID: r.CommandID, Message: r.Error}
}

func failure(env domain.CommandEnvelope, err error) CommandResult {
	return CommandResult{
		CommandID: env.CommandID,
		Error:     err.Error(),
		Code:      application.CodeOf(err),
	}
}
