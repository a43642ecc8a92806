package lifecycle

import (
	"context"
	"encoding/json"

	"arbor/internal/domain"
	"arbor/internal/ports"
)

// HookEvent is handed to lifecycle hooks. Hooks run inside the command's
// transaction; returning an error aborts the whole command.
type HookEvent struct {
	Node        domain.TreeNode
	Data        json.RawMessage
	WorkingCopy *domain.WorkingCopy
	Tx          ports.NodeTx
}

// Hook observes or vetoes a state transition
type Hook func(ctx context.Context, ev HookEvent) error

// Hooks are the optional per type callbacks. Nil entries are skipped.
type Hooks struct {
	BeforeCreate Hook
	AfterCreate  Hook
	BeforeUpdate Hook
	AfterUpdate  Hook
	BeforeDelete Hook
	AfterDelete  Hook
	BeforeCommit Hook
	AfterCommit  Hook
}

func (h Hook) run(ctx context.Context, ev HookEvent) error {
	if h == nil {
		return nil
	}
	return h(ctx, ev)
}
