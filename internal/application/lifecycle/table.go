package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"

	"arbor/internal/domain"
	"arbor/internal/ports"
)

// TableHandler is the stock EntityHandler. It keeps entity data in the
// entity_<type> table: one row keyed by node id for peer and relational
// types, one row per element of a JSON array for group types.
type TableHandler struct {
	kind  string
	shape domain.EntityType
}

// Ensure TableHandler implements EntityHandler
var _ ports.EntityHandler = (*TableHandler)(nil)

// NewTableHandler builds a handler for the type described by meta
func NewTableHandler(meta domain.EntityMetadata) *TableHandler {
	shape := meta.EntityType
	if shape == "" {
		shape = domain.EntityPeer
	}
	return &TableHandler{kind: meta.NodeType, shape: shape}
}

func (h *TableHandler) CreateEntity(ctx context.Context, tx ports.NodeTx, nodeID string, data json.RawMessage) error {
	if h.shape != domain.EntityGroup {
		return tx.PutEntity(ctx, domain.EntityRecord{Kind: h.kind, ID: nodeID, NodeID: nodeID, Data: data})
	}

	items, err := splitGroup(data)
	if err != nil {
		return err
	}
	for i, item := range items {
		// Row ids sort in element order
		rec := domain.EntityRecord{Kind: h.kind, ID: groupRowID(nodeID, i), NodeID: nodeID, Data: item}
		if err := tx.PutEntity(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (h *TableHandler) GetEntity(ctx context.Context, r ports.NodeReader, nodeID string) (json.RawMessage, error) {
	if h.shape != domain.EntityGroup {
		rec, err := r.GetEntity(ctx, h.kind, nodeID)
		if err != nil || rec == nil {
			return nil, err
		}
		return rec.Data, nil
	}

	recs, err := r.ListEntities(ctx, h.kind, nodeID)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	items := make([]json.RawMessage, len(recs))
	for i, rec := range recs {
		items[i] = rec.Data
	}
	return json.Marshal(items)
}

func (h *TableHandler) UpdateEntity(ctx context.Context, tx ports.NodeTx, nodeID string, data json.RawMessage) error {
	if h.shape == domain.EntityGroup {
		if err := h.DeleteEntity(ctx, tx, nodeID); err != nil {
			return err
		}
	}
	return h.CreateEntity(ctx, tx, nodeID, data)
}

func (h *TableHandler) DeleteEntity(ctx context.Context, tx ports.NodeTx, nodeID string) error {
	if h.shape != domain.EntityGroup {
		return tx.DeleteEntity(ctx, h.kind, nodeID)
	}
	recs, err := tx.ListEntities(ctx, h.kind, nodeID)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := tx.DeleteEntity(ctx, h.kind, rec.ID); err != nil {
			return err
		}
	}
	return nil
}

func (h *TableHandler) CreateWorkingCopy(ctx context.Context, r ports.NodeReader, nodeID string) (json.RawMessage, error) {
	return h.GetEntity(ctx, r, nodeID)
}

func (h *TableHandler) CommitWorkingCopy(ctx context.Context, tx ports.NodeTx, nodeID string, wc domain.WorkingCopy) error {
	if wc.IsDraft {
		return h.CreateEntity(ctx, tx, nodeID, wc.Data)
	}
	return h.UpdateEntity(ctx, tx, nodeID, wc.Data)
}

// DiscardWorkingCopy has nothing to release; drafts live on the copy itself
func (h *TableHandler) DiscardWorkingCopy(ctx context.Context, wc domain.WorkingCopy) error {
	return nil
}

func groupRowID(nodeID string, i int) string {
	return fmt.Sprintf("%s#%06d", nodeID, i)
}

func splitGroup(data json.RawMessage) ([]json.RawMessage, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("group entity data must be a JSON array: %w", err)
	}
	return items, nil
}
