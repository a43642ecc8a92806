package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"arbor/internal/domain"
	"arbor/internal/ports"
)

// nodeTx implements ports.NodeTx
type nodeTx struct {
	reader
	tx *sql.Tx
}

// Ensure nodeTx implements NodeTx
var _ ports.NodeTx = (*nodeTx)(nil)

// PutNode inserts or replaces a node
func (t *nodeTx) PutNode(ctx context.Context, n domain.TreeNode) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO nodes (`+nodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.ParentID, n.NodeType, n.Name, n.Version, toNanos(n.CreatedAt), toNanos(n.UpdatedAt),
		n.HasChildren, n.DescendantCount, n.TrashedFrom, toNanos(n.TrashedAt))
	return err
}

// DeleteNodes removes nodes by id, ChunkSize ids per statement
func (t *nodeTx) DeleteNodes(ctx context.Context, ids []string) error {
	return forEachChunk(ids, func(chunk []string) error {
		_, err := t.tx.ExecContext(ctx,
			`DELETE FROM nodes WHERE id IN (`+placeholders(len(chunk))+`)`, anySlice(chunk)...)
		return err
	})
}

// SetCounts rewrites the derived counters of a node
func (t *nodeTx) SetCounts(ctx context.Context, id string, hasChildren bool, descendants int) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE nodes SET has_children = ?, descendant_count = ? WHERE id = ?
	`, hasChildren, descendants, id)
	return err
}

// PutEntity inserts or replaces an entity row
func (t *nodeTx) PutEntity(ctx context.Context, rec domain.EntityRecord) error {
	if !t.kinds.has(rec.Kind) {
		return fmt.Errorf("no entity table for kind %q", rec.Kind)
	}
	data := rec.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	_, err := t.tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT OR REPLACE INTO entity_%s (id, node_id, data) VALUES (?, ?, ?)`, rec.Kind),
		rec.ID, rec.NodeID, string(data))
	return err
}

// DeleteEntity removes an entity row
func (t *nodeTx) DeleteEntity(ctx context.Context, kind, id string) error {
	if !t.kinds.has(kind) {
		return nil
	}
	_, err := t.tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM entity_%s WHERE id = ?`, kind), id)
	return err
}

// PutResource inserts or replaces a shared resource
func (t *nodeTx) PutResource(ctx context.Context, res domain.RelationalResource) error {
	if !t.kinds.has(res.Kind) {
		return fmt.Errorf("no resource table for kind %q", res.Kind)
	}
	refs := res.ReferencingNodeIDs
	if refs == nil {
		refs = []string{}
	}
	encoded, err := json.Marshal(refs)
	if err != nil {
		return err
	}
	var data any
	if len(res.Data) > 0 {
		data = string(res.Data)
	}
	_, err = t.tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT OR REPLACE INTO resource_%s (id, ref_count, refs, data) VALUES (?, ?, ?, ?)`, res.Kind),
		res.ID, len(refs), string(encoded), data)
	return err
}

// DeleteResource removes a shared resource
func (t *nodeTx) DeleteResource(ctx context.Context, kind, id string) error {
	if !t.kinds.has(kind) {
		return nil
	}
	_, err := t.tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM resource_%s WHERE id = ?`, kind), id)
	return err
}

// Commit commits the transaction
func (t *nodeTx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction
func (t *nodeTx) Rollback() error {
	return t.tx.Rollback()
}
