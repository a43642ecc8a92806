package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"arbor/internal/domain"
	"arbor/internal/ports"
)

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const nodeColumns = `id, parent_id, node_type, name, version, created_at, updated_at,
	has_children, descendant_count, trashed_from, trashed_at`

// reader implements ports.NodeReader over either the pool or a transaction
type reader struct {
	q     queryer
	kinds *kindSet
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (domain.TreeNode, error) {
	var n domain.TreeNode
	var created, updated, trashedAt int64
	err := row.Scan(&n.ID, &n.ParentID, &n.NodeType, &n.Name, &n.Version, &created, &updated,
		&n.HasChildren, &n.DescendantCount, &n.TrashedFrom, &trashedAt)
	if err != nil {
		return n, err
	}
	n.CreatedAt = fromNanos(created)
	n.UpdatedAt = fromNanos(updated)
	n.TrashedAt = fromNanos(trashedAt)
	return n, nil
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func collectNodes(rows *sql.Rows) ([]domain.TreeNode, error) {
	defer rows.Close()

	var nodes []domain.TreeNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// GetNode retrieves a node by id
func (r reader) GetNode(ctx context.Context, id string) (*domain.TreeNode, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// GetNodes loads every existing node among ids, ChunkSize ids per query
func (r reader) GetNodes(ctx context.Context, ids []string) (map[string]domain.TreeNode, error) {
	out := make(map[string]domain.TreeNode, len(ids))
	err := forEachChunk(ids, func(chunk []string) error {
		rows, err := r.q.QueryContext(ctx,
			`SELECT `+nodeColumns+` FROM nodes WHERE id IN (`+placeholders(len(chunk))+`)`,
			anySlice(chunk)...)
		if err != nil {
			return err
		}
		nodes, err := collectNodes(rows)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			out[n.ID] = n
		}
		return nil
	})
	return out, err
}

// ListChildren returns direct children of parentID ordered by name
func (r reader) ListChildren(ctx context.Context, parentID string) ([]domain.TreeNode, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM nodes
		WHERE parent_id = ? AND id != ?
		ORDER BY name COLLATE NOCASE, id
	`, parentID, domain.TrashRootID)
	if err != nil {
		return nil, err
	}
	return collectNodes(rows)
}

// ListChildrenOf returns the direct children of all parentIDs, ChunkSize
// parents per query
func (r reader) ListChildrenOf(ctx context.Context, parentIDs []string) ([]domain.TreeNode, error) {
	var out []domain.TreeNode
	err := forEachChunk(parentIDs, func(chunk []string) error {
		rows, err := r.q.QueryContext(ctx, `
			SELECT `+nodeColumns+` FROM nodes
			WHERE parent_id IN (`+placeholders(len(chunk))+`) AND id != ?
			ORDER BY name COLLATE NOCASE, id
		`, append(anySlice(chunk), domain.TrashRootID)...)
		if err != nil {
			return err
		}
		nodes, err := collectNodes(rows)
		if err != nil {
			return err
		}
		out = append(out, nodes...)
		return nil
	})
	return out, err
}

// ListByType returns every node of nodeType
func (r reader) ListByType(ctx context.Context, nodeType string) ([]domain.TreeNode, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM nodes
		WHERE node_type = ?
		ORDER BY name COLLATE NOCASE, id
	`, nodeType)
	if err != nil {
		return nil, err
	}
	return collectNodes(rows)
}

// ScanNodes streams every node to fn, stopping at the first error
func (r reader) ScanNodes(ctx context.Context, fn func(domain.TreeNode) error) error {
	rows, err := r.q.QueryContext(ctx, `SELECT `+nodeColumns+` FROM nodes ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return err
		}
		if err := fn(n); err != nil {
			return err
		}
	}
	return rows.Err()
}

// GetEntity retrieves one entity row; unknown kinds have no rows
func (r reader) GetEntity(ctx context.Context, kind, id string) (*domain.EntityRecord, error) {
	if !r.kinds.has(kind) {
		return nil, nil
	}
	rec := domain.EntityRecord{Kind: kind}
	var data string
	err := r.q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, node_id, data FROM entity_%s WHERE id = ?`, kind), id,
	).Scan(&rec.ID, &rec.NodeID, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Data = json.RawMessage(data)
	return &rec, nil
}

// ListEntities returns the entity rows owned by nodeID
func (r reader) ListEntities(ctx context.Context, kind, nodeID string) ([]domain.EntityRecord, error) {
	if !r.kinds.has(kind) {
		return nil, nil
	}
	rows, err := r.q.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, node_id, data FROM entity_%s WHERE node_id = ? ORDER BY id`, kind), nodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.EntityRecord
	for rows.Next() {
		rec := domain.EntityRecord{Kind: kind}
		var data string
		if err := rows.Scan(&rec.ID, &rec.NodeID, &data); err != nil {
			return nil, err
		}
		rec.Data = json.RawMessage(data)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// GetResource retrieves a shared resource
func (r reader) GetResource(ctx context.Context, kind, id string) (*domain.RelationalResource, error) {
	if !r.kinds.has(kind) {
		return nil, nil
	}
	res := domain.RelationalResource{Kind: kind}
	var refs string
	var data sql.NullString
	err := r.q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, ref_count, refs, data FROM resource_%s WHERE id = ?`, kind), id,
	).Scan(&res.ID, &res.ReferenceCount, &refs, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(refs), &res.ReferencingNodeIDs); err != nil {
		return nil, fmt.Errorf("corrupt refs for %s/%s: %w", kind, id, err)
	}
	if data.Valid {
		res.Data = json.RawMessage(data.String)
	}
	return &res, nil
}

// forEachChunk calls fn with consecutive slices of at most ChunkSize ids
func forEachChunk(ids []string, fn func([]string) error) error {
	for start := 0; start < len(ids); start += ports.ChunkSize {
		end := min(start+ports.ChunkSize, len(ids))
		if err := fn(ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
