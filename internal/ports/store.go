package ports

import (
	"context"
	"time"

	"arbor/internal/domain"
)

// ChunkSize bounds the number of ids bound to a single statement
const ChunkSize = 100

// NodeReader exposes committed state. Missing rows come back as (nil, nil).
type NodeReader interface {
	GetNode(ctx context.Context, id string) (*domain.TreeNode, error)
	GetNodes(ctx context.Context, ids []string) (map[string]domain.TreeNode, error)

	// ListChildren returns direct children ordered by name; "" lists roots
	ListChildren(ctx context.Context, parentID string) ([]domain.TreeNode, error)
	// ListChildrenOf returns the direct children of every listed parent
	ListChildrenOf(ctx context.Context, parentIDs []string) ([]domain.TreeNode, error)
	ListByType(ctx context.Context, nodeType string) ([]domain.TreeNode, error)
	ScanNodes(ctx context.Context, fn func(domain.TreeNode) error) error

	// Entity and resource tables, one pair per registered kind
	GetEntity(ctx context.Context, kind, id string) (*domain.EntityRecord, error)
	ListEntities(ctx context.Context, kind, nodeID string) ([]domain.EntityRecord, error)
	GetResource(ctx context.Context, kind, id string) (*domain.RelationalResource, error)
}

// NodeWriter mutates durable state. Only available inside a transaction.
type NodeWriter interface {
	PutNode(ctx context.Context, node domain.TreeNode) error
	DeleteNodes(ctx context.Context, ids []string) error
	// SetCounts rewrites derived counters without touching the version
	SetCounts(ctx context.Context, id string, hasChildren bool, descendants int) error

	PutEntity(ctx context.Context, rec domain.EntityRecord) error
	DeleteEntity(ctx context.Context, kind, id string) error
	PutResource(ctx context.Context, res domain.RelationalResource) error
	DeleteResource(ctx context.Context, kind, id string) error
}

// NodeTx is an atomic unit over the node, entity and resource tables
type NodeTx interface {
	NodeReader
	NodeWriter

	Commit() error
	Rollback() error
}

// NodeStore is the durable tree store
type NodeStore interface {
	NodeReader

	BeginTx(ctx context.Context) (NodeTx, error)
	// EnsureKind creates the entity and resource tables for kind
	EnsureKind(ctx context.Context, kind string) error
	Close() error
}

// EphemeralStore keeps working copies and session state outside the durable
// store. Entries expire after the configured TTL.
type EphemeralStore interface {
	PutWorkingCopy(ctx context.Context, wc domain.WorkingCopy) error
	GetWorkingCopy(ctx context.Context, id string) (*domain.WorkingCopy, error)
	FindByNode(ctx context.Context, nodeID string) (*domain.WorkingCopy, error)
	DeleteWorkingCopy(ctx context.Context, id string) error
	ListWorkingCopies(ctx context.Context) ([]domain.WorkingCopy, error)

	PutSession(ctx context.Context, key string, value []byte) error
	GetSession(ctx context.Context, key string) ([]byte, error)

	// Sweep deletes working copies older than maxAge and returns them
	Sweep(ctx context.Context, maxAge time.Duration) ([]domain.WorkingCopy, error)
	Clear(ctx context.Context) error
	Close() error
}
