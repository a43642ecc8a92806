package ports

import (
	"context"
	"encoding/json"

	"arbor/internal/domain"
)

// EntityHandler stores and loads the entity data behind nodes of one type.
// Every write happens inside the transaction of the command that caused it.
type EntityHandler interface {
	CreateEntity(ctx context.Context, tx NodeTx, nodeID string, data json.RawMessage) error
	GetEntity(ctx context.Context, r NodeReader, nodeID string) (json.RawMessage, error)
	UpdateEntity(ctx context.Context, tx NodeTx, nodeID string, data json.RawMessage) error
	DeleteEntity(ctx context.Context, tx NodeTx, nodeID string) error

	// CreateWorkingCopy returns the editable form of a node's entity
	CreateWorkingCopy(ctx context.Context, r NodeReader, nodeID string) (json.RawMessage, error)
	// CommitWorkingCopy persists wc.Data for nodeID, creating or replacing it
	CommitWorkingCopy(ctx context.Context, tx NodeTx, nodeID string, wc domain.WorkingCopy) error
	// DiscardWorkingCopy releases anything held for an abandoned copy
	DiscardWorkingCopy(ctx context.Context, wc domain.WorkingCopy) error
}

// Duplicator copies entity data between nodes. idMap holds every node id
// remapped so far so that internal references can follow the copy.
type Duplicator interface {
	Duplicate(ctx context.Context, tx NodeTx, srcNodeID, dstNodeID string, idMap domain.IDMap) error
}

// BackupRestorer serializes entity data for export and reads it back on import
type BackupRestorer interface {
	Backup(ctx context.Context, r NodeReader, nodeID string) (json.RawMessage, error)
	Restore(ctx context.Context, tx NodeTx, nodeID string, data json.RawMessage) error
}

// Cleaner releases side resources once a node's entity is gone
type Cleaner interface {
	Cleanup(ctx context.Context, tx NodeTx, nodeID string) error
}
