// Package workingcopy isolates drafts and edits from the durable tree until
// they are committed.
package workingcopy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"arbor/internal/application"
	"arbor/internal/application/lifecycle"
	"arbor/internal/domain"
	"arbor/internal/ports"
)

// Manager creates, updates, commits and discards working copies
type Manager struct {
	nodes     ports.NodeReader
	ephemeral ports.EphemeralStore
	entities  *lifecycle.Manager
	logger    *slog.Logger
	now       func() time.Time

	// committed holds copies whose node is written but whose ephemeral
	// entry could not be deleted yet. They are treated as gone.
	mu        sync.Mutex
	committed map[string]bool
}

// NewManager creates a working copy manager
func NewManager(nodes ports.NodeReader, ephemeral ports.EphemeralStore, entities *lifecycle.Manager, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		nodes:     nodes,
		ephemeral: ephemeral,
		entities:  entities,
		logger:    logger.With("component", "workingcopy"),
		now:       func() time.Time { return time.Now().UTC() },
		committed: map[string]bool{},
	}
}

func (m *Manager) isCommitted(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committed[id]
}

// load returns a live working copy, hiding committed ones
func (m *Manager) load(ctx context.Context, op, id string) (*domain.WorkingCopy, error) {
	if m.isCommitted(id) {
		return nil, application.Errorf(application.CodeWorkingCopyNotFound, op, id, "working copy was already committed")
	}
	wc, err := m.ephemeral.GetWorkingCopy(ctx, id)
	if err != nil {
		return nil, err
	}
	if wc == nil {
		return nil, application.WorkingCopyNotFound(op, id)
	}
	return wc, nil
}

// Get loads a working copy
func (m *Manager) Get(ctx context.Context, id string) (*domain.WorkingCopy, error) {
	return m.load(ctx, "get", id)
}

// List returns every live working copy
func (m *Manager) List(ctx context.Context) ([]domain.WorkingCopy, error) {
	all, err := m.ephemeral.ListWorkingCopies(ctx)
	if err != nil {
		return nil, err
	}
	live := all[:0]
	for _, wc := range all {
		if !m.isCommitted(wc.ID) {
			live = append(live, wc)
		}
	}
	return live, nil
}

// CreateDraft opens a working copy for a node that does not exist yet
func (m *Manager) CreateDraft(ctx context.Context, parentID, nodeType, baseName string, data json.RawMessage) (*domain.WorkingCopy, error) {
	const op = "createDraft"

	if !m.entities.Registry().Has(nodeType) || nodeType == domain.TrashNodeType {
		return nil, &application.ValidationError{Field: "nodeType", Message: fmt.Sprintf("unknown node type %q", nodeType)}
	}
	name := domain.NormalizeName(baseName)
	if err := application.ValidateName("name", name); err != nil {
		return nil, err
	}
	if err := m.checkParent(ctx, m.nodes, op, parentID); err != nil {
		return nil, err
	}

	wc := domain.WorkingCopy{
		ID:       domain.NewID(),
		IsDraft:  true,
		ParentID: parentID,
		NodeType: nodeType,
		Name:     name,
		Data:     data,
		IsDirty:  true,
		CopiedAt: m.now(),
	}
	if err := m.ephemeral.PutWorkingCopy(ctx, wc); err != nil {
		return nil, fmt.Errorf("store draft: %w", err)
	}
	m.logger.Debug("draft created", "workingCopy", wc.ID, "parent", parentID, "type", nodeType)
	return &wc, nil
}

// CreateFromNode opens an edit of an existing node. Only one live copy may
// exist per node.
func (m *Manager) CreateFromNode(ctx context.Context, nodeID string) (*domain.WorkingCopy, error) {
	const op = "createWorkingCopy"

	node, err := m.nodes.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, application.NotFound(op, nodeID)
	}
	if node.IsTrashRoot() {
		return nil, &application.ValidationError{Field: "nodeId", Message: "the trash cannot be edited"}
	}

	existing, err := m.ephemeral.FindByNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if existing != nil && m.isCommitted(existing.ID) {
		if err := m.Finalize(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("remove committed working copy: %w", err)
		}
		existing = nil
	}
	if existing != nil {
		return nil, application.Errorf(application.CodeWorkingCopyExists, op, nodeID,
			"working copy %s is already open", existing.ID)
	}

	data, err := m.entities.WorkingCopyData(ctx, m.nodes, *node)
	if err != nil {
		return nil, fmt.Errorf("load entity for %s: %w", nodeID, err)
	}

	wc := domain.WorkingCopy{
		ID:              domain.NewID(),
		NodeID:          node.ID,
		ParentID:        node.ParentID,
		NodeType:        node.NodeType,
		Name:            node.Name,
		Data:            data,
		OriginalVersion: node.Version,
		CopiedAt:        m.now(),
	}
	if err := m.ephemeral.PutWorkingCopy(ctx, wc); err != nil {
		return nil, fmt.Errorf("store working copy: %w", err)
	}
	m.logger.Debug("working copy created", "workingCopy", wc.ID, "node", nodeID, "version", node.Version)
	return &wc, nil
}

// Update applies patch to a working copy
func (m *Manager) Update(ctx context.Context, id string, patch domain.WorkingCopyPatch) (*domain.WorkingCopy, error) {
	wc, err := m.load(ctx, "updateWorkingCopy", id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		name := domain.NormalizeName(*patch.Name)
		if err := application.ValidateName("name", name); err != nil {
			return nil, err
		}
		patch.Name = &name
	}

	updated := patch.Apply(*wc)
	if err := m.ephemeral.PutWorkingCopy(ctx, updated); err != nil {
		return nil, fmt.Errorf("store working copy: %w", err)
	}
	return &updated, nil
}

// Commit writes a working copy into tx and returns the node as written.
// The copy itself is removed by Finalize once tx has committed.
func (m *Manager) Commit(ctx context.Context, tx ports.NodeTx, id string, policy domain.NameConflictPolicy) (*domain.TreeNode, *domain.WorkingCopy, error) {
	wc, err := m.load(ctx, "commitWorkingCopy", id)
	if err != nil {
		return nil, nil, err
	}
	if err := application.ValidateName("name", wc.Name); err != nil {
		return nil, nil, err
	}

	var node *domain.TreeNode
	if wc.IsDraft {
		node, err = m.commitDraft(ctx, tx, *wc, policy.OrDefault())
	} else {
		node, err = m.commitEdit(ctx, tx, *wc, policy.OrDefault())
	}
	if err != nil {
		return nil, nil, err
	}

	if err := m.entities.CommitWorkingCopy(ctx, tx, *node, *wc); err != nil {
		return nil, nil, err
	}
	return node, wc, nil
}

func (m *Manager) commitDraft(ctx context.Context, tx ports.NodeTx, wc domain.WorkingCopy, policy domain.NameConflictPolicy) (*domain.TreeNode, error) {
	const op = "commitWorkingCopy"

	if err := m.checkParent(ctx, tx, op, wc.ParentID); err != nil {
		return nil, err
	}
	name, err := ResolveName(ctx, tx, wc.ParentID, wc.Name, "", policy)
	var conflict *application.NameConflictError
	if errors.As(err, &conflict) {
		// a new node that cannot take its name is an invalid draft
		return nil, &application.Error{Code: application.CodeValidation, Op: op, ID: wc.ID, Err: conflict}
	}
	if err != nil {
		return nil, err
	}

	now := m.now()
	node := domain.TreeNode{
		ID:        domain.NewID(),
		ParentID:  wc.ParentID,
		NodeType:  wc.NodeType,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if err := tx.PutNode(ctx, node); err != nil {
		return nil, fmt.Errorf("write node: %w", err)
	}
	return &node, nil
}

func (m *Manager) commitEdit(ctx context.Context, tx ports.NodeTx, wc domain.WorkingCopy, policy domain.NameConflictPolicy) (*domain.TreeNode, error) {
	const op = "commitWorkingCopy"

	current, err := tx.GetNode(ctx, wc.NodeID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, application.NotFound(op, wc.NodeID)
	}
	if current.Version != wc.OriginalVersion {
		return nil, &application.ConflictError{NodeID: current.ID, Expected: wc.OriginalVersion, Actual: current.Version}
	}

	node := *current
	if wc.Name != current.Name {
		node.Name, err = ResolveName(ctx, tx, current.ParentID, wc.Name, current.ID, policy)
		if err != nil {
			return nil, err
		}
	}
	node.Version = current.Version + 1
	node.UpdatedAt = m.now()
	if err := tx.PutNode(ctx, node); err != nil {
		return nil, fmt.Errorf("write node: %w", err)
	}
	return &node, nil
}

// Finalize removes a committed working copy. The copy is marked committed
// first, so a failed delete cannot let it be committed a second time; the
// janitor retries the delete.
func (m *Manager) Finalize(ctx context.Context, id string) error {
	m.mu.Lock()
	m.committed[id] = true
	m.mu.Unlock()

	if err := m.ephemeral.DeleteWorkingCopy(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.committed, id)
	m.mu.Unlock()
	return nil
}

// retryFinalize deletes committed copies left behind by a failed Finalize
func (m *Manager) retryFinalize(ctx context.Context) {
	m.mu.Lock()
	pending := make([]string, 0, len(m.committed))
	for id := range m.committed {
		pending = append(pending, id)
	}
	m.mu.Unlock()

	for _, id := range pending {
		if err := m.Finalize(ctx, id); err != nil {
			m.logger.Warn("committed working copy still present", "workingCopy", id, "error", err)
		}
	}
}

// Discard drops a working copy and any entity-side draft. The tree is untouched.
func (m *Manager) Discard(ctx context.Context, id string) (*domain.WorkingCopy, error) {
	wc, err := m.load(ctx, "discardWorkingCopy", id)
	if err != nil {
		return nil, err
	}
	if err := m.entities.DiscardWorkingCopy(ctx, *wc); err != nil {
		return nil, fmt.Errorf("discard entity draft: %w", err)
	}
	if err := m.ephemeral.DeleteWorkingCopy(ctx, id); err != nil {
		return nil, err
	}
	m.logger.Debug("working copy discarded", "workingCopy", id)
	return wc, nil
}

// Sweep discards working copies older than ttl
func (m *Manager) Sweep(ctx context.Context, ttl time.Duration) ([]domain.WorkingCopy, error) {
	m.retryFinalize(ctx)
	swept, err := m.ephemeral.Sweep(ctx, ttl)
	if err != nil {
		return nil, err
	}
	expired := swept[:0]
	for _, wc := range swept {
		if m.isCommitted(wc.ID) {
			m.mu.Lock()
			delete(m.committed, wc.ID)
			m.mu.Unlock()
			continue
		}
		expired = append(expired, wc)
	}
	for _, wc := range expired {
		if err := m.entities.DiscardWorkingCopy(ctx, wc); err != nil {
			m.logger.Warn("discard expired entity draft failed", "workingCopy", wc.ID, "error", err)
		}
	}
	if len(expired) > 0 {
		m.logger.Info("expired working copies discarded", "count", len(expired))
	}
	return expired, nil
}

func (m *Manager) checkParent(ctx context.Context, r ports.NodeReader, op, parentID string) error {
	if parentID == "" {
		return nil
	}
	if parentID == domain.TrashRootID {
		return &application.ValidationError{Field: "parentId", Message: "nodes cannot be created in the trash"}
	}
	parent, err := r.GetNode(ctx, parentID)
	if err != nil {
		return err
	}
	if parent == nil {
		return application.NotFound(op, parentID)
	}
	return nil
}
