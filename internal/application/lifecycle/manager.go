package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"arbor/internal/application"
	"arbor/internal/domain"
	"arbor/internal/ports"
)

// ResourceLookup resolves a resource carried alongside pasted or imported data.
// It is consulted only when the store does not have the resource yet.
type ResourceLookup func(kind, id string) (domain.RelationalResource, bool)

// Manager runs entity writes for nodes, firing hooks and keeping shared
// resource reference counts in step with node ownership
type Manager struct {
	registry *Registry
	logger   *slog.Logger
}

// NewManager creates a lifecycle manager over registry
func NewManager(registry *Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{registry: registry, logger: logger.With("component", "lifecycle")}
}

// Registry returns the registry the manager resolves types with
func (m *Manager) Registry() *Registry {
	return m.registry
}

func (m *Manager) lookup(nodeType string) (Registration, bool) {
	reg, ok := m.registry.Lookup(nodeType)
	if !ok || reg.Handler == nil {
		return reg, false
	}
	return reg, true
}

// EntityData returns the stored entity data of node, nil for types without one
func (m *Manager) EntityData(ctx context.Context, r ports.NodeReader, node domain.TreeNode) (json.RawMessage, error) {
	reg, ok := m.lookup(node.NodeType)
	if !ok {
		return nil, nil
	}
	return reg.Handler.GetEntity(ctx, r, node.ID)
}

// WorkingCopyData returns the editable entity data used to seed an edit copy
func (m *Manager) WorkingCopyData(ctx context.Context, r ports.NodeReader, node domain.TreeNode) (json.RawMessage, error) {
	reg, ok := m.lookup(node.NodeType)
	if !ok {
		return nil, nil
	}
	return reg.Handler.CreateWorkingCopy(ctx, r, node.ID)
}

// CreateEntity stores data for a freshly created node
func (m *Manager) CreateEntity(ctx context.Context, tx ports.NodeTx, node domain.TreeNode, data json.RawMessage, lookup ResourceLookup) error {
	reg, ok := m.lookup(node.NodeType)
	if !ok {
		return nil
	}
	ev := HookEvent{Node: node, Data: data, Tx: tx}
	if err := reg.Hooks.BeforeCreate.run(ctx, ev); err != nil {
		return hookError("beforeCreate", node, err)
	}

	data, err := m.attach(ctx, tx, reg, node.ID, data, lookup)
	if err != nil {
		return err
	}
	if err := reg.Handler.CreateEntity(ctx, tx, node.ID, data); err != nil {
		return fmt.Errorf("create entity for %s: %w", node.ID, err)
	}

	ev.Data = data
	if err := reg.Hooks.AfterCreate.run(ctx, ev); err != nil {
		return hookError("afterCreate", node, err)
	}
	return nil
}

// UpdateEntity replaces the entity data of an existing node
func (m *Manager) UpdateEntity(ctx context.Context, tx ports.NodeTx, node domain.TreeNode, data json.RawMessage) error {
	reg, ok := m.lookup(node.NodeType)
	if !ok {
		return nil
	}
	ev := HookEvent{Node: node, Data: data, Tx: tx}
	if err := reg.Hooks.BeforeUpdate.run(ctx, ev); err != nil {
		return hookError("beforeUpdate", node, err)
	}

	data, err := m.relink(ctx, tx, reg, node.ID, data)
	if err != nil {
		return err
	}
	if err := reg.Handler.UpdateEntity(ctx, tx, node.ID, data); err != nil {
		return fmt.Errorf("update entity for %s: %w", node.ID, err)
	}

	ev.Data = data
	if err := reg.Hooks.AfterUpdate.run(ctx, ev); err != nil {
		return hookError("afterUpdate", node, err)
	}
	return nil
}

// CommitWorkingCopy hands a committed copy's data to the type's handler.
// node is the row as written by the commit.
func (m *Manager) CommitWorkingCopy(ctx context.Context, tx ports.NodeTx, node domain.TreeNode, wc domain.WorkingCopy) error {
	reg, ok := m.registry.Lookup(node.NodeType)
	if !ok {
		return nil
	}
	ev := HookEvent{Node: node, Data: wc.Data, WorkingCopy: &wc, Tx: tx}
	if err := reg.Hooks.BeforeCommit.run(ctx, ev); err != nil {
		return hookError("beforeCommit", node, err)
	}

	before, after := reg.Hooks.BeforeUpdate, reg.Hooks.AfterUpdate
	if wc.IsDraft {
		before, after = reg.Hooks.BeforeCreate, reg.Hooks.AfterCreate
	}
	if err := before.run(ctx, ev); err != nil {
		return hookError("before", node, err)
	}

	if reg.Handler != nil && (wc.IsDraft || len(wc.Data) > 0) {
		data := wc.Data
		var err error
		if wc.IsDraft {
			data, err = m.attach(ctx, tx, reg, node.ID, data, nil)
		} else {
			data, err = m.relink(ctx, tx, reg, node.ID, data)
		}
		if err != nil {
			return err
		}
		wc.Data = data
		if err := reg.Handler.CommitWorkingCopy(ctx, tx, node.ID, wc); err != nil {
			return fmt.Errorf("commit entity for %s: %w", node.ID, err)
		}
		ev.Data = data
	}

	if err := after.run(ctx, ev); err != nil {
		return hookError("after", node, err)
	}
	if err := reg.Hooks.AfterCommit.run(ctx, ev); err != nil {
		return hookError("afterCommit", node, err)
	}
	return nil
}

// DiscardWorkingCopy lets the handler drop entity-side drafts
func (m *Manager) DiscardWorkingCopy(ctx context.Context, wc domain.WorkingCopy) error {
	reg, ok := m.lookup(wc.NodeType)
	if !ok {
		return nil
	}
	return reg.Handler.DiscardWorkingCopy(ctx, wc)
}

// DeleteEntities removes the entity data of nodes that are being deleted.
// Relational links always go and release their resource; peer and group
// rows go only when the relationship cascades. Delete hooks fire for every
// registered type, with or without a handler.
func (m *Manager) DeleteEntities(ctx context.Context, tx ports.NodeTx, nodes []domain.TreeNode) error {
	for _, node := range nodes {
		reg, ok := m.registry.Lookup(node.NodeType)
		if !ok {
			continue
		}
		ev := HookEvent{Node: node, Tx: tx}
		if err := reg.Hooks.BeforeDelete.run(ctx, ev); err != nil {
			return hookError("beforeDelete", node, err)
		}
		if reg.Handler != nil {
			if err := m.deleteEntity(ctx, tx, reg, node.ID); err != nil {
				return err
			}
		}
		if err := reg.Hooks.AfterDelete.run(ctx, ev); err != nil {
			return hookError("afterDelete", node, err)
		}
	}
	return nil
}

func (m *Manager) deleteEntity(ctx context.Context, tx ports.NodeTx, reg Registration, nodeID string) error {
	meta := reg.Metadata
	if meta.IsRelational() {
		if err := m.detach(ctx, tx, reg, nodeID); err != nil {
			return err
		}
	}
	if meta.IsRelational() || meta.Relationship.CascadeDelete {
		if err := reg.Handler.DeleteEntity(ctx, tx, nodeID); err != nil {
			return fmt.Errorf("delete entity for %s: %w", nodeID, err)
		}
	}
	if c, ok := reg.Handler.(ports.Cleaner); ok {
		if err := c.Cleanup(ctx, tx, nodeID); err != nil {
			return fmt.Errorf("cleanup %s: %w", nodeID, err)
		}
	}
	return nil
}

// DuplicateEntity copies src's entity data to dst. Handlers implementing
// ports.Duplicator do it themselves; otherwise ids found in the data are
// remapped through idMap and the result is created as dst's entity.
func (m *Manager) DuplicateEntity(ctx context.Context, tx ports.NodeTx, src, dst domain.TreeNode, idMap domain.IDMap) error {
	reg, ok := m.lookup(src.NodeType)
	if !ok {
		return nil
	}
	if d, ok := reg.Handler.(ports.Duplicator); ok {
		if err := d.Duplicate(ctx, tx, src.ID, dst.ID, idMap); err != nil {
			return fmt.Errorf("duplicate entity %s: %w", src.ID, err)
		}
		return nil
	}
	data, err := reg.Handler.GetEntity(ctx, tx, src.ID)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}
	return m.CreateEntity(ctx, tx, dst, idMap.Remap(data), nil)
}

// Backup serializes node's entity for a snapshot
func (m *Manager) Backup(ctx context.Context, r ports.NodeReader, node domain.TreeNode) (json.RawMessage, error) {
	reg, ok := m.lookup(node.NodeType)
	if !ok {
		return nil, nil
	}
	if b, ok := reg.Handler.(ports.BackupRestorer); ok {
		return b.Backup(ctx, r, node.ID)
	}
	return reg.Handler.GetEntity(ctx, r, node.ID)
}

// Restore writes snapshot data back for a freshly inserted node
func (m *Manager) Restore(ctx context.Context, tx ports.NodeTx, node domain.TreeNode, data json.RawMessage, lookup ResourceLookup) error {
	reg, ok := m.lookup(node.NodeType)
	if !ok || len(data) == 0 {
		return nil
	}
	b, ok := reg.Handler.(ports.BackupRestorer)
	if !ok {
		return m.CreateEntity(ctx, tx, node, data, lookup)
	}
	data, err := m.attach(ctx, tx, reg, node.ID, data, lookup)
	if err != nil {
		return err
	}
	return b.Restore(ctx, tx, node.ID, data)
}

// ResourceOf returns the shared resource a relational node links to
func (m *Manager) ResourceOf(ctx context.Context, r ports.NodeReader, node domain.TreeNode) (*domain.RelationalResource, error) {
	reg, ok := m.lookup(node.NodeType)
	if !ok || !reg.Metadata.IsRelational() {
		return nil, nil
	}
	data, err := reg.Handler.GetEntity(ctx, r, node.ID)
	if err != nil || data == nil {
		return nil, err
	}
	id := foreignKey(data, reg.Metadata.Relationship.ForeignKey)
	if id == "" {
		return nil, nil
	}
	return r.GetResource(ctx, reg.Metadata.ReferenceManagement.ResourceKind, id)
}

// ResourceKind returns the resource kind of a relational node type
func (m *Manager) ResourceKind(nodeType string) (string, bool) {
	reg, ok := m.lookup(nodeType)
	if !ok || !reg.Metadata.IsRelational() {
		return "", false
	}
	return reg.Metadata.ReferenceManagement.ResourceKind, true
}

// attach links nodeID to the resource named by the foreign key, creating
// the resource on first reference. Returns data with the foreign key set
// and the seed field removed.
func (m *Manager) attach(ctx context.Context, tx ports.NodeTx, reg Registration, nodeID string, data json.RawMessage, lookup ResourceLookup) (json.RawMessage, error) {
	meta := reg.Metadata
	if !meta.IsRelational() {
		return data, nil
	}
	rm := *meta.ReferenceManagement
	fk := meta.Relationship.ForeignKey

	obj, err := decodeObject(data)
	if err != nil {
		return nil, &application.ValidationError{Field: "data", Message: err.Error()}
	}

	var seed json.RawMessage
	if rm.DataField != "" {
		if v, ok := obj[rm.DataField]; ok {
			seed = v
			delete(obj, rm.DataField)
		}
	}

	var resID string
	if raw, ok := obj[fk]; ok {
		_ = json.Unmarshal(raw, &resID)
	}
	if resID == "" {
		resID = domain.NewID()
		obj[fk], _ = json.Marshal(resID)
	}

	res, err := tx.GetResource(ctx, rm.ResourceKind, resID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &domain.RelationalResource{Kind: rm.ResourceKind, ID: resID, Data: seed}
		if lookup != nil {
			if carried, ok := lookup(rm.ResourceKind, resID); ok {
				res.Data = carried.Data
			}
		}
		m.logger.Debug("resource created", "kind", rm.ResourceKind, "id", resID, "node", nodeID)
	}
	if res.AddReference(nodeID) {
		if err := tx.PutResource(ctx, *res); err != nil {
			return nil, err
		}
	}

	out, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// detach drops nodeID from its resource, deleting the resource at zero
// references when the type asks for it
func (m *Manager) detach(ctx context.Context, tx ports.NodeTx, reg Registration, nodeID string) error {
	data, err := reg.Handler.GetEntity(ctx, tx, nodeID)
	if err != nil || data == nil {
		return err
	}
	rm := *reg.Metadata.ReferenceManagement
	resID := foreignKey(data, reg.Metadata.Relationship.ForeignKey)
	if resID == "" {
		return nil
	}

	res, err := tx.GetResource(ctx, rm.ResourceKind, resID)
	if err != nil || res == nil {
		return err
	}
	if !res.RemoveReference(nodeID) {
		return nil
	}
	if res.Orphaned() && rm.AutoDeleteWhenZero {
		m.logger.Debug("resource released", "kind", rm.ResourceKind, "id", resID)
		return tx.DeleteResource(ctx, rm.ResourceKind, resID)
	}
	return tx.PutResource(ctx, *res)
}

// relink moves a node's reference when an update changes the foreign key
func (m *Manager) relink(ctx context.Context, tx ports.NodeTx, reg Registration, nodeID string, data json.RawMessage) (json.RawMessage, error) {
	if !reg.Metadata.IsRelational() {
		return data, nil
	}
	current, err := reg.Handler.GetEntity(ctx, tx, nodeID)
	if err != nil {
		return nil, err
	}
	rm := *reg.Metadata.ReferenceManagement
	fk := reg.Metadata.Relationship.ForeignKey
	oldID := foreignKey(current, fk)

	obj, err := decodeObject(data)
	if err != nil {
		return nil, &application.ValidationError{Field: "data", Message: err.Error()}
	}
	seed, seeded := obj[rm.DataField]
	newID := foreignKey(data, fk)
	if newID == "" && oldID != "" && !seeded {
		// No new target given: keep the current link
		obj[fk], _ = json.Marshal(oldID)
		newID = oldID
	}

	if oldID != "" && newID == oldID {
		if seeded {
			delete(obj, rm.DataField)
			res, err := tx.GetResource(ctx, rm.ResourceKind, oldID)
			if err != nil {
				return nil, err
			}
			if res != nil {
				res.Data = seed
				if err := tx.PutResource(ctx, *res); err != nil {
					return nil, err
				}
			}
		}
		return json.Marshal(obj)
	}

	if oldID != "" {
		if err := m.detach(ctx, tx, reg, nodeID); err != nil {
			return nil, err
		}
	}
	relinked, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return m.attach(ctx, tx, reg, nodeID, relinked, nil)
}

func decodeObject(data json.RawMessage) (map[string]json.RawMessage, error) {
	obj := map[string]json.RawMessage{}
	if len(data) == 0 || string(data) == "null" {
		return obj, nil
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("entity data must be a JSON object: %w", err)
	}
	return obj, nil
}

func foreignKey(data json.RawMessage, field string) string {
	obj, err := decodeObject(data)
	if err != nil {
		return ""
	}
	var id string
	if raw, ok := obj[field]; ok {
		_ = json.Unmarshal(raw, &id)
	}
	return id
}

func hookError(name string, node domain.TreeNode, err error) error {
	return fmt.Errorf("%s hook for %s %s: %w", name, node.NodeType, node.ID, err)
}
