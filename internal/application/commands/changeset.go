package commands

import (
	"context"
	"fmt"
	"slices"
	"time"

	"arbor/internal/application"
	"arbor/internal/domain"
	"arbor/internal/ports"
)

// NodeChange holds the images of one node row around a command.
// A nil Before means the row was created, a nil After that it was deleted.
type NodeChange struct {
	ID     string
	Before *domain.TreeNode
	After  *domain.TreeNode
}

// EntityChange holds the images of one entity row
type EntityChange struct {
	Kind   string
	ID     string
	Before *domain.EntityRecord
	After  *domain.EntityRecord
}

// ResourceChange holds the images of one shared resource
type ResourceChange struct {
	Kind   string
	ID     string
	Before *domain.RelationalResource
	After  *domain.RelationalResource
}

// Changeset is everything a command wrote, in first-touch order
type Changeset struct {
	Nodes     []NodeChange
	Entities  []EntityChange
	Resources []ResourceChange
}

// Empty reports whether nothing observable changed
func (c Changeset) Empty() bool {
	return len(c.Nodes) == 0 && len(c.Entities) == 0 && len(c.Resources) == 0
}

// Merge folds later into c. The earliest before image and the latest after
// image win; rows that end where they started drop out.
func (c Changeset) Merge(later Changeset) Changeset {
	rec := newRecorder(nil)
	rec.absorb(c)
	rec.absorb(later)
	return rec.changeset()
}

// recorder wraps a transaction and captures before and after images of
// every row written through it. Reads pass straight through.
type recorder struct {
	ports.NodeTx

	nodes     map[string]int
	entities  map[string]int
	resources map[string]int
	cs        Changeset
}

var _ ports.NodeTx = (*recorder)(nil)

func newRecorder(tx ports.NodeTx) *recorder {
	return &recorder{
		NodeTx:    tx,
		nodes:     make(map[string]int),
		entities:  make(map[string]int),
		resources: make(map[string]int),
	}
}

func rowKey(kind, id string) string {
	return kind + ":" + id
}

func (r *recorder) nodeSlot(id string, before *domain.TreeNode) int {
	if i, ok := r.nodes[id]; ok {
		return i
	}
	r.cs.Nodes = append(r.cs.Nodes, NodeChange{ID: id, Before: before, After: before})
	r.nodes[id] = len(r.cs.Nodes) - 1
	return len(r.cs.Nodes) - 1
}

func (r *recorder) captureNodes(ctx context.Context, ids []string) error {
	var missing []string
	for _, id := range ids {
		if _, ok := r.nodes[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	found, err := r.NodeTx.GetNodes(ctx, missing)
	if err != nil {
		return err
	}
	for _, id := range missing {
		var before *domain.TreeNode
		if n, ok := found[id]; ok {
			before = &n
		}
		r.nodeSlot(id, before)
	}
	return nil
}

func (r *recorder) PutNode(ctx context.Context, node domain.TreeNode) error {
	if err := r.captureNodes(ctx, []string{node.ID}); err != nil {
		return err
	}
	if err := r.NodeTx.PutNode(ctx, node); err != nil {
		return err
	}
	after := node
	r.cs.Nodes[r.nodes[node.ID]].After = &after
	return nil
}

func (r *recorder) DeleteNodes(ctx context.Context, ids []string) error {
	if err := r.captureNodes(ctx, ids); err != nil {
		return err
	}
	if err := r.NodeTx.DeleteNodes(ctx, ids); err != nil {
		return err
	}
	for _, id := range ids {
		r.cs.Nodes[r.nodes[id]].After = nil
	}
	return nil
}

// SetCounts keeps a touched node's after image in step. Count changes alone
// are derived state and are not recorded.
func (r *recorder) SetCounts(ctx context.Context, id string, hasChildren bool, descendants int) error {
	if err := r.NodeTx.SetCounts(ctx, id, hasChildren, descendants); err != nil {
		return err
	}
	if i, ok := r.nodes[id]; ok && r.cs.Nodes[i].After != nil {
		after := *r.cs.Nodes[i].After
		after.HasChildren = hasChildren
		after.DescendantCount = descendants
		r.cs.Nodes[i].After = &after
	}
	return nil
}

func (r *recorder) entitySlot(ctx context.Context, kind, id string) (int, error) {
	key := rowKey(kind, id)
	if i, ok := r.entities[key]; ok {
		return i, nil
	}
	before, err := r.NodeTx.GetEntity(ctx, kind, id)
	if err != nil {
		return 0, err
	}
	r.cs.Entities = append(r.cs.Entities, EntityChange{Kind: kind, ID: id, Before: before, After: before})
	r.entities[key] = len(r.cs.Entities) - 1
	return len(r.cs.Entities) - 1, nil
}

func (r *recorder) PutEntity(ctx context.Context, rec domain.EntityRecord) error {
	i, err := r.entitySlot(ctx, rec.Kind, rec.ID)
	if err != nil {
		return err
	}
	if err := r.NodeTx.PutEntity(ctx, rec); err != nil {
		return err
	}
	after := rec
	r.cs.Entities[i].After = &after
	return nil
}

func (r *recorder) DeleteEntity(ctx context.Context, kind, id string) error {
	i, err := r.entitySlot(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := r.NodeTx.DeleteEntity(ctx, kind, id); err != nil {
		return err
	}
	r.cs.Entities[i].After = nil
	return nil
}

func (r *recorder) resourceSlot(ctx context.Context, kind, id string) (int, error) {
	key := rowKey(kind, id)
	if i, ok := r.resources[key]; ok {
		return i, nil
	}
	before, err := r.NodeTx.GetResource(ctx, kind, id)
	if err != nil {
		return 0, err
	}
	r.cs.Resources = append(r.cs.Resources, ResourceChange{Kind: kind, ID: id, Before: before, After: before})
	r.resources[key] = len(r.cs.Resources) - 1
	return len(r.cs.Resources) - 1, nil
}

func (r *recorder) PutResource(ctx context.Context, res domain.RelationalResource) error {
	i, err := r.resourceSlot(ctx, res.Kind, res.ID)
	if err != nil {
		return err
	}
	if err := r.NodeTx.PutResource(ctx, res); err != nil {
		return err
	}
	after := res
	after.ReferencingNodeIDs = slices.Clone(res.ReferencingNodeIDs)
	after.ReferenceCount = len(after.ReferencingNodeIDs)
	r.cs.Resources[i].After = &after
	return nil
}

func (r *recorder) DeleteResource(ctx context.Context, kind, id string) error {
	i, err := r.resourceSlot(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := r.NodeTx.DeleteResource(ctx, kind, id); err != nil {
		return err
	}
	r.cs.Resources[i].After = nil
	return nil
}

// absorb replays a finished changeset into the recorder without a store
func (r *recorder) absorb(cs Changeset) {
	for _, c := range cs.Nodes {
		i := r.nodeSlot(c.ID, c.Before)
		r.cs.Nodes[i].After = c.After
	}
	for _, c := range cs.Entities {
		key := rowKey(c.Kind, c.ID)
		i, ok := r.entities[key]
		if !ok {
			r.cs.Entities = append(r.cs.Entities, EntityChange{Kind: c.Kind, ID: c.ID, Before: c.Before})
			i = len(r.cs.Entities) - 1
			r.entities[key] = i
		}
		r.cs.Entities[i].After = c.After
	}
	for _, c := range cs.Resources {
		key := rowKey(c.Kind, c.ID)
		i, ok := r.resources[key]
		if !ok {
			r.cs.Resources = append(r.cs.Resources, ResourceChange{Kind: c.Kind, ID: c.ID, Before: c.Before})
			i = len(r.cs.Resources) - 1
			r.resources[key] = i
		}
		r.cs.Resources[i].After = c.After
	}
}

// changeset returns the recorded changes minus rows that ended unchanged
func (r *recorder) changeset() Changeset {
	var out Changeset
	for _, c := range r.cs.Nodes {
		if !sameNode(c.Before, c.After) {
			out.Nodes = append(out.Nodes, c)
		}
	}
	for _, c := range r.cs.Entities {
		if !sameEntity(c.Before, c.After) {
			out.Entities = append(out.Entities, c)
		}
	}
	for _, c := range r.cs.Resources {
		if !sameResource(c.Before, c.After) {
			out.Resources = append(out.Resources, c)
		}
	}
	return out
}

func sameNode(a, b *domain.TreeNode) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Version == b.Version && a.ParentID == b.ParentID && a.Name == b.Name
}

func sameEntity(a, b *domain.EntityRecord) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.NodeID == b.NodeID && domain.JSONEqual(a.Data, b.Data)
}

func sameResource(a, b *domain.RelationalResource) bool {
	if a == nil || b == nil {
		return a == b
	}
	return slices.Equal(a.ReferencingNodeIDs, b.ReferencingNodeIDs) && domain.JSONEqual(a.Data, b.Data)
}

// revert puts every row of cs back to its before image. The store must still
// hold the after images; any drift is a COMMIT_CONFLICT and nothing is
// written. Node rows coming back get a fresh version so edits opened against
// the reverted state cannot commit over it.
func revert(ctx context.Context, tx ports.NodeTx, cs Changeset, now time.Time) error {
	ids := make([]string, len(cs.Nodes))
	for i, c := range cs.Nodes {
		ids[i] = c.ID
	}
	current := make(map[string]domain.TreeNode, len(ids))
	for start := 0; start < len(ids); start += ports.ChunkSize {
		end := min(start+ports.ChunkSize, len(ids))
		found, err := tx.GetNodes(ctx, ids[start:end])
		if err != nil {
			return err
		}
		for id, n := range found {
			current[id] = n
		}
	}

	for _, c := range cs.Nodes {
		cur, ok := current[c.ID]
		switch {
		case c.After == nil && ok:
			return revertConflict(c.ID, "node %s was recreated", c.ID)
		case c.After != nil && !ok:
			return revertConflict(c.ID, "node %s no longer exists", c.ID)
		case c.After != nil && cur.Version != c.After.Version:
			return &application.ConflictError{NodeID: c.ID, Expected: c.After.Version, Actual: cur.Version}
		}
	}
	for _, c := range cs.Entities {
		cur, err := tx.GetEntity(ctx, c.Kind, c.ID)
		if err != nil {
			return err
		}
		if !sameEntity(cur, c.After) {
			return revertConflict(c.ID, "%s entity %s changed", c.Kind, c.ID)
		}
	}
	for _, c := range cs.Resources {
		cur, err := tx.GetResource(ctx, c.Kind, c.ID)
		if err != nil {
			return err
		}
		if !sameResource(cur, c.After) {
			return revertConflict(c.ID, "%s resource %s changed", c.Kind, c.ID)
		}
	}

	var deletes []string
	for _, c := range cs.Nodes {
		if c.Before == nil {
			deletes = append(deletes, c.ID)
			continue
		}
		restored := *c.Before
		restored.Version = c.Before.Version + 1
		if cur, ok := current[c.ID]; ok {
			restored.Version = cur.Version + 1
		}
		restored.UpdatedAt = now
		if err := tx.PutNode(ctx, restored); err != nil {
			return err
		}
	}
	if len(deletes) > 0 {
		if err := tx.DeleteNodes(ctx, deletes); err != nil {
			return err
		}
	}
	for _, c := range cs.Entities {
		var err error
		if c.Before == nil {
			err = tx.DeleteEntity(ctx, c.Kind, c.ID)
		} else {
			err = tx.PutEntity(ctx, *c.Before)
		}
		if err != nil {
			return err
		}
	}
	for _, c := range cs.Resources {
		var err error
		if c.Before == nil {
			err = tx.DeleteResource(ctx, c.Kind, c.ID)
		} else {
			err = tx.PutResource(ctx, *c.Before)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func revertConflict(id, format string, args ...any) error {
	return &application.Error{
		Code:    application.CodeCommitConflict,
		Op:      "revert",
		ID:      id,
		Message: fmt.Sprintf(format, args...),
		Err:     application.ErrCommitConflict,
	}
}
