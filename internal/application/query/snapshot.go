package query

import (
	"context"
	"encoding/json"

	"arbor/internal/application"
	"arbor/internal/domain"
	"arbor/internal/ports"
)

// CopyNodes serializes the selected branches for pasting. Entities are taken
// as stored and every shared resource they link to travels along, so a paste
// still works after the originals are gone.
func (s *Service) CopyNodes(ctx context.Context, ids []string) (*domain.Snapshot, error) {
	return s.snapshot(ctx, "copyNodes", ids, s.entities.EntityData)
}

// ExportNodes serializes the selected branches for an export file. Entities
// go through their handler's backup form when it has one.
func (s *Service) ExportNodes(ctx context.Context, ids []string) (*domain.Snapshot, error) {
	return s.snapshot(ctx, "exportNodes", ids, s.entities.Backup)
}

type entityReader func(ctx context.Context, r ports.NodeReader, node domain.TreeNode) (json.RawMessage, error)

func (s *Service) snapshot(ctx context.Context, op string, ids []string, read entityReader) (*domain.Snapshot, error) {
	if len(ids) == 0 {
		return nil, &application.ValidationError{Field: "nodeIds", Message: "at least one node is required"}
	}

	seen := make(map[string]bool, len(ids))
	var selected []domain.TreeNode
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if application.IsTrashRoot(id) {
			return nil, &application.ValidationError{Field: "nodeIds", Message: "the trash cannot be copied"}
		}
		n, err := s.store.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, application.NotFound(op, id)
		}
		selected = append(selected, *n)
	}

	roots, err := application.TopmostOnly(ctx, s.store, selected)
	if err != nil {
		return nil, err
	}
	nodes, err := application.Subtree(ctx, s.store, roots, -1)
	if err != nil {
		return nil, err
	}

	snap := domain.NewSnapshot(s.now())
	snap.Roots = domain.NodeIDs(roots)
	rootSet := make(map[string]bool, len(roots))
	for _, r := range roots {
		rootSet[r.ID] = true
	}

	carried := map[string]bool{}
	for _, n := range nodes {
		data, err := read(ctx, s.store, n)
		if err != nil {
			return nil, err
		}
		sn := domain.SnapshotNode{ID: n.ID, ParentID: n.ParentID, NodeType: n.NodeType, Name: n.Name, Entity: data}
		if rootSet[n.ID] {
			sn.ParentID = ""
		}
		snap.Nodes = append(snap.Nodes, sn)

		res, err := s.entities.ResourceOf(ctx, s.store, n)
		if err != nil {
			return nil, err
		}
		if res != nil && !carried[res.Kind+":"+res.ID] {
			carried[res.Kind+":"+res.ID] = true
			snap.Resources = append(snap.Resources, *res)
		}
	}

	s.logger.Debug("snapshot taken", "op", op, "roots", len(roots), "nodes", len(nodes))
	return snap, nil
}
