// Package query answers read-only questions about the tree. Every call reads
// committed state straight from the node store and never touches history.
package query

import (
	"context"
	"log/slog"
	"time"

	"arbor/internal/application"
	"arbor/internal/application/lifecycle"
	"arbor/internal/domain"
	"arbor/internal/ports"
)

// DefaultPageSize is used when a children page asks for no limit
const DefaultPageSize = 100

// Service implements the tree queries
type Service struct {
	store    ports.NodeReader
	entities *lifecycle.Manager
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a query service over store
func NewService(store ports.NodeReader, entities *lifecycle.Manager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		entities: entities,
		logger:   logger.With("component", "query"),
		now:      time.Now,
	}
}

// GetNode returns one node
func (s *Service) GetNode(ctx context.Context, id string) (*domain.TreeNode, error) {
	if err := application.ValidateRequired("id", id); err != nil {
		return nil, err
	}
	node, err := s.store.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, application.NotFound("getNode", id)
	}
	return node, nil
}

// Page is one slice of a parent's children
type Page struct {
	Nodes   []domain.TreeNode `json:"nodes"`
	Total   int               `json:"total"`
	Offset  int               `json:"offset"`
	Limit   int               `json:"limit"`
	HasMore bool              `json:"hasMore"`
}

// GetChildren returns the children of parentID ordered by name. An empty
// parentID lists the root level, which never includes the trash root.
func (s *Service) GetChildren(ctx context.Context, parentID string, offset, limit int) (*Page, error) {
	if offset < 0 {
		return nil, &application.ValidationError{Field: "offset", Message: "must not be negative"}
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if parentID != "" {
		if _, err := s.GetNode(ctx, parentID); err != nil {
			return nil, err
		}
	}

	children, err := s.store.ListChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	page := &Page{Total: len(children), Offset: offset, Limit: limit, Nodes: []domain.TreeNode{}}
	if offset >= len(children) {
		return page, nil
	}
	end := min(offset+limit, len(children))
	page.Nodes = children[offset:end]
	page.HasMore = end < len(children)
	return page, nil
}

// GetDescendants returns the nodes below id breadth first. maxDepth < 0
// means unbounded; 1 returns the direct children only.
func (s *Service) GetDescendants(ctx context.Context, id string, maxDepth int) ([]domain.TreeNode, error) {
	node, err := s.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if maxDepth == 0 {
		return []domain.TreeNode{}, nil
	}
	all, err := application.Subtree(ctx, s.store, []domain.TreeNode{*node}, maxDepth)
	if err != nil {
		return nil, err
	}
	return all[1:], nil
}

// GetAncestors returns the chain above id, nearest parent first
func (s *Service) GetAncestors(ctx context.Context, id string) ([]domain.TreeNode, error) {
	if _, err := s.GetNode(ctx, id); err != nil {
		return nil, err
	}
	chain, err := application.Ancestors(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if chain == nil {
		chain = []domain.TreeNode{}
	}
	return chain, nil
}

// GetPathToRoot returns the path from the topmost reachable ancestor down to
// id, inclusive
func (s *Service) GetPathToRoot(ctx context.Context, id string) ([]domain.TreeNode, error) {
	node, err := s.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	chain, err := application.Ancestors(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	path := make([]domain.TreeNode, 0, len(chain)+1)
	for i := len(chain) - 1; i >= 0; i-- {
		path = append(path, chain[i])
	}
	return append(path, *node), nil
}

// FilterNodesByType returns live nodes of nodeType ordered by name. Trashed
// nodes are included only when asked for.
func (s *Service) FilterNodesByType(ctx context.Context, nodeType string, includeTrash bool) ([]domain.TreeNode, error) {
	if err := application.ValidateRequired("nodeType", nodeType); err != nil {
		return nil, err
	}
	nodes, err := s.store.ListByType(ctx, nodeType)
	if err != nil {
		return nil, err
	}

	places := newPlacer(s.store)
	out := make([]domain.TreeNode, 0, len(nodes))
	for _, n := range nodes {
		p, err := places.of(ctx, n)
		if err != nil {
			return nil, err
		}
		if p.visible(includeTrash) {
			out = append(out, n)
		}
	}
	domain.SortNodes(out)
	return out, nil
}
