package commands

import (
	"context"
	"log/slog"
	"time"

	"arbor/internal/application"
	"arbor/internal/application/lifecycle"
	"arbor/internal/domain"
	"arbor/internal/ports"
)

// Outcome is what a transactional command reports back through its result
type Outcome struct {
	NodeID      string
	NodeIDs     []string
	IDMap       domain.IDMap
	WorkingCopy *domain.WorkingCopy

	// finalize runs after the transaction committed
	finalize func(ctx context.Context) error
}

// txCommand is a command applied inside one store transaction
type txCommand interface {
	Validate() error
	Execute(ctx context.Context, tx ports.NodeTx) (*Outcome, error)
}

// TreeMutations implements the structural edits of the tree. The processor
// is its only caller, so every edit runs inside a recorded transaction.
type TreeMutations struct {
	entities  *lifecycle.Manager
	ephemeral ports.EphemeralStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewTreeMutations creates the mutation service
func NewTreeMutations(entities *lifecycle.Manager, ephemeral ports.EphemeralStore, logger *slog.Logger) *TreeMutations {
	if logger == nil {
		logger = slog.Default()
	}
	return &TreeMutations{
		entities:  entities,
		ephemeral: ephemeral,
		logger:    logger.With("component", "mutations"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// load fetches ids in order, dropping repeats. A missing id fails the call.
func (s *TreeMutations) load(ctx context.Context, r ports.NodeReader, op string, ids []string) ([]domain.TreeNode, error) {
	found, err := r.GetNodes(ctx, ids)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(ids))
	nodes := make([]domain.TreeNode, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		n, ok := found[id]
		if !ok {
			return nil, application.NotFound(op, id)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// loadLive is load plus a check that no node is the trash or inside it
func (s *TreeMutations) loadLive(ctx context.Context, r ports.NodeReader, op string, ids []string) ([]domain.TreeNode, error) {
	nodes, err := s.load(ctx, r, op, ids)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.IsTrashRoot() {
			return nil, &application.ValidationError{Field: "nodeIds", Message: "the trash cannot be " + opVerb(op)}
		}
		trashed, err := application.InTrash(ctx, r, n)
		if err != nil {
			return nil, err
		}
		if trashed {
			return nil, &application.ValidationError{Field: "nodeIds", Message: "node " + n.ID + " is in the trash; recover it first"}
		}
	}
	return nodes, nil
}

// checkDestination verifies that parentID can receive nodes
func (s *TreeMutations) checkDestination(ctx context.Context, r ports.NodeReader, op, field, parentID string) error {
	if parentID == "" {
		return nil
	}
	if parentID == domain.TrashRootID {
		return &application.ValidationError{Field: field, Message: "use moveToTrash to put nodes in the trash"}
	}
	parent, err := r.GetNode(ctx, parentID)
	if err != nil {
		return err
	}
	if parent == nil {
		return application.NotFound(op, parentID)
	}
	trashed, err := application.InTrash(ctx, r, *parent)
	if err != nil {
		return err
	}
	if trashed {
		return &application.ValidationError{Field: field, Message: "destination is in the trash"}
	}
	return nil
}

// siblingNames caches the name sets of destination parents for one call
type siblingNames struct {
	r    ports.NodeReader
	sets map[string]domain.NameSet
}

func newSiblingNames(r ports.NodeReader) *siblingNames {
	return &siblingNames{r: r, sets: make(map[string]domain.NameSet)}
}

func (s *siblingNames) under(ctx context.Context, parentID string) (domain.NameSet, error) {
	if set, ok := s.sets[parentID]; ok {
		return set, nil
	}
	children, err := s.r.ListChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	set := domain.NewNameSet(children, "")
	s.sets[parentID] = set
	return set, nil
}

func opVerb(op string) string {
	switch op {
	case "moveNodes":
		return "moved"
	case "duplicateNodes":
		return "duplicated"
	case "moveToTrash":
		return "trashed"
	}
	return "changed"
}

func firstOf(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}
