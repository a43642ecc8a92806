package query

import (
	"context"
	"slices"
	"strings"

	"arbor/internal/application"
	"arbor/internal/domain"
	"arbor/internal/ports"
)

// placement says where a node's parent chain ends
type placement int

const (
	placeLive placement = iota
	placeTrash
	// placeBroken covers chains that loop or point at a missing parent
	placeBroken
)

func (p placement) visible(includeTrash bool) bool {
	switch p {
	case placeLive:
		return true
	case placeTrash:
		return includeTrash
	}
	return false
}

// placer classifies nodes by walking parent pointers, remembering every
// node it resolved along the way
type placer struct {
	r     ports.NodeReader
	known map[string]domain.TreeNode
	memo  map[string]placement
}

func newPlacer(r ports.NodeReader) *placer {
	return &placer{r: r, known: map[string]domain.TreeNode{}, memo: map[string]placement{}}
}

// prime records nodes already loaded so the walk does not fetch them again
func (p *placer) prime(n domain.TreeNode) {
	p.known[n.ID] = n
}

func (p *placer) node(ctx context.Context, id string) (*domain.TreeNode, error) {
	if n, ok := p.known[id]; ok {
		return &n, nil
	}
	n, err := p.r.GetNode(ctx, id)
	if err != nil || n == nil {
		return nil, err
	}
	p.known[id] = *n
	return n, nil
}

func (p *placer) of(ctx context.Context, n domain.TreeNode) (placement, error) {
	if n.IsTrashRoot() {
		return placeTrash, nil
	}
	p.known[n.ID] = n

	var walked []string
	visited := map[string]bool{}
	result := placeLive
	cur := n
	for {
		if pl, ok := p.memo[cur.ID]; ok {
			result = pl
			break
		}
		if visited[cur.ID] || len(walked) > application.MaxDepth {
			result = placeBroken
			break
		}
		visited[cur.ID] = true
		walked = append(walked, cur.ID)

		if cur.ParentID == "" {
			result = placeLive
			break
		}
		if cur.ParentID == domain.TrashRootID {
			result = placeTrash
			break
		}
		parent, err := p.node(ctx, cur.ParentID)
		if err != nil {
			return placeBroken, err
		}
		if parent == nil {
			result = placeBroken
			break
		}
		cur = *parent
	}
	for _, id := range walked {
		p.memo[id] = result
	}
	return result, nil
}

// path joins the names from the topmost ancestor down to n
func (p *placer) path(ctx context.Context, n domain.TreeNode) (string, error) {
	names := []string{n.Name}
	visited := map[string]bool{n.ID: true}
	for parentID := n.ParentID; parentID != "" && !visited[parentID] && len(names) <= application.MaxDepth; {
		visited[parentID] = true
		parent, err := p.node(ctx, parentID)
		if err != nil {
			return "", err
		}
		if parent == nil {
			break
		}
		names = append(names, parent.Name)
		parentID = parent.ParentID
	}

	slices.Reverse(names)
	return "/" + strings.Join(names, "/"), nil
}
