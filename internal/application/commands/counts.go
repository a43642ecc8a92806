package commands

import (
	"context"

	"arbor/internal/application"
	"arbor/internal/ports"
)

// recount refreshes the derived counters of every node cs wrote and of each
// ancestor above a parent cs gained or lost children under
func recount(ctx context.Context, tx ports.NodeTx, cs Changeset) error {
	var order []string
	targets := make(map[string]bool)
	add := func(id string) {
		if id != "" && !targets[id] {
			targets[id] = true
			order = append(order, id)
		}
	}

	var parents []string
	for _, c := range cs.Nodes {
		if c.After != nil {
			add(c.ID)
			parents = append(parents, c.After.ParentID)
		}
		if c.Before != nil {
			parents = append(parents, c.Before.ParentID)
		}
	}
	walked := make(map[string]bool)
	for _, parentID := range parents {
		if parentID == "" || walked[parentID] {
			continue
		}
		walked[parentID] = true
		add(parentID)
		chain, err := application.Ancestors(ctx, tx, parentID)
		if err != nil {
			return err
		}
		for _, a := range chain {
			add(a.ID)
		}
	}
	if len(order) == 0 {
		return nil
	}

	current, err := tx.GetNodes(ctx, order)
	if err != nil {
		return err
	}
	c := &counter{r: tx, memo: make(map[string]counts), active: make(map[string]bool)}
	for _, id := range order {
		node, ok := current[id]
		if !ok {
			continue
		}
		n, err := c.count(ctx, id, 0)
		if err != nil {
			return err
		}
		if node.HasChildren == (n.direct > 0) && node.DescendantCount == n.total {
			continue
		}
		if err := tx.SetCounts(ctx, id, n.direct > 0, n.total); err != nil {
			return err
		}
	}
	return nil
}

type counts struct {
	direct int
	total  int
}

// counter sums subtree sizes, sharing work between overlapping subtrees
type counter struct {
	r      ports.NodeReader
	memo   map[string]counts
	active map[string]bool
}

func (c *counter) count(ctx context.Context, id string, depth int) (counts, error) {
	if n, ok := c.memo[id]; ok {
		return n, nil
	}
	// A cycle or runaway depth contributes nothing
	if c.active[id] || depth > application.MaxDepth {
		return counts{}, nil
	}
	c.active[id] = true
	defer delete(c.active, id)

	children, err := c.r.ListChildren(ctx, id)
	if err != nil {
		return counts{}, err
	}
	n := counts{direct: len(children)}
	for _, child := range children {
		sub, err := c.count(ctx, child.ID, depth+1)
		if err != nil {
			return counts{}, err
		}
		n.total += 1 + sub.total
	}
	c.memo[id] = n
	return n, nil
}
