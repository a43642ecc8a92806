package query

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"arbor/internal/application"
	"arbor/internal/domain"
)

// SearchOptions selects nodes by name
type SearchOptions struct {
	Query string `json:"query"`
	// Regex treats Query as a regular expression instead of a substring
	Regex        bool   `json:"regex,omitempty"`
	NodeType     string `json:"nodeType,omitempty"`
	IncludeTrash bool   `json:"includeTrash,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

// SearchResult is a matching node with its display path and relevance
type SearchResult struct {
	Node  domain.TreeNode `json:"node"`
	Path  string          `json:"path"`
	Score int             `json:"score"`
}

// SearchNodes scans the tree for names matching opts. Substring matches are
// case-insensitive and ranked by MatchScore; regex matches rank by name.
func (s *Service) SearchNodes(ctx context.Context, opts SearchOptions) ([]SearchResult, error) {
	match, err := matcher(opts)
	if err != nil {
		return nil, err
	}

	places := newPlacer(s.store)
	var candidates []domain.TreeNode
	err = s.store.ScanNodes(ctx, func(n domain.TreeNode) error {
		places.prime(n)
		if n.IsTrashRoot() || (opts.NodeType != "" && n.NodeType != opts.NodeType) {
			return nil
		}
		if match(n.Name) > 0 {
			candidates = append(candidates, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, n := range candidates {
		p, err := places.of(ctx, n)
		if err != nil {
			return nil, err
		}
		if !p.visible(opts.IncludeTrash) {
			continue
		}
		path, err := places.path(ctx, n)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{Node: n, Path: path, Score: match(n.Name)})
	}

	slices.SortStableFunc(results, func(a, b SearchResult) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return strings.Compare(strings.ToLower(a.Path), strings.ToLower(b.Path))
	})
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	s.logger.Debug("search", "query", opts.Query, "regex", opts.Regex, "results", len(results))
	return results, nil
}

func matcher(opts SearchOptions) (func(string) int, error) {
	if opts.Query == "" {
		return nil, &application.ValidationError{Field: "query", Message: "is required"}
	}
	if !opts.Regex {
		return func(name string) int { return MatchScore(name, opts.Query) }, nil
	}
	re, err := regexp.Compile(opts.Query)
	if err != nil {
		return nil, &application.ValidationError{Field: "query", Message: fmt.Sprintf("invalid regular expression: %v", err)}
	}
	return func(name string) int {
		if re.MatchString(name) {
			return 1
		}
		return 0
	}, nil
}

// MatchScore rates how well name contains query, case-insensitively.
// Zero means no match.
func MatchScore(name, query string) int {
	name = strings.ToLower(name)
	query = strings.ToLower(query)
	if query == "" || !strings.Contains(name, query) {
		return 0
	}

	score := 100
	if name == query {
		score += 100
	}
	// Bonus if it starts with query
	if strings.HasPrefix(name, query) {
		score += 50
	}
	return score
}
