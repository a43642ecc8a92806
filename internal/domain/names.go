package domain

import (
	"fmt"
	"strings"
)

// CopySuffix is appended to the root of every duplicated branch
const CopySuffix = " (Copy)"

// NameConflictPolicy decides what a commit or move does when a sibling already
// carries the requested name
type NameConflictPolicy string

const (
	// NameConflictAutoRename appends the smallest free " (n)" suffix, n >= 2
	NameConflictAutoRename NameConflictPolicy = "auto-rename"
	// NameConflictError rejects the operation
	NameConflictError NameConflictPolicy = "error"
)

// OrDefault returns auto-rename when the policy was left empty
func (p NameConflictPolicy) OrDefault() NameConflictPolicy {
	if p == "" {
		return NameConflictAutoRename
	}
	return p
}

// UniqueName returns base when it is free, otherwise "base (n)" for the
// smallest n >= 2 that taken does not report as used
func UniqueName(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", base, n)
		if !taken(candidate) {
			return candidate
		}
	}
}

// CopyName returns the name given to the root of a duplicated branch
func CopyName(name string) string {
	return name + CopySuffix
}

// NameSet is a set of sibling names
type NameSet map[string]struct{}

// NewNameSet builds a set from sibling nodes, skipping the node with id exclude
func NewNameSet(siblings []TreeNode, exclude string) NameSet {
	set := make(NameSet, len(siblings))
	for _, s := range siblings {
		if s.ID == exclude {
			continue
		}
		set[s.Name] = struct{}{}
	}
	return set
}

// Has reports whether name is taken
func (s NameSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Add marks name as taken
func (s NameSet) Add(name string) {
	s[name] = struct{}{}
}

// NormalizeName trims surrounding whitespace
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}
