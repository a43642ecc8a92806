package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// TrashRootID is the well-known id of the node that holds trashed branches
	TrashRootID = "__trash__"
	// TrashNodeType tags the trash root
	TrashNodeType = "trash"
	// TrashRootName is the display name of the trash root
	TrashRootName = "Trash"
)

// TreeNode is a single row of the durable node table.
// Parent links are ids, never pointers, so every traversal is an explicit walk.
type TreeNode struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parentId,omitempty"` // empty for roots
	NodeType  string    `json:"nodeType"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   int64     `json:"version"`

	// Derived, maintained along ancestor chains without touching Version
	HasChildren     bool `json:"hasChildren"`
	DescendantCount int  `json:"descendantCount"`

	// Trash metadata, set while the node sits directly under the trash root
	TrashedFrom string    `json:"trashedFrom,omitempty"`
	TrashedAt   time.Time `json:"trashedAt,omitzero"`
}

// IsRoot reports whether the node has no parent
func (n TreeNode) IsRoot() bool {
	return n.ParentID == ""
}

// IsTrashRoot reports whether the node is the trash root itself
func (n TreeNode) IsTrashRoot() bool {
	return n.ID == TrashRootID
}

// IsTrashed reports whether the node was moved to the trash directly.
// Descendants of a trashed node are not marked; use an ancestor walk for those.
func (n TreeNode) IsTrashed() bool {
	return !n.TrashedAt.IsZero()
}

// NewID allocates a fresh node, working copy or command id
func NewID() string {
	return uuid.NewString()
}

// NewTrashRoot returns the trash root row written at store bootstrap
func NewTrashRoot(now time.Time) TreeNode {
	return TreeNode{
		ID:        TrashRootID,
		NodeType:  TrashNodeType,
		Name:      TrashRootName,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

// SortNodes orders nodes by case-insensitive name, then id
func SortNodes(nodes []TreeNode) {
	slices.SortFunc(nodes, func(a, b TreeNode) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// NodeIDs extracts ids in order
func NodeIDs(nodes []TreeNode) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
