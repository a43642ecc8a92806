package domain

import (
	"encoding/json"
	"time"
)

const (
	// SnapshotFormat tags serialized snapshots
	SnapshotFormat = "arbor.snapshot/v1"
	// ClipboardSessionKey holds the last copied snapshot in session state
	ClipboardSessionKey = "clipboard"
)

// Snapshot is a self contained copy of one or more branches, used by the
// clipboard and by export files
type Snapshot struct {
	Format    string    `json:"format"`
	CreatedAt time.Time `json:"createdAt"`

	// Roots lists the branch roots in selection order
	Roots     []string             `json:"roots"`
	Nodes     []SnapshotNode       `json:"nodes"`
	Resources []RelationalResource `json:"resources,omitempty"`
}

// SnapshotNode is a node plus its entity payload. ParentID is empty for roots.
type SnapshotNode struct {
	ID       string          `json:"id"`
	ParentID string          `json:"parentId,omitempty"`
	NodeType string          `json:"nodeType"`
	Name     string          `json:"name"`
	Entity   json.RawMessage `json:"entity,omitempty"`
}

// NewSnapshot returns an empty snapshot stamped with now
func NewSnapshot(now time.Time) *Snapshot {
	return &Snapshot{Format: SnapshotFormat, CreatedAt: now}
}

// Children indexes snapshot nodes by parent id, keeping input order
func (s *Snapshot) Children() map[string][]SnapshotNode {
	children := make(map[string][]SnapshotNode)
	for _, n := range s.Nodes {
		children[n.ParentID] = append(children[n.ParentID], n)
	}
	return children
}

// Node looks up a snapshot node by id
func (s *Snapshot) Node(id string) (SnapshotNode, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return SnapshotNode{}, false
}

// Resource looks up a bundled resource
func (s *Snapshot) Resource(kind, id string) (RelationalResource, bool) {
	for _, r := range s.Resources {
		if r.Kind == kind && r.ID == id {
			return r, true
		}
	}
	return RelationalResource{}, false
}

// IDMap maps ids found in a source to freshly allocated ones
type IDMap map[string]string

// Remap walks a JSON document and replaces every string value that is a key
// of the map. Object keys are left alone.
func (m IDMap) Remap(data json.RawMessage) json.RawMessage {
	if len(data) == 0 || len(m) == 0 {
		return data
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return data
	}
	out, err := json.Marshal(m.remapValue(v))
	if err != nil {
		return data
	}
	return out
}

func (m IDMap) remapValue(v any) any {
	switch t := v.(type) {
	case string:
		if nv, ok := m[t]; ok {
			return nv
		}
		return t
	case []any:
		for i := range t {
			t[i] = m.remapValue(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = m.remapValue(t[k])
		}
		return t
	}
	return v
}
