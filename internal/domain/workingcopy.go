package domain

import (
	"encoding/json"
	"time"
)

// WorkingCopy is an isolated draft or edit of a node, kept in the ephemeral
// store until it is committed or discarded
type WorkingCopy struct {
	ID     string `json:"id"`
	NodeID string `json:"nodeId,omitempty"` // empty for drafts

	IsDraft bool `json:"isDraft"`

	// Target location and fields; for edits these start as the node's values
	ParentID string          `json:"parentId,omitempty"`
	NodeType string          `json:"nodeType"`
	Name     string          `json:"name"`
	Data     json.RawMessage `json:"data,omitempty"`

	OriginalVersion int64     `json:"originalVersion"`
	IsDirty         bool      `json:"isDirty"`
	CopiedAt        time.Time `json:"copiedAt"`
}

// WorkingCopyPatch holds the fields an update may change. Nil leaves the field as is.
type WorkingCopyPatch struct {
	Name *string         `json:"name,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p WorkingCopyPatch) IsEmpty() bool {
	return p.Name == nil && len(p.Data) == 0
}

// Apply returns a copy of wc with the patch applied and IsDirty set when
// something actually changed
func (p WorkingCopyPatch) Apply(wc WorkingCopy) WorkingCopy {
	if p.Name != nil && *p.Name != wc.Name {
		wc.Name = *p.Name
		wc.IsDirty = true
	}
	if len(p.Data) > 0 && !jsonEqual(p.Data, wc.Data) {
		wc.Data = append(json.RawMessage(nil), p.Data...)
		wc.IsDirty = true
	}
	return wc
}

// Expired reports whether the copy is older than ttl at now
func (wc WorkingCopy) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(wc.CopiedAt) > ttl
}

func jsonEqual(a, b json.RawMessage) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return string(a) == string(b)
	}
	ca, _ := json.Marshal(va)
	cb, _ := json.Marshal(vb)
	return string(ca) == string(cb)
}

// JSONEqual compares two JSON documents structurally
func JSONEqual(a, b json.RawMessage) bool {
	return jsonEqual(a, b)
}
