package domain

import (
	"encoding/json"
	"slices"
)

// EntityType is the relationship shape between a node and its entity data
type EntityType string

const (
	// EntityPeer keeps one row per node, keyed by the node id
	EntityPeer EntityType = "peer"
	// EntityGroup keeps any number of rows per node
	EntityGroup EntityType = "group"
	// EntityRelational links a node to a shared, reference counted resource
	EntityRelational EntityType = "relational"
)

// Cardinality describes how many nodes relate to how many entity rows
type Cardinality string

const (
	OneToOne   Cardinality = "one-to-one"
	OneToMany  Cardinality = "one-to-many"
	ManyToMany Cardinality = "many-to-many"
)

// Relationship describes the node to entity link
type Relationship struct {
	Cardinality   Cardinality `json:"cardinality" yaml:"cardinality"`
	ForeignKey    string      `json:"foreignKey,omitempty" yaml:"foreign_key"`
	CascadeDelete bool        `json:"cascadeDelete" yaml:"cascade_delete"`
}

// ReferenceManagement configures the shared resource of a relational type
type ReferenceManagement struct {
	CountField         string `json:"countField" yaml:"count_field"`
	NodeListField      string `json:"nodeListField" yaml:"node_list_field"`
	AutoDeleteWhenZero bool   `json:"autoDeleteWhenZero" yaml:"auto_delete_when_zero"`

	// DataField names the entity field that seeds a new resource's data
	DataField string `json:"dataField,omitempty" yaml:"data_field"`
	// ResourceKind names the resource table
	ResourceKind string `json:"resourceKind" yaml:"resource_kind"`
}

// EntityMetadata is the per node type descriptor a plugin registers
type EntityMetadata struct {
	NodeType            string               `json:"nodeType" yaml:"node_type"`
	EntityType          EntityType           `json:"entityType" yaml:"entity_type"`
	Relationship        Relationship         `json:"relationship" yaml:"relationship"`
	ReferenceManagement *ReferenceManagement `json:"referenceManagement,omitempty" yaml:"reference_management"`

	// DependsOn lists node types that must be registered first
	DependsOn []string `json:"dependsOn,omitempty" yaml:"depends_on"`
}

// IsRelational reports whether the type links to a shared resource
func (m EntityMetadata) IsRelational() bool {
	return m.EntityType == EntityRelational && m.ReferenceManagement != nil
}

// EntityRecord is one row of an entity table
type EntityRecord struct {
	Kind   string          `json:"kind"`
	ID     string          `json:"id"`
	NodeID string          `json:"nodeId"`
	Data   json.RawMessage `json:"data"`
}

// RelationalResource is a shared record kept alive by the nodes that reference it
type RelationalResource struct {
	Kind               string          `json:"kind"`
	ID                 string          `json:"id"`
	ReferenceCount     int             `json:"referenceCount"`
	ReferencingNodeIDs []string        `json:"referencingNodeIds"`
	Data               json.RawMessage `json:"data,omitempty"`
}

// AddReference records nodeID as a referrer. Returns false if it already was one.
func (r *RelationalResource) AddReference(nodeID string) bool {
	if slices.Contains(r.ReferencingNodeIDs, nodeID) {
		return false
	}
	r.ReferencingNodeIDs = append(r.ReferencingNodeIDs, nodeID)
	slices.Sort(r.ReferencingNodeIDs)
	r.ReferenceCount = len(r.ReferencingNodeIDs)
	return true
}

// RemoveReference drops nodeID. Returns false if it was not a referrer.
func (r *RelationalResource) RemoveReference(nodeID string) bool {
	i := slices.Index(r.ReferencingNodeIDs, nodeID)
	if i < 0 {
		return false
	}
	r.ReferencingNodeIDs = slices.Delete(r.ReferencingNodeIDs, i, i+1)
	r.ReferenceCount = len(r.ReferencingNodeIDs)
	return true
}

// Orphaned reports whether nothing references the resource anymore
func (r RelationalResource) Orphaned() bool {
	return r.ReferenceCount == 0
}

// Fields renders the reference bookkeeping under the configured field names
func (r RelationalResource) Fields(rm ReferenceManagement) map[string]any {
	fields := map[string]any{}
	if rm.CountField != "" {
		fields[rm.CountField] = r.ReferenceCount
	}
	if rm.NodeListField != "" {
		refs := r.ReferencingNodeIDs
		if refs == nil {
			refs = []string{}
		}
		fields[rm.NodeListField] = refs
	}
	return fields
}
