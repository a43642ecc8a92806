package plugins

import (
	"context"

	"arbor/internal/application/lifecycle"
	"arbor/internal/domain"
)

// Dataset field names
const (
	DatasetTableKey   = "tableId"
	DatasetTableField = "table"
	TableResource     = "table"
)

// DatasetData is the entity of a dataset node. Table seeds the shared table
// resource when the node creates it; nodes naming an existing TableID share it.
type DatasetData struct {
	TableID string         `json:"tableId,omitempty"`
	Table   map[string]any `json:"table,omitempty"`
	Caption string         `json:"caption,omitempty" validate:"max=500"`
}

// Dataset is a relational type: nodes link to a shared table resource that
// lives as long as some node references it
func Dataset() lifecycle.Registration {
	meta := domain.EntityMetadata{
		NodeType:   TypeDataset,
		EntityType: domain.EntityRelational,
		Relationship: domain.Relationship{
			Cardinality: domain.ManyToMany,
			ForeignKey:  DatasetTableKey,
		},
		ReferenceManagement: &domain.ReferenceManagement{
			CountField:         "referenceCount",
			NodeListField:      "referencingNodeIds",
			AutoDeleteWhenZero: true,
			DataField:          DatasetTableField,
			ResourceKind:       TableResource,
		},
	}
	check := func(ctx context.Context, ev lifecycle.HookEvent) error {
		var ds DatasetData
		return decode(ev.Data, &ds)
	}
	return lifecycle.Registration{
		Metadata: meta,
		Handler:  lifecycle.NewTableHandler(meta),
		Hooks:    lifecycle.Hooks{BeforeCreate: check, BeforeUpdate: check},
	}
}
