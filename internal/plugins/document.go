package plugins

import (
	"context"

	"arbor/internal/application/lifecycle"
	"arbor/internal/domain"
)

// DocumentData is the entity of a document node
type DocumentData struct {
	Title  string `json:"title,omitempty" validate:"max=200"`
	Format string `json:"format,omitempty" validate:"omitempty,oneof=markdown text html"`
	Body   string `json:"body,omitempty"`
}

// Document is a peer type: one entity row per node, removed with the node
func Document() lifecycle.Registration {
	meta := domain.EntityMetadata{
		NodeType:     TypeDocument,
		EntityType:   domain.EntityPeer,
		Relationship: domain.Relationship{Cardinality: domain.OneToOne, CascadeDelete: true},
	}
	check := func(ctx context.Context, ev lifecycle.HookEvent) error {
		var doc DocumentData
		return decode(ev.Data, &doc)
	}
	return lifecycle.Registration{
		Metadata: meta,
		Handler:  lifecycle.NewTableHandler(meta),
		Hooks:    lifecycle.Hooks{BeforeCreate: check, BeforeUpdate: check},
	}
}
