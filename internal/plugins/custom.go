package plugins

import (
	"arbor/internal/application/lifecycle"
	"arbor/internal/domain"
)

// Custom builds a registration from declared metadata. Types without an
// entity shape carry no data.
func Custom(meta domain.EntityMetadata) lifecycle.Registration {
	reg := lifecycle.Registration{Metadata: meta}
	if meta.EntityType != "" {
		reg.Handler = lifecycle.NewTableHandler(meta)
	}
	return reg
}

// RegisterCustom registers declared types after the built-in ones
func RegisterCustom(r *lifecycle.Registry, types []domain.EntityMetadata) error {
	for _, meta := range types {
		if err := r.Register(Custom(meta)); err != nil {
			return err
		}
	}
	return nil
}
