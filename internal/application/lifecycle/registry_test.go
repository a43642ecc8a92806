package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"arbor/internal/application"
	"arbor/internal/domain"
)

func datasetMeta() domain.EntityMetadata {
	return domain.EntityMetadata{
		NodeType:   "dataset",
		EntityType: domain.EntityRelational,
		Relationship: domain.Relationship{
			Cardinality: domain.ManyToMany,
			ForeignKey:  "tableId",
		},
		ReferenceManagement: &domain.ReferenceManagement{
			CountField:         "referenceCount",
			NodeListField:      "referencingNodeIds",
			AutoDeleteWhenZero: true,
			DataField:          "table",
			ResourceKind:       "table",
		},
	}
}

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name     string
		existing []domain.EntityMetadata
		meta     domain.EntityMetadata
		wantCode application.Code
	}{
		{
			name: "plain type",
			meta: domain.EntityMetadata{NodeType: "folder"},
		},
		{
			name:     "dependency registered first",
			existing: []domain.EntityMetadata{datasetMeta()},
			meta:     domain.EntityMetadata{NodeType: "stylemap", EntityType: domain.EntityGroup, DependsOn: []string{"dataset"}},
		},
		{
			name:     "missing dependency",
			meta:     domain.EntityMetadata{NodeType: "stylemap", DependsOn: []string{"dataset"}},
			wantCode: application.CodeDependencyMissing,
		},
		{
			name:     "duplicate type",
			existing: []domain.EntityMetadata{{NodeType: "folder"}},
			meta:     domain.EntityMetadata{NodeType: "folder"},
			wantCode: application.CodeValidation,
		},
		{
			name:     "reserved trash type",
			meta:     domain.EntityMetadata{NodeType: "trash"},
			wantCode: application.CodeValidation,
		},
		{
			name:     "type name unusable as table",
			meta:     domain.EntityMetadata{NodeType: "My Type"},
			wantCode: application.CodeValidation,
		},
		{
			name:     "relational without reference management",
			meta:     domain.EntityMetadata{NodeType: "dataset", EntityType: domain.EntityRelational},
			wantCode: application.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for _, m := range tt.existing {
				r.MustRegister(Registration{Metadata: m})
			}
			before := r.Types()

			err := r.Register(Registration{Metadata: tt.meta})

			assert.Equal(t, tt.wantCode, application.CodeOf(err))
			if tt.wantCode != application.CodeOK {
				assert.Equal(t, before, r.Types(), "failed registration must not change the registry")
				return
			}
			assert.True(t, r.Has(tt.meta.NodeType))
		})
	}
}

func TestRegistry_TypesInRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		Registration{Metadata: domain.EntityMetadata{NodeType: "folder"}},
		Registration{Metadata: datasetMeta()},
		Registration{Metadata: domain.EntityMetadata{NodeType: "stylemap", DependsOn: []string{"dataset"}}},
	)

	assert.Equal(t, []string{"folder", "dataset", "stylemap"}, r.Types())
	assert.True(t, r.Has(domain.TrashNodeType))
	assert.False(t, r.Has("basemap"))
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	r := NewRegistry()
	assert.Panics(t, func() {
		r.MustRegister(Registration{Metadata: domain.EntityMetadata{NodeType: "x", DependsOn: []string{"y"}}})
	})
}
