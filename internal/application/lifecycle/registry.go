package lifecycle

import (
	"context"
	"regexp"
	"slices"
	"sync"

	"arbor/internal/application"
	"arbor/internal/domain"
	"arbor/internal/ports"
)

var nodeTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Registration binds a node type to its entity metadata and handler.
// A nil Handler declares a type without entity data.
type Registration struct {
	Metadata domain.EntityMetadata
	Handler  ports.EntityHandler
	Hooks    Hooks
}

// NodeType returns the registered node type
func (r Registration) NodeType() string {
	return r.Metadata.NodeType
}

// Registry is the static table of node types, filled in dependency order at
// startup and injected wherever types are resolved
type Registry struct {
	mu    sync.RWMutex
	regs  map[string]Registration
	order []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{regs: make(map[string]Registration)}
}

// Register adds a node type. Every dependency must already be registered;
// a failed registration leaves the registry unchanged.
func (r *Registry) Register(reg Registration) error {
	meta := reg.Metadata
	if err := validateMetadata(meta); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.regs[meta.NodeType]; exists {
		return &application.ValidationError{
			Field:   "nodeType",
			Message: "node type " + meta.NodeType + " is already registered",
		}
	}
	for _, dep := range meta.DependsOn {
		if _, ok := r.regs[dep]; !ok {
			return application.Errorf(application.CodeDependencyMissing, "register", meta.NodeType,
				"depends on unregistered node type %q", dep)
		}
	}

	r.regs[meta.NodeType] = reg
	r.order = append(r.order, meta.NodeType)
	return nil
}

// MustRegister registers every entry and panics on the first failure.
// Meant for the static table built at process start.
func (r *Registry) MustRegister(regs ...Registration) {
	for _, reg := range regs {
		if err := r.Register(reg); err != nil {
			panic(err)
		}
	}
}

// Lookup finds the registration for a node type
func (r *Registry) Lookup(nodeType string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[nodeType]
	return reg, ok
}

// Has reports whether nodeType is known. The trash root type is always known.
func (r *Registry) Has(nodeType string) bool {
	if nodeType == domain.TrashNodeType {
		return true
	}
	_, ok := r.Lookup(nodeType)
	return ok
}

// Types lists node types in registration order
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Provision creates storage tables for every registered type with entity data
func (r *Registry) Provision(ctx context.Context, store ports.NodeStore) error {
	for _, t := range r.Types() {
		reg, _ := r.Lookup(t)
		if reg.Handler == nil {
			continue
		}
		if err := store.EnsureKind(ctx, t); err != nil {
			return err
		}
		if rm := reg.Metadata.ReferenceManagement; reg.Metadata.IsRelational() && rm.ResourceKind != t {
			if err := store.EnsureKind(ctx, rm.ResourceKind); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateMetadata(meta domain.EntityMetadata) error {
	if !nodeTypePattern.MatchString(meta.NodeType) {
		return &application.ValidationError{
			Field:   "nodeType",
			Message: "node type must match " + nodeTypePattern.String(),
		}
	}
	if meta.NodeType == domain.TrashNodeType {
		return &application.ValidationError{Field: "nodeType", Message: "node type trash is reserved"}
	}
	if slices.Contains(meta.DependsOn, meta.NodeType) {
		return &application.ValidationError{Field: "dependsOn", Message: "a type cannot depend on itself"}
	}

	switch meta.EntityType {
	case "", domain.EntityPeer, domain.EntityGroup:
	case domain.EntityRelational:
		rm := meta.ReferenceManagement
		if rm == nil {
			return &application.ValidationError{
				Field:   "referenceManagement",
				Message: "relational types need reference management",
			}
		}
		if !nodeTypePattern.MatchString(rm.ResourceKind) {
			return &application.ValidationError{
				Field:   "referenceManagement.resourceKind",
				Message: "resource kind must match " + nodeTypePattern.String(),
			}
		}
		if meta.Relationship.ForeignKey == "" {
			return &application.ValidationError{
				Field:   "relationship.foreignKey",
				Message: "relational types need a foreign key field",
			}
		}
	default:
		return &application.ValidationError{
			Field:   "entityType",
			Message: "unknown entity type " + string(meta.EntityType),
		}
	}
	return nil
}
