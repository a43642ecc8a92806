package workingcopy

import (
	"context"

	"arbor/internal/application"
	"arbor/internal/domain"
	"arbor/internal/ports"
)

// ResolveName returns the name a node may take under parentID. self is the
// node being renamed or moved and never collides with itself. Inside the
// trash names may repeat.
func ResolveName(ctx context.Context, r ports.NodeReader, parentID, name, self string, policy domain.NameConflictPolicy) (string, error) {
	if parentID == domain.TrashRootID {
		return name, nil
	}
	siblings, err := r.ListChildren(ctx, parentID)
	if err != nil {
		return "", err
	}
	return ResolveIn(domain.NewNameSet(siblings, self), parentID, name, policy)
}

// ResolveIn applies policy against a prepared sibling set and records the
// chosen name in it
func ResolveIn(taken domain.NameSet, parentID, name string, policy domain.NameConflictPolicy) (string, error) {
	if parentID == domain.TrashRootID {
		return name, nil
	}
	if taken.Has(name) {
		if policy.OrDefault() == domain.NameConflictError {
			return "", &application.NameConflictError{ParentID: parentID, Name: name}
		}
		name = domain.UniqueName(name, taken.Has)
	}
	taken.Add(name)
	return name, nil
}
