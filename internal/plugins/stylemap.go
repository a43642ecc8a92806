package plugins

import (
	"context"
	"encoding/json"
	"fmt"

	"arbor/internal/application"
	"arbor/internal/application/lifecycle"
	"arbor/internal/domain"
)

// StyleRule is one row of a style map: how to draw features whose Field
// holds Value. DatasetID names the dataset node the rule reads.
type StyleRule struct {
	DatasetID string `json:"datasetId" validate:"required"`
	Field     string `json:"field" validate:"required"`
	Value     string `json:"value,omitempty"`
	Color     string `json:"color" validate:"required,hexcolor"`
}

// StyleMap is a group type: one entity row per rule, in rule order. Every
// rule must point at a live dataset node.
func StyleMap() lifecycle.Registration {
	meta := domain.EntityMetadata{
		NodeType:     TypeStyleMap,
		EntityType:   domain.EntityGroup,
		Relationship: domain.Relationship{Cardinality: domain.OneToMany, CascadeDelete: true},
		DependsOn:    []string{TypeDataset},
	}
	return lifecycle.Registration{
		Metadata: meta,
		Handler:  lifecycle.NewTableHandler(meta),
		Hooks:    lifecycle.Hooks{BeforeCreate: checkRules, BeforeUpdate: checkRules},
	}
}

func checkRules(ctx context.Context, ev lifecycle.HookEvent) error {
	if len(ev.Data) == 0 || string(ev.Data) == "null" {
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(ev.Data, &raw); err != nil {
		return &application.ValidationError{Field: "data", Message: "style map data must be a JSON array of rules"}
	}

	checked := map[string]bool{}
	for i, item := range raw {
		var rule StyleRule
		if err := decode(item, &rule); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
		if checked[rule.DatasetID] {
			continue
		}
		ds, err := ev.Tx.GetNode(ctx, rule.DatasetID)
		if err != nil {
			return err
		}
		if ds == nil || ds.NodeType != TypeDataset {
			return &application.ValidationError{
				Field:   fmt.Sprintf("rule %d datasetId", i),
				Message: fmt.Sprintf("%s is not a dataset node", rule.DatasetID),
			}
		}
		checked[rule.DatasetID] = true
	}
	return nil
}
