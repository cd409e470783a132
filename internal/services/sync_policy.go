package services

import (
	"marketplace-sync-service/internal/mappers"
	"marketplace-sync-service/internal/models"
)

// FieldAction is what ingestion does with one differing field
type FieldAction string

const (
	// ActionKeep leaves the canonical value untouched
	ActionKeep FieldAction = "KEEP"
	// ActionApply overwrites the canonical value with the marketplace value
	ActionApply FieldAction = "APPLY"
	// ActionConflict records a conflict and leaves both sides untouched
	ActionConflict FieldAction = "CONFLICT"
	// ActionPendingPush keeps a local edit that still has to reach the marketplace
	ActionPendingPush FieldAction = "PENDING_PUSH"
)

// FieldDecision is the outcome of the sync policy for one field
type FieldDecision struct {
	mappers.FieldDiff
	Action FieldAction
}

// decideField applies the group's direction to a differing field. For BOTH
// the baseline tells which side moved since the last sync.
func decideField(direction models.SyncDirection, diff mappers.FieldDiff, ref *models.ProductMarketplaceReference) FieldDecision {
	decision := FieldDecision{FieldDiff: diff, Action: ActionKeep}

	switch direction {
	case models.DirectionFromMarketplace:
		decision.Action = ActionApply
	case models.DirectionToMarketplace:
		decision.Action = ActionPendingPush
	case models.DirectionBoth:
		baseline, ok := ref.BaselineValue(diff.BaselineField())
		if !ok {
			decision.Action = ActionConflict
			break
		}
		canonicalChanged := diff.Local != baseline
		incomingChanged := diff.Incoming != baseline
		switch {
		case canonicalChanged && incomingChanged:
			decision.Action = ActionConflict
		case incomingChanged:
			decision.Action = ActionApply
		case canonicalChanged:
			decision.Action = ActionPendingPush
		}
	}
	return decision
}

// decideFields runs the policy over every differing field
func decideFields(cfg *models.SyncConfig, diffs []mappers.FieldDiff, ref *models.ProductMarketplaceReference) []FieldDecision {
	decisions := make([]FieldDecision, 0, len(diffs))
	for _, diff := range diffs {
		decisions = append(decisions, decideField(cfg.DirectionFor(diff.Group), diff, ref))
	}
	return decisions
}

// refreshBaseline records every value both sides now agree on. incoming is
// keyed by baseline field. Fields left in conflict or awaiting a push keep
// their previous baseline.
func refreshBaseline(ref *models.ProductMarketplaceReference, incoming map[string]string, decisions []FieldDecision) {
	pending := make(map[string]bool, len(decisions))
	for _, d := range decisions {
		if d.Action != ActionApply {
			pending[d.BaselineField()] = true
		}
	}
	for field, value := range incoming {
		if !pending[field] {
			ref.SetBaseline(field, value)
		}
	}
}
