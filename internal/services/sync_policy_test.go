package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"marketplace-sync-service/internal/mappers"
	"marketplace-sync-service/internal/models"
)

func priceDiff(local, incoming string) mappers.FieldDiff {
	return mappers.FieldDiff{Field: mappers.FieldPrice, Group: models.GroupPrice, Local: local, Incoming: incoming}
}

func refWithBaseline(value string) *models.ProductMarketplaceReference {
	ref := &models.ProductMarketplaceReference{}
	ref.SetBaseline(mappers.FieldPrice, value)
	return ref
}

func TestDecideFieldDirections(t *testing.T) {
	diff := priceDiff("10.00", "12.00")

	assert.Equal(t, ActionKeep, decideField(models.DirectionNone, diff, nil).Action)
	assert.Equal(t, ActionApply, decideField(models.DirectionFromMarketplace, diff, nil).Action)
	assert.Equal(t, ActionPendingPush, decideField(models.DirectionToMarketplace, diff, nil).Action)
}

func TestDecideFieldBoth(t *testing.T) {
	cases := []struct {
		name     string
		ref      *models.ProductMarketplaceReference
		local    string
		incoming string
		want     FieldAction
	}{
		{"both changed", refWithBaseline("10.00"), "11.00", "12.00", ActionConflict},
		{"only marketplace changed", refWithBaseline("10.00"), "10.00", "12.00", ActionApply},
		{"only canonical changed", refWithBaseline("10.00"), "11.00", "10.00", ActionPendingPush},
		{"no baseline", &models.ProductMarketplaceReference{}, "11.00", "12.00", ActionConflict},
		{"no reference", nil, "11.00", "12.00", ActionConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := decideField(models.DirectionBoth, priceDiff(tc.local, tc.incoming), tc.ref)
			assert.Equal(t, tc.want, got.Action)
		})
	}
}

func TestRefreshBaseline(t *testing.T) {
	ref := refWithBaseline("10.00")
	incoming := map[string]string{mappers.FieldPrice: "12.00", mappers.FieldName: "Widget"}

	refreshBaseline(ref, incoming, []FieldDecision{{FieldDiff: priceDiff("11.00", "12.00"), Action: ActionConflict}})
	price, _ := ref.BaselineValue(mappers.FieldPrice)
	name, _ := ref.BaselineValue(mappers.FieldName)
	assert.Equal(t, "10.00", price)
	assert.Equal(t, "Widget", name)

	refreshBaseline(ref, incoming, []FieldDecision{{FieldDiff: priceDiff("10.00", "12.00"), Action: ActionApply}})
	price, _ = ref.BaselineValue(mappers.FieldPrice)
	assert.Equal(t, "12.00", price)
}
