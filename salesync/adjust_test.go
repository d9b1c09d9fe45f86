package salesync_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/creator-rewards/loyalty"
)

func TestAdjustSales_RecomputesTotalsAndTier(t *testing.T) {
	// GIVEN: A silver creator with no synced videos
	svc, f := newTestService(t)
	mission(f, "m-sales", loyalty.MissionSalesDollars, 5000)

	// WHEN: A bonus lifts them past the gold threshold
	u, err := svc.AdjustSales(f.Ctx, loyalty.SalesAdjustment{
		ClientID: f.ClientID, UserID: "u1", Amount: decimal.NewFromInt(5200),
		Type: loyalty.AdjustmentBonus, Reason: "  launch bonus ", CreatedBy: "admin1",
	})

	// THEN: Totals, tier and mission progress follow the adjustment
	require.NoError(t, err)
	assert.Equal(t, loyalty.TierID("gold"), u.CurrentTierID)
	assert.True(t, decimal.NewFromInt(5200).Equal(u.TotalSales))
	assert.Equal(t, loyalty.ProgressCompleted, progressOf(t, f, "u1", "m-sales").Status)

	// A refund lowers totals but lifetime tiers never demote.
	u, err = svc.AdjustSales(f.Ctx, loyalty.SalesAdjustment{
		ClientID: f.ClientID, UserID: "u1", Amount: decimal.NewFromInt(-600), Units: -2,
		Type: loyalty.AdjustmentRefund, Reason: "returned order",
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(4600).Equal(u.TotalSales))
	assert.Equal(t, int64(-2), u.TotalUnits)
	assert.Equal(t, loyalty.TierID("gold"), u.CurrentTierID)
	assert.Equal(t, loyalty.ProgressCompleted, progressOf(t, f, "u1", "m-sales").Status, "completion never reverts")

	adj, err := svc.Adjustments(f.Ctx, f.ClientID, "u1")
	require.NoError(t, err)
	require.Len(t, adj, 2)
	assert.Equal(t, "launch bonus", adj[0].Reason)
}

func TestAdjustSales_Validation(t *testing.T) {
	svc, f := newTestService(t)
	base := loyalty.SalesAdjustment{ClientID: f.ClientID, UserID: "u1", Amount: decimal.NewFromInt(10), Type: loyalty.AdjustmentCorrection, Reason: "fix"}

	tests := []struct {
		name   string
		mutate func(*loyalty.SalesAdjustment)
		check  func(error) bool
	}{
		{"unknown type", func(a *loyalty.SalesAdjustment) { a.Type = "gift" }, isValidation},
		{"zero amount and units", func(a *loyalty.SalesAdjustment) { a.Amount = decimal.Zero }, isValidation},
		{"blank reason", func(a *loyalty.SalesAdjustment) { a.Reason = "  " }, isValidation},
		{"unknown user", func(a *loyalty.SalesAdjustment) { a.UserID = "ghost" }, loyalty.IsNotFound},
		{"unknown client", func(a *loyalty.SalesAdjustment) { a.ClientID = "other" }, loyalty.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := base
			tt.mutate(&a)
			_, err := svc.AdjustSales(f.Ctx, a)
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}

	adj, err := svc.Adjustments(f.Ctx, f.ClientID, "u1")
	require.NoError(t, err)
	assert.Empty(t, adj, "rejected adjustments are not recorded")
}

func isValidation(err error) bool {
	return loyalty.IsClientError(err) && loyalty.CodeOf(err) == loyalty.CodeInvalidRequest
}
