package claims_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/creator-rewards/claims"
	"github.com/warp/creator-rewards/loyalty"
	"github.com/warp/creator-rewards/notify"
)

// =============================================================================
// COMMISSION BOOST LIFECYCLE
// =============================================================================

func TestCommissionBoost_FullLifecycle(t *testing.T) {
	// GIVEN: A claimed 5% boost scheduled for Jun 12 23:00 UTC, lifetime sales $2,500
	// WHEN: The lifecycle runs past activation, sales grow to $3,500, it runs past expiry,
	//       payment info is saved and the payout is marked paid
	// THEN: The boost moves scheduled -> activated -> pending_info -> pending_payout -> paid
	//       and pays $50
	svc, f, rec := newMemoryService(t)
	ctx := context.Background()
	f.Reward(loyalty.Reward{ID: "boost5", Value: loyalty.CommissionBoostValue{Percent: decimal.NewFromInt(5), DurationDays: 30}})
	m := salesMission(f, "m1", "boost5", 500)
	f.Progress("u1", m, 900)

	claim, err := svc.ClaimMissionReward(ctx, claims.ClaimMissionRequest{
		ClientID: f.ClientID, UserID: "u1", MissionID: "m1",
		Payload: claims.ClaimPayload{ScheduledActivationDate: "2025-06-12"},
	})
	require.NoError(t, err)
	id := claim.RedemptionID

	// Not due yet.
	report, err := svc.RunLifecycle(ctx, f.Now)
	require.NoError(t, err)
	assert.Equal(t, claims.LifecycleReport{}, report)

	activation := time.Date(2025, time.June, 13, 0, 0, 0, 0, time.UTC)
	report, err = svc.RunLifecycle(ctx, activation)
	require.NoError(t, err)
	assert.Equal(t, 1, report.BoostsActivated)

	b, err := f.Store.GetCommissionBoost(ctx, f.ClientID, id)
	require.NoError(t, err)
	assert.Equal(t, loyalty.BoostActivated, b.BoostStatus)
	assert.True(t, b.SalesAtActivation.Decimal.Equal(decimal.NewFromInt(2500)))
	require.NotNil(t, b.ExpiresAt)
	assert.Equal(t, activation.AddDate(0, 0, 30), *b.ExpiresAt)

	// Running again at the same instant changes nothing.
	report, err = svc.RunLifecycle(ctx, activation)
	require.NoError(t, err)
	assert.Equal(t, 0, report.BoostsActivated)

	u, err := f.Store.GetUser(ctx, f.ClientID, "u1")
	require.NoError(t, err)
	u.TotalSales = decimal.NewFromInt(3500)
	require.NoError(t, f.Store.SaveUser(ctx, *u))

	report, err = svc.RunLifecycle(ctx, b.ExpiresAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, report.BoostsExpired)

	b, err = f.Store.GetCommissionBoost(ctx, f.ClientID, id)
	require.NoError(t, err)
	assert.Equal(t, loyalty.BoostPendingInfo, b.BoostStatus)
	assert.Equal(t, "50.00", b.FinalPayout.Decimal.StringFixed(2))

	f.Now = b.ExpiresAt.Add(time.Hour)
	_, err = svc.SavePaymentInfo(ctx, claims.SavePaymentInfoRequest{
		ClientID: f.ClientID, UserID: "u1", RedemptionID: id,
		Method: loyalty.PaymentPayPal, Account: "jane@example.com", ConfirmAccount: "jane@example.org",
	})
	assert.Equal(t, loyalty.CodePaymentAccountMismatch, loyalty.CodeOf(err))

	saved, err := svc.SavePaymentInfo(ctx, claims.SavePaymentInfoRequest{
		ClientID: f.ClientID, UserID: "u1", RedemptionID: id,
		Method: loyalty.PaymentPayPal, Account: "jane@example.com", ConfirmAccount: "jane@example.com",
		SaveAsDefault: true,
	})
	require.NoError(t, err)
	assert.Equal(t, loyalty.BoostPendingPayout, saved.BoostStatus)
	assert.True(t, saved.UserPaymentUpdated)

	b, err = f.Store.GetCommissionBoost(ctx, f.ClientID, id)
	require.NoError(t, err)
	assert.NotEqual(t, "jane@example.com", b.PaymentAccount, "account is stored sealed")

	def, err := svc.DefaultPaymentInfo(ctx, f.ClientID, "u1")
	require.NoError(t, err)
	assert.True(t, def.HasDefault)
	assert.Equal(t, "j**e@example.com", def.Account)

	_, err = svc.SavePaymentInfo(ctx, claims.SavePaymentInfoRequest{
		ClientID: f.ClientID, UserID: "u1", RedemptionID: id,
		Method: loyalty.PaymentVenmo, Account: "@jane", ConfirmAccount: "@jane",
	})
	assert.Equal(t, loyalty.CodePaymentInfoNotRequired, loyalty.CodeOf(err))

	paid, err := svc.MarkBoostPaid(ctx, f.ClientID, id)
	require.NoError(t, err)
	assert.Equal(t, loyalty.RedemptionConcluded, paid.Status)

	b, err = f.Store.GetCommissionBoost(ctx, f.ClientID, id)
	require.NoError(t, err)
	assert.Equal(t, loyalty.BoostPaid, b.BoostStatus)

	kinds := rec.kinds()
	assert.Contains(t, kinds, notify.KindBoostActivated)
	assert.Contains(t, kinds, notify.KindBoostExpired)
	assert.Contains(t, kinds, notify.KindPaymentInfoSaved)
}

func TestSavePaymentInfo_Validation(t *testing.T) {
	svc, f, _ := newMemoryService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		method   loyalty.PaymentMethod
		account  string
		confirm  string
		wantCode string
	}{
		{"unknown method", "zelle", "a@b.com", "a@b.com", loyalty.CodeInvalidRequest},
		{"empty account", loyalty.PaymentPayPal, "", "", loyalty.CodeInvalidRequest},
		{"mismatch", loyalty.PaymentVenmo, "@jane", "@jan", loyalty.CodePaymentAccountMismatch},
		{"paypal not an email", loyalty.PaymentPayPal, "jane", "jane", loyalty.CodeInvalidRequest},
		{"venmo without at", loyalty.PaymentVenmo, "jane", "jane", loyalty.CodeInvalidRequest},
		{"unknown redemption", loyalty.PaymentVenmo, "@jane", "@jane", loyalty.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SavePaymentInfo(ctx, claims.SavePaymentInfoRequest{
				ClientID: f.ClientID, UserID: "u1", RedemptionID: "missing",
				Method: tt.method, Account: tt.account, ConfirmAccount: tt.confirm,
			})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, loyalty.CodeOf(err))
		})
	}
}

func TestBoostPayout(t *testing.T) {
	tests := []struct {
		name       string
		activation int64
		expiration int64
		rate       string
		want       string
	}{
		{"growth", 2500, 3500, "5", "50.00"},
		{"fractional rate", 1000, 1333, "7.5", "24.98"},
		{"no growth", 2500, 2500, "5", "0.00"},
		{"refunds never go negative", 3000, 2500, "5", "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := claims.BoostPayout(decimal.NewFromInt(tt.activation), decimal.NewFromInt(tt.expiration), decimal.RequireFromString(tt.rate))
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

// =============================================================================
// DISCOUNT LIFECYCLE
// =============================================================================

func TestDiscount_ActivateThenConclude(t *testing.T) {
	svc, f, _ := newMemoryService(t)
	ctx := context.Background()
	f.Reward(loyalty.Reward{ID: "deal", Source: loyalty.SourceVIPTier,
		Value: loyalty.DiscountValue{Percent: decimal.NewFromInt(10), DurationMinutes: 60, CouponCode: "VIP10"}})

	claim, err := svc.ClaimReward(ctx, claims.ClaimRewardRequest{
		ClientID: f.ClientID, UserID: "u1", RewardID: "deal",
		Payload: claims.ClaimPayload{ScheduledActivationDate: "2025-06-12", ScheduledActivationTime: "10:00"},
	})
	require.NoError(t, err)

	f.Now = *claim.ScheduledActivationAt
	r, err := svc.ActivateDiscount(ctx, f.ClientID, claim.RedemptionID)
	require.NoError(t, err)
	assert.Equal(t, loyalty.RedemptionFulfilled, r.Status)
	require.NotNil(t, r.ExpirationDate)
	assert.Equal(t, f.Now.Add(time.Hour), *r.ExpirationDate)

	_, err = svc.ActivateDiscount(ctx, f.ClientID, claim.RedemptionID)
	assert.ErrorIs(t, err, loyalty.ErrInvalidTransition)

	report, err := svc.RunLifecycle(ctx, f.Now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, report.DiscountsConcluded)

	report, err = svc.RunLifecycle(ctx, f.Now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, report.DiscountsConcluded)

	got, err := f.Store.GetRedemption(ctx, f.ClientID, claim.RedemptionID)
	require.NoError(t, err)
	assert.Equal(t, loyalty.RedemptionConcluded, got.Status)
}

func TestLifecycle_LeavesInstantRewardsAlone(t *testing.T) {
	// GIVEN: A fulfilled gift card redemption
	// WHEN: The lifecycle runs
	// THEN: It is not concluded
	svc, f, _ := newMemoryService(t)
	ctx := context.Background()
	f.Reward(loyalty.Reward{ID: "gc50", Value: giftCard(50)})
	m := salesMission(f, "m1", "gc50", 500)
	f.Progress("u1", m, 500)

	claim, err := svc.ClaimMissionReward(ctx, claims.ClaimMissionRequest{ClientID: f.ClientID, UserID: "u1", MissionID: "m1"})
	require.NoError(t, err)
	_, err = svc.FulfillRedemption(ctx, f.ClientID, claim.RedemptionID, "code sent by email")
	require.NoError(t, err)

	report, err := svc.RunLifecycle(ctx, f.Now.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, claims.LifecycleReport{}, report)

	got, err := f.Store.GetRedemption(ctx, f.ClientID, claim.RedemptionID)
	require.NoError(t, err)
	assert.Equal(t, loyalty.RedemptionFulfilled, got.Status)
	assert.Equal(t, "code sent by email", got.FulfillmentNotes)
}

// =============================================================================
// PHYSICAL GIFT FULFILLMENT
// =============================================================================

func TestPhysicalGift_ShipThenDeliver(t *testing.T) {
	svc, f, _ := newMemoryService(t)
	ctx := context.Background()
	f.Reward(loyalty.Reward{ID: "mug", Value: loyalty.PhysicalGiftValue{DisplayText: "Mug"}})
	m := salesMission(f, "m1", "mug", 500)
	f.Progress("u1", m, 500)

	claim, err := svc.ClaimMissionReward(ctx, claims.ClaimMissionRequest{
		ClientID: f.ClientID, UserID: "u1", MissionID: "m1",
		Payload: claims.ClaimPayload{ShippingAddress: &claims.Address{
			FirstName: "Jane", LastName: "Doe", Line1: "1 Main St", City: "Austin", State: "TX", PostalCode: "78701",
		}},
	})
	require.NoError(t, err)

	_, err = svc.MarkDelivered(ctx, f.ClientID, claim.RedemptionID)
	assert.ErrorIs(t, err, loyalty.ErrNotEligible, "cannot deliver before shipping")

	_, err = svc.MarkShipped(ctx, f.ClientID, claim.RedemptionID, "UPS", "1Z999")
	require.NoError(t, err)
	_, err = svc.MarkShipped(ctx, f.ClientID, claim.RedemptionID, "UPS", "1Z999")
	assert.Equal(t, loyalty.CodeInvalidTransition, loyalty.CodeOf(err))

	r, err := svc.MarkDelivered(ctx, f.ClientID, claim.RedemptionID)
	require.NoError(t, err)
	assert.Equal(t, loyalty.RedemptionFulfilled, r.Status)

	g, err := f.Store.GetPhysicalGift(ctx, f.ClientID, claim.RedemptionID)
	require.NoError(t, err)
	assert.Equal(t, "1Z999", g.TrackingNumber)
	assert.NotNil(t, g.DeliveredAt)
}

func TestRejectRedemption_RequiresReasonAndFreesKey(t *testing.T) {
	svc, f, _ := newMemoryService(t)
	ctx := context.Background()
	f.Reward(loyalty.Reward{ID: "vip-gc", Value: giftCard(25), Source: loyalty.SourceVIPTier, Frequency: loyalty.FrequencyUnlimited})

	claim, err := svc.ClaimReward(ctx, claims.ClaimRewardRequest{ClientID: f.ClientID, UserID: "u1", RewardID: "vip-gc"})
	require.NoError(t, err)

	_, err = svc.RejectRedemption(ctx, f.ClientID, claim.RedemptionID, " ")
	assert.ErrorIs(t, err, loyalty.ErrValidation)

	_, err = svc.RejectRedemption(ctx, f.ClientID, claim.RedemptionID, "fraud review")
	require.NoError(t, err)

	_, err = svc.ClaimReward(ctx, claims.ClaimRewardRequest{ClientID: f.ClientID, UserID: "u1", RewardID: "vip-gc"})
	assert.NoError(t, err, "a rejected claim no longer blocks the key")

	_, err = svc.ConcludeRedemption(ctx, f.ClientID, claim.RedemptionID)
	assert.ErrorIs(t, err, loyalty.ErrInvalidTransition, "rejected is terminal")
}
