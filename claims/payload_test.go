package claims

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/creator-rewards/loyalty"
)

var payloadNow = time.Date(2025, time.June, 10, 15, 0, 0, 0, time.UTC)

func reward(v loyalty.RewardValue) loyalty.Reward {
	return loyalty.Reward{ID: "r1", Type: v.RewardType(), Value: v}
}

func TestValidatePayload_InstantRewards(t *testing.T) {
	for _, v := range []loyalty.RewardValue{
		loyalty.GiftCardValue{Amount: decimal.NewFromInt(50)},
		loyalty.SparkAdsValue{Amount: decimal.NewFromInt(100)},
		loyalty.ExperienceValue{DisplayText: "Studio day"},
	} {
		t.Run(string(v.RewardType()), func(t *testing.T) {
			got, err := validatePayload(reward(v), ClaimPayload{}, payloadNow)
			require.NoError(t, err)
			assert.Equal(t, loyalty.ClaimInstant, got.kind)
			assert.Nil(t, got.activateAt)

			_, err = validatePayload(reward(v), ClaimPayload{Size: "M"}, payloadNow)
			assert.Equal(t, loyalty.CodeInvalidPayload, loyalty.CodeOf(err))
		})
	}
}

func TestValidatePayload_CommissionBoost(t *testing.T) {
	r := reward(loyalty.CommissionBoostValue{Percent: decimal.NewFromInt(5), DurationDays: 30})

	tests := []struct {
		name    string
		payload ClaimPayload
		want    time.Time
		wantErr string
	}{
		{"date only uses default time", ClaimPayload{ScheduledActivationDate: "2025-06-11"}, time.Date(2025, 6, 11, 23, 0, 0, 0, time.UTC), ""},
		{"explicit time", ClaimPayload{ScheduledActivationDate: "2025-06-11", ScheduledActivationTime: "08:15:30"}, time.Date(2025, 6, 11, 8, 15, 30, 0, time.UTC), ""},
		{"today later", ClaimPayload{ScheduledActivationDate: "2025-06-10"}, time.Date(2025, 6, 10, 23, 0, 0, 0, time.UTC), ""},
		{"missing date", ClaimPayload{}, time.Time{}, "scheduledActivationDate"},
		{"past", ClaimPayload{ScheduledActivationDate: "2025-06-10", ScheduledActivationTime: "14:00"}, time.Time{}, "scheduledActivationDate"},
		{"garbage", ClaimPayload{ScheduledActivationDate: "June 11"}, time.Time{}, "scheduledActivationDate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validatePayload(r, tt.payload, payloadNow)
			if tt.wantErr != "" {
				var ve *loyalty.ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.wantErr, ve.Field)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got.activateAt)
			assert.Equal(t, tt.want, *got.activateAt)
			assert.Equal(t, loyalty.ClaimScheduled, got.kind)
		})
	}
}

func TestValidatePayload_DiscountUsesEasternTime(t *testing.T) {
	r := reward(loyalty.DiscountValue{Percent: decimal.NewFromInt(10), DurationMinutes: 60})

	// January is EST (UTC-5), June is EDT (UTC-4).
	winter, err := validatePayload(r, ClaimPayload{ScheduledActivationDate: "2026-01-06", ScheduledActivationTime: "09:00"}, payloadNow)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 6, 14, 0, 0, 0, time.UTC), *winter.activateAt)

	summer, err := validatePayload(r, ClaimPayload{ScheduledActivationDate: "2025-06-11", ScheduledActivationTime: "15:59"}, payloadNow)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 11, 19, 59, 0, 0, time.UTC), *summer.activateAt)
}

func TestValidatePayload_PhysicalGift(t *testing.T) {
	address := &Address{FirstName: " Jane ", LastName: "Doe", Line1: "1 Main St", City: "Austin", State: "TX", PostalCode: "78701"}
	sized := reward(loyalty.PhysicalGiftValue{RequiresSize: true, SizeOptions: []string{"S", "M"}})
	unsized := reward(loyalty.PhysicalGiftValue{})

	tests := []struct {
		name      string
		reward    loyalty.Reward
		payload   ClaimPayload
		wantField string
	}{
		{"ok", sized, ClaimPayload{ShippingAddress: address, Size: "S"}, ""},
		{"no size needed", unsized, ClaimPayload{ShippingAddress: address}, ""},
		{"missing address", sized, ClaimPayload{Size: "S"}, "shippingAddress"},
		{"missing city", unsized, ClaimPayload{ShippingAddress: &Address{FirstName: "J", LastName: "D", Line1: "x", State: "TX", PostalCode: "1"}}, "shippingAddress.city"},
		{"missing size", sized, ClaimPayload{ShippingAddress: address}, "size"},
		{"size not offered", sized, ClaimPayload{ShippingAddress: address, Size: "XL"}, "size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validatePayload(tt.reward, tt.payload, payloadNow)
			if tt.wantField != "" {
				var ve *loyalty.ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.wantField, ve.Field)
				assert.Equal(t, loyalty.CodeInvalidPayload, ve.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Jane", got.shipping.FirstName)
			assert.Equal(t, loyalty.ClaimPhysical, got.kind)
		})
	}
}

func TestMaskAccount(t *testing.T) {
	tests := map[string]string{
		"jane@example.com": "j**e@example.com",
		"@jane":            "@j**e",
		"@jo":              "@jo",
		"ab@x.io":          "ab@x.io",
	}
	for in, want := range tests {
		assert.Equal(t, want, maskAccount(in), in)
	}
}

func TestSealer(t *testing.T) {
	s, err := NewSealer("")
	require.NoError(t, err)

	sealed, err := s.Seal("@jane")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "jane")

	again, err := s.Seal("@jane")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "each seal uses a fresh nonce")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "@jane", plain)

	other, err := NewSealer("")
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrSealedValue)

	_, err = NewSealer("abcd")
	assert.Error(t, err, "short keys are rejected")
}
