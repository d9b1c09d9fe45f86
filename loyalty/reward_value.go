package loyalty

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REWARD VALUE - One variant per reward type
// =============================================================================

// RewardValue is the type-specific payload of a reward.
//
// Adding a reward type means adding one variant here, one case in
// ValueData.Variant, and one arm in ClaimKindOf.
type RewardValue interface {
	RewardType() RewardType
}

type GiftCardValue struct {
	Amount decimal.Decimal
}

type SparkAdsValue struct {
	Amount decimal.Decimal
}

type ExperienceValue struct {
	DisplayText string
}

type DiscountValue struct {
	Percent         decimal.Decimal
	DurationMinutes int
	CouponCode      string
	MaxUses         int
}

type CommissionBoostValue struct {
	Percent      decimal.Decimal
	DurationDays int
}

type PhysicalGiftValue struct {
	DisplayText  string
	RequiresSize bool
	SizeCategory string
	SizeOptions  []string
}

func (GiftCardValue) RewardType() RewardType        { return RewardGiftCard }
func (SparkAdsValue) RewardType() RewardType        { return RewardSparkAds }
func (ExperienceValue) RewardType() RewardType      { return RewardExperience }
func (DiscountValue) RewardType() RewardType        { return RewardDiscount }
func (CommissionBoostValue) RewardType() RewardType { return RewardCommissionBoost }
func (PhysicalGiftValue) RewardType() RewardType    { return RewardPhysicalGift }

// =============================================================================
// CLAIM KIND
// =============================================================================

// ClaimKind groups reward types by how a claim is fulfilled.
type ClaimKind string

const (
	ClaimInstant   ClaimKind = "instant"
	ClaimScheduled ClaimKind = "scheduled"
	ClaimPhysical  ClaimKind = "physical"
)

// ClaimKindOf returns the fulfillment branch for a reward type.
func ClaimKindOf(t RewardType) (ClaimKind, error) {
	switch t {
	case RewardGiftCard, RewardSparkAds, RewardExperience:
		return ClaimInstant, nil
	case RewardDiscount, RewardCommissionBoost:
		return ClaimScheduled, nil
	case RewardPhysicalGift:
		return ClaimPhysical, nil
	default:
		return "", fmt.Errorf("%w: unknown reward type %q", ErrInvalidRewardValue, t)
	}
}

// =============================================================================
// VALUE DATA - Flat persisted form
// =============================================================================

// ValueData is the flat JSON/YAML document a reward value is stored as.
type ValueData struct {
	Amount          *decimal.Decimal `json:"amount,omitempty" yaml:"amount,omitempty"`
	Percent         *decimal.Decimal `json:"percent,omitempty" yaml:"percent,omitempty"`
	DurationDays    int              `json:"duration_days,omitempty" yaml:"duration_days,omitempty"`
	DurationMinutes int              `json:"duration_minutes,omitempty" yaml:"duration_minutes,omitempty"`
	CouponCode      string           `json:"coupon_code,omitempty" yaml:"coupon_code,omitempty"`
	MaxUses         int              `json:"max_uses,omitempty" yaml:"max_uses,omitempty"`
	DisplayText     string           `json:"display_text,omitempty" yaml:"display_text,omitempty"`
	RequiresSize    bool             `json:"requires_size,omitempty" yaml:"requires_size,omitempty"`
	SizeCategory    string           `json:"size_category,omitempty" yaml:"size_category,omitempty"`
	SizeOptions     []string         `json:"size_options,omitempty" yaml:"size_options,omitempty"`
}

// Variant builds the typed value for t, rejecting data missing required fields.
func (d ValueData) Variant(t RewardType) (RewardValue, error) {
	switch t {
	case RewardGiftCard:
		if d.Amount == nil || !d.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: gift_card requires a positive amount", ErrInvalidRewardValue)
		}
		return GiftCardValue{Amount: *d.Amount}, nil
	case RewardSparkAds:
		if d.Amount == nil || !d.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: spark_ads requires a positive amount", ErrInvalidRewardValue)
		}
		return SparkAdsValue{Amount: *d.Amount}, nil
	case RewardExperience:
		return ExperienceValue{DisplayText: d.DisplayText}, nil
	case RewardDiscount:
		if d.Percent == nil || !d.Percent.IsPositive() {
			return nil, fmt.Errorf("%w: discount requires a positive percent", ErrInvalidRewardValue)
		}
		if d.DurationMinutes <= 0 {
			return nil, fmt.Errorf("%w: discount requires duration_minutes", ErrInvalidRewardValue)
		}
		return DiscountValue{
			Percent:         *d.Percent,
			DurationMinutes: d.DurationMinutes,
			CouponCode:      d.CouponCode,
			MaxUses:         d.MaxUses,
		}, nil
	case RewardCommissionBoost:
		if d.Percent == nil || !d.Percent.IsPositive() {
			return nil, fmt.Errorf("%w: commission_boost requires a positive percent", ErrInvalidRewardValue)
		}
		if d.DurationDays <= 0 {
			return nil, fmt.Errorf("%w: commission_boost requires duration_days", ErrInvalidRewardValue)
		}
		return CommissionBoostValue{Percent: *d.Percent, DurationDays: d.DurationDays}, nil
	case RewardPhysicalGift:
		return PhysicalGiftValue{
			DisplayText:  d.DisplayText,
			RequiresSize: d.RequiresSize,
			SizeCategory: d.SizeCategory,
			SizeOptions:  append([]string(nil), d.SizeOptions...),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown reward type %q", ErrInvalidRewardValue, t)
	}
}

// DataOf flattens a typed value back into its persisted form.
func DataOf(v RewardValue) ValueData {
	switch val := v.(type) {
	case GiftCardValue:
		return ValueData{Amount: &val.Amount}
	case SparkAdsValue:
		return ValueData{Amount: &val.Amount}
	case ExperienceValue:
		return ValueData{DisplayText: val.DisplayText}
	case DiscountValue:
		return ValueData{
			Percent:         &val.Percent,
			DurationMinutes: val.DurationMinutes,
			CouponCode:      val.CouponCode,
			MaxUses:         val.MaxUses,
		}
	case CommissionBoostValue:
		return ValueData{Percent: &val.Percent, DurationDays: val.DurationDays}
	case PhysicalGiftValue:
		return ValueData{
			DisplayText:  val.DisplayText,
			RequiresSize: val.RequiresSize,
			SizeCategory: val.SizeCategory,
			SizeOptions:  val.SizeOptions,
		}
	default:
		return ValueData{}
	}
}
