package claims

import (
	"fmt"
	"slices"
	"strings"
	"time"
	_ "time/tzdata" // America/New_York for discount scheduling

	"github.com/warp/creator-rewards/loyalty"
)

// =============================================================================
// CLAIM PAYLOAD
// =============================================================================

// Address is the shipping address submitted with a physical gift claim.
type Address struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Line1      string `json:"addressLine1"`
	Line2      string `json:"addressLine2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// ClaimPayload is the type-specific input of a claim. Which fields are
// required depends on the reward's ClaimKind.
type ClaimPayload struct {
	ScheduledActivationDate string   `json:"scheduledActivationDate,omitempty"` // YYYY-MM-DD
	ScheduledActivationTime string   `json:"scheduledActivationTime,omitempty"` // HH:MM or HH:MM:SS
	Size                    string   `json:"size,omitempty"`
	ShippingAddress         *Address `json:"shippingAddress,omitempty"`
}

func (p ClaimPayload) isEmpty() bool {
	return p.ScheduledActivationDate == "" && p.ScheduledActivationTime == "" &&
		p.Size == "" && p.ShippingAddress == nil
}

// BoostActivationTime is the default time of day (UTC) a commission boost
// activates when the claim names only a date.
const BoostActivationTime = "23:00"

var (
	discountZone     = mustLoadLocation("America/New_York")
	discountOpenHour = 9
	discountShutHour = 16
)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("load location %s: %v", name, err))
	}
	return loc
}

// validated is a payload checked against its reward.
type validated struct {
	kind       loyalty.ClaimKind
	activateAt *time.Time
	size       string
	shipping   loyalty.ShippingAddress
}

// validatePayload checks p against the reward type's rules. Every failure is
// a ValidationError with code INVALID_PAYLOAD.
func validatePayload(reward loyalty.Reward, p ClaimPayload, now time.Time) (validated, error) {
	kind, err := loyalty.ClaimKindOf(reward.Type)
	if err != nil {
		return validated{}, loyalty.Invalid(loyalty.CodeInvalidPayload, "rewardType", "%v", err)
	}
	v := validated{kind: kind}

	switch gift := reward.Value.(type) {
	case loyalty.GiftCardValue, loyalty.SparkAdsValue, loyalty.ExperienceValue:
		if !p.isEmpty() {
			return v, invalid("", "%s rewards take no payload", reward.Type)
		}

	case loyalty.CommissionBoostValue:
		if p.ScheduledActivationDate == "" {
			return v, invalid("scheduledActivationDate", "required for commission boosts")
		}
		clock := p.ScheduledActivationTime
		if clock == "" {
			clock = BoostActivationTime
		}
		at, err := parseInstant(p.ScheduledActivationDate, clock, time.UTC)
		if err != nil {
			return v, err
		}
		if !at.After(now) {
			return v, invalid("scheduledActivationDate", "must be in the future")
		}
		v.activateAt = &at

	case loyalty.DiscountValue:
		if p.ScheduledActivationDate == "" {
			return v, invalid("scheduledActivationDate", "required for discounts")
		}
		if p.ScheduledActivationTime == "" {
			return v, invalid("scheduledActivationTime", "required for discounts")
		}
		at, err := parseInstant(p.ScheduledActivationDate, p.ScheduledActivationTime, discountZone)
		if err != nil {
			return v, err
		}
		if !at.After(now) {
			return v, invalid("scheduledActivationDate", "must be in the future")
		}
		local := at.In(discountZone)
		if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
			return v, invalid("scheduledActivationDate", "discounts can only be scheduled on weekdays (Monday-Friday)")
		}
		if local.Hour() < discountOpenHour || local.Hour() >= discountShutHour {
			return v, invalid("scheduledActivationTime", "discounts must be scheduled between 9 AM and 4 PM ET")
		}
		utc := at.UTC()
		v.activateAt = &utc

	case loyalty.PhysicalGiftValue:
		if p.ShippingAddress == nil {
			return v, invalid("shippingAddress", "required for physical gifts")
		}
		if err := checkAddress(*p.ShippingAddress); err != nil {
			return v, err
		}
		if gift.RequiresSize && p.Size == "" {
			return v, invalid("size", "required for this gift")
		}
		if p.Size != "" && len(gift.SizeOptions) > 0 && !slices.Contains(gift.SizeOptions, p.Size) {
			return v, invalid("size", "%q is not one of %s", p.Size, strings.Join(gift.SizeOptions, ", "))
		}
		a := p.ShippingAddress
		v.size = p.Size
		v.shipping = loyalty.ShippingAddress{
			FirstName:  strings.TrimSpace(a.FirstName),
			LastName:   strings.TrimSpace(a.LastName),
			Line1:      strings.TrimSpace(a.Line1),
			Line2:      strings.TrimSpace(a.Line2),
			City:       strings.TrimSpace(a.City),
			State:      strings.TrimSpace(a.State),
			PostalCode: strings.TrimSpace(a.PostalCode),
			Country:    strings.TrimSpace(a.Country),
			Phone:      strings.TrimSpace(a.Phone),
		}

	default:
		return v, invalid("rewardType", "reward %s has no value", reward.ID)
	}
	return v, nil
}

func checkAddress(a Address) error {
	required := []struct{ field, value string }{
		{"shippingAddress.firstName", a.FirstName},
		{"shippingAddress.lastName", a.LastName},
		{"shippingAddress.addressLine1", a.Line1},
		{"shippingAddress.city", a.City},
		{"shippingAddress.state", a.State},
		{"shippingAddress.postalCode", a.PostalCode},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return invalid(r.field, "required")
		}
	}
	return nil
}

func parseInstant(date, clock string, loc *time.Location) (time.Time, error) {
	layout := "2006-01-02 15:04"
	if strings.Count(clock, ":") == 2 {
		layout = "2006-01-02 15:04:05"
	}
	at, err := time.ParseInLocation(layout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, invalid("scheduledActivationDate", "expected YYYY-MM-DD and HH:MM, got %q %q", date, clock)
	}
	return at, nil
}

func invalid(field, format string, args ...any) error {
	return loyalty.Invalid(loyalty.CodeInvalidPayload, field, format, args...)
}

// =============================================================================
// NEXT ACTION
// =============================================================================

// NextAction tells the client what happens after a successful claim.
type NextAction struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

const (
	ActionShippingConfirmation  = "shipping_confirmation"
	ActionScheduledConfirmation = "scheduled_confirmation"
	ActionWaitFulfillment       = "wait_fulfillment"
)

// NextActionFor returns the follow-up shown after claiming a reward of type t.
func NextActionFor(t loyalty.RewardType) NextAction {
	switch t {
	case loyalty.RewardPhysicalGift:
		return NextAction{ActionShippingConfirmation, "Your shipping info has been received. We'll send tracking details via email!"}
	case loyalty.RewardDiscount:
		return NextAction{ActionScheduledConfirmation, "Your discount will activate at the scheduled time!"}
	case loyalty.RewardCommissionBoost:
		return NextAction{ActionScheduledConfirmation, "Your boost will activate automatically at the scheduled time!"}
	default:
		return NextAction{ActionWaitFulfillment, "Your reward is being processed. You'll receive an email when it's ready!"}
	}
}

// SuccessMessage is the toast shown after claiming reward.
func SuccessMessage(reward loyalty.Reward, activateAt *time.Time) string {
	switch reward.Type {
	case loyalty.RewardGiftCard:
		return "Gift card claimed! You'll receive your reward soon."
	case loyalty.RewardSparkAds:
		return "Spark Ads boost claimed! You'll receive your reward soon."
	case loyalty.RewardExperience:
		return firstNonEmpty(reward.Description, "Experience") + " claimed! You'll receive details soon."
	case loyalty.RewardPhysicalGift:
		return firstNonEmpty(reward.Description, "Item") + " claimed! We'll ship it to your address soon."
	case loyalty.RewardDiscount:
		if activateAt != nil {
			return "Discount scheduled to activate on " + activateAt.In(discountZone).Format("Jan 2") + "!"
		}
		return "Discount scheduled!"
	case loyalty.RewardCommissionBoost:
		if activateAt != nil {
			return "Commission boost scheduled to activate on " + activateAt.UTC().Format("Jan 2 at 15:04 UTC")
		}
		return "Commission boost scheduled!"
	default:
		return "Reward claimed successfully!"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
