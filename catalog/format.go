package catalog

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/warp/creator-rewards/loyalty"
)

// =============================================================================
// NUMBERS
// =============================================================================

var printer = message.NewPrinter(language.English)

// FormatCount renders a whole or fractional number with thousands separators.
func FormatCount(d decimal.Decimal) string {
	if d.IsInteger() {
		return printer.Sprintf("%d", d.IntPart())
	}
	f, _ := d.Round(2).Float64()
	return printer.Sprintf("%.2f", f)
}

// FormatMoney renders a dollar amount: "$4,200" or "$4,200.50".
func FormatMoney(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + FormatCount(d.Neg())
	}
	return "$" + FormatCount(d)
}

// wholePercent turns a [0, 1] fraction into a floored whole percent.
func wholePercent(f float64) int {
	return int(math.Floor(f*100 + 1e-9))
}

func formatPercent(d decimal.Decimal) string {
	return d.String() + "%"
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// =============================================================================
// MISSIONS
// =============================================================================

var missionDisplayNames = map[loyalty.MissionType]string{
	loyalty.MissionSalesDollars: "Sales Sprint",
	loyalty.MissionSalesUnits:   "Unit Rush",
	loyalty.MissionLikes:        "Fan Favorite",
	loyalty.MissionViews:        "Road to Viral",
	loyalty.MissionVideos:       "Lights, Camera, Go!",
	loyalty.MissionRaffle:       "VIP Raffle",
}

// MissionDisplayName is the product name of a mission type.
func MissionDisplayName(t loyalty.MissionType) string {
	if name, ok := missionDisplayNames[t]; ok {
		return name
	}
	return "Mission"
}

// formatMetric renders a value in the mission's unit.
func formatMetric(t loyalty.MissionType, v decimal.Decimal) string {
	switch t {
	case loyalty.MissionSalesDollars:
		return FormatMoney(v)
	case loyalty.MissionSalesUnits:
		return FormatCount(v) + " " + plural(v.IntPart(), "unit", "units")
	case loyalty.MissionVideos:
		return FormatCount(v) + " " + plural(v.IntPart(), "video", "videos")
	case loyalty.MissionLikes:
		return FormatCount(v) + " likes"
	case loyalty.MissionViews:
		return FormatCount(v) + " views"
	default:
		return FormatCount(v)
	}
}

// ProgressText returns "$4,200 / $5,000" and "$800 more to go!".
func ProgressText(t loyalty.MissionType, current, target decimal.Decimal) (progress, remaining string) {
	left := decimal.Max(target.Sub(current), decimal.Zero)

	if t == loyalty.MissionSalesDollars {
		progress = FormatMoney(current) + " / " + FormatMoney(target)
	} else {
		progress = FormatCount(current) + " / " + formatMetric(t, target)
	}

	switch t {
	case loyalty.MissionSalesDollars:
		remaining = FormatMoney(left) + " more to go!"
	case loyalty.MissionVideos:
		remaining = fmt.Sprintf("%s more %s to post!", FormatCount(left), plural(left.IntPart(), "video", "videos"))
	default:
		remaining = formatMetric(t, left)
		remaining = strings.Replace(remaining, " ", " more ", 1) + " to go!"
	}
	return progress, remaining
}

// DaysRemainingText renders "73 days remaining".
func DaysRemainingText(days int) string {
	return fmt.Sprintf("%d %s remaining", days, plural(int64(days), "day", "days"))
}

// LockedText renders the unlock hint for a tier-gated item.
func LockedText(tierName string) string {
	return "Unlock at " + tierName
}

// =============================================================================
// REWARDS
// =============================================================================

// RewardName is the short name shown on cards and in history:
// "$50 Gift Card", "5% Pay Boost", "$100 Ads Boost", "10% Deal Boost".
func RewardName(r loyalty.Reward) string {
	switch v := r.Value.(type) {
	case loyalty.GiftCardValue:
		return FormatMoney(v.Amount) + " Gift Card"
	case loyalty.CommissionBoostValue:
		return formatPercent(v.Percent) + " Pay Boost"
	case loyalty.SparkAdsValue:
		return FormatMoney(v.Amount) + " Ads Boost"
	case loyalty.DiscountValue:
		return formatPercent(v.Percent) + " Deal Boost"
	case loyalty.PhysicalGiftValue:
		return firstNonEmpty(v.DisplayText, r.Name, "Gift")
	case loyalty.ExperienceValue:
		return firstNonEmpty(v.DisplayText, r.Name, "Experience")
	default:
		return firstNonEmpty(r.Name, "Reward")
	}
}

// RewardDisplayText is the secondary line on a reward card.
func RewardDisplayText(r loyalty.Reward) string {
	switch v := r.Value.(type) {
	case loyalty.GiftCardValue:
		return "Amazon Gift Card"
	case loyalty.CommissionBoostValue:
		return fmt.Sprintf("Higher earnings (%dd)", v.DurationDays)
	case loyalty.SparkAdsValue:
		return "Spark Ads Promo"
	case loyalty.DiscountValue:
		return fmt.Sprintf("Follower Discount (%dd)", v.DurationMinutes/(24*60))
	case loyalty.PhysicalGiftValue:
		return firstNonEmpty(v.DisplayText, r.Description, "Gift")
	case loyalty.ExperienceValue:
		return firstNonEmpty(v.DisplayText, r.Description, "Experience")
	default:
		return firstNonEmpty(r.Description, "Reward")
	}
}

// RewardDescription is the mission card's prize line: "Win a $50 Gift Card!".
func RewardDescription(r loyalty.Reward) string {
	switch v := r.Value.(type) {
	case loyalty.GiftCardValue:
		return "Win a " + FormatMoney(v.Amount) + " Gift Card!"
	case loyalty.CommissionBoostValue:
		return fmt.Sprintf("Win +%s commission for %d days!", formatPercent(v.Percent), v.DurationDays)
	case loyalty.SparkAdsValue:
		return "Win a " + FormatMoney(v.Amount) + " Ads Boost!"
	case loyalty.DiscountValue:
		return fmt.Sprintf("Win a Follower Discount of %s for %d days!", formatPercent(v.Percent), v.DurationMinutes/(24*60))
	case loyalty.PhysicalGiftValue:
		return "Win " + withArticle(firstNonEmpty(v.DisplayText, r.Description, "a prize")) + "!"
	case loyalty.ExperienceValue:
		return "Win " + withArticle(firstNonEmpty(v.DisplayText, r.Description, "a prize")) + "!"
	default:
		return "Win a reward!"
	}
}

// PerkText is a tier card's perk line: "$50 Gift Card", "Gift Drop: Hoodie",
// "Chance to win Hoodie!".
func PerkText(r loyalty.Reward, raffle bool) string {
	if raffle {
		return "Chance to win " + RewardName(r) + "!"
	}
	if _, ok := r.Value.(loyalty.PhysicalGiftValue); ok {
		return "Gift Drop: " + RewardName(r)
	}
	return RewardName(r)
}

// CongratsMessage announces a delivered reward.
func CongratsMessage(r *loyalty.Reward) string {
	if r == nil {
		return "Your reward has been delivered!"
	}
	if v, ok := r.Value.(loyalty.GiftCardValue); ok {
		return "Your " + FormatMoney(v.Amount) + " Gift Card has been delivered!"
	}
	return "Your " + RewardName(*r) + " has been delivered!"
}

func withArticle(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "a "), strings.HasPrefix(lower, "an "):
		return text
	case strings.HasPrefix(lower, "hour"):
		return "an " + text
	case strings.HasPrefix(lower, "uni"):
		return "a " + text
	case lower != "" && strings.ContainsRune("aeiou", rune(lower[0])):
		return "an " + text
	default:
		return "a " + text
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
