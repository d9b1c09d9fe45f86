package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/creator-rewards/loyalty"
)

// maxTierRewards is how many perk lines a tier card shows.
const maxTierRewards = 4

// perkPriority orders perk lines on a tier card. Raffle prizes lead.
var perkPriority = map[perkKey]int{
	{loyalty.RewardPhysicalGift, true}:     1,
	{loyalty.RewardExperience, true}:       2,
	{loyalty.RewardGiftCard, true}:         3,
	{loyalty.RewardExperience, false}:      4,
	{loyalty.RewardPhysicalGift, false}:    5,
	{loyalty.RewardGiftCard, false}:        6,
	{loyalty.RewardCommissionBoost, false}: 7,
	{loyalty.RewardSparkAds, false}:        8,
	{loyalty.RewardDiscount, false}:        9,
}

type perkKey struct {
	typ    loyalty.RewardType
	raffle bool
}

// =============================================================================
// VIEWS
// =============================================================================

// TierReward is one perk line on a tier card: every reward of one type
// (and raffle flag) configured for the tier, with their uses summed.
type TierReward struct {
	Type         loyalty.RewardType `json:"type"`
	IsRaffle     bool               `json:"isRaffle"`
	DisplayText  string             `json:"displayText"`
	Count        int                `json:"count"`
	SortPriority int                `json:"sortPriority"`
}

// TierCard is one tier on the tiers page.
type TierCard struct {
	ID           loyalty.TierID  `json:"id"`
	Name         string          `json:"name"`
	Color        string          `json:"color"`
	Level        int             `json:"tierLevel"`
	MinValue     decimal.Decimal `json:"minSales"`
	MinValueText string          `json:"minSalesFormatted"`
	ValueText    string          `json:"salesDisplayText"`
	Unlocked     bool            `json:"isUnlocked"`
	Current      bool            `json:"isCurrent"`
	TotalPerks   int             `json:"totalPerksCount"`
	Rewards      []TierReward    `json:"rewards"`
}

// NextTierProgress is the user's distance to the next tier.
type NextTierProgress struct {
	NextTierName    string          `json:"nextTierName"`
	Target          decimal.Decimal `json:"nextTierTarget"`
	TargetText      string          `json:"nextTierTargetFormatted"`
	Remaining       decimal.Decimal `json:"amountRemaining"`
	RemainingText   string          `json:"amountRemainingFormatted"`
	ProgressPercent int             `json:"progressPercentage"`
	ProgressText    string          `json:"progressText"`
}

// VIPSettings are the client's tier rules.
type VIPSettings struct {
	Metric           loyalty.VIPMetric `json:"metric"`
	CheckpointMonths int               `json:"checkpointMonths"`
}

// TiersPage is the response of Tiers.
type TiersPage struct {
	CurrentTier      TierSummary     `json:"currentTier"`
	CurrentValue     decimal.Decimal `json:"currentSales"`
	CurrentValueText string          `json:"currentSalesFormatted"`
	ExpiresAt        *time.Time      `json:"expirationDate,omitempty"`
	ShowExpiration   bool            `json:"showExpiration"`

	Progress NextTierProgress `json:"progress"`
	VIP      VIPSettings      `json:"vipSystem"`
	Tiers    []TierCard       `json:"tiers"`
}

// =============================================================================
// TIERS PAGE
// =============================================================================

// Tiers returns the user's tier and the cards of every tier from the
// current one up, each with the perks configured for it.
func (s *Service) Tiers(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID) (*TiersPage, error) {
	m, err := loyalty.LoadMember(ctx, s.Store, clientID, userID, s.now())
	if err != nil {
		return nil, err
	}
	current, ok := m.Ladder.Get(m.User.CurrentTierID)
	if !ok {
		return nil, loyalty.NotFound("tier", m.User.CurrentTierID)
	}
	return buildTiersPage(m, current), nil
}

func buildTiersPage(m *loyalty.Member, current loyalty.Tier) *TiersPage {
	metric := m.Client.VIPMetric
	tp := loyalty.VIPProgress(m.Client, m.User, m.Ladder)

	page := &TiersPage{
		CurrentTier:      tierSummary(current),
		CurrentValue:     tp.Current,
		CurrentValueText: formatVIPValue(metric, tp.Current),
		VIP:              VIPSettings{Metric: metric, CheckpointMonths: m.Client.CheckpointMonths},
		Tiers:            []TierCard{},
	}
	// The entry tier never expires.
	if lowest, _ := m.Ladder.Lowest(); lowest.ID != current.ID {
		page.ShowExpiration = true
		page.ExpiresAt = m.User.NextCheckpointAt
	}

	page.Progress = NextTierProgress{
		NextTierName:    "Max Tier",
		Target:          decimal.Zero,
		Remaining:       tp.Remaining,
		ProgressPercent: wholePercent(tp.Percent),
		ProgressText:    "Max tier reached!",
	}
	if tp.NextTier != nil {
		page.Progress.NextTierName = tp.NextTier.Name
		page.Progress.Target = tp.Target
		page.Progress.ProgressText = formatVIPValue(metric, tp.Remaining) + " to go"
	}
	page.Progress.TargetText = formatVIPValue(metric, page.Progress.Target)
	page.Progress.RemainingText = formatVIPValue(metric, page.Progress.Remaining)

	for _, t := range m.Ladder {
		if t.Order < current.Order {
			continue
		}
		card := TierCard{
			ID:       t.ID,
			Name:     t.Name,
			Color:    t.Color,
			Level:    t.Order,
			MinValue: threshold(metric, t),
			Unlocked: t.Order <= current.Order,
			Current:  t.ID == current.ID,
		}
		card.MinValueText = formatVIPValue(metric, card.MinValue)
		card.ValueText = formatThresholdText(metric, card.MinValue)
		card.Rewards, card.TotalPerks = tierPerks(m, t.ID)
		page.Tiers = append(page.Tiers, card)
	}
	return page
}

// tierPerks aggregates the enabled VIP rewards and mission rewards whose
// tier rule names tier.
func tierPerks(m *loyalty.Member, tier loyalty.TierID) ([]TierReward, int) {
	type group struct {
		item   TierReward
		sample loyalty.Reward
	}
	var (
		groups = map[perkKey]*group{}
		order  []perkKey
		total  int
	)
	add := func(reward loyalty.Reward, raffle bool) {
		uses := reward.Limit()
		if uses == 0 {
			uses = 1
		}
		total += uses
		key := perkKey{reward.Type, raffle}
		if g, ok := groups[key]; ok {
			g.item.Count += uses
			return
		}
		groups[key] = &group{item: TierReward{Type: reward.Type, IsRaffle: raffle, Count: uses}, sample: reward}
		order = append(order, key)
	}

	ids := make([]loyalty.RewardID, 0, len(m.Rewards))
	for id := range m.Rewards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		reward := m.Rewards[id]
		if reward.Source == loyalty.SourceVIPTier && reward.Enabled && reward.Eligibility.TierID == tier {
			add(reward, false)
		}
	}
	for _, mission := range m.Missions {
		if !mission.Enabled || mission.Eligibility.TierID != tier {
			continue
		}
		if reward := m.Reward(mission.RewardID); reward != nil && reward.Enabled {
			add(*reward, mission.IsRaffle())
		}
	}

	items := make([]TierReward, 0, len(order))
	for _, key := range order {
		g := groups[key]
		g.item.DisplayText = PerkText(g.sample, key.raffle)
		g.item.SortPriority = perkPriorityOf(key)
		items = append(items, g.item)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].SortPriority < items[j].SortPriority })
	if len(items) > maxTierRewards {
		items = items[:maxTierRewards]
	}
	return items, total
}

func perkPriorityOf(key perkKey) int {
	if p, ok := perkPriority[key]; ok {
		return p
	}
	return len(perkPriority) + 1
}

func threshold(metric loyalty.VIPMetric, t loyalty.Tier) decimal.Decimal {
	if metric == loyalty.MetricUnits {
		return decimal.NewFromInt(t.UnitsThreshold)
	}
	return t.SalesThreshold
}

func formatVIPValue(metric loyalty.VIPMetric, v decimal.Decimal) string {
	if metric == loyalty.MetricUnits {
		return FormatCount(v) + " units"
	}
	return FormatMoney(v)
}

func formatThresholdText(metric loyalty.VIPMetric, v decimal.Decimal) string {
	if metric == loyalty.MetricUnits {
		return FormatCount(v) + "+ in units sold"
	}
	return FormatMoney(v) + "+ in sales"
}
