/*
eligibility.go - Tier eligibility, checkpoint membership and progress math

PURPOSE:
  Pure functions used by the status resolver, the claim orchestrator and the
  assemblers. None of them touch storage or the clock.

PREVIEW RULE:
  A mission or reward the user's tier does not qualify for is still shown,
  locked, when the user's tier is at or above PreviewFromTier. Strictly below
  the preview floor (or with no floor configured) it is hidden entirely.

SEE ALSO:
  - status.go: consumes Visibility and ComputeProgressPercent
  - checkpoint.go: window computation
*/
package loyalty

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TIER COMPARISONS
// =============================================================================

// IsTierEligible compares a user's tier order against a rule's tier order.
// An empty comparator behaves as AtOrAbove.
func IsTierEligible(userTierOrder, ruleTierOrder int, cmp TierComparator) bool {
	switch cmp {
	case AtOrBelow:
		return userTierOrder <= ruleTierOrder
	case Exact:
		return userTierOrder == ruleTierOrder
	default:
		return userTierOrder >= ruleTierOrder
	}
}

// IsWithinCheckpointWindow reports whether now is in [start, end).
// A zero end means the window never closes.
func IsWithinCheckpointWindow(now, start, end time.Time) bool {
	if now.Before(start) {
		return false
	}
	return end.IsZero() || now.Before(end)
}

// ComputeProgressPercent returns current/target clamped to [0, 1].
// A non-positive target yields 0.
func ComputeProgressPercent(current, target decimal.Decimal) float64 {
	if !target.IsPositive() || !current.IsPositive() {
		return 0
	}
	if current.GreaterThanOrEqual(target) {
		return 1
	}
	f, _ := current.Div(target).Float64()
	return f
}

// =============================================================================
// LADDER - A client's ordered tiers
// =============================================================================

// Ladder is a client's tiers sorted by Order.
type Ladder []Tier

// NewLadder sorts tiers by Order.
func NewLadder(tiers []Tier) Ladder {
	l := append(Ladder(nil), tiers...)
	sort.SliceStable(l, func(i, j int) bool { return l[i].Order < l[j].Order })
	return l
}

// Get returns the tier with the given ID.
func (l Ladder) Get(id TierID) (Tier, bool) {
	for _, t := range l {
		if t.ID == id {
			return t, true
		}
	}
	return Tier{}, false
}

// Lowest returns the entry tier.
func (l Ladder) Lowest() (Tier, bool) {
	if len(l) == 0 {
		return Tier{}, false
	}
	return l[0], true
}

// Next returns the tier ranked directly above id.
func (l Ladder) Next(id TierID) (Tier, bool) {
	for i, t := range l {
		if t.ID == id && i+1 < len(l) {
			return l[i+1], true
		}
	}
	return Tier{}, false
}

// Allows reports whether a user at userTier satisfies rule.
// Unknown tiers never qualify.
func (l Ladder) Allows(userTier TierID, rule TierRule) bool {
	if rule.TierID == "" || rule.TierID == TierAll {
		return true
	}
	u, ok := l.Get(userTier)
	if !ok {
		return false
	}
	r, ok := l.Get(rule.TierID)
	if !ok {
		return false
	}
	return IsTierEligible(u.Order, r.Order, rule.Comparator)
}

// Visibility is how an item appears to a user given tier rules.
type Visibility int

const (
	Hidden Visibility = iota
	LockedPreview
	Visible
)

// Visibility applies the tier rule and the preview floor.
func (l Ladder) Visibility(userTier TierID, rule TierRule, previewFrom TierID) Visibility {
	if l.Allows(userTier, rule) {
		return Visible
	}
	if previewFrom == "" {
		return Hidden
	}
	if l.Allows(userTier, TierRule{TierID: previewFrom, Comparator: AtOrAbove}) {
		return LockedPreview
	}
	return Hidden
}

// =============================================================================
// VIP METRIC PROGRESS
// =============================================================================

// TierProgress is a user's progress toward the next tier.
type TierProgress struct {
	Metric      VIPMetric
	CurrentTier Tier
	NextTier    *Tier
	Current     decimal.Decimal
	Target      decimal.Decimal
	Remaining   decimal.Decimal
	Percent     float64
}

// VIPProgress measures the user's checkpoint totals against the next tier's
// threshold in the client's VIP metric. At the top tier Percent is 1.
func VIPProgress(client Client, user User, ladder Ladder) TierProgress {
	current, _ := ladder.Get(user.CurrentTierID)
	tp := TierProgress{Metric: client.VIPMetric, CurrentTier: current}

	if client.VIPMetric == MetricUnits {
		tp.Current = decimal.NewFromInt(user.UnitsAggregate)
	} else {
		tp.Current = user.SalesAggregate
	}

	next, ok := ladder.Next(user.CurrentTierID)
	if !ok {
		tp.Target = tp.Current
		tp.Remaining = decimal.Zero
		tp.Percent = 1
		return tp
	}
	tp.NextTier = &next

	if client.VIPMetric == MetricUnits {
		tp.Target = decimal.NewFromInt(next.UnitsThreshold)
	} else {
		tp.Target = next.SalesThreshold
	}
	tp.Remaining = decimal.Max(tp.Target.Sub(tp.Current), decimal.Zero)
	tp.Percent = ComputeProgressPercent(tp.Current, tp.Target)
	return tp
}
