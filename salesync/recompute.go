package salesync

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/creator-rewards/loyalty"
)

// =============================================================================
// TOTALS
// =============================================================================

// totals are a creator's metrics summed over one window.
type totals struct {
	sales  decimal.Decimal
	units  int64
	views  int64
	likes  int64
	videos int64
}

func sum(videos []loyalty.Video, adjustments []loyalty.SalesAdjustment, w loyalty.Window) totals {
	t := totals{sales: decimal.Zero}
	for _, v := range videos {
		if !w.Contains(v.PostDate) {
			continue
		}
		t.sales = t.sales.Add(v.GMV)
		t.units += v.UnitsSold
		t.views += v.Views
		t.likes += v.Likes
		t.videos++
	}
	for _, a := range adjustments {
		if !w.Contains(a.CreatedAt) {
			continue
		}
		t.sales = t.sales.Add(a.Amount)
		t.units += a.Units
	}
	return t
}

// metric returns the value t contributes in the tenant's VIP metric.
func (t totals) metric(m loyalty.VIPMetric) decimal.Decimal {
	if m == loyalty.MetricUnits {
		return decimal.NewFromInt(t.units)
	}
	return t.sales
}

// missionValue is the progress value of a mission type.
func (t totals) missionValue(mt loyalty.MissionType) decimal.Decimal {
	switch mt {
	case loyalty.MissionSalesDollars:
		return t.sales
	case loyalty.MissionSalesUnits:
		return decimal.NewFromInt(t.units)
	case loyalty.MissionViews:
		return decimal.NewFromInt(t.views)
	case loyalty.MissionLikes:
		return decimal.NewFromInt(t.likes)
	case loyalty.MissionVideos:
		return decimal.NewFromInt(t.videos)
	default:
		return decimal.Zero
	}
}

// =============================================================================
// RECOMPUTE
// =============================================================================

// recompute refreshes user's totals, tier and mission progress from the
// videos and adjustments stored so far, and saves the user.
func (s *Service) recompute(ctx context.Context, tx loyalty.Store, client loyalty.Client, user *loyalty.User, now time.Time) error {
	videos, err := tx.ListVideos(ctx, client.ID, user.ID)
	if err != nil {
		return loyalty.Internal("list videos", err)
	}
	adjustments, err := tx.ListSalesAdjustments(ctx, client.ID, user.ID)
	if err != nil {
		return loyalty.Internal("list sales adjustments", err)
	}
	tiers, err := tx.ListTiers(ctx, client.ID)
	if err != nil {
		return loyalty.Internal("list tiers", err)
	}
	ladder := loyalty.NewLadder(tiers)

	lifetime := sum(videos, adjustments, loyalty.Lifetime)
	user.TotalSales = lifetime.sales
	user.TotalUnits = lifetime.units

	s.evaluateCheckpoint(client, user, ladder, videos, adjustments, now)

	window := loyalty.CheckpointWindow(client, *user, now)
	current := sum(videos, adjustments, window)
	s.promote(client, user, ladder, current.metric(client.VIPMetric), now)

	// A promotion opens a new window.
	window = loyalty.CheckpointWindow(client, *user, now)
	current = sum(videos, adjustments, window)
	user.SalesAggregate = current.sales
	user.UnitsAggregate = current.units

	if err := tx.SaveUser(ctx, *user); err != nil {
		return loyalty.Internal("save user", err)
	}
	return s.updateProgress(ctx, tx, client, *user, ladder, window, current, now)
}

// qualifyingTier is the highest tier whose threshold value meets.
func qualifyingTier(ladder loyalty.Ladder, metric loyalty.VIPMetric, value decimal.Decimal) (loyalty.Tier, bool) {
	var (
		best  loyalty.Tier
		found bool
	)
	for _, t := range ladder {
		threshold := t.SalesThreshold
		if metric == loyalty.MetricUnits {
			threshold = decimal.NewFromInt(t.UnitsThreshold)
		}
		if value.GreaterThanOrEqual(threshold) {
			best, found = t, true
		}
	}
	return best, found
}

// evaluateCheckpoint runs the tier maintenance check once NextCheckpointAt
// has passed: the creator keeps, gains or loses tiers based on the window
// that just closed, and a new window starts now. Exempt tiers never demote.
func (s *Service) evaluateCheckpoint(client loyalty.Client, user *loyalty.User, ladder loyalty.Ladder, videos []loyalty.Video, adjustments []loyalty.SalesAdjustment, now time.Time) {
	if client.CheckpointMonths <= 0 || user.NextCheckpointAt == nil || now.Before(*user.NextCheckpointAt) {
		return
	}

	start := user.CreatedAt
	if user.TierAchievedAt != nil {
		start = *user.TierAchievedAt
	}
	closed := loyalty.Window{Start: start, End: *user.NextCheckpointAt}
	value := sum(videos, adjustments, closed).metric(client.VIPMetric)

	from := user.CurrentTierID
	target, ok := qualifyingTier(ladder, client.VIPMetric, value)
	if !ok {
		target, _ = ladder.Lowest()
	}
	if cur, ok := ladder.Get(from); ok && cur.CheckpointExempt && target.Order < cur.Order {
		target = cur
	}

	next := now.AddDate(0, client.CheckpointMonths, 0)
	user.CurrentTierID = target.ID
	user.TierAchievedAt = &now
	user.NextCheckpointAt = &next

	s.Logger.Info("checkpoint evaluated",
		zap.String("client_id", string(client.ID)),
		zap.String("user_id", string(user.ID)),
		zap.String("from_tier", string(from)),
		zap.String("to_tier", string(target.ID)),
		zap.String("value", value.String()))
}

// promote moves the creator up when value reaches a higher tier's threshold.
// Demotion only happens at checkpoint evaluation.
func (s *Service) promote(client loyalty.Client, user *loyalty.User, ladder loyalty.Ladder, value decimal.Decimal, now time.Time) {
	target, ok := qualifyingTier(ladder, client.VIPMetric, value)
	if !ok {
		return
	}
	cur, ok := ladder.Get(user.CurrentTierID)
	if ok && target.Order <= cur.Order {
		return
	}

	from := user.CurrentTierID
	user.CurrentTierID = target.ID
	user.TierAchievedAt = &now
	if client.CheckpointMonths > 0 {
		next := now.AddDate(0, client.CheckpointMonths, 0)
		user.NextCheckpointAt = &next
	}
	s.Logger.Info("creator promoted",
		zap.String("client_id", string(client.ID)),
		zap.String("user_id", string(user.ID)),
		zap.String("from_tier", string(from)),
		zap.String("to_tier", string(target.ID)))
}

// updateProgress writes the window's progress row for every enabled,
// tier-eligible, non-raffle mission.
func (s *Service) updateProgress(ctx context.Context, tx loyalty.Store, client loyalty.Client, user loyalty.User, ladder loyalty.Ladder, window loyalty.Window, t totals, now time.Time) error {
	missions, err := tx.ListMissions(ctx, client.ID)
	if err != nil {
		return loyalty.Internal("list missions", err)
	}

	for _, m := range missions {
		if !m.Enabled || m.IsRaffle() || !ladder.Allows(user.CurrentTierID, m.Eligibility) {
			continue
		}
		p, err := tx.GetProgress(ctx, client.ID, user.ID, m.ID, window.Start)
		if err != nil {
			return loyalty.Internal("get progress", err)
		}
		if p == nil {
			p = &loyalty.MissionProgress{
				ID:              loyalty.ProgressID(s.newID()),
				ClientID:        client.ID,
				MissionID:       m.ID,
				UserID:          user.ID,
				Status:          loyalty.ProgressInProgress,
				CheckpointStart: window.Start,
				CheckpointEnd:   window.End,
			}
		}

		next := ApplyProgress(*p, t.missionValue(m.Type), m.TargetValue, now)
		if err := tx.SaveProgress(ctx, next); err != nil {
			return loyalty.Internal("save progress", err)
		}
	}
	return nil
}

// ApplyProgress sets p's value and completes it when value reaches target.
// A completed row never reverts, whatever value reports.
func ApplyProgress(p loyalty.MissionProgress, value, target decimal.Decimal, now time.Time) loyalty.MissionProgress {
	p.CurrentValue = value
	p.UpdatedAt = now
	if p.IsCompleted() {
		return p
	}
	if target.IsPositive() && value.GreaterThanOrEqual(target) {
		p.Status = loyalty.ProgressCompleted
		p.CompletedAt = &now
	}
	return p
}
