package claims

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/creator-rewards/loyalty"
	"github.com/warp/creator-rewards/monitoring"
	"github.com/warp/creator-rewards/notify"
)

// =============================================================================
// SCHEDULED LIFECYCLE
// =============================================================================

// LifecycleReport counts the transitions made by one RunLifecycle pass.
type LifecycleReport struct {
	BoostsActivated    int `json:"boostsActivated"`
	BoostsExpired      int `json:"boostsExpired"`
	DiscountsConcluded int `json:"discountsConcluded"`
	Failures           int `json:"failures"`
}

// RunLifecycle advances time-driven sub-states for every client:
//
//	scheduled boost due          -> activated (snapshot lifetime sales)
//	activated boost past expiry  -> expired -> pending_info (payout computed)
//	fulfilled discount past end  -> redemption concluded
//
// Each item runs in its own transaction; a failing item is logged, counted
// and skipped.
func (s *Service) RunLifecycle(ctx context.Context, now time.Time) (LifecycleReport, error) {
	var report LifecycleReport
	now = now.UTC()

	clients, err := s.Store.ListClients(ctx)
	if err != nil {
		return report, loyalty.Internal("list clients", err)
	}

	for _, c := range clients {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		scheduled, err := s.Store.ListCommissionBoosts(ctx, c.ID, loyalty.BoostScheduled)
		if err != nil {
			return report, loyalty.Internal("list scheduled boosts", err)
		}
		for _, b := range scheduled {
			if b.ScheduledActivationAt.After(now) {
				continue
			}
			s.step(ctx, &report.BoostsActivated, &report.Failures, "boost_activated", b.RedemptionID, func(tx loyalty.Store) (*notify.Notification, error) {
				return activateBoost(ctx, tx, c.ID, b.RedemptionID, now)
			})
		}

		active, err := s.Store.ListCommissionBoosts(ctx, c.ID, loyalty.BoostActivated)
		if err != nil {
			return report, loyalty.Internal("list activated boosts", err)
		}
		for _, b := range active {
			if b.ExpiresAt == nil || b.ExpiresAt.After(now) {
				continue
			}
			s.step(ctx, &report.BoostsExpired, &report.Failures, "boost_expired", b.RedemptionID, func(tx loyalty.Store) (*notify.Notification, error) {
				return expireBoost(ctx, tx, c.ID, b.RedemptionID, now)
			})
		}

		fulfilled, err := s.Store.ListRedemptionsByStatus(ctx, c.ID, loyalty.RedemptionFulfilled)
		if err != nil {
			return report, loyalty.Internal("list fulfilled redemptions", err)
		}
		for _, r := range fulfilled {
			if r.ExpirationDate == nil || r.ExpirationDate.After(now) {
				continue
			}
			s.step(ctx, &report.DiscountsConcluded, &report.Failures, "discount_concluded", r.ID, func(tx loyalty.Store) (*notify.Notification, error) {
				return concludeDiscount(ctx, tx, c.ID, r.ID, now)
			})
		}
	}

	if report != (LifecycleReport{}) {
		s.Logger.Info("[Lifecycle] pass complete",
			zap.Int("boosts_activated", report.BoostsActivated),
			zap.Int("boosts_expired", report.BoostsExpired),
			zap.Int("discounts_concluded", report.DiscountsConcluded),
			zap.Int("failures", report.Failures))
	}
	return report, nil
}

// step runs fn in a transaction. A nil notification with a nil error means
// the item no longer needed the transition.
func (s *Service) step(ctx context.Context, done, failed *int, transition string, id loyalty.RedemptionID, fn func(tx loyalty.Store) (*notify.Notification, error)) {
	var n *notify.Notification
	err := s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		var err error
		n, err = fn(tx)
		return err
	})
	if err != nil {
		*failed++
		s.Logger.Warn("[Lifecycle] transition failed",
			zap.String("transition", transition),
			zap.String("redemption_id", string(id)),
			zap.Error(err))
		return
	}
	if n == nil {
		return
	}
	*done++
	monitoring.LifecycleTransitionsTotal.WithLabelValues(transition).Inc()
	s.notify(ctx, *n)
}

func activateBoost(ctx context.Context, tx loyalty.Store, clientID loyalty.ClientID, id loyalty.RedemptionID, now time.Time) (*notify.Notification, error) {
	b, err := tx.GetCommissionBoost(ctx, clientID, id)
	if err != nil {
		return nil, loyalty.Internal("get commission boost", err)
	}
	if b == nil || b.BoostStatus != loyalty.BoostScheduled {
		return nil, nil
	}
	r, err := tx.GetRedemption(ctx, clientID, id)
	if err != nil {
		return nil, loyalty.Internal("get redemption", err)
	}
	if r == nil || !r.IsActive() {
		return nil, nil
	}
	u, err := tx.GetUser(ctx, clientID, b.UserID)
	if err != nil {
		return nil, loyalty.Internal("get user", err)
	}
	if u == nil {
		return nil, loyalty.NotFound("user", b.UserID)
	}

	expires := now.AddDate(0, 0, b.DurationDays)
	b.BoostStatus = loyalty.BoostActivated
	b.ActivatedAt = &now
	b.ExpiresAt = &expires
	b.SalesAtActivation = decimal.NewNullDecimal(u.TotalSales)
	b.UpdatedAt = now
	if err := tx.UpdateCommissionBoost(ctx, *b); err != nil {
		return nil, loyalty.Internal("update commission boost", err)
	}

	r.ActivationDate = &now
	r.ExpirationDate = &expires
	r.UpdatedAt = now
	if err := tx.UpdateRedemption(ctx, *r); err != nil {
		return nil, loyalty.Internal("update redemption", err)
	}
	return &notify.Notification{
		Kind:         notify.KindBoostActivated,
		ClientID:     clientID,
		UserID:       b.UserID,
		RedemptionID: id,
		RewardType:   loyalty.RewardCommissionBoost,
		Message:      "Your commission boost is live!",
		At:           now,
	}, nil
}

// BoostPayout is (sales at expiration - sales at activation) * rate / 100,
// floored at zero and rounded to cents.
func BoostPayout(atActivation, atExpiration, rate decimal.Decimal) decimal.Decimal {
	delta := decimal.Max(atExpiration.Sub(atActivation), decimal.Zero)
	return delta.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)
}

func expireBoost(ctx context.Context, tx loyalty.Store, clientID loyalty.ClientID, id loyalty.RedemptionID, now time.Time) (*notify.Notification, error) {
	b, err := tx.GetCommissionBoost(ctx, clientID, id)
	if err != nil {
		return nil, loyalty.Internal("get commission boost", err)
	}
	if b == nil || b.BoostStatus != loyalty.BoostActivated {
		return nil, nil
	}
	u, err := tx.GetUser(ctx, clientID, b.UserID)
	if err != nil {
		return nil, loyalty.Internal("get user", err)
	}
	if u == nil {
		return nil, loyalty.NotFound("user", b.UserID)
	}

	start := b.SalesAtActivation.Decimal
	payout := BoostPayout(start, u.TotalSales, b.Rate)

	// expired and pending_info happen in one step: the boost waits here
	// until the creator supplies payout details.
	b.BoostStatus = loyalty.BoostPendingInfo
	b.SalesAtExpiration = decimal.NewNullDecimal(u.TotalSales)
	b.FinalPayout = decimal.NewNullDecimal(payout)
	b.UpdatedAt = now
	if err := tx.UpdateCommissionBoost(ctx, *b); err != nil {
		return nil, loyalty.Internal("update commission boost", err)
	}
	return &notify.Notification{
		Kind:         notify.KindBoostExpired,
		ClientID:     clientID,
		UserID:       b.UserID,
		RedemptionID: id,
		RewardType:   loyalty.RewardCommissionBoost,
		Message:      "Your boost earned $" + payout.StringFixed(2) + ". Add your payment info to get paid.",
		At:           now,
	}, nil
}

func concludeDiscount(ctx context.Context, tx loyalty.Store, clientID loyalty.ClientID, id loyalty.RedemptionID, now time.Time) (*notify.Notification, error) {
	r, err := tx.GetRedemption(ctx, clientID, id)
	if err != nil {
		return nil, loyalty.Internal("get redemption", err)
	}
	if r == nil || r.Status != loyalty.RedemptionFulfilled || r.ExpirationDate == nil {
		return nil, nil
	}
	reward, err := rewardOf(ctx, tx, r)
	if err != nil {
		return nil, err
	}
	if reward.Type != loyalty.RewardDiscount {
		return nil, nil
	}
	if err := r.Advance(loyalty.RedemptionConcluded, now); err != nil {
		return nil, err
	}
	if err := tx.UpdateRedemption(ctx, *r); err != nil {
		return nil, loyalty.Internal("update redemption", err)
	}
	return &notify.Notification{
		Kind:         notify.KindRewardFulfilled,
		ClientID:     clientID,
		UserID:       r.UserID,
		RedemptionID: id,
		RewardType:   loyalty.RewardDiscount,
		Message:      "Your follower discount has ended.",
		At:           now,
	}, nil
}
