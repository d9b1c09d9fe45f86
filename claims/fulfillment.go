package claims

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/creator-rewards/loyalty"
	"github.com/warp/creator-rewards/notify"
)

// =============================================================================
// ADMIN FULFILLMENT
// =============================================================================

// updateRedemption loads a tenant's redemption, applies fn and writes it back
// in one transaction.
func (s *Service) updateRedemption(ctx context.Context, op string, clientID loyalty.ClientID, id loyalty.RedemptionID, fn func(tx loyalty.Store, r *loyalty.Redemption, now time.Time) error) (res *loyalty.Redemption, err error) {
	defer func() { observe(op, err) }()

	err = s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		r, err := tx.GetRedemption(ctx, clientID, id)
		if err != nil {
			return loyalty.Internal("get redemption", err)
		}
		if r == nil {
			return loyalty.NotFound("redemption", id)
		}
		if err := fn(tx, r, s.now()); err != nil {
			return err
		}
		if err := tx.UpdateRedemption(ctx, *r); err != nil {
			return loyalty.Internal("update redemption", err)
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("redemption updated",
		zap.String("op", op),
		zap.String("client_id", string(clientID)),
		zap.String("redemption_id", string(id)),
		zap.String("status", string(res.Status)))
	return res, nil
}

func rewardOf(ctx context.Context, tx loyalty.Store, r *loyalty.Redemption) (*loyalty.Reward, error) {
	reward, err := tx.GetReward(ctx, r.ClientID, r.RewardID)
	if err != nil {
		return nil, loyalty.Internal("get reward", err)
	}
	if reward == nil {
		return nil, loyalty.NotFound("reward", r.RewardID)
	}
	return reward, nil
}

// FulfillRedemption marks an instant reward as delivered.
func (s *Service) FulfillRedemption(ctx context.Context, clientID loyalty.ClientID, id loyalty.RedemptionID, notes string) (*loyalty.Redemption, error) {
	r, err := s.updateRedemption(ctx, "fulfill", clientID, id, func(_ loyalty.Store, r *loyalty.Redemption, now time.Time) error {
		if err := r.Advance(loyalty.RedemptionFulfilled, now); err != nil {
			return err
		}
		if notes != "" {
			r.FulfillmentNotes = notes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, notify.Notification{
		Kind:         notify.KindRewardFulfilled,
		ClientID:     clientID,
		UserID:       r.UserID,
		RedemptionID: r.ID,
		Message:      "Your reward has been delivered!",
	})
	return r, nil
}

// ConcludeRedemption closes a redemption for good.
func (s *Service) ConcludeRedemption(ctx context.Context, clientID loyalty.ClientID, id loyalty.RedemptionID) (*loyalty.Redemption, error) {
	return s.updateRedemption(ctx, "conclude", clientID, id, func(_ loyalty.Store, r *loyalty.Redemption, now time.Time) error {
		return r.Advance(loyalty.RedemptionConcluded, now)
	})
}

// RejectRedemption rejects a redemption before it concludes. The claim key
// becomes free again.
func (s *Service) RejectRedemption(ctx context.Context, clientID loyalty.ClientID, id loyalty.RedemptionID, reason string) (*loyalty.Redemption, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, loyalty.Invalid(loyalty.CodeInvalidRequest, "reason", "required")
	}
	return s.updateRedemption(ctx, "reject", clientID, id, func(_ loyalty.Store, r *loyalty.Redemption, now time.Time) error {
		if err := r.Advance(loyalty.RedemptionRejected, now); err != nil {
			return err
		}
		r.RejectionReason = reason
		return nil
	})
}

// ActivateDiscount records that a scheduled discount is live. It stays
// active for the reward's DurationMinutes; the lifecycle job concludes it.
func (s *Service) ActivateDiscount(ctx context.Context, clientID loyalty.ClientID, id loyalty.RedemptionID) (*loyalty.Redemption, error) {
	return s.updateRedemption(ctx, "activate_discount", clientID, id, func(tx loyalty.Store, r *loyalty.Redemption, now time.Time) error {
		reward, err := rewardOf(ctx, tx, r)
		if err != nil {
			return err
		}
		v, ok := reward.Value.(loyalty.DiscountValue)
		if !ok {
			return loyalty.NotEligible(loyalty.CodeNotEligible, "redemption %s is not a discount", r.ID)
		}
		if r.Status != loyalty.RedemptionClaimed {
			return &loyalty.TransitionError{ID: r.ID, From: r.Status, To: loyalty.RedemptionFulfilled}
		}
		if err := r.Advance(loyalty.RedemptionFulfilled, now); err != nil {
			return err
		}
		expires := now.Add(time.Duration(v.DurationMinutes) * time.Minute)
		r.ActivationDate = &now
		r.ExpirationDate = &expires
		return nil
	})
}

// MarkShipped records tracking for a physical gift. The redemption stays
// claimed until delivery.
func (s *Service) MarkShipped(ctx context.Context, clientID loyalty.ClientID, id loyalty.RedemptionID, carrier, tracking string) (*loyalty.Redemption, error) {
	if strings.TrimSpace(tracking) == "" {
		return nil, loyalty.Invalid(loyalty.CodeInvalidRequest, "trackingNumber", "required")
	}
	r, err := s.updateRedemption(ctx, "mark_shipped", clientID, id, func(tx loyalty.Store, r *loyalty.Redemption, now time.Time) error {
		if r.Status != loyalty.RedemptionClaimed {
			return loyalty.NotEligible(loyalty.CodeNotEligible, "redemption %s is %s, not claimed", r.ID, r.Status)
		}
		g, err := physicalGift(ctx, tx, r)
		if err != nil {
			return err
		}
		if g.ShippedAt != nil {
			return loyalty.Conflict(loyalty.CodeInvalidTransition, nil, "redemption %s already shipped", r.ID)
		}
		g.ShippedAt = &now
		g.Carrier = carrier
		g.TrackingNumber = tracking
		r.UpdatedAt = now
		return loyalty.Internal("update physical gift", tx.UpdatePhysicalGift(ctx, *g))
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, notify.Notification{
		Kind:         notify.KindGiftShipped,
		ClientID:     clientID,
		UserID:       r.UserID,
		RedemptionID: r.ID,
		RewardType:   loyalty.RewardPhysicalGift,
		Message:      "Your gift has shipped! Tracking: " + tracking,
	})
	return r, nil
}

// MarkDelivered fulfills a shipped physical gift.
func (s *Service) MarkDelivered(ctx context.Context, clientID loyalty.ClientID, id loyalty.RedemptionID) (*loyalty.Redemption, error) {
	return s.updateRedemption(ctx, "mark_delivered", clientID, id, func(tx loyalty.Store, r *loyalty.Redemption, now time.Time) error {
		g, err := physicalGift(ctx, tx, r)
		if err != nil {
			return err
		}
		if g.ShippedAt == nil {
			return loyalty.NotEligible(loyalty.CodeNotEligible, "redemption %s has not shipped", r.ID)
		}
		if err := r.Advance(loyalty.RedemptionFulfilled, now); err != nil {
			return err
		}
		g.DeliveredAt = &now
		return loyalty.Internal("update physical gift", tx.UpdatePhysicalGift(ctx, *g))
	})
}

func physicalGift(ctx context.Context, tx loyalty.Store, r *loyalty.Redemption) (*loyalty.PhysicalGift, error) {
	g, err := tx.GetPhysicalGift(ctx, r.ClientID, r.ID)
	if err != nil {
		return nil, loyalty.Internal("get physical gift", err)
	}
	if g == nil {
		return nil, loyalty.NotEligible(loyalty.CodeNotEligible, "redemption %s is not a physical gift", r.ID)
	}
	return g, nil
}

// MarkBoostPaid records the payout of a commission boost and concludes it.
func (s *Service) MarkBoostPaid(ctx context.Context, clientID loyalty.ClientID, id loyalty.RedemptionID) (*loyalty.Redemption, error) {
	return s.updateRedemption(ctx, "mark_boost_paid", clientID, id, func(tx loyalty.Store, r *loyalty.Redemption, now time.Time) error {
		b, err := tx.GetCommissionBoost(ctx, clientID, r.ID)
		if err != nil {
			return loyalty.Internal("get commission boost", err)
		}
		if b == nil {
			return loyalty.NotEligible(loyalty.CodeNotEligible, "redemption %s is not a commission boost", r.ID)
		}
		if b.BoostStatus != loyalty.BoostPendingPayout {
			return loyalty.NotEligible(loyalty.CodeNotEligible, "boost %s is %s, not pending_payout", r.ID, b.BoostStatus)
		}
		if err := r.Advance(loyalty.RedemptionConcluded, now); err != nil {
			return err
		}
		b.BoostStatus = loyalty.BoostPaid
		b.PaidAt = &now
		b.UpdatedAt = now
		return loyalty.Internal("update commission boost", tx.UpdateCommissionBoost(ctx, *b))
	})
}

// =============================================================================
// RAFFLE ADMIN
// =============================================================================

// ActivateRaffle opens a dormant raffle for entries. Activating an active
// raffle is a no-op.
func (s *Service) ActivateRaffle(ctx context.Context, clientID loyalty.ClientID, missionID loyalty.MissionID) (mission *loyalty.Mission, err error) {
	defer func() { observe("activate_raffle", err) }()

	err = s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		m, err := tx.GetMission(ctx, clientID, missionID)
		if err != nil {
			return loyalty.Internal("get mission", err)
		}
		if m == nil {
			return loyalty.NotFound("mission", missionID)
		}
		if !m.IsRaffle() {
			return loyalty.Invalid(loyalty.CodeNotARaffle, "missionId", "mission %s is not a raffle", missionID)
		}
		mission = m
		if m.Activated {
			return nil
		}
		m.Activated = true
		return loyalty.Internal("save mission", tx.SaveMission(ctx, *m))
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("raffle activated", zap.String("client_id", string(clientID)), zap.String("mission_id", string(missionID)))
	return mission, nil
}

// WinnerResult reports a raffle draw.
type WinnerResult struct {
	MissionID    loyalty.MissionID    `json:"missionId"`
	WinnerID     loyalty.UserID       `json:"winnerUserId"`
	RedemptionID loyalty.RedemptionID `json:"redemptionId"`
	Entries      int                  `json:"entries"`
	SelectedAt   time.Time            `json:"selectedAt"`
}

// SelectRaffleWinner draws the raffle once. winner names the winning user;
// empty draws one entry uniformly. Losing entries have their redemptions
// rejected. A second draw fails with WINNER_ALREADY_SELECTED.
func (s *Service) SelectRaffleWinner(ctx context.Context, clientID loyalty.ClientID, missionID loyalty.MissionID, winner loyalty.UserID) (res *WinnerResult, err error) {
	defer func() { observe("select_winner", err) }()

	err = s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		m, err := tx.GetMission(ctx, clientID, missionID)
		if err != nil {
			return loyalty.Internal("get mission", err)
		}
		if m == nil {
			return loyalty.NotFound("mission", missionID)
		}
		if !m.IsRaffle() {
			return loyalty.Invalid(loyalty.CodeNotARaffle, "missionId", "mission %s is not a raffle", missionID)
		}

		entries, err := tx.ListRaffleParticipations(ctx, clientID, missionID)
		if err != nil {
			return loyalty.Internal("list raffle entries", err)
		}
		if len(entries) == 0 {
			return loyalty.NotEligible(loyalty.CodeNotEligible, "raffle %s has no entries", missionID)
		}
		for _, e := range entries {
			if !e.IsPending() {
				return loyalty.Conflict(loyalty.CodeWinnerAlreadySelected, loyalty.ErrWinnerAlreadySelected, "raffle %s already has a winner", missionID)
			}
		}

		idx := -1
		if winner != "" {
			for i, e := range entries {
				if e.UserID == winner {
					idx = i
					break
				}
			}
			if idx < 0 {
				return loyalty.NotFound("raffle entry", winner)
			}
		} else {
			idx = s.pick(len(entries))
		}

		now := s.now()
		for i := range entries {
			e := entries[i]
			won := i == idx
			if err := e.Draw(won, now); err != nil {
				return loyalty.Conflict(loyalty.CodeWinnerAlreadySelected, err, "raffle %s already has a winner", missionID)
			}
			if err := tx.UpdateRaffleParticipation(ctx, e); err != nil {
				if errors.Is(err, loyalty.ErrWinnerAlreadySelected) {
					return loyalty.Conflict(loyalty.CodeWinnerAlreadySelected, err, "raffle %s already has a winner", missionID)
				}
				return loyalty.Internal("update raffle entry", err)
			}
			if won {
				continue
			}
			if err := rejectLoser(ctx, tx, e, now); err != nil {
				return err
			}
		}

		res = &WinnerResult{
			MissionID:    missionID,
			WinnerID:     entries[idx].UserID,
			RedemptionID: entries[idx].RedemptionID,
			Entries:      len(entries),
			SelectedAt:   now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("raffle winner selected",
		zap.String("client_id", string(clientID)),
		zap.String("mission_id", string(missionID)),
		zap.String("winner_id", string(res.WinnerID)),
		zap.Int("entries", res.Entries))
	s.notify(ctx, notify.Notification{
		Kind:         notify.KindRaffleWon,
		ClientID:     clientID,
		UserID:       res.WinnerID,
		RedemptionID: res.RedemptionID,
		Message:      "You won the raffle! Claim your prize now.",
	})
	return res, nil
}

func rejectLoser(ctx context.Context, tx loyalty.Store, e loyalty.RaffleParticipation, now time.Time) error {
	r, err := tx.GetRedemption(ctx, e.ClientID, e.RedemptionID)
	if err != nil {
		return loyalty.Internal("get redemption", err)
	}
	if r == nil || r.Status.IsTerminal() {
		return nil
	}
	if err := r.Advance(loyalty.RedemptionRejected, now); err != nil {
		return err
	}
	r.RejectionReason = "raffle not won"
	return loyalty.Internal("update redemption", tx.UpdateRedemption(ctx, *r))
}

func (s *Service) pick(n int) int {
	if s.Pick == nil {
		return 0
	}
	i := s.Pick(n)
	if i < 0 || i >= n {
		return 0
	}
	return i
}
