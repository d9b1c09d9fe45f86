/*
Package claims is the claim orchestrator: mission and VIP reward claims,
raffle entries, payout details, admin fulfillment and the scheduled
lifecycle of boosts and discounts.

PURPOSE:

	Every operation that changes a redemption runs inside one
	loyalty.TxStore.WithTx call. Preconditions are checked against a
	loyalty.Member loaded through the transaction's Store, so the read and
	the write see the same state. The store's unique indexes remain the
	authoritative guard against duplicate claims and entries.

	Notifications are sent after commit through notify.Notifier and never
	affect the outcome of the operation.

CLAIM ORDER:

	1. mission (or reward) exists for the tenant          -> NOT_FOUND
	2. resolved status is claimable                       -> NOT_ELIGIBLE
	       (already redeemed                              -> ALREADY_CLAIMED)
	3. no other non-terminal redemption for the claim key -> ALREADY_CLAIMED
	       (the key is the reward's, shared across missions)
	4. payload valid for the reward type                  -> INVALID_PAYLOAD
	5. redemption + sub-state written, progress consumed

SEE ALSO:
  - payload.go: per reward type payload rules
  - fulfillment.go: admin transitions
  - lifecycle.go: boost and discount scheduler
*/
package claims

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/creator-rewards/loyalty"
	"github.com/warp/creator-rewards/monitoring"
	"github.com/warp/creator-rewards/notify"
)

// Service runs claim operations against a transactional store.
type Service struct {
	Store    loyalty.TxStore
	Notifier notify.Notifier
	Sealer   *Sealer
	Logger   *zap.Logger

	Now   func() time.Time
	NewID func() string
	// Pick returns a uniform index in [0, n) for raffle draws.
	Pick func(n int) int
}

// NewService wires a Service with production defaults for the clock, IDs
// and raffle draws.
func NewService(store loyalty.TxStore, notifier notify.Notifier, sealer *Sealer, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Store:    store,
		Notifier: notifier,
		Sealer:   sealer,
		Logger:   logger.Named("claims"),
		Now:      time.Now,
		NewID:    uuid.NewString,
		Pick:     rand.IntN,
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID == nil {
		return uuid.NewString()
	}
	return s.NewID()
}

// observe counts an operation's outcome.
func observe(op string, err error) {
	code := ""
	if err != nil {
		code = loyalty.CodeOf(err)
	}
	monitoring.ClaimsTotal.WithLabelValues(op, monitoring.Outcome(code)).Inc()
}

func (s *Service) notify(ctx context.Context, n notify.Notification) {
	if s.Notifier == nil {
		return
	}
	if n.At.IsZero() {
		n.At = s.now()
	}
	s.Notifier.Notify(ctx, n)
}

// =============================================================================
// REQUESTS & RESULTS
// =============================================================================

// ClaimMissionRequest claims the reward of a completed mission or won raffle.
type ClaimMissionRequest struct {
	ClientID  loyalty.ClientID
	UserID    loyalty.UserID
	MissionID loyalty.MissionID
	Payload   ClaimPayload
}

// ClaimRewardRequest claims a VIP tier reward.
type ClaimRewardRequest struct {
	ClientID loyalty.ClientID
	UserID   loyalty.UserID
	RewardID loyalty.RewardID
	Payload  ClaimPayload
}

// RaffleEntryRequest enters a user into a raffle mission.
type RaffleEntryRequest struct {
	ClientID  loyalty.ClientID
	UserID    loyalty.UserID
	MissionID loyalty.MissionID
}

// ClaimResult describes a successful claim.
type ClaimResult struct {
	Success               bool                     `json:"success"`
	Message               string                   `json:"message"`
	RedemptionID          loyalty.RedemptionID     `json:"redemptionId"`
	RewardID              loyalty.RewardID         `json:"rewardId"`
	RewardType            loyalty.RewardType       `json:"rewardType"`
	Status                loyalty.RedemptionStatus `json:"status"`
	ClaimedAt             time.Time                `json:"claimedAt"`
	ScheduledActivationAt *time.Time               `json:"scheduledActivationAt,omitempty"`
	UsedCount             int                      `json:"usedCount,omitempty"`
	TotalQuantity         int                      `json:"totalQuantity,omitempty"`
	NextAction            NextAction               `json:"nextAction"`
}

// RaffleEntryResult describes a successful raffle entry.
type RaffleEntryResult struct {
	Success        bool                 `json:"success"`
	Message        string               `json:"message"`
	MissionID      loyalty.MissionID    `json:"missionId"`
	RedemptionID   loyalty.RedemptionID `json:"redemptionId"`
	ParticipatedAt time.Time            `json:"participatedAt"`
	RaffleEndDate  *time.Time           `json:"raffleEndDate,omitempty"`
}

// =============================================================================
// MISSION CLAIM
// =============================================================================

// ClaimMissionReward claims the reward of a completed mission, or promotes a
// won raffle's claimable redemption to claimed.
func (s *Service) ClaimMissionReward(ctx context.Context, req ClaimMissionRequest) (res *ClaimResult, err error) {
	defer func() { observe("claim_mission", err) }()

	var reward loyalty.Reward
	err = s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		mission, err := tx.GetMission(ctx, req.ClientID, req.MissionID)
		if err != nil {
			return loyalty.Internal("get mission", err)
		}
		if mission == nil {
			return loyalty.NotFound("mission", req.MissionID)
		}

		m, err := loyalty.LoadMember(ctx, tx, req.ClientID, req.UserID, s.now())
		if err != nil {
			return err
		}
		in, resolved := m.ResolveMission(*mission)
		if err := claimableOrError(resolved.Status, mission.ID); err != nil {
			return err
		}
		if in.Reward == nil {
			return loyalty.NotFound("reward", mission.RewardID)
		}
		reward = *in.Reward

		payload, err := validatePayload(reward, req.Payload, m.Now)
		if err != nil {
			return err
		}

		var r loyalty.Redemption
		if in.Redemption != nil {
			// Raffle winner: the entry already opened a claimable redemption.
			r = *in.Redemption
			if err := r.Advance(loyalty.RedemptionClaimed, m.Now); err != nil {
				return err
			}
			r.ScheduledActivationAt = payload.activateAt
			if err := tx.UpdateRedemption(ctx, r); err != nil {
				return loyalty.Internal("update redemption", err)
			}
		} else {
			if active := m.ActiveRewardClaim(reward); active != nil {
				return loyalty.Conflict(loyalty.CodeAlreadyClaimed, nil, "reward %s already has an active claim %s", reward.ID, active.ID)
			}
			r = s.newRedemption(m, reward, loyalty.ClaimKey(reward, m.Window), payload)
			r.MissionID = mission.ID
			if in.Progress != nil {
				r.ProgressID = in.Progress.ID
			}
			if err := tx.CreateRedemption(ctx, r); err != nil {
				return createError(err)
			}
		}

		if err := s.createSubState(ctx, tx, m, reward, r, payload); err != nil {
			return err
		}

		if in.Progress != nil {
			p := *in.Progress
			now := m.Now
			p.ConsumedAt = &now
			p.RedemptionID = r.ID
			p.UpdatedAt = now
			if err := tx.SaveProgress(ctx, p); err != nil {
				return loyalty.Internal("save progress", err)
			}
		}

		res = claimResult(r, reward, payload)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("mission reward claimed",
		zap.String("client_id", string(req.ClientID)),
		zap.String("user_id", string(req.UserID)),
		zap.String("mission_id", string(req.MissionID)),
		zap.String("redemption_id", string(res.RedemptionID)),
		zap.String("reward_type", string(reward.Type)))
	s.notify(ctx, notify.Notification{
		Kind:         notify.KindRewardClaimed,
		ClientID:     req.ClientID,
		UserID:       req.UserID,
		RedemptionID: res.RedemptionID,
		RewardType:   reward.Type,
		Message:      res.Message,
	})
	return res, nil
}

func claimableOrError(status loyalty.Status, id loyalty.MissionID) error {
	switch {
	case status.IsClaimable():
		return nil
	case status.IsRedeemed():
		return loyalty.Conflict(loyalty.CodeAlreadyClaimed, nil, "mission %s reward is already claimed", id)
	default:
		return loyalty.NotEligible(loyalty.CodeNotEligible, "mission %s is %s, not claimable", id, status)
	}
}

// =============================================================================
// VIP REWARD CLAIM
// =============================================================================

// ClaimReward claims a VIP tier reward.
func (s *Service) ClaimReward(ctx context.Context, req ClaimRewardRequest) (res *ClaimResult, err error) {
	defer func() { observe("claim_reward", err) }()

	var reward loyalty.Reward
	err = s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		got, err := tx.GetReward(ctx, req.ClientID, req.RewardID)
		if err != nil {
			return loyalty.Internal("get reward", err)
		}
		if got == nil {
			return loyalty.NotFound("reward", req.RewardID)
		}
		reward = *got
		if !reward.Enabled {
			return loyalty.NotEligible(loyalty.CodeNotEligible, "reward %s is not currently available", reward.ID)
		}
		if reward.Source != loyalty.SourceVIPTier {
			return loyalty.NotEligible(loyalty.CodeNotEligible, "reward %s is unlocked by a mission", reward.ID)
		}

		m, err := loyalty.LoadMember(ctx, tx, req.ClientID, req.UserID, s.now())
		if err != nil {
			return err
		}
		if !m.Ladder.Allows(m.User.CurrentTierID, reward.Eligibility) {
			return loyalty.NotEligible(loyalty.CodeNotEligible, "reward %s requires tier %s", reward.ID, reward.Eligibility.TierID)
		}
		if !m.TierQualified() {
			return loyalty.NotEligible(loyalty.CodeNotEligible, "tier %s was not achieved in the current checkpoint", m.User.CurrentTierID)
		}
		if active := m.ActiveRewardClaim(reward); active != nil {
			return loyalty.Conflict(loyalty.CodeAlreadyClaimed, nil, "reward %s already has an active claim %s", reward.ID, active.ID)
		}
		if m.LimitReached(reward) {
			return loyalty.NotEligible(loyalty.CodeLimitReached, "reward %s used %d of %d times", reward.ID, m.UsedCount(reward), reward.Limit())
		}

		payload, err := validatePayload(reward, req.Payload, m.Now)
		if err != nil {
			return err
		}

		r := s.newRedemption(m, reward, loyalty.ClaimKey(reward, m.Window), payload)
		if err := tx.CreateRedemption(ctx, r); err != nil {
			return createError(err)
		}
		if err := s.createSubState(ctx, tx, m, reward, r, payload); err != nil {
			return err
		}

		res = claimResult(r, reward, payload)
		res.UsedCount = m.UsedCount(reward) + 1
		res.TotalQuantity = reward.Limit()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("vip reward claimed",
		zap.String("client_id", string(req.ClientID)),
		zap.String("user_id", string(req.UserID)),
		zap.String("reward_id", string(req.RewardID)),
		zap.String("redemption_id", string(res.RedemptionID)))
	s.notify(ctx, notify.Notification{
		Kind:         notify.KindRewardClaimed,
		ClientID:     req.ClientID,
		UserID:       req.UserID,
		RedemptionID: res.RedemptionID,
		RewardType:   reward.Type,
		Message:      res.Message,
	})
	return res, nil
}

// =============================================================================
// RAFFLE ENTRY
// =============================================================================

// ParticipateInRaffle enters the user into an activated raffle. The entry and
// its claimable redemption are written together.
func (s *Service) ParticipateInRaffle(ctx context.Context, req RaffleEntryRequest) (res *RaffleEntryResult, err error) {
	defer func() { observe("raffle_entry", err) }()

	err = s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		mission, err := tx.GetMission(ctx, req.ClientID, req.MissionID)
		if err != nil {
			return loyalty.Internal("get mission", err)
		}
		if mission == nil {
			return loyalty.NotFound("mission", req.MissionID)
		}
		if !mission.IsRaffle() {
			return loyalty.Invalid(loyalty.CodeNotARaffle, "missionId", "mission %s is not a raffle", mission.ID)
		}

		m, err := loyalty.LoadMember(ctx, tx, req.ClientID, req.UserID, s.now())
		if err != nil {
			return err
		}
		in, resolved := m.ResolveMission(*mission)
		if in.Participation != nil {
			return loyalty.Conflict(loyalty.CodeAlreadyEntered, nil, "already entered raffle %s", mission.ID)
		}
		if resolved.Status != loyalty.StatusActive {
			return loyalty.NotEligible(loyalty.CodeNotEligible, "raffle %s is %s", mission.ID, resolved.Status)
		}

		now := m.Now
		r := loyalty.Redemption{
			ID:        loyalty.RedemptionID(s.newID()),
			ClientID:  req.ClientID,
			UserID:    req.UserID,
			RewardID:  mission.RewardID,
			MissionID: mission.ID,
			ClaimKey:  loyalty.RaffleClaimKey(*mission),
			Status:    loyalty.RedemptionClaimable,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateRedemption(ctx, r); err != nil {
			if errors.Is(err, loyalty.ErrDuplicateClaim) {
				return loyalty.Conflict(loyalty.CodeAlreadyEntered, err, "already entered raffle %s", mission.ID)
			}
			return loyalty.Internal("create redemption", err)
		}

		entry := loyalty.RaffleParticipation{
			ID:             s.newID(),
			ClientID:       req.ClientID,
			MissionID:      mission.ID,
			UserID:         req.UserID,
			RedemptionID:   r.ID,
			ParticipatedAt: now,
		}
		if err := tx.CreateRaffleParticipation(ctx, entry); err != nil {
			if errors.Is(err, loyalty.ErrDuplicateEntry) {
				return loyalty.Conflict(loyalty.CodeAlreadyEntered, err, "already entered raffle %s", mission.ID)
			}
			return loyalty.Internal("create raffle entry", err)
		}

		res = &RaffleEntryResult{
			Success:        true,
			Message:        "You're entered! Winners are announced when the raffle closes.",
			MissionID:      mission.ID,
			RedemptionID:   r.ID,
			ParticipatedAt: now,
			RaffleEndDate:  mission.RaffleEndDate,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("raffle entered",
		zap.String("client_id", string(req.ClientID)),
		zap.String("user_id", string(req.UserID)),
		zap.String("mission_id", string(req.MissionID)))
	s.notify(ctx, notify.Notification{
		Kind:         notify.KindRaffleEntered,
		ClientID:     req.ClientID,
		UserID:       req.UserID,
		RedemptionID: res.RedemptionID,
		Message:      res.Message,
	})
	return res, nil
}

// =============================================================================
// SHARED WRITES
// =============================================================================

func (s *Service) newRedemption(m *loyalty.Member, reward loyalty.Reward, key string, p validated) loyalty.Redemption {
	now := m.Now
	return loyalty.Redemption{
		ID:                    loyalty.RedemptionID(s.newID()),
		ClientID:              m.Client.ID,
		UserID:                m.User.ID,
		RewardID:              reward.ID,
		ClaimKey:              key,
		Status:                loyalty.RedemptionClaimed,
		ClaimedAt:             &now,
		ScheduledActivationAt: p.activateAt,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// createSubState writes the boost or physical gift row that tracks a claim
// after the redemption itself.
func (s *Service) createSubState(ctx context.Context, tx loyalty.Store, m *loyalty.Member, reward loyalty.Reward, r loyalty.Redemption, p validated) error {
	switch v := reward.Value.(type) {
	case loyalty.CommissionBoostValue:
		b := loyalty.CommissionBoost{
			RedemptionID:          r.ID,
			ClientID:              r.ClientID,
			UserID:                r.UserID,
			BoostStatus:           loyalty.BoostScheduled,
			ScheduledActivationAt: *p.activateAt,
			DurationDays:          v.DurationDays,
			Rate:                  v.Percent,
			UpdatedAt:             m.Now,
		}
		return loyalty.Internal("create commission boost", tx.CreateCommissionBoost(ctx, b))

	case loyalty.PhysicalGiftValue:
		g := loyalty.PhysicalGift{
			RedemptionID: r.ID,
			ClientID:     r.ClientID,
			RequiresSize: v.RequiresSize,
			SizeCategory: v.SizeCategory,
			SizeValue:    p.size,
			Shipping:     p.shipping,
		}
		return loyalty.Internal("create physical gift", tx.CreatePhysicalGift(ctx, g))

	default:
		return nil
	}
}

func createError(err error) error {
	if errors.Is(err, loyalty.ErrDuplicateClaim) {
		return loyalty.Conflict(loyalty.CodeAlreadyClaimed, err, "reward already has an active claim")
	}
	return loyalty.Internal("create redemption", err)
}

func claimResult(r loyalty.Redemption, reward loyalty.Reward, p validated) *ClaimResult {
	res := &ClaimResult{
		Success:               true,
		Message:               SuccessMessage(reward, p.activateAt),
		RedemptionID:          r.ID,
		RewardID:              reward.ID,
		RewardType:            reward.Type,
		Status:                r.Status,
		ScheduledActivationAt: p.activateAt,
		NextAction:            NextActionFor(reward.Type),
	}
	if r.ClaimedAt != nil {
		res.ClaimedAt = *r.ClaimedAt
	}
	return res
}
