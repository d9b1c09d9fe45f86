/*
status.go - Mission status resolver

PURPOSE:
  Turns one mission plus this user's records into exactly one Status and a
  sort Score. The rules are an ordered decision list; the first match wins.

RULES:
   1. disabled, or tier-ineligible below the preview floor -> not_eligible
   2. tier-ineligible at/above preview floor               -> locked_preview
   3. raffle, not activated                                -> locked_preview
   4. raffle, ended, never entered                         -> raffle_missed
   5. raffle, activated, not entered                       -> active
   6. raffle, entered, winner not drawn                    -> raffle_entered
   7. raffle, won                                          -> raffle_won_claimable, then
                                                              mirrors the redemption
   8. raffle, lost                                         -> raffle_lost
   9. progress below target                                -> active
  10. progress complete, no redemption                     -> claimable
                                                              (completed if reward disabled)
  11. redemption exists                                    -> mirrors redemption

  The "ended, never entered" check runs before "activated, not entered";
  otherwise a closed raffle would stay enterable forever.

  With History set, rules 1-2 are skipped so terminal records stay visible
  after a tier change.

PRIORITY:
  Score is derived, never stored. Actionable statuses score lowest; active
  non-raffle missions add the remaining fraction so the mission closest to
  completion sorts first. Ties are broken by DisplayOrder, then ID.

SEE ALSO:
  - eligibility.go: Ladder.Visibility, ComputeProgressPercent
  - catalog/missions.go: assembles resolved missions into listings
*/
package loyalty

import (
	"sort"
	"time"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the resolved state of one mission for one user.
type Status string

const (
	StatusNotEligible        Status = "not_eligible"
	StatusLockedPreview      Status = "locked_preview"
	StatusActive             Status = "active"
	StatusCompleted          Status = "completed"
	StatusClaimable          Status = "claimable"
	StatusClaimed            Status = "claimed"
	StatusScheduled          Status = "scheduled"
	StatusActivated          Status = "activated"
	StatusFulfilled          Status = "fulfilled"
	StatusConcluded          Status = "concluded"
	StatusRaffleEntered      Status = "raffle_entered"
	StatusRaffleWonClaimable Status = "raffle_won_claimable"
	StatusRaffleWonClaimed   Status = "raffle_won_claimed"
	StatusRaffleLost         Status = "raffle_lost"
	StatusRaffleMissed       Status = "raffle_missed"
	StatusExpired            Status = "expired"
	StatusError              Status = "error"
)

// IsClaimable reports whether a claim may be submitted.
func (s Status) IsClaimable() bool {
	return s == StatusClaimable || s == StatusRaffleWonClaimable
}

// IsRedeemed reports whether a redemption for the mission is already underway.
func (s Status) IsRedeemed() bool {
	switch s {
	case StatusClaimed, StatusScheduled, StatusActivated, StatusFulfilled, StatusRaffleWonClaimed:
		return true
	}
	return false
}

// IsHistory reports whether the status belongs in history, not the active list.
func (s Status) IsHistory() bool {
	return s == StatusConcluded || s == StatusRaffleLost || s == StatusRaffleMissed
}

// IsFeaturable reports whether the mission may be the featured mission.
func (s Status) IsFeaturable() bool {
	return s == StatusActive || s.IsClaimable()
}

// =============================================================================
// RESOLVER
// =============================================================================

// ResolveInput is everything the resolver needs about one mission.
type ResolveInput struct {
	Mission       Mission
	Reward        *Reward
	Progress      *MissionProgress
	Redemption    *Redemption
	Boost         *CommissionBoost
	Participation *RaffleParticipation
	UserTier      TierID
	Ladder        Ladder
	Now           time.Time
	History       bool
}

// Resolution is the resolver's output.
type Resolution struct {
	Status   Status
	Score    float64
	Progress float64
}

// Resolve applies the ordered rules. It is a pure function of its input.
func Resolve(in ResolveInput) Resolution {
	status, fraction := resolveStatus(in)
	remaining := 1 - fraction
	if in.Mission.IsRaffle() {
		// Entering a raffle is one click from done.
		remaining = 0
	}
	return Resolution{Status: status, Score: Score(status, remaining), Progress: fraction}
}

func resolveStatus(in ResolveInput) (Status, float64) {
	m := in.Mission

	fraction := 0.0
	if in.Progress != nil {
		fraction = ComputeProgressPercent(in.Progress.CurrentValue, m.TargetValue)
	}

	if !in.History {
		if !m.Enabled {
			return StatusNotEligible, fraction
		}
		switch in.Ladder.Visibility(in.UserTier, m.Eligibility, m.PreviewFromTier) {
		case Hidden:
			return StatusNotEligible, fraction
		case LockedPreview:
			return StatusLockedPreview, fraction
		}
	}

	if m.IsRaffle() {
		return resolveRaffle(in), 0
	}

	if in.Redemption != nil {
		return mirrorRedemption(in.Redemption, in.Boost, in.Reward, in.Now, false), fraction
	}
	if in.Progress == nil || !in.Progress.IsCompleted() {
		return StatusActive, fraction
	}
	if in.Reward == nil {
		return StatusError, fraction
	}
	if !in.Reward.Enabled {
		return StatusCompleted, fraction
	}
	return StatusClaimable, fraction
}

func resolveRaffle(in ResolveInput) Status {
	m := in.Mission
	p := in.Participation

	if !m.Activated && !(in.History && p != nil) {
		return StatusLockedPreview
	}
	if p == nil {
		if m.RaffleEndDate != nil && !in.Now.Before(*m.RaffleEndDate) {
			return StatusRaffleMissed
		}
		return StatusActive
	}
	if p.IsPending() {
		return StatusRaffleEntered
	}
	if !*p.IsWinner {
		return StatusRaffleLost
	}
	if in.Redemption == nil {
		return StatusError
	}
	return mirrorRedemption(in.Redemption, in.Boost, in.Reward, in.Now, true)
}

// mirrorRedemption maps a redemption (and its boost sub-state) onto a status.
func mirrorRedemption(r *Redemption, boost *CommissionBoost, reward *Reward, now time.Time, raffle bool) Status {
	switch r.Status {
	case RedemptionClaimable:
		if raffle {
			return StatusRaffleWonClaimable
		}
		return StatusClaimable

	case RedemptionClaimed:
		if boost != nil {
			switch boost.BoostStatus {
			case BoostScheduled:
				return StatusScheduled
			case BoostActivated:
				return StatusActivated
			default:
				return StatusExpired
			}
		}
		if reward != nil && reward.Type == RewardDiscount {
			return StatusScheduled
		}
		if raffle {
			return StatusRaffleWonClaimed
		}
		return StatusClaimed

	case RedemptionFulfilled:
		if reward != nil && reward.Type == RewardDiscount && r.ExpirationDate != nil {
			if now.Before(*r.ExpirationDate) {
				return StatusActivated
			}
			return StatusExpired
		}
		return StatusFulfilled

	case RedemptionConcluded:
		return StatusConcluded

	case RedemptionRejected:
		return StatusExpired

	default:
		return StatusError
	}
}

// =============================================================================
// PRIORITY
// =============================================================================

// Score ranks a status for display. Lower sorts first. remaining is the
// fraction of the target still outstanding, in [0,1].
func Score(status Status, remaining float64) float64 {
	switch status {
	case StatusClaimable, StatusRaffleWonClaimable:
		return 0
	case StatusActive:
		return 1 + remaining*0.999
	case StatusScheduled, StatusActivated, StatusClaimed, StatusRaffleWonClaimed, StatusFulfilled:
		return 2
	case StatusRaffleEntered:
		return 3
	case StatusLockedPreview:
		return 4
	case StatusCompleted, StatusExpired, StatusError:
		return 5
	default:
		return 6
	}
}

// Ranked pairs a mission with its resolution for sorting.
type Ranked struct {
	Mission    Mission
	Resolution Resolution
}

// SortRanked orders missions by Score, then DisplayOrder, then ID.
func SortRanked(items []Ranked) {
	sort.SliceStable(items, func(i, j int) bool {
		return lessRanked(items[i], items[j])
	})
}

func lessRanked(a, b Ranked) bool {
	if a.Resolution.Score != b.Resolution.Score {
		return a.Resolution.Score < b.Resolution.Score
	}
	if a.Mission.DisplayOrder != b.Mission.DisplayOrder {
		return a.Mission.DisplayOrder < b.Mission.DisplayOrder
	}
	return a.Mission.ID < b.Mission.ID
}

// SelectFeatured returns the featured mission among active and claimable
// missions, or false when none qualify.
func SelectFeatured(items []Ranked) (Ranked, bool) {
	var (
		best  Ranked
		found bool
	)
	for _, it := range items {
		if !it.Resolution.Status.IsFeaturable() {
			continue
		}
		if !found || lessRanked(it, best) {
			best, found = it, true
		}
	}
	return best, found
}
