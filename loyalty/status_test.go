package loyalty_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/creator-rewards/loyalty"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var resolveNow = time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)

func baseInput() loyalty.ResolveInput {
	return loyalty.ResolveInput{
		Mission: loyalty.Mission{
			ID: "m1", Type: loyalty.MissionSalesDollars, TargetValue: dec(1000),
			Eligibility: loyalty.TierRule{TierID: loyalty.TierAll}, Enabled: true, RewardID: "r1",
		},
		Reward:   &loyalty.Reward{ID: "r1", Type: loyalty.RewardGiftCard, Enabled: true},
		UserTier: "silver",
		Ladder:   salesLadder(),
		Now:      resolveNow,
	}
}

func withProgress(in loyalty.ResolveInput, value int64) loyalty.ResolveInput {
	p := loyalty.MissionProgress{CurrentValue: dec(value), Status: loyalty.ProgressInProgress}
	if value >= in.Mission.TargetValue.IntPart() {
		p.Status = loyalty.ProgressCompleted
	}
	in.Progress = &p
	return in
}

func withRedemption(in loyalty.ResolveInput, status loyalty.RedemptionStatus) loyalty.ResolveInput {
	in.Redemption = &loyalty.Redemption{ID: "red-1", Status: status}
	return in
}

func raffleInput(activated bool) loyalty.ResolveInput {
	in := baseInput()
	in.Mission.Type = loyalty.MissionRaffle
	in.Mission.Activated = activated
	in.Mission.TargetValue = dec(0)
	return in
}

func entered(in loyalty.ResolveInput, won *bool) loyalty.ResolveInput {
	in.Participation = &loyalty.RaffleParticipation{ID: "e1", RedemptionID: "red-1", IsWinner: won}
	return in
}

// =============================================================================
// RESOLVER RULES
// =============================================================================

func TestResolve_Rules(t *testing.T) {
	ended := resolveNow.Add(-time.Hour)

	tests := []struct {
		name  string
		input func() loyalty.ResolveInput
		want  loyalty.Status
	}{
		{"disabled", func() loyalty.ResolveInput {
			in := baseInput()
			in.Mission.Enabled = false
			return in
		}, loyalty.StatusNotEligible},
		{"ineligible below preview", func() loyalty.ResolveInput {
			in := baseInput()
			in.Mission.Eligibility = loyalty.TierRule{TierID: "gold"}
			return in
		}, loyalty.StatusNotEligible},
		{"ineligible at preview", func() loyalty.ResolveInput {
			in := baseInput()
			in.Mission.Eligibility = loyalty.TierRule{TierID: "gold"}
			in.Mission.PreviewFromTier = "silver"
			return in
		}, loyalty.StatusLockedPreview},
		{"raffle dormant", func() loyalty.ResolveInput { return raffleInput(false) }, loyalty.StatusLockedPreview},
		{"raffle ended unentered", func() loyalty.ResolveInput {
			in := raffleInput(true)
			in.Mission.RaffleEndDate = &ended
			return in
		}, loyalty.StatusRaffleMissed},
		{"raffle open", func() loyalty.ResolveInput { return raffleInput(true) }, loyalty.StatusActive},
		{"raffle entered", func() loyalty.ResolveInput { return entered(raffleInput(true), nil) }, loyalty.StatusRaffleEntered},
		{"raffle won", func() loyalty.ResolveInput {
			return withRedemption(entered(raffleInput(true), ptr(true)), loyalty.RedemptionClaimable)
		}, loyalty.StatusRaffleWonClaimable},
		{"raffle won and claimed", func() loyalty.ResolveInput {
			return withRedemption(entered(raffleInput(true), ptr(true)), loyalty.RedemptionClaimed)
		}, loyalty.StatusRaffleWonClaimed},
		{"raffle lost", func() loyalty.ResolveInput { return entered(raffleInput(true), ptr(false)) }, loyalty.StatusRaffleLost},
		{"no progress", func() loyalty.ResolveInput { return baseInput() }, loyalty.StatusActive},
		{"below target", func() loyalty.ResolveInput { return withProgress(baseInput(), 400) }, loyalty.StatusActive},
		{"complete", func() loyalty.ResolveInput { return withProgress(baseInput(), 1000) }, loyalty.StatusClaimable},
		{"complete reward disabled", func() loyalty.ResolveInput {
			in := withProgress(baseInput(), 1000)
			in.Reward.Enabled = false
			return in
		}, loyalty.StatusCompleted},
		{"complete reward missing", func() loyalty.ResolveInput {
			in := withProgress(baseInput(), 1000)
			in.Reward = nil
			return in
		}, loyalty.StatusError},
		{"claimed", func() loyalty.ResolveInput {
			return withRedemption(withProgress(baseInput(), 1000), loyalty.RedemptionClaimed)
		}, loyalty.StatusClaimed},
		{"fulfilled", func() loyalty.ResolveInput {
			return withRedemption(withProgress(baseInput(), 1000), loyalty.RedemptionFulfilled)
		}, loyalty.StatusFulfilled},
		{"concluded", func() loyalty.ResolveInput {
			return withRedemption(withProgress(baseInput(), 1000), loyalty.RedemptionConcluded)
		}, loyalty.StatusConcluded},
		{"boost scheduled", func() loyalty.ResolveInput {
			in := withRedemption(withProgress(baseInput(), 1000), loyalty.RedemptionClaimed)
			in.Boost = &loyalty.CommissionBoost{BoostStatus: loyalty.BoostScheduled}
			return in
		}, loyalty.StatusScheduled},
		{"boost awaiting payout", func() loyalty.ResolveInput {
			in := withRedemption(withProgress(baseInput(), 1000), loyalty.RedemptionClaimed)
			in.Boost = &loyalty.CommissionBoost{BoostStatus: loyalty.BoostPendingPayout}
			return in
		}, loyalty.StatusExpired},
		{"discount running", func() loyalty.ResolveInput {
			in := withRedemption(withProgress(baseInput(), 1000), loyalty.RedemptionFulfilled)
			in.Reward.Type = loyalty.RewardDiscount
			in.Redemption.ExpirationDate = ptr(resolveNow.Add(time.Hour))
			return in
		}, loyalty.StatusActivated},
		{"discount elapsed", func() loyalty.ResolveInput {
			in := withRedemption(withProgress(baseInput(), 1000), loyalty.RedemptionFulfilled)
			in.Reward.Type = loyalty.RewardDiscount
			in.Redemption.ExpirationDate = &ended
			return in
		}, loyalty.StatusExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, loyalty.Resolve(tt.input()).Status)
		})
	}
}

func TestResolve_HistorySkipsTierGate(t *testing.T) {
	// GIVEN: A concluded mission the creator no longer qualifies for
	in := withRedemption(withProgress(baseInput(), 1000), loyalty.RedemptionConcluded)
	in.Mission.Eligibility = loyalty.TierRule{TierID: "gold", Comparator: loyalty.Exact}

	// WHEN/THEN: The active view hides it but history keeps it
	assert.Equal(t, loyalty.StatusNotEligible, loyalty.Resolve(in).Status)
	in.History = true
	assert.Equal(t, loyalty.StatusConcluded, loyalty.Resolve(in).Status)
}

func TestResolve_IsPure(t *testing.T) {
	in := withProgress(baseInput(), 400)

	first := loyalty.Resolve(in)
	second := loyalty.Resolve(in)

	assert.Equal(t, first, second)
	assert.Equal(t, 0.4, first.Progress)
}

// =============================================================================
// PRIORITY
// =============================================================================

func TestScore_Order(t *testing.T) {
	assert.Less(t, loyalty.Score(loyalty.StatusClaimable, 0), loyalty.Score(loyalty.StatusActive, 0))
	assert.Less(t, loyalty.Score(loyalty.StatusActive, 0.1), loyalty.Score(loyalty.StatusActive, 0.9))
	assert.Less(t, loyalty.Score(loyalty.StatusActive, 1), loyalty.Score(loyalty.StatusClaimed, 0))
	assert.Less(t, loyalty.Score(loyalty.StatusClaimed, 0), loyalty.Score(loyalty.StatusRaffleEntered, 0))
	assert.Less(t, loyalty.Score(loyalty.StatusRaffleEntered, 0), loyalty.Score(loyalty.StatusLockedPreview, 0))
	assert.Less(t, loyalty.Score(loyalty.StatusLockedPreview, 0), loyalty.Score(loyalty.StatusExpired, 0))
}

func TestSortRankedAndFeatured(t *testing.T) {
	rank := func(id loyalty.MissionID, order int, in loyalty.ResolveInput) loyalty.Ranked {
		in.Mission.ID = id
		in.Mission.DisplayOrder = order
		return loyalty.Ranked{Mission: in.Mission, Resolution: loyalty.Resolve(in)}
	}
	items := []loyalty.Ranked{
		rank("locked", 0, raffleInput(false)),
		rank("far", 0, withProgress(baseInput(), 100)),
		rank("close", 0, withProgress(baseInput(), 900)),
		rank("tie-b", 2, withProgress(baseInput(), 500)),
		rank("tie-a", 1, withProgress(baseInput(), 500)),
	}

	loyalty.SortRanked(items)

	var ids []loyalty.MissionID
	for _, it := range items {
		ids = append(ids, it.Mission.ID)
	}
	assert.Equal(t, []loyalty.MissionID{"close", "tie-a", "tie-b", "far", "locked"}, ids)

	featured, ok := loyalty.SelectFeatured(items)
	require.True(t, ok)
	assert.Equal(t, loyalty.MissionID("close"), featured.Mission.ID)

	_, ok = loyalty.SelectFeatured(items[4:])
	assert.False(t, ok, "locked previews are never featured")
}
