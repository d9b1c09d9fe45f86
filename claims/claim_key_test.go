package claims_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/creator-rewards/claims"
	"github.com/warp/creator-rewards/loyalty"
	"github.com/warp/creator-rewards/store/sqlite"
	"github.com/warp/creator-rewards/store/storetest"
)

// quarterly switches the fixture client to 3-month checkpoints and enrolls
// u2 in a window that started a month ago.
func quarterly(t *testing.T, f *storetest.Fixture) loyalty.Window {
	t.Helper()
	client, err := f.Store.GetClient(f.Ctx, f.ClientID)
	require.NoError(t, err)
	client.CheckpointMonths = 3
	require.NoError(t, f.Store.SaveClient(f.Ctx, *client))

	achieved := f.Now.AddDate(0, -1, 0)
	next := achieved.AddDate(0, 3, 0)
	f.User(loyalty.User{ID: "u2", Handle: "creator_two", CurrentTierID: "silver", TierAchievedAt: &achieved, NextCheckpointAt: &next})
	return loyalty.Window{Start: achieved, End: next}
}

func windowProgress(t *testing.T, f *storetest.Fixture, mission loyalty.Mission, w loyalty.Window, value int64) {
	t.Helper()
	p := loyalty.MissionProgress{
		ID:              loyalty.ProgressID("p-" + string(mission.ID) + "-" + w.Start.Format("200601")),
		ClientID:        f.ClientID,
		MissionID:       mission.ID,
		UserID:          "u2",
		CurrentValue:    decimal.NewFromInt(value),
		Status:          loyalty.ProgressInProgress,
		CheckpointStart: w.Start,
		CheckpointEnd:   w.End,
		UpdatedAt:       f.Now,
	}
	if p.CurrentValue.GreaterThanOrEqual(mission.TargetValue) {
		at := f.Now
		p.Status = loyalty.ProgressCompleted
		p.CompletedAt = &at
	}
	require.NoError(t, f.Store.SaveProgress(f.Ctx, p))
}

func activeOf(reds []loyalty.Redemption, rewardID loyalty.RewardID) int {
	n := 0
	for _, r := range reds {
		if r.RewardID == rewardID && r.IsActive() {
			n++
		}
	}
	return n
}

// =============================================================================
// REWARD UNIQUENESS ACROSS MISSIONS
// =============================================================================

func TestClaimMissionReward_SharedOneTimeReward_HeldOnce(t *testing.T) {
	// GIVEN: Two completed missions unlocking the same one_time gift card
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	svc, f, _ := newTestService(t, store)
	ctx := context.Background()
	f.Reward(loyalty.Reward{ID: "gc50", Value: giftCard(50)})
	f.Progress("u1", salesMission(f, "m1", "gc50", 500), 600)
	f.Progress("u1", salesMission(f, "m2", "gc50", 500), 600)

	// WHEN: Both are claimed
	first, err := svc.ClaimMissionReward(ctx, claims.ClaimMissionRequest{ClientID: f.ClientID, UserID: "u1", MissionID: "m1"})
	require.NoError(t, err)
	_, err = svc.ClaimMissionReward(ctx, claims.ClaimMissionRequest{ClientID: f.ClientID, UserID: "u1", MissionID: "m2"})

	// THEN: The second claim is ALREADY_CLAIMED and one redemption holds the reward
	require.Error(t, err)
	assert.Equal(t, loyalty.CodeAlreadyClaimed, loyalty.CodeOf(err))
	assert.Equal(t, 1, activeOf(f.Redemptions("u1"), "gc50"))

	// Once the first claim settles the reward is free again.
	_, err = svc.ConcludeRedemption(ctx, f.ClientID, first.RedemptionID)
	require.NoError(t, err)
	_, err = svc.ClaimMissionReward(ctx, claims.ClaimMissionRequest{ClientID: f.ClientID, UserID: "u1", MissionID: "m2"})
	require.NoError(t, err)
	assert.Equal(t, 1, activeOf(f.Redemptions("u1"), "gc50"))
}

// =============================================================================
// CHECKPOINT ROLLOVER
// =============================================================================

func TestClaimMissionReward_NextWindow_OneTimeStillHeld(t *testing.T) {
	// GIVEN: u2 claimed m1 in the first quarterly window
	svc, f, _ := newMemoryService(t)
	ctx := context.Background()
	w1 := quarterly(t, f)
	f.Reward(loyalty.Reward{ID: "gc50", Value: giftCard(50)})
	m := salesMission(f, "m1", "gc50", 500)
	windowProgress(t, f, m, w1, 600)

	first, err := svc.ClaimMissionReward(ctx, claims.ClaimMissionRequest{ClientID: f.ClientID, UserID: "u2", MissionID: "m1"})
	require.NoError(t, err)

	// WHEN: The window rolls and m1 completes again while the claim is open
	f.Now = f.Now.AddDate(0, 3, 0)
	w2 := loyalty.Window{Start: w1.Start.AddDate(0, 3, 0), End: w1.Start.AddDate(0, 6, 0)}
	windowProgress(t, f, m, w2, 700)

	_, err = svc.ClaimMissionReward(ctx, claims.ClaimMissionRequest{ClientID: f.ClientID, UserID: "u2", MissionID: "m1"})

	// THEN: The one_time reward is still held by the first claim
	require.Error(t, err)
	assert.Equal(t, loyalty.CodeAlreadyClaimed, loyalty.CodeOf(err))
	assert.Equal(t, 1, activeOf(f.Redemptions("u2"), "gc50"))

	_, err = svc.ConcludeRedemption(ctx, f.ClientID, first.RedemptionID)
	require.NoError(t, err)
	_, err = svc.ClaimMissionReward(ctx, claims.ClaimMissionRequest{ClientID: f.ClientID, UserID: "u2", MissionID: "m1"})
	assert.NoError(t, err)
}

func TestClaimMissionReward_NextWindow_RecurringClaimsAgain(t *testing.T) {
	// GIVEN: A recurring reward claimed through m1 in the first window
	svc, f, _ := newMemoryService(t)
	ctx := context.Background()
	w1 := quarterly(t, f)
	f.Reward(loyalty.Reward{ID: "gc-q", Value: giftCard(25), Frequency: loyalty.FrequencyRecurring, Quantity: 1})
	m := salesMission(f, "m1", "gc-q", 500)
	windowProgress(t, f, m, w1, 600)

	_, err := svc.ClaimMissionReward(ctx, claims.ClaimMissionRequest{ClientID: f.ClientID, UserID: "u2", MissionID: "m1"})
	require.NoError(t, err)

	// WHEN: m1 completes in the next window
	f.Now = f.Now.AddDate(0, 3, 0)
	w2 := loyalty.Window{Start: w1.Start.AddDate(0, 3, 0), End: w1.Start.AddDate(0, 6, 0)}
	windowProgress(t, f, m, w2, 600)

	res, err := svc.ClaimMissionReward(ctx, claims.ClaimMissionRequest{ClientID: f.ClientID, UserID: "u2", MissionID: "m1"})

	// THEN: Each window holds its own claim
	require.NoError(t, err)
	assert.Equal(t, 2, activeOf(f.Redemptions("u2"), "gc-q"))

	p, err := f.Store.GetProgress(ctx, f.ClientID, "u2", "m1", w2.Start)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, res.RedemptionID, p.RedemptionID)
	assert.WithinDuration(t, f.Now, *p.ConsumedAt, time.Second)
}
