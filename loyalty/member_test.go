package loyalty_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/creator-rewards/loyalty"
	"github.com/warp/creator-rewards/store/memory"
	"github.com/warp/creator-rewards/store/storetest"
)

func loadMember(t *testing.T, f *storetest.Fixture, userID loyalty.UserID) *loyalty.Member {
	t.Helper()
	m, err := loyalty.LoadMember(f.Ctx, f.Store, f.ClientID, userID, f.Now)
	require.NoError(t, err)
	return m
}

func TestLoadMember_NotFound(t *testing.T) {
	f := storetest.NewFixture(t, memory.New())

	_, err := loyalty.LoadMember(f.Ctx, f.Store, f.ClientID, "ghost", f.Now)
	assert.True(t, loyalty.IsNotFound(err))

	_, err = loyalty.LoadMember(f.Ctx, f.Store, "other", "u1", f.Now)
	assert.True(t, loyalty.IsNotFound(err))
}

func TestMember_MissionInput(t *testing.T) {
	// GIVEN: A completed mission with a claimed redemption
	f := storetest.NewFixture(t, memory.New())
	reward := f.Reward(loyalty.Reward{ID: "gc", Value: loyalty.GiftCardValue{Amount: decimal.NewFromInt(50)}})
	mission := f.Mission(loyalty.Mission{ID: "m1", Type: loyalty.MissionSalesDollars, TargetValue: decimal.NewFromInt(1000), RewardID: reward.ID})
	p := f.Progress("u1", mission, 1200)

	claimedAt := f.Now.Add(-time.Minute)
	red := loyalty.Redemption{ID: "red-1", ClientID: f.ClientID, UserID: "u1", RewardID: reward.ID, MissionID: mission.ID,
		ProgressID: p.ID, ClaimKey: loyalty.ClaimKey(reward, loyalty.Lifetime), Status: loyalty.RedemptionClaimed,
		ClaimedAt: &claimedAt, CreatedAt: claimedAt}
	require.NoError(t, f.Store.CreateRedemption(f.Ctx, red))
	p.RedemptionID = red.ID
	require.NoError(t, f.Store.SaveProgress(f.Ctx, p))

	// WHEN: The member is loaded
	m := loadMember(t, f, "u1")

	// THEN: The resolver sees the progress and redemption
	in, res := m.ResolveMission(mission)
	require.NotNil(t, in.Progress)
	require.NotNil(t, in.Redemption)
	assert.Equal(t, red.ID, in.Redemption.ID)
	assert.Equal(t, loyalty.StatusClaimed, res.Status)
	assert.Equal(t, loyalty.TierID("silver"), in.UserTier)
	assert.Nil(t, m.Redemption("missing"))
	assert.Nil(t, m.Reward("missing"))
}

func TestMember_UsageLimits(t *testing.T) {
	f := storetest.NewFixture(t, memory.New())
	reward := f.Reward(loyalty.Reward{ID: "vip-gc", Source: loyalty.SourceVIPTier, Frequency: loyalty.FrequencyRecurring, Quantity: 2,
		Value: loyalty.GiftCardValue{Amount: decimal.NewFromInt(25)}})

	m := loadMember(t, f, "u1")
	assert.Zero(t, m.UsedCount(reward))
	assert.False(t, m.LimitReached(reward))
	assert.Nil(t, m.ActiveRewardClaim(reward))

	for i, status := range []loyalty.RedemptionStatus{loyalty.RedemptionConcluded, loyalty.RedemptionRejected, loyalty.RedemptionClaimed} {
		require.NoError(t, f.Store.CreateRedemption(f.Ctx, loyalty.Redemption{
			ID: loyalty.RedemptionID("red-" + string(rune('a'+i))), ClientID: f.ClientID, UserID: "u1", RewardID: reward.ID,
			ClaimKey: loyalty.ClaimKey(reward, loyalty.Lifetime), Status: status, CreatedAt: f.Now.Add(-time.Hour),
		}))
	}

	m = loadMember(t, f, "u1")
	assert.Equal(t, 2, m.UsedCount(reward), "rejected redemptions do not count")
	assert.True(t, m.LimitReached(reward))
	active := m.ActiveRewardClaim(reward)
	require.NotNil(t, active)
	assert.Equal(t, loyalty.RedemptionID("red-c"), active.ID)
}

func TestMember_TierQualified(t *testing.T) {
	f := storetest.NewFixture(t, memory.New())
	assert.True(t, loadMember(t, f, "u1").TierQualified(), "lifetime clients always qualify")

	// GIVEN: A quarterly client and a creator whose checkpoint passed unevaluated
	client, err := f.Store.GetClient(f.Ctx, f.ClientID)
	require.NoError(t, err)
	client.CheckpointMonths = 3
	require.NoError(t, f.Store.SaveClient(f.Ctx, *client))

	achieved := f.Now.AddDate(0, -4, 0)
	due := f.Now.AddDate(0, -1, 0)
	f.User(loyalty.User{ID: "u2", Handle: "creator_two", CurrentTierID: "silver", TierAchievedAt: &achieved, NextCheckpointAt: &due})

	// THEN: The tier does not count in the new window unless it is exempt
	assert.False(t, loadMember(t, f, "u2").TierQualified())

	fresh := f.Now.AddDate(0, -1, 0)
	f.User(loyalty.User{ID: "u3", Handle: "creator_three", CurrentTierID: "silver", TierAchievedAt: &fresh})
	assert.True(t, loadMember(t, f, "u3").TierQualified())

	require.NoError(t, f.Store.SaveTier(f.Ctx, loyalty.Tier{ID: "silver", ClientID: f.ClientID, Order: 2, Name: "Silver",
		SalesThreshold: decimal.NewFromInt(1000), CheckpointExempt: true}))
	assert.True(t, loadMember(t, f, "u2").TierQualified())
}
