package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/creator-rewards/catalog"
	"github.com/warp/creator-rewards/claims"
	"github.com/warp/creator-rewards/loyalty"
	"github.com/warp/creator-rewards/notify"
	"github.com/warp/creator-rewards/store/memory"
	"github.com/warp/creator-rewards/store/storetest"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testEnv struct {
	*storetest.Fixture
	catalog *catalog.Service
	claims  *claims.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	f := storetest.NewFixture(t, store)

	sealer, err := claims.NewSealer("")
	require.NoError(t, err)

	cat := catalog.NewService(store, zap.NewNop())
	cat.Now = f.Clock()
	cl := claims.NewService(store, notify.Nop{}, sealer, zap.NewNop())
	cl.Now = f.Clock()
	return &testEnv{Fixture: f, catalog: cat, claims: cl}
}

func (e *testEnv) giftCard(id loyalty.RewardID, amount int64) loyalty.Reward {
	return e.Reward(loyalty.Reward{ID: id, Value: loyalty.GiftCardValue{Amount: decimal.NewFromInt(amount)}})
}

func (e *testEnv) sales(id loyalty.MissionID, rewardID loyalty.RewardID, target int64) loyalty.Mission {
	return e.Mission(loyalty.Mission{ID: id, Type: loyalty.MissionSalesDollars, Title: "Sales goal",
		TargetValue: decimal.NewFromInt(target), RewardID: rewardID})
}

func (e *testEnv) claimMission(id loyalty.MissionID) *claims.ClaimResult {
	e.T.Helper()
	res, err := e.claims.ClaimMissionReward(e.Ctx, claims.ClaimMissionRequest{ClientID: e.ClientID, UserID: "u1", MissionID: id})
	require.NoError(e.T, err)
	return res
}

func viewOf(t *testing.T, list *catalog.MissionList, id loyalty.MissionID) catalog.MissionView {
	t.Helper()
	for _, v := range list.Missions {
		if v.ID == id {
			return v
		}
	}
	t.Fatalf("mission %s not listed", id)
	return catalog.MissionView{}
}

// =============================================================================
// AVAILABLE MISSIONS
// =============================================================================

func TestListAvailableMissions_ActiveSalesMission(t *testing.T) {
	// GIVEN: A $5,000 sales mission with $4,200 of progress
	// WHEN: Missions are listed
	// THEN: It is active at 84% with $800 needed
	e := newTestEnv(t)
	e.giftCard("gc50", 50)
	m := e.sales("m1", "gc50", 5000)
	e.Progress("u1", m, 4200)

	list, err := e.catalog.ListAvailableMissions(context.Background(), e.ClientID, "u1")
	require.NoError(t, err)
	require.Len(t, list.Missions, 1)

	v := list.Missions[0]
	assert.Equal(t, loyalty.StatusActive, v.Status)
	assert.Equal(t, 84, v.ProgressPercent)
	assert.True(t, v.AmountNeeded.Equal(decimal.NewFromInt(800)), "amount needed: %s", v.AmountNeeded)
	assert.Equal(t, "$4,200 / $5,000", v.ProgressText)
	assert.Equal(t, "$800 more to go!", v.RemainingText)
	assert.Equal(t, "Sales Sprint", v.DisplayName)
	assert.Equal(t, "Win a $50 Gift Card!", v.RewardDescription)
	assert.Nil(t, v.DaysRemaining, "lifetime clients have no checkpoint countdown")
	assert.Equal(t, loyalty.MissionID("m1"), list.FeaturedMissionID)
	assert.False(t, list.ShowCongratsModal)
}

func TestListAvailableMissions_OrderingAndVisibility(t *testing.T) {
	e := newTestEnv(t)
	e.giftCard("gc50", 50)

	e.Progress("u1", e.sales("far", "gc50", 1000), 100)
	e.Progress("u1", e.sales("close", "gc50", 1000), 900)
	e.Progress("u1", e.sales("done", "gc50", 1000), 1000)
	e.Mission(loyalty.Mission{ID: "gold-preview", Type: loyalty.MissionVideos, TargetValue: decimal.NewFromInt(10), RewardID: "gc50",
		Eligibility: loyalty.TierRule{TierID: "gold", Comparator: loyalty.AtOrAbove}, PreviewFromTier: "silver"})
	e.Mission(loyalty.Mission{ID: "gold-hidden", Type: loyalty.MissionVideos, TargetValue: decimal.NewFromInt(10), RewardID: "gc50",
		Eligibility: loyalty.TierRule{TierID: "gold", Comparator: loyalty.AtOrAbove}})
	disabled := e.sales("disabled", "gc50", 10)
	disabled.Enabled = false
	require.NoError(t, e.Store.SaveMission(e.Ctx, disabled))

	list, err := e.catalog.ListAvailableMissions(e.Ctx, e.ClientID, "u1")
	require.NoError(t, err)

	var ids []loyalty.MissionID
	for i, v := range list.Missions {
		ids = append(ids, v.ID)
		assert.Equal(t, i, v.Priority)
	}
	assert.Equal(t, []loyalty.MissionID{"done", "close", "far", "gold-preview"}, ids)
	assert.Equal(t, loyalty.MissionID("done"), list.FeaturedMissionID)

	preview := viewOf(t, list, "gold-preview")
	assert.Equal(t, loyalty.StatusLockedPreview, preview.Status)
	assert.True(t, preview.Locked)
	assert.Equal(t, "Unlock at Gold", preview.LockedText)
	assert.Equal(t, "0 / 10 videos", preview.ProgressText)
	assert.Equal(t, "10 more videos to post!", preview.RemainingText)
}

func TestListAvailableMissions_RaffleLifecycle(t *testing.T) {
	// GIVEN: A dormant raffle
	// WHEN: It is listed, activated, then entered
	// THEN: locked_preview -> active (featured) -> raffle_entered
	e := newTestEnv(t)
	e.giftCard("gc100", 100)
	end := e.Now.Add(72 * time.Hour)
	e.Mission(loyalty.Mission{ID: "raffle", Type: loyalty.MissionRaffle, Title: "Win an iPad", RewardID: "gc100", RaffleEndDate: &end})
	e.Progress("u1", e.sales("m1", "gc100", 5000), 1000)

	list, err := e.catalog.ListAvailableMissions(e.Ctx, e.ClientID, "u1")
	require.NoError(t, err)
	assert.Equal(t, loyalty.StatusLockedPreview, viewOf(t, list, "raffle").Status)
	assert.Equal(t, loyalty.MissionID("m1"), list.FeaturedMissionID)

	_, err = e.claims.ActivateRaffle(e.Ctx, e.ClientID, "raffle")
	require.NoError(t, err)

	list, err = e.catalog.ListAvailableMissions(e.Ctx, e.ClientID, "u1")
	require.NoError(t, err)
	v := viewOf(t, list, "raffle")
	assert.Equal(t, loyalty.StatusActive, v.Status)
	assert.Equal(t, loyalty.MissionID("raffle"), list.FeaturedMissionID, "a raffle is one click from done")
	require.NotNil(t, v.DaysRemaining)
	assert.Equal(t, 3, *v.DaysRemaining)
	assert.Equal(t, "3 days remaining", v.DaysRemainingText)

	_, err = e.claims.ParticipateInRaffle(e.Ctx, claims.RaffleEntryRequest{ClientID: e.ClientID, UserID: "u1", MissionID: "raffle"})
	require.NoError(t, err)

	list, err = e.catalog.ListAvailableMissions(e.Ctx, e.ClientID, "u1")
	require.NoError(t, err)
	assert.Equal(t, loyalty.StatusRaffleEntered, viewOf(t, list, "raffle").Status)
	assert.Equal(t, loyalty.MissionID("m1"), list.FeaturedMissionID)
}

func TestListAvailableMissions_CongratsShownOnce(t *testing.T) {
	// GIVEN: A claimed mission reward that admin fulfills
	// WHEN: Missions are listed twice
	// THEN: The first listing shows the congrats modal, the second does not
	e := newTestEnv(t)
	e.giftCard("gc50", 50)
	e.Progress("u1", e.sales("m1", "gc50", 500), 500)
	claim := e.claimMission("m1")

	list, err := e.catalog.ListAvailableMissions(e.Ctx, e.ClientID, "u1")
	require.NoError(t, err)
	assert.False(t, list.ShowCongratsModal, "claimed is not yet delivered")

	e.Now = e.Now.Add(time.Hour)
	_, err = e.claims.FulfillRedemption(e.Ctx, e.ClientID, claim.RedemptionID, "")
	require.NoError(t, err)

	e.Now = e.Now.Add(time.Hour)
	list, err = e.catalog.ListAvailableMissions(e.Ctx, e.ClientID, "u1")
	require.NoError(t, err)
	assert.True(t, list.ShowCongratsModal)
	assert.Equal(t, "Your $50 Gift Card has been delivered!", list.CongratsMessage)

	u, err := e.Store.GetUser(e.Ctx, e.ClientID, "u1")
	require.NoError(t, err)
	require.NotNil(t, u.LastLoginAt)
	assert.Equal(t, e.Now, *u.LastLoginAt)

	list, err = e.catalog.ListAvailableMissions(e.Ctx, e.ClientID, "u1")
	require.NoError(t, err)
	assert.False(t, list.ShowCongratsModal)

	dash, err := e.catalog.Dashboard(e.Ctx, e.ClientID, "u1")
	require.NoError(t, err)
	assert.False(t, dash.ShowCongratsModal)
}

// =============================================================================
// MISSION HISTORY
// =============================================================================

func TestGetMissionHistory(t *testing.T) {
	// GIVEN: A missed raffle, a concluded mission a day later, and a lost
	//        raffle a day after that
	// WHEN: History is read
	// THEN: All three appear, newest first
	e := newTestEnv(t)
	e.giftCard("gc50", 50)
	e.User(loyalty.User{ID: "u2", Handle: "creator_two"})
	start := e.Now

	missedEnd := start.Add(-48 * time.Hour)
	e.Mission(loyalty.Mission{ID: "missed", Type: loyalty.MissionRaffle, RewardID: "gc50", Activated: true, RaffleEndDate: &missedEnd})
	e.Mission(loyalty.Mission{ID: "lost", Type: loyalty.MissionRaffle, RewardID: "gc50", Activated: true})
	e.Progress("u1", e.sales("sales", "gc50", 500), 500)

	e.Now = start.Add(-24 * time.Hour)
	claim := e.claimMission("sales")
	_, err := e.claims.ConcludeRedemption(e.Ctx, e.ClientID, claim.RedemptionID)
	require.NoError(t, err)

	e.Now = start
	for _, u := range []loyalty.UserID{"u1", "u2"} {
		_, err := e.claims.ParticipateInRaffle(e.Ctx, claims.RaffleEntryRequest{ClientID: e.ClientID, UserID: u, MissionID: "lost"})
		require.NoError(t, err)
	}
	_, err = e.claims.SelectRaffleWinner(e.Ctx, e.ClientID, "lost", "u2")
	require.NoError(t, err)

	items, err := e.catalog.GetMissionHistory(e.Ctx, e.ClientID, "u1")
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, loyalty.MissionID("lost"), items[0].MissionID)
	assert.Equal(t, loyalty.StatusRaffleLost, items[0].Status)
	assert.Equal(t, loyalty.MissionID("sales"), items[1].MissionID)
	assert.Equal(t, loyalty.StatusConcluded, items[1].Status)
	assert.Equal(t, claim.RedemptionID, items[1].RedemptionID)
	assert.Equal(t, "$50 Gift Card", items[1].RewardName)
	assert.Equal(t, loyalty.MissionID("missed"), items[2].MissionID)
	assert.Equal(t, loyalty.StatusRaffleMissed, items[2].Status)

	winner, err := e.catalog.GetMissionHistory(e.Ctx, e.ClientID, "u2")
	require.NoError(t, err)
	for _, item := range winner {
		assert.NotEqual(t, loyalty.MissionID("lost"), item.MissionID, "the winner's raffle is not history until concluded")
	}
}

// =============================================================================
// VIP REWARDS
// =============================================================================

func TestListAvailableRewards(t *testing.T) {
	e := newTestEnv(t)
	silver := loyalty.TierRule{TierID: "silver", Comparator: loyalty.AtOrAbove}
	gold := loyalty.TierRule{TierID: "gold", Comparator: loyalty.AtOrAbove}

	e.Reward(loyalty.Reward{ID: "a-gc", Source: loyalty.SourceVIPTier, Eligibility: silver, DisplayOrder: 2,
		Value: loyalty.GiftCardValue{Amount: decimal.NewFromInt(25)}})
	e.Reward(loyalty.Reward{ID: "b-boost", Source: loyalty.SourceVIPTier, Eligibility: silver, DisplayOrder: 1,
		Value: loyalty.CommissionBoostValue{Percent: decimal.NewFromInt(5), DurationDays: 30}})
	e.Reward(loyalty.Reward{ID: "c-gold", Source: loyalty.SourceVIPTier, Eligibility: gold, PreviewFromTier: "silver",
		Value: loyalty.GiftCardValue{Amount: decimal.NewFromInt(100)}})
	e.Reward(loyalty.Reward{ID: "d-hidden", Source: loyalty.SourceVIPTier, Eligibility: gold,
		Value: loyalty.GiftCardValue{Amount: decimal.NewFromInt(500)}})
	e.DisabledReward(loyalty.Reward{ID: "e-off", Source: loyalty.SourceVIPTier, Value: loyalty.GiftCardValue{Amount: decimal.NewFromInt(5)}})
	e.giftCard("f-mission", 10)

	_, err := e.claims.ClaimReward(e.Ctx, claims.ClaimRewardRequest{ClientID: e.ClientID, UserID: "u1", RewardID: "b-boost",
		Payload: claims.ClaimPayload{ScheduledActivationDate: "2025-06-12"}})
	require.NoError(t, err)

	list, err := e.catalog.ListAvailableRewards(e.Ctx, e.ClientID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Silver", list.TierName)
	require.Len(t, list.Rewards, 3)

	assert.Equal(t, loyalty.RewardID("a-gc"), list.Rewards[0].ID)
	assert.Equal(t, catalog.RewardAvailable, list.Rewards[0].Status)
	assert.Equal(t, "$25 Gift Card", list.Rewards[0].Name)

	assert.Equal(t, loyalty.RewardID("b-boost"), list.Rewards[1].ID)
	assert.Equal(t, catalog.RewardScheduled, list.Rewards[1].Status)
	assert.Equal(t, loyalty.BoostScheduled, list.Rewards[1].BoostStatus)
	assert.Equal(t, 1, list.Rewards[1].UsedCount)
	assert.Equal(t, "5% Pay Boost", list.Rewards[1].Name)

	assert.Equal(t, loyalty.RewardID("c-gold"), list.Rewards[2].ID)
	assert.Equal(t, catalog.RewardLockedPreview, list.Rewards[2].Status)
	assert.Equal(t, "Unlock at Gold", list.Rewards[2].LockedText)
}

func TestGetRewardHistory_NewestFirst(t *testing.T) {
	e := newTestEnv(t)
	e.Reward(loyalty.Reward{ID: "vip", Source: loyalty.SourceVIPTier, Value: loyalty.SparkAdsValue{Amount: decimal.NewFromInt(100)}})
	e.giftCard("gc50", 50)
	e.Progress("u1", e.sales("m1", "gc50", 500), 500)

	vip, err := e.claims.ClaimReward(e.Ctx, claims.ClaimRewardRequest{ClientID: e.ClientID, UserID: "u1", RewardID: "vip"})
	require.NoError(t, err)
	_, err = e.claims.ConcludeRedemption(e.Ctx, e.ClientID, vip.RedemptionID)
	require.NoError(t, err)

	e.Now = e.Now.Add(time.Hour)
	mission := e.claimMission("m1")
	_, err = e.claims.ConcludeRedemption(e.Ctx, e.ClientID, mission.RedemptionID)
	require.NoError(t, err)

	items, err := e.catalog.GetRewardHistory(e.Ctx, e.ClientID, "u1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, mission.RedemptionID, items[0].RedemptionID)
	assert.Equal(t, loyalty.SourceMission, items[0].Source)
	assert.Equal(t, vip.RedemptionID, items[1].RedemptionID)
	assert.Equal(t, "$100 Ads Boost", items[1].Name)
}

// =============================================================================
// DASHBOARD
// =============================================================================

func TestDashboard(t *testing.T) {
	e := newTestEnv(t)
	e.giftCard("gc50", 50)
	e.Progress("u1", e.sales("m1", "gc50", 5000), 4200)

	d, err := e.catalog.Dashboard(e.Ctx, e.ClientID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "creator_one", d.Handle)
	assert.Equal(t, loyalty.TierID("silver"), d.CurrentTier.ID)
	require.NotNil(t, d.NextTier)
	assert.Equal(t, "Gold", d.NextTier.Name)
	assert.Equal(t, 50, d.ProgressPercent)
	assert.Equal(t, "$2,500 / $5,000", d.ProgressText)
	assert.True(t, d.Remaining.Equal(decimal.NewFromInt(2500)))
	assert.Nil(t, d.CheckpointDaysRemaining)
	require.NotNil(t, d.FeaturedMission)
	assert.Equal(t, loyalty.MissionID("m1"), d.FeaturedMission.ID)
}

func TestDashboard_CheckpointCountdown(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.Store.SaveClient(e.Ctx, loyalty.Client{ID: e.ClientID, Name: "Acme", VIPMetric: loyalty.MetricUnits, CheckpointMonths: 4}))
	achieved := e.Now.AddDate(0, -1, 0)
	next := e.Now.Add(73 * 24 * time.Hour)
	e.User(loyalty.User{ID: "u3", Handle: "units_creator", CurrentTierID: "gold", UnitsAggregate: 42,
		TierAchievedAt: &achieved, NextCheckpointAt: &next})

	d, err := e.catalog.Dashboard(e.Ctx, e.ClientID, "u3")
	require.NoError(t, err)
	assert.Nil(t, d.NextTier)
	assert.Equal(t, 100, d.ProgressPercent)
	assert.Equal(t, "42 / 42 units", d.ProgressText)
	require.NotNil(t, d.CheckpointDaysRemaining)
	assert.Equal(t, 73, *d.CheckpointDaysRemaining)
	assert.Equal(t, "73 days remaining", d.CheckpointText)
}

func TestDashboard_UnknownUser(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.catalog.Dashboard(e.Ctx, e.ClientID, "nobody")
	assert.True(t, loyalty.IsNotFound(err))
}

// =============================================================================
// CHECKPOINT ROLLOVER
// =============================================================================

func TestListAvailableMissions_EarlierWindowClaimStaysListed(t *testing.T) {
	// GIVEN: A quarterly creator who claimed m1 in the window that just closed
	e := newTestEnv(t)
	require.NoError(t, e.Store.SaveClient(e.Ctx, loyalty.Client{ID: e.ClientID, Name: "Acme", VIPMetric: loyalty.MetricSales, CheckpointMonths: 3}))
	achieved := e.Now.AddDate(0, -1, 0)
	next := achieved.AddDate(0, 3, 0)
	e.User(loyalty.User{ID: "u2", Handle: "creator_two", CurrentTierID: "silver", TierAchievedAt: &achieved, NextCheckpointAt: &next})
	e.giftCard("gc50", 50)
	m := e.sales("m1", "gc50", 500)
	at := e.Now
	require.NoError(t, e.Store.SaveProgress(e.Ctx, loyalty.MissionProgress{
		ID: "p-w1", ClientID: e.ClientID, MissionID: m.ID, UserID: "u2", CurrentValue: decimal.NewFromInt(600),
		Status: loyalty.ProgressCompleted, CompletedAt: &at, CheckpointStart: achieved, CheckpointEnd: next, UpdatedAt: at,
	}))
	res, err := e.claims.ClaimMissionReward(e.Ctx, claims.ClaimMissionRequest{ClientID: e.ClientID, UserID: "u2", MissionID: "m1"})
	require.NoError(t, err)

	// WHEN: The next window starts with no progress yet
	e.Now = e.Now.AddDate(0, 3, 0)
	list, err := e.catalog.ListAvailableMissions(e.Ctx, e.ClientID, "u2")
	require.NoError(t, err)

	// THEN: The open claim is still on the card until it settles
	v := viewOf(t, list, "m1")
	assert.Equal(t, loyalty.StatusClaimed, v.Status)
	assert.Equal(t, res.RedemptionID, v.RedemptionID)

	_, err = e.claims.ConcludeRedemption(e.Ctx, e.ClientID, res.RedemptionID)
	require.NoError(t, err)
	list, err = e.catalog.ListAvailableMissions(e.Ctx, e.ClientID, "u2")
	require.NoError(t, err)
	v = viewOf(t, list, "m1")
	assert.Equal(t, loyalty.StatusActive, v.Status)
	assert.Empty(t, v.RedemptionID)
}
