// Package storetest holds the behavioural contract every loyalty.TxStore
// implementation must satisfy. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/creator-rewards/loyalty"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) loyalty.TxStore

var base = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

// Run executes the full contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("TenantIsolation", func(t *testing.T) { testTenantIsolation(t, newStore(t)) })
	t.Run("UniqueActiveClaim", func(t *testing.T) { testUniqueActiveClaim(t, newStore(t)) })
	t.Run("ClaimKeyReusableAfterReject", func(t *testing.T) { testClaimKeyReusable(t, newStore(t)) })
	t.Run("ConcurrentClaims", func(t *testing.T) { testConcurrentClaims(t, newStore(t)) })
	t.Run("UniqueRaffleEntry", func(t *testing.T) { testUniqueRaffleEntry(t, newStore(t)) })
	t.Run("WinnerWrittenOnce", func(t *testing.T) { testWinnerWrittenOnce(t, newStore(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("ProgressPerWindow", func(t *testing.T) { testProgressPerWindow(t, newStore(t)) })
	t.Run("RewardValueRoundTrip", func(t *testing.T) { testRewardValue(t, newStore(t)) })
	t.Run("RedemptionRoundTrip", func(t *testing.T) { testRedemptionRoundTrip(t, newStore(t)) })
	t.Run("VideoUpsertByURL", func(t *testing.T) { testVideoUpsert(t, newStore(t)) })
	t.Run("BoostsByStatus", func(t *testing.T) { testBoostsByStatus(t, newStore(t)) })
	t.Run("HandleLookupIgnoresCase", func(t *testing.T) { testHandleLookup(t, newStore(t)) })
}

// =============================================================================
// FIXTURES
// =============================================================================

func seedTenant(t *testing.T, s loyalty.Store, clientID loyalty.ClientID) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SaveClient(ctx, loyalty.Client{
		ID: clientID, Name: string(clientID), VIPMetric: loyalty.MetricSales, CreatedAt: base,
	}))
	require.NoError(t, s.SaveTier(ctx, loyalty.Tier{
		ID: "bronze", ClientID: clientID, Order: 1, Name: "Bronze", SalesThreshold: decimal.Zero,
	}))
	require.NoError(t, s.SaveUser(ctx, loyalty.User{
		ID: "u1", ClientID: clientID, Handle: "creator_one", CurrentTierID: "bronze",
		SalesAggregate: decimal.Zero, TotalSales: decimal.Zero, CreatedAt: base,
	}))
	require.NoError(t, s.SaveReward(ctx, loyalty.Reward{
		ID: "gc50", ClientID: clientID, Type: loyalty.RewardGiftCard, Name: "$50 Gift Card",
		Value:     loyalty.GiftCardValue{Amount: decimal.NewFromInt(50)},
		Frequency: loyalty.FrequencyOneTime, Quantity: 1, Source: loyalty.SourceVIPTier,
		Enabled: true, CreatedAt: base,
	}))
}

func redemption(id loyalty.RedemptionID, clientID loyalty.ClientID, status loyalty.RedemptionStatus) loyalty.Redemption {
	return loyalty.Redemption{
		ID: id, ClientID: clientID, UserID: "u1", RewardID: "gc50", ClaimKey: "gc50",
		Status: status, CreatedAt: base, UpdatedAt: base,
	}
}

// =============================================================================
// CONTRACT TESTS
// =============================================================================

func testTenantIsolation(t *testing.T, s loyalty.TxStore) {
	// GIVEN: Two tenants, each with a user u1 and a redemption
	// WHEN: Reading tenant A's rows with tenant B's id
	// THEN: Rows are invisible, as if missing
	ctx := context.Background()
	seedTenant(t, s, "client-a")
	seedTenant(t, s, "client-b")
	require.NoError(t, s.CreateRedemption(ctx, redemption("r-a", "client-a", loyalty.RedemptionClaimed)))

	got, err := s.GetRedemption(ctx, "client-b", "r-a")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.GetRedemption(ctx, "client-a", "r-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, loyalty.RedemptionClaimed, got.Status)

	list, err := s.ListRedemptions(ctx, "client-b", "u1")
	require.NoError(t, err)
	assert.Empty(t, list)

	reward, err := s.GetReward(ctx, "client-c", "gc50")
	require.NoError(t, err)
	assert.Nil(t, reward)
}

func testUniqueActiveClaim(t *testing.T, s loyalty.TxStore) {
	// GIVEN: An active redemption for claim key gc50
	// WHEN: A second redemption with the same key is created
	// THEN: ErrDuplicateClaim
	ctx := context.Background()
	seedTenant(t, s, "client-a")
	require.NoError(t, s.CreateRedemption(ctx, redemption("r-1", "client-a", loyalty.RedemptionClaimed)))

	err := s.CreateRedemption(ctx, redemption("r-2", "client-a", loyalty.RedemptionClaimed))
	assert.ErrorIs(t, err, loyalty.ErrDuplicateClaim)
}

func testClaimKeyReusable(t *testing.T, s loyalty.TxStore) {
	// GIVEN: A rejected and a concluded redemption for gc50
	// WHEN: A new claim is created with the same key
	// THEN: The insert succeeds because terminal rows do not hold the key
	ctx := context.Background()
	seedTenant(t, s, "client-a")
	require.NoError(t, s.CreateRedemption(ctx, redemption("r-1", "client-a", loyalty.RedemptionRejected)))
	require.NoError(t, s.CreateRedemption(ctx, redemption("r-2", "client-a", loyalty.RedemptionConcluded)))
	assert.NoError(t, s.CreateRedemption(ctx, redemption("r-3", "client-a", loyalty.RedemptionClaimed)))
}

func testConcurrentClaims(t *testing.T, s loyalty.TxStore) {
	// GIVEN: N goroutines racing to create the same claim inside transactions
	// WHEN: All of them commit or fail
	// THEN: Exactly one succeeds, every other one sees ErrDuplicateClaim
	ctx := context.Background()
	seedTenant(t, s, "client-a")

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.WithTx(ctx, func(tx loyalty.Store) error {
				r := redemption(loyalty.RedemptionID("r-"+string(rune('a'+i))), "client-a", loyalty.RedemptionClaimed)
				return tx.CreateRedemption(ctx, r)
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, loyalty.ErrDuplicateClaim):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, dupes)
}

func testUniqueRaffleEntry(t *testing.T, s loyalty.TxStore) {
	// GIVEN: A user already entered a raffle
	// WHEN: They enter again
	// THEN: ErrDuplicateEntry
	ctx := context.Background()
	seedTenant(t, s, "client-a")
	require.NoError(t, s.CreateRedemption(ctx, redemption("r-1", "client-a", loyalty.RedemptionClaimable)))

	entry := loyalty.RaffleParticipation{
		ID: "p-1", ClientID: "client-a", MissionID: "raffle-1", UserID: "u1",
		RedemptionID: "r-1", ParticipatedAt: base,
	}
	require.NoError(t, s.CreateRaffleParticipation(ctx, entry))

	entry.ID = "p-2"
	assert.ErrorIs(t, s.CreateRaffleParticipation(ctx, entry), loyalty.ErrDuplicateEntry)
}

func testWinnerWrittenOnce(t *testing.T, s loyalty.TxStore) {
	// GIVEN: A participation whose winner flag was already set
	// WHEN: The flag is written again
	// THEN: ErrWinnerAlreadySelected and the first value stands
	ctx := context.Background()
	seedTenant(t, s, "client-a")
	require.NoError(t, s.CreateRedemption(ctx, redemption("r-1", "client-a", loyalty.RedemptionClaimable)))
	entry := loyalty.RaffleParticipation{
		ID: "p-1", ClientID: "client-a", MissionID: "raffle-1", UserID: "u1",
		RedemptionID: "r-1", ParticipatedAt: base,
	}
	require.NoError(t, s.CreateRaffleParticipation(ctx, entry))

	won := entry
	require.NoError(t, won.Draw(true, base.Add(time.Hour)))
	require.NoError(t, s.UpdateRaffleParticipation(ctx, won))

	lost := entry
	require.NoError(t, lost.Draw(false, base.Add(2*time.Hour)))
	assert.ErrorIs(t, s.UpdateRaffleParticipation(ctx, lost), loyalty.ErrWinnerAlreadySelected)

	list, err := s.ListRaffleParticipations(ctx, "client-a", "raffle-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].IsWinner)
	assert.True(t, *list[0].IsWinner)
}

func testRollback(t *testing.T, s loyalty.TxStore) {
	// GIVEN: A transaction that writes a redemption then fails
	// WHEN: WithTx returns
	// THEN: The redemption is not visible
	ctx := context.Background()
	seedTenant(t, s, "client-a")

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx loyalty.Store) error {
		if err := tx.CreateRedemption(ctx, redemption("r-1", "client-a", loyalty.RedemptionClaimed)); err != nil {
			return err
		}
		got, err := tx.GetRedemption(ctx, "client-a", "r-1")
		require.NoError(t, err)
		require.NotNil(t, got, "writes are visible inside the transaction")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetRedemption(ctx, "client-a", "r-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testProgressPerWindow(t *testing.T, s loyalty.TxStore) {
	// GIVEN: Progress rows for two checkpoint windows of the same mission
	// WHEN: Each is read back by window start, and one is saved again
	// THEN: Rows are independent and the re-save updates in place
	ctx := context.Background()
	seedTenant(t, s, "client-a")

	jan := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	apr := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	for i, start := range []time.Time{jan, apr} {
		require.NoError(t, s.SaveProgress(ctx, loyalty.MissionProgress{
			ID: loyalty.ProgressID("p-" + start.Format("01")), ClientID: "client-a", MissionID: "m1", UserID: "u1",
			CurrentValue: decimal.NewFromInt(int64(100 * (i + 1))), Status: loyalty.ProgressInProgress,
			CheckpointStart: start, CheckpointEnd: start.AddDate(0, 3, 0), UpdatedAt: base,
		}))
	}

	p, err := s.GetProgress(ctx, "client-a", "u1", "m1", apr)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.CurrentValue.Equal(decimal.NewFromInt(200)))
	assert.True(t, p.CheckpointEnd.Equal(apr.AddDate(0, 3, 0)))

	p.CurrentValue = decimal.NewFromInt(250)
	require.NoError(t, s.SaveProgress(ctx, *p))

	all, err := s.ListProgress(ctx, "client-a", "u1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	missing, err := s.GetProgress(ctx, "client-a", "u1", "m1", apr.AddDate(0, 3, 0))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testRewardValue(t *testing.T, s loyalty.TxStore) {
	// GIVEN: A commission boost reward with a typed value
	// WHEN: It is read back
	// THEN: The variant and its fields survive unchanged
	ctx := context.Background()
	seedTenant(t, s, "client-a")
	days := 30
	require.NoError(t, s.SaveReward(ctx, loyalty.Reward{
		ID: "boost5", ClientID: "client-a", Type: loyalty.RewardCommissionBoost, Name: "5% Boost",
		Value:       loyalty.CommissionBoostValue{Percent: decimal.NewFromInt(5), DurationDays: 30},
		Eligibility: loyalty.TierRule{TierID: "bronze", Comparator: loyalty.AtOrAbove},
		Frequency:   loyalty.FrequencyRecurring, Quantity: 2, Source: loyalty.SourceVIPTier,
		Enabled: true, ExpiresDays: &days, CreatedAt: base,
	}))

	r, err := s.GetReward(ctx, "client-a", "boost5")
	require.NoError(t, err)
	require.NotNil(t, r)
	v, ok := r.Value.(loyalty.CommissionBoostValue)
	require.True(t, ok, "expected CommissionBoostValue, got %T", r.Value)
	assert.True(t, v.Percent.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 30, v.DurationDays)
	assert.Equal(t, loyalty.TierID("bronze"), r.Eligibility.TierID)
	require.NotNil(t, r.ExpiresDays)
	assert.Equal(t, 30, *r.ExpiresDays)
}

func testRedemptionRoundTrip(t *testing.T, s loyalty.TxStore) {
	// GIVEN: A claimed mission redemption with scheduling fields
	// WHEN: It is concluded and read back
	// THEN: Every field survives and terminal rows stay listed
	ctx := context.Background()
	seedTenant(t, s, "client-a")
	claimed := base.Add(time.Hour)
	activate := base.Add(24 * time.Hour)
	r := redemption("r-1", "client-a", loyalty.RedemptionClaimed)
	r.MissionID, r.ProgressID = "m1", "p1"
	r.ClaimedAt, r.ScheduledActivationAt = &claimed, &activate
	require.NoError(t, s.CreateRedemption(ctx, r))

	concluded := base.Add(48 * time.Hour)
	require.NoError(t, r.Advance(loyalty.RedemptionConcluded, concluded))
	r.FulfillmentNotes = "sent"
	require.NoError(t, s.UpdateRedemption(ctx, r))

	got, err := s.GetRedemption(ctx, "client-a", "r-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, loyalty.RedemptionConcluded, got.Status)
	assert.Equal(t, loyalty.MissionID("m1"), got.MissionID)
	assert.Equal(t, loyalty.ProgressID("p1"), got.ProgressID)
	assert.Equal(t, "gc50", got.ClaimKey)
	assert.Equal(t, "sent", got.FulfillmentNotes)
	require.NotNil(t, got.ClaimedAt)
	require.NotNil(t, got.ScheduledActivationAt)
	require.NotNil(t, got.ConcludedAt)
	assert.True(t, claimed.Equal(*got.ClaimedAt))
	assert.True(t, activate.Equal(*got.ScheduledActivationAt))
	assert.True(t, concluded.Equal(*got.ConcludedAt))
	assert.True(t, concluded.Equal(got.UpdatedAt))

	list, err := s.ListRedemptions(ctx, "client-a", "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	byStatus, err := s.ListRedemptionsByStatus(ctx, "client-a", loyalty.RedemptionConcluded)
	require.NoError(t, err)
	assert.Len(t, byStatus, 1)
}

func testVideoUpsert(t *testing.T, s loyalty.TxStore) {
	// GIVEN: A video already synced
	// WHEN: The same URL is synced with new counts
	// THEN: One row remains with the new counts
	ctx := context.Background()
	seedTenant(t, s, "client-a")
	v := loyalty.Video{
		ID: "v1", ClientID: "client-a", UserID: "u1", URL: "https://tiktok.com/@a/1",
		PostDate: base, Views: 10, GMV: decimal.NewFromInt(5), SyncedAt: base,
	}
	require.NoError(t, s.UpsertVideo(ctx, v))
	v.ID = "v1-again"
	v.Views = 99
	require.NoError(t, s.UpsertVideo(ctx, v))

	videos, err := s.ListVideos(ctx, "client-a", "u1")
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, int64(99), videos[0].Views)
	assert.Equal(t, "v1", videos[0].ID)
}

func testBoostsByStatus(t *testing.T, s loyalty.TxStore) {
	// GIVEN: A scheduled boost
	// WHEN: It is activated
	// THEN: It moves between status listings
	ctx := context.Background()
	seedTenant(t, s, "client-a")
	require.NoError(t, s.CreateRedemption(ctx, redemption("r-1", "client-a", loyalty.RedemptionClaimed)))
	b := loyalty.CommissionBoost{
		RedemptionID: "r-1", ClientID: "client-a", UserID: "u1", BoostStatus: loyalty.BoostScheduled,
		ScheduledActivationAt: base, DurationDays: 30, Rate: decimal.NewFromInt(5), UpdatedAt: base,
	}
	require.NoError(t, s.CreateCommissionBoost(ctx, b))

	scheduled, err := s.ListCommissionBoosts(ctx, "client-a", loyalty.BoostScheduled)
	require.NoError(t, err)
	assert.Len(t, scheduled, 1)

	at := base.Add(time.Hour)
	b.BoostStatus = loyalty.BoostActivated
	b.ActivatedAt = &at
	b.SalesAtActivation = decimal.NewNullDecimal(decimal.NewFromInt(1000))
	require.NoError(t, s.UpdateCommissionBoost(ctx, b))

	scheduled, err = s.ListCommissionBoosts(ctx, "client-a", loyalty.BoostScheduled)
	require.NoError(t, err)
	assert.Empty(t, scheduled)

	got, err := s.GetCommissionBoost(ctx, "client-a", "r-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, loyalty.BoostActivated, got.BoostStatus)
	assert.True(t, got.SalesAtActivation.Valid)
	assert.True(t, got.SalesAtActivation.Decimal.Equal(decimal.NewFromInt(1000)))
	assert.False(t, got.FinalPayout.Valid)
}

func testHandleLookup(t *testing.T, s loyalty.TxStore) {
	// GIVEN: A user with handle creator_one
	// WHEN: Looking up Creator_One
	// THEN: The same user is returned
	ctx := context.Background()
	seedTenant(t, s, "client-a")
	u, err := s.GetUserByHandle(ctx, "client-a", "Creator_One")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, loyalty.UserID("u1"), u.ID)
}
