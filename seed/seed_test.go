package seed_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/creator-rewards/loyalty"
	"github.com/warp/creator-rewards/salesync"
	"github.com/warp/creator-rewards/seed"
	"github.com/warp/creator-rewards/store/memory"
)

var loadNow = time.Date(2025, time.June, 10, 15, 0, 0, 0, time.UTC)

func newLoader(t *testing.T) (*seed.Loader, *memory.Store) {
	t.Helper()
	store := memory.New()
	sync := salesync.NewService(store, nil)
	sync.Now = func() time.Time { return loadNow }
	return &seed.Loader{Store: store, Sync: sync, Now: sync.Now}, store
}

func TestEmbeddedScenariosParse(t *testing.T) {
	all, err := seed.Scenarios()
	require.NoError(t, err)
	require.NotEmpty(t, all)

	// Every reward value must build for its declared type.
	for _, s := range all {
		for _, r := range s.Rewards {
			_, err := r.Value.Variant(r.Type)
			assert.NoError(t, err, "%s/%s", s.ID, r.ID)
		}
	}

	list, err := seed.List()
	require.NoError(t, err)
	assert.Equal(t, "sales-sprint", list[0].ID)
	assert.Equal(t, loyalty.ClientID("stride"), list[0].ClientID)
}

func TestParse_RejectsDuplicates(t *testing.T) {
	doc := []byte(`
scenarios:
  - {id: a, client: {id: c1}}
  - {id: a, client: {id: c2}}
`)
	_, err := seed.Parse(doc)
	assert.ErrorContains(t, err, "duplicate scenario")
}

func TestLoad_SalesSprint(t *testing.T) {
	// GIVEN: An empty store
	loader, store := newLoader(t)
	ctx := context.Background()

	// WHEN: Loading the sales sprint demo
	s, err := loader.Load(ctx, "sales-sprint")
	require.NoError(t, err)
	assert.Equal(t, "Sales Sprint", s.Name)

	// THEN: Videos drive aggregates, tiers and progress
	ava, err := store.GetUser(ctx, "stride", "stride-ava")
	require.NoError(t, err)
	require.NotNil(t, ava)
	assert.True(t, decimal.NewFromInt(4200).Equal(ava.TotalSales), ava.TotalSales.String())
	assert.Equal(t, loyalty.TierID("stride-silver"), ava.CurrentTierID)

	cho, err := store.GetUserByHandle(ctx, "stride", "cho_styles")
	require.NoError(t, err)
	require.NotNil(t, cho)
	assert.Equal(t, loyalty.TierID("stride-gold"), cho.CurrentTierID)
	assert.True(t, cho.IsAdmin)

	p, err := store.GetProgress(ctx, "stride", "stride-ava", "stride-sales", time.Time{})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, decimal.NewFromInt(4200).Equal(p.CurrentValue))
	assert.Equal(t, loyalty.ProgressInProgress, p.Status)

	raffle, err := store.GetMission(ctx, "stride", "stride-raffle")
	require.NoError(t, err)
	require.NotNil(t, raffle)
	assert.False(t, raffle.Activated, "raffles start dormant")
	require.NotNil(t, raffle.RaffleEndDate)
	assert.Equal(t, loadNow.AddDate(0, 0, 3), *raffle.RaffleEndDate)

	deal, err := store.GetReward(ctx, "stride", "stride-vip-deal")
	require.NoError(t, err)
	require.NotNil(t, deal)
	assert.Equal(t, loyalty.SourceVIPTier, deal.Source)
	assert.IsType(t, loyalty.DiscountValue{}, deal.Value)
}

func TestLoad_IsRepeatable(t *testing.T) {
	loader, store := newLoader(t)
	ctx := context.Background()

	_, err := loader.Load(ctx, "unit-checkpoint")
	require.NoError(t, err)
	_, err = loader.Load(ctx, "unit-checkpoint")
	require.NoError(t, err)

	users, err := store.ListUsers(ctx, "lumen")
	require.NoError(t, err)
	assert.Len(t, users, 2)

	dee, err := store.GetUser(ctx, "lumen", "lumen-dee")
	require.NoError(t, err)
	assert.Equal(t, int64(42), dee.UnitsAggregate)
	require.NotNil(t, dee.NextCheckpointAt)

	videos, err := store.ListVideos(ctx, "lumen", "lumen-dee")
	require.NoError(t, err)
	assert.Len(t, videos, 1)
}

func TestLoad_UnknownScenario(t *testing.T) {
	loader, _ := newLoader(t)

	_, err := loader.Load(context.Background(), "nope")
	assert.True(t, loyalty.IsNotFound(err))
}
