package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/creator-rewards/loyalty"
)

// Fixture seeds a tenant for service tests: client "acme" with lifetime
// tiers bronze < silver < gold and a creator "u1" at silver.
type Fixture struct {
	T        *testing.T
	Ctx      context.Context
	Store    loyalty.TxStore
	ClientID loyalty.ClientID
	Now      time.Time
}

// FixtureNow is the clock fixtures are seeded against.
var FixtureNow = time.Date(2025, time.June, 10, 15, 0, 0, 0, time.UTC)

// NewFixture seeds s and returns the fixture.
func NewFixture(t *testing.T, s loyalty.TxStore) *Fixture {
	t.Helper()
	f := &Fixture{T: t, Ctx: context.Background(), Store: s, ClientID: "acme", Now: FixtureNow}

	require.NoError(t, s.SaveClient(f.Ctx, loyalty.Client{
		ID: f.ClientID, Name: "Acme", VIPMetric: loyalty.MetricSales, CreatedAt: f.Now.AddDate(-1, 0, 0),
	}))
	for _, tier := range []loyalty.Tier{
		{ID: "bronze", Order: 1, Name: "Bronze", Color: "#CD7F32", SalesThreshold: decimal.Zero},
		{ID: "silver", Order: 2, Name: "Silver", Color: "#C0C0C0", SalesThreshold: decimal.NewFromInt(1000)},
		{ID: "gold", Order: 3, Name: "Gold", Color: "#FFD700", SalesThreshold: decimal.NewFromInt(5000)},
	} {
		tier.ClientID = f.ClientID
		require.NoError(t, s.SaveTier(f.Ctx, tier))
	}
	f.User(loyalty.User{ID: "u1", Handle: "creator_one", CurrentTierID: "silver",
		SalesAggregate: decimal.NewFromInt(2500), TotalSales: decimal.NewFromInt(2500)})
	return f
}

// User saves u under the fixture tenant, filling defaults.
func (f *Fixture) User(u loyalty.User) loyalty.User {
	f.T.Helper()
	u.ClientID = f.ClientID
	if u.CurrentTierID == "" {
		u.CurrentTierID = "bronze"
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = f.Now.AddDate(0, -6, 0)
	}
	require.NoError(f.T, f.Store.SaveUser(f.Ctx, u))
	return u
}

// Reward saves r under the fixture tenant. Rewards are enabled, one_time
// and open to every tier unless set otherwise.
func (f *Fixture) Reward(r loyalty.Reward) loyalty.Reward {
	f.T.Helper()
	r.ClientID = f.ClientID
	r.Enabled = true
	if r.Type == "" && r.Value != nil {
		r.Type = r.Value.RewardType()
	}
	if r.Frequency == "" {
		r.Frequency = loyalty.FrequencyOneTime
	}
	if r.Source == "" {
		r.Source = loyalty.SourceMission
	}
	if r.Eligibility.TierID == "" {
		r.Eligibility = loyalty.TierRule{TierID: loyalty.TierAll}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = f.Now.AddDate(0, -1, 0)
	}
	require.NoError(f.T, f.Store.SaveReward(f.Ctx, r))
	return r
}

// DisabledReward saves r with Enabled=false.
func (f *Fixture) DisabledReward(r loyalty.Reward) loyalty.Reward {
	f.T.Helper()
	r = f.Reward(r)
	r.Enabled = false
	require.NoError(f.T, f.Store.SaveReward(f.Ctx, r))
	return r
}

// Mission saves m under the fixture tenant. Missions are enabled and open
// to every tier unless set otherwise.
func (f *Fixture) Mission(m loyalty.Mission) loyalty.Mission {
	f.T.Helper()
	m.ClientID = f.ClientID
	m.Enabled = true
	if m.Eligibility.TierID == "" {
		m.Eligibility = loyalty.TierRule{TierID: loyalty.TierAll}
	}
	if m.TargetUnit == "" {
		m.TargetUnit = loyalty.UnitDollars
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = f.Now.AddDate(0, -1, 0)
	}
	require.NoError(f.T, f.Store.SaveMission(f.Ctx, m))
	return m
}

// Progress saves the lifetime-window progress of userID on mission, marking
// it completed when value reaches the target.
func (f *Fixture) Progress(userID loyalty.UserID, mission loyalty.Mission, value int64) loyalty.MissionProgress {
	f.T.Helper()
	p := loyalty.MissionProgress{
		ID:           loyalty.ProgressID("p-" + string(userID) + "-" + string(mission.ID)),
		ClientID:     f.ClientID,
		MissionID:    mission.ID,
		UserID:       userID,
		CurrentValue: decimal.NewFromInt(value),
		Status:       loyalty.ProgressInProgress,
		UpdatedAt:    f.Now,
	}
	if p.CurrentValue.GreaterThanOrEqual(mission.TargetValue) {
		at := f.Now.Add(-time.Hour)
		p.Status = loyalty.ProgressCompleted
		p.CompletedAt = &at
	}
	require.NoError(f.T, f.Store.SaveProgress(f.Ctx, p))
	return p
}

// Redemptions returns every redemption of userID.
func (f *Fixture) Redemptions(userID loyalty.UserID) []loyalty.Redemption {
	f.T.Helper()
	out, err := f.Store.ListRedemptions(f.Ctx, f.ClientID, userID)
	require.NoError(f.T, err)
	return out
}

// Clock returns a func reporting the fixture's current time.
func (f *Fixture) Clock() func() time.Time {
	return func() time.Time { return f.Now }
}
