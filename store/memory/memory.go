// Package memory provides an in-memory loyalty.TxStore for tests and local runs.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/creator-rewards/loyalty"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store is a mutex-guarded loyalty.TxStore. Every call, and every WithTx
// body, runs under one lock, so transactions are serializable.
type Store struct {
	mu sync.Mutex
	s  *state
}

var _ loyalty.TxStore = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{s: newState()}
}

type tenantKey struct {
	ClientID loyalty.ClientID
	ID       string
}

type progressKey struct {
	ClientID  loyalty.ClientID
	UserID    loyalty.UserID
	MissionID loyalty.MissionID
	Start     int64
}

type raffleKey struct {
	ClientID  loyalty.ClientID
	MissionID loyalty.MissionID
	UserID    loyalty.UserID
}

type state struct {
	clients     map[loyalty.ClientID]loyalty.Client
	tiers       map[tenantKey]loyalty.Tier
	missions    map[tenantKey]loyalty.Mission
	rewards     map[tenantKey]loyalty.Reward
	users       map[tenantKey]loyalty.User
	progress    map[progressKey]loyalty.MissionProgress
	redemptions map[tenantKey]loyalty.Redemption
	boosts      map[tenantKey]loyalty.CommissionBoost
	gifts       map[tenantKey]loyalty.PhysicalGift
	raffles     map[raffleKey]loyalty.RaffleParticipation
	videos      map[tenantKey]loyalty.Video // keyed by URL
	adjustments []loyalty.SalesAdjustment
	syncRuns    map[tenantKey]loyalty.SyncRun
}

func newState() *state {
	return &state{
		clients:     make(map[loyalty.ClientID]loyalty.Client),
		tiers:       make(map[tenantKey]loyalty.Tier),
		missions:    make(map[tenantKey]loyalty.Mission),
		rewards:     make(map[tenantKey]loyalty.Reward),
		users:       make(map[tenantKey]loyalty.User),
		progress:    make(map[progressKey]loyalty.MissionProgress),
		redemptions: make(map[tenantKey]loyalty.Redemption),
		boosts:      make(map[tenantKey]loyalty.CommissionBoost),
		gifts:       make(map[tenantKey]loyalty.PhysicalGift),
		raffles:     make(map[raffleKey]loyalty.RaffleParticipation),
		videos:      make(map[tenantKey]loyalty.Video),
		syncRuns:    make(map[tenantKey]loyalty.SyncRun),
	}
}

func (s *state) clone() *state {
	return &state{
		clients:     maps.Clone(s.clients),
		tiers:       maps.Clone(s.tiers),
		missions:    maps.Clone(s.missions),
		rewards:     maps.Clone(s.rewards),
		users:       maps.Clone(s.users),
		progress:    maps.Clone(s.progress),
		redemptions: maps.Clone(s.redemptions),
		boosts:      maps.Clone(s.boosts),
		gifts:       maps.Clone(s.gifts),
		raffles:     maps.Clone(s.raffles),
		videos:      maps.Clone(s.videos),
		adjustments: slices.Clone(s.adjustments),
		syncRuns:    maps.Clone(s.syncRuns),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction, simulated with a snapshot and
// rollback on error.
func (m *Store) WithTx(ctx context.Context, fn func(loyalty.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.s.clone()
	if err := fn(&view{s: m.s}); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

// locked runs fn against the live state under the store lock.
func locked[T any](m *Store, fn func(v *view) (T, error)) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&view{s: m.s})
}

func lockedErr(m *Store, fn func(v *view) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&view{s: m.s})
}

// =============================================================================
// STORE METHODS - delegate to the view under the lock
// =============================================================================

func (m *Store) GetClient(ctx context.Context, id loyalty.ClientID) (*loyalty.Client, error) {
	return locked(m, func(v *view) (*loyalty.Client, error) { return v.GetClient(ctx, id) })
}

func (m *Store) ListClients(ctx context.Context) ([]loyalty.Client, error) {
	return locked(m, func(v *view) ([]loyalty.Client, error) { return v.ListClients(ctx) })
}

func (m *Store) SaveClient(ctx context.Context, c loyalty.Client) error {
	return lockedErr(m, func(v *view) error { return v.SaveClient(ctx, c) })
}

func (m *Store) ListTiers(ctx context.Context, clientID loyalty.ClientID) ([]loyalty.Tier, error) {
	return locked(m, func(v *view) ([]loyalty.Tier, error) { return v.ListTiers(ctx, clientID) })
}

func (m *Store) SaveTier(ctx context.Context, t loyalty.Tier) error {
	return lockedErr(m, func(v *view) error { return v.SaveTier(ctx, t) })
}

func (m *Store) GetMission(ctx context.Context, clientID loyalty.ClientID, id loyalty.MissionID) (*loyalty.Mission, error) {
	return locked(m, func(v *view) (*loyalty.Mission, error) { return v.GetMission(ctx, clientID, id) })
}

func (m *Store) ListMissions(ctx context.Context, clientID loyalty.ClientID) ([]loyalty.Mission, error) {
	return locked(m, func(v *view) ([]loyalty.Mission, error) { return v.ListMissions(ctx, clientID) })
}

func (m *Store) SaveMission(ctx context.Context, ms loyalty.Mission) error {
	return lockedErr(m, func(v *view) error { return v.SaveMission(ctx, ms) })
}

func (m *Store) GetReward(ctx context.Context, clientID loyalty.ClientID, id loyalty.RewardID) (*loyalty.Reward, error) {
	return locked(m, func(v *view) (*loyalty.Reward, error) { return v.GetReward(ctx, clientID, id) })
}

func (m *Store) ListRewards(ctx context.Context, clientID loyalty.ClientID) ([]loyalty.Reward, error) {
	return locked(m, func(v *view) ([]loyalty.Reward, error) { return v.ListRewards(ctx, clientID) })
}

func (m *Store) SaveReward(ctx context.Context, r loyalty.Reward) error {
	return lockedErr(m, func(v *view) error { return v.SaveReward(ctx, r) })
}

func (m *Store) GetUser(ctx context.Context, clientID loyalty.ClientID, id loyalty.UserID) (*loyalty.User, error) {
	return locked(m, func(v *view) (*loyalty.User, error) { return v.GetUser(ctx, clientID, id) })
}

func (m *Store) GetUserByHandle(ctx context.Context, clientID loyalty.ClientID, handle string) (*loyalty.User, error) {
	return locked(m, func(v *view) (*loyalty.User, error) { return v.GetUserByHandle(ctx, clientID, handle) })
}

func (m *Store) ListUsers(ctx context.Context, clientID loyalty.ClientID) ([]loyalty.User, error) {
	return locked(m, func(v *view) ([]loyalty.User, error) { return v.ListUsers(ctx, clientID) })
}

func (m *Store) SaveUser(ctx context.Context, u loyalty.User) error {
	return lockedErr(m, func(v *view) error { return v.SaveUser(ctx, u) })
}

func (m *Store) GetProgress(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID, missionID loyalty.MissionID, start time.Time) (*loyalty.MissionProgress, error) {
	return locked(m, func(v *view) (*loyalty.MissionProgress, error) {
		return v.GetProgress(ctx, clientID, userID, missionID, start)
	})
}

func (m *Store) ListProgress(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID) ([]loyalty.MissionProgress, error) {
	return locked(m, func(v *view) ([]loyalty.MissionProgress, error) { return v.ListProgress(ctx, clientID, userID) })
}

func (m *Store) SaveProgress(ctx context.Context, p loyalty.MissionProgress) error {
	return lockedErr(m, func(v *view) error { return v.SaveProgress(ctx, p) })
}

func (m *Store) CreateRedemption(ctx context.Context, r loyalty.Redemption) error {
	return lockedErr(m, func(v *view) error { return v.CreateRedemption(ctx, r) })
}

func (m *Store) UpdateRedemption(ctx context.Context, r loyalty.Redemption) error {
	return lockedErr(m, func(v *view) error { return v.UpdateRedemption(ctx, r) })
}

func (m *Store) GetRedemption(ctx context.Context, clientID loyalty.ClientID, id loyalty.RedemptionID) (*loyalty.Redemption, error) {
	return locked(m, func(v *view) (*loyalty.Redemption, error) { return v.GetRedemption(ctx, clientID, id) })
}

func (m *Store) ListRedemptions(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID) ([]loyalty.Redemption, error) {
	return locked(m, func(v *view) ([]loyalty.Redemption, error) { return v.ListRedemptions(ctx, clientID, userID) })
}

func (m *Store) ListRedemptionsByStatus(ctx context.Context, clientID loyalty.ClientID, status loyalty.RedemptionStatus) ([]loyalty.Redemption, error) {
	return locked(m, func(v *view) ([]loyalty.Redemption, error) { return v.ListRedemptionsByStatus(ctx, clientID, status) })
}

func (m *Store) CreateCommissionBoost(ctx context.Context, b loyalty.CommissionBoost) error {
	return lockedErr(m, func(v *view) error { return v.CreateCommissionBoost(ctx, b) })
}

func (m *Store) UpdateCommissionBoost(ctx context.Context, b loyalty.CommissionBoost) error {
	return lockedErr(m, func(v *view) error { return v.UpdateCommissionBoost(ctx, b) })
}

func (m *Store) GetCommissionBoost(ctx context.Context, clientID loyalty.ClientID, id loyalty.RedemptionID) (*loyalty.CommissionBoost, error) {
	return locked(m, func(v *view) (*loyalty.CommissionBoost, error) { return v.GetCommissionBoost(ctx, clientID, id) })
}

func (m *Store) ListCommissionBoosts(ctx context.Context, clientID loyalty.ClientID, status loyalty.BoostStatus) ([]loyalty.CommissionBoost, error) {
	return locked(m, func(v *view) ([]loyalty.CommissionBoost, error) { return v.ListCommissionBoosts(ctx, clientID, status) })
}

func (m *Store) CreatePhysicalGift(ctx context.Context, g loyalty.PhysicalGift) error {
	return lockedErr(m, func(v *view) error { return v.CreatePhysicalGift(ctx, g) })
}

func (m *Store) UpdatePhysicalGift(ctx context.Context, g loyalty.PhysicalGift) error {
	return lockedErr(m, func(v *view) error { return v.UpdatePhysicalGift(ctx, g) })
}

func (m *Store) GetPhysicalGift(ctx context.Context, clientID loyalty.ClientID, id loyalty.RedemptionID) (*loyalty.PhysicalGift, error) {
	return locked(m, func(v *view) (*loyalty.PhysicalGift, error) { return v.GetPhysicalGift(ctx, clientID, id) })
}

func (m *Store) CreateRaffleParticipation(ctx context.Context, p loyalty.RaffleParticipation) error {
	return lockedErr(m, func(v *view) error { return v.CreateRaffleParticipation(ctx, p) })
}

func (m *Store) UpdateRaffleParticipation(ctx context.Context, p loyalty.RaffleParticipation) error {
	return lockedErr(m, func(v *view) error { return v.UpdateRaffleParticipation(ctx, p) })
}

func (m *Store) ListRaffleParticipations(ctx context.Context, clientID loyalty.ClientID, missionID loyalty.MissionID) ([]loyalty.RaffleParticipation, error) {
	return locked(m, func(v *view) ([]loyalty.RaffleParticipation, error) {
		return v.ListRaffleParticipations(ctx, clientID, missionID)
	})
}

func (m *Store) ListUserRaffleParticipations(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID) ([]loyalty.RaffleParticipation, error) {
	return locked(m, func(v *view) ([]loyalty.RaffleParticipation, error) {
		return v.ListUserRaffleParticipations(ctx, clientID, userID)
	})
}

func (m *Store) UpsertVideo(ctx context.Context, vd loyalty.Video) error {
	return lockedErr(m, func(v *view) error { return v.UpsertVideo(ctx, vd) })
}

func (m *Store) ListVideos(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID) ([]loyalty.Video, error) {
	return locked(m, func(v *view) ([]loyalty.Video, error) { return v.ListVideos(ctx, clientID, userID) })
}

func (m *Store) CreateSalesAdjustment(ctx context.Context, a loyalty.SalesAdjustment) error {
	return lockedErr(m, func(v *view) error { return v.CreateSalesAdjustment(ctx, a) })
}

func (m *Store) ListSalesAdjustments(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID) ([]loyalty.SalesAdjustment, error) {
	return locked(m, func(v *view) ([]loyalty.SalesAdjustment, error) { return v.ListSalesAdjustments(ctx, clientID, userID) })
}

func (m *Store) SaveSyncRun(ctx context.Context, r loyalty.SyncRun) error {
	return lockedErr(m, func(v *view) error { return v.SaveSyncRun(ctx, r) })
}

func (m *Store) ListSyncRuns(ctx context.Context, clientID loyalty.ClientID) ([]loyalty.SyncRun, error) {
	return locked(m, func(v *view) ([]loyalty.SyncRun, error) { return v.ListSyncRuns(ctx, clientID) })
}

// =============================================================================
// VIEW - lock-free operations on a state; the caller holds the lock
// =============================================================================

type view struct {
	s *state
}

var _ loyalty.Store = (*view)(nil)

func ptr[T any](v T, ok bool) *T {
	if !ok {
		return nil
	}
	return &v
}

func (v *view) GetClient(_ context.Context, id loyalty.ClientID) (*loyalty.Client, error) {
	c, ok := v.s.clients[id]
	return ptr(c, ok), nil
}

func (v *view) ListClients(_ context.Context) ([]loyalty.Client, error) {
	out := make([]loyalty.Client, 0, len(v.s.clients))
	for _, c := range v.s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) SaveClient(_ context.Context, c loyalty.Client) error {
	v.s.clients[c.ID] = c
	return nil
}

func (v *view) ListTiers(_ context.Context, clientID loyalty.ClientID) ([]loyalty.Tier, error) {
	var out []loyalty.Tier
	for k, t := range v.s.tiers {
		if k.ClientID == clientID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (v *view) SaveTier(_ context.Context, t loyalty.Tier) error {
	v.s.tiers[tenantKey{t.ClientID, string(t.ID)}] = t
	return nil
}

func (v *view) GetMission(_ context.Context, clientID loyalty.ClientID, id loyalty.MissionID) (*loyalty.Mission, error) {
	m, ok := v.s.missions[tenantKey{clientID, string(id)}]
	return ptr(m, ok), nil
}

func (v *view) ListMissions(_ context.Context, clientID loyalty.ClientID) ([]loyalty.Mission, error) {
	var out []loyalty.Mission
	for k, m := range v.s.missions {
		if k.ClientID == clientID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) SaveMission(_ context.Context, m loyalty.Mission) error {
	v.s.missions[tenantKey{m.ClientID, string(m.ID)}] = m
	return nil
}

func (v *view) GetReward(_ context.Context, clientID loyalty.ClientID, id loyalty.RewardID) (*loyalty.Reward, error) {
	r, ok := v.s.rewards[tenantKey{clientID, string(id)}]
	return ptr(r, ok), nil
}

func (v *view) ListRewards(_ context.Context, clientID loyalty.ClientID) ([]loyalty.Reward, error) {
	var out []loyalty.Reward
	for k, r := range v.s.rewards {
		if k.ClientID == clientID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) SaveReward(_ context.Context, r loyalty.Reward) error {
	v.s.rewards[tenantKey{r.ClientID, string(r.ID)}] = r
	return nil
}

func (v *view) GetUser(_ context.Context, clientID loyalty.ClientID, id loyalty.UserID) (*loyalty.User, error) {
	u, ok := v.s.users[tenantKey{clientID, string(id)}]
	return ptr(u, ok), nil
}

func (v *view) GetUserByHandle(_ context.Context, clientID loyalty.ClientID, handle string) (*loyalty.User, error) {
	for k, u := range v.s.users {
		if k.ClientID == clientID && strings.EqualFold(u.Handle, handle) {
			return &u, nil
		}
	}
	return nil, nil
}

func (v *view) ListUsers(_ context.Context, clientID loyalty.ClientID) ([]loyalty.User, error) {
	var out []loyalty.User
	for k, u := range v.s.users {
		if k.ClientID == clientID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, nil
}

func (v *view) SaveUser(_ context.Context, u loyalty.User) error {
	v.s.users[tenantKey{u.ClientID, string(u.ID)}] = u
	return nil
}

func (v *view) GetProgress(_ context.Context, clientID loyalty.ClientID, userID loyalty.UserID, missionID loyalty.MissionID, start time.Time) (*loyalty.MissionProgress, error) {
	p, ok := v.s.progress[progressKey{clientID, userID, missionID, start.UnixNano()}]
	return ptr(p, ok), nil
}

func (v *view) ListProgress(_ context.Context, clientID loyalty.ClientID, userID loyalty.UserID) ([]loyalty.MissionProgress, error) {
	var out []loyalty.MissionProgress
	for k, p := range v.s.progress {
		if k.ClientID == clientID && k.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CheckpointStart.Equal(out[j].CheckpointStart) {
			return out[i].CheckpointStart.Before(out[j].CheckpointStart)
		}
		return out[i].MissionID < out[j].MissionID
	})
	return out, nil
}

func (v *view) SaveProgress(_ context.Context, p loyalty.MissionProgress) error {
	v.s.progress[progressKey{p.ClientID, p.UserID, p.MissionID, p.CheckpointStart.UnixNano()}] = p
	return nil
}

func (v *view) conflictingClaim(r loyalty.Redemption) bool {
	for _, existing := range v.s.redemptions {
		if existing.ID == r.ID {
			continue
		}
		if existing.ClientID == r.ClientID && existing.UserID == r.UserID &&
			existing.ClaimKey == r.ClaimKey && existing.IsActive() {
			return true
		}
	}
	return false
}

func (v *view) CreateRedemption(_ context.Context, r loyalty.Redemption) error {
	if _, exists := v.s.redemptions[tenantKey{r.ClientID, string(r.ID)}]; exists {
		return loyalty.ErrDuplicateClaim
	}
	if r.IsActive() && v.conflictingClaim(r) {
		return loyalty.ErrDuplicateClaim
	}
	v.s.redemptions[tenantKey{r.ClientID, string(r.ID)}] = r
	return nil
}

func (v *view) UpdateRedemption(_ context.Context, r loyalty.Redemption) error {
	k := tenantKey{r.ClientID, string(r.ID)}
	if _, ok := v.s.redemptions[k]; !ok {
		return loyalty.NotFound("redemption", r.ID)
	}
	if r.IsActive() && v.conflictingClaim(r) {
		return loyalty.ErrDuplicateClaim
	}
	v.s.redemptions[k] = r
	return nil
}

func (v *view) GetRedemption(_ context.Context, clientID loyalty.ClientID, id loyalty.RedemptionID) (*loyalty.Redemption, error) {
	r, ok := v.s.redemptions[tenantKey{clientID, string(id)}]
	return ptr(r, ok), nil
}

func sortRedemptions(out []loyalty.Redemption) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
}

func (v *view) ListRedemptions(_ context.Context, clientID loyalty.ClientID, userID loyalty.UserID) ([]loyalty.Redemption, error) {
	var out []loyalty.Redemption
	for _, r := range v.s.redemptions {
		if r.ClientID == clientID && r.UserID == userID {
			out = append(out, r)
		}
	}
	sortRedemptions(out)
	return out, nil
}

func (v *view) ListRedemptionsByStatus(_ context.Context, clientID loyalty.ClientID, status loyalty.RedemptionStatus) ([]loyalty.Redemption, error) {
	var out []loyalty.Redemption
	for _, r := range v.s.redemptions {
		if r.ClientID == clientID && r.Status == status {
			out = append(out, r)
		}
	}
	sortRedemptions(out)
	return out, nil
}

func (v *view) CreateCommissionBoost(_ context.Context, b loyalty.CommissionBoost) error {
	k := tenantKey{b.ClientID, string(b.RedemptionID)}
	if _, exists := v.s.boosts[k]; exists {
		return loyalty.Conflict(loyalty.CodeAlreadyClaimed, nil, "boost for %s exists", b.RedemptionID)
	}
	v.s.boosts[k] = b
	return nil
}

func (v *view) UpdateCommissionBoost(_ context.Context, b loyalty.CommissionBoost) error {
	k := tenantKey{b.ClientID, string(b.RedemptionID)}
	if _, ok := v.s.boosts[k]; !ok {
		return loyalty.NotFound("commission boost", b.RedemptionID)
	}
	v.s.boosts[k] = b
	return nil
}

func (v *view) GetCommissionBoost(_ context.Context, clientID loyalty.ClientID, id loyalty.RedemptionID) (*loyalty.CommissionBoost, error) {
	b, ok := v.s.boosts[tenantKey{clientID, string(id)}]
	return ptr(b, ok), nil
}

func (v *view) ListCommissionBoosts(_ context.Context, clientID loyalty.ClientID, status loyalty.BoostStatus) ([]loyalty.CommissionBoost, error) {
	var out []loyalty.CommissionBoost
	for k, b := range v.s.boosts {
		if k.ClientID == clientID && b.BoostStatus == status {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RedemptionID < out[j].RedemptionID })
	return out, nil
}

func (v *view) CreatePhysicalGift(_ context.Context, g loyalty.PhysicalGift) error {
	k := tenantKey{g.ClientID, string(g.RedemptionID)}
	if _, exists := v.s.gifts[k]; exists {
		return loyalty.Conflict(loyalty.CodeAlreadyClaimed, nil, "physical gift for %s exists", g.RedemptionID)
	}
	v.s.gifts[k] = g
	return nil
}

func (v *view) UpdatePhysicalGift(_ context.Context, g loyalty.PhysicalGift) error {
	k := tenantKey{g.ClientID, string(g.RedemptionID)}
	if _, ok := v.s.gifts[k]; !ok {
		return loyalty.NotFound("physical gift", g.RedemptionID)
	}
	v.s.gifts[k] = g
	return nil
}

func (v *view) GetPhysicalGift(_ context.Context, clientID loyalty.ClientID, id loyalty.RedemptionID) (*loyalty.PhysicalGift, error) {
	g, ok := v.s.gifts[tenantKey{clientID, string(id)}]
	return ptr(g, ok), nil
}

func (v *view) CreateRaffleParticipation(_ context.Context, p loyalty.RaffleParticipation) error {
	k := raffleKey{p.ClientID, p.MissionID, p.UserID}
	if _, exists := v.s.raffles[k]; exists {
		return loyalty.ErrDuplicateEntry
	}
	v.s.raffles[k] = p
	return nil
}

func (v *view) UpdateRaffleParticipation(_ context.Context, p loyalty.RaffleParticipation) error {
	k := raffleKey{p.ClientID, p.MissionID, p.UserID}
	existing, ok := v.s.raffles[k]
	if !ok {
		return loyalty.NotFound("raffle participation", p.ID)
	}
	if !existing.IsPending() {
		return loyalty.ErrWinnerAlreadySelected
	}
	v.s.raffles[k] = p
	return nil
}

func sortParticipations(out []loyalty.RaffleParticipation) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ParticipatedAt.Equal(out[j].ParticipatedAt) {
			return out[i].ParticipatedAt.Before(out[j].ParticipatedAt)
		}
		return out[i].ID < out[j].ID
	})
}

func (v *view) ListRaffleParticipations(_ context.Context, clientID loyalty.ClientID, missionID loyalty.MissionID) ([]loyalty.RaffleParticipation, error) {
	var out []loyalty.RaffleParticipation
	for k, p := range v.s.raffles {
		if k.ClientID == clientID && k.MissionID == missionID {
			out = append(out, p)
		}
	}
	sortParticipations(out)
	return out, nil
}

func (v *view) ListUserRaffleParticipations(_ context.Context, clientID loyalty.ClientID, userID loyalty.UserID) ([]loyalty.RaffleParticipation, error) {
	var out []loyalty.RaffleParticipation
	for k, p := range v.s.raffles {
		if k.ClientID == clientID && k.UserID == userID {
			out = append(out, p)
		}
	}
	sortParticipations(out)
	return out, nil
}

func (v *view) UpsertVideo(_ context.Context, vd loyalty.Video) error {
	k := tenantKey{vd.ClientID, vd.URL}
	if existing, ok := v.s.videos[k]; ok {
		vd.ID = existing.ID
	}
	v.s.videos[k] = vd
	return nil
}

func (v *view) ListVideos(_ context.Context, clientID loyalty.ClientID, userID loyalty.UserID) ([]loyalty.Video, error) {
	var out []loyalty.Video
	for k, vd := range v.s.videos {
		if k.ClientID == clientID && vd.UserID == userID {
			out = append(out, vd)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PostDate.Equal(out[j].PostDate) {
			return out[i].PostDate.Before(out[j].PostDate)
		}
		return out[i].URL < out[j].URL
	})
	return out, nil
}

func (v *view) CreateSalesAdjustment(_ context.Context, a loyalty.SalesAdjustment) error {
	v.s.adjustments = append(v.s.adjustments, a)
	return nil
}

func (v *view) ListSalesAdjustments(_ context.Context, clientID loyalty.ClientID, userID loyalty.UserID) ([]loyalty.SalesAdjustment, error) {
	var out []loyalty.SalesAdjustment
	for _, a := range v.s.adjustments {
		if a.ClientID == clientID && a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (v *view) SaveSyncRun(_ context.Context, r loyalty.SyncRun) error {
	r.Errors = slices.Clone(r.Errors)
	v.s.syncRuns[tenantKey{r.ClientID, r.ID}] = r
	return nil
}

func (v *view) ListSyncRuns(_ context.Context, clientID loyalty.ClientID) ([]loyalty.SyncRun, error) {
	var out []loyalty.SyncRun
	for k, r := range v.s.syncRuns {
		if k.ClientID == clientID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}
