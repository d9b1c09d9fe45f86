package loyalty

import (
	"context"
	"time"
)

// Member is one creator's loaded state at a point in time: the tenant and
// tier ladder, the catalog, and every record the resolver reads.
// Load it through the Store handed to WithTx when the caller will write.
type Member struct {
	Client Client
	User   User
	Ladder Ladder
	Window Window
	Now    time.Time

	Missions    []Mission
	Rewards     map[RewardID]Reward
	Redemptions []Redemption

	// Progress holds the current window's rows only.
	Progress map[MissionID]MissionProgress
	Boosts   map[RedemptionID]CommissionBoost
	Entries  map[MissionID]RaffleParticipation

	// earlier holds, per mission, the latest non-terminal redemption
	// claimed from a previous window's progress.
	earlier       map[MissionID]earlierClaim
	redemptionIdx map[RedemptionID]int
}

type earlierClaim struct {
	progress   MissionProgress
	redemption int
}

// LoadMember reads everything needed to resolve the user's missions and
// rewards. A missing client or user is a NotFoundError.
func LoadMember(ctx context.Context, s Store, clientID ClientID, userID UserID, now time.Time) (*Member, error) {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		return nil, Internal("get client", err)
	}
	if client == nil {
		return nil, NotFound("client", clientID)
	}
	user, err := s.GetUser(ctx, clientID, userID)
	if err != nil {
		return nil, Internal("get user", err)
	}
	if user == nil {
		return nil, NotFound("user", userID)
	}

	tiers, err := s.ListTiers(ctx, clientID)
	if err != nil {
		return nil, Internal("list tiers", err)
	}
	missions, err := s.ListMissions(ctx, clientID)
	if err != nil {
		return nil, Internal("list missions", err)
	}
	rewards, err := s.ListRewards(ctx, clientID)
	if err != nil {
		return nil, Internal("list rewards", err)
	}
	progress, err := s.ListProgress(ctx, clientID, userID)
	if err != nil {
		return nil, Internal("list progress", err)
	}
	redemptions, err := s.ListRedemptions(ctx, clientID, userID)
	if err != nil {
		return nil, Internal("list redemptions", err)
	}
	entries, err := s.ListUserRaffleParticipations(ctx, clientID, userID)
	if err != nil {
		return nil, Internal("list raffle entries", err)
	}

	m := &Member{
		Client:        *client,
		User:          *user,
		Ladder:        NewLadder(tiers),
		Window:        CheckpointWindow(*client, *user, now),
		Now:           now,
		Missions:      missions,
		Rewards:       make(map[RewardID]Reward, len(rewards)),
		Redemptions:   redemptions,
		Progress:      make(map[MissionID]MissionProgress),
		Boosts:        make(map[RedemptionID]CommissionBoost),
		Entries:       make(map[MissionID]RaffleParticipation, len(entries)),
		earlier:       make(map[MissionID]earlierClaim),
		redemptionIdx: make(map[RedemptionID]int, len(redemptions)),
	}
	for _, r := range rewards {
		m.Rewards[r.ID] = r
	}
	past := make(map[ProgressID]MissionProgress)
	for _, p := range progress {
		if p.CheckpointStart.Equal(m.Window.Start) {
			m.Progress[p.MissionID] = p
		} else {
			past[p.ID] = p
		}
	}
	for _, e := range entries {
		m.Entries[e.MissionID] = e
	}
	for i, r := range redemptions {
		m.redemptionIdx[r.ID] = i
		if p, ok := past[r.ProgressID]; ok && r.IsActive() {
			if prev, ok := m.earlier[r.MissionID]; !ok || !r.CreatedAt.Before(redemptions[prev.redemption].CreatedAt) {
				m.earlier[r.MissionID] = earlierClaim{progress: p, redemption: i}
			}
		}
		if reward, ok := m.Rewards[r.RewardID]; !ok || reward.Type != RewardCommissionBoost {
			continue
		}
		b, err := s.GetCommissionBoost(ctx, clientID, r.ID)
		if err != nil {
			return nil, Internal("get commission boost", err)
		}
		if b != nil {
			m.Boosts[r.ID] = *b
		}
	}
	return m, nil
}

// Redemption returns the user's redemption by id.
func (m *Member) Redemption(id RedemptionID) *Redemption {
	i, ok := m.redemptionIdx[id]
	if !ok {
		return nil
	}
	r := m.Redemptions[i]
	return &r
}

// Reward returns the reward by id.
func (m *Member) Reward(id RewardID) *Reward {
	r, ok := m.Rewards[id]
	if !ok {
		return nil
	}
	return &r
}

// MissionInput gathers the resolver input for one mission.
func (m *Member) MissionInput(mission Mission, history bool) ResolveInput {
	in := ResolveInput{
		Mission:  mission,
		Reward:   m.Reward(mission.RewardID),
		UserTier: m.User.CurrentTierID,
		Ladder:   m.Ladder,
		Now:      m.Now,
		History:  history,
	}

	if mission.IsRaffle() {
		if e, ok := m.Entries[mission.ID]; ok {
			in.Participation = &e
			in.Redemption = m.Redemption(e.RedemptionID)
		}
	} else {
		if p, ok := m.Progress[mission.ID]; ok {
			in.Progress = &p
			if p.RedemptionID != "" {
				in.Redemption = m.Redemption(p.RedemptionID)
			}
		}
		// A claim from an earlier window stays on the card until it
		// settles, unless this window's row can be claimed on its own.
		if e, ok := m.earlier[mission.ID]; ok && in.Redemption == nil && !m.claimableAgain(in) {
			p, r := e.progress, m.Redemptions[e.redemption]
			in.Progress, in.Redemption = &p, &r
		}
	}

	if in.Redemption != nil {
		if b, ok := m.Boosts[in.Redemption.ID]; ok {
			in.Boost = &b
		}
	}
	return in
}

// claimableAgain reports whether the current window's completed row can
// open a new redemption while an earlier one is outstanding. Only rewards
// keyed per window allow that.
func (m *Member) claimableAgain(in ResolveInput) bool {
	if in.Progress == nil || !in.Progress.IsCompleted() || in.Reward == nil {
		return false
	}
	return m.ActiveRewardClaim(*in.Reward) == nil
}

// ResolveMission resolves one mission against the member's state.
func (m *Member) ResolveMission(mission Mission) (ResolveInput, Resolution) {
	in := m.MissionInput(mission, false)
	return in, Resolve(in)
}

// TierQualified reports whether the user's tier counts for VIP rewards in
// the current window: the tier is checkpoint exempt, the client has no
// checkpoints, or the tier was (re)achieved inside this window. A user who
// never moved tiers achieved the entry tier at enrollment.
func (m *Member) TierQualified() bool {
	if m.Window.Start.IsZero() && m.Window.IsUnbounded() {
		return true
	}
	if t, ok := m.Ladder.Get(m.User.CurrentTierID); ok && t.CheckpointExempt {
		return true
	}
	achieved := m.User.CreatedAt
	if m.User.TierAchievedAt != nil {
		achieved = *m.User.TierAchievedAt
	}
	return m.Window.Contains(achieved)
}

// ActiveRewardClaim returns the non-terminal redemption holding reward's
// claim key in the current window.
func (m *Member) ActiveRewardClaim(reward Reward) *Redemption {
	key := ClaimKey(reward, m.Window)
	for i := range m.Redemptions {
		r := m.Redemptions[i]
		if r.ClaimKey == key && r.IsActive() {
			return &r
		}
	}
	return nil
}

// UsedCount counts the user's non-rejected redemptions of a VIP tier
// reward: all time for one_time, per window for recurring.
func (m *Member) UsedCount(reward Reward) int {
	n := 0
	for _, r := range m.Redemptions {
		if r.RewardID != reward.ID || r.MissionID != "" || r.Status == RedemptionRejected {
			continue
		}
		if reward.Frequency == FrequencyRecurring && !m.Window.Contains(r.CreatedAt) {
			continue
		}
		n++
	}
	return n
}

// LimitReached reports whether reward has no uses left for the user.
func (m *Member) LimitReached(reward Reward) bool {
	limit := reward.Limit()
	return limit > 0 && m.UsedCount(reward) >= limit
}
