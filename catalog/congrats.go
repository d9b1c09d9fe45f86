package catalog

import (
	"context"

	"github.com/warp/creator-rewards/loyalty"
)

// latestCongrats returns the most recently settled mission redemption the
// user has not been congratulated for yet.
func latestCongrats(m *loyalty.Member) *loyalty.Redemption {
	var latest *loyalty.Redemption
	for i := range m.Redemptions {
		r := &m.Redemptions[i]
		if r.MissionID == "" {
			continue
		}
		if r.Status != loyalty.RedemptionFulfilled && r.Status != loyalty.RedemptionConcluded {
			continue
		}
		at := r.SettledAt()
		if at == nil {
			continue
		}
		if m.User.LastLoginAt != nil && !at.After(*m.User.LastLoginAt) {
			continue
		}
		if latest == nil || at.After(*latest.SettledAt()) {
			latest = r
		}
	}
	return latest
}

// acknowledgeCongrats decides whether the congrats modal shows and, when it
// does, stamps LastLoginAt through tx so the next read does not show it again.
func acknowledgeCongrats(ctx context.Context, tx loyalty.Store, m *loyalty.Member) (bool, string, error) {
	r := latestCongrats(m)
	if r == nil {
		return false, "", nil
	}

	user := m.User
	now := m.Now
	user.LastLoginAt = &now
	if err := tx.SaveUser(ctx, user); err != nil {
		return false, "", loyalty.Internal("save user", err)
	}
	m.User = user
	return true, CongratsMessage(m.Reward(r.RewardID)), nil
}
