package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/warp/creator-rewards/loyalty"
)

// =============================================================================
// REWARD STATUS
// =============================================================================

// RewardStatus is the resolved state of a VIP tier reward for one user.
type RewardStatus string

const (
	RewardPendingPaymentInfo RewardStatus = "pending_payment_info"
	RewardAvailable          RewardStatus = "available"
	RewardScheduled          RewardStatus = "scheduled"
	RewardActivated          RewardStatus = "activated"
	RewardClaimed            RewardStatus = "claimed"
	RewardFulfilled          RewardStatus = "fulfilled"
	RewardLimitReached       RewardStatus = "limit_reached"
	RewardLockedPreview      RewardStatus = "locked_preview"
)

var rewardStatusRank = map[RewardStatus]int{
	RewardPendingPaymentInfo: 0,
	RewardAvailable:          1,
	RewardScheduled:          2,
	RewardActivated:          3,
	RewardClaimed:            4,
	RewardFulfilled:          5,
	RewardLimitReached:       6,
	RewardLockedPreview:      7,
}

// RewardView is one VIP reward card.
type RewardView struct {
	ID            loyalty.RewardID            `json:"id"`
	Type          loyalty.RewardType          `json:"type"`
	Name          string                      `json:"name"`
	DisplayText   string                      `json:"displayText"`
	Description   string                      `json:"description,omitempty"`
	Status        RewardStatus                `json:"status"`
	Frequency     loyalty.RedemptionFrequency `json:"redemptionFrequency"`
	UsedCount     int                         `json:"usedCount"`
	TotalQuantity int                         `json:"totalQuantity"`
	DisplayOrder  int                         `json:"displayOrder"`

	Locked     bool   `json:"isLocked"`
	LockedText string `json:"unlockText,omitempty"`

	RequiresSize bool     `json:"requiresSize,omitempty"`
	SizeOptions  []string `json:"sizeOptions,omitempty"`

	RedemptionID          loyalty.RedemptionID `json:"redemptionId,omitempty"`
	ScheduledActivationAt *time.Time           `json:"scheduledActivationAt,omitempty"`
	ActivationDate        *time.Time           `json:"activationDate,omitempty"`
	ExpirationDate        *time.Time           `json:"expirationDate,omitempty"`
	BoostStatus           loyalty.BoostStatus  `json:"boostStatus,omitempty"`
}

// RewardList is the response of ListAvailableRewards.
type RewardList struct {
	TierID   loyalty.TierID `json:"currentTier"`
	TierName string         `json:"currentTierName"`
	Rewards  []RewardView   `json:"rewards"`
}

// RewardHistoryItem is one concluded redemption.
type RewardHistoryItem struct {
	RedemptionID loyalty.RedemptionID `json:"id"`
	RewardID     loyalty.RewardID     `json:"rewardId"`
	Type         loyalty.RewardType   `json:"type"`
	Name         string               `json:"name"`
	Description  string               `json:"description"`
	Source       loyalty.RewardSource `json:"rewardSource"`
	ClaimedAt    *time.Time           `json:"claimedAt,omitempty"`
	ConcludedAt  *time.Time           `json:"concludedAt,omitempty"`
}

// =============================================================================
// LIST AVAILABLE REWARDS
// =============================================================================

// ListAvailableRewards returns the VIP tier rewards the user can see, sorted
// by status rank, then DisplayOrder, then ID.
func (s *Service) ListAvailableRewards(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID) (*RewardList, error) {
	m, err := loyalty.LoadMember(ctx, s.Store, clientID, userID, s.now())
	if err != nil {
		return nil, err
	}

	list := &RewardList{TierID: m.User.CurrentTierID, Rewards: []RewardView{}}
	if t, ok := m.Ladder.Get(m.User.CurrentTierID); ok {
		list.TierName = t.Name
	}

	for _, reward := range m.Rewards {
		if reward.Source != loyalty.SourceVIPTier || !reward.Enabled {
			continue
		}
		vis := m.Ladder.Visibility(m.User.CurrentTierID, reward.Eligibility, reward.PreviewFromTier)
		if vis == loyalty.Hidden {
			continue
		}
		list.Rewards = append(list.Rewards, rewardView(m, reward, vis))
	}

	sort.SliceStable(list.Rewards, func(i, j int) bool {
		a, b := list.Rewards[i], list.Rewards[j]
		if ra, rb := rewardStatusRank[a.Status], rewardStatusRank[b.Status]; ra != rb {
			return ra < rb
		}
		if a.DisplayOrder != b.DisplayOrder {
			return a.DisplayOrder < b.DisplayOrder
		}
		return a.ID < b.ID
	})
	return list, nil
}

func rewardView(m *loyalty.Member, reward loyalty.Reward, vis loyalty.Visibility) RewardView {
	v := RewardView{
		ID:            reward.ID,
		Type:          reward.Type,
		Name:          RewardName(reward),
		DisplayText:   RewardDisplayText(reward),
		Description:   reward.Description,
		Frequency:     reward.Frequency,
		UsedCount:     m.UsedCount(reward),
		TotalQuantity: reward.Limit(),
		DisplayOrder:  reward.DisplayOrder,
	}
	if pg, ok := reward.Value.(loyalty.PhysicalGiftValue); ok {
		v.RequiresSize = pg.RequiresSize
		v.SizeOptions = pg.SizeOptions
	}

	if vis == loyalty.LockedPreview || !m.TierQualified() {
		v.Status = RewardLockedPreview
		v.Locked = true
		if t, ok := m.Ladder.Get(reward.Eligibility.TierID); ok {
			v.LockedText = LockedText(t.Name)
		}
		return v
	}

	if r := m.ActiveRewardClaim(reward); r != nil {
		v.RedemptionID = r.ID
		v.ScheduledActivationAt = r.ScheduledActivationAt
		v.ActivationDate = r.ActivationDate
		v.ExpirationDate = r.ExpirationDate
		var boost *loyalty.CommissionBoost
		if b, ok := m.Boosts[r.ID]; ok {
			boost = &b
			v.BoostStatus = b.BoostStatus
			v.ActivationDate = b.ActivatedAt
			v.ExpirationDate = b.ExpiresAt
		}
		v.Status = claimStatus(*r, boost, reward, m.Now)
		return v
	}

	if m.LimitReached(reward) {
		v.Status = RewardLimitReached
		return v
	}
	v.Status = RewardAvailable
	return v
}

// claimStatus maps an in-flight redemption and its sub-state onto a reward status.
func claimStatus(r loyalty.Redemption, boost *loyalty.CommissionBoost, reward loyalty.Reward, now time.Time) RewardStatus {
	if boost != nil {
		switch boost.BoostStatus {
		case loyalty.BoostScheduled:
			return RewardScheduled
		case loyalty.BoostActivated:
			return RewardActivated
		case loyalty.BoostExpired, loyalty.BoostPendingInfo:
			return RewardPendingPaymentInfo
		default:
			return RewardFulfilled
		}
	}

	switch r.Status {
	case loyalty.RedemptionClaimable:
		return RewardAvailable
	case loyalty.RedemptionClaimed:
		if reward.Type == loyalty.RewardDiscount {
			return RewardScheduled
		}
		return RewardClaimed
	default:
		if reward.Type == loyalty.RewardDiscount && r.ExpirationDate != nil && now.Before(*r.ExpirationDate) {
			return RewardActivated
		}
		return RewardFulfilled
	}
}

// =============================================================================
// REWARD HISTORY
// =============================================================================

// GetRewardHistory lists the user's concluded redemptions, newest first.
func (s *Service) GetRewardHistory(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID) ([]RewardHistoryItem, error) {
	m, err := loyalty.LoadMember(ctx, s.Store, clientID, userID, s.now())
	if err != nil {
		return nil, err
	}

	items := []RewardHistoryItem{}
	for _, r := range m.Redemptions {
		if r.Status != loyalty.RedemptionConcluded {
			continue
		}
		reward := m.Reward(r.RewardID)
		if reward == nil {
			continue
		}
		items = append(items, RewardHistoryItem{
			RedemptionID: r.ID,
			RewardID:     reward.ID,
			Type:         reward.Type,
			Name:         RewardName(*reward),
			Description:  RewardDisplayText(*reward),
			Source:       reward.Source,
			ClaimedAt:    r.ClaimedAt,
			ConcludedAt:  r.ConcludedAt,
		})
	}
	sortHistory(items, func(i int) (*time.Time, string) {
		return items[i].ConcludedAt, string(items[i].RedemptionID)
	})
	return items, nil
}
