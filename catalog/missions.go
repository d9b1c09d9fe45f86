/*
Package catalog assembles what a creator sees: mission and reward listings,
their history, and the dashboard summary.

PURPOSE:

	Reads a loyalty.Member, runs the status resolver over every mission and
	VIP reward, and produces sorted views with display strings attached.
	The only write it performs is the congrats acknowledgement, which moves
	User.LastLoginAt inside the same transaction as the read.

KEY CONCEPTS:

	Priority:  The index of a mission after sorting by (Score, DisplayOrder,
	           ID). Priority 0 is the featured mission when featurable.

	Congrats:  Shown once for the latest mission redemption that became
	           fulfilled or concluded after the user's last acknowledged
	           login.

SEE ALSO:
  - loyalty/status.go: resolver and Score
  - format.go: display strings
*/
package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/creator-rewards/loyalty"
)

// Service builds creator-facing listings.
type Service struct {
	Store  loyalty.TxStore
	Logger *zap.Logger
	Now    func() time.Time
}

// NewService returns a Service reading from store.
func NewService(store loyalty.TxStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Store: store, Logger: logger.Named("catalog"), Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// =============================================================================
// VIEWS
// =============================================================================

// MissionView is one mission card.
type MissionView struct {
	ID          loyalty.MissionID   `json:"id"`
	Type        loyalty.MissionType `json:"missionType"`
	DisplayName string              `json:"displayName"`
	Title       string              `json:"title"`
	Status      loyalty.Status      `json:"status"`
	Priority    int                 `json:"priority"`

	CurrentValue    decimal.Decimal `json:"currentValue"`
	TargetValue     decimal.Decimal `json:"targetValue"`
	AmountNeeded    decimal.Decimal `json:"amountNeeded"`
	ProgressPercent int             `json:"progressPercentage"`
	ProgressText    string          `json:"progressText"`
	RemainingText   string          `json:"remainingText"`

	DaysRemaining     *int   `json:"daysRemaining,omitempty"`
	DaysRemainingText string `json:"daysRemainingText,omitempty"`

	RewardID          loyalty.RewardID   `json:"rewardId"`
	RewardType        loyalty.RewardType `json:"rewardType,omitempty"`
	RewardName        string             `json:"rewardName"`
	RewardDescription string             `json:"rewardDescription"`

	Locked     bool   `json:"isLocked"`
	LockedText string `json:"unlockText,omitempty"`

	RaffleEndDate         *time.Time           `json:"raffleEndDate,omitempty"`
	RedemptionID          loyalty.RedemptionID `json:"redemptionId,omitempty"`
	ScheduledActivationAt *time.Time           `json:"scheduledActivationAt,omitempty"`
	ActivationDate        *time.Time           `json:"activationDate,omitempty"`
	ExpirationDate        *time.Time           `json:"expirationDate,omitempty"`
	BoostStatus           loyalty.BoostStatus  `json:"boostStatus,omitempty"`
}

// MissionList is the response of ListAvailableMissions.
type MissionList struct {
	Missions          []MissionView     `json:"missions"`
	FeaturedMissionID loyalty.MissionID `json:"featuredMissionId,omitempty"`
	ShowCongratsModal bool              `json:"showCongratsModal"`
	CongratsMessage   string            `json:"congratsMessage,omitempty"`
}

// MissionHistoryItem is one finished mission.
type MissionHistoryItem struct {
	MissionID    loyalty.MissionID    `json:"missionId"`
	Type         loyalty.MissionType  `json:"missionType"`
	DisplayName  string               `json:"displayName"`
	Title        string               `json:"title"`
	Status       loyalty.Status       `json:"status"`
	RewardID     loyalty.RewardID     `json:"rewardId"`
	RewardName   string               `json:"rewardName"`
	RedemptionID loyalty.RedemptionID `json:"redemptionId,omitempty"`
	ClaimedAt    *time.Time           `json:"claimedAt,omitempty"`
	ConcludedAt  *time.Time           `json:"concludedAt,omitempty"`
}

// =============================================================================
// LIST AVAILABLE MISSIONS
// =============================================================================

// ListAvailableMissions returns the user's actionable and upcoming missions
// in priority order, plus the featured mission and the congrats modal.
func (s *Service) ListAvailableMissions(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID) (*MissionList, error) {
	var out *MissionList
	err := s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		m, err := loyalty.LoadMember(ctx, tx, clientID, userID, s.now())
		if err != nil {
			return err
		}
		out = buildMissionList(m)
		out.ShowCongratsModal, out.CongratsMessage, err = acknowledgeCongrats(ctx, tx, m)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func buildMissionList(m *loyalty.Member) *MissionList {
	ranked := make([]loyalty.Ranked, 0, len(m.Missions))
	inputs := make(map[loyalty.MissionID]loyalty.ResolveInput, len(m.Missions))
	for _, mission := range m.Missions {
		in, res := m.ResolveMission(mission)
		if res.Status == loyalty.StatusNotEligible || res.Status.IsHistory() {
			continue
		}
		inputs[mission.ID] = in
		ranked = append(ranked, loyalty.Ranked{Mission: mission, Resolution: res})
	}
	loyalty.SortRanked(ranked)

	list := &MissionList{Missions: make([]MissionView, 0, len(ranked))}
	if featured, ok := loyalty.SelectFeatured(ranked); ok {
		list.FeaturedMissionID = featured.Mission.ID
	}
	for i, r := range ranked {
		v := missionView(m, inputs[r.Mission.ID], r.Resolution)
		v.Priority = i
		list.Missions = append(list.Missions, v)
	}
	return list
}

func missionView(m *loyalty.Member, in loyalty.ResolveInput, res loyalty.Resolution) MissionView {
	mission := in.Mission
	v := MissionView{
		ID:              mission.ID,
		Type:            mission.Type,
		DisplayName:     MissionDisplayName(mission.Type),
		Title:           mission.Title,
		Status:          res.Status,
		TargetValue:     mission.TargetValue,
		CurrentValue:    decimal.Zero,
		ProgressPercent: wholePercent(res.Progress),
		RewardID:        mission.RewardID,
		RaffleEndDate:   mission.RaffleEndDate,
	}

	if in.Reward != nil {
		v.RewardType = in.Reward.Type
		v.RewardName = RewardName(*in.Reward)
		v.RewardDescription = RewardDescription(*in.Reward)
	}

	if !mission.IsRaffle() {
		if in.Progress != nil {
			v.CurrentValue = in.Progress.CurrentValue
		}
		v.AmountNeeded = decimal.Max(mission.TargetValue.Sub(v.CurrentValue), decimal.Zero)
		v.ProgressText, v.RemainingText = ProgressText(mission.Type, v.CurrentValue, mission.TargetValue)
		if days, ok := m.Window.DaysRemaining(m.Now); ok {
			v.DaysRemaining = &days
			v.DaysRemainingText = DaysRemainingText(days)
		}
	} else if mission.RaffleEndDate != nil && mission.RaffleEndDate.After(m.Now) {
		days, _ := loyalty.Window{Start: m.Now, End: *mission.RaffleEndDate}.DaysRemaining(m.Now)
		v.DaysRemaining = &days
		v.DaysRemainingText = DaysRemainingText(days)
	}

	if res.Status == loyalty.StatusLockedPreview {
		v.Locked = true
		if t, ok := m.Ladder.Get(mission.Eligibility.TierID); ok && !m.Ladder.Allows(m.User.CurrentTierID, mission.Eligibility) {
			v.LockedText = LockedText(t.Name)
		}
	}

	if r := in.Redemption; r != nil {
		v.RedemptionID = r.ID
		v.ScheduledActivationAt = r.ScheduledActivationAt
		v.ActivationDate = r.ActivationDate
		v.ExpirationDate = r.ExpirationDate
	}
	if in.Boost != nil {
		v.BoostStatus = in.Boost.BoostStatus
		v.ActivationDate = in.Boost.ActivatedAt
		v.ExpirationDate = in.Boost.ExpiresAt
	}
	return v
}

// =============================================================================
// MISSION HISTORY
// =============================================================================

// GetMissionHistory lists concluded mission redemptions and finished raffles
// the user lost or missed, newest first.
func (s *Service) GetMissionHistory(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID) ([]MissionHistoryItem, error) {
	m, err := loyalty.LoadMember(ctx, s.Store, clientID, userID, s.now())
	if err != nil {
		return nil, err
	}

	missions := make(map[loyalty.MissionID]loyalty.Mission, len(m.Missions))
	for _, mission := range m.Missions {
		missions[mission.ID] = mission
	}

	var items []MissionHistoryItem
	for _, r := range m.Redemptions {
		if r.MissionID == "" || r.Status != loyalty.RedemptionConcluded {
			continue
		}
		mission, ok := missions[r.MissionID]
		if !ok {
			continue
		}
		item := historyItem(m, mission, loyalty.StatusConcluded)
		item.RedemptionID = r.ID
		item.ClaimedAt = r.ClaimedAt
		item.ConcludedAt = r.ConcludedAt
		items = append(items, item)
	}

	for _, mission := range m.Missions {
		if !mission.IsRaffle() {
			continue
		}
		in := m.MissionInput(mission, true)
		if in.Participation == nil {
			// Missed raffles only count for users who could have entered.
			in.History = false
		}
		res := loyalty.Resolve(in)
		switch res.Status {
		case loyalty.StatusRaffleLost:
			item := historyItem(m, mission, res.Status)
			item.ClaimedAt = &in.Participation.ParticipatedAt
			item.ConcludedAt = in.Participation.WinnerSelectedAt
			items = append(items, item)
		case loyalty.StatusRaffleMissed:
			item := historyItem(m, mission, res.Status)
			item.ConcludedAt = mission.RaffleEndDate
			items = append(items, item)
		}
	}

	sortHistory(items, func(i int) (*time.Time, string) {
		return items[i].ConcludedAt, string(items[i].MissionID) + string(items[i].RedemptionID)
	})
	return items, nil
}

func historyItem(m *loyalty.Member, mission loyalty.Mission, status loyalty.Status) MissionHistoryItem {
	item := MissionHistoryItem{
		MissionID:   mission.ID,
		Type:        mission.Type,
		DisplayName: MissionDisplayName(mission.Type),
		Title:       mission.Title,
		Status:      status,
		RewardID:    mission.RewardID,
	}
	if reward := m.Reward(mission.RewardID); reward != nil {
		item.RewardName = RewardName(*reward)
	}
	return item
}

// sortHistory orders items newest first; undated items sort last.
func sortHistory[T any](items []T, key func(i int) (*time.Time, string)) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, idi := key(i)
		tj, idj := key(j)
		switch {
		case ti == nil && tj == nil:
			return idi < idj
		case ti == nil:
			return false
		case tj == nil:
			return true
		case !ti.Equal(*tj):
			return ti.After(*tj)
		default:
			return idi < idj
		}
	})
}
