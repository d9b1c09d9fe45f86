package catalog

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/creator-rewards/loyalty"
)

// TierSummary describes one tier for display.
type TierSummary struct {
	ID    loyalty.TierID `json:"id"`
	Name  string         `json:"name"`
	Color string         `json:"color"`
	Order int            `json:"order"`
}

// Dashboard is the creator home view.
type Dashboard struct {
	Handle      string       `json:"handle"`
	CurrentTier TierSummary  `json:"currentTier"`
	NextTier    *TierSummary `json:"nextTier,omitempty"`

	Metric          loyalty.VIPMetric `json:"vipMetric"`
	CurrentValue    decimal.Decimal   `json:"currentValue"`
	TargetValue     decimal.Decimal   `json:"targetValue"`
	Remaining       decimal.Decimal   `json:"remaining"`
	ProgressPercent int               `json:"progressPercentage"`
	ProgressText    string            `json:"progressText"`

	CheckpointDaysRemaining *int   `json:"checkpointDaysRemaining,omitempty"`
	CheckpointText          string `json:"checkpointText,omitempty"`

	FeaturedMission   *MissionView `json:"featuredMission,omitempty"`
	ShowCongratsModal bool         `json:"showCongratsModal"`
	CongratsMessage   string       `json:"congratsMessage,omitempty"`
}

// Dashboard summarizes the user's tier standing and featured mission. Like
// ListAvailableMissions it acknowledges the congrats modal.
func (s *Service) Dashboard(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID) (*Dashboard, error) {
	var out *Dashboard
	err := s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		m, err := loyalty.LoadMember(ctx, tx, clientID, userID, s.now())
		if err != nil {
			return err
		}
		out = buildDashboard(m)
		out.ShowCongratsModal, out.CongratsMessage, err = acknowledgeCongrats(ctx, tx, m)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func buildDashboard(m *loyalty.Member) *Dashboard {
	tp := loyalty.VIPProgress(m.Client, m.User, m.Ladder)
	d := &Dashboard{
		Handle:          m.User.Handle,
		CurrentTier:     tierSummary(tp.CurrentTier),
		Metric:          tp.Metric,
		CurrentValue:    tp.Current,
		TargetValue:     tp.Target,
		Remaining:       tp.Remaining,
		ProgressPercent: wholePercent(tp.Percent),
	}
	if tp.NextTier != nil {
		next := tierSummary(*tp.NextTier)
		d.NextTier = &next
	}

	if tp.Metric == loyalty.MetricUnits {
		d.ProgressText = FormatCount(tp.Current) + " / " + FormatCount(tp.Target) + " units"
	} else {
		d.ProgressText = FormatMoney(tp.Current) + " / " + FormatMoney(tp.Target)
	}

	if days, ok := m.Window.DaysRemaining(m.Now); ok {
		d.CheckpointDaysRemaining = &days
		d.CheckpointText = DaysRemainingText(days)
	}

	list := buildMissionList(m)
	for i := range list.Missions {
		if list.Missions[i].ID == list.FeaturedMissionID {
			d.FeaturedMission = &list.Missions[i]
			break
		}
	}
	return d
}

func tierSummary(t loyalty.Tier) TierSummary {
	return TierSummary{ID: t.ID, Name: t.Name, Color: t.Color, Order: t.Order}
}
