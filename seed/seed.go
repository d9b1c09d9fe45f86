/*
Package seed loads demo programs into a store.

PURPOSE:

	Provides pre-built scenarios that populate a tenant with realistic data
	for demos and manual testing: tiers, creators, missions, rewards, and
	video metrics. Scenarios are declared in scenarios.yaml and embedded in
	the binary.

HOW SCENARIOS LOAD:
 1. Client, tiers, rewards and missions are saved (upsert by ID)
 2. Creators are enrolled at their declared tier, or the lowest one
 3. Videos are fed through the regular sales sync, which derives
    aggregates, tier promotions and mission progress

Loading a scenario twice is safe: every write is an upsert and video
metrics are cumulative.

SEE ALSO:
  - salesync/sync.go: SyncSalesMetrics
  - api/scenarios.go: ListScenarios, LoadScenario handlers
*/
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/creator-rewards/loyalty"
	"github.com/warp/creator-rewards/salesync"
)

//go:embed scenarios.yaml
var scenariosYAML []byte

// =============================================================================
// SCENARIO DOCUMENT
// =============================================================================

// Scenario is one demo program.
type Scenario struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Client      ClientDef    `yaml:"client"`
	Tiers       []TierDef    `yaml:"tiers"`
	Users       []UserDef    `yaml:"users"`
	Rewards     []RewardDef  `yaml:"rewards"`
	Missions    []MissionDef `yaml:"missions"`
	Videos      []VideoDef   `yaml:"videos"`
}

type ClientDef struct {
	ID               loyalty.ClientID  `yaml:"id"`
	Name             string            `yaml:"name"`
	VIPMetric        loyalty.VIPMetric `yaml:"vip_metric"`
	CheckpointMonths int               `yaml:"checkpoint_months"`
}

type TierDef struct {
	ID               loyalty.TierID  `yaml:"id"`
	Order            int             `yaml:"order"`
	Name             string          `yaml:"name"`
	Color            string          `yaml:"color"`
	SalesThreshold   decimal.Decimal `yaml:"sales_threshold"`
	UnitsThreshold   int64           `yaml:"units_threshold"`
	CheckpointExempt bool            `yaml:"checkpoint_exempt"`
}

type UserDef struct {
	ID            loyalty.UserID `yaml:"id"`
	Handle        string         `yaml:"handle"`
	Email         string         `yaml:"email"`
	JoinedDaysAgo int            `yaml:"joined_days_ago"`
	Tier          loyalty.TierID `yaml:"tier"`
	TierDaysAgo   int            `yaml:"tier_days_ago"`
	Admin         bool           `yaml:"admin"`
}

type RewardDef struct {
	ID          loyalty.RewardID            `yaml:"id"`
	Type        loyalty.RewardType          `yaml:"type"`
	Name        string                      `yaml:"name"`
	Description string                      `yaml:"description"`
	Source      loyalty.RewardSource        `yaml:"source"`
	Tier        loyalty.TierID              `yaml:"tier"`
	Comparator  loyalty.TierComparator      `yaml:"comparator"`
	PreviewFrom loyalty.TierID              `yaml:"preview_from"`
	Frequency   loyalty.RedemptionFrequency `yaml:"frequency"`
	Quantity    int                         `yaml:"quantity"`
	Order       int                         `yaml:"order"`
	ExpiresDays *int                        `yaml:"expires_days"`
	Value       loyalty.ValueData           `yaml:"value"`
}

type MissionDef struct {
	ID               loyalty.MissionID      `yaml:"id"`
	Type             loyalty.MissionType    `yaml:"type"`
	Title            string                 `yaml:"title"`
	Target           decimal.Decimal        `yaml:"target"`
	Unit             loyalty.TargetUnit     `yaml:"unit"`
	Tier             loyalty.TierID         `yaml:"tier"`
	Comparator       loyalty.TierComparator `yaml:"comparator"`
	PreviewFrom      loyalty.TierID         `yaml:"preview_from"`
	Reward           loyalty.RewardID       `yaml:"reward"`
	Order            int                    `yaml:"order"`
	Activated        bool                   `yaml:"activated"`
	RaffleEndsInDays int                    `yaml:"raffle_ends_in_days"`
}

type VideoDef struct {
	Handle        string          `yaml:"handle"`
	URL           string          `yaml:"url"`
	Title         string          `yaml:"title"`
	PostedDaysAgo int             `yaml:"posted_days_ago"`
	Views         int64           `yaml:"views"`
	Likes         int64           `yaml:"likes"`
	Comments      int64           `yaml:"comments"`
	UnitsSold     int64           `yaml:"units_sold"`
	GMV           decimal.Decimal `yaml:"gmv"`
}

// Summary is the listing shape of a scenario.
type Summary struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	ClientID    loyalty.ClientID `json:"clientId"`
}

// =============================================================================
// CATALOG
// =============================================================================

var (
	parseOnce sync.Once
	parsed    []Scenario
	parseErr  error
)

// Scenarios returns every embedded scenario.
func Scenarios() ([]Scenario, error) {
	parseOnce.Do(func() {
		parsed, parseErr = Parse(scenariosYAML)
	})
	return parsed, parseErr
}

// Parse decodes a scenarios document.
func Parse(data []byte) ([]Scenario, error) {
	var doc struct {
		Scenarios []Scenario `yaml:"scenarios"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}
	seen := make(map[string]bool, len(doc.Scenarios))
	for _, s := range doc.Scenarios {
		if s.ID == "" || s.Client.ID == "" {
			return nil, fmt.Errorf("parse scenarios: scenario %q needs an id and a client id", s.Name)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("parse scenarios: duplicate scenario %q", s.ID)
		}
		seen[s.ID] = true
	}
	return doc.Scenarios, nil
}

// List returns scenario summaries in declaration order.
func List() ([]Summary, error) {
	all, err := Scenarios()
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(all))
	for _, s := range all {
		out = append(out, Summary{ID: s.ID, Name: s.Name, Description: s.Description, ClientID: s.Client.ID})
	}
	return out, nil
}

// Find returns the scenario with the given ID.
func Find(id string) (*Scenario, error) {
	all, err := Scenarios()
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, loyalty.NotFound("scenario", id)
}

// =============================================================================
// LOADING
// =============================================================================

// Syncer applies video metrics. *salesync.Service satisfies it.
type Syncer interface {
	SyncSalesMetrics(ctx context.Context, clientID loyalty.ClientID, rows []salesync.MetricRow) (*salesync.Result, error)
}

// Loader writes scenarios into a store.
type Loader struct {
	Store loyalty.TxStore
	Sync  Syncer
	Now   func() time.Time
}

// Load writes the scenario with the given ID and replays its videos.
func (l *Loader) Load(ctx context.Context, id string) (*Scenario, error) {
	s, err := Find(id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if l.Now != nil {
		now = l.Now().UTC()
	}

	if err := l.Store.WithTx(ctx, func(tx loyalty.Store) error {
		return save(ctx, tx, *s, now)
	}); err != nil {
		return nil, fmt.Errorf("load scenario %s: %w", id, err)
	}

	if len(s.Videos) > 0 && l.Sync != nil {
		res, err := l.Sync.SyncSalesMetrics(ctx, s.Client.ID, videoRows(s.Videos, now))
		if err != nil {
			return nil, fmt.Errorf("load scenario %s: sync videos: %w", id, err)
		}
		if len(res.Errors) > 0 {
			return nil, fmt.Errorf("load scenario %s: sync videos: %s", id, res.Errors[0])
		}
	}
	return s, nil
}

func daysAgo(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}

func save(ctx context.Context, tx loyalty.Store, s Scenario, now time.Time) error {
	client := loyalty.Client{
		ID:               s.Client.ID,
		Name:             s.Client.Name,
		VIPMetric:        s.Client.VIPMetric,
		CheckpointMonths: s.Client.CheckpointMonths,
		CreatedAt:        daysAgo(now, 365),
	}
	if client.VIPMetric == "" {
		client.VIPMetric = loyalty.MetricSales
	}
	if err := tx.SaveClient(ctx, client); err != nil {
		return err
	}

	tiers := make([]loyalty.Tier, 0, len(s.Tiers))
	for _, t := range s.Tiers {
		tier := loyalty.Tier{
			ID:               t.ID,
			ClientID:         client.ID,
			Order:            t.Order,
			Name:             t.Name,
			Color:            t.Color,
			SalesThreshold:   t.SalesThreshold,
			UnitsThreshold:   t.UnitsThreshold,
			CheckpointExempt: t.CheckpointExempt,
		}
		if err := tx.SaveTier(ctx, tier); err != nil {
			return err
		}
		tiers = append(tiers, tier)
	}
	ladder := loyalty.NewLadder(tiers)
	entry, ok := ladder.Lowest()
	if !ok {
		return fmt.Errorf("scenario %s has no tiers", s.ID)
	}

	for _, r := range s.Rewards {
		reward, err := rewardOf(client.ID, r, now)
		if err != nil {
			return err
		}
		if err := tx.SaveReward(ctx, reward); err != nil {
			return err
		}
	}
	for _, m := range s.Missions {
		if err := tx.SaveMission(ctx, missionOf(client.ID, m, now)); err != nil {
			return err
		}
	}

	for _, u := range s.Users {
		user, err := userOf(client, ladder, entry, u, now)
		if err != nil {
			return err
		}
		if existing, err := tx.GetUser(ctx, client.ID, u.ID); err != nil {
			return err
		} else if existing != nil {
			user.DefaultPaymentMethod = existing.DefaultPaymentMethod
			user.DefaultPaymentAccount = existing.DefaultPaymentAccount
			user.LastLoginAt = existing.LastLoginAt
		}
		if err := tx.SaveUser(ctx, user); err != nil {
			return err
		}
	}
	return nil
}

func rule(tier loyalty.TierID, cmp loyalty.TierComparator) loyalty.TierRule {
	if tier == "" {
		return loyalty.TierRule{TierID: loyalty.TierAll}
	}
	if cmp == "" {
		cmp = loyalty.AtOrAbove
	}
	return loyalty.TierRule{TierID: tier, Comparator: cmp}
}

func rewardOf(clientID loyalty.ClientID, r RewardDef, now time.Time) (loyalty.Reward, error) {
	value, err := r.Value.Variant(r.Type)
	if err != nil {
		return loyalty.Reward{}, fmt.Errorf("reward %s: %w", r.ID, err)
	}
	out := loyalty.Reward{
		ID:              r.ID,
		ClientID:        clientID,
		Type:            r.Type,
		Name:            r.Name,
		Description:     r.Description,
		Value:           value,
		Eligibility:     rule(r.Tier, r.Comparator),
		PreviewFromTier: r.PreviewFrom,
		Frequency:       r.Frequency,
		Quantity:        r.Quantity,
		Source:          r.Source,
		DisplayOrder:    r.Order,
		Enabled:         true,
		ExpiresDays:     r.ExpiresDays,
		CreatedAt:       daysAgo(now, 30),
	}
	if out.Frequency == "" {
		out.Frequency = loyalty.FrequencyOneTime
	}
	if out.Source == "" {
		out.Source = loyalty.SourceMission
	}
	return out, nil
}

func missionOf(clientID loyalty.ClientID, m MissionDef, now time.Time) loyalty.Mission {
	out := loyalty.Mission{
		ID:              m.ID,
		ClientID:        clientID,
		Type:            m.Type,
		Title:           m.Title,
		TargetValue:     m.Target,
		TargetUnit:      m.Unit,
		Eligibility:     rule(m.Tier, m.Comparator),
		PreviewFromTier: m.PreviewFrom,
		Activated:       m.Activated,
		DisplayOrder:    m.Order,
		RewardID:        m.Reward,
		Enabled:         true,
		CreatedAt:       daysAgo(now, 30),
	}
	if m.RaffleEndsInDays > 0 {
		end := now.AddDate(0, 0, m.RaffleEndsInDays)
		out.RaffleEndDate = &end
	}
	return out
}

func userOf(client loyalty.Client, ladder loyalty.Ladder, entry loyalty.Tier, u UserDef, now time.Time) (loyalty.User, error) {
	joined := daysAgo(now, u.JoinedDaysAgo)
	tier := entry.ID
	achieved := joined
	if u.Tier != "" {
		if _, ok := ladder.Get(u.Tier); !ok {
			return loyalty.User{}, fmt.Errorf("user %s: unknown tier %s", u.ID, u.Tier)
		}
		tier = u.Tier
		achieved = daysAgo(now, u.TierDaysAgo)
	}

	out := loyalty.User{
		ID:             u.ID,
		ClientID:       client.ID,
		Handle:         salesync.NormalizeHandle(u.Handle),
		Email:          u.Email,
		CurrentTierID:  tier,
		TierAchievedAt: &achieved,
		SalesAggregate: decimal.Zero,
		TotalSales:     decimal.Zero,
		IsAdmin:        u.Admin,
		CreatedAt:      joined,
	}
	if client.CheckpointMonths > 0 {
		next := achieved.AddDate(0, client.CheckpointMonths, 0)
		out.NextCheckpointAt = &next
	}
	return out, nil
}

func videoRows(videos []VideoDef, now time.Time) []salesync.MetricRow {
	rows := make([]salesync.MetricRow, 0, len(videos))
	for _, v := range videos {
		rows = append(rows, salesync.MetricRow{
			Handle:    v.Handle,
			VideoURL:  v.URL,
			Title:     v.Title,
			PostDate:  daysAgo(now, v.PostedDaysAgo),
			Views:     v.Views,
			Likes:     v.Likes,
			Comments:  v.Comments,
			UnitsSold: v.UnitsSold,
			GMV:       v.GMV,
		})
	}
	return rows
}
