/*
store.go - Persistence interface for the rewards core

PURPOSE:
  Defines the interface between the domain logic and the database.
  Implementations: store/sqlite (production) and store/memory (tests, dev).

KEY INTERFACES:
  CatalogStore:    Clients, tiers, missions, rewards (admin-authored)
  MemberStore:     Creators
  ProgressStore:   Per-window mission progress
  RedemptionStore: Redemptions, boosts, physical gifts, raffle entries
  MetricsStore:    Videos, sales adjustments, sync runs
  Store:           All of the above
  TxStore:         Store plus WithTx for atomic multi-table writes

TENANT CONTRACT:
  Every read takes a ClientID and filters by it. A row owned by another
  tenant is indistinguishable from a missing row: Get methods return
  (nil, nil) in both cases.

UNIQUENESS CONTRACT:
  CreateRedemption returns ErrDuplicateClaim when another redemption with
  the same (ClientID, UserID, ClaimKey) is still non-terminal.
  CreateRaffleParticipation returns ErrDuplicateEntry on a second entry for
  the same (ClientID, MissionID, UserID). These checks happen inside the
  write, so they hold under concurrent callers.

NO DELETES:
  There are no Delete methods. Redemptions end in concluded or rejected.

SEE ALSO:
  - store/sqlite/sqlite.go: unique partial indexes backing the contracts
  - store/memory/memory.go: in-memory implementation
*/
package loyalty

import (
	"context"
	"time"
)

// CatalogStore holds admin-authored configuration.
type CatalogStore interface {
	GetClient(ctx context.Context, id ClientID) (*Client, error)
	ListClients(ctx context.Context) ([]Client, error)
	SaveClient(ctx context.Context, c Client) error

	// ListTiers returns the client's tiers ordered by Order.
	ListTiers(ctx context.Context, clientID ClientID) ([]Tier, error)
	SaveTier(ctx context.Context, t Tier) error

	GetMission(ctx context.Context, clientID ClientID, id MissionID) (*Mission, error)
	ListMissions(ctx context.Context, clientID ClientID) ([]Mission, error)
	SaveMission(ctx context.Context, m Mission) error

	GetReward(ctx context.Context, clientID ClientID, id RewardID) (*Reward, error)
	ListRewards(ctx context.Context, clientID ClientID) ([]Reward, error)
	SaveReward(ctx context.Context, r Reward) error
}

// MemberStore holds creators.
type MemberStore interface {
	GetUser(ctx context.Context, clientID ClientID, id UserID) (*User, error)
	GetUserByHandle(ctx context.Context, clientID ClientID, handle string) (*User, error)
	ListUsers(ctx context.Context, clientID ClientID) ([]User, error)

	// SaveUser inserts or replaces a user.
	SaveUser(ctx context.Context, u User) error
}

// ProgressStore holds mission progress rows.
type ProgressStore interface {
	// GetProgress returns the row for the window starting at checkpointStart.
	GetProgress(ctx context.Context, clientID ClientID, userID UserID, missionID MissionID, checkpointStart time.Time) (*MissionProgress, error)
	ListProgress(ctx context.Context, clientID ClientID, userID UserID) ([]MissionProgress, error)

	// SaveProgress inserts or replaces the row for (user, mission, window).
	SaveProgress(ctx context.Context, p MissionProgress) error
}

// RedemptionStore holds redemptions and their sub-states.
type RedemptionStore interface {
	CreateRedemption(ctx context.Context, r Redemption) error
	UpdateRedemption(ctx context.Context, r Redemption) error
	GetRedemption(ctx context.Context, clientID ClientID, id RedemptionID) (*Redemption, error)
	ListRedemptions(ctx context.Context, clientID ClientID, userID UserID) ([]Redemption, error)
	ListRedemptionsByStatus(ctx context.Context, clientID ClientID, status RedemptionStatus) ([]Redemption, error)

	CreateCommissionBoost(ctx context.Context, b CommissionBoost) error
	UpdateCommissionBoost(ctx context.Context, b CommissionBoost) error
	GetCommissionBoost(ctx context.Context, clientID ClientID, redemptionID RedemptionID) (*CommissionBoost, error)
	ListCommissionBoosts(ctx context.Context, clientID ClientID, status BoostStatus) ([]CommissionBoost, error)

	CreatePhysicalGift(ctx context.Context, g PhysicalGift) error
	UpdatePhysicalGift(ctx context.Context, g PhysicalGift) error
	GetPhysicalGift(ctx context.Context, clientID ClientID, redemptionID RedemptionID) (*PhysicalGift, error)

	CreateRaffleParticipation(ctx context.Context, p RaffleParticipation) error
	UpdateRaffleParticipation(ctx context.Context, p RaffleParticipation) error
	ListRaffleParticipations(ctx context.Context, clientID ClientID, missionID MissionID) ([]RaffleParticipation, error)
	ListUserRaffleParticipations(ctx context.Context, clientID ClientID, userID UserID) ([]RaffleParticipation, error)
}

// MetricsStore holds synced metrics and the sync audit log.
type MetricsStore interface {
	// UpsertVideo inserts or updates by (ClientID, URL).
	UpsertVideo(ctx context.Context, v Video) error
	ListVideos(ctx context.Context, clientID ClientID, userID UserID) ([]Video, error)

	CreateSalesAdjustment(ctx context.Context, a SalesAdjustment) error
	ListSalesAdjustments(ctx context.Context, clientID ClientID, userID UserID) ([]SalesAdjustment, error)

	SaveSyncRun(ctx context.Context, r SyncRun) error
	ListSyncRuns(ctx context.Context, clientID ClientID) ([]SyncRun, error)
}

// Store is the full persistence surface used inside and outside transactions.
type Store interface {
	CatalogStore
	MemberStore
	ProgressStore
	RedemptionStore
	MetricsStore
}

// TxStore runs fn against a transactional view. If fn returns an error,
// every write made through the view is rolled back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
