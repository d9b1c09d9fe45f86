/*
Package loyalty is the domain core of the creator rewards engine.

PURPOSE:

	Defines the records of a tiered VIP program (tiers, creators, missions,
	progress, rewards, redemptions and their type-specific sub-states), the
	eligibility rules that gate them, and the ordered status resolver that
	turns a mission plus this creator's records into a single status.

	Nothing in this package performs I/O. Persistence is reached through the
	Store and TxStore interfaces in store.go; orchestration lives in the
	claims, catalog and salesync packages.

KEY CONCEPTS:

	Tenant:       Every record carries a ClientID. Reads and writes are
	              always filtered by it; a cross-tenant hit is "not found".

	Checkpoint:   The recurring evaluation window for tier maintenance.
	              MissionProgress is tracked per window (see checkpoint.go).

	Redemption:   The transactional record of a claim. Its status only moves
	              forward (see transitions.go).

	ClaimKey:     The uniqueness handle of a redemption. At most one
	              non-terminal redemption may exist per (client, user, key).
	              Mission and VIP claims of a reward share its key, so a
	              reward is held once whichever mission unlocked it.

SEE ALSO:
  - eligibility.go: tier comparisons, progress percent, visibility
  - status.go: mission status resolver and priority
  - store.go: persistence interfaces
*/
package loyalty

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	ClientID     string
	UserID       string
	TierID       string
	MissionID    string
	RewardID     string
	RedemptionID string
	ProgressID   string
)

// =============================================================================
// TENANT & TIERS
// =============================================================================

// VIPMetric is the tenant-configured progress currency.
type VIPMetric string

const (
	MetricSales VIPMetric = "sales"
	MetricUnits VIPMetric = "units"
)

// Client is a tenant running its own loyalty program.
type Client struct {
	ID        ClientID
	Name      string
	VIPMetric VIPMetric

	// CheckpointMonths is the length of a checkpoint window.
	// Zero means lifetime tiers with no checkpoint.
	CheckpointMonths int

	CreatedAt time.Time
}

// Tier is one rank of a client's ladder. Lower Order is earlier.
type Tier struct {
	ID               TierID
	ClientID         ClientID
	Order            int
	Name             string
	Color            string
	SalesThreshold   decimal.Decimal
	UnitsThreshold   int64
	CheckpointExempt bool
}

// =============================================================================
// CREATORS
// =============================================================================

// User is a creator enrolled in a client's program.
type User struct {
	ID       UserID
	ClientID ClientID
	Handle   string
	Email    string

	CurrentTierID    TierID
	TierAchievedAt   *time.Time
	NextCheckpointAt *time.Time

	// LastLoginAt is nil until the first login completes.
	LastLoginAt *time.Time

	// Checkpoint totals. Reset by checkpoint evaluation, recomputed by sync.
	SalesAggregate decimal.Decimal
	UnitsAggregate int64

	// Lifetime totals.
	TotalSales decimal.Decimal
	TotalUnits int64

	IsAdmin bool

	DefaultPaymentMethod  PaymentMethod
	DefaultPaymentAccount string // sealed

	CreatedAt time.Time
}

// =============================================================================
// TIER RULES
// =============================================================================

// TierAll matches every tier.
const TierAll TierID = "all"

// TierComparator says how a user's tier is compared to a rule's tier.
type TierComparator string

const (
	AtOrAbove TierComparator = "at_or_above"
	AtOrBelow TierComparator = "at_or_below"
	Exact     TierComparator = "exact"
)

// TierRule is a tier eligibility expression such as "gold or above".
type TierRule struct {
	TierID     TierID
	Comparator TierComparator
}

// =============================================================================
// MISSIONS
// =============================================================================

type MissionType string

const (
	MissionSalesDollars MissionType = "sales_dollars"
	MissionSalesUnits   MissionType = "sales_units"
	MissionLikes        MissionType = "likes"
	MissionViews        MissionType = "views"
	MissionVideos       MissionType = "videos"
	MissionRaffle       MissionType = "raffle"
)

type TargetUnit string

const (
	UnitDollars TargetUnit = "dollars"
	UnitUnits   TargetUnit = "units"
	UnitCount   TargetUnit = "count"
)

// Mission is an admin-authored goal that unlocks a reward.
type Mission struct {
	ID              MissionID
	ClientID        ClientID
	Type            MissionType
	Title           string
	TargetValue     decimal.Decimal
	TargetUnit      TargetUnit
	Eligibility     TierRule
	PreviewFromTier TierID

	// Activated is only meaningful for raffles, which start dormant.
	Activated     bool
	RaffleEndDate *time.Time

	DisplayOrder int
	RewardID     RewardID
	Enabled      bool
	CreatedAt    time.Time
}

// IsRaffle reports whether the mission is a raffle.
func (m Mission) IsRaffle() bool { return m.Type == MissionRaffle }

type ProgressStatus string

const (
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
)

// MissionProgress is one user's progress on one mission in one checkpoint window.
type MissionProgress struct {
	ID              ProgressID
	ClientID        ClientID
	MissionID       MissionID
	UserID          UserID
	CurrentValue    decimal.Decimal
	Status          ProgressStatus
	CheckpointStart time.Time
	CheckpointEnd   time.Time // zero for lifetime windows
	CompletedAt     *time.Time

	// ConsumedAt is set when the reward for this window has been claimed.
	ConsumedAt   *time.Time
	RedemptionID RedemptionID

	UpdatedAt time.Time
}

// IsCompleted reports whether the progress has reached its target.
func (p MissionProgress) IsCompleted() bool { return p.Status == ProgressCompleted }

// =============================================================================
// REWARDS
// =============================================================================

type RewardType string

const (
	RewardGiftCard        RewardType = "gift_card"
	RewardSparkAds        RewardType = "spark_ads"
	RewardExperience      RewardType = "experience"
	RewardDiscount        RewardType = "discount"
	RewardCommissionBoost RewardType = "commission_boost"
	RewardPhysicalGift    RewardType = "physical_gift"
)

// RedemptionFrequency limits how often a reward can be redeemed.
type RedemptionFrequency string

const (
	FrequencyOneTime   RedemptionFrequency = "one_time"
	FrequencyRecurring RedemptionFrequency = "recurring_per_checkpoint"
	FrequencyUnlimited RedemptionFrequency = "unlimited"
)

// RewardSource says how a reward is unlocked.
type RewardSource string

const (
	SourceMission RewardSource = "mission"
	SourceVIPTier RewardSource = "vip_tier"
)

// Reward is a claimable benefit tied to a mission or a tier.
type Reward struct {
	ID              RewardID
	ClientID        ClientID
	Type            RewardType
	Name            string
	Description     string
	Value           RewardValue
	Eligibility     TierRule
	PreviewFromTier TierID
	Frequency       RedemptionFrequency
	Quantity        int
	Source          RewardSource
	DisplayOrder    int
	Enabled         bool
	ExpiresDays     *int
	CreatedAt       time.Time
}

// Limit returns the number of redemptions allowed per counting window.
// Zero means no limit.
func (r Reward) Limit() int {
	if r.Frequency == FrequencyUnlimited {
		return 0
	}
	if r.Quantity <= 0 {
		return 1
	}
	return r.Quantity
}

// =============================================================================
// REDEMPTIONS
// =============================================================================

type RedemptionStatus string

const (
	RedemptionClaimable RedemptionStatus = "claimable"
	RedemptionClaimed   RedemptionStatus = "claimed"
	RedemptionFulfilled RedemptionStatus = "fulfilled"
	RedemptionConcluded RedemptionStatus = "concluded"
	RedemptionRejected  RedemptionStatus = "rejected"
)

// IsTerminal reports whether no further transition is possible.
func (s RedemptionStatus) IsTerminal() bool {
	return s == RedemptionConcluded || s == RedemptionRejected
}

// Redemption is the record of a claim event.
type Redemption struct {
	ID         RedemptionID
	ClientID   ClientID
	UserID     UserID
	RewardID   RewardID
	MissionID  MissionID  // empty for VIP tier rewards
	ProgressID ProgressID // empty for raffles and VIP tier rewards
	ClaimKey   string
	Status     RedemptionStatus

	ClaimedAt       *time.Time
	FulfilledAt     *time.Time
	ConcludedAt     *time.Time
	RejectedAt      *time.Time
	RejectionReason string

	ScheduledActivationAt *time.Time
	ActivationDate        *time.Time
	ExpirationDate        *time.Time

	FulfillmentNotes string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the redemption counts against the uniqueness invariant.
func (r Redemption) IsActive() bool {
	return !r.Status.IsTerminal()
}

// SettledAt returns the latest of FulfilledAt and ConcludedAt.
func (r Redemption) SettledAt() *time.Time {
	switch {
	case r.ConcludedAt != nil && (r.FulfilledAt == nil || r.ConcludedAt.After(*r.FulfilledAt)):
		return r.ConcludedAt
	default:
		return r.FulfilledAt
	}
}

// ClaimKey returns the uniqueness handle for a new redemption of reward
// opened in the given checkpoint window.
func ClaimKey(reward Reward, window Window) string {
	if reward.Frequency == FrequencyRecurring {
		return string(reward.ID) + "@" + window.Start.UTC().Format(time.RFC3339)
	}
	return string(reward.ID)
}

// RaffleClaimKey returns the uniqueness handle for the claimable redemption
// opened by a raffle entry. Raffles run once per mission.
func RaffleClaimKey(mission Mission) string {
	return "raffle:" + string(mission.ID)
}

// =============================================================================
// SUB-STATES
// =============================================================================

type BoostStatus string

const (
	BoostScheduled     BoostStatus = "scheduled"
	BoostActivated     BoostStatus = "activated"
	BoostExpired       BoostStatus = "expired"
	BoostPendingInfo   BoostStatus = "pending_info"
	BoostPendingPayout BoostStatus = "pending_payout"
	BoostPaid          BoostStatus = "paid"
)

type PaymentMethod string

const (
	PaymentPayPal PaymentMethod = "paypal"
	PaymentVenmo  PaymentMethod = "venmo"
)

// CommissionBoost tracks a commission_boost redemption from scheduling to payout.
type CommissionBoost struct {
	RedemptionID          RedemptionID
	ClientID              ClientID
	UserID                UserID
	BoostStatus           BoostStatus
	ScheduledActivationAt time.Time
	ActivatedAt           *time.Time
	ExpiresAt             *time.Time
	DurationDays          int
	Rate                  decimal.Decimal // percent

	SalesAtActivation decimal.NullDecimal
	SalesAtExpiration decimal.NullDecimal
	FinalPayout       decimal.NullDecimal

	PaymentMethod          PaymentMethod
	PaymentAccount         string // sealed
	PaymentInfoCollectedAt *time.Time
	PaidAt                 *time.Time

	UpdatedAt time.Time
}

// ShippingAddress is the delivery destination for a physical gift.
type ShippingAddress struct {
	FirstName  string
	LastName   string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// PhysicalGift tracks shipping for a physical_gift redemption.
type PhysicalGift struct {
	RedemptionID   RedemptionID
	ClientID       ClientID
	RequiresSize   bool
	SizeCategory   string
	SizeValue      string
	Shipping       ShippingAddress
	ShippedAt      *time.Time
	TrackingNumber string
	Carrier        string
	DeliveredAt    *time.Time
}

// RaffleParticipation is a user's entry into a raffle mission.
type RaffleParticipation struct {
	ID             string
	ClientID       ClientID
	MissionID      MissionID
	UserID         UserID
	RedemptionID   RedemptionID
	ParticipatedAt time.Time

	// IsWinner is nil until the winner is drawn, then never changes.
	IsWinner         *bool
	WinnerSelectedAt *time.Time
}

// IsPending reports whether the winner has not been drawn yet.
func (p RaffleParticipation) IsPending() bool { return p.IsWinner == nil }

// =============================================================================
// SYNC RECORDS
// =============================================================================

// Video is one creator video and its latest cumulative metrics.
type Video struct {
	ID        string
	ClientID  ClientID
	UserID    UserID
	URL       string
	Title     string
	PostDate  time.Time
	Views     int64
	Likes     int64
	Comments  int64
	UnitsSold int64
	GMV       decimal.Decimal
	SyncedAt  time.Time
}

type AdjustmentType string

const (
	AdjustmentManualSale AdjustmentType = "manual_sale"
	AdjustmentRefund     AdjustmentType = "refund"
	AdjustmentBonus      AdjustmentType = "bonus"
	AdjustmentCorrection AdjustmentType = "correction"
)

// SalesAdjustment is a manual correction to a creator's sales or units.
type SalesAdjustment struct {
	ID        string
	ClientID  ClientID
	UserID    UserID
	Amount    decimal.Decimal
	Units     int64
	Type      AdjustmentType
	Reason    string
	CreatedBy UserID
	CreatedAt time.Time
}

type SyncStatus string

const (
	SyncRunning   SyncStatus = "running"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
)

// SyncRun records one batch of the metrics sync for operational review.
type SyncRun struct {
	ID           string
	ClientID     ClientID
	Status       SyncStatus
	RowsReceived int
	RowsApplied  int
	UsersUpdated int
	UsersCreated int
	Errors       []string
	StartedAt    time.Time
	CompletedAt  *time.Time
}
