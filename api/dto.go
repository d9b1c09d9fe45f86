/*
dto.go - Request and response bodies for the HTTP API

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *DTO: Response types that are not already service result types

Service results (catalog views, claims.ClaimResult, salesync.Result) carry
their own json tags and are written as-is.

VALIDATION:
  Validation is done by the services, not in DTOs. DTOs are pure data
  carriers.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/creator-rewards/claims"
	"github.com/warp/creator-rewards/loyalty"
	"github.com/warp/creator-rewards/salesync"
)

// =============================================================================
// CREATOR REQUESTS
// =============================================================================

// ClaimRequest is the body of a mission or reward claim. An empty body is
// a valid claim for instant rewards.
type ClaimRequest = claims.ClaimPayload

// PaymentInfoRequest is the body of POST /api/rewards/{id}/payment-info.
type PaymentInfoRequest struct {
	PaymentMethod         loyalty.PaymentMethod `json:"paymentMethod"`
	PaymentAccount        string                `json:"paymentAccount"`
	PaymentAccountConfirm string                `json:"paymentAccountConfirm"`
	SaveAsDefault         bool                  `json:"saveAsDefault"`
}

// =============================================================================
// ADMIN REQUESTS
// =============================================================================

// SyncRequest is a batch of video metrics for the caller's client.
type SyncRequest struct {
	Rows []salesync.MetricRow `json:"rows"`
}

// AdjustmentRequest is a manual sales correction.
type AdjustmentRequest struct {
	UserID loyalty.UserID         `json:"userId"`
	Amount decimal.Decimal        `json:"amount"`
	Units  int64                  `json:"units"`
	Type   loyalty.AdjustmentType `json:"type"`
	Reason string                 `json:"reason"`
}

// RedemptionActionRequest carries the optional fields of an admin
// redemption transition.
type RedemptionActionRequest struct {
	Notes          string `json:"notes,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Carrier        string `json:"carrier,omitempty"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
}

// WinnerRequest names the raffle winner; empty draws at random.
type WinnerRequest struct {
	UserID loyalty.UserID `json:"userId,omitempty"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// RedemptionDTO is an admin view of a redemption.
type RedemptionDTO struct {
	ID              loyalty.RedemptionID     `json:"id"`
	UserID          loyalty.UserID           `json:"userId"`
	RewardID        loyalty.RewardID         `json:"rewardId"`
	MissionID       loyalty.MissionID        `json:"missionId,omitempty"`
	Status          loyalty.RedemptionStatus `json:"status"`
	ClaimedAt       *time.Time               `json:"claimedAt,omitempty"`
	FulfilledAt     *time.Time               `json:"fulfilledAt,omitempty"`
	ConcludedAt     *time.Time               `json:"concludedAt,omitempty"`
	RejectedAt      *time.Time               `json:"rejectedAt,omitempty"`
	RejectionReason string                   `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time                `json:"createdAt"`
}

// SyncRunDTO is one recorded sync batch.
type SyncRunDTO struct {
	ID           string             `json:"id"`
	Status       loyalty.SyncStatus `json:"status"`
	RowsReceived int                `json:"rowsReceived"`
	RowsApplied  int                `json:"rowsApplied"`
	UsersUpdated int                `json:"usersUpdated"`
	UsersCreated int                `json:"usersCreated"`
	Errors       []string           `json:"errors"`
	StartedAt    time.Time          `json:"startedAt"`
	CompletedAt  *time.Time         `json:"completedAt,omitempty"`
}

// AdjustmentDTO is one recorded manual adjustment.
type AdjustmentDTO struct {
	ID        string                 `json:"id"`
	UserID    loyalty.UserID         `json:"userId"`
	Amount    decimal.Decimal        `json:"amount"`
	Units     int64                  `json:"units"`
	Type      loyalty.AdjustmentType `json:"type"`
	Reason    string                 `json:"reason"`
	CreatedBy loyalty.UserID         `json:"createdBy"`
	CreatedAt time.Time              `json:"createdAt"`
}

// UserTotalsDTO reports a creator's totals after an adjustment.
type UserTotalsDTO struct {
	UserID         loyalty.UserID  `json:"userId"`
	CurrentTierID  loyalty.TierID  `json:"currentTier"`
	SalesAggregate decimal.Decimal `json:"checkpointSales"`
	UnitsAggregate int64           `json:"checkpointUnits"`
	TotalSales     decimal.Decimal `json:"totalSales"`
	TotalUnits     int64           `json:"totalUnits"`
}
