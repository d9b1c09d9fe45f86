/*
handlers.go - HTTP API handlers for the creator rewards program

PURPOSE:
  Exposes the loyalty services via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the catalog, claims and salesync
  services.

ENDPOINTS:
  Creator:
    GET    /api/dashboard                        Home view
    GET    /api/tiers                            Tier ladder with perks
    GET    /api/missions                         Missions with status
    GET    /api/missions/history                 Concluded and lost missions
    POST   /api/missions/{id}/claim              Claim a completed mission
    POST   /api/missions/{id}/participate        Enter a raffle
    GET    /api/rewards                          VIP tier rewards
    GET    /api/rewards/history                  Concluded redemptions
    GET    /api/rewards/payment-info             Saved default payout method
    POST   /api/rewards/{id}/claim               Claim a VIP tier reward
    POST   /api/rewards/{id}/payment-info        Payout details for a boost

  Admin:
    POST   /api/admin/sync                       Apply a metrics batch
    GET    /api/admin/sync/runs                  Sync audit log
    POST   /api/admin/adjustments                Manual sales adjustment
    GET    /api/admin/users/{id}/adjustments     A creator's adjustments
    POST   /api/admin/lifecycle/run              Run boost/discount lifecycle now
    GET    /api/admin/redemptions?status=        Redemptions by status
    POST   /api/admin/redemptions/{id}/{action}  Fulfillment transitions
    POST   /api/admin/missions/{id}/activate     Open a dormant raffle
    POST   /api/admin/missions/{id}/winner       Draw a raffle

REQUEST FLOW:
  1. Resolve identity (middleware.go)
  2. Parse HTTP request
  3. Call the service
  4. Serialize response, or map the error via writeDomainError

ERROR HANDLING:
  - 400: Validation errors, invalid input
  - 401: Unknown identity
  - 403: Eligibility failures, non-admin callers
  - 404: Resource not found (including other tenants' resources)
  - 409: Duplicate claims and entries, invalid transitions
  - 429: Identity lockout
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/creator-rewards/catalog"
	"github.com/warp/creator-rewards/claims"
	"github.com/warp/creator-rewards/loyalty"
	"github.com/warp/creator-rewards/salesync"
	"github.com/warp/creator-rewards/seed"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   loyalty.Store
	Catalog *catalog.Service
	Claims  *claims.Service
	Sync    *salesync.Service
	Seed    *seed.Loader
	Logger  *zap.Logger
	Now     func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the services over store.
func NewHandler(store loyalty.TxStore, cat *catalog.Service, cl *claims.Service, sy *salesync.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:   store,
		Catalog: cat,
		Claims:  cl,
		Sync:    sy,
		Seed:    &seed.Loader{Store: store, Sync: sy},
		Logger:  logger.Named("api"),
		Now:     time.Now,
	}
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now().UTC()
	}
	return h.Now().UTC()
}

// identity returns the caller resolved by Identify.
func identity(r *http.Request) Identity {
	id, _ := IdentityFrom(r.Context())
	return id
}

// decode reads an optional JSON body into v. An empty body leaves v as is.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// =============================================================================
// CREATOR VIEWS
// =============================================================================

// GetDashboard returns the home view.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	d, err := h.Catalog.Dashboard(r.Context(), id.ClientID, id.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GetTiers returns the tier ladder with each tier's perks.
func (h *Handler) GetTiers(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	page, err := h.Catalog.Tiers(r.Context(), id.ClientID, id.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ListMissions returns every visible mission with its status.
func (h *Handler) ListMissions(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	list, err := h.Catalog.ListAvailableMissions(r.Context(), id.ClientID, id.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetMissionHistory returns concluded and lost missions.
func (h *Handler) GetMissionHistory(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	items, err := h.Catalog.GetMissionHistory(r.Context(), id.ClientID, id.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ListRewards returns VIP tier rewards with their status.
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	list, err := h.Catalog.ListAvailableRewards(r.Context(), id.ClientID, id.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetRewardHistory returns concluded redemptions.
func (h *Handler) GetRewardHistory(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	items, err := h.Catalog.GetRewardHistory(r.Context(), id.ClientID, id.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// GetPaymentInfo returns the caller's masked default payout method.
func (h *Handler) GetPaymentInfo(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	info, err := h.Claims.DefaultPaymentInfo(r.Context(), id.ClientID, id.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// =============================================================================
// CLAIMS
// =============================================================================

// ClaimMission claims the reward of a completed mission or won raffle.
// POST /api/missions/{id}/claim
func (h *Handler) ClaimMission(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := decode(r, &req); err != nil {
		writeCodedError(w, http.StatusBadRequest, loyalty.CodeInvalidRequest, "Invalid request body", err)
		return
	}
	id := identity(r)
	res, err := h.Claims.ClaimMissionReward(r.Context(), claims.ClaimMissionRequest{
		ClientID:  id.ClientID,
		UserID:    id.UserID,
		MissionID: loyalty.MissionID(chi.URLParam(r, "id")),
		Payload:   req,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ParticipateInRaffle enters the caller into a raffle.
// POST /api/missions/{id}/participate
func (h *Handler) ParticipateInRaffle(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	res, err := h.Claims.ParticipateInRaffle(r.Context(), claims.RaffleEntryRequest{
		ClientID:  id.ClientID,
		UserID:    id.UserID,
		MissionID: loyalty.MissionID(chi.URLParam(r, "id")),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ClaimReward claims a VIP tier reward.
// POST /api/rewards/{id}/claim
func (h *Handler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := decode(r, &req); err != nil {
		writeCodedError(w, http.StatusBadRequest, loyalty.CodeInvalidRequest, "Invalid request body", err)
		return
	}
	id := identity(r)
	res, err := h.Claims.ClaimReward(r.Context(), claims.ClaimRewardRequest{
		ClientID: id.ClientID,
		UserID:   id.UserID,
		RewardID: loyalty.RewardID(chi.URLParam(r, "id")),
		Payload:  req,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SavePaymentInfo records payout details for a commission boost.
// POST /api/rewards/{id}/payment-info, where id is the redemption.
func (h *Handler) SavePaymentInfo(w http.ResponseWriter, r *http.Request) {
	var req PaymentInfoRequest
	if err := decode(r, &req); err != nil {
		writeCodedError(w, http.StatusBadRequest, loyalty.CodeInvalidRequest, "Invalid request body", err)
		return
	}
	id := identity(r)
	res, err := h.Claims.SavePaymentInfo(r.Context(), claims.SavePaymentInfoRequest{
		ClientID:       id.ClientID,
		UserID:         id.UserID,
		RedemptionID:   loyalty.RedemptionID(chi.URLParam(r, "id")),
		Method:         req.PaymentMethod,
		Account:        req.PaymentAccount,
		ConfirmAccount: req.PaymentAccountConfirm,
		SaveAsDefault:  req.SaveAsDefault,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// ADMIN: SYNC
// =============================================================================

// SyncSalesMetrics applies a metrics batch to the caller's client.
// POST /api/admin/sync
func (h *Handler) SyncSalesMetrics(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCodedError(w, http.StatusBadRequest, loyalty.CodeInvalidRequest, "Invalid request body", err)
		return
	}
	res, err := h.Sync.SyncSalesMetrics(r.Context(), identity(r).ClientID, req.Rows)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListSyncRuns returns the caller's client sync log.
// GET /api/admin/sync/runs
func (h *Handler) ListSyncRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Sync.Runs(r.Context(), identity(r).ClientID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]SyncRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = SyncRunDTO{
			ID:           run.ID,
			Status:       run.Status,
			RowsReceived: run.RowsReceived,
			RowsApplied:  run.RowsApplied,
			UsersUpdated: run.UsersUpdated,
			UsersCreated: run.UsersCreated,
			Errors:       run.Errors,
			StartedAt:    run.StartedAt,
			CompletedAt:  run.CompletedAt,
		}
		if dtos[i].Errors == nil {
			dtos[i].Errors = []string{}
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAdjustment records a manual sales correction.
// POST /api/admin/adjustments
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCodedError(w, http.StatusBadRequest, loyalty.CodeInvalidRequest, "Invalid request body", err)
		return
	}
	id := identity(r)
	u, err := h.Sync.AdjustSales(r.Context(), loyalty.SalesAdjustment{
		ClientID:  id.ClientID,
		UserID:    req.UserID,
		Amount:    req.Amount,
		Units:     req.Units,
		Type:      req.Type,
		Reason:    req.Reason,
		CreatedBy: id.UserID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, UserTotalsDTO{
		UserID:         u.ID,
		CurrentTierID:  u.CurrentTierID,
		SalesAggregate: u.SalesAggregate,
		UnitsAggregate: u.UnitsAggregate,
		TotalSales:     u.TotalSales,
		TotalUnits:     u.TotalUnits,
	})
}

// ListAdjustments returns a creator's manual adjustments.
// GET /api/admin/users/{id}/adjustments
func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	adj, err := h.Sync.Adjustments(r.Context(), identity(r).ClientID, loyalty.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]AdjustmentDTO, len(adj))
	for i, a := range adj {
		dtos[i] = AdjustmentDTO{
			ID:        a.ID,
			UserID:    a.UserID,
			Amount:    a.Amount,
			Units:     a.Units,
			Type:      a.Type,
			Reason:    a.Reason,
			CreatedBy: a.CreatedBy,
			CreatedAt: a.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RunLifecycle runs one lifecycle pass immediately.
// POST /api/admin/lifecycle/run
func (h *Handler) RunLifecycle(w http.ResponseWriter, r *http.Request) {
	report, err := h.Claims.RunLifecycle(r.Context(), h.now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// ADMIN: FULFILLMENT
// =============================================================================

// ListRedemptions returns the caller's client redemptions in one status.
// GET /api/admin/redemptions?status=claimed
func (h *Handler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	status := loyalty.RedemptionStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = loyalty.RedemptionClaimed
	}
	list, err := h.Store.ListRedemptionsByStatus(r.Context(), identity(r).ClientID, status)
	if err != nil {
		writeDomainError(w, loyalty.Internal("list redemptions", err))
		return
	}
	dtos := make([]RedemptionDTO, len(list))
	for i, red := range list {
		dtos[i] = redemptionDTO(red)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AdvanceRedemption applies an admin fulfillment action:
// fulfill, conclude, reject, activate, ship, deliver or mark-paid.
// POST /api/admin/redemptions/{id}/{action}
func (h *Handler) AdvanceRedemption(w http.ResponseWriter, r *http.Request) {
	var req RedemptionActionRequest
	if err := decode(r, &req); err != nil {
		writeCodedError(w, http.StatusBadRequest, loyalty.CodeInvalidRequest, "Invalid request body", err)
		return
	}
	ctx := r.Context()
	clientID := identity(r).ClientID
	id := loyalty.RedemptionID(chi.URLParam(r, "id"))

	var (
		red *loyalty.Redemption
		err error
	)
	switch action := chi.URLParam(r, "action"); action {
	case "fulfill":
		red, err = h.Claims.FulfillRedemption(ctx, clientID, id, req.Notes)
	case "conclude":
		red, err = h.Claims.ConcludeRedemption(ctx, clientID, id)
	case "reject":
		red, err = h.Claims.RejectRedemption(ctx, clientID, id, req.Reason)
	case "activate":
		red, err = h.Claims.ActivateDiscount(ctx, clientID, id)
	case "ship":
		red, err = h.Claims.MarkShipped(ctx, clientID, id, req.Carrier, req.TrackingNumber)
	case "deliver":
		red, err = h.Claims.MarkDelivered(ctx, clientID, id)
	case "mark-paid":
		red, err = h.Claims.MarkBoostPaid(ctx, clientID, id)
	default:
		writeCodedError(w, http.StatusBadRequest, loyalty.CodeInvalidRequest, "Unknown action: "+action, nil)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redemptionDTO(*red))
}

func redemptionDTO(r loyalty.Redemption) RedemptionDTO {
	return RedemptionDTO{
		ID:              r.ID,
		UserID:          r.UserID,
		RewardID:        r.RewardID,
		MissionID:       r.MissionID,
		Status:          r.Status,
		ClaimedAt:       r.ClaimedAt,
		FulfilledAt:     r.FulfilledAt,
		ConcludedAt:     r.ConcludedAt,
		RejectedAt:      r.RejectedAt,
		RejectionReason: r.RejectionReason,
		CreatedAt:       r.CreatedAt,
	}
}

// =============================================================================
// ADMIN: RAFFLES
// =============================================================================

// ActivateRaffle opens a dormant raffle for entries.
// POST /api/admin/missions/{id}/activate
func (h *Handler) ActivateRaffle(w http.ResponseWriter, r *http.Request) {
	m, err := h.Claims.ActivateRaffle(r.Context(), identity(r).ClientID, loyalty.MissionID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"missionId":     m.ID,
		"activated":     m.Activated,
		"raffleEndDate": m.RaffleEndDate,
	})
}

// SelectRaffleWinner draws a raffle once.
// POST /api/admin/missions/{id}/winner
func (h *Handler) SelectRaffleWinner(w http.ResponseWriter, r *http.Request) {
	var req WinnerRequest
	if err := decode(r, &req); err != nil {
		writeCodedError(w, http.StatusBadRequest, loyalty.CodeInvalidRequest, "Invalid request body", err)
		return
	}
	res, err := h.Claims.SelectRaffleWinner(r.Context(), identity(r).ClientID, loyalty.MissionID(chi.URLParam(r, "id")), req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
