package salesync

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/creator-rewards/loyalty"
)

var adjustmentTypes = map[loyalty.AdjustmentType]bool{
	loyalty.AdjustmentManualSale: true,
	loyalty.AdjustmentRefund:     true,
	loyalty.AdjustmentBonus:      true,
	loyalty.AdjustmentCorrection: true,
}

// AdjustSales records a manual correction and recomputes the creator's
// totals, tier and mission progress in the same transaction. ID and
// CreatedAt are assigned here.
func (s *Service) AdjustSales(ctx context.Context, a loyalty.SalesAdjustment) (*loyalty.User, error) {
	if !adjustmentTypes[a.Type] {
		return nil, loyalty.Invalid(loyalty.CodeInvalidRequest, "type", "unknown adjustment type %q", a.Type)
	}
	if a.Amount.IsZero() && a.Units == 0 {
		return nil, loyalty.Invalid(loyalty.CodeInvalidRequest, "amount", "amount or units must be non-zero")
	}
	a.Reason = strings.TrimSpace(a.Reason)
	if a.Reason == "" {
		return nil, loyalty.Invalid(loyalty.CodeInvalidRequest, "reason", "reason is required")
	}

	now := s.now()
	a.ID = s.newID()
	a.CreatedAt = now

	var out loyalty.User
	err := s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		client, err := tx.GetClient(ctx, a.ClientID)
		if err != nil {
			return loyalty.Internal("get client", err)
		}
		if client == nil {
			return loyalty.NotFound("client", a.ClientID)
		}
		user, err := tx.GetUser(ctx, a.ClientID, a.UserID)
		if err != nil {
			return loyalty.Internal("get user", err)
		}
		if user == nil {
			return loyalty.NotFound("user", a.UserID)
		}

		if err := tx.CreateSalesAdjustment(ctx, a); err != nil {
			return loyalty.Internal("create sales adjustment", err)
		}
		if err := s.recompute(ctx, tx, *client, user, now); err != nil {
			return err
		}
		out = *user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("sales adjusted",
		zap.String("client_id", string(a.ClientID)),
		zap.String("user_id", string(a.UserID)),
		zap.String("type", string(a.Type)),
		zap.String("amount", a.Amount.String()),
		zap.Int64("units", a.Units),
		zap.String("created_by", string(a.CreatedBy)))
	return &out, nil
}

// Adjustments lists a creator's manual adjustments.
func (s *Service) Adjustments(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID) ([]loyalty.SalesAdjustment, error) {
	adj, err := s.Store.ListSalesAdjustments(ctx, clientID, userID)
	if err != nil {
		return nil, loyalty.Internal("list sales adjustments", err)
	}
	return adj, nil
}

// Runs lists a client's sync runs.
func (s *Service) Runs(ctx context.Context, clientID loyalty.ClientID) ([]loyalty.SyncRun, error) {
	runs, err := s.Store.ListSyncRuns(ctx, clientID)
	if err != nil {
		return nil, loyalty.Internal("list sync runs", err)
	}
	return runs, nil
}
