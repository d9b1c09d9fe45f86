package claims

import (
	"context"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/creator-rewards/loyalty"
	"github.com/warp/creator-rewards/notify"
)

// SavePaymentInfoRequest supplies payout details for an expired commission boost.
type SavePaymentInfoRequest struct {
	ClientID       loyalty.ClientID
	UserID         loyalty.UserID
	RedemptionID   loyalty.RedemptionID
	Method         loyalty.PaymentMethod
	Account        string
	ConfirmAccount string
	SaveAsDefault  bool
}

// SavePaymentInfoResult reports what was written.
type SavePaymentInfoResult struct {
	Success            bool                 `json:"success"`
	Message            string               `json:"message"`
	RedemptionID       loyalty.RedemptionID `json:"redemptionId"`
	BoostStatus        loyalty.BoostStatus  `json:"boostStatus"`
	UserPaymentUpdated bool                 `json:"userPaymentUpdated"`
}

// PaymentInfo is a user's saved default payout method with the account masked.
type PaymentInfo struct {
	HasDefault bool                  `json:"hasDefaultPayment"`
	Method     loyalty.PaymentMethod `json:"paymentMethod,omitempty"`
	Account    string                `json:"paymentAccount,omitempty"`
}

// validatePaymentInfo runs every request check before any read or write.
func validatePaymentInfo(req SavePaymentInfoRequest) (string, error) {
	account := strings.TrimSpace(req.Account)
	confirm := strings.TrimSpace(req.ConfirmAccount)

	switch req.Method {
	case loyalty.PaymentPayPal, loyalty.PaymentVenmo:
	default:
		return "", loyalty.Invalid(loyalty.CodeInvalidRequest, "paymentMethod", "must be paypal or venmo")
	}
	if account == "" {
		return "", loyalty.Invalid(loyalty.CodeInvalidRequest, "paymentAccount", "required")
	}
	if account != confirm {
		return "", loyalty.Invalid(loyalty.CodePaymentAccountMismatch, "paymentAccountConfirm", "payment accounts do not match")
	}

	if req.Method == loyalty.PaymentPayPal {
		addr, err := mail.ParseAddress(account)
		if err != nil || addr.Address != account {
			return "", loyalty.Invalid(loyalty.CodeInvalidRequest, "paymentAccount", "paypal requires an email address")
		}
	} else {
		if !strings.HasPrefix(account, "@") || len(account) < 2 || strings.ContainsAny(account, " \t") {
			return "", loyalty.Invalid(loyalty.CodeInvalidRequest, "paymentAccount", "venmo requires an @handle")
		}
	}
	return account, nil
}

// SavePaymentInfo seals the payout account onto a boost awaiting it, moves
// the boost to pending_payout and the redemption to fulfilled.
func (s *Service) SavePaymentInfo(ctx context.Context, req SavePaymentInfoRequest) (res *SavePaymentInfoResult, err error) {
	defer func() { observe("save_payment_info", err) }()

	account, err := validatePaymentInfo(req)
	if err != nil {
		return nil, err
	}
	sealed, err := s.Sealer.Seal(account)
	if err != nil {
		return nil, loyalty.Internal("seal payment account", err)
	}

	err = s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		r, err := tx.GetRedemption(ctx, req.ClientID, req.RedemptionID)
		if err != nil {
			return loyalty.Internal("get redemption", err)
		}
		if r == nil || r.UserID != req.UserID {
			return loyalty.NotFound("redemption", req.RedemptionID)
		}
		b, err := tx.GetCommissionBoost(ctx, req.ClientID, r.ID)
		if err != nil {
			return loyalty.Internal("get commission boost", err)
		}
		if b == nil || b.BoostStatus != loyalty.BoostPendingInfo {
			return loyalty.NotEligible(loyalty.CodePaymentInfoNotRequired, "redemption %s is not awaiting payment info", r.ID)
		}

		now := s.now()
		b.PaymentMethod = req.Method
		b.PaymentAccount = sealed
		b.PaymentInfoCollectedAt = &now
		b.BoostStatus = loyalty.BoostPendingPayout
		b.UpdatedAt = now
		if err := tx.UpdateCommissionBoost(ctx, *b); err != nil {
			return loyalty.Internal("update commission boost", err)
		}

		if err := r.Advance(loyalty.RedemptionFulfilled, now); err != nil {
			return err
		}
		if err := tx.UpdateRedemption(ctx, *r); err != nil {
			return loyalty.Internal("update redemption", err)
		}

		res = &SavePaymentInfoResult{
			Success:      true,
			Message:      "Payment info saved! Your payout is on its way.",
			RedemptionID: r.ID,
			BoostStatus:  b.BoostStatus,
		}
		if !req.SaveAsDefault {
			return nil
		}

		u, err := tx.GetUser(ctx, req.ClientID, req.UserID)
		if err != nil {
			return loyalty.Internal("get user", err)
		}
		if u == nil {
			return loyalty.NotFound("user", req.UserID)
		}
		u.DefaultPaymentMethod = req.Method
		u.DefaultPaymentAccount = sealed
		if err := tx.SaveUser(ctx, *u); err != nil {
			return loyalty.Internal("save user", err)
		}
		res.UserPaymentUpdated = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("payment info saved",
		zap.String("client_id", string(req.ClientID)),
		zap.String("redemption_id", string(req.RedemptionID)),
		zap.String("method", string(req.Method)),
		zap.Bool("save_as_default", req.SaveAsDefault))
	s.notify(ctx, notify.Notification{
		Kind:         notify.KindPaymentInfoSaved,
		ClientID:     req.ClientID,
		UserID:       req.UserID,
		RedemptionID: req.RedemptionID,
		RewardType:   loyalty.RewardCommissionBoost,
		Message:      res.Message,
	})
	return res, nil
}

// DefaultPaymentInfo returns the user's saved payout method with the account masked.
func (s *Service) DefaultPaymentInfo(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID) (*PaymentInfo, error) {
	u, err := s.Store.GetUser(ctx, clientID, userID)
	if err != nil {
		return nil, loyalty.Internal("get user", err)
	}
	if u == nil {
		return nil, loyalty.NotFound("user", userID)
	}
	if u.DefaultPaymentMethod == "" || u.DefaultPaymentAccount == "" {
		return &PaymentInfo{}, nil
	}
	account, err := s.Sealer.Open(u.DefaultPaymentAccount)
	if err != nil {
		return nil, loyalty.Internal("open payment account", err)
	}
	return &PaymentInfo{HasDefault: true, Method: u.DefaultPaymentMethod, Account: maskAccount(account)}, nil
}

// maskAccount keeps the first and last characters of the local part:
// "jane@example.com" -> "j**e@example.com", "@jane" -> "@j**e".
func maskAccount(account string) string {
	local, domain, hasDomain := strings.Cut(account, "@")
	prefix := ""
	if !hasDomain {
		domain = ""
	} else if local == "" {
		prefix, local, domain = "@", domain, ""
		hasDomain = false
	}
	if len(local) > 2 {
		local = local[:1] + strings.Repeat("*", len(local)-2) + local[len(local)-1:]
	}
	if hasDomain {
		return prefix + local + "@" + domain
	}
	return prefix + local
}
