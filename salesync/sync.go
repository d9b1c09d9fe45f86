/*
Package salesync applies externally ingested video metrics to creators.

PURPOSE:

	A batch of MetricRows (one per video, cumulative counters) arrives from
	the upstream feed. For each creator in the batch the adapter upserts the
	videos, recomputes checkpoint and lifetime totals, evaluates the tier
	ladder, and recomputes progress on every open mission window.

FAILURE POLICY:

	Each creator is processed in its own transaction. A malformed row or a
	failing creator is recorded as a RowError and skipped; the batch always
	runs to the end. Every batch is logged as a SyncRun.

MONOTONIC COMPLETION:

	A MissionProgress that reached completed in a window stays completed in
	that window even if a later sync reports lower totals.

SEE ALSO:
  - loyalty/checkpoint.go: CheckpointWindow
  - adjust.go: manual sales adjustments
*/
package salesync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/creator-rewards/loyalty"
	"github.com/warp/creator-rewards/monitoring"
)

// =============================================================================
// INPUT / OUTPUT
// =============================================================================

// MetricRow is one video's cumulative metrics as reported by the feed.
type MetricRow struct {
	Handle    string          `json:"handle"`
	VideoURL  string          `json:"videoUrl"`
	Title     string          `json:"title,omitempty"`
	PostDate  time.Time       `json:"postDate"`
	Views     int64           `json:"views"`
	Likes     int64           `json:"likes"`
	Comments  int64           `json:"comments"`
	UnitsSold int64           `json:"unitsSold"`
	GMV       decimal.Decimal `json:"gmv"`
}

// RowError explains why a row was not applied. Row is the 0-based index in
// the submitted batch.
type RowError struct {
	Row    int    `json:"row"`
	Handle string `json:"handle,omitempty"`
	Reason string `json:"reason"`
}

func (e RowError) String() string {
	return fmt.Sprintf("row %d (%s): %s", e.Row, e.Handle, e.Reason)
}

// Result summarizes one batch.
type Result struct {
	RunID        string     `json:"runId"`
	RowsReceived int        `json:"rowsReceived"`
	RowsApplied  int        `json:"rowsApplied"`
	UsersUpdated int        `json:"usersUpdated"`
	UsersCreated int        `json:"usersCreated"`
	Errors       []RowError `json:"errors"`
}

var errUnknownHandle = errors.New("unknown creator handle")

// =============================================================================
// SERVICE
// =============================================================================

// Service applies metric batches and manual adjustments.
type Service struct {
	Store  loyalty.TxStore
	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string

	// AutoCreateUsers enrolls unknown handles at the lowest tier instead of
	// rejecting their rows.
	AutoCreateUsers bool
}

// NewService returns a Service with a real clock and UUID ids.
func NewService(store loyalty.TxStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Store:  store,
		Logger: logger.Named("salesync"),
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID == nil {
		return uuid.NewString()
	}
	return s.NewID()
}

// NormalizeHandle lowercases a handle and drops a leading "@".
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}

// =============================================================================
// BATCH SYNC
// =============================================================================

type indexedRow struct {
	index int
	row   MetricRow
}

// SyncSalesMetrics applies rows for clientID. It returns an error only when
// the batch cannot start (unknown client, run log unavailable); row and
// creator failures are reported in Result.Errors.
func (s *Service) SyncSalesMetrics(ctx context.Context, clientID loyalty.ClientID, rows []MetricRow) (*Result, error) {
	client, err := s.Store.GetClient(ctx, clientID)
	if err != nil {
		return nil, loyalty.Internal("get client", err)
	}
	if client == nil {
		return nil, loyalty.NotFound("client", clientID)
	}

	now := s.now()
	run := loyalty.SyncRun{
		ID:           s.newID(),
		ClientID:     clientID,
		Status:       loyalty.SyncRunning,
		RowsReceived: len(rows),
		StartedAt:    now,
	}
	if err := s.Store.SaveSyncRun(ctx, run); err != nil {
		return nil, loyalty.Internal("save sync run", err)
	}

	res := &Result{RunID: run.ID, RowsReceived: len(rows), Errors: []RowError{}}

	var order []string
	groups := make(map[string][]indexedRow)
	for i, row := range rows {
		if reason := validateRow(row); reason != "" {
			res.Errors = append(res.Errors, RowError{Row: i, Handle: row.Handle, Reason: reason})
			monitoring.SyncRowsTotal.WithLabelValues("invalid").Inc()
			continue
		}
		h := NormalizeHandle(row.Handle)
		if _, ok := groups[h]; !ok {
			order = append(order, h)
		}
		groups[h] = append(groups[h], indexedRow{index: i, row: row})
	}

	for _, handle := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		group := groups[handle]
		created, err := s.syncUser(ctx, *client, handle, group, now)
		if err != nil {
			reason := err.Error()
			if errors.Is(err, errUnknownHandle) {
				reason = errUnknownHandle.Error()
			}
			for _, r := range group {
				res.Errors = append(res.Errors, RowError{Row: r.index, Handle: r.row.Handle, Reason: reason})
			}
			monitoring.SyncRowsTotal.WithLabelValues("failed").Add(float64(len(group)))
			s.Logger.Warn("sync skipped creator",
				zap.String("client_id", string(clientID)),
				zap.String("handle", handle),
				zap.Int("rows", len(group)),
				zap.Error(err))
			continue
		}
		res.RowsApplied += len(group)
		res.UsersUpdated++
		if created {
			res.UsersCreated++
		}
		monitoring.SyncRowsTotal.WithLabelValues("applied").Add(float64(len(group)))
	}

	done := s.now()
	run.Status = loyalty.SyncCompleted
	if res.RowsApplied == 0 && len(res.Errors) > 0 {
		run.Status = loyalty.SyncFailed
	}
	run.RowsApplied = res.RowsApplied
	run.UsersUpdated = res.UsersUpdated
	run.UsersCreated = res.UsersCreated
	run.CompletedAt = &done
	for _, e := range res.Errors {
		run.Errors = append(run.Errors, e.String())
	}
	if err := s.Store.SaveSyncRun(ctx, run); err != nil {
		s.Logger.Error("failed to record sync run", zap.String("run_id", run.ID), zap.Error(err))
	}

	s.Logger.Info("sync complete",
		zap.String("client_id", string(clientID)),
		zap.String("run_id", run.ID),
		zap.Int("rows_received", res.RowsReceived),
		zap.Int("rows_applied", res.RowsApplied),
		zap.Int("users_updated", res.UsersUpdated),
		zap.Int("users_created", res.UsersCreated),
		zap.Int("errors", len(res.Errors)))
	return res, nil
}

func validateRow(r MetricRow) string {
	switch {
	case NormalizeHandle(r.Handle) == "":
		return "handle is required"
	case strings.TrimSpace(r.VideoURL) == "":
		return "video url is required"
	case r.Views < 0 || r.Likes < 0 || r.Comments < 0 || r.UnitsSold < 0:
		return "metrics must not be negative"
	case r.GMV.IsNegative():
		return "gmv must not be negative"
	}
	return ""
}

// syncUser applies one creator's rows in a single transaction.
func (s *Service) syncUser(ctx context.Context, client loyalty.Client, handle string, rows []indexedRow, now time.Time) (created bool, err error) {
	err = s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		created = false
		user, err := tx.GetUserByHandle(ctx, client.ID, handle)
		if err != nil {
			return loyalty.Internal("get user by handle", err)
		}
		if user == nil {
			if !s.AutoCreateUsers {
				return fmt.Errorf("%s: %w", handle, errUnknownHandle)
			}
			if user, err = s.enroll(ctx, tx, client.ID, handle, now); err != nil {
				return err
			}
			created = true
		}

		for _, r := range rows {
			postDate := r.row.PostDate
			if postDate.IsZero() {
				postDate = now
			}
			v := loyalty.Video{
				ID:        s.newID(),
				ClientID:  client.ID,
				UserID:    user.ID,
				URL:       strings.TrimSpace(r.row.VideoURL),
				Title:     r.row.Title,
				PostDate:  postDate.UTC(),
				Views:     r.row.Views,
				Likes:     r.row.Likes,
				Comments:  r.row.Comments,
				UnitsSold: r.row.UnitsSold,
				GMV:       r.row.GMV,
				SyncedAt:  now,
			}
			if err := tx.UpsertVideo(ctx, v); err != nil {
				return loyalty.Internal("upsert video", err)
			}
		}
		return s.recompute(ctx, tx, client, user, now)
	})
	return created, err
}

func (s *Service) enroll(ctx context.Context, tx loyalty.Store, clientID loyalty.ClientID, handle string, now time.Time) (*loyalty.User, error) {
	tiers, err := tx.ListTiers(ctx, clientID)
	if err != nil {
		return nil, loyalty.Internal("list tiers", err)
	}
	entry, ok := loyalty.NewLadder(tiers).Lowest()
	if !ok {
		return nil, fmt.Errorf("client %s has no tiers", clientID)
	}
	u := loyalty.User{
		ID:             loyalty.UserID(s.newID()),
		ClientID:       clientID,
		Handle:         handle,
		CurrentTierID:  entry.ID,
		TierAchievedAt: &now,
		SalesAggregate: decimal.Zero,
		TotalSales:     decimal.Zero,
		CreatedAt:      now,
	}
	if err := tx.SaveUser(ctx, u); err != nil {
		return nil, loyalty.Internal("save user", err)
	}
	s.Logger.Info("creator enrolled from sync",
		zap.String("client_id", string(clientID)),
		zap.String("handle", handle),
		zap.String("tier", string(entry.ID)))
	return &u, nil
}
