/*
Package sqlite provides a SQLite-backed implementation of loyalty.TxStore.

PURPOSE:
  Persists tenants, tiers, creators, missions, rewards, progress,
  redemptions and their sub-states. The schema carries the invariants the
  services rely on, so a racing writer cannot slip past a pre-check.

KEY TABLES:
  clients, tiers, users:      tenant configuration and creators
  missions, rewards:          admin-authored catalog (value_json per reward)
  mission_progress:           one row per (user, mission, checkpoint window)
  redemptions:                the claim record
  commission_boosts,
  physical_gifts:             1:1 sub-states keyed by redemption_id
  raffle_participations:      one row per (mission, user)
  videos, sales_adjustments:  sync inputs
  sync_runs:                  sync audit log

INDEXES:
  Correctness backstops:
  - idx_unique_active_claim: at most one claimable/claimed/fulfilled
    redemption per (client, user, claim_key)
  - idx_unique_raffle_entry: one participation per (client, mission, user)
  - idx_unique_progress_window: one progress row per window
  - idx_unique_video_url: videos upsert by URL

CONCURRENCY:
  The pool is limited to one connection. WithTx holds it for the whole
  transaction, so claim and entry transactions are serialized and every
  read inside fn sees the transaction's own writes. Code running inside
  WithTx must use the Store handed to fn, never the outer Store.

TIMESTAMPS:
  Stored as fixed-width UTC text so lexical order is chronological.

USAGE:
  store, err := sqlite.New("./data/rewards.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - loyalty/store.go: Interface definitions
  - store/memory/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/creator-rewards/loyalty"
)

// Store implements loyalty.TxStore using SQLite.
type Store struct {
	*queries
	db *sql.DB
}

var _ loyalty.TxStore = (*Store)(nil)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements loyalty.Store on top of a dbtx.
type queries struct {
	q dbtx
}

var _ loyalty.Store = (*queries)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: &queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(loyalty.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		vip_metric TEXT NOT NULL,
		checkpoint_months INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tiers (
		client_id TEXT NOT NULL REFERENCES clients(id),
		id TEXT NOT NULL,
		tier_order INTEGER NOT NULL,
		name TEXT NOT NULL,
		color TEXT,
		sales_threshold TEXT NOT NULL,
		units_threshold INTEGER NOT NULL DEFAULT 0,
		checkpoint_exempt INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (client_id, id)
	);

	CREATE TABLE IF NOT EXISTS users (
		client_id TEXT NOT NULL REFERENCES clients(id),
		id TEXT NOT NULL,
		handle TEXT NOT NULL,
		email TEXT,
		current_tier_id TEXT NOT NULL,
		tier_achieved_at TEXT,
		next_checkpoint_at TEXT,
		last_login_at TEXT,
		sales_aggregate TEXT NOT NULL,
		units_aggregate INTEGER NOT NULL DEFAULT 0,
		total_sales TEXT NOT NULL,
		total_units INTEGER NOT NULL DEFAULT 0,
		is_admin INTEGER NOT NULL DEFAULT 0,
		default_payment_method TEXT,
		default_payment_account TEXT,
		created_at TEXT NOT NULL,
		PRIMARY KEY (client_id, id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_handle
		ON users(client_id, handle COLLATE NOCASE);

	CREATE TABLE IF NOT EXISTS missions (
		client_id TEXT NOT NULL REFERENCES clients(id),
		id TEXT NOT NULL,
		mission_type TEXT NOT NULL,
		title TEXT,
		target_value TEXT NOT NULL,
		target_unit TEXT NOT NULL,
		tier_id TEXT,
		tier_comparator TEXT,
		preview_from_tier TEXT,
		activated INTEGER NOT NULL DEFAULT 0,
		raffle_end_date TEXT,
		display_order INTEGER NOT NULL DEFAULT 0,
		reward_id TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		PRIMARY KEY (client_id, id)
	);

	CREATE TABLE IF NOT EXISTS rewards (
		client_id TEXT NOT NULL REFERENCES clients(id),
		id TEXT NOT NULL,
		reward_type TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		value_json TEXT NOT NULL,
		tier_id TEXT,
		tier_comparator TEXT,
		preview_from_tier TEXT,
		frequency TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 1,
		source TEXT NOT NULL,
		display_order INTEGER NOT NULL DEFAULT 0,
		enabled INTEGER NOT NULL DEFAULT 1,
		expires_days INTEGER,
		created_at TEXT NOT NULL,
		PRIMARY KEY (client_id, id)
	);

	CREATE TABLE IF NOT EXISTS mission_progress (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		mission_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		current_value TEXT NOT NULL,
		status TEXT NOT NULL,
		checkpoint_start TEXT NOT NULL,
		checkpoint_end TEXT,
		completed_at TEXT,
		consumed_at TEXT,
		redemption_id TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_progress_window
		ON mission_progress(client_id, user_id, mission_id, checkpoint_start);

	CREATE TABLE IF NOT EXISTS redemptions (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		reward_id TEXT NOT NULL,
		mission_id TEXT,
		progress_id TEXT,
		claim_key TEXT NOT NULL,
		status TEXT NOT NULL,
		claimed_at TEXT,
		fulfilled_at TEXT,
		concluded_at TEXT,
		rejected_at TEXT,
		rejection_reason TEXT,
		scheduled_activation_at TEXT,
		activation_date TEXT,
		expiration_date TEXT,
		fulfillment_notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: at most one non-terminal redemption per claim key.
	-- Two concurrent claims for the same user/reward cannot both commit.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_active_claim
		ON redemptions(client_id, user_id, claim_key)
		WHERE status IN ('claimable', 'claimed', 'fulfilled');

	CREATE INDEX IF NOT EXISTS idx_redemptions_user
		ON redemptions(client_id, user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_redemptions_status
		ON redemptions(client_id, status);

	CREATE TABLE IF NOT EXISTS commission_boosts (
		redemption_id TEXT PRIMARY KEY REFERENCES redemptions(id),
		client_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		boost_status TEXT NOT NULL,
		scheduled_activation_at TEXT NOT NULL,
		activated_at TEXT,
		expires_at TEXT,
		duration_days INTEGER NOT NULL,
		rate TEXT NOT NULL,
		sales_at_activation TEXT,
		sales_at_expiration TEXT,
		final_payout TEXT,
		payment_method TEXT,
		payment_account TEXT,
		payment_info_collected_at TEXT,
		paid_at TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_boosts_status
		ON commission_boosts(client_id, boost_status);

	CREATE TABLE IF NOT EXISTS physical_gifts (
		redemption_id TEXT PRIMARY KEY REFERENCES redemptions(id),
		client_id TEXT NOT NULL,
		requires_size INTEGER NOT NULL DEFAULT 0,
		size_category TEXT,
		size_value TEXT,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		line1 TEXT NOT NULL,
		line2 TEXT,
		city TEXT NOT NULL,
		state TEXT NOT NULL,
		postal_code TEXT NOT NULL,
		country TEXT,
		phone TEXT,
		shipped_at TEXT,
		tracking_number TEXT,
		carrier TEXT,
		delivered_at TEXT
	);

	CREATE TABLE IF NOT EXISTS raffle_participations (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		mission_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		redemption_id TEXT NOT NULL REFERENCES redemptions(id),
		participated_at TEXT NOT NULL,
		is_winner INTEGER,
		winner_selected_at TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_raffle_entry
		ON raffle_participations(client_id, mission_id, user_id);

	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT,
		post_date TEXT NOT NULL,
		views INTEGER NOT NULL DEFAULT 0,
		likes INTEGER NOT NULL DEFAULT 0,
		comments INTEGER NOT NULL DEFAULT 0,
		units_sold INTEGER NOT NULL DEFAULT 0,
		gmv TEXT NOT NULL,
		synced_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_video_url
		ON videos(client_id, url);
	CREATE INDEX IF NOT EXISTS idx_videos_user
		ON videos(client_id, user_id, post_date);

	CREATE TABLE IF NOT EXISTS sales_adjustments (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		units INTEGER NOT NULL DEFAULT 0,
		adjustment_type TEXT NOT NULL,
		reason TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adjustments_user
		ON sales_adjustments(client_id, user_id, created_at);

	CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		status TEXT NOT NULL,
		rows_received INTEGER NOT NULL DEFAULT 0,
		rows_applied INTEGER NOT NULL DEFAULT 0,
		users_updated INTEGER NOT NULL DEFAULT 0,
		users_created INTEGER NOT NULL DEFAULT 0,
		errors_json TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CATALOG STORE
// =============================================================================

func (s *queries) GetClient(ctx context.Context, id loyalty.ClientID) (*loyalty.Client, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, name, vip_metric, checkpoint_months, created_at
		FROM clients WHERE id = ?`, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *queries) ListClients(ctx context.Context) ([]loyalty.Client, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, vip_metric, checkpoint_months, created_at
		FROM clients ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []loyalty.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *queries) SaveClient(ctx context.Context, c loyalty.Client) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO clients (id, name, vip_metric, checkpoint_months, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			vip_metric = excluded.vip_metric,
			checkpoint_months = excluded.checkpoint_months`,
		c.ID, c.Name, c.VIPMetric, c.CheckpointMonths, fmtTime(c.CreatedAt))
	return err
}

func (s *queries) ListTiers(ctx context.Context, clientID loyalty.ClientID) ([]loyalty.Tier, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT client_id, id, tier_order, name, color, sales_threshold, units_threshold, checkpoint_exempt
		FROM tiers WHERE client_id = ? ORDER BY tier_order`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []loyalty.Tier
	for rows.Next() {
		var (
			t     loyalty.Tier
			color sql.NullString
		)
		if err := rows.Scan(&t.ClientID, &t.ID, &t.Order, &t.Name, &color,
			&t.SalesThreshold, &t.UnitsThreshold, &t.CheckpointExempt); err != nil {
			return nil, err
		}
		t.Color = color.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *queries) SaveTier(ctx context.Context, t loyalty.Tier) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO tiers (client_id, id, tier_order, name, color, sales_threshold, units_threshold, checkpoint_exempt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id, id) DO UPDATE SET
			tier_order = excluded.tier_order,
			name = excluded.name,
			color = excluded.color,
			sales_threshold = excluded.sales_threshold,
			units_threshold = excluded.units_threshold,
			checkpoint_exempt = excluded.checkpoint_exempt`,
		t.ClientID, t.ID, t.Order, t.Name, nullString(t.Color),
		t.SalesThreshold, t.UnitsThreshold, t.CheckpointExempt)
	return err
}

const missionColumns = `client_id, id, mission_type, title, target_value, target_unit, tier_id, tier_comparator,
	preview_from_tier, activated, raffle_end_date, display_order, reward_id, enabled, created_at`

func (s *queries) GetMission(ctx context.Context, clientID loyalty.ClientID, id loyalty.MissionID) (*loyalty.Mission, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE client_id = ? AND id = ?`, clientID, id)
	m, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (s *queries) ListMissions(ctx context.Context, clientID loyalty.ClientID) ([]loyalty.Mission, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE client_id = ? ORDER BY display_order, id`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []loyalty.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *queries) SaveMission(ctx context.Context, m loyalty.Mission) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO missions (`+missionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id, id) DO UPDATE SET
			mission_type = excluded.mission_type,
			title = excluded.title,
			target_value = excluded.target_value,
			target_unit = excluded.target_unit,
			tier_id = excluded.tier_id,
			tier_comparator = excluded.tier_comparator,
			preview_from_tier = excluded.preview_from_tier,
			activated = excluded.activated,
			raffle_end_date = excluded.raffle_end_date,
			display_order = excluded.display_order,
			reward_id = excluded.reward_id,
			enabled = excluded.enabled`,
		m.ClientID, m.ID, m.Type, nullString(m.Title), m.TargetValue, m.TargetUnit,
		nullString(string(m.Eligibility.TierID)), nullString(string(m.Eligibility.Comparator)),
		nullString(string(m.PreviewFromTier)), m.Activated, fmtTimePtr(m.RaffleEndDate),
		m.DisplayOrder, m.RewardID, m.Enabled, fmtTime(m.CreatedAt))
	return err
}

const rewardColumns = `client_id, id, reward_type, name, description, value_json, tier_id, tier_comparator,
	preview_from_tier, frequency, quantity, source, display_order, enabled, expires_days, created_at`

func (s *queries) GetReward(ctx context.Context, clientID loyalty.ClientID, id loyalty.RewardID) (*loyalty.Reward, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE client_id = ? AND id = ?`, clientID, id)
	r, err := scanReward(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *queries) ListRewards(ctx context.Context, clientID loyalty.ClientID) ([]loyalty.Reward, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE client_id = ? ORDER BY display_order, id`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []loyalty.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *queries) SaveReward(ctx context.Context, r loyalty.Reward) error {
	valueJSON, err := json.Marshal(loyalty.DataOf(r.Value))
	if err != nil {
		return fmt.Errorf("failed to encode reward value: %w", err)
	}
	var expires sql.NullInt64
	if r.ExpiresDays != nil {
		expires = sql.NullInt64{Int64: int64(*r.ExpiresDays), Valid: true}
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO rewards (`+rewardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id, id) DO UPDATE SET
			reward_type = excluded.reward_type,
			name = excluded.name,
			description = excluded.description,
			value_json = excluded.value_json,
			tier_id = excluded.tier_id,
			tier_comparator = excluded.tier_comparator,
			preview_from_tier = excluded.preview_from_tier,
			frequency = excluded.frequency,
			quantity = excluded.quantity,
			source = excluded.source,
			display_order = excluded.display_order,
			enabled = excluded.enabled,
			expires_days = excluded.expires_days`,
		r.ClientID, r.ID, r.Type, r.Name, nullString(r.Description), string(valueJSON),
		nullString(string(r.Eligibility.TierID)), nullString(string(r.Eligibility.Comparator)),
		nullString(string(r.PreviewFromTier)), r.Frequency, r.Quantity, r.Source,
		r.DisplayOrder, r.Enabled, expires, fmtTime(r.CreatedAt))
	return err
}

// =============================================================================
// MEMBER STORE
// =============================================================================

const userColumns = `client_id, id, handle, email, current_tier_id, tier_achieved_at, next_checkpoint_at,
	last_login_at, sales_aggregate, units_aggregate, total_sales, total_units, is_admin,
	default_payment_method, default_payment_account, created_at`

func (s *queries) GetUser(ctx context.Context, clientID loyalty.ClientID, id loyalty.UserID) (*loyalty.User, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE client_id = ? AND id = ?`, clientID, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (s *queries) GetUserByHandle(ctx context.Context, clientID loyalty.ClientID, handle string) (*loyalty.User, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE client_id = ? AND handle = ? COLLATE NOCASE`, clientID, handle)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (s *queries) ListUsers(ctx context.Context, clientID loyalty.ClientID) ([]loyalty.User, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE client_id = ? ORDER BY handle`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []loyalty.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (s *queries) SaveUser(ctx context.Context, u loyalty.User) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id, id) DO UPDATE SET
			handle = excluded.handle,
			email = excluded.email,
			current_tier_id = excluded.current_tier_id,
			tier_achieved_at = excluded.tier_achieved_at,
			next_checkpoint_at = excluded.next_checkpoint_at,
			last_login_at = excluded.last_login_at,
			sales_aggregate = excluded.sales_aggregate,
			units_aggregate = excluded.units_aggregate,
			total_sales = excluded.total_sales,
			total_units = excluded.total_units,
			is_admin = excluded.is_admin,
			default_payment_method = excluded.default_payment_method,
			default_payment_account = excluded.default_payment_account`,
		u.ClientID, u.ID, u.Handle, nullString(u.Email), u.CurrentTierID,
		fmtTimePtr(u.TierAchievedAt), fmtTimePtr(u.NextCheckpointAt), fmtTimePtr(u.LastLoginAt),
		u.SalesAggregate, u.UnitsAggregate, u.TotalSales, u.TotalUnits, u.IsAdmin,
		nullString(string(u.DefaultPaymentMethod)), nullString(u.DefaultPaymentAccount), fmtTime(u.CreatedAt))
	return err
}

// =============================================================================
// PROGRESS STORE
// =============================================================================

const progressColumns = `id, client_id, mission_id, user_id, current_value, status, checkpoint_start,
	checkpoint_end, completed_at, consumed_at, redemption_id, updated_at`

func (s *queries) GetProgress(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID, missionID loyalty.MissionID, start time.Time) (*loyalty.MissionProgress, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+progressColumns+` FROM mission_progress
		WHERE client_id = ? AND user_id = ? AND mission_id = ? AND checkpoint_start = ?`,
		clientID, userID, missionID, fmtTime(start))
	p, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *queries) ListProgress(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID) ([]loyalty.MissionProgress, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+progressColumns+` FROM mission_progress
		WHERE client_id = ? AND user_id = ?
		ORDER BY checkpoint_start, mission_id`, clientID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []loyalty.MissionProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *queries) SaveProgress(ctx context.Context, p loyalty.MissionProgress) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO mission_progress (`+progressColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id, user_id, mission_id, checkpoint_start) DO UPDATE SET
			current_value = excluded.current_value,
			status = excluded.status,
			checkpoint_end = excluded.checkpoint_end,
			completed_at = excluded.completed_at,
			consumed_at = excluded.consumed_at,
			redemption_id = excluded.redemption_id,
			updated_at = excluded.updated_at`,
		p.ID, p.ClientID, p.MissionID, p.UserID, p.CurrentValue, p.Status,
		fmtTime(p.CheckpointStart), fmtZeroTime(p.CheckpointEnd), fmtTimePtr(p.CompletedAt),
		fmtTimePtr(p.ConsumedAt), nullString(string(p.RedemptionID)), fmtTime(p.UpdatedAt))
	return err
}

// =============================================================================
// REDEMPTION STORE
// =============================================================================

const redemptionColumns = `id, client_id, user_id, reward_id, mission_id, progress_id, claim_key, status,
	claimed_at, fulfilled_at, concluded_at, rejected_at, rejection_reason, scheduled_activation_at,
	activation_date, expiration_date, fulfillment_notes, created_at, updated_at`

func redemptionArgs(r loyalty.Redemption) []any {
	return []any{
		r.ID, r.ClientID, r.UserID, r.RewardID, nullString(string(r.MissionID)), nullString(string(r.ProgressID)),
		r.ClaimKey, r.Status, fmtTimePtr(r.ClaimedAt), fmtTimePtr(r.FulfilledAt), fmtTimePtr(r.ConcludedAt),
		fmtTimePtr(r.RejectedAt), nullString(r.RejectionReason), fmtTimePtr(r.ScheduledActivationAt),
		fmtTimePtr(r.ActivationDate), fmtTimePtr(r.ExpirationDate), nullString(r.FulfillmentNotes),
		fmtTime(r.CreatedAt), fmtTime(r.UpdatedAt),
	}
}

// CreateRedemption inserts a redemption. The unique partial index turns a
// second active claim into ErrDuplicateClaim.
func (s *queries) CreateRedemption(ctx context.Context, r loyalty.Redemption) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO redemptions (`+redemptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		redemptionArgs(r)...)
	if isUniqueConstraintError(err) {
		return loyalty.ErrDuplicateClaim
	}
	return err
}

func (s *queries) UpdateRedemption(ctx context.Context, r loyalty.Redemption) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE redemptions SET
			status = ?, claimed_at = ?, fulfilled_at = ?, concluded_at = ?, rejected_at = ?,
			rejection_reason = ?, scheduled_activation_at = ?, activation_date = ?,
			expiration_date = ?, fulfillment_notes = ?, updated_at = ?
		WHERE client_id = ? AND id = ?`,
		r.Status, fmtTimePtr(r.ClaimedAt), fmtTimePtr(r.FulfilledAt), fmtTimePtr(r.ConcludedAt),
		fmtTimePtr(r.RejectedAt), nullString(r.RejectionReason), fmtTimePtr(r.ScheduledActivationAt),
		fmtTimePtr(r.ActivationDate), fmtTimePtr(r.ExpirationDate), nullString(r.FulfillmentNotes),
		fmtTime(r.UpdatedAt), r.ClientID, r.ID)
	if isUniqueConstraintError(err) {
		return loyalty.ErrDuplicateClaim
	}
	return requireAffected(res, err, "redemption", r.ID)
}

func (s *queries) GetRedemption(ctx context.Context, clientID loyalty.ClientID, id loyalty.RedemptionID) (*loyalty.Redemption, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+redemptionColumns+` FROM redemptions WHERE client_id = ? AND id = ?`, clientID, id)
	r, err := scanRedemption(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *queries) ListRedemptions(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID) ([]loyalty.Redemption, error) {
	return s.listRedemptions(ctx, `
		SELECT `+redemptionColumns+` FROM redemptions
		WHERE client_id = ? AND user_id = ?
		ORDER BY created_at, id`, clientID, userID)
}

func (s *queries) ListRedemptionsByStatus(ctx context.Context, clientID loyalty.ClientID, status loyalty.RedemptionStatus) ([]loyalty.Redemption, error) {
	return s.listRedemptions(ctx, `
		SELECT `+redemptionColumns+` FROM redemptions
		WHERE client_id = ? AND status = ?
		ORDER BY created_at, id`, clientID, status)
}

func (s *queries) listRedemptions(ctx context.Context, query string, args ...any) ([]loyalty.Redemption, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []loyalty.Redemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

const boostColumns = `redemption_id, client_id, user_id, boost_status, scheduled_activation_at, activated_at,
	expires_at, duration_days, rate, sales_at_activation, sales_at_expiration, final_payout,
	payment_method, payment_account, payment_info_collected_at, paid_at, updated_at`

func (s *queries) CreateCommissionBoost(ctx context.Context, b loyalty.CommissionBoost) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO commission_boosts (`+boostColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.RedemptionID, b.ClientID, b.UserID, b.BoostStatus, fmtTime(b.ScheduledActivationAt),
		fmtTimePtr(b.ActivatedAt), fmtTimePtr(b.ExpiresAt), b.DurationDays, b.Rate,
		b.SalesAtActivation, b.SalesAtExpiration, b.FinalPayout,
		nullString(string(b.PaymentMethod)), nullString(b.PaymentAccount),
		fmtTimePtr(b.PaymentInfoCollectedAt), fmtTimePtr(b.PaidAt), fmtTime(b.UpdatedAt))
	return err
}

func (s *queries) UpdateCommissionBoost(ctx context.Context, b loyalty.CommissionBoost) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE commission_boosts SET
			boost_status = ?, scheduled_activation_at = ?, activated_at = ?, expires_at = ?,
			duration_days = ?, rate = ?, sales_at_activation = ?, sales_at_expiration = ?,
			final_payout = ?, payment_method = ?, payment_account = ?,
			payment_info_collected_at = ?, paid_at = ?, updated_at = ?
		WHERE client_id = ? AND redemption_id = ?`,
		b.BoostStatus, fmtTime(b.ScheduledActivationAt), fmtTimePtr(b.ActivatedAt), fmtTimePtr(b.ExpiresAt),
		b.DurationDays, b.Rate, b.SalesAtActivation, b.SalesAtExpiration, b.FinalPayout,
		nullString(string(b.PaymentMethod)), nullString(b.PaymentAccount),
		fmtTimePtr(b.PaymentInfoCollectedAt), fmtTimePtr(b.PaidAt), fmtTime(b.UpdatedAt),
		b.ClientID, b.RedemptionID)
	return requireAffected(res, err, "commission boost", b.RedemptionID)
}

func (s *queries) GetCommissionBoost(ctx context.Context, clientID loyalty.ClientID, id loyalty.RedemptionID) (*loyalty.CommissionBoost, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+boostColumns+` FROM commission_boosts WHERE client_id = ? AND redemption_id = ?`, clientID, id)
	b, err := scanBoost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (s *queries) ListCommissionBoosts(ctx context.Context, clientID loyalty.ClientID, status loyalty.BoostStatus) ([]loyalty.CommissionBoost, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+boostColumns+` FROM commission_boosts
		WHERE client_id = ? AND boost_status = ?
		ORDER BY redemption_id`, clientID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []loyalty.CommissionBoost
	for rows.Next() {
		b, err := scanBoost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

const giftColumns = `redemption_id, client_id, requires_size, size_category, size_value, first_name, last_name,
	line1, line2, city, state, postal_code, country, phone, shipped_at, tracking_number, carrier, delivered_at`

func (s *queries) CreatePhysicalGift(ctx context.Context, g loyalty.PhysicalGift) error {
	a := g.Shipping
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO physical_gifts (`+giftColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.RedemptionID, g.ClientID, g.RequiresSize, nullString(g.SizeCategory), nullString(g.SizeValue),
		a.FirstName, a.LastName, a.Line1, nullString(a.Line2), a.City, a.State, a.PostalCode,
		nullString(a.Country), nullString(a.Phone), fmtTimePtr(g.ShippedAt),
		nullString(g.TrackingNumber), nullString(g.Carrier), fmtTimePtr(g.DeliveredAt))
	return err
}

func (s *queries) UpdatePhysicalGift(ctx context.Context, g loyalty.PhysicalGift) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE physical_gifts SET
			shipped_at = ?, tracking_number = ?, carrier = ?, delivered_at = ?
		WHERE client_id = ? AND redemption_id = ?`,
		fmtTimePtr(g.ShippedAt), nullString(g.TrackingNumber), nullString(g.Carrier),
		fmtTimePtr(g.DeliveredAt), g.ClientID, g.RedemptionID)
	return requireAffected(res, err, "physical gift", g.RedemptionID)
}

func (s *queries) GetPhysicalGift(ctx context.Context, clientID loyalty.ClientID, id loyalty.RedemptionID) (*loyalty.PhysicalGift, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+giftColumns+` FROM physical_gifts WHERE client_id = ? AND redemption_id = ?`, clientID, id)

	var (
		g                                          loyalty.PhysicalGift
		sizeCategory, sizeValue, line2, country    sql.NullString
		phone, tracking, carrier, shipped, delivered sql.NullString
	)
	err := row.Scan(&g.RedemptionID, &g.ClientID, &g.RequiresSize, &sizeCategory, &sizeValue,
		&g.Shipping.FirstName, &g.Shipping.LastName, &g.Shipping.Line1, &line2, &g.Shipping.City,
		&g.Shipping.State, &g.Shipping.PostalCode, &country, &phone, &shipped, &tracking, &carrier, &delivered)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	g.SizeCategory = sizeCategory.String
	g.SizeValue = sizeValue.String
	g.Shipping.Line2 = line2.String
	g.Shipping.Country = country.String
	g.Shipping.Phone = phone.String
	g.TrackingNumber = tracking.String
	g.Carrier = carrier.String
	g.ShippedAt = parseTimePtr(shipped)
	g.DeliveredAt = parseTimePtr(delivered)
	return &g, nil
}

const raffleColumns = `id, client_id, mission_id, user_id, redemption_id, participated_at, is_winner, winner_selected_at`

// CreateRaffleParticipation inserts an entry; a second entry for the same
// mission and user becomes ErrDuplicateEntry.
func (s *queries) CreateRaffleParticipation(ctx context.Context, p loyalty.RaffleParticipation) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO raffle_participations (`+raffleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ClientID, p.MissionID, p.UserID, p.RedemptionID, fmtTime(p.ParticipatedAt),
		nullBool(p.IsWinner), fmtTimePtr(p.WinnerSelectedAt))
	if isUniqueConstraintError(err) {
		return loyalty.ErrDuplicateEntry
	}
	return err
}

// UpdateRaffleParticipation only writes while the winner flag is unset.
func (s *queries) UpdateRaffleParticipation(ctx context.Context, p loyalty.RaffleParticipation) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE raffle_participations SET is_winner = ?, winner_selected_at = ?
		WHERE client_id = ? AND mission_id = ? AND user_id = ? AND is_winner IS NULL`,
		nullBool(p.IsWinner), fmtTimePtr(p.WinnerSelectedAt), p.ClientID, p.MissionID, p.UserID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var count int
	if err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM raffle_participations
		WHERE client_id = ? AND mission_id = ? AND user_id = ?`,
		p.ClientID, p.MissionID, p.UserID).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return loyalty.NotFound("raffle participation", p.ID)
	}
	return loyalty.ErrWinnerAlreadySelected
}

func (s *queries) ListRaffleParticipations(ctx context.Context, clientID loyalty.ClientID, missionID loyalty.MissionID) ([]loyalty.RaffleParticipation, error) {
	return s.listParticipations(ctx, `
		SELECT `+raffleColumns+` FROM raffle_participations
		WHERE client_id = ? AND mission_id = ?
		ORDER BY participated_at, id`, clientID, missionID)
}

func (s *queries) ListUserRaffleParticipations(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID) ([]loyalty.RaffleParticipation, error) {
	return s.listParticipations(ctx, `
		SELECT `+raffleColumns+` FROM raffle_participations
		WHERE client_id = ? AND user_id = ?
		ORDER BY participated_at, id`, clientID, userID)
}

func (s *queries) listParticipations(ctx context.Context, query string, args ...any) ([]loyalty.RaffleParticipation, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []loyalty.RaffleParticipation
	for rows.Next() {
		var (
			p                        loyalty.RaffleParticipation
			participated             string
			isWinner                 sql.NullBool
			selected                 sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.ClientID, &p.MissionID, &p.UserID, &p.RedemptionID,
			&participated, &isWinner, &selected); err != nil {
			return nil, err
		}
		p.ParticipatedAt = parseTime(participated)
		if isWinner.Valid {
			won := isWinner.Bool
			p.IsWinner = &won
		}
		p.WinnerSelectedAt = parseTimePtr(selected)
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// METRICS STORE
// =============================================================================

func (s *queries) UpsertVideo(ctx context.Context, v loyalty.Video) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO videos (id, client_id, user_id, url, title, post_date, views, likes, comments,
			units_sold, gmv, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id, url) DO UPDATE SET
			user_id = excluded.user_id,
			title = excluded.title,
			post_date = excluded.post_date,
			views = excluded.views,
			likes = excluded.likes,
			comments = excluded.comments,
			units_sold = excluded.units_sold,
			gmv = excluded.gmv,
			synced_at = excluded.synced_at`,
		v.ID, v.ClientID, v.UserID, v.URL, nullString(v.Title), fmtTime(v.PostDate),
		v.Views, v.Likes, v.Comments, v.UnitsSold, v.GMV, fmtTime(v.SyncedAt))
	return err
}

func (s *queries) ListVideos(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID) ([]loyalty.Video, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, client_id, user_id, url, title, post_date, views, likes, comments, units_sold, gmv, synced_at
		FROM videos WHERE client_id = ? AND user_id = ?
		ORDER BY post_date, url`, clientID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []loyalty.Video
	for rows.Next() {
		var (
			v                  loyalty.Video
			title              sql.NullString
			postDate, syncedAt string
		)
		if err := rows.Scan(&v.ID, &v.ClientID, &v.UserID, &v.URL, &title, &postDate,
			&v.Views, &v.Likes, &v.Comments, &v.UnitsSold, &v.GMV, &syncedAt); err != nil {
			return nil, err
		}
		v.Title = title.String
		v.PostDate = parseTime(postDate)
		v.SyncedAt = parseTime(syncedAt)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *queries) CreateSalesAdjustment(ctx context.Context, a loyalty.SalesAdjustment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sales_adjustments (id, client_id, user_id, amount, units, adjustment_type, reason, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ClientID, a.UserID, a.Amount, a.Units, a.Type, nullString(a.Reason),
		nullString(string(a.CreatedBy)), fmtTime(a.CreatedAt))
	return err
}

func (s *queries) ListSalesAdjustments(ctx context.Context, clientID loyalty.ClientID, userID loyalty.UserID) ([]loyalty.SalesAdjustment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, client_id, user_id, amount, units, adjustment_type, reason, created_by, created_at
		FROM sales_adjustments WHERE client_id = ? AND user_id = ?
		ORDER BY created_at, id`, clientID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []loyalty.SalesAdjustment
	for rows.Next() {
		var (
			a                 loyalty.SalesAdjustment
			reason, createdBy sql.NullString
			createdAt         string
		)
		if err := rows.Scan(&a.ID, &a.ClientID, &a.UserID, &a.Amount, &a.Units, &a.Type,
			&reason, &createdBy, &createdAt); err != nil {
			return nil, err
		}
		a.Reason = reason.String
		a.CreatedBy = loyalty.UserID(createdBy.String)
		a.CreatedAt = parseTime(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveSyncRun inserts or updates a sync run record.
func (s *queries) SaveSyncRun(ctx context.Context, r loyalty.SyncRun) error {
	errorsJSON, err := json.Marshal(r.Errors)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO sync_runs (id, client_id, status, rows_received, rows_applied, users_updated,
			users_created, errors_json, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			rows_received = excluded.rows_received,
			rows_applied = excluded.rows_applied,
			users_updated = excluded.users_updated,
			users_created = excluded.users_created,
			errors_json = excluded.errors_json,
			completed_at = excluded.completed_at`,
		r.ID, r.ClientID, r.Status, r.RowsReceived, r.RowsApplied, r.UsersUpdated,
		r.UsersCreated, string(errorsJSON), fmtTime(r.StartedAt), fmtTimePtr(r.CompletedAt))
	return err
}

// ListSyncRuns returns a client's sync runs, newest first.
func (s *queries) ListSyncRuns(ctx context.Context, clientID loyalty.ClientID) ([]loyalty.SyncRun, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, client_id, status, rows_received, rows_applied, users_updated, users_created,
			errors_json, started_at, completed_at
		FROM sync_runs WHERE client_id = ?
		ORDER BY started_at DESC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []loyalty.SyncRun
	for rows.Next() {
		var (
			r                    loyalty.SyncRun
			errorsJSON, complete sql.NullString
			started              string
		)
		if err := rows.Scan(&r.ID, &r.ClientID, &r.Status, &r.RowsReceived, &r.RowsApplied,
			&r.UsersUpdated, &r.UsersCreated, &errorsJSON, &started, &complete); err != nil {
			return nil, err
		}
		if errorsJSON.Valid && errorsJSON.String != "" {
			if err := json.Unmarshal([]byte(errorsJSON.String), &r.Errors); err != nil {
				return nil, fmt.Errorf("failed to decode sync errors: %w", err)
			}
		}
		r.StartedAt = parseTime(started)
		r.CompletedAt = parseTimePtr(complete)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// SCANNERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (*loyalty.Client, error) {
	var (
		c         loyalty.Client
		createdAt string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.VIPMetric, &c.CheckpointMonths, &createdAt); err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

func scanMission(row scanner) (*loyalty.Mission, error) {
	var (
		m                                           loyalty.Mission
		title, tierID, comparator, preview, endDate sql.NullString
		createdAt                                   string
	)
	if err := row.Scan(&m.ClientID, &m.ID, &m.Type, &title, &m.TargetValue, &m.TargetUnit,
		&tierID, &comparator, &preview, &m.Activated, &endDate, &m.DisplayOrder,
		&m.RewardID, &m.Enabled, &createdAt); err != nil {
		return nil, err
	}
	m.Title = title.String
	m.Eligibility = loyalty.TierRule{
		TierID:     loyalty.TierID(tierID.String),
		Comparator: loyalty.TierComparator(comparator.String),
	}
	m.PreviewFromTier = loyalty.TierID(preview.String)
	m.RaffleEndDate = parseTimePtr(endDate)
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}

func scanReward(row scanner) (*loyalty.Reward, error) {
	var (
		r                                        loyalty.Reward
		description, tierID, comparator, preview sql.NullString
		valueJSON, createdAt                     string
		expires                                  sql.NullInt64
	)
	if err := row.Scan(&r.ClientID, &r.ID, &r.Type, &r.Name, &description, &valueJSON,
		&tierID, &comparator, &preview, &r.Frequency, &r.Quantity, &r.Source,
		&r.DisplayOrder, &r.Enabled, &expires, &createdAt); err != nil {
		return nil, err
	}

	var data loyalty.ValueData
	if err := json.Unmarshal([]byte(valueJSON), &data); err != nil {
		return nil, fmt.Errorf("reward %s: failed to decode value: %w", r.ID, err)
	}
	value, err := data.Variant(r.Type)
	if err != nil {
		return nil, fmt.Errorf("reward %s: %w", r.ID, err)
	}
	r.Value = value

	r.Description = description.String
	r.Eligibility = loyalty.TierRule{
		TierID:     loyalty.TierID(tierID.String),
		Comparator: loyalty.TierComparator(comparator.String),
	}
	r.PreviewFromTier = loyalty.TierID(preview.String)
	if expires.Valid {
		days := int(expires.Int64)
		r.ExpiresDays = &days
	}
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

func scanUser(row scanner) (*loyalty.User, error) {
	var (
		u                                     loyalty.User
		email, achieved, next, lastLogin      sql.NullString
		paymentMethod, paymentAccount         sql.NullString
		createdAt                             string
	)
	if err := row.Scan(&u.ClientID, &u.ID, &u.Handle, &email, &u.CurrentTierID, &achieved, &next,
		&lastLogin, &u.SalesAggregate, &u.UnitsAggregate, &u.TotalSales, &u.TotalUnits, &u.IsAdmin,
		&paymentMethod, &paymentAccount, &createdAt); err != nil {
		return nil, err
	}
	u.Email = email.String
	u.TierAchievedAt = parseTimePtr(achieved)
	u.NextCheckpointAt = parseTimePtr(next)
	u.LastLoginAt = parseTimePtr(lastLogin)
	u.DefaultPaymentMethod = loyalty.PaymentMethod(paymentMethod.String)
	u.DefaultPaymentAccount = paymentAccount.String
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func scanProgress(row scanner) (*loyalty.MissionProgress, error) {
	var (
		p                                             loyalty.MissionProgress
		start, updated                                string
		end, completed, consumed, redemptionID        sql.NullString
	)
	if err := row.Scan(&p.ID, &p.ClientID, &p.MissionID, &p.UserID, &p.CurrentValue, &p.Status,
		&start, &end, &completed, &consumed, &redemptionID, &updated); err != nil {
		return nil, err
	}
	p.CheckpointStart = parseTime(start)
	if t := parseTimePtr(end); t != nil {
		p.CheckpointEnd = *t
	}
	p.CompletedAt = parseTimePtr(completed)
	p.ConsumedAt = parseTimePtr(consumed)
	p.RedemptionID = loyalty.RedemptionID(redemptionID.String)
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

func scanRedemption(row scanner) (*loyalty.Redemption, error) {
	var (
		r                                       loyalty.Redemption
		missionID, progressID, reason, notes    sql.NullString
		claimed, fulfilled, concluded, rejected sql.NullString
		scheduled, activation, expiration       sql.NullString
		created, updated                        string
	)
	if err := row.Scan(&r.ID, &r.ClientID, &r.UserID, &r.RewardID, &missionID, &progressID,
		&r.ClaimKey, &r.Status, &claimed, &fulfilled, &concluded, &rejected, &reason,
		&scheduled, &activation, &expiration, &notes, &created, &updated); err != nil {
		return nil, err
	}
	r.MissionID = loyalty.MissionID(missionID.String)
	r.ProgressID = loyalty.ProgressID(progressID.String)
	r.ClaimedAt = parseTimePtr(claimed)
	r.FulfilledAt = parseTimePtr(fulfilled)
	r.ConcludedAt = parseTimePtr(concluded)
	r.RejectedAt = parseTimePtr(rejected)
	r.RejectionReason = reason.String
	r.ScheduledActivationAt = parseTimePtr(scheduled)
	r.ActivationDate = parseTimePtr(activation)
	r.ExpirationDate = parseTimePtr(expiration)
	r.FulfillmentNotes = notes.String
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	return &r, nil
}

func scanBoost(row scanner) (*loyalty.CommissionBoost, error) {
	var (
		b                                      loyalty.CommissionBoost
		scheduled, updated                     string
		activated, expires, collected, paid    sql.NullString
		method, account                        sql.NullString
	)
	if err := row.Scan(&b.RedemptionID, &b.ClientID, &b.UserID, &b.BoostStatus, &scheduled,
		&activated, &expires, &b.DurationDays, &b.Rate, &b.SalesAtActivation, &b.SalesAtExpiration,
		&b.FinalPayout, &method, &account, &collected, &paid, &updated); err != nil {
		return nil, err
	}
	b.ScheduledActivationAt = parseTime(scheduled)
	b.ActivatedAt = parseTimePtr(activated)
	b.ExpiresAt = parseTimePtr(expires)
	b.PaymentMethod = loyalty.PaymentMethod(method.String)
	b.PaymentAccount = account.String
	b.PaymentInfoCollectedAt = parseTimePtr(collected)
	b.PaidAt = parseTimePtr(paid)
	b.UpdatedAt = parseTime(updated)
	return &b, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// timeLayout is fixed width so text comparison orders chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func fmtTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: fmtTime(*t), Valid: true}
}

func fmtZeroTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: fmtTime(t), Valid: true}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func requireAffected(res sql.Result, err error, entity string, id any) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return loyalty.NotFound(entity, id)
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
