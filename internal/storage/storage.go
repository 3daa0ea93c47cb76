package storage

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/MICROWAVE-web/KazikPartnerStats/internal/period"
)

var ErrNotFound = errors.New("not found")

// Storage handles all database operations
type Storage struct {
	db            *sql.DB
	defaultReward decimal.Decimal

	now func() time.Time // test hook
}

// New creates a new Storage instance and initializes the database.
// defaultReward is the process-wide reward assigned when an affiliate
// record is first created.
func New(dbPath string, defaultReward decimal.Decimal) (*Storage, error) {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dbPath+sep+"_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Storage{
		db:            db,
		defaultReward: defaultReward,
		now:           time.Now,
	}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS affiliates (
			id INTEGER PRIMARY KEY,
			default_reward TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS campaign_rewards (
			affiliate_id INTEGER NOT NULL,
			campaign_id TEXT NOT NULL,
			reward TEXT NOT NULL,
			PRIMARY KEY (affiliate_id, campaign_id)
		)`,

		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			affiliate_id INTEGER NOT NULL,
			event_type TEXT NOT NULL CHECK(event_type IN ('registration','first_dep')),
			player_id TEXT,
			btag TEXT,
			campaign_id TEXT,
			reward_snapshot TEXT,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (affiliate_id) REFERENCES affiliates(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_affiliate_created ON events(affiliate_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS shared_access (
			owner_id INTEGER NOT NULL,
			viewer_id INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (owner_id, viewer_id)
		)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// --- Affiliates ---

// EnsureAffiliate creates the affiliate record with the configured default
// reward if it does not exist yet. Safe to call repeatedly.
func (s *Storage) EnsureAffiliate(id int64) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO affiliates (id, default_reward, created_at) VALUES (?, ?, ?)",
		id, s.defaultReward.String(), s.now().UTC().UnixMicro(),
	)
	return err
}

// DefaultReward returns the affiliate's default reward per deposit,
// creating the affiliate first if needed.
func (s *Storage) DefaultReward(id int64) (decimal.Decimal, error) {
	if err := s.EnsureAffiliate(id); err != nil {
		return decimal.Zero, err
	}

	var raw string
	err := s.db.QueryRow(
		"SELECT default_reward FROM affiliates WHERE id = ?", id,
	).Scan(&raw)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

// SetDefaultReward overwrites the affiliate's default reward. Only future
// deposit snapshots see the new value.
func (s *Storage) SetDefaultReward(id int64, amount decimal.Decimal) error {
	if err := s.EnsureAffiliate(id); err != nil {
		return err
	}
	_, err := s.db.Exec(
		"UPDATE affiliates SET default_reward = ? WHERE id = ?",
		amount.String(), id,
	)
	return err
}

// SetCampaignReward upserts a per-campaign reward override.
func (s *Storage) SetCampaignReward(id int64, campaignID string, amount decimal.Decimal) error {
	if err := s.EnsureAffiliate(id); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO campaign_rewards (affiliate_id, campaign_id, reward)
		 VALUES (?, ?, ?)
		 ON CONFLICT(affiliate_id, campaign_id) DO UPDATE SET reward = excluded.reward`,
		id, campaignID, amount.String(),
	)
	return err
}

// ListCampaignRewards returns all reward overrides for an affiliate.
func (s *Storage) ListCampaignRewards(id int64) ([]CampaignReward, error) {
	rows, err := s.db.Query(
		"SELECT campaign_id, reward FROM campaign_rewards WHERE affiliate_id = ? ORDER BY campaign_id",
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []CampaignReward
	for rows.Next() {
		var cr CampaignReward
		var raw string
		if err := rows.Scan(&cr.CampaignID, &raw); err != nil {
			return nil, err
		}
		cr.AffiliateID = id
		cr.Reward, err = decimal.NewFromString(raw)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, cr)
	}
	return overrides, rows.Err()
}

// EffectiveReward returns the campaign override if one exists, else the
// affiliate's default. This is the value snapshotted into new deposits.
func (s *Storage) EffectiveReward(id int64, campaignID string) (decimal.Decimal, error) {
	if err := s.EnsureAffiliate(id); err != nil {
		return decimal.Zero, err
	}
	return effectiveReward(s.db, id, campaignID)
}

// queryer lets the same lookup run inside or outside a transaction.
type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

func effectiveReward(q queryer, id int64, campaignID string) (decimal.Decimal, error) {
	var raw string
	if campaignID != "" {
		err := q.QueryRow(
			"SELECT reward FROM campaign_rewards WHERE affiliate_id = ? AND campaign_id = ?",
			id, campaignID,
		).Scan(&raw)
		if err == nil {
			return decimal.NewFromString(raw)
		}
		if err != sql.ErrNoRows {
			return decimal.Zero, err
		}
	}

	err := q.QueryRow(
		"SELECT default_reward FROM affiliates WHERE id = ?", id,
	).Scan(&raw)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

// --- Events ---

// RecordEvent appends one immutable event. For first deposits the effective
// reward is read and snapshotted in the same transaction as the insert, so a
// concurrent reward change cannot land between the read and the write.
// Repeated identical calls produce independent rows; click endpoints get
// retried and the count is the point.
func (s *Storage) RecordEvent(id int64, eventType, playerID, btag, campaignID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT OR IGNORE INTO affiliates (id, default_reward, created_at) VALUES (?, ?, ?)",
		id, s.defaultReward.String(), s.now().UTC().UnixMicro(),
	)
	if err != nil {
		return err
	}

	var snapshot sql.NullString
	if eventType == EventFirstDep {
		reward, err := effectiveReward(tx, id, campaignID)
		if err != nil {
			return err
		}
		snapshot = sql.NullString{String: reward.String(), Valid: true}
	}

	_, err = tx.Exec(
		`INSERT INTO events (affiliate_id, event_type, player_id, btag, campaign_id, reward_snapshot, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, eventType,
		nullable(playerID), nullable(btag), nullable(campaignID),
		snapshot, s.now().UTC().UnixMicro(),
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// EarliestEventTime returns the timestamp of the affiliate's first event,
// or ErrNotFound when no events exist.
func (s *Storage) EarliestEventTime(id int64) (time.Time, error) {
	var micro sql.NullInt64
	err := s.db.QueryRow(
		"SELECT MIN(created_at) FROM events WHERE affiliate_id = ?", id,
	).Scan(&micro)
	if err != nil {
		return time.Time{}, err
	}
	if !micro.Valid {
		return time.Time{}, ErrNotFound
	}
	return time.UnixMicro(micro.Int64).UTC(), nil
}

// GroupedRegistrations returns registration counts grouped by
// (campaign, btag) within the window. NULL tags land in the "" bucket.
func (s *Storage) GroupedRegistrations(id int64, w period.Window) (map[GroupKey]int, error) {
	query := `SELECT COALESCE(campaign_id, ''), COALESCE(btag, ''), COUNT(*)
		FROM events
		WHERE affiliate_id = ? AND event_type = ?` + windowClause(w) + `
		GROUP BY 1, 2`

	rows, err := s.db.Query(query, windowArgs(w, id, EventRegistration)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[GroupKey]int)
	for rows.Next() {
		var key GroupKey
		var n int
		if err := rows.Scan(&key.CampaignID, &key.Btag, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// DepositRows returns the raw first_dep rows within the window. The caller
// sums reward snapshots itself to keep the decimals exact.
func (s *Storage) DepositRows(id int64, w period.Window) ([]DepositRow, error) {
	query := `SELECT COALESCE(campaign_id, ''), COALESCE(btag, ''), COALESCE(reward_snapshot, '0')
		FROM events
		WHERE affiliate_id = ? AND event_type = ?` + windowClause(w)

	rows, err := s.db.Query(query, windowArgs(w, id, EventFirstDep)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deps []DepositRow
	for rows.Next() {
		var d DepositRow
		var raw string
		if err := rows.Scan(&d.CampaignID, &d.Btag, &raw); err != nil {
			return nil, err
		}
		d.Reward, err = decimal.NewFromString(raw)
		if err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

func windowClause(w period.Window) string {
	clause := ""
	if !w.Unbounded() {
		clause += " AND created_at >= ?"
	}
	if w.IncludeEnd {
		clause += " AND created_at <= ?"
	} else {
		clause += " AND created_at < ?"
	}
	return clause
}

func windowArgs(w period.Window, id int64, eventType string) []any {
	args := []any{id, eventType}
	if !w.Unbounded() {
		args = append(args, w.Start.UTC().UnixMicro())
	}
	return append(args, w.End.UTC().UnixMicro())
}

// --- Shared access ---

// GrantViewAccess lets viewer read owner's reports. Granting to self or
// re-granting is a no-op.
func (s *Storage) GrantViewAccess(ownerID, viewerID int64) error {
	if ownerID == viewerID {
		return nil
	}
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO shared_access (owner_id, viewer_id, created_at) VALUES (?, ?, ?)",
		ownerID, viewerID, s.now().UTC().UnixMicro(),
	)
	return err
}

// RevokeViewAccess removes a grant. Revoking a missing grant is a no-op.
func (s *Storage) RevokeViewAccess(ownerID, viewerID int64) error {
	_, err := s.db.Exec(
		"DELETE FROM shared_access WHERE owner_id = ? AND viewer_id = ?",
		ownerID, viewerID,
	)
	return err
}

// HasViewAccess reports whether viewer may read owner's reports. Owners can
// always read their own.
func (s *Storage) HasViewAccess(ownerID, viewerID int64) (bool, error) {
	if ownerID == viewerID {
		return true, nil
	}
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM shared_access WHERE owner_id = ? AND viewer_id = ?",
		ownerID, viewerID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// ListViewers returns the viewers an owner has granted access to.
func (s *Storage) ListViewers(ownerID int64) ([]int64, error) {
	return s.listAccess("SELECT viewer_id FROM shared_access WHERE owner_id = ? ORDER BY viewer_id", ownerID)
}

// ListOwnersVisibleTo returns the owners whose reports a viewer may read.
func (s *Storage) ListOwnersVisibleTo(viewerID int64) ([]int64, error) {
	return s.listAccess("SELECT owner_id FROM shared_access WHERE viewer_id = ? ORDER BY owner_id", viewerID)
}

func (s *Storage) listAccess(query string, id int64) ([]int64, error) {
	rows, err := s.db.Query(query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		ids = append(ids, v)
	}
	return ids, rows.Err()
}

// ListAffiliateIDs returns every known affiliate id.
func (s *Storage) ListAffiliateIDs() ([]int64, error) {
	rows, err := s.db.Query("SELECT id FROM affiliates ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
