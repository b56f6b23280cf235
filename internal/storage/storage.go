// Package storage provides SQLite-backed persistence for the latest quote
// snapshot and the history of detected opportunities.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/arbscout/internal/arbitrage"
	"github.com/rewired-gh/arbscout/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db               *sql.DB
	maxOpportunities int
}

// Record is a stored opportunity with its lifecycle timestamps. The
// embedded Opportunity is the most recent computation for the key.
type Record struct {
	models.Opportunity
	RowID      string     `json:"row_id"`
	FirstSeen  time.Time  `json:"first_seen"`
	LastSeen   time.Time  `json:"last_seen"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/arbscout/data.db.
func New(maxOpportunities int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "arbscout", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxOpportunities: maxOpportunities}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS quotes (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			quote_id     TEXT,
			match_key    TEXT NOT NULL,
			bookmaker    TEXT NOT NULL,
			market_type  TEXT NOT NULL,
			payload      TEXT NOT NULL,
			last_updated INTEGER NOT NULL,
			stored_at    INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS opportunities (
			key               TEXT PRIMARY KEY,
			row_id            TEXT NOT NULL,
			match_id          TEXT NOT NULL,
			market_type       TEXT NOT NULL,
			ratio             REAL NOT NULL,
			profit_pct        REAL NOT NULL,
			guaranteed_profit REAL NOT NULL,
			match_time        INTEGER NOT NULL,
			payload           TEXT NOT NULL,
			first_seen        INTEGER NOT NULL,
			last_seen         INTEGER NOT NULL,
			closed_at         INTEGER,
			notified_at       INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quotes_match ON quotes(match_key)`,
		`CREATE INDEX IF NOT EXISTS idx_opps_open ON opportunities(closed_at, profit_pct DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_opps_last_seen ON opportunities(last_seen)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceQuotes swaps the cached snapshot for quotes.
func (s *Storage) ReplaceQuotes(quotes []models.Quote, at time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM quotes`); err != nil {
		return fmt.Errorf("failed to clear quotes: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO quotes
			(quote_id, match_key, bookmaker, market_type, payload, last_updated, stored_at)
		VALUES (?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare quote insert: %w", err)
	}
	defer stmt.Close()

	for _, q := range quotes {
		payload, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("failed to marshal quote %s: %w", q.ID, err)
		}
		if _, err := stmt.Exec(q.ID, arbitrage.MatchKey(q.HomeTeam, q.AwayTeam), q.Bookmaker, string(q.MarketType()),
			string(payload), nanos(q.LastUpdated), at.UnixNano()); err != nil {
			return fmt.Errorf("failed to insert quote %s: %w", q.ID, err)
		}
	}

	return tx.Commit()
}

// LoadQuotes returns the cached snapshot in the order it was stored.
func (s *Storage) LoadQuotes() ([]models.Quote, error) {
	rows, err := s.db.Query(`SELECT payload FROM quotes ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	quotes := []models.Quote{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		var q models.Quote
		if err := json.Unmarshal([]byte(payload), &q); err != nil {
			return nil, fmt.Errorf("failed to unmarshal quote: %w", err)
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// RecordCycle upserts the open opportunities of a refresh by key and marks
// closedKeys as closed at at. A key that reappears after closing is
// reopened with its original first_seen.
func (s *Storage) RecordCycle(open []models.Opportunity, closedKeys []string, at time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, o := range open {
		payload, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("failed to marshal opportunity %s: %w", o.Key, err)
		}
		_, err = tx.Exec(`
			INSERT INTO opportunities
				(key, row_id, match_id, market_type, ratio, profit_pct, guaranteed_profit,
				 match_time, payload, first_seen, last_seen)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(key) DO UPDATE SET
				match_id=excluded.match_id,
				market_type=excluded.market_type,
				ratio=excluded.ratio,
				profit_pct=excluded.profit_pct,
				guaranteed_profit=excluded.guaranteed_profit,
				match_time=excluded.match_time,
				payload=excluded.payload,
				last_seen=excluded.last_seen,
				closed_at=NULL`,
			o.Key, uuid.NewString(), o.MatchID, string(o.Market), o.ArbitragePercentage,
			o.ProfitPercentage, o.GuaranteedProfit, nanos(o.MatchTime),
			string(payload), at.UnixNano(), at.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert opportunity %s: %w", o.Key, err)
		}
	}

	for _, key := range closedKeys {
		if _, err := tx.Exec(`UPDATE opportunities SET closed_at=? WHERE key=? AND closed_at IS NULL`,
			at.UnixNano(), key); err != nil {
			return fmt.Errorf("failed to close opportunity %s: %w", key, err)
		}
	}

	return tx.Commit()
}

// GetOpenOpportunities returns every opportunity not yet closed, best
// profit first.
func (s *Storage) GetOpenOpportunities() ([]Record, error) {
	rows, err := s.db.Query(`SELECT ` + recordCols + ` FROM opportunities
		WHERE closed_at IS NULL ORDER BY profit_pct DESC, ratio ASC, key ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query opportunities: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// GetOpportunity returns the stored opportunity for key, open or closed.
func (s *Storage) GetOpportunity(key string) (*Record, error) {
	row := s.db.QueryRow(`SELECT `+recordCols+` FROM opportunities WHERE key = ?`, key)
	r, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("opportunity %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get opportunity: %w", err)
	}
	return r, nil
}

// MarkNotified stamps keys as notified at at.
func (s *Storage) MarkNotified(keys []string, at time.Time) error {
	for _, key := range keys {
		if _, err := s.db.Exec(`UPDATE opportunities SET notified_at=? WHERE key=?`, at.UnixNano(), key); err != nil {
			return fmt.Errorf("failed to mark %s notified: %w", key, err)
		}
	}
	return nil
}

// RotateOpportunities keeps at most maxOpportunities rows, newest by
// last_seen.
func (s *Storage) RotateOpportunities() error {
	_, err := s.db.Exec(`
		DELETE FROM opportunities WHERE key NOT IN (
			SELECT key FROM opportunities ORDER BY last_seen DESC LIMIT ?
		)`, s.maxOpportunities)
	if err != nil {
		return fmt.Errorf("failed to rotate opportunities: %w", err)
	}
	return nil
}

const recordCols = `row_id, payload, first_seen, last_seen, closed_at, notified_at`

func scanRecord(scan func(...any) error) (*Record, error) {
	var r Record
	var payload string
	var firstSeen, lastSeen int64
	var closedAt, notifiedAt sql.NullInt64
	if err := scan(&r.RowID, &payload, &firstSeen, &lastSeen, &closedAt, &notifiedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &r.Opportunity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal opportunity: %w", err)
	}
	r.FirstSeen = time.Unix(0, firstSeen)
	r.LastSeen = time.Unix(0, lastSeen)
	r.ClosedAt = nullTime(closedAt)
	r.NotifiedAt = nullTime(notifiedAt)
	return &r, nil
}

// nanos stores the zero time as 0 rather than an out-of-range value.
func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64)
	return &t
}
