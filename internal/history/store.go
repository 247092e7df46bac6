// Package history persists claims between runs so drift detection can
// compare today's beliefs against prior periods. Append-only: claims
// are never updated or purged, and re-running a day replaces that
// day's rows rather than duplicating them.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nkarev/driftbrief/internal/model"
)

const dateLayout = "2006-01-02"

// Record is a stored claim plus the date it entered history
type Record struct {
	Claim      model.Claim
	DateStored string // YYYY-MM-DD
}

// Stats summarizes what the store holds
type Stats struct {
	TotalClaims   int
	UniqueTickers int
	UniqueSources int
	DaysTracked   int
}

// Store is the SQLite-backed claim history
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS claims (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	claim_id TEXT NOT NULL,
	chunk_id TEXT,
	ticker TEXT,
	source TEXT,
	author TEXT,
	category TEXT,
	bullets TEXT,
	confidence_level TEXT,
	time_sensitivity TEXT,
	belief_pressure TEXT,
	event_type TEXT,
	is_descriptive_event INTEGER NOT NULL DEFAULT 0,
	has_belief_delta INTEGER NOT NULL DEFAULT 0,
	sector_implication TEXT,
	citation TEXT,
	excerpt TEXT,
	source_type TEXT,
	date_stored TEXT NOT NULL,
	UNIQUE(claim_id, date_stored)
);
CREATE INDEX IF NOT EXISTS idx_claims_ticker ON claims(ticker);
CREATE INDEX IF NOT EXISTS idx_claims_source ON claims(source);
CREATE INDEX IF NOT EXISTS idx_claims_date ON claims(date_stored);
`

// Open creates or opens the history database at path, creating parent
// directories as needed
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// modernc's driver is not safe for concurrent writers on one file
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores today's claims under the given date. Re-storing the
// same claim on the same date replaces the row. Returns the number of
// claims written.
func (s *Store) Append(claims []model.Claim, date string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("history: begin append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO claims
		(claim_id, chunk_id, ticker, source, author, category, bullets,
		 confidence_level, time_sensitivity, belief_pressure,
		 event_type, is_descriptive_event, has_belief_delta, sector_implication,
		 citation, excerpt, source_type, date_stored)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("history: prepare append: %w", err)
	}
	defer stmt.Close()

	stored := 0
	for _, c := range claims {
		bullets, err := json.Marshal(c.Bullets)
		if err != nil {
			return stored, fmt.Errorf("history: marshal bullets for %s: %w", c.ClaimID, err)
		}
		citation, err := json.Marshal(c.Citation)
		if err != nil {
			return stored, fmt.Errorf("history: marshal citation for %s: %w", c.ClaimID, err)
		}

		if _, err := stmt.Exec(
			c.ClaimID, c.ChunkID, c.Ticker, c.Citation.Source, c.Citation.Analyst,
			string(c.Category), string(bullets),
			string(c.ConfidenceLevel), string(c.TimeSensitivity), string(c.BeliefPressure),
			string(c.EventType), boolInt(c.IsDescriptiveEvent), boolInt(c.HasBeliefDelta), c.SectorImplication,
			string(citation), c.Excerpt, string(c.SourceType), date,
		); err != nil {
			return stored, fmt.Errorf("history: store claim %s: %w", c.ClaimID, err)
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("history: commit append: %w", err)
	}
	return stored, nil
}

const selectCols = `claim_id, chunk_id, ticker, source, author, category, bullets,
	confidence_level, time_sensitivity, belief_pressure,
	event_type, is_descriptive_event, has_belief_delta, sector_implication,
	citation, excerpt, source_type, date_stored`

// ForTicker returns claims for one ticker within the lookback window
// ending at date. excludeToday leaves out claims stored on date itself,
// which is what drift comparison wants.
func (s *Store) ForTicker(ticker string, windowDays int, date string, excludeToday bool) ([]Record, error) {
	cutoff, err := windowCutoff(date, windowDays)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + selectCols + " FROM claims WHERE ticker = ? AND date_stored >= ?"
	args := []any{ticker, cutoff}
	if excludeToday {
		query += " AND date_stored < ?"
		args = append(args, date)
	}
	query += " ORDER BY date_stored DESC"

	return s.query(query, args...)
}

// Window returns every claim stored in the lookback period before
// date, excluding date itself
func (s *Store) Window(windowDays int, date string) ([]Record, error) {
	cutoff, err := windowCutoff(date, windowDays)
	if err != nil {
		return nil, err
	}
	return s.query("SELECT "+selectCols+" FROM claims WHERE date_stored >= ? AND date_stored < ? ORDER BY date_stored DESC",
		cutoff, date)
}

// RecentTickers returns the distinct tickers seen in the lookback
// window before date, excluding date itself
func (s *Store) RecentTickers(windowDays int, date string) ([]string, error) {
	cutoff, err := windowCutoff(date, windowDays)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		"SELECT DISTINCT ticker FROM claims WHERE ticker != '' AND date_stored >= ? AND date_stored < ? ORDER BY ticker",
		cutoff, date)
	if err != nil {
		return nil, fmt.Errorf("history: recent tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("history: recent tickers: %w", err)
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// ByDate returns all claims stored on one date
func (s *Store) ByDate(date string) ([]Record, error) {
	return s.query("SELECT "+selectCols+" FROM claims WHERE date_stored = ? ORDER BY ticker", date)
}

// ForSource returns claims from one source within the window ending at date
func (s *Store) ForSource(source string, windowDays int, date string) ([]Record, error) {
	cutoff, err := windowCutoff(date, windowDays)
	if err != nil {
		return nil, err
	}
	return s.query("SELECT "+selectCols+" FROM claims WHERE source = ? AND date_stored >= ? ORDER BY date_stored DESC",
		source, cutoff)
}

// Stats reports store-wide counts
func (s *Store) Stats() (Stats, error) {
	var st Stats
	row := s.db.QueryRow(`SELECT COUNT(*),
		COUNT(DISTINCT ticker) FILTER (WHERE ticker != ''),
		COUNT(DISTINCT source),
		COUNT(DISTINCT date_stored) FROM claims`)
	if err := row.Scan(&st.TotalClaims, &st.UniqueTickers, &st.UniqueSources, &st.DaysTracked); err != nil {
		return Stats{}, fmt.Errorf("history: stats: %w", err)
	}
	return st, nil
}

func (s *Store) query(q string, args ...any) ([]Record, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r        Record
			bullets  string
			citation string
			descr    int
			delta    int
			category string
			conf     string
			timeSens string
			pressure string
			event    string
			srcType  string
			source   string
			author   string
		)
		if err := rows.Scan(
			&r.Claim.ClaimID, &r.Claim.ChunkID, &r.Claim.Ticker, &source, &author, &category, &bullets,
			&conf, &timeSens, &pressure,
			&event, &descr, &delta, &r.Claim.SectorImplication,
			&citation, &r.Claim.Excerpt, &srcType, &r.DateStored,
		); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}

		if err := json.Unmarshal([]byte(bullets), &r.Claim.Bullets); err != nil {
			return nil, fmt.Errorf("history: corrupt bullets for %s: %w", r.Claim.ClaimID, err)
		}
		if err := json.Unmarshal([]byte(citation), &r.Claim.Citation); err != nil {
			return nil, fmt.Errorf("history: corrupt citation for %s: %w", r.Claim.ClaimID, err)
		}

		r.Claim.Category = model.Category(category)
		r.Claim.ConfidenceLevel = model.ConfidenceLevel(conf)
		r.Claim.TimeSensitivity = model.TimeSensitivity(timeSens)
		r.Claim.BeliefPressure = model.BeliefPressure(pressure)
		r.Claim.EventType = model.EventType(event)
		r.Claim.IsDescriptiveEvent = descr != 0
		r.Claim.HasBeliefDelta = delta != 0
		r.Claim.SourceType = model.SourceType(srcType)

		records = append(records, r)
	}
	return records, rows.Err()
}

func windowCutoff(date string, days int) (string, error) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return "", fmt.Errorf("history: bad date %q: %w", date, err)
	}
	return t.AddDate(0, 0, -days).Format(dateLayout), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
