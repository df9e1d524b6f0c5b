package profile

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/CoCoMind/coco-device-sub000/internal/content"

	_ "modernc.org/sqlite"
)

// Retention per participant.
const (
	scoresPerDomain  = 10
	recentActivities = 12
)

// Store persists profiles in a local SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the profile database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create profile dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS domain_scores (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  participant_id TEXT NOT NULL,
  session_id TEXT NOT NULL,
  domain TEXT NOT NULL,
  score REAL NOT NULL,
  recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scores_participant_domain ON domain_scores(participant_id, domain, id);
CREATE TABLE IF NOT EXISTS activity_history (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  participant_id TEXT NOT NULL,
  session_id TEXT NOT NULL,
  activity_id TEXT NOT NULL,
  ran_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_participant ON activity_history(participant_id, id);
CREATE TABLE IF NOT EXISTS priority_domains (
  participant_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  domain TEXT NOT NULL,
  PRIMARY KEY (participant_id, position)
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create profile tables: %w", err)
	}
	return nil
}

// Load returns the participant's profile; a participant with no history gets
// an empty one.
func (s *Store) Load(ctx context.Context, participantID string) (*Profile, error) {
	p := New(participantID)

	rows, err := s.db.QueryContext(ctx, `
SELECT domain, score FROM (
  SELECT domain, score, id,
         ROW_NUMBER() OVER (PARTITION BY domain ORDER BY id DESC) AS rn
  FROM domain_scores
  WHERE participant_id = ?
)
WHERE rn <= ?
ORDER BY domain, id ASC;
`, participantID, scoresPerDomain)
	if err != nil {
		return nil, fmt.Errorf("load domain scores: %w", err)
	}
	for rows.Next() {
		var d string
		var score float64
		if err := rows.Scan(&d, &score); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan domain score: %w", err)
		}
		p.DomainScores[content.Domain(d)] = append(p.DomainScores[content.Domain(d)], score)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("load domain scores: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
SELECT activity_id FROM activity_history
WHERE participant_id = ?
ORDER BY id DESC
LIMIT ?;
`, participantID, recentActivities)
	if err != nil {
		return nil, fmt.Errorf("load activity history: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan activity history: %w", err)
		}
		p.RecentActivityIDs = append(p.RecentActivityIDs, id)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("load activity history: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
SELECT domain FROM priority_domains WHERE participant_id = ? ORDER BY position ASC;
`, participantID)
	if err != nil {
		return nil, fmt.Errorf("load priority domains: %w", err)
	}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan priority domain: %w", err)
		}
		p.PriorityDomains = append(p.PriorityDomains, content.Domain(d))
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("load priority domains: %w", err)
	}
	return p, nil
}

// Record appends one session's results to the participant's history.
func (s *Store) Record(ctx context.Context, participantID, sessionID string, at time.Time, results []Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin profile update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := at.UTC().Format(time.RFC3339)
	for _, r := range results {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO domain_scores (participant_id, session_id, domain, score, recorded_at)
VALUES (?, ?, ?, ?, ?);
`, participantID, sessionID, string(r.Domain), r.Score, ts); err != nil {
			return fmt.Errorf("insert domain score: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO activity_history (participant_id, session_id, activity_id, ran_at)
VALUES (?, ?, ?, ?);
`, participantID, sessionID, r.ActivityID, ts); err != nil {
			return fmt.Errorf("insert activity history: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit profile update: %w", err)
	}
	return nil
}

// SetPriorityDomains replaces the participant's explicit domain ordering.
// An empty list clears it.
func (s *Store) SetPriorityDomains(ctx context.Context, participantID string, domains []content.Domain) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin priority update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM priority_domains WHERE participant_id = ?;`, participantID); err != nil {
		return fmt.Errorf("clear priority domains: %w", err)
	}
	for i, d := range domains {
		if !d.Valid() {
			return fmt.Errorf("invalid domain %q", d)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO priority_domains (participant_id, position, domain) VALUES (?, ?, ?)
ON CONFLICT(participant_id, position) DO UPDATE SET domain = excluded.domain;
`, participantID, i, string(d)); err != nil {
			return fmt.Errorf("insert priority domain: %w", err)
		}
	}
	return tx.Commit()
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}
