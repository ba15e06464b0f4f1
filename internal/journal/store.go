// Package journal records the outcome of calibration runs in SQLite.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"calibmon/internal/domain"

	_ "modernc.org/sqlite"
)

// recorded_at is stored with a fixed-width layout so it sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a SQLite-backed run journal.
type Store struct {
	db *sql.DB
}

// Open creates or opens the journal database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS calibration_runs (
  id TEXT PRIMARY KEY,
  device_id TEXT NOT NULL,
  session_id TEXT NOT NULL,
  outcome TEXT NOT NULL,
  mode_switch TEXT NOT NULL,
  force_restart TEXT NOT NULL,
  recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS calibration_runs_device ON calibration_runs(device_id, recorded_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create calibration_runs table: %w", err)
	}
	return nil
}

// Record inserts record, assigning an id and timestamp when missing.
func (s *Store) Record(ctx context.Context, record domain.RunRecord) error {
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}

	const stmt = `
INSERT INTO calibration_runs (id, device_id, session_id, outcome, mode_switch, force_restart, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt,
		record.ID,
		record.DeviceID,
		record.SessionID,
		string(record.Outcome),
		string(record.ModeSwitch),
		string(record.ForceRestart),
		record.RecordedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert calibration run: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first. An empty deviceID
// returns records for every device.
func (s *Store) Recent(ctx context.Context, deviceID string, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
SELECT id, device_id, session_id, outcome, mode_switch, force_restart, recorded_at
FROM calibration_runs`
	args := []interface{}{}
	if strings.TrimSpace(deviceID) != "" {
		query += ` WHERE device_id = ?`
		args = append(args, deviceID)
	}
	query += ` ORDER BY recorded_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query calibration runs: %w", err)
	}
	defer rows.Close()

	var out []domain.RunRecord
	for rows.Next() {
		var (
			rec                                  domain.RunRecord
			outcome, modeSwitch, forceRestart, at string
		)
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &rec.SessionID, &outcome, &modeSwitch, &forceRestart, &at); err != nil {
			return nil, fmt.Errorf("scan calibration run: %w", err)
		}
		rec.Outcome = domain.RunOutcome(outcome)
		rec.ModeSwitch = domain.GuardState(modeSwitch)
		rec.ForceRestart = domain.GuardState(forceRestart)
		if parsed, err := time.Parse(timeLayout, at); err == nil {
			rec.RecordedAt = parsed
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calibration runs: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
