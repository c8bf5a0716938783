package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/forPelevin/yt2text/internal/types"
)

var schema = []string{`CREATE TABLE IF NOT EXISTS items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    reference TEXT NOT NULL,
    title TEXT,
    outcome TEXT NOT NULL,
    stage TEXT,
    caption_language TEXT,
    segments INTEGER NOT NULL DEFAULT 0,
    output_paths TEXT,
    error TEXT,
    recorded_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_items_reference ON items(reference)`,
}

// Store keeps one row per processed item across runs, backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Entry is a stored report entry with its run id and time.
type Entry struct {
	types.ReportEntry
	RunID      string
	RecordedAt time.Time
}

// Open creates or connects to the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends every entry of r in one transaction.
func (s *Store) Record(ctx context.Context, r types.BatchReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	ts := r.FinishedAt.UTC()
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	for _, e := range r.Entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO items (
                run_id, reference, title, outcome, stage, caption_language,
                segments, output_paths, error, recorded_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID,
			e.Reference,
			nullableString(e.Title),
			e.Outcome,
			nullableString(string(e.Stage)),
			nullableString(e.CaptionLanguage),
			e.Segments,
			nullableString(strings.Join(e.OutputPaths, "\n")),
			nullableString(e.Error),
			ts.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert history row: %w", err)
		}
	}
	return tx.Commit()
}

// Recent returns the newest entries for reference, newest first. An empty
// reference matches every row.
func (s *Store) Recent(ctx context.Context, reference string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT run_id, reference, title, outcome, stage, caption_language,
        segments, output_paths, error, recorded_at FROM items`
	args := []any{}
	if reference != "" {
		query += " WHERE reference = ?"
		args = append(args, reference)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var title, stage, lang, paths, errMsg, recorded sql.NullString
		if err := rows.Scan(&e.RunID, &e.Reference, &title, &e.Outcome, &stage, &lang,
			&e.Segments, &paths, &errMsg, &recorded); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Title = title.String
		e.Stage = types.Stage(stage.String)
		e.CaptionLanguage = lang.String
		if paths.String != "" {
			e.OutputPaths = strings.Split(paths.String, "\n")
		}
		e.Error = errMsg.String
		if t, err := time.Parse(time.RFC3339Nano, recorded.String); err == nil {
			e.RecordedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
