package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"subclean/internal/config"
)

// DatabaseName is the ledger file name inside the log directory.
const DatabaseName = "history.db"

// Entry is one recorded run.
type Entry struct {
	ID             int64
	RunID          string
	StartedAt      time.Time
	FinishedAt     time.Time
	Classification string
	ExitCode       int
	Compute        string
	Strategy       string
	Frames         int
	Stage1Status   string
	Stage2Status   string
	Container      string
	ContainerURL   string
	Warnings       int
	ErrorMessage   string
}

// Duration is the wall-clock time the run took.
func (e Entry) Duration() time.Duration {
	if e.FinishedAt.Before(e.StartedAt) {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// Store manages run ledger persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Open initializes or connects to the run ledger in the configured log
// directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, DatabaseName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts entry and returns its row ID. Recording the same run ID
// twice replaces the earlier row.
func (s *Store) Record(ctx context.Context, entry Entry) (int64, error) {
	if strings.TrimSpace(entry.RunID) == "" {
		return 0, errors.New("run id required")
	}
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO runs (
                run_id, started_at, finished_at, classification, exit_code,
                compute, strategy, frames, stage1_status, stage2_status,
                container, container_url, warnings, error_message
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.RunID,
			entry.StartedAt.UTC().Format(time.RFC3339Nano),
			entry.FinishedAt.UTC().Format(time.RFC3339Nano),
			entry.Classification,
			entry.ExitCode,
			nullableString(entry.Compute),
			nullableString(entry.Strategy),
			entry.Frames,
			nullableString(entry.Stage1Status),
			nullableString(entry.Stage2Status),
			nullableString(entry.Container),
			nullableString(entry.ContainerURL),
			entry.Warnings,
			nullableString(entry.ErrorMessage),
		)
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

const selectColumns = `id, run_id, started_at, finished_at, classification, exit_code,
    compute, strategy, frames, stage1_status, stage2_status,
    container, container_url, warnings, error_message`

// List returns the most recent runs first. A non-positive limit returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := "SELECT " + selectColumns + " FROM runs ORDER BY started_at DESC, id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return entries, nil
}

// Get fetches a run by its run ID. It returns nil when no such run exists.
func (s *Store) Get(ctx context.Context, runID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM runs WHERE run_id = ?", runID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		entry                             Entry
		started, finished                 string
		compute, strategy, stage1, stage2 sql.NullString
		container, containerURL, errMsg   sql.NullString
	)
	if err := row.Scan(
		&entry.ID, &entry.RunID, &started, &finished, &entry.Classification, &entry.ExitCode,
		&compute, &strategy, &entry.Frames, &stage1, &stage2,
		&container, &containerURL, &entry.Warnings, &errMsg,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan run: %w", err)
	}
	entry.StartedAt = parseTime(started)
	entry.FinishedAt = parseTime(finished)
	entry.Compute = compute.String
	entry.Strategy = strategy.String
	entry.Stage1Status = stage1.String
	entry.Stage2Status = stage2.String
	entry.Container = container.String
	entry.ContainerURL = containerURL.String
	entry.ErrorMessage = errMsg.String
	return entry, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
