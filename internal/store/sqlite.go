package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tepel-chen/demil/internal/model"

	_ "modernc.org/sqlite"
)

const createCatalogTable = `
CREATE TABLE IF NOT EXISTS catalog (
    steam_id TEXT PRIMARY KEY,
    mod_id   TEXT NOT NULL,
    title    TEXT NOT NULL,
    position INTEGER NOT NULL
)`

const createIgnoredTable = `
CREATE TABLE IF NOT EXISTS ignored (
    steam_id TEXT PRIMARY KEY
)`

const createRequestsTable = `
CREATE TABLE IF NOT EXISTS requests (
    id          TEXT PRIMARY KEY,
    trace_id    TEXT NOT NULL DEFAULT '',
    route       TEXT NOT NULL,
    path        TEXT NOT NULL,
    remote_host TEXT NOT NULL,
    status      TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER,
    created_at  DATETIME NOT NULL,
    started_at  DATETIME,
    finished_at DATETIME
)`

const createProgressLinesTable = `
CREATE TABLE IF NOT EXISTS progress_lines (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    line       TEXT NOT NULL,
    created_at DATETIME NOT NULL
)`

const createProgressLinesIndex = `
CREATE INDEX IF NOT EXISTS idx_progress_lines_request ON progress_lines (request_id, seq)`

var migrations = []struct {
	name string
	stmt string
}{
	{"catalog table", createCatalogTable},
	{"ignored table", createIgnoredTable},
	{"requests table", createRequestsTable},
	{"progress_lines table", createProgressLinesTable},
	{"progress_lines index", createProgressLinesIndex},
}

// ErrNotFound is returned when a request is not found.
var ErrNotFound = errors.New("request not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, m := range migrations {
		if _, err := db.Exec(m.stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create %s: %w", m.name, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListCatalog returns the stored catalog ordered by position.
func (s *SQLiteStore) ListCatalog(ctx context.Context) ([]model.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT steam_id, mod_id, title FROM catalog ORDER BY position ASC")
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	defer rows.Close()

	entries := []model.CatalogEntry{}
	for rows.Next() {
		var e model.CatalogEntry
		if err := rows.Scan(&e.SteamID, &e.ModID, &e.Title); err != nil {
			return nil, fmt.Errorf("scan catalog entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog: %w", err)
	}
	return entries, nil
}

// ReplaceCatalog swaps the stored catalog for entries in one transaction.
// Duplicate steam ids keep their first position.
func (s *SQLiteStore) ReplaceCatalog(ctx context.Context, entries []model.CatalogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM catalog"); err != nil {
		return fmt.Errorf("clear catalog: %w", err)
	}
	for i, e := range entries {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO catalog (steam_id, mod_id, title, position) VALUES (?, ?, ?, ?)",
			e.SteamID, e.ModID, e.Title, i,
		); err != nil {
			return fmt.Errorf("insert catalog entry %s: %w", e.SteamID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog: %w", err)
	}
	return nil
}

// ListIgnored returns the ignored steam ids in ascending order.
func (s *SQLiteStore) ListIgnored(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT steam_id FROM ignored ORDER BY steam_id ASC")
	if err != nil {
		return nil, fmt.Errorf("list ignored: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ignored: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ignored: %w", err)
	}
	return ids, nil
}

// AddIgnored adds steam ids to the ignore list. Known ids are left alone.
func (s *SQLiteStore) AddIgnored(ctx context.Context, steamIDs ...string) error {
	for _, id := range steamIDs {
		if _, err := s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO ignored (steam_id) VALUES (?)", id,
		); err != nil {
			return fmt.Errorf("add ignored %s: %w", id, err)
		}
	}
	return nil
}

// CreateRequest inserts a new request record.
func (s *SQLiteStore) CreateRequest(ctx context.Context, r *model.Request) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (
			id, trace_id, route, path, remote_host, status, error,
			duration_ms, created_at, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TraceID, r.Route, r.Path, r.RemoteHost, r.Status, r.Error,
		r.DurationMS, r.CreatedAt, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

const selectRequest = `SELECT id, trace_id, route, path, remote_host, status, error,
	duration_ms, created_at, started_at, finished_at FROM requests`

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*model.Request, error) {
	r := &model.Request{}
	err := row.Scan(
		&r.ID, &r.TraceID, &r.Route, &r.Path, &r.RemoteHost, &r.Status, &r.Error,
		&r.DurationMS, &r.CreatedAt, &r.StartedAt, &r.FinishedAt,
	)
	return r, err
}

// GetRequest retrieves a request by ID.
func (s *SQLiteStore) GetRequest(ctx context.Context, id string) (*model.Request, error) {
	r, err := scanRequest(s.db.QueryRowContext(ctx, selectRequest+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return r, nil
}

// ListRequests returns a page of requests, newest first, along with the total
// count of all requests.
func (s *SQLiteStore) ListRequests(ctx context.Context, limit, offset int) ([]*model.Request, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM requests").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		selectRequest+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	requests := []*model.Request{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate requests: %w", err)
	}

	return requests, total, nil
}

// UpdateRequestStatus moves a request to status at time at. Entering running
// sets started_at; entering a terminal status sets finished_at, the error
// message and, when the request had started, duration_ms.
func (s *SQLiteStore) UpdateRequestStatus(ctx context.Context, id, status, errMsg string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	var startedAt *time.Time
	err = tx.QueryRowContext(ctx,
		"SELECT status, started_at FROM requests WHERE id = ?", id,
	).Scan(&current, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read request status: %w", err)
	}

	if !model.ValidTransition(current, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	switch {
	case status == model.StatusRunning:
		_, err = tx.ExecContext(ctx,
			"UPDATE requests SET status = ?, started_at = ? WHERE id = ?",
			status, at, id)
	case model.IsTerminal(status):
		var duration *int
		if startedAt != nil {
			ms := int(at.Sub(*startedAt).Milliseconds())
			duration = &ms
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE requests SET status = ?, error = ?, finished_at = ?, duration_ms = ? WHERE id = ?",
			status, errMsg, at, duration, id)
	default:
		_, err = tx.ExecContext(ctx,
			"UPDATE requests SET status = ? WHERE id = ?", status, id)
	}
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit request status: %w", err)
	}
	return nil
}

// GetRequestStats aggregates the journal by status and route.
func (s *SQLiteStore) GetRequestStats(ctx context.Context) (*model.RequestStats, error) {
	stats := &model.RequestStats{
		ByStatus: make(map[string]int),
		ByRoute:  make(map[string]int),
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM requests").Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("count requests: %w", err)
	}

	if err := s.countBy(ctx, "status", stats.ByStatus); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "route", stats.ByRoute); err != nil {
		return nil, err
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM requests WHERE duration_ms IS NOT NULL",
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	if avg.Valid {
		stats.AvgDurationMS = avg.Float64
	}

	return stats, nil
}

// countBy fills into with request counts grouped by column. column is always
// a constant.
func (s *SQLiteStore) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM requests GROUP BY "+column)
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s count: %w", column, err)
		}
		into[key] = n
	}
	return rows.Err()
}

// InsertProgressLine appends a progress line to a request.
func (s *SQLiteStore) InsertProgressLine(ctx context.Context, requestID string, seq int, line string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO progress_lines (request_id, seq, line, created_at) VALUES (?, ?, ?, ?)",
		requestID, seq, line, at,
	)
	if err != nil {
		return fmt.Errorf("insert progress line: %w", err)
	}
	return nil
}

// GetProgressLines returns a request's progress lines in sequence order.
func (s *SQLiteStore) GetProgressLines(ctx context.Context, requestID string) ([]model.ProgressLine, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, request_id, seq, line, created_at FROM progress_lines WHERE request_id = ? ORDER BY seq ASC",
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("get progress lines: %w", err)
	}
	defer rows.Close()

	lines := []model.ProgressLine{}
	for rows.Next() {
		var l model.ProgressLine
		if err := rows.Scan(&l.ID, &l.RequestID, &l.Seq, &l.Line, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan progress line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress lines: %w", err)
	}
	return lines, nil
}
