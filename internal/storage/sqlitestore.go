package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/benbjohnson/clock"
	"github.com/vetsimlabs/vetrec/internal/domain"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // CGO-free SQLite
)

// SQLiteStore is the embedded structured backend: three tables with
// secondary indexes on session_id, used when the directory capability is
// unavailable.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	quota int64
	clock clock.Clock
	log   *zap.SugaredLogger
}

// OpenSQLiteStore opens (and if needed creates) the database at path.
func OpenSQLiteStore(path string, quota int64, clk clock.Clock, log *zap.SugaredLogger) (*SQLiteStore, error) {
	// WAL + busy timeout to avoid "database is locked"; modernc takes
	// pragmas through _pragma= params, not the mattn-style shorthand
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, path: path, quota: quota, clock: clk, log: log}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS sessions(
	  session_id      TEXT PRIMARY KEY,
	  scenario_id     TEXT NOT NULL,
	  scenario_name   TEXT,
	  start_time      INTEGER NOT NULL,
	  end_time        INTEGER,
	  duration        INTEGER,
	  status          TEXT NOT NULL CHECK (status IN ('in_progress','completed')),
	  evaluation_json TEXT
	);
	CREATE TABLE IF NOT EXISTS events(
	  id             INTEGER PRIMARY KEY,
	  session_id     TEXT NOT NULL,
	  timestamp      INTEGER NOT NULL,
	  type           TEXT NOT NULL CHECK (type IN ('click','keydown','mousemove','scroll')),
	  selector       TEXT,
	  x              INTEGER,
	  y              INTEGER,
	  key            TEXT,
	  screenshot_ref TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, id);
	CREATE TABLE IF NOT EXISTS screenshots(
	  id         INTEGER PRIMARY KEY,
	  session_id TEXT NOT NULL,
	  timestamp  INTEGER NOT NULL,
	  image      BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_screenshots_session_ts ON screenshots(session_id, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("create database tables: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Close() error { return s.db.Close() }

// reserve enforces the byte budget using the on-disk database size
func (s *SQLiteStore) reserve(n int64) error {
	if s.quota <= 0 {
		return nil
	}
	var used int64
	if info, err := os.Stat(s.path); err == nil {
		used = info.Size()
	}
	if info, err := os.Stat(s.path + "-wal"); err == nil {
		used += info.Size()
	}
	if used+n > s.quota {
		return fmt.Errorf("%w: %d+%d exceeds %d bytes", ErrQuotaExceeded, used, n, s.quota)
	}
	return nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, meta domain.Session) error {
	if err := s.reserve(256); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, scenario_id, scenario_name, start_time, status) VALUES(?,?,?,?,?)`,
		meta.SessionID, meta.ScenarioID, meta.ScenarioName, meta.StartTime, string(meta.Status))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, sessionID string, ev domain.Event) error {
	if !ev.Type.Valid() {
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidOperation, ev.Type)
	}
	if err := s.reserve(256); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(session_id, timestamp, type, selector, x, y, key, screenshot_ref) VALUES(?,?,?,?,?,?,?,?)`,
		sessionID, ev.Timestamp, string(ev.Type), ev.Selector, ev.X, ev.Y, ev.Key, ev.ScreenshotRef)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveScreenshot(ctx context.Context, sessionID string, shot domain.Screenshot) error {
	if err := s.reserve(int64(len(shot.Image))); err != nil {
		return err
	}
	// Raw bytes at write time; the data URI is built on read so storage is
	// not doubled by base64.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO screenshots(session_id, timestamp, image) VALUES(?,?,?)`,
		sessionID, shot.Timestamp, shot.Image)
	if err != nil {
		return fmt.Errorf("save screenshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FinalizeSession(ctx context.Context, meta domain.Session) error {
	var evalJSON any
	if meta.Evaluation != nil {
		b, err := json.Marshal(meta.Evaluation)
		if err != nil {
			return err
		}
		evalJSON = string(b)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET end_time = ?, duration = ?, status = ?, evaluation_json = ? WHERE session_id = ?`,
		meta.EndTime, meta.Duration, string(meta.Status), evalJSON, meta.SessionID)
	if err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, meta.SessionID)
	}
	return nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, scenario_id, scenario_name, start_time, end_time, duration, status, evaluation_json
		 FROM sessions ORDER BY start_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		meta, err := scanSession(rows)
		if err != nil {
			s.log.Warnw("skipping unreadable session row", "error", err)
			continue
		}
		sessions = append(sessions, *meta)
	}
	return sessions, rows.Err()
}

func scanSession(rows *sql.Rows) (*domain.Session, error) {
	var (
		meta     domain.Session
		name     sql.NullString
		endTime  sql.NullInt64
		duration sql.NullInt64
		status   string
		evalJSON sql.NullString
	)
	if err := rows.Scan(&meta.SessionID, &meta.ScenarioID, &name, &meta.StartTime,
		&endTime, &duration, &status, &evalJSON); err != nil {
		return nil, err
	}
	meta.ScenarioName = name.String
	meta.EndTime = endTime.Int64
	meta.Duration = duration.Int64
	meta.Status = domain.SessionStatus(status)
	if evalJSON.Valid && evalJSON.String != "" {
		var eval domain.Evaluation
		if err := json.Unmarshal([]byte(evalJSON.String), &eval); err != nil {
			return nil, fmt.Errorf("corrupt evaluation: %w", err)
		}
		meta.Evaluation = &eval
	}
	return &meta, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*SessionData, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, scenario_id, scenario_name, start_time, end_time, duration, status, evaluation_json
		 FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	meta, err := scanSession(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	rows.Close()

	data := &SessionData{Meta: *meta, Events: []domain.Event{}, Screenshots: []domain.Screenshot{}}

	evRows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, type, selector, x, y, key, screenshot_ref FROM events WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	defer evRows.Close()
	for evRows.Next() {
		var (
			ev       domain.Event
			typ      string
			selector sql.NullString
			key      sql.NullString
			ref      sql.NullString
		)
		if err := evRows.Scan(&ev.Timestamp, &typ, &selector, &ev.X, &ev.Y, &key, &ref); err != nil {
			return nil, err
		}
		ev.Type = domain.EventType(typ)
		ev.Selector = selector.String
		ev.Key = key.String
		ev.ScreenshotRef = ref.String
		data.Events = append(data.Events, ev)
	}
	if err := evRows.Err(); err != nil {
		return nil, err
	}

	shotRows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, image FROM screenshots WHERE session_id = ? ORDER BY timestamp`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get screenshots: %w", err)
	}
	defer shotRows.Close()
	for shotRows.Next() {
		var shot domain.Screenshot
		if err := shotRows.Scan(&shot.Timestamp, &shot.Image); err != nil {
			return nil, err
		}
		shot.DataURI = jpegDataURI(shot.Image)
		data.Screenshots = append(data.Screenshots, shot)
	}
	return data, shotRows.Err()
}

func (s *SQLiteStore) ExportSession(ctx context.Context, sessionID string) (*ExportBundle, error) {
	data, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return buildExport(data)
}

func (s *SQLiteStore) DeleteOldSessions(ctx context.Context, daysToKeep int) (int, error) {
	cutoff := s.clock.Now().AddDate(0, 0, -daysToKeep).UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT session_id FROM sessions WHERE start_time < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM screenshots WHERE session_id = ?`, id); err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, id); err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return len(ids), nil
}
