package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"meeting-booking-api/internal/booking"
	"meeting-booking-api/internal/model"
)

// SQLite keeps timestamps as TEXT in model.TimeLayout, which sorts
// chronologically.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database file at path. The pool is
// capped at one connection, so transactions run one at a time.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Migrate(ctx context.Context) error {
	scripts, err := migrations("sqlite")
	if err != nil {
		return err
	}
	for _, script := range scripts {
		if _, err := s.db.ExecContext(ctx, script); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

func (s *SQLite) WithinUserLock(ctx context.Context, userIDs []int64, fn func(booking.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) ListMeetings(ctx context.Context, userID int64) ([]model.Meeting, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, start_time, end_time, meeting_name, created_at
		 FROM meetings
		 WHERE user_id = ?
		 ORDER BY start_time, id`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Meeting
	for rows.Next() {
		m, err := scanSQLiteMeeting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) FindCollision(ctx context.Context, userIDs []int64, start, end time.Time, mode booking.ConflictMode) (*model.Meeting, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(userIDs)+2)
	for _, id := range userIDs {
		args = append(args, id)
	}

	from, to := start.UTC().Format(model.TimeLayout), end.UTC().Format(model.TimeLayout)
	window := `start_time >= ? AND end_time <= ?`
	if mode == booking.ModeOverlap {
		window = `start_time < ? AND end_time > ?`
		args = append(args, to, from)
	} else {
		args = append(args, from, to)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(userIDs)), ",")
	row := t.tx.QueryRowContext(ctx,
		`SELECT id, user_id, start_time, end_time, meeting_name, created_at
		 FROM meetings
		 WHERE user_id IN (`+placeholders+`) AND `+window+`
		 ORDER BY id
		 LIMIT 1`,
		args...,
	)

	m, err := scanSQLiteMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (t *sqliteTx) InsertMeeting(ctx context.Context, m *model.Meeting) error {
	var createdAt string
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO meetings (user_id, start_time, end_time, meeting_name)
		 VALUES (?,?,?,?)
		 RETURNING id, created_at`,
		m.UserID,
		m.StartTime.UTC().Format(model.TimeLayout),
		m.EndTime.UTC().Format(model.TimeLayout),
		m.MeetingName,
	).Scan(&m.ID, &createdAt)
	if err != nil {
		return err
	}
	m.CreatedAt, err = time.Parse(model.TimeLayout, createdAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMeeting(row rowScanner) (*model.Meeting, error) {
	var (
		m                   model.Meeting
		start, end, created string
	)
	if err := row.Scan(&m.ID, &m.UserID, &start, &end, &m.MeetingName, &created); err != nil {
		return nil, err
	}

	var err error
	if m.StartTime, err = time.Parse(model.TimeLayout, start); err != nil {
		return nil, fmt.Errorf("start_time of meeting %d: %w", m.ID, err)
	}
	if m.EndTime, err = time.Parse(model.TimeLayout, end); err != nil {
		return nil, fmt.Errorf("end_time of meeting %d: %w", m.ID, err)
	}
	if m.CreatedAt, err = time.Parse(model.TimeLayout, created); err != nil {
		return nil, fmt.Errorf("created_at of meeting %d: %w", m.ID, err)
	}
	return &m, nil
}
