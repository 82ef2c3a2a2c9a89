package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"meeting-booking-api/internal/booking"
	"meeting-booking-api/internal/model"
)

// lockNamespace is the first key of every user lock. Postgres keeps two-int
// advisory locks apart from single-bigint ones, so other lock users of the
// database only collide if they pick the same namespace.
const lockNamespace int32 = 0x4d424b47

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// OpenPostgres creates a pool for url and verifies it with a ping.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return NewPostgres(pool), nil
}

func (s *Postgres) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) Migrate(ctx context.Context) error {
	scripts, err := migrations("postgres")
	if err != nil {
		return err
	}
	for _, sql := range scripts {
		if _, err := s.pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

// WithinUserLock takes a transaction-scoped advisory lock per user, in
// ascending key order, before running fn.
func (s *Postgres) WithinUserLock(ctx context.Context, userIDs []int64, fn func(booking.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, key := range lockKeys(userIDs) {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1::int4, $2::int4)`, lockNamespace, key); err != nil {
			return fmt.Errorf("lock user key %d: %w", key, err)
		}
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// lockKeys folds user ids into the int4 second key, then sorts and dedupes
// so every caller acquires locks in the same order. Ids that fold together
// share a lock, which only serializes them further.
func lockKeys(userIDs []int64) []int32 {
	keys := make([]int32, 0, len(userIDs))
	for _, id := range userIDs {
		u := uint64(id)
		keys = append(keys, int32(uint32(u)^uint32(u>>32)))
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

func (s *Postgres) ListMeetings(ctx context.Context, userID int64) ([]model.Meeting, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, start_time, end_time, meeting_name, created_at
		 FROM meetings
		 WHERE user_id = $1
		 ORDER BY start_time, id`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Meeting
	for rows.Next() {
		var m model.Meeting
		if err := rows.Scan(&m.ID, &m.UserID, &m.StartTime, &m.EndTime, &m.MeetingName, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) FindCollision(ctx context.Context, userIDs []int64, start, end time.Time, mode booking.ConflictMode) (*model.Meeting, error) {
	// containment: the existing window lies inside [start, end]
	window := `start_time >= $2 AND end_time <= $3`
	if mode == booking.ModeOverlap {
		window = `start_time < $3 AND end_time > $2`
	}

	m := &model.Meeting{}
	err := t.tx.QueryRow(ctx,
		`SELECT id, user_id, start_time, end_time, meeting_name, created_at
		 FROM meetings
		 WHERE user_id = ANY($1) AND `+window+`
		 ORDER BY id
		 LIMIT 1`,
		userIDs, start, end,
	).Scan(&m.ID, &m.UserID, &m.StartTime, &m.EndTime, &m.MeetingName, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (t *pgTx) InsertMeeting(ctx context.Context, m *model.Meeting) error {
	return t.tx.QueryRow(ctx,
		`INSERT INTO meetings (user_id, start_time, end_time, meeting_name)
		 VALUES ($1,$2,$3,$4)
		 RETURNING id, created_at`,
		m.UserID, m.StartTime, m.EndTime, m.MeetingName,
	).Scan(&m.ID, &m.CreatedAt)
}
