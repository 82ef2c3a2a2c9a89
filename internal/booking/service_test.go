package booking_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meeting-booking-api/internal/booking"
	"meeting-booking-api/internal/logger"
	"meeting-booking-api/internal/model"
)

// memStore is a transactional in-memory store: inserts are staged and only
// become visible when the callback succeeds.
type memStore struct {
	mu        sync.Mutex
	rows      []model.Meeting
	nextID    int64
	failAfter int // fail the n-th insert of a transaction when > 0
}

type memTx struct {
	s      *memStore
	staged []model.Meeting
}

func (s *memStore) WithinUserLock(ctx context.Context, userIDs []int64, fn func(booking.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		return err
	}
	s.rows = append(s.rows, tx.staged...)
	return nil
}

func (s *memStore) ListMeetings(ctx context.Context, userID int64) ([]model.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Meeting
	for _, m := range s.rows {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (tx *memTx) FindCollision(ctx context.Context, userIDs []int64, start, end time.Time, mode booking.ConflictMode) (*model.Meeting, error) {
	wanted := map[int64]bool{}
	for _, id := range userIDs {
		wanted[id] = true
	}
	for _, m := range tx.s.rows {
		if !wanted[m.UserID] {
			continue
		}
		var hit bool
		if mode == booking.ModeOverlap {
			hit = m.StartTime.Before(end) && m.EndTime.After(start)
		} else {
			hit = !m.StartTime.Before(start) && !m.EndTime.After(end)
		}
		if hit {
			found := m
			return &found, nil
		}
	}
	return nil, nil
}

func (tx *memTx) InsertMeeting(ctx context.Context, m *model.Meeting) error {
	if tx.s.failAfter > 0 && len(tx.staged)+1 >= tx.s.failAfter {
		return errors.New("disk full")
	}
	tx.s.nextID++
	m.ID = tx.s.nextID
	m.CreatedAt = time.Now()
	tx.staged = append(tx.staged, *m)
	return nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	msgs [][]byte
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	p.msgs = append(p.msgs, payload)
	return p.err
}

func at(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(model.TimeLayout, s)
	require.NoError(t, err)
	return ts
}

func newService(st booking.Store, mode booking.ConflictMode) (*booking.Service, *recordingPublisher) {
	pub := &recordingPublisher{}
	return booking.NewService(st, pub, mode, logger.Discard()), pub
}

func TestScheduleMeeting_NoCollisionPersistsAllRows(t *testing.T) {
	st := &memStore{}
	svc, _ := newService(st, booking.ModeContainment)
	ctx := context.Background()

	require.NoError(t, svc.ScheduleMeeting(ctx, booking.Request{
		UserIDs: []int64{1}, StartTime: at(t, "2030-01-01 09:00:00"), EndTime: at(t, "2030-01-01 10:00:00"), MeetingName: "A",
	}))
	require.NoError(t, svc.ScheduleMeeting(ctx, booking.Request{
		UserIDs: []int64{1, 2}, StartTime: at(t, "2030-01-01 11:00:00"), EndTime: at(t, "2030-01-01 12:00:00"), MeetingName: "B",
	}))

	assert.Equal(t, 3, st.count())
	rows, err := svc.ListMeetings(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "B", rows[0].MeetingName)
	assert.Equal(t, at(t, "2030-01-01 11:00:00"), rows[0].StartTime)
	assert.Equal(t, at(t, "2030-01-01 12:00:00"), rows[0].EndTime)
}

func TestScheduleMeeting_ContainedMeetingBlocksEveryone(t *testing.T) {
	st := &memStore{}
	svc, pub := newService(st, booking.ModeContainment)
	ctx := context.Background()

	require.NoError(t, svc.ScheduleMeeting(ctx, booking.Request{
		UserIDs: []int64{7}, StartTime: at(t, "2030-01-01 10:00:00"), EndTime: at(t, "2030-01-01 11:00:00"), MeetingName: "Review",
	}))

	err := svc.ScheduleMeeting(ctx, booking.Request{
		UserIDs: []int64{3, 7, 9}, StartTime: at(t, "2030-01-01 09:30:00"), EndTime: at(t, "2030-01-01 11:30:00"), MeetingName: "Planning",
	})
	var ce *booking.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, int64(7), ce.UserID)
	assert.Equal(t, "Review", ce.MeetingName)
	assert.Equal(t, "User 7 has a conflicting meeting: Review", err.Error())
	assert.True(t, booking.IsConflict(err))

	assert.Equal(t, 1, st.count())
	for _, id := range []int64{3, 9} {
		rows, err := svc.ListMeetings(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, rows)
	}
	assert.Len(t, pub.keys, 1)
}

func TestScheduleMeeting_PartialOverlapIgnoredInContainmentMode(t *testing.T) {
	st := &memStore{}
	svc, _ := newService(st, booking.ModeContainment)
	ctx := context.Background()

	require.NoError(t, svc.ScheduleMeeting(ctx, booking.Request{
		UserIDs: []int64{1}, StartTime: at(t, "2030-01-01 10:00:00"), EndTime: at(t, "2030-01-01 11:00:00"), MeetingName: "Existing",
	}))
	err := svc.ScheduleMeeting(ctx, booking.Request{
		UserIDs: []int64{1}, StartTime: at(t, "2030-01-01 10:30:00"), EndTime: at(t, "2030-01-01 11:30:00"), MeetingName: "Later",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, st.count())
}

func TestScheduleMeeting_PartialOverlapRejectedInOverlapMode(t *testing.T) {
	st := &memStore{}
	svc, _ := newService(st, booking.ModeOverlap)
	ctx := context.Background()

	require.NoError(t, svc.ScheduleMeeting(ctx, booking.Request{
		UserIDs: []int64{1}, StartTime: at(t, "2030-01-01 10:00:00"), EndTime: at(t, "2030-01-01 11:00:00"), MeetingName: "Existing",
	}))
	err := svc.ScheduleMeeting(ctx, booking.Request{
		UserIDs: []int64{1}, StartTime: at(t, "2030-01-01 10:30:00"), EndTime: at(t, "2030-01-01 11:30:00"), MeetingName: "Later",
	})
	require.True(t, booking.IsConflict(err))
	assert.Equal(t, 1, st.count())
}

func TestScheduleMeeting_OneRowPerAttendee(t *testing.T) {
	st := &memStore{}
	svc, pub := newService(st, booking.ModeContainment)
	ctx := context.Background()

	start, end := at(t, "2030-01-01 09:00:00"), at(t, "2030-01-01 09:15:00")
	require.NoError(t, svc.ScheduleMeeting(ctx, booking.Request{
		UserIDs: []int64{1, 2, 3}, StartTime: start, EndTime: end, MeetingName: "Standup",
	}))

	require.Equal(t, 3, st.count())
	for _, id := range []int64{1, 2, 3} {
		rows, err := svc.ListMeetings(ctx, id)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Standup", rows[0].MeetingName)
		assert.Equal(t, start, rows[0].StartTime)
		assert.Equal(t, end, rows[0].EndTime)
	}

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, booking.RoutingKeyBooked, pub.keys[0])
	var ev booking.BookedEvent
	require.NoError(t, json.Unmarshal(pub.msgs[0], &ev))
	assert.Equal(t, []int64{1, 2, 3}, ev.UserIDs)
	assert.Equal(t, "2030-01-01 09:00:00", ev.StartTime)
	assert.NotEmpty(t, ev.ID)
}

func TestScheduleMeeting_ResubmissionIsRejected(t *testing.T) {
	st := &memStore{}
	svc, _ := newService(st, booking.ModeContainment)
	ctx := context.Background()

	req := booking.Request{
		UserIDs: []int64{4, 5}, StartTime: at(t, "2030-02-01 14:00:00"), EndTime: at(t, "2030-02-01 15:00:00"), MeetingName: "Sync",
	}
	require.NoError(t, svc.ScheduleMeeting(ctx, req))

	err := svc.ScheduleMeeting(ctx, req)
	var ce *booking.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, int64(4), ce.UserID)
	assert.Equal(t, 2, st.count())
}

func TestScheduleMeeting_InsertFailureRollsBack(t *testing.T) {
	st := &memStore{failAfter: 3}
	svc, pub := newService(st, booking.ModeContainment)

	err := svc.ScheduleMeeting(context.Background(), booking.Request{
		UserIDs: []int64{1, 2, 3, 4}, StartTime: at(t, "2030-01-01 09:00:00"), EndTime: at(t, "2030-01-01 10:00:00"), MeetingName: "Doomed",
	})
	require.ErrorIs(t, err, booking.ErrPersistence)
	assert.False(t, booking.IsConflict(err))
	assert.Equal(t, 0, st.count())
	assert.Empty(t, pub.keys)
}

func TestScheduleMeeting_PublishFailureDoesNotFailBooking(t *testing.T) {
	st := &memStore{}
	svc, pub := newService(st, booking.ModeContainment)
	pub.err = errors.New("broker down")

	err := svc.ScheduleMeeting(context.Background(), booking.Request{
		UserIDs: []int64{1}, StartTime: at(t, "2030-01-01 09:00:00"), EndTime: at(t, "2030-01-01 10:00:00"), MeetingName: "Quiet",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, st.count())
}

func TestScheduleMeeting_ConcurrentRequestsBookOnce(t *testing.T) {
	st := &memStore{}
	svc, _ := newService(st, booking.ModeContainment)
	start, end := at(t, "2030-03-01 09:00:00"), at(t, "2030-03-01 10:00:00")

	const n = 10
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- svc.ScheduleMeeting(context.Background(), booking.Request{
				UserIDs: []int64{42}, StartTime: start, EndTime: end, MeetingName: fmt.Sprintf("race-%d", i),
			})
		}(i)
	}
	wg.Wait()
	close(results)

	successes, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case booking.IsConflict(err):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)
	assert.Equal(t, 1, st.count())
}

func TestParseConflictMode(t *testing.T) {
	m, err := booking.ParseConflictMode("")
	require.NoError(t, err)
	assert.Equal(t, booking.ModeContainment, m)

	m, err = booking.ParseConflictMode("overlap")
	require.NoError(t, err)
	assert.Equal(t, booking.ModeOverlap, m)

	_, err = booking.ParseConflictMode("nearby")
	assert.Error(t, err)
}
