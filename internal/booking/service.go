package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"meeting-booking-api/internal/logger"
	"meeting-booking-api/internal/model"
)

// ConflictMode selects the predicate used to find a colliding meeting.
type ConflictMode string

const (
	// ModeContainment matches existing meetings lying entirely inside the
	// requested window. Partially overlapping meetings are not detected.
	ModeContainment ConflictMode = "containment"
	// ModeOverlap matches any existing meeting sharing time with the window.
	ModeOverlap ConflictMode = "overlap"
)

// ParseConflictMode maps a config value to a ConflictMode.
func ParseConflictMode(s string) (ConflictMode, error) {
	switch ConflictMode(s) {
	case ModeContainment, "":
		return ModeContainment, nil
	case ModeOverlap:
		return ModeOverlap, nil
	}
	return "", fmt.Errorf("unknown conflict mode %q", s)
}

const (
	SuccessMessage = "The meeting has been successfully booked."

	RoutingKeyBooked = "meeting.booked"
)

// Tx is the transactional view of a Store handed to WithinUserLock callbacks.
type Tx interface {
	// FindCollision returns the lowest-id meeting of any of userIDs matching
	// the mode predicate against [start, end], or nil.
	FindCollision(ctx context.Context, userIDs []int64, start, end time.Time, mode ConflictMode) (*model.Meeting, error)
	InsertMeeting(ctx context.Context, m *model.Meeting) error
}

// Store persists meetings. WithinUserLock runs fn in one transaction that no
// other WithinUserLock call touching any of userIDs can interleave with; it
// commits when fn returns nil and rolls back otherwise.
type Store interface {
	WithinUserLock(ctx context.Context, userIDs []int64, fn func(Tx) error) error
	ListMeetings(ctx context.Context, userID int64) ([]model.Meeting, error)
}

// Publisher delivers booking notifications.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
}

// Request is a validated booking request.
type Request struct {
	UserIDs     []int64
	StartTime   time.Time
	EndTime     time.Time
	MeetingName string
}

// BookedEvent is the payload published after a booking commits.
type BookedEvent struct {
	ID          string    `json:"id"`
	UserIDs     []int64   `json:"user_ids"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	MeetingName string    `json:"meeting_name"`
	BookedAt    time.Time `json:"booked_at"`
}

type Service struct {
	store     Store
	publisher Publisher
	mode      ConflictMode
	log       *logger.Logger
}

func NewService(store Store, publisher Publisher, mode ConflictMode, log *logger.Logger) *Service {
	return &Service{store: store, publisher: publisher, mode: mode, log: log}
}

// ScheduleMeeting books req for every user in req.UserIDs, or returns a
// *ConflictError naming the first colliding meeting. Nothing is written on
// conflict or on any store failure.
func (s *Service) ScheduleMeeting(ctx context.Context, req Request) error {
	err := s.store.WithinUserLock(ctx, req.UserIDs, func(tx Tx) error {
		collision, err := tx.FindCollision(ctx, req.UserIDs, req.StartTime, req.EndTime, s.mode)
		if err != nil {
			return fmt.Errorf("%w: conflict query: %v", ErrPersistence, err)
		}
		if collision != nil {
			return &ConflictError{UserID: collision.UserID, MeetingName: collision.MeetingName}
		}

		for _, userID := range req.UserIDs {
			m := &model.Meeting{
				UserID:      userID,
				StartTime:   req.StartTime,
				EndTime:     req.EndTime,
				MeetingName: req.MeetingName,
			}
			if err := tx.InsertMeeting(ctx, m); err != nil {
				return fmt.Errorf("%w: insert for user %d: %v", ErrPersistence, userID, err)
			}
		}
		return nil
	})
	if err != nil {
		var ce *ConflictError
		if errors.As(err, &ce) {
			s.log.Info("meeting rejected",
				"user_id", ce.UserID,
				"conflicting_meeting", ce.MeetingName,
				"mode", s.mode,
			)
			return ce
		}
		if !errors.Is(err, ErrPersistence) {
			err = fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		s.log.Error("meeting booking failed", "users", len(req.UserIDs), "error", err)
		return err
	}

	s.log.Info("meeting booked",
		"meeting_name", req.MeetingName,
		"users", len(req.UserIDs),
		"start_time", req.StartTime.Format(model.TimeLayout),
		"end_time", req.EndTime.Format(model.TimeLayout),
	)
	s.notify(ctx, req)
	return nil
}

func (s *Service) ListMeetings(ctx context.Context, userID int64) ([]model.Meeting, error) {
	meetings, err := s.store.ListMeetings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list for user %d: %v", ErrPersistence, userID, err)
	}
	return meetings, nil
}

func (s *Service) notify(ctx context.Context, req Request) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(BookedEvent{
		ID:          uuid.New().String(),
		UserIDs:     req.UserIDs,
		StartTime:   req.StartTime.Format(model.TimeLayout),
		EndTime:     req.EndTime.Format(model.TimeLayout),
		MeetingName: req.MeetingName,
		BookedAt:    time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn("encode booked event", "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, RoutingKeyBooked, payload); err != nil {
		s.log.Warn("publish booked event", "meeting_name", req.MeetingName, "error", err)
	}
}
