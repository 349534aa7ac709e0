package events

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/huddle-sports/huddle/pkg/backend"
)

const (
	eventsTable       = "events"
	participantsTable = "event_participants"
	defaultListLimit  = 50
)

var (
	// ErrUnauthenticated is returned when an operation needs a signed-in user and there is none.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrNotFound is returned for a missing event.
	ErrNotFound = errors.New("event not found")
	// ErrEventFull is returned on join when the event reached its capacity.
	ErrEventFull = errors.New("event is full")
	// ErrEventClosed is returned on join of a cancelled or past event.
	ErrEventClosed = errors.New("event is not open")
)

// Service manages events through the backend client.
type Service struct {
	client backend.Interface
	now    func() time.Time
}

// NewService makes the events service.
func NewService(client backend.Interface) *Service {
	return &Service{client: client, now: time.Now}
}

// ListFilter defines ListUpcoming selection.
type ListFilter struct {
	Sport string // all sports if empty
	Limit int    // 50 if not set
}

// Create validates and stores a new event hosted by the signed-in user, returns the stored event.
func (s *Service) Create(ctx context.Context, e Event) (*Event, error) {
	if err := e.Validate(s.now()); err != nil {
		return nil, err
	}
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	e.ID = uuid.NewString()
	e.Title = strings.TrimSpace(e.Title)
	e.HostID = user.ID
	e.Status = StatusOpen
	e.StartsAt, e.EndsAt = e.StartsAt.UTC(), e.EndsAt.UTC()
	e.CreatedAt = nil

	res, err := s.client.From(eventsTable).Insert(e).Select().Single(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't create event %q: %w", e.Title, err)
	}
	created := &Event{}
	if err := res.Decode(created); err != nil {
		return nil, err
	}
	log.Printf("[INFO] event %s %q created by %s", created.ID, created.Title, user.ID)
	return created, nil
}

// Get returns the event by id.
func (s *Service) Get(ctx context.Context, id string) (*Event, error) {
	res, err := s.client.From(eventsTable).Select().Eq("id", id).MaybeSingle(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get event %s: %w", id, err)
	}
	if res.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e := &Event{}
	if err := res.Decode(e); err != nil {
		return nil, err
	}
	return e, nil
}

// ListUpcoming returns open events not started yet, the earliest first.
func (s *Service) ListUpcoming(ctx context.Context, f ListFilter) ([]Event, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q := s.client.From(eventsTable).Select().Eq("status", StatusOpen).Gte("starts_at", s.now())
	if f.Sport != "" {
		q = q.Eq("sport", f.Sport)
	}
	res, err := q.Order("starts_at", true).Limit(limit).Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't list events: %w", err)
	}
	var list []Event
	if err := res.Decode(&list); err != nil {
		return nil, err
	}
	return list, nil
}

// Join adds the signed-in user to the event. Joining again is not an error.
func (s *Service) Join(ctx context.Context, eventID string) error {
	user, err := s.currentUser(ctx)
	if err != nil {
		return err
	}
	e, err := s.Get(ctx, eventID)
	if err != nil {
		return err
	}
	if e.Status != StatusOpen || !e.StartsAt.After(s.now()) {
		return fmt.Errorf("can't join %s: %w", eventID, ErrEventClosed)
	}

	mine, err := s.client.From(participantsTable).Select("user_id").Eq("event_id", eventID).
		Eq("user_id", user.ID).MaybeSingle(ctx)
	if err != nil {
		return fmt.Errorf("can't check participation in %s: %w", eventID, err)
	}
	if !mine.Empty() {
		return nil // already joined
	}

	res, err := s.client.From(participantsTable).Select("user_id").Eq("event_id", eventID).
		Count(backend.CountExact).Limit(1).Execute(ctx)
	if err != nil {
		return fmt.Errorf("can't count participants of %s: %w", eventID, err)
	}
	if res.Count >= int64(e.Capacity) {
		return fmt.Errorf("can't join %s: %w", eventID, ErrEventFull)
	}

	p := Participant{EventID: eventID, UserID: user.ID, JoinedAt: s.now().UTC()}
	_, err = s.client.From(participantsTable).
		Upsert(p, backend.UpsertOptions{OnConflict: "event_id,user_id", IgnoreDuplicates: true}).Execute(ctx)
	if err != nil {
		return fmt.Errorf("can't join %s: %w", eventID, err)
	}
	log.Printf("[INFO] user %s joined event %s", user.ID, eventID)
	return nil
}

// Leave removes the signed-in user from the event.
func (s *Service) Leave(ctx context.Context, eventID string) error {
	user, err := s.currentUser(ctx)
	if err != nil {
		return err
	}
	_, err = s.client.From(participantsTable).Delete().Eq("event_id", eventID).Eq("user_id", user.ID).Execute(ctx)
	if err != nil {
		return fmt.Errorf("can't leave %s: %w", eventID, err)
	}
	log.Printf("[INFO] user %s left event %s", user.ID, eventID)
	return nil
}

// Cancel marks the event cancelled. Only the host can cancel, for others the event is not found.
func (s *Service) Cancel(ctx context.Context, eventID string) error {
	user, err := s.currentUser(ctx)
	if err != nil {
		return err
	}
	res, err := s.client.From(eventsTable).Update(map[string]any{"status": StatusCancelled}).
		Eq("id", eventID).Eq("host_id", user.ID).Select("id").MaybeSingle(ctx)
	if err != nil {
		return fmt.Errorf("can't cancel %s: %w", eventID, err)
	}
	if res.Empty() {
		return fmt.Errorf("can't cancel %s: %w", eventID, ErrNotFound)
	}
	log.Printf("[INFO] event %s cancelled by %s", eventID, user.ID)
	return nil
}

// Participants returns users joined the event, in join order.
func (s *Service) Participants(ctx context.Context, eventID string) ([]Participant, error) {
	res, err := s.client.From(participantsTable).Select().Eq("event_id", eventID).Order("joined_at", true).Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get participants of %s: %w", eventID, err)
	}
	var list []Participant
	if err := res.Decode(&list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Service) currentUser(ctx context.Context) (*backend.User, error) {
	sess, err := s.client.Auth().GetSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get session: %w", err)
	}
	if sess == nil || sess.User == nil {
		return nil, ErrUnauthenticated
	}
	return sess.User, nil
}
