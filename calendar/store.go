package calendar

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultTimezone is the user timezone applied when none is configured.
const DefaultTimezone = "Asia/Kolkata"

const (
	businessHoursStart = 9
	businessHoursEnd   = 18
	searchWindow       = 48 * time.Hour
	slotStep           = 30 * time.Minute
	maxSuggestedSlots  = 3

	defaultListResults = 5
)

// Event is one calendar entry held by the in-memory store.
type Event struct {
	Summary string
	Start   time.Time
	End     time.Time
}

func (e Event) overlaps(start, end time.Time) bool {
	return start.Before(e.End) && end.After(e.Start)
}

// Store is an in-memory calendar backend. It holds the full slot-search and
// conflict logic, which makes it both the offline backend and the reference
// behavior the remote client's service is expected to match.
type Store struct {
	location *time.Location
	now      func() time.Time

	mu     sync.RWMutex
	events []Event
}

type StoreOption func(*Store)

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEvents seeds the store.
func WithEvents(events ...Event) StoreOption {
	return func(s *Store) { s.events = append(s.events, events...) }
}

// NewStore builds a store for the given IANA timezone name; an empty name
// selects DefaultTimezone.
func NewStore(timezone string, opts ...StoreOption) (*Store, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}

	store := &Store{location: location, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// AddEvent inserts an event directly, bypassing the booking flow.
func (s *Store) AddEvent(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *Store) CurrentTime(_ context.Context) (string, error) {
	return s.now().In(s.location).Format("Monday, 2006-01-02 15:04:05 MST"), nil
}

func (s *Store) ListUpcomingEvents(_ context.Context, maxResults int) (string, error) {
	if maxResults <= 0 {
		maxResults = defaultListResults
	}
	now := s.now()

	s.mu.RLock()
	upcoming := make([]Event, 0, len(s.events))
	for _, event := range s.events {
		if event.End.After(now) {
			upcoming = append(upcoming, event)
		}
	}
	s.mu.RUnlock()

	if len(upcoming) == 0 {
		return "No upcoming events found.", nil
	}

	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].Start.Before(upcoming[j].Start) })
	if len(upcoming) > maxResults {
		upcoming = upcoming[:maxResults]
	}

	lines := make([]string, len(upcoming))
	for i, event := range upcoming {
		lines[i] = fmt.Sprintf("Event: %s at %s", event.Summary, event.Start.In(s.location).Format(time.RFC3339))
	}
	return strings.Join(lines, "\n"), nil
}

func (s *Store) CheckSlot(_ context.Context, startISO string, durationMinutes int) (string, error) {
	start, end, err := s.slotBounds(startISO, durationMinutes)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var conflicts []string
	for _, event := range s.events {
		if event.overlaps(start, end) {
			conflicts = append(conflicts, event.Summary)
		}
	}
	if len(conflicts) == 0 {
		return StatusAvailable, nil
	}
	return "Conflict with: " + strings.Join(conflicts, ", "), nil
}

func (s *Store) FindNearestSlots(_ context.Context, startSearchISO string, durationMinutes int) (string, error) {
	start, _, err := s.slotBounds(startSearchISO, durationMinutes)
	if err != nil {
		return "", err
	}
	duration := slotDuration(durationMinutes)
	searchEnd := start.Add(searchWindow)

	s.mu.RLock()
	busy := make([]Event, len(s.events))
	copy(busy, s.events)
	s.mu.RUnlock()

	var free []string
	for current := start; len(free) < maxSuggestedSlots && current.Before(searchEnd); current = current.Add(slotStep) {
		slotEnd := current.Add(duration)

		conflicted := false
		for _, event := range busy {
			if event.overlaps(current, slotEnd) {
				conflicted = true
				break
			}
		}
		if conflicted {
			continue
		}

		// Only suggest starts inside business hours.
		hour := current.In(s.location).Hour()
		if hour < businessHoursStart || hour >= businessHoursEnd {
			continue
		}
		free = append(free, current.In(s.location).Format(time.RFC3339))
	}

	if len(free) == 0 {
		return "No free slots found in next 48 hours.", nil
	}
	return "Available slots: " + strings.Join(free, ", "), nil
}

func (s *Store) BookMeeting(_ context.Context, summary, startISO string, durationMinutes int) (string, error) {
	if strings.TrimSpace(summary) == "" {
		return "", fmt.Errorf("meeting summary must not be empty")
	}
	start, end, err := s.slotBounds(startISO, durationMinutes)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.events = append(s.events, Event{Summary: summary, Start: start, End: end})
	s.mu.Unlock()

	logger.Info("meeting booked", "summary", summary, "start", startISO)
	return fmt.Sprintf("Meeting '%s' booked successfully at %s", summary, startISO), nil
}

func (s *Store) slotBounds(startISO string, durationMinutes int) (time.Time, time.Time, error) {
	start, err := s.parseTime(startISO)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.Add(slotDuration(durationMinutes)), nil
}

// parseTime accepts RFC 3339 as well as naive ISO timestamps, which the model
// frequently produces; naive times are taken in the user's timezone.
func (s *Store) parseTime(value string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if parsed, err := time.ParseInLocation(layout, value, s.location); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse time %q: expected ISO 8601", value)
}

func slotDuration(durationMinutes int) time.Duration {
	if durationMinutes <= 0 {
		durationMinutes = DefaultDurationMinutes
	}
	return time.Duration(durationMinutes) * time.Minute
}
