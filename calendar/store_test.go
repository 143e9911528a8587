package calendar

import (
	"context"
	"strings"
	"testing"
	"time"
)

func testStore(t *testing.T, events ...Event) *Store {
	t.Helper()
	fixed := time.Date(2025, 12, 8, 9, 0, 0, 0, kolkata(t))
	store, err := NewStore(DefaultTimezone, WithClock(func() time.Time { return fixed }), WithEvents(events...))
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	return store
}

func kolkata(t *testing.T) *time.Location {
	t.Helper()
	location, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("failed to load timezone: %v", err)
	}
	return location
}

func standup(t *testing.T) Event {
	t.Helper()
	loc := kolkata(t)
	return Event{
		Summary: "Standup",
		Start:   time.Date(2025, 12, 8, 15, 0, 0, 0, loc),
		End:     time.Date(2025, 12, 8, 15, 30, 0, 0, loc),
	}
}

func TestCurrentTimeIncludesWeekday(t *testing.T) {
	now, err := testStore(t).CurrentTime(context.Background())
	if err != nil {
		t.Fatalf("failed to get current time: %v", err)
	}
	if !strings.HasPrefix(now, "Monday, 2025-12-08") {
		t.Errorf("expected weekday-prefixed timestamp, got %q", now)
	}
	if !strings.Contains(now, "IST") {
		t.Errorf("expected the user timezone in %q", now)
	}
}

func TestListUpcomingEventsEmpty(t *testing.T) {
	listed, err := testStore(t).ListUpcomingEvents(context.Background(), 5)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if listed != "No upcoming events found." {
		t.Errorf("unexpected empty-calendar response: %q", listed)
	}
}

func TestListUpcomingEventsSortedAndCapped(t *testing.T) {
	loc := kolkata(t)
	var events []Event
	for hour := 17; hour >= 10; hour-- {
		events = append(events, Event{
			Summary: "Meeting",
			Start:   time.Date(2025, 12, 8, hour, 0, 0, 0, loc),
			End:     time.Date(2025, 12, 8, hour, 30, 0, 0, loc),
		})
	}
	store := testStore(t, events...)

	listed, err := store.ListUpcomingEvents(context.Background(), 3)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	lines := strings.Split(listed, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), listed)
	}
	if !strings.Contains(lines[0], "10:00") {
		t.Errorf("expected the earliest event first, got %q", lines[0])
	}
}

func TestCheckSlotAvailable(t *testing.T) {
	store := testStore(t, standup(t))

	status, err := store.CheckSlot(context.Background(), "2025-12-08T16:00:00+05:30", 60)
	if err != nil {
		t.Fatalf("failed to check slot: %v", err)
	}
	if status != StatusAvailable {
		t.Errorf("expected %q, got %q", StatusAvailable, status)
	}
}

func TestCheckSlotConflict(t *testing.T) {
	store := testStore(t, standup(t))

	status, err := store.CheckSlot(context.Background(), "2025-12-08T15:00:00+05:30", 60)
	if err != nil {
		t.Fatalf("failed to check slot: %v", err)
	}
	if status != "Conflict with: Standup" {
		t.Errorf("expected a Standup conflict, got %q", status)
	}
}

func TestCheckSlotAcceptsNaiveTimestamps(t *testing.T) {
	store := testStore(t, standup(t))

	status, err := store.CheckSlot(context.Background(), "2025-12-08T15:00:00", 60)
	if err != nil {
		t.Fatalf("failed to check naive timestamp: %v", err)
	}
	if status != "Conflict with: Standup" {
		t.Errorf("expected the naive time to resolve in the user timezone, got %q", status)
	}
}

func TestCheckSlotRejectsGarbage(t *testing.T) {
	if _, err := testStore(t).CheckSlot(context.Background(), "next tuesday-ish", 60); err == nil {
		t.Fatal("expected a parse error for a non-ISO timestamp")
	}
}

func TestFindNearestSlotsSkipsConflictsAndOffHours(t *testing.T) {
	store := testStore(t, standup(t))

	slots, err := store.FindNearestSlots(context.Background(), "2025-12-08T14:30:00+05:30", 60)
	if err != nil {
		t.Fatalf("failed to find slots: %v", err)
	}
	if !strings.HasPrefix(slots, "Available slots: ") {
		t.Fatalf("unexpected slots response: %q", slots)
	}
	suggested := strings.Split(strings.TrimPrefix(slots, "Available slots: "), ", ")
	if len(suggested) != 3 {
		t.Fatalf("expected 3 suggestions, got %d: %q", len(suggested), slots)
	}
	// 14:30 and 15:00 overlap the standup; 15:30 is the first free start.
	if suggested[0] != "2025-12-08T15:30:00+05:30" {
		t.Errorf("expected the first free slot after the standup, got %q", suggested[0])
	}
	for _, slot := range suggested {
		parsed, err := time.Parse(time.RFC3339, slot)
		if err != nil {
			t.Fatalf("suggestion %q is not RFC 3339: %v", slot, err)
		}
		hour := parsed.In(kolkata(t)).Hour()
		if hour < 9 || hour >= 18 {
			t.Errorf("suggestion %q is outside business hours", slot)
		}
	}
}

func TestFindNearestSlotsNoneFree(t *testing.T) {
	loc := kolkata(t)
	blocker := Event{
		Summary: "Offsite",
		Start:   time.Date(2025, 12, 8, 0, 0, 0, 0, loc),
		End:     time.Date(2025, 12, 11, 0, 0, 0, 0, loc),
	}
	store := testStore(t, blocker)

	slots, err := store.FindNearestSlots(context.Background(), "2025-12-08T09:00:00+05:30", 60)
	if err != nil {
		t.Fatalf("failed to find slots: %v", err)
	}
	if slots != "No free slots found in next 48 hours." {
		t.Errorf("expected no free slots, got %q", slots)
	}
}

func TestBookMeetingCreatesConflict(t *testing.T) {
	store := testStore(t)

	confirmation, err := store.BookMeeting(context.Background(), "Design review", "2025-12-08T15:00:00+05:30", 60)
	if err != nil {
		t.Fatalf("failed to book meeting: %v", err)
	}
	if confirmation != "Meeting 'Design review' booked successfully at 2025-12-08T15:00:00+05:30" {
		t.Errorf("unexpected confirmation: %q", confirmation)
	}

	status, err := store.CheckSlot(context.Background(), "2025-12-08T15:30:00+05:30", 30)
	if err != nil {
		t.Fatalf("failed to re-check slot: %v", err)
	}
	if status != "Conflict with: Design review" {
		t.Errorf("expected the booked meeting to conflict, got %q", status)
	}
}

func TestBookMeetingRequiresSummary(t *testing.T) {
	if _, err := testStore(t).BookMeeting(context.Background(), "  ", "2025-12-08T15:00:00+05:30", 60); err == nil {
		t.Fatal("expected an error for an empty summary")
	}
}

func TestSmartCheckAvailabilityFreeSlot(t *testing.T) {
	store := testStore(t, standup(t))

	result, err := SmartCheckAvailability(context.Background(), store, "2025-12-08T16:00:00+05:30", 60)
	if err != nil {
		t.Fatalf("smart check failed: %v", err)
	}
	if result != StatusAvailable {
		t.Errorf("expected %q, got %q", StatusAvailable, result)
	}
}

func TestSmartCheckAvailabilityBusySlot(t *testing.T) {
	store := testStore(t, standup(t))

	result, err := SmartCheckAvailability(context.Background(), store, "2025-12-08T15:00:00+05:30", 60)
	if err != nil {
		t.Fatalf("smart check failed: %v", err)
	}
	if !strings.HasPrefix(result, "Busy. Alternatives: Available slots: ") {
		t.Errorf("expected busy with alternatives, got %q", result)
	}
}

func TestToolRegistryCoversAllSixTools(t *testing.T) {
	registry, err := NewRegistry(testStore(t))
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	expected := []string{
		"get_current_time",
		"list_upcoming_events",
		"check_specific_slot",
		"find_nearest_slots",
		"smart_check_availability",
		"book_meeting",
	}
	if err := registry.Validate(expected); err != nil {
		t.Errorf("registry does not match the declared tool surface: %v", err)
	}
}
