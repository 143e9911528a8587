package calendar

import (
	"context"

	"github.com/atempo-ai/atempo-core/core/tools"
)

type currentTimeParams struct{}

type listEventsParams struct {
	MaxResults int `json:"max_results,omitempty" jsonschema:"title=Max results,description=Maximum number of events to return (default 5)"`
}

type slotParams struct {
	StartISO        string `json:"start_iso" jsonschema:"title=Start time,description=Slot start in ISO 8601 format"`
	DurationMinutes int    `json:"duration_minutes,omitempty" jsonschema:"title=Duration,description=Meeting length in minutes (default 60)"`
}

type bookMeetingParams struct {
	Summary         string `json:"summary" jsonschema:"title=Summary,description=Title of the meeting to book"`
	StartISO        string `json:"start_iso" jsonschema:"title=Start time,description=Meeting start in ISO 8601 format"`
	DurationMinutes int    `json:"duration_minutes,omitempty" jsonschema:"title=Duration,description=Meeting length in minutes (default 60)"`
}

// ToolNames is the declared tool surface, used to validate the registry at
// startup: a declared tool without a handler, or a handler nobody declared,
// fails before a session exists.
var ToolNames = []string{
	"get_current_time",
	"list_upcoming_events",
	"check_specific_slot",
	"find_nearest_slots",
	"smart_check_availability",
	"book_meeting",
}

// Tools binds a calendar backend to the assistant's tool surface. The model
// is steered toward smart_check_availability for availability questions; the
// narrower tools stay registered so it can answer direct questions without
// the combined flow.
func Tools(service Service) []tools.Tool {
	return []tools.Tool{
		tools.New("get_current_time",
			"Returns the current date and time in the user's timezone, including the weekday. Use this to resolve relative dates like 'tomorrow'.",
			func(ctx context.Context, _ currentTimeParams) (string, error) {
				return service.CurrentTime(ctx)
			}),
		tools.New("list_upcoming_events",
			"Lists upcoming calendar events with raw ISO timestamps.",
			func(ctx context.Context, params listEventsParams) (string, error) {
				return service.ListUpcomingEvents(ctx, params.MaxResults)
			}),
		tools.New("check_specific_slot",
			"Checks whether a specific time slot is free. Returns 'Available' or the conflicting events.",
			func(ctx context.Context, params slotParams) (string, error) {
				return service.CheckSlot(ctx, params.StartISO, params.DurationMinutes)
			}),
		tools.New("find_nearest_slots",
			"Finds up to three free slots within 48 hours of the given start, inside business hours.",
			func(ctx context.Context, params slotParams) (string, error) {
				return service.FindNearestSlots(ctx, params.StartISO, params.DurationMinutes)
			}),
		tools.New("smart_check_availability",
			"Checks a requested slot and, when it is busy, immediately returns the nearest free alternatives. Prefer this over separate check and search calls.",
			func(ctx context.Context, params slotParams) (string, error) {
				ctx, span := tracer.Start(ctx, "smart check availability")
				defer span.End()
				return SmartCheckAvailability(ctx, service, params.StartISO, params.DurationMinutes)
			}),
		tools.New("book_meeting",
			"Books a meeting with the given title at the specified start time.",
			func(ctx context.Context, params bookMeetingParams) (string, error) {
				return service.BookMeeting(ctx, params.Summary, params.StartISO, params.DurationMinutes)
			}),
	}
}

// NewRegistry builds a validated tool registry over the backend.
func NewRegistry(service Service) (*tools.Registry, error) {
	return tools.NewRegistry(Tools(service)...)
}
