// Package calendar provides the scheduling backend behind the assistant's
// tools. Every operation returns a human-readable string for the model to
// relay; a Go error means the backend itself failed, not that a slot is busy.
package calendar

import (
	"context"
	"fmt"
)

// StatusAvailable is the exact string CheckSlot returns for a free slot.
// SmartCheckAvailability branches on it, so implementations must return it
// verbatim.
const StatusAvailable = "Available"

// DefaultDurationMinutes applies when a tool call omits the meeting length.
const DefaultDurationMinutes = 60

// Service is a calendar backend. Times are ISO 8601 strings because the
// conversational model produces and consumes them directly.
type Service interface {
	// CurrentTime reports the current date and time in the user's timezone,
	// including the weekday so the model can resolve "tomorrow" and "Friday".
	CurrentTime(ctx context.Context) (string, error)

	// ListUpcomingEvents lists up to maxResults events from now on, one
	// "Event: <summary> at <start>" line each, with raw ISO timestamps.
	ListUpcomingEvents(ctx context.Context, maxResults int) (string, error)

	// CheckSlot reports StatusAvailable or "Conflict with: <summaries>" for
	// the slot starting at startISO.
	CheckSlot(ctx context.Context, startISO string, durationMinutes int) (string, error)

	// FindNearestSlots searches forward from startSearchISO in 30-minute
	// steps, inside business hours, and returns up to three free starts.
	FindNearestSlots(ctx context.Context, startSearchISO string, durationMinutes int) (string, error)

	// BookMeeting creates the event and confirms it.
	BookMeeting(ctx context.Context, summary, startISO string, durationMinutes int) (string, error)
}

// SmartCheckAvailability is the single entry point the model is steered
// toward for availability questions: either the requested slot is free, or it
// is busy and the nearest alternatives are attached. There is no third
// outcome.
func SmartCheckAvailability(ctx context.Context, service Service, startISO string, durationMinutes int) (string, error) {
	status, err := service.CheckSlot(ctx, startISO, durationMinutes)
	if err != nil {
		return "", fmt.Errorf("failed to check slot: %w", err)
	}
	if status == StatusAvailable {
		return StatusAvailable, nil
	}

	alternatives, err := service.FindNearestSlots(ctx, startISO, durationMinutes)
	if err != nil {
		return "", fmt.Errorf("failed to find alternative slots: %w", err)
	}
	return fmt.Sprintf("Busy. Alternatives: %s", alternatives), nil
}
