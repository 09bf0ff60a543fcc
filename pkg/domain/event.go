package domain

import "time"

// EventKind identifies what drives a step.
type EventKind string

const (
	// EventUserReply carries text typed by the end-user.
	EventUserReply EventKind = "user_reply"
	// EventSchedulerTick wakes sleeping sessions whose delay has elapsed.
	EventSchedulerTick EventKind = "scheduler_tick"
	// EventExternalResume is raised by an operator or integration to nudge a session.
	EventExternalResume EventKind = "external_resume"
	// EventCancel ends a session from outside the flow (e.g. flow disabled).
	EventCancel EventKind = "cancel"
)

// Event is a single input to the engine. At is the event time and serves as
// "now" for the step, so a step is a pure function of (graph, session, event).
type Event struct {
	Kind   EventKind `json:"kind"`
	Text   string    `json:"text,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// UserReply builds a reply event.
func UserReply(text string, at time.Time) Event {
	return Event{Kind: EventUserReply, Text: text, At: at}
}

// SchedulerTick builds a timer event.
func SchedulerTick(at time.Time) Event {
	return Event{Kind: EventSchedulerTick, At: at}
}

// ExternalResume builds a resume event.
func ExternalResume(at time.Time) Event {
	return Event{Kind: EventExternalResume, At: at}
}

// Cancel builds a cancellation event.
func Cancel(reason string, at time.Time) Event {
	return Event{Kind: EventCancel, Reason: reason, At: at}
}
