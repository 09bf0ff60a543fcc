package domain

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle position of a Session.
type Status string

const (
	StatusRunning         Status = "running"           // Transient, or freshly created
	StatusWaitingForInput Status = "waiting_for_input" // Suspended on a prompt
	StatusSleeping        Status = "sleeping"          // Suspended on a Delay until WakeAt
	StatusHandedOff       Status = "handed_off"        // Control transferred, terminal
	StatusEnded           Status = "ended"             // End node reached or cancelled, terminal
	StatusErrored         Status = "errored"           // Integrity failure, terminal
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusWaitingForInput, StatusSleeping, StatusHandedOff, StatusEnded, StatusErrored:
		return true
	}
	return false
}

// IsTerminal reports whether the session no longer accepts events.
func (s Status) IsTerminal() bool {
	return s == StatusHandedOff || s == StatusEnded || s == StatusErrored
}

// InputKind describes what a waiting session accepts.
type InputKind string

const (
	InputFreeText InputKind = "free_text"
	InputChoice   InputKind = "choice"
)

// ExpectedInput echoes the prompt a session is waiting on.
type ExpectedInput struct {
	Kind         InputKind `json:"kind"`
	NodeID       string    `json:"node_id"`
	VariableName string    `json:"variable_name,omitempty"`
	Options      []string  `json:"options,omitempty"`
	HandlePrefix string    `json:"handle_prefix,omitempty"`
}

// MaxHistory bounds the visited-node trail kept on a session.
const MaxHistory = 50

// Session is the durable run-time state of one end-user's progress through a flow.
// It is mutated only by the engine; stores persist it with optimistic versioning.
type Session struct {
	Key            string            `json:"key"`
	FlowID         string            `json:"flow_id"`
	FlowVersion    int               `json:"flow_version"`
	UserID         string            `json:"user_id"`
	CurrentNodeID  string            `json:"current_node_id"`
	Status         Status            `json:"status"`
	Variables      map[string]string `json:"variables"`
	WakeAt         *time.Time        `json:"wake_at,omitempty"`
	ExpectedInput  *ExpectedInput    `json:"expected_input,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	History        []string          `json:"history,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`

	// Version is the optimistic concurrency token; 0 means never saved.
	Version int64 `json:"version"`
}

// SessionKey builds the key of the single active session of a user on a flow.
func SessionKey(flowID, userID string) string {
	return flowID + ":" + userID
}

// NewSession creates an unstarted session pinned to a flow version.
// The engine enters the flow's entry node on the first event it receives.
func NewSession(flowID string, version int, userID string, now time.Time) *Session {
	return &Session{
		Key:            SessionKey(flowID, userID),
		FlowID:         flowID,
		FlowVersion:    version,
		UserID:         userID,
		Status:         StatusRunning,
		Variables:      make(map[string]string),
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// Started reports whether the session has entered its flow.
func (s *Session) Started() bool {
	return s.CurrentNodeID != ""
}

// Clone returns a deep copy safe for independent mutation.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Variables = make(map[string]string, len(s.Variables))
	for k, v := range s.Variables {
		c.Variables[k] = v
	}
	if s.WakeAt != nil {
		t := *s.WakeAt
		c.WakeAt = &t
	}
	if s.ExpectedInput != nil {
		in := *s.ExpectedInput
		in.Options = append([]string(nil), s.ExpectedInput.Options...)
		c.ExpectedInput = &in
	}
	c.History = append([]string(nil), s.History...)
	return &c
}

// CheckInvariants verifies the status-dependent fields.
func (s *Session) CheckInvariants(g *FlowGraph) error {
	var errs []error
	if !s.Status.Valid() {
		errs = append(errs, fmt.Errorf("unknown status %q", s.Status))
	}
	if s.Status == StatusSleeping {
		if s.WakeAt == nil {
			errs = append(errs, errors.New("sleeping session has no wake time"))
		}
		if g != nil {
			if n, ok := g.Nodes[s.CurrentNodeID]; !ok || n.Kind() != KindDelay {
				errs = append(errs, fmt.Errorf("sleeping session is on %q, not a delay node", s.CurrentNodeID))
			}
		}
	} else if s.WakeAt != nil {
		errs = append(errs, fmt.Errorf("%s session carries a wake time", s.Status))
	}
	if s.Status == StatusWaitingForInput && s.ExpectedInput == nil {
		errs = append(errs, errors.New("waiting session has no expected input"))
	}
	return errors.Join(errs...)
}
