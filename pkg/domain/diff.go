package domain

import (
	"slices"
	"time"
)

// SessionDiff represents the changes a step made to a session.
// It is designed to be serialized to JSON for partial updates on operator consoles.
type SessionDiff struct {
	// Key is always present to identify the target.
	Key string `json:"key"`

	CurrentNodeID *string `json:"current_node_id,omitempty"`
	Status        *Status `json:"status,omitempty"`

	// Variables contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Variables map[string]*string `json:"variables,omitempty"`

	// History contains the nodes appended to the trail.
	History *HistoryDelta `json:"history,omitempty"`

	WakeAt        *time.Time     `json:"wake_at,omitempty"`
	ExpectedInput *ExpectedInput `json:"expected_input,omitempty"`
	Reason        *string        `json:"reason,omitempty"`

	// Cleared names the optional fields (wake_at, expected_input, reason)
	// that were set before the step and are unset after it.
	Cleared []string `json:"cleared,omitempty"`
}

// HistoryDelta represents changes to the visited-node trail.
type HistoryDelta struct {
	Appended []string `json:"appended"`
}

// Diff calculates the difference between before and after.
// If before is nil, it returns a diff representing the entire session.
// It returns nil when nothing changed.
func Diff(before, after *Session) *SessionDiff {
	if after == nil {
		return nil
	}

	diff := &SessionDiff{Key: after.Key}
	if before == nil || before.CurrentNodeID != after.CurrentNodeID {
		id := after.CurrentNodeID
		diff.CurrentNodeID = &id
	}
	if before == nil || before.Status != after.Status {
		st := after.Status
		diff.Status = &st
	}
	diff.Variables = diffVariables(before, after)
	diff.History = diffHistory(before, after)
	diffSuspension(diff, before, after)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffVariables(before, after *Session) map[string]*string {
	delta := make(map[string]*string)
	for k, v := range after.Variables {
		if before != nil {
			if old, ok := before.Variables[k]; ok && old == v {
				continue
			}
		}
		v := v
		delta[k] = &v
	}
	if before != nil {
		for k := range before.Variables {
			if _, ok := after.Variables[k]; !ok {
				delta[k] = nil
			}
		}
	}
	if len(delta) == 0 {
		return nil
	}
	return delta
}

// diffHistory finds the entries appended to after's trail. The trail is a
// bounded window, so the old tail may have slid off the front.
func diffHistory(before, after *Session) *HistoryDelta {
	if len(after.History) == 0 {
		return nil
	}
	if before == nil || len(before.History) == 0 {
		return &HistoryDelta{Appended: slices.Clone(after.History)}
	}

	old, cur := before.History, after.History
	for drop := 0; drop < len(old); drop++ {
		kept := old[drop:]
		if len(kept) > len(cur) || !slices.Equal(kept, cur[:len(kept)]) {
			continue
		}
		if len(cur) == len(kept) {
			return nil
		}
		return &HistoryDelta{Appended: slices.Clone(cur[len(kept):])}
	}
	return &HistoryDelta{Appended: slices.Clone(cur)}
}

// diffSuspension records changes to the fields that describe why and until
// when a session is parked.
func diffSuspension(diff *SessionDiff, before, after *Session) {
	if before == nil {
		before = &Session{}
	}

	switch {
	case after.WakeAt != nil && (before.WakeAt == nil || !before.WakeAt.Equal(*after.WakeAt)):
		at := *after.WakeAt
		diff.WakeAt = &at
	case after.WakeAt == nil && before.WakeAt != nil:
		diff.Cleared = append(diff.Cleared, "wake_at")
	}

	switch {
	case after.ExpectedInput != nil && !equalExpectedInput(before.ExpectedInput, after.ExpectedInput):
		in := *after.ExpectedInput
		in.Options = slices.Clone(in.Options)
		diff.ExpectedInput = &in
	case after.ExpectedInput == nil && before.ExpectedInput != nil:
		diff.Cleared = append(diff.Cleared, "expected_input")
	}

	switch {
	case after.Reason != "" && before.Reason != after.Reason:
		r := after.Reason
		diff.Reason = &r
	case after.Reason == "" && before.Reason != "":
		diff.Cleared = append(diff.Cleared, "reason")
	}
}

func equalExpectedInput(a, b *ExpectedInput) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Kind == b.Kind &&
		a.NodeID == b.NodeID &&
		a.VariableName == b.VariableName &&
		a.HandlePrefix == b.HandlePrefix &&
		slices.Equal(a.Options, b.Options)
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SessionDiff) IsEmpty() bool {
	return d.CurrentNodeID == nil &&
		d.Status == nil &&
		len(d.Variables) == 0 &&
		d.History == nil &&
		d.WakeAt == nil &&
		d.ExpectedInput == nil &&
		d.Reason == nil &&
		len(d.Cleared) == 0
}
