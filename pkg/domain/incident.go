package domain

import "time"

// Incident is raised to operators when a session needs manual intervention.
type Incident struct {
	SessionKey  string    `json:"session_key"`
	FlowID      string    `json:"flow_id"`
	FlowVersion int       `json:"flow_version"`
	UserID      string    `json:"user_id"`
	NodeID      string    `json:"node_id,omitempty"`
	Reason      string    `json:"reason"`
	At          time.Time `json:"at"`
}

// IncidentFor builds an incident from an errored session.
func IncidentFor(s *Session) Incident {
	return Incident{
		SessionKey:  s.Key,
		FlowID:      s.FlowID,
		FlowVersion: s.FlowVersion,
		UserID:      s.UserID,
		NodeID:      s.CurrentNodeID,
		Reason:      s.Reason,
		At:          s.LastActivityAt,
	}
}
