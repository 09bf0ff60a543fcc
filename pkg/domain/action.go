package domain

import "time"

// ActionType classifies what the caller must do with an Action.
type ActionType string

// Standard Action Types
const (
	// ActionSend requests delivery of Content to the end-user.
	ActionSend ActionType = "SEND"

	// ActionRepeat re-sends the pending prompt after an unrecognised reply.
	// Payload: Content (the same prompt)
	ActionRepeat ActionType = "REPEAT"

	// ActionHandoff requests the Handoff Gateway to take over the conversation.
	// Payload: Handoff
	ActionHandoff ActionType = "HANDOFF"
)

// Content is what a channel delivers.
type Content struct {
	Text      string    `json:"text,omitempty"`
	Options   []string  `json:"options,omitempty"`
	MediaType MediaType `json:"media_type,omitempty"`
	URL       string    `json:"url,omitempty"`
	Caption   string    `json:"caption,omitempty"`
}

// Handoff describes a transfer of control.
type Handoff struct {
	Target  Target `json:"target"`
	Message string `json:"message,omitempty"`
}

// Action is a side-effect the engine requests from its caller.
// The engine never performs actions itself.
type Action struct {
	Type    ActionType `json:"type"`
	NodeID  string     `json:"node_id"`
	Content *Content   `json:"content,omitempty"`
	Handoff *Handoff   `json:"handoff,omitempty"`

	// Warnings lists placeholders that could not be resolved while rendering.
	Warnings []string `json:"warnings,omitempty"`
}

// Receipt acknowledges a delivered send.
type Receipt struct {
	ID          string    `json:"id"`
	DeliveredAt time.Time `json:"delivered_at"`
}
