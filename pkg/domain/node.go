package domain

import (
	"fmt"
	"time"
)

// NodeKind identifies the variant carried by a Node.
type NodeKind string

const (
	// KindMessage sends text and advances immediately (soft step).
	KindMessage NodeKind = "message"
	// KindQuestion sends a prompt and halts until free-text input arrives (hard step).
	KindQuestion NodeKind = "question"
	// KindMenu sends a titled list of options and halts until one is chosen.
	KindMenu NodeKind = "menu"
	// KindQuickReplies sends text with up to three reply shortcuts.
	KindQuickReplies NodeKind = "quick_replies"
	// KindInteractiveButtons sends text with tappable buttons.
	KindInteractiveButtons NodeKind = "interactive_buttons"
	// KindMedia sends an image, audio, video or document and advances immediately.
	KindMedia NodeKind = "media"
	// KindDelay puts the session to sleep for a fixed duration.
	KindDelay NodeKind = "delay"
	// KindTransfer hands the conversation to a sector, a user or another bot.
	KindTransfer NodeKind = "transfer"
	// KindEnd closes the conversation.
	KindEnd NodeKind = "end"
)

// MaxQuickReplies is the channel limit for quick reply shortcuts.
const MaxQuickReplies = 3

// Body is the variant payload of a Node.
// The set of implementations is closed: only the types in this file satisfy it.
type Body interface {
	Kind() NodeKind
	isBody()
}

// Node is one step of a conversation.
type Node struct {
	ID   string
	Body Body
}

// Kind returns the variant kind, or "" for a node without a body.
func (n Node) Kind() NodeKind {
	if n.Body == nil {
		return ""
	}
	return n.Body.Kind()
}

// Message is a plain text send.
type Message struct {
	Text string `json:"text" mapstructure:"text"`
}

// Question asks for free text and stores the answer in VariableName.
type Question struct {
	Prompt       string `json:"prompt" mapstructure:"prompt"`
	VariableName string `json:"variable_name" mapstructure:"variable_name"`
}

// Menu offers a numbered list of options.
type Menu struct {
	Title   string   `json:"title" mapstructure:"title"`
	Options []string `json:"options" mapstructure:"options"`
}

// QuickReplies offers up to MaxQuickReplies shortcut answers.
type QuickReplies struct {
	Text    string   `json:"text" mapstructure:"text"`
	Replies []string `json:"replies" mapstructure:"replies"`
}

// InteractiveButtons offers tappable buttons.
type InteractiveButtons struct {
	Text    string   `json:"text" mapstructure:"text"`
	Buttons []string `json:"buttons" mapstructure:"buttons"`
}

// MediaType enumerates the attachments a Media node can carry.
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaAudio    MediaType = "audio"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
)

// Media sends an attachment with an optional caption.
type Media struct {
	MediaType MediaType `json:"media_type" mapstructure:"media_type"`
	URL       string    `json:"url" mapstructure:"url"`
	Caption   string    `json:"caption,omitempty" mapstructure:"caption"`
}

// Delay suspends the session for Duration.
type Delay struct {
	Duration time.Duration `json:"duration" mapstructure:"duration"`
}

// TargetKind enumerates handoff destinations.
type TargetKind string

const (
	TargetSector TargetKind = "sector"
	TargetUser   TargetKind = "user"
	TargetBot    TargetKind = "bot"
)

// Valid reports whether k is a known destination kind.
func (k TargetKind) Valid() bool {
	switch k {
	case TargetSector, TargetUser, TargetBot:
		return true
	}
	return false
}

// Target identifies who receives a handed-off conversation.
type Target struct {
	Kind TargetKind `json:"kind" mapstructure:"kind"`
	ID   string     `json:"id" mapstructure:"id"`
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%s", t.Kind, t.ID)
}

// Transfer hands the session to Target and leaves engine control.
type Transfer struct {
	Target         Target `json:"target" mapstructure:"target"`
	HandoffMessage string `json:"handoff_message,omitempty" mapstructure:"handoff_message"`
}

// End terminates the conversation with an optional final message.
type End struct {
	FinalMessage string `json:"final_message,omitempty" mapstructure:"final_message"`
}

func (Message) Kind() NodeKind            { return KindMessage }
func (Question) Kind() NodeKind           { return KindQuestion }
func (Menu) Kind() NodeKind               { return KindMenu }
func (QuickReplies) Kind() NodeKind       { return KindQuickReplies }
func (InteractiveButtons) Kind() NodeKind { return KindInteractiveButtons }
func (Media) Kind() NodeKind              { return KindMedia }
func (Delay) Kind() NodeKind              { return KindDelay }
func (Transfer) Kind() NodeKind           { return KindTransfer }
func (End) Kind() NodeKind                { return KindEnd }

func (Message) isBody()            {}
func (Question) isBody()           {}
func (Menu) isBody()               {}
func (QuickReplies) isBody()       {}
func (InteractiveButtons) isBody() {}
func (Media) isBody()              {}
func (Delay) isBody()              {}
func (Transfer) isBody()           {}
func (End) isBody()                {}

// Choices returns the labels of a choice-bearing node and the handle prefix
// its exits use. ok is false for nodes that do not offer choices.
func (n Node) Choices() (labels []string, prefix string, ok bool) {
	switch b := n.Body.(type) {
	case Menu:
		return b.Options, OptionPrefix, true
	case InteractiveButtons:
		return b.Buttons, OptionPrefix, true
	case QuickReplies:
		return b.Replies, ReplyPrefix, true
	}
	return nil, "", false
}

// IsTerminal reports whether the node ends engine control (End or Transfer).
func (k NodeKind) IsTerminal() bool {
	return k == KindEnd || k == KindTransfer
}

// Suspends reports whether traversal stops when entering a node of this kind.
func (k NodeKind) Suspends() bool {
	switch k {
	case KindQuestion, KindMenu, KindQuickReplies, KindInteractiveButtons, KindDelay, KindTransfer, KindEnd:
		return true
	}
	return false
}

// Valid reports whether k is one of the known variants.
func (k NodeKind) Valid() bool {
	switch k {
	case KindMessage, KindQuestion, KindMenu, KindQuickReplies, KindInteractiveButtons,
		KindMedia, KindDelay, KindTransfer, KindEnd:
		return true
	}
	return false
}
