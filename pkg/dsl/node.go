package dsl

import (
	"time"

	"github.com/aretw0/parley/pkg/domain"
)

type exit struct {
	handle string
	label  string
	target string
}

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	id      string
	body    domain.Body
	exits   []exit
	builder *Builder
}

// Message makes the node a plain text send (soft step).
func (n *NodeBuilder) Message(text string) *NodeBuilder {
	n.body = domain.Message{Text: text}
	return n
}

// Question makes the node a free-text prompt whose answer is saved to variable (hard step).
func (n *NodeBuilder) Question(prompt, variable string) *NodeBuilder {
	n.body = domain.Question{Prompt: prompt, VariableName: variable}
	return n
}

// Menu makes the node a numbered list of options.
func (n *NodeBuilder) Menu(title string, options ...string) *NodeBuilder {
	n.body = domain.Menu{Title: title, Options: options}
	return n
}

// QuickReplies makes the node a text with reply shortcuts.
func (n *NodeBuilder) QuickReplies(text string, replies ...string) *NodeBuilder {
	n.body = domain.QuickReplies{Text: text, Replies: replies}
	return n
}

// Buttons makes the node a text with interactive buttons.
func (n *NodeBuilder) Buttons(text string, buttons ...string) *NodeBuilder {
	n.body = domain.InteractiveButtons{Text: text, Buttons: buttons}
	return n
}

// Media makes the node an attachment send.
func (n *NodeBuilder) Media(kind domain.MediaType, url, caption string) *NodeBuilder {
	n.body = domain.Media{MediaType: kind, URL: url, Caption: caption}
	return n
}

// Delay makes the node sleep for d before continuing.
func (n *NodeBuilder) Delay(d time.Duration) *NodeBuilder {
	n.body = domain.Delay{Duration: d}
	return n
}

// Transfer makes the node hand the conversation to a target.
func (n *NodeBuilder) Transfer(kind domain.TargetKind, id, message string) *NodeBuilder {
	n.body = domain.Transfer{Target: domain.Target{Kind: kind, ID: id}, HandoffMessage: message}
	return n
}

// End makes the node close the conversation.
func (n *NodeBuilder) End(finalMessage string) *NodeBuilder {
	n.body = domain.End{FinalMessage: finalMessage}
	return n
}

// Go adds the default exit to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.exits = append(n.exits, exit{handle: domain.HandleDefault, target: target})
	return n
}

// On routes the choice labelled label to the target node. Labels match case-insensitively.
func (n *NodeBuilder) On(label, target string) *NodeBuilder {
	n.exits = append(n.exits, exit{label: label, target: target})
	return n
}

// Handle routes a raw handle (e.g. "option-0") to the target node.
func (n *NodeBuilder) Handle(handle, target string) *NodeBuilder {
	n.exits = append(n.exits, exit{handle: handle, target: target})
	return n
}

// Add continues with another node of the same builder.
func (n *NodeBuilder) Add(id string) *NodeBuilder {
	return n.builder.Add(id)
}

// Build returns the underlying domain.Node.
func (n *NodeBuilder) Build() domain.Node {
	return domain.Node{ID: n.id, Body: n.body}
}
