package runtime

import (
	"github.com/aretw0/parley/pkg/domain"
)

// send renders a node's outgoing content and queues it as an action of type t.
func (st *stepper) send(t domain.ActionType, node domain.Node) *domain.Content {
	content, warnings := st.renderContent(node)
	st.actions = append(st.actions, domain.Action{
		Type:     t,
		NodeID:   node.ID,
		Content:  content,
		Warnings: warnings,
	})
	return content
}

// renderContent interpolates every user-visible string of a node.
func (st *stepper) renderContent(node domain.Node) (*domain.Content, []string) {
	r := &renderer{st: st}
	c := &domain.Content{}
	switch b := node.Body.(type) {
	case domain.Message:
		c.Text = r.text(b.Text)
	case domain.Question:
		c.Text = r.text(b.Prompt)
	case domain.Menu:
		c.Text = r.text(b.Title)
		c.Options = r.list(b.Options)
	case domain.QuickReplies:
		c.Text = r.text(b.Text)
		c.Options = r.list(b.Replies)
	case domain.InteractiveButtons:
		c.Text = r.text(b.Text)
		c.Options = r.list(b.Buttons)
	case domain.Media:
		c.MediaType = b.MediaType
		c.URL = b.URL
		c.Caption = r.text(b.Caption)
	case domain.End:
		c.Text = r.text(b.FinalMessage)
	}
	if len(r.warnings) > 0 {
		st.logger.Warn("unresolved placeholders", "node_id", node.ID, "placeholders", r.warnings)
	}
	return c, r.warnings
}

// render interpolates a single string, logging any unresolved placeholders.
func (st *stepper) render(text string) (string, []string) {
	r := &renderer{st: st}
	out := r.text(text)
	if len(r.warnings) > 0 {
		st.logger.Warn("unresolved placeholders", "node_id", st.session.CurrentNodeID, "placeholders", r.warnings)
	}
	return out, r.warnings
}

type renderer struct {
	st       *stepper
	warnings []string
	seen     map[string]bool
}

func (r *renderer) text(s string) string {
	if s == "" {
		return ""
	}
	out, unresolved := r.st.engine.interpolator(s, r.st.session.Variables)
	for _, name := range unresolved {
		if r.seen == nil {
			r.seen = make(map[string]bool)
		}
		if !r.seen[name] {
			r.seen[name] = true
			r.warnings = append(r.warnings, name)
		}
	}
	return out
}

func (r *renderer) list(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = r.text(s)
	}
	return out
}
