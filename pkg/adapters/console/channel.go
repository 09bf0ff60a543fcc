// Package console delivers flow output to a terminal. It backs the
// interactive `parley chat` command, where the local user plays the end-user.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"golang.org/x/term"
)

// Channel writes sends, handoffs and incidents to a writer.
type Channel struct {
	mu       sync.Mutex
	out      io.Writer
	render   func(string) (string, error)
	seq      int
	now      func() time.Time
	markdown bool
}

var (
	_ ports.Channel        = (*Channel)(nil)
	_ ports.HandoffGateway = (*Channel)(nil)
	_ ports.OperatorQueue  = (*Channel)(nil)
)

type Option func(*Channel)

// WithMarkdown forces markdown rendering on or off.
// By default it is on only when the writer is a terminal.
func WithMarkdown(enabled bool) Option {
	return func(c *Channel) {
		c.markdown = enabled
	}
}

// New creates a console channel writing to out.
func New(out io.Writer, opts ...Option) (*Channel, error) {
	c := &Channel{
		out:      out,
		now:      time.Now,
		markdown: IsTerminal(out),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.markdown {
		width := 0
		if f, ok := out.(*os.File); ok {
			if w, _, err := term.GetSize(int(f.Fd())); err == nil {
				width = w
			}
		}
		r, err := tui.NewRenderer(width)
		if err != nil {
			return nil, fmt.Errorf("create renderer: %w", err)
		}
		c.render = r
	}
	return c, nil
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Send prints the content as a bot bubble.
func (c *Channel) Send(_ context.Context, sessionKey string, content domain.Content) (domain.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	text := Format(content)
	if c.render != nil {
		rendered, err := c.render(text)
		if err != nil {
			return domain.Receipt{}, fmt.Errorf("render message: %w", err)
		}
		text = rendered
	}
	if _, err := fmt.Fprintln(c.out, strings.TrimRight(text, "\n")); err != nil {
		return domain.Receipt{}, err
	}
	c.seq++
	return domain.Receipt{ID: fmt.Sprintf("console-%d", c.seq), DeliveredAt: c.now()}, nil
}

// Transfer prints the handoff notice.
func (c *Channel) Transfer(_ context.Context, _ string, handoff domain.Handoff) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	line := fmt.Sprintf("[handoff to %s]", handoff.Target)
	if handoff.Message != "" {
		line += " " + handoff.Message
	}
	_, err := fmt.Fprintln(c.out, tui.Faint(c.out, line))
	return err
}

// Report prints the incident.
func (c *Channel) Report(_ context.Context, incident domain.Incident) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.out, tui.Faint(c.out, fmt.Sprintf("[incident] %s: %s", incident.SessionKey, incident.Reason)))
	return err
}

// Format lays out content as markdown: text, media link, numbered options.
func Format(content domain.Content) string {
	var b strings.Builder
	if content.URL != "" {
		label := content.Caption
		if label == "" {
			label = string(content.MediaType)
		}
		fmt.Fprintf(&b, "[%s](%s)\n", label, content.URL)
	}
	if content.Text != "" {
		b.WriteString(content.Text)
		b.WriteString("\n")
	}
	if len(content.Options) > 0 {
		b.WriteString("\n")
		for i, opt := range content.Options {
			fmt.Fprintf(&b, "%d. %s\n", i+1, opt)
		}
	}
	return b.String()
}
