package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/runner"
)

// ChatOptions configures an interactive conversation.
type ChatOptions struct {
	FlowID string
	UserID string
	In     io.Reader
	Out    io.Writer
	// Quiet hides the banner and system lines.
	Quiet bool
}

const chatHelp = "Commands: /state, /resume, /cancel [reason], /reset, /quit"

// RunChat plays the end-user of a flow on a terminal. Replies go through the
// runner exactly as webhook messages do, and the scheduler wakes delays.
func RunChat(ctx context.Context, app *App, opts ChatOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	key := opts.FlowID + ":" + opts.UserID
	if !opts.Quiet {
		tui.PrintBanner(opts.Out)
		printSystemMessage(opts.Out, "Chatting with %q as %q. %s", opts.FlowID, opts.UserID, chatHelp)
	}

	go func() {
		if err := app.Scheduler.Run(ctx); err != nil {
			app.Logger.Error("scheduler stopped", "err", err)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(opts.In)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		cmd, arg, _ := strings.Cut(line, " ")
		var (
			res *runner.Result
			err error
		)
		switch cmd {
		case "/quit", "/exit":
			return nil
		case "/help":
			printSystemMessage(opts.Out, chatHelp)
			continue
		case "/state":
			err = printState(ctx, app, key, opts.Out)
		case "/resume":
			res, err = app.Resume(ctx, key)
		case "/cancel":
			res, err = app.Cancel(ctx, key, strings.TrimSpace(arg))
		case "/reset":
			err = app.Sessions().Delete(ctx, key)
			if err == nil && !opts.Quiet {
				printSystemMessage(opts.Out, "Session %q removed.", key)
			}
		default:
			res, err = app.HandleInbound(ctx, opts.FlowID, opts.UserID, line)
		}
		if err != nil {
			printSystemMessage(opts.Out, "Error: %v", err)
			continue
		}
		if res != nil && !opts.Quiet && res.Session.Status.IsTerminal() && res.Diff != nil {
			printSystemMessage(opts.Out, "Session %s at %q.", res.Session.Status, res.Session.CurrentNodeID)
		}
	}
}

func printState(ctx context.Context, app *App, key string, out io.Writer) error {
	s, err := app.Sessions().Load(ctx, key)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// printSystemMessage prints a standardized system line.
func printSystemMessage(out io.Writer, format string, args ...any) {
	fmt.Fprintln(out, tui.Faint(out, ">>> "+fmt.Sprintf(format, args...)))
}
