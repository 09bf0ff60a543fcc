/*
Package parley runs chatbot conversations defined as versioned flow graphs.

A flow is a directed graph of typed nodes (messages, questions, menus, quick
replies, buttons, media, delays, transfers and ends) connected by edges that
leave through named handles. Each end-user owns one session per flow. Every
inbound message, scheduler tick, operator resume or cancellation is applied
to the session as one step of a pure engine, persisted with optimistic
versioning, and only then turned into outbound messages or a handoff.

# Usage

Flows are read from a directory of YAML, JSON or Markdown documents:

	p, err := parley.New(ctx, "./flows",
		parley.WithStore(store),
		parley.WithChannel(channel),
	)
	if err != nil {
		log.Fatal(err)
	}
	res, err := p.HandleInbound(ctx, "onboarding", "5511999990000", "oi")

Sessions suspended on a delay are woken by pkg/scheduler. The HTTP API,
the MCP tools and the `parley` command live under pkg/adapters and cmd.
*/
package parley
