/*
Package runner drives the flow engine for real conversations.

The engine only computes (session, event) -> (session', actions). The Runner
is its caller: it resolves the flow version a session is pinned to, holds the
session lock for load, step and save, retries the step on version conflicts
and performs the resulting actions only after the save succeeded, so a crash
can resend a message but never lose one.

# Usage

	r := runner.New(flows, session.NewManager(store), engine,
		runner.NewDispatcher(channel, gateway),
		runner.WithOperatorQueue(queue),
	)

	res, err := r.HandleInbound(ctx, "onboarding", "5511999990000", "Maria")
*/
package runner
