package runtime

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/domain"
)

// stepper carries the working state of a single Step invocation.
type stepper struct {
	engine  *Engine
	ctx     context.Context
	graph   *domain.FlowGraph
	session *domain.Session
	now     time.Time
	logger  *slog.Logger
	actions []domain.Action
	steps   int
}

func (st *stepper) onReply(text string) {
	s := st.session
	if !s.Started() {
		st.start()
		return
	}
	if s.Status != domain.StatusWaitingForInput {
		st.logger.Debug("reply ignored", "status", s.Status, "node_id", s.CurrentNodeID)
		return
	}

	in := s.ExpectedInput
	if in == nil || in.NodeID != s.CurrentNodeID {
		st.fail(&IntegrityError{NodeID: s.CurrentNodeID, Reason: "waiting session has no matching expected input"})
		return
	}

	var handle string
	switch in.Kind {
	case domain.InputFreeText:
		answer := strings.TrimSpace(text)
		if answer == "" {
			st.repeat()
			return
		}
		s.Variables[in.VariableName] = answer
		handle = domain.HandleDefault
	case domain.InputChoice:
		i, ok := matchChoice(text, in.Options)
		if !ok {
			st.repeat()
			return
		}
		handle = in.HandlePrefix + strconv.Itoa(i)
	default:
		st.fail(&IntegrityError{NodeID: s.CurrentNodeID, Reason: "unknown expected input kind " + strconv.Quote(string(in.Kind))})
		return
	}

	s.ExpectedInput = nil
	s.Status = domain.StatusRunning
	s.LastActivityAt = st.now
	st.follow(handle)
}

func (st *stepper) onTick() {
	s := st.session
	if s.Status != domain.StatusSleeping {
		return
	}
	if s.WakeAt == nil || st.now.Before(*s.WakeAt) {
		return
	}
	st.wake()
}

func (st *stepper) onResume() {
	s := st.session
	switch {
	case !s.Started():
		st.start()
	case s.Status == domain.StatusSleeping:
		st.logger.Info("sleeping session resumed early", "node_id", s.CurrentNodeID)
		st.wake()
	default:
		st.logger.Debug("resume ignored", "status", s.Status, "node_id", s.CurrentNodeID)
	}
}

func (st *stepper) wake() {
	s := st.session
	s.WakeAt = nil
	s.Status = domain.StatusRunning
	s.LastActivityAt = st.now
	st.follow(domain.HandleDefault)
}

func (st *stepper) start() {
	s := st.session
	s.Status = domain.StatusRunning
	s.LastActivityAt = st.now
	if st.enter(st.graph.Entry) {
		st.follow(domain.HandleDefault)
	}
}

func (st *stepper) cancel(reason string) {
	s := st.session
	if reason == "" {
		reason = "cancelled"
	}
	s.Status = domain.StatusEnded
	s.Reason = reason
	s.WakeAt = nil
	s.ExpectedInput = nil
	s.LastActivityAt = st.now
	st.logger.Info("session cancelled", "reason", reason)
	st.terminal(s.CurrentNodeID, "")
}

// follow walks edges from the current node through handle until a node suspends.
func (st *stepper) follow(handle string) {
	from := st.session.CurrentNodeID
	for {
		edge, err := st.graph.Route(from, handle)
		if err != nil {
			st.fail(&IntegrityError{NodeID: from, Reason: "missing edge for handle " + strconv.Quote(handle), Err: err})
			return
		}
		if !st.enter(edge.Target) {
			return
		}
		from, handle = edge.Target, domain.HandleDefault
	}
}

// enter moves the session onto a node and dispatches on its variant.
// It reports whether traversal continues along the node's default exit.
func (st *stepper) enter(nodeID string) bool {
	if st.steps >= st.engine.maxSteps {
		// A runaway cycle's output never reaches the user.
		st.actions = nil
		st.fail(stepCapError(nodeID, st.steps))
		return false
	}
	st.steps++

	node, err := st.graph.Node(nodeID)
	if err != nil {
		st.fail(&IntegrityError{NodeID: nodeID, Reason: "edge targets a missing node", Err: err})
		return false
	}

	s := st.session
	s.CurrentNodeID = nodeID
	s.History = append(s.History, nodeID)
	if len(s.History) > domain.MaxHistory {
		s.History = s.History[len(s.History)-domain.MaxHistory:]
	}
	st.engine.emit(st.ctx, st.engine.hooks.OnNodeEnter, st.nodeEvent(node))

	switch b := node.Body.(type) {
	case domain.Message, domain.Media:
		st.send(domain.ActionSend, node)
		return true
	case domain.Question:
		st.send(domain.ActionSend, node)
		st.wait(&domain.ExpectedInput{
			Kind:         domain.InputFreeText,
			NodeID:       nodeID,
			VariableName: b.VariableName,
		})
	case domain.Menu, domain.QuickReplies, domain.InteractiveButtons:
		content := st.send(domain.ActionSend, node)
		_, prefix, _ := node.Choices()
		st.wait(&domain.ExpectedInput{
			Kind:         domain.InputChoice,
			NodeID:       nodeID,
			Options:      append([]string(nil), content.Options...),
			HandlePrefix: prefix,
		})
	case domain.Delay:
		wake := st.now.Add(b.Duration)
		s.Status = domain.StatusSleeping
		s.WakeAt = &wake
		st.engine.emit(st.ctx, st.engine.hooks.OnSuspend, st.nodeEvent(node))
	case domain.Transfer:
		msg, warnings := st.render(b.HandoffMessage)
		st.actions = append(st.actions, domain.Action{
			Type:     domain.ActionHandoff,
			NodeID:   nodeID,
			Handoff:  &domain.Handoff{Target: b.Target, Message: msg},
			Warnings: warnings,
		})
		s.Status = domain.StatusHandedOff
		st.terminal(nodeID, node.Kind())
	case domain.End:
		if b.FinalMessage != "" {
			st.send(domain.ActionSend, node)
		}
		s.Status = domain.StatusEnded
		st.terminal(nodeID, node.Kind())
	default:
		st.fail(&IntegrityError{NodeID: nodeID, Reason: "node has no known body"})
	}
	return false
}

func (st *stepper) wait(in *domain.ExpectedInput) {
	s := st.session
	s.Status = domain.StatusWaitingForInput
	s.ExpectedInput = in
	node := st.graph.Nodes[in.NodeID]
	st.engine.emit(st.ctx, st.engine.hooks.OnSuspend, st.nodeEvent(node))
}

// repeat re-emits the pending prompt without advancing.
func (st *stepper) repeat() {
	s := st.session
	node, err := st.graph.Node(s.CurrentNodeID)
	if err != nil {
		st.fail(&IntegrityError{NodeID: s.CurrentNodeID, Reason: "waiting on a missing node", Err: err})
		return
	}
	s.LastActivityAt = st.now
	st.send(domain.ActionRepeat, node)
	st.logger.Debug("reply did not match, re-prompting", "node_id", node.ID)
}

// fail moves the session to errored. Actions gathered earlier in the step are
// kept and still returned.
func (st *stepper) fail(err *IntegrityError) {
	s := st.session
	s.Status = domain.StatusErrored
	s.Reason = err.Error()
	s.WakeAt = nil
	s.ExpectedInput = nil
	s.LastActivityAt = st.now
	st.logger.Error("session errored", "node_id", err.NodeID, "error", err)
	st.terminal(err.NodeID, "")
}

func (st *stepper) terminal(nodeID string, kind domain.NodeKind) {
	ev := &domain.NodeEvent{
		Timestamp:  st.now,
		SessionKey: st.session.Key,
		NodeID:     nodeID,
		NodeKind:   kind,
		Status:     st.session.Status,
	}
	st.engine.emit(st.ctx, st.engine.hooks.OnTerminal, ev)
}

func (st *stepper) nodeEvent(n domain.Node) *domain.NodeEvent {
	return &domain.NodeEvent{
		Timestamp:  st.now,
		SessionKey: st.session.Key,
		NodeID:     n.ID,
		NodeKind:   n.Kind(),
		Status:     st.session.Status,
	}
}

// matchChoice resolves a reply against offered labels: case-insensitive label
// equality first, then a 1-based index.
func matchChoice(text string, labels []string) (int, bool) {
	reply := strings.TrimSpace(text)
	if reply == "" {
		return 0, false
	}
	for i, l := range labels {
		if strings.EqualFold(reply, strings.TrimSpace(l)) {
			return i, true
		}
	}
	if n, err := strconv.Atoi(reply); err == nil && n >= 1 && n <= len(labels) {
		return n - 1, true
	}
	return 0, false
}
