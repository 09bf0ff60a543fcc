package memory

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/aretw0/parley/pkg/domain"
)

// ErrInjected is returned by a Recorder while failures are queued with FailNext.
var ErrInjected = errors.New("injected delivery failure")

// Sent is one recorded outbound message.
type Sent struct {
	SessionKey string
	Content    domain.Content
}

// Transferred is one recorded handoff.
type Transferred struct {
	SessionKey string
	Handoff    domain.Handoff
}

// Recorder implements ports.Channel, ports.HandoffGateway and ports.OperatorQueue
// by recording every call. It is meant for tests and local runs.
type Recorder struct {
	mu        sync.Mutex
	sent      []Sent
	handoffs  []Transferred
	incidents []domain.Incident
	failures  int
	seq       int
	now       func() time.Time
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// FailNext makes the next n calls fail with ErrInjected.
func (r *Recorder) FailNext(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = n
}

func (r *Recorder) injected() error {
	if r.failures > 0 {
		r.failures--
		return ErrInjected
	}
	return nil
}

// Send records an outbound message.
func (r *Recorder) Send(ctx context.Context, sessionKey string, content domain.Content) (domain.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected(); err != nil {
		return domain.Receipt{}, err
	}
	r.seq++
	r.sent = append(r.sent, Sent{SessionKey: sessionKey, Content: content})
	return domain.Receipt{ID: "mem-" + strconv.Itoa(r.seq), DeliveredAt: r.now()}, nil
}

// Transfer records a handoff.
func (r *Recorder) Transfer(ctx context.Context, sessionKey string, handoff domain.Handoff) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected(); err != nil {
		return err
	}
	r.handoffs = append(r.handoffs, Transferred{SessionKey: sessionKey, Handoff: handoff})
	return nil
}

// Report records an operator incident.
func (r *Recorder) Report(ctx context.Context, incident domain.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incidents = append(r.incidents, incident)
	return nil
}

// Sent returns a copy of the recorded messages.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Texts returns the text of every recorded message, in order.
func (r *Recorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sent))
	for i, s := range r.sent {
		out[i] = s.Content.Text
	}
	return out
}

// Handoffs returns a copy of the recorded handoffs.
func (r *Recorder) Handoffs() []Transferred {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transferred(nil), r.handoffs...)
}

// Incidents returns a copy of the recorded incidents.
func (r *Recorder) Incidents() []domain.Incident {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Incident(nil), r.incidents...)
}

// Reset clears all recordings.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent, r.handoffs, r.incidents = nil, nil, nil
}
