package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/metrics"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/cenkalti/backoff/v4"
)

// ErrUndelivered marks an action that exhausted its delivery retries.
var ErrUndelivered = errors.New("action undelivered")

// RetryPolicy shapes the exponential backoff of outbound deliveries.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// DefaultRetryPolicy retries a failed delivery four times within a few seconds.
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	MaxRetries:      4,
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)
}

// Dispatcher performs engine actions through a Channel and a HandoffGateway,
// retrying each delivery with exponential backoff.
type Dispatcher struct {
	channel ports.Channel
	gateway ports.HandoffGateway
	policy  RetryPolicy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

var _ ports.ActionDispatcher = (*Dispatcher)(nil)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithRetryPolicy(p RetryPolicy) DispatcherOption {
	return func(d *Dispatcher) {
		d.policy = p
	}
}

func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(channel ports.Channel, gateway ports.HandoffGateway, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		channel: channel,
		gateway: gateway,
		policy:  DefaultRetryPolicy,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch performs one action. It returns an error wrapping ErrUndelivered
// once retries are exhausted.
func (d *Dispatcher) Dispatch(ctx context.Context, key string, action domain.Action) error {
	var op func() error
	switch action.Type {
	case domain.ActionSend, domain.ActionRepeat:
		if action.Content == nil {
			return fmt.Errorf("%s action on %s has no content", action.Type, action.NodeID)
		}
		op = func() error {
			_, err := d.channel.Send(ctx, key, *action.Content)
			return err
		}
	case domain.ActionHandoff:
		if action.Handoff == nil {
			return fmt.Errorf("handoff action on %s has no target", action.NodeID)
		}
		op = func() error {
			return d.gateway.Transfer(ctx, key, *action.Handoff)
		}
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}

	attempts := 0
	err := backoff.RetryNotify(op, d.policy.backOff(ctx), func(err error, wait time.Duration) {
		attempts++
		d.metrics.Delivery(action.Type, metrics.ResultRetried)
		d.logger.Debug("delivery failed, retrying",
			"session_key", key, "node_id", action.NodeID, "attempt", attempts, "wait", wait, "err", err)
	})
	if err != nil {
		d.metrics.Delivery(action.Type, metrics.ResultUndelivered)
		d.logger.Warn("action undelivered",
			"session_key", key, "node_id", action.NodeID, "type", action.Type, "err", err)
		return fmt.Errorf("%w: %s on %s: %w", ErrUndelivered, action.Type, action.NodeID, err)
	}
	d.metrics.Delivery(action.Type, metrics.ResultDelivered)
	return nil
}
