package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	out []published
	err error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.out = append(f.out, published{exchange, key, msg})
	return nil
}

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestPublisher(ch channel) *Publisher {
	p := NewPublisher(ch)
	p.clock = func() time.Time { return t0 }
	return p
}

func TestPublisher_Send(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)

	receipt, err := p.Send(context.Background(), "onboarding:5511", domain.Content{Text: "Olá!", Options: []string{"Sim"}})
	require.NoError(t, err)
	require.Len(t, ch.out, 1)

	got := ch.out[0]
	assert.Equal(t, string(DefaultExchange), got.exchange)
	assert.Equal(t, string(RoutingKeyOutbound), got.key)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, receipt.ID, got.msg.MessageId)
	assert.Equal(t, t0, receipt.DeliveredAt)
	assert.Equal(t, "onboarding:5511", got.msg.Headers["session_key"])

	var env struct {
		Type       MessageType    `json:"type"`
		SessionKey string         `json:"session_key"`
		Payload    domain.Content `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(got.msg.Body, &env))
	assert.Equal(t, MessageTypeOutbound, env.Type)
	assert.Equal(t, "Olá!", env.Payload.Text)
	assert.Equal(t, []string{"Sim"}, env.Payload.Options)
}

func TestPublisher_HandoffAndIncident(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)
	p.exchange = "custom"
	ctx := context.Background()

	require.NoError(t, p.Transfer(ctx, "f:u", domain.Handoff{Target: domain.Target{Kind: domain.TargetSector, ID: "vendas"}, Message: "Cliente Ana"}))
	require.NoError(t, p.Report(ctx, domain.Incident{SessionKey: "f:u", Reason: "edge missing"}))

	require.Len(t, ch.out, 2)
	assert.Equal(t, "custom", ch.out[0].exchange)
	assert.Equal(t, string(RoutingKeyHandoff), ch.out[0].key)
	assert.Equal(t, string(MessageTypeHandoff), ch.out[0].msg.Type)
	assert.Equal(t, string(RoutingKeyIncident), ch.out[1].key)
	assert.Contains(t, string(ch.out[1].msg.Body), "edge missing")
}

func TestPublisher_Error(t *testing.T) {
	boom := errors.New("channel closed")
	p := newTestPublisher(&fakeChannel{err: boom})

	_, err := p.Send(context.Background(), "f:u", domain.Content{Text: "x"})
	assert.ErrorIs(t, err, boom)
}
