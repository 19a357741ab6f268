package identity

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeChannel struct {
	declared  []string
	published []amqp.Publishing
	keys      []string
	closed    bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.keys = append(c.keys, exchange+"/"+key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.declared = append(c.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestAMQPMailerPublishesPersistentJSON(t *testing.T) {
	channel := &fakeChannel{}
	requestedAt := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	mailer, err := NewAMQPMailer(AMQPMailerConfig{
		Channel:    channel,
		RoutingKey: "mail.outbound",
		Clock:      func() time.Time { return requestedAt },
	})
	require.NoError(t, err)
	require.Equal(t, []string{"mail.outbound"}, channel.declared)

	err = mailer.Send(context.Background(), Message{
		Kind:        MessagePasswordReset,
		Recipient:   "user@example.com",
		AccountID:   "uid-1",
		RequestedAt: requestedAt,
	})
	require.NoError(t, err)

	require.Len(t, channel.published, 1)
	published := channel.published[0]
	require.Equal(t, "/mail.outbound", channel.keys[0])
	require.Equal(t, amqp.Persistent, published.DeliveryMode)
	require.Equal(t, "application/json", published.ContentType)
	require.Equal(t, string(MessagePasswordReset), published.Type)

	var decoded Message
	require.NoError(t, json.Unmarshal(published.Body, &decoded))
	require.Equal(t, "user@example.com", decoded.Recipient)
	require.Equal(t, "uid-1", decoded.AccountID)

	require.NoError(t, mailer.Close())
	require.True(t, channel.closed)
}

func TestAMQPMailerSkipsQueueDeclareForNamedExchange(t *testing.T) {
	channel := &fakeChannel{}
	_, err := NewAMQPMailer(AMQPMailerConfig{
		Channel:    channel,
		Exchange:   "mail",
		RoutingKey: "outbound",
	})
	require.NoError(t, err)
	require.Empty(t, channel.declared)
}

func TestNewAMQPMailerValidatesConfig(t *testing.T) {
	_, err := NewAMQPMailer(AMQPMailerConfig{RoutingKey: "mail.outbound"})
	require.ErrorIs(t, err, errMissingAMQPChannel)

	_, err = NewAMQPMailer(AMQPMailerConfig{Channel: &fakeChannel{}, RoutingKey: " "})
	require.Error(t, err)
}

func TestLogMailerRecordsJob(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	mailer := NewLogMailer(zap.New(core))

	require.NoError(t, mailer.Send(context.Background(), Message{
		Kind:      MessageVerifyEmail,
		Recipient: "user@example.com",
		AccountID: "uid-1",
	}))

	entries := logs.FilterMessage("mail job recorded").All()
	require.Len(t, entries, 1)
	require.Equal(t, "verify_email", entries[0].ContextMap()["kind"])
}
