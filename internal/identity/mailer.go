package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// MessageKind names the account email a mail job asks for.
type MessageKind string

const (
	MessageVerifyEmail   MessageKind = "verify_email"
	MessagePasswordReset MessageKind = "password_reset"
)

// Message is one outbound account email job.
type Message struct {
	Kind        MessageKind `json:"kind"`
	Recipient   string      `json:"recipient"`
	AccountID   string      `json:"accountId,omitempty"`
	RequestedAt time.Time   `json:"requestedAt"`
}

// Mailer hands account emails to whatever delivers them.
type Mailer interface {
	Send(ctx context.Context, message Message) error
}

// LogMailer records mail jobs in the log instead of delivering them.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer constructs a LogMailer; a nil logger discards output.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

// Send logs the mail job.
func (m *LogMailer) Send(_ context.Context, message Message) error {
	m.logger.Info("mail job recorded",
		zap.String("kind", string(message.Kind)),
		zap.String("recipient", message.Recipient),
		zap.String("account_id", message.AccountID),
	)
	return nil
}

// AMQPChannel is the subset of *amqp.Channel the mailer publishes through.
type AMQPChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Close() error
}

// AMQPMailerConfig describes where mail jobs are published.
type AMQPMailerConfig struct {
	Channel    AMQPChannel
	Exchange   string
	RoutingKey string
	Clock      func() time.Time
}

// AMQPMailer publishes mail jobs as persistent JSON messages.
type AMQPMailer struct {
	channel    AMQPChannel
	exchange   string
	routingKey string
	clock      func() time.Time
	closers    []func() error
}

var errMissingAMQPChannel = errors.New("identity: amqp channel required")

// NewAMQPMailer validates the configuration. With the default exchange the
// routing key doubles as a durable queue name, so that queue is declared.
func NewAMQPMailer(cfg AMQPMailerConfig) (*AMQPMailer, error) {
	if cfg.Channel == nil {
		return nil, errMissingAMQPChannel
	}
	routingKey := strings.TrimSpace(cfg.RoutingKey)
	if routingKey == "" {
		return nil, fmt.Errorf("identity: amqp routing key required")
	}
	exchange := strings.TrimSpace(cfg.Exchange)
	if exchange == "" {
		if _, err := cfg.Channel.QueueDeclare(routingKey, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("identity: declare mail queue: %w", err)
		}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &AMQPMailer{
		channel:    cfg.Channel,
		exchange:   exchange,
		routingKey: routingKey,
		clock:      clock,
	}, nil
}

// DialAMQPMailer connects to the broker and returns a mailer owning the connection.
func DialAMQPMailer(url, exchange, routingKey string) (*AMQPMailer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	mailer, err := NewAMQPMailer(AMQPMailerConfig{Channel: ch, Exchange: exchange, RoutingKey: routingKey})
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	mailer.closers = append(mailer.closers, conn.Close)
	return mailer, nil
}

// Send publishes the mail job.
func (m *AMQPMailer) Send(ctx context.Context, message Message) error {
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return m.channel.PublishWithContext(
		ctx,
		m.exchange,
		m.routingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    m.clock().UTC(),
			DeliveryMode: amqp.Persistent,
			Type:         string(message.Kind),
		},
	)
}

// Close releases the channel and, when dialed by the mailer, the connection.
func (m *AMQPMailer) Close() error {
	err := m.channel.Close()
	for _, closer := range m.closers {
		if closeErr := closer(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
