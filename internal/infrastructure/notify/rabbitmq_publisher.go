package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/procurement/backend/internal/domain/shared"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const defaultRoutingKey = "order.status"

// ErrPublishNotConfirmed is returned when the broker nacks a message
var ErrPublishNotConfirmed = errors.New("message published but not confirmed")

// RabbitMQConfig configures a RabbitMQPublisher
type RabbitMQConfig struct {
	URL          string
	Exchange     string
	ExchangeType string
	// RoutingKey is the prefix; the lowercased new status is appended,
	// e.g. order.status.shipped
	RoutingKey     string
	ConfirmTimeout time.Duration
}

type publishChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher publishes lifecycle messages to a topic exchange on a
// channel in confirm mode. Publishes are serialized so that each publish
// waits for its own confirmation.
type RabbitMQPublisher struct {
	conn       *amqp.Connection
	ch         publishChannel
	confirms   <-chan amqp.Confirmation
	exchange   string
	routingKey string
	timeout    time.Duration
	logger     *zap.Logger

	mu  sync.Mutex
	tag uint64 // delivery tag of the last publish
}

// NewRabbitMQPublisher dials the broker, declares the exchange and puts the
// channel into confirm mode
func NewRabbitMQPublisher(cfg RabbitMQConfig, logger *zap.Logger) (*RabbitMQPublisher, error) {
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = amqp.ExchangeTopic
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel could not be put into confirm mode: %w", err)
	}
	err = ch.ExchangeDeclare(
		cfg.Exchange,     // name
		cfg.ExchangeType, // type
		true,             // durable
		false,            // auto-deleted
		false,            // internal
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	p := newRabbitMQPublisher(ch, confirms, cfg, logger)
	p.conn = conn
	logger.Info("RabbitMQ notifier connected", zap.String("exchange", cfg.Exchange))
	return p, nil
}

func newRabbitMQPublisher(ch publishChannel, confirms <-chan amqp.Confirmation, cfg RabbitMQConfig, logger *zap.Logger) *RabbitMQPublisher {
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = defaultRoutingKey
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 5 * time.Second
	}
	return &RabbitMQPublisher{
		ch:         ch,
		confirms:   confirms,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		timeout:    cfg.ConfirmTimeout,
		logger:     logger.Named("rabbitmq"),
	}
}

// EventTypes implements shared.EventHandler
func (p *RabbitMQPublisher) EventTypes() []string { return lifecycleEvents }

// Handle implements shared.EventHandler
func (p *RabbitMQPublisher) Handle(ctx context.Context, e shared.DomainEvent) error {
	msg, err := messageFrom(e)
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	key := p.routingKey + "." + strings.ToLower(msg.NewStatus)

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.Publish(p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.EventID.String(),
		Type:         msg.EventType,
		Timestamp:    msg.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.tag++

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	for {
		select {
		case confirm, ok := <-p.confirms:
			if !ok {
				return errors.New("channel closed before confirmation")
			}
			// late confirmation of an abandoned publish
			if confirm.DeliveryTag < p.tag {
				continue
			}
			if !confirm.Ack {
				return ErrPublishNotConfirmed
			}
			p.logger.Debug("Message published and confirmed",
				zap.String("routing_key", key),
				zap.Uint64("delivery_tag", confirm.DeliveryTag))
			return nil
		case <-timer.C:
			return errors.New("publish confirmation timeout")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close closes the channel and the connection
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.Close()
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}

var _ shared.EventHandler = (*RabbitMQPublisher)(nil)
