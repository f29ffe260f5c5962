package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// CacheInvalidator drops cached book projections.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context)
}

// Consumer listens for book registrations from any instance and drops the
// local book cache so the next read sees them.
type Consumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	serviceName string
	invalidator CacheInvalidator
	log         *zap.Logger
}

// NewConsumer connects and declares the exchange.
func NewConsumer(url, serviceName string, invalidator CacheInvalidator, log *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Consumer{
		conn:        conn,
		channel:     ch,
		serviceName: serviceName,
		invalidator: invalidator,
		log:         log,
	}, nil
}

// Start consumes until ctx is done or the channel closes. Each instance gets
// its own exclusive queue so every instance sees every registration.
func (c *Consumer) Start(ctx context.Context) error {
	queue, err := c.channel.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := c.channel.QueueBind(queue.Name, EventTypeBookRegistered, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue to %s: %w", EventTypeBookRegistered, err)
	}

	msgs, err := c.channel.Consume(
		queue.Name,
		c.serviceName, // consumer tag
		false,         // auto-ack
		true,          // exclusive
		false,         // no-local
		false,         // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.log.Info("Listening for events", zap.String("queue", queue.Name), zap.String("routing_key", EventTypeBookRegistered))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handleMessage(ctx, msg)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	switch msg.RoutingKey {
	case EventTypeBookRegistered:
		c.handleBookRegistered(ctx, msg)
	default:
		c.log.Warn("Unknown event type", zap.String("routing_key", msg.RoutingKey))
		msg.Nack(false, false)
	}
}

func (c *Consumer) handleBookRegistered(ctx context.Context, msg amqp.Delivery) {
	var event Event
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		c.log.Warn("Failed to unmarshal event", zap.String("routing_key", msg.RoutingKey), zap.Error(err))
		msg.Nack(false, false)
		return
	}

	var payload BookRegistered
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		c.log.Warn("Failed to unmarshal book_registered payload", zap.String("event_id", event.EventID), zap.Error(err))
		msg.Nack(false, false)
		return
	}

	invalidateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c.invalidator.InvalidateCache(invalidateCtx)

	c.log.Debug("Book cache invalidated by event",
		zap.String("event_id", event.EventID),
		zap.String("book_id", payload.BookID),
	)
	msg.Ack(false)
}

// Close closes the consumer connection
func (c *Consumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
