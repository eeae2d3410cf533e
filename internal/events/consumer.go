package events

import (
	"context"
	"fmt"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/db"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	notificationsQueue = "library.notifications"
	prefetchCount      = 10
)

// OverdueHandler records the notification for an overdue loan
type OverdueHandler interface {
	NotifyOverdue(ctx context.Context, loan db.Loan) error
}

// Consumer turns loan.overdue events into notifications
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	handler OverdueHandler
	log     *zap.Logger
}

// NewConsumer declares and binds the notifications queue
func NewConsumer(url string, handler OverdueHandler, log *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	closeAll := func() {
		channel.Close()
		conn.Close()
	}

	if err := declareExchange(channel); err != nil {
		closeAll()
		return nil, err
	}

	if _, err := channel.QueueDeclare(
		notificationsQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := channel.QueueBind(notificationsQueue, EventTypeLoanOverdue, exchangeName, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	if err := channel.Qos(prefetchCount, 0, false); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	return &Consumer{conn: conn, channel: channel, handler: handler, log: log}, nil
}

// Run consumes until ctx is cancelled or the channel closes
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx, notificationsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.log.Info("Consuming events", zap.String("queue", notificationsQueue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.dispatch(ctx, d)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	switch decision := c.handle(ctx, d.Body, d.Redelivered); decision {
	case ack:
		if err := d.Ack(false); err != nil {
			c.log.Error("Failed to ack delivery", zap.String("message_id", d.MessageId), zap.Error(err))
		}
	default:
		if err := d.Nack(false, decision == requeue); err != nil {
			c.log.Error("Failed to nack delivery", zap.String("message_id", d.MessageId), zap.Error(err))
		}
	}
}

type verdict int

const (
	ack verdict = iota
	requeue
	drop
)

// handle decides what happens to one delivery. Malformed bodies are
// dropped; handler failures are retried once through a requeue.
func (c *Consumer) handle(ctx context.Context, body []byte, redelivered bool) verdict {
	loan, err := decodeOverdue(body)
	if err != nil {
		c.log.Warn("Dropping malformed event", zap.Error(err))
		return drop
	}

	if err := c.handler.NotifyOverdue(ctx, loan); err != nil {
		c.log.Error("Failed to handle overdue event",
			zap.String("loan_id", loan.ID.String()),
			zap.Bool("redelivered", redelivered),
			zap.Error(err),
		)
		if redelivered {
			return drop
		}
		return requeue
	}
	return ack
}

// IsHealthy checks if the consumer connection is healthy
func (c *Consumer) IsHealthy() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// Close closes the consumer connection
func (c *Consumer) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.log.Error("Failed to close channel", zap.Error(err))
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
