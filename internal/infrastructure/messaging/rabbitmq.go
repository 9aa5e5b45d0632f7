package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/hilthontt/chatrelay/internal/infrastructure/contracts"
	"github.com/hilthontt/chatrelay/internal/infrastructure/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	PresenceExchange   = "presence"
	DeadLetterExchange = "dlx"
)

// MessageHandler processes one delivery. A returned error dead-letters it.
type MessageHandler func(ctx context.Context, msg amqp.Delivery) error

type RabbitMQ struct {
	conn    *amqp.Connection
	Channel *amqp.Channel
	logger  logging.Logger

	publishMu sync.Mutex
}

func NewRabbitMQ(uri string, logger logging.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		Channel: ch,
		logger:  logger,
	}

	if err := rmq.setupExchangesAndQueues(); err != nil {
		rmq.Close()
		return nil, fmt.Errorf("failed to setup exchanges and queues: %w", err)
	}

	return rmq, nil
}

func (r *RabbitMQ) Close() {
	if r.Channel != nil {
		r.Channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}

// PublishMessage sends message to the presence exchange under routingKey.
func (r *RabbitMQ) PublishMessage(ctx context.Context, routingKey string, message contracts.AmqpMessage) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	return r.Channel.PublishWithContext(ctx,
		PresenceExchange, // exchange
		routingKey,       // routing key
		false,            // mandatory
		false,            // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
}

// ConsumeMessages starts delivering queueName to handler in a goroutine
// until ctx is done or the channel closes.
func (r *RabbitMQ) ConsumeMessages(ctx context.Context, queueName string, handler MessageHandler) error {
	if err := r.Channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := r.Channel.Consume(
		queueName, // queue
		"",        // consumer
		false,     // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				r.handle(ctx, queueName, msg, handler)
			}
		}
	}()

	return nil
}

func (r *RabbitMQ) handle(ctx context.Context, queueName string, msg amqp.Delivery, handler MessageHandler) {
	if err := handler(ctx, msg); err != nil {
		r.logger.Error(logging.RabbitMQ, logging.ExternalService, "failed to handle message", map[logging.ExtraKey]any{
			"Queue":              queueName,
			"RoutingKey":         msg.RoutingKey,
			logging.ErrorMessage: err.Error(),
		})
		if nackErr := msg.Nack(false, false); nackErr != nil {
			r.logger.Error(logging.RabbitMQ, logging.ExternalService, "failed to nack message", map[logging.ExtraKey]any{
				logging.ErrorMessage: nackErr.Error(),
			})
		}
		return
	}

	if ackErr := msg.Ack(false); ackErr != nil {
		r.logger.Error(logging.RabbitMQ, logging.ExternalService, "failed to ack message", map[logging.ExtraKey]any{
			logging.ErrorMessage: ackErr.Error(),
		})
	}
}

func (r *RabbitMQ) setupExchangesAndQueues() error {
	if err := r.Channel.ExchangeDeclare(
		DeadLetterExchange, // name
		"fanout",           // type
		true,               // durable
		false,              // auto-deleted
		false,              // internal
		false,              // no-wait
		nil,                // arguments
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", DeadLetterExchange, err)
	}

	dlq, err := r.Channel.QueueDeclare(DeadLetterQueue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", DeadLetterQueue, err)
	}
	if err := r.Channel.QueueBind(dlq.Name, "", DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", DeadLetterQueue, err)
	}

	if err := r.Channel.ExchangeDeclare(PresenceExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", PresenceExchange, err)
	}

	return r.declareAndBindQueue(PresenceQueue, contracts.PresenceRoutingKeys, PresenceExchange)
}

func (r *RabbitMQ) declareAndBindQueue(queueName string, messageTypes []string, exchange string) error {
	args := amqp.Table{
		"x-dead-letter-exchange": DeadLetterExchange,
	}

	q, err := r.Channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		args,      // arguments with DLX config
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	for _, msg := range messageTypes {
		if err := r.Channel.QueueBind(
			q.Name,   // queue name
			msg,      // routing key
			exchange, // exchange
			false,
			nil,
		); err != nil {
			return fmt.Errorf("failed to bind queue to %s: %w", queueName, err)
		}
	}

	return nil
}
