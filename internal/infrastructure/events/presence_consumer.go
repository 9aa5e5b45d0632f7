package events

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/hilthontt/chatrelay/internal/domain"
	"github.com/hilthontt/chatrelay/internal/infrastructure/contracts"
	"github.com/hilthontt/chatrelay/internal/infrastructure/logging"
	"github.com/hilthontt/chatrelay/internal/infrastructure/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
)

type MessageConsumer interface {
	ConsumeMessages(ctx context.Context, queueName string, handler messaging.MessageHandler) error
}

// PresenceConsumer writes presence transitions from the broker into the
// audit log.
type PresenceConsumer struct {
	consumer MessageConsumer
	repo     domain.PresenceAuditRepository
	logger   logging.Logger
}

func NewPresenceConsumer(consumer MessageConsumer, repo domain.PresenceAuditRepository, logger logging.Logger) *PresenceConsumer {
	return &PresenceConsumer{
		consumer: consumer,
		repo:     repo,
		logger:   logger,
	}
}

func (c *PresenceConsumer) Listen(ctx context.Context) error {
	return c.consumer.ConsumeMessages(ctx, messaging.PresenceQueue, c.HandleDelivery)
}

func (c *PresenceConsumer) HandleDelivery(ctx context.Context, msg amqp.Delivery) error {
	var message contracts.AmqpMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	var payload messaging.PresenceEventData
	if err := json.Unmarshal(message.Data, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal presence event: %w", err)
	}
	if payload.Event.ID == "" || payload.Event.Type == "" {
		return fmt.Errorf("presence event is missing id or type")
	}

	if err := c.repo.Log(ctx, domain.NewPresenceAuditLog(payload.Event)); err != nil {
		return fmt.Errorf("failed to write presence audit log: %w", err)
	}

	c.logger.Debug(logging.Mongo, logging.Presence, "presence audit log written", map[logging.ExtraKey]any{
		logging.ConnectionID: payload.Event.ConnectionID,
		logging.EventName:    payload.Event.Type,
	})
	return nil
}

// RunRetention deletes audit entries older than maxAge every interval until
// ctx is done.
func (c *PresenceConsumer) RunRetention(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.repo.DeleteOlderThan(ctx, time.Now().Add(-maxAge)); err != nil {
				c.logger.Warn(logging.Mongo, logging.Presence, "presence audit retention failed", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
			}
		}
	}
}
