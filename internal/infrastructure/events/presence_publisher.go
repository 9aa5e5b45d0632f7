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
)

const publishTimeout = 5 * time.Second

// MessagePublisher is the part of the broker client the publisher needs.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, routingKey string, message contracts.AmqpMessage) error
}

// PresencePublisher forwards presence transitions to the broker. It is a
// PresenceSink; publish failures are logged and swallowed.
type PresencePublisher struct {
	publisher MessagePublisher
	logger    logging.Logger
}

func NewPresencePublisher(publisher MessagePublisher, logger logging.Logger) *PresencePublisher {
	return &PresencePublisher{
		publisher: publisher,
		logger:    logger,
	}
}

func (p *PresencePublisher) Publish(ctx context.Context, event domain.PresenceEvent) error {
	routingKey, ok := contracts.RoutingKey(event.Type)
	if !ok {
		return fmt.Errorf("no routing key for presence event %q", event.Type)
	}

	payload, err := json.Marshal(messaging.PresenceEventData{Event: event})
	if err != nil {
		return err
	}

	return p.publisher.PublishMessage(ctx, routingKey, contracts.AmqpMessage{
		ConnectionID: string(event.ConnectionID),
		Data:         payload,
	})
}

func (p *PresencePublisher) Notify(ctx context.Context, event domain.PresenceEvent) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.Publish(ctx, event); err != nil {
		p.logger.Warn(logging.RabbitMQ, logging.Presence, "failed to publish presence event", map[logging.ExtraKey]any{
			logging.ConnectionID: event.ConnectionID,
			logging.EventName:    event.Type,
			logging.ErrorMessage: err.Error(),
		})
	}
}
