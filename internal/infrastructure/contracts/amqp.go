package contracts

import "github.com/hilthontt/chatrelay/internal/domain"

// AmqpMessage is the message structure for AMQP.
type AmqpMessage struct {
	ConnectionID string `json:"connectionId"`
	Data         []byte `json:"data"`
}

// Routing keys, one per presence transition.
const (
	EventPresenceConnected    = "presence.connected"
	EventPresenceDisconnected = "presence.disconnected"
	EventPresenceJoined       = "presence.joined"
	EventPresenceLeft         = "presence.left"
)

// RoutingKey maps a presence transition to its routing key.
func RoutingKey(t domain.PresenceEventType) (string, bool) {
	switch t {
	case domain.PresenceConnected:
		return EventPresenceConnected, true
	case domain.PresenceDisconnected:
		return EventPresenceDisconnected, true
	case domain.PresenceJoined:
		return EventPresenceJoined, true
	case domain.PresenceLeft:
		return EventPresenceLeft, true
	default:
		return "", false
	}
}

// PresenceRoutingKeys lists every key the presence queue is bound to.
var PresenceRoutingKeys = []string{
	EventPresenceConnected,
	EventPresenceDisconnected,
	EventPresenceJoined,
	EventPresenceLeft,
}
