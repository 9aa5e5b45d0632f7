package messaging

import "github.com/hilthontt/chatrelay/internal/domain"

const (
	PresenceQueue   = "presence_audit"
	DeadLetterQueue = "dead_letter_queue"
)

type PresenceEventData struct {
	Event domain.PresenceEvent `json:"event"`
}
