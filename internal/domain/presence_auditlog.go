package domain

import (
	"context"
	"time"
)

// PresenceAuditLog is the durable form of a PresenceEvent written by the
// audit consumer. Membership itself is never restored from it.
type PresenceAuditLog struct {
	ID           string            `bson:"_id" json:"id"`
	EventType    PresenceEventType `bson:"event_type" json:"eventType"`
	ConnectionID string            `bson:"connection_id" json:"connectionId"`
	RoomID       string            `bson:"room_id,omitempty" json:"roomId,omitempty"`
	UserID       string            `bson:"user_id,omitempty" json:"userId,omitempty"`
	Timestamp    time.Time         `bson:"timestamp" json:"timestamp"`
	Metadata     map[string]any    `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

type PresenceAuditRepository interface {
	Log(ctx context.Context, log *PresenceAuditLog) error
	GetByRoomID(ctx context.Context, roomID string, limit int) ([]PresenceAuditLog, error)
	DeleteOlderThan(ctx context.Context, before time.Time) error
	EnsureIndexes(ctx context.Context) error
}

func NewPresenceAuditLog(event PresenceEvent) *PresenceAuditLog {
	return &PresenceAuditLog{
		ID:           event.ID,
		EventType:    event.Type,
		ConnectionID: string(event.ConnectionID),
		RoomID:       string(event.RoomID),
		UserID:       string(event.UserID),
		Timestamp:    event.Timestamp,
		Metadata: map[string]any{
			"member_count": event.MemberCount,
		},
	}
}
