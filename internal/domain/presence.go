package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProtocol         = errors.New("protocol error")
	ErrConnectionExists = errors.New("connection already registered")
)

// ConnectionID identifies one live realtime transport session.
type ConnectionID string

// RoomID is a conversation identifier used to scope broadcasts.
type RoomID string

// UserID is the caller supplied user identifier carried by typing events.
type UserID string

// TypingEvent is broadcast to the other members of a room and then discarded.
type TypingEvent struct {
	RoomID   RoomID `json:"conversationId"`
	UserID   UserID `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type PresenceEventType string

const (
	PresenceConnected    PresenceEventType = "connected"
	PresenceDisconnected PresenceEventType = "disconnected"
	PresenceJoined       PresenceEventType = "joined"
	PresenceLeft         PresenceEventType = "left"
)

// PresenceEvent is the notification handed to the analytics sink.
type PresenceEvent struct {
	ID           string            `json:"id"`
	Type         PresenceEventType `json:"type"`
	ConnectionID ConnectionID      `json:"connectionId"`
	RoomID       RoomID            `json:"roomId,omitempty"`
	UserID       UserID            `json:"userId,omitempty"`
	MemberCount  int               `json:"memberCount"`
	Timestamp    time.Time         `json:"timestamp"`
}

func NewPresenceEvent(eventType PresenceEventType, conn ConnectionID, room RoomID, memberCount int) PresenceEvent {
	return PresenceEvent{
		ID:           uuid.NewString(),
		Type:         eventType,
		ConnectionID: conn,
		RoomID:       room,
		MemberCount:  memberCount,
		Timestamp:    time.Now().UTC(),
	}
}

// PresenceSink receives presence notifications. Implementations must not
// block the caller for long and must swallow their own failures.
type PresenceSink interface {
	Notify(ctx context.Context, event PresenceEvent)
}

// PresenceSinkFunc adapts a function to PresenceSink.
type PresenceSinkFunc func(ctx context.Context, event PresenceEvent)

func (f PresenceSinkFunc) Notify(ctx context.Context, event PresenceEvent) {
	f(ctx, event)
}
