package ws

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/hilthontt/chatrelay/internal/domain"
	"github.com/hilthontt/chatrelay/internal/infrastructure/validate"
)

const maxIdentifierLength = 128

var (
	validateRoomID         = validate.Identifier("roomId", maxIdentifierLength)
	validateConversationID = validate.Identifier("conversationId", maxIdentifierLength)
	validateUserID         = validate.Identifier("userId", maxIdentifierLength)
)

// Envelope is the frame shape in both directions: a named event and its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message is an outbound frame.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type UserTypingPayload struct {
	UserID   domain.UserID `json:"userId"`
	IsTyping bool          `json:"isTyping"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewUserTyping(ev domain.TypingEvent) *Message {
	return &Message{
		Event: UserTypingEvent,
		Data: UserTypingPayload{
			UserID:   ev.UserID,
			IsTyping: ev.IsTyping,
		},
	}
}

func NewProtocolErrorMessage(perr *ProtocolError) *Message {
	return &Message{
		Event: ErrorEvent,
		Data: ErrorPayload{
			Code:    perr.Code,
			Message: perr.Reason,
		},
	}
}

// Inbound is the closed set of client events.
type Inbound interface {
	EventName() string
	inbound()
}

type JoinChat struct {
	RoomID domain.RoomID
}

type LeaveChat struct {
	RoomID domain.RoomID
}

type Typing struct {
	domain.TypingEvent
}

func (JoinChat) EventName() string  { return JoinChatEvent }
func (LeaveChat) EventName() string { return LeaveChatEvent }
func (Typing) EventName() string    { return TypingEvent }

func (JoinChat) inbound()  {}
func (LeaveChat) inbound() {}
func (Typing) inbound()    {}

// ProtocolError marks a frame that was dropped. The connection stays open.
type ProtocolError struct {
	Code   string
	Event  string
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("protocol error (%s): %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("protocol error (%s) on %q: %s", e.Code, e.Event, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return domain.ErrProtocol
}

func newProtocolError(code, event, reason string) *ProtocolError {
	return &ProtocolError{Code: code, Event: event, Reason: reason}
}

type typingData struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       *bool  `json:"isTyping"`
}

// Decode validates a raw text frame and returns its variant.
func Decode(frame []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, newProtocolError(CodeMalformed, "", "frame is not a JSON envelope")
	}
	if env.Event == "" {
		return nil, newProtocolError(CodeMalformed, "", "missing event name")
	}

	switch env.Event {
	case JoinChatEvent:
		room, err := decodeRoomID(env)
		if err != nil {
			return nil, err
		}
		return JoinChat{RoomID: room}, nil

	case LeaveChatEvent:
		room, err := decodeRoomID(env)
		if err != nil {
			return nil, err
		}
		return LeaveChat{RoomID: room}, nil

	case TypingEvent:
		return decodeTyping(env)

	default:
		return nil, newProtocolError(CodeUnknownEvent, env.Event, "unknown event")
	}
}

func decodeRoomID(env Envelope) (domain.RoomID, error) {
	if len(env.Data) == 0 {
		return "", newProtocolError(CodeInvalidPayload, env.Event, "missing roomId")
	}

	var room string
	if err := json.Unmarshal(env.Data, &room); err != nil {
		return "", newProtocolError(CodeInvalidPayload, env.Event, "roomId must be a string")
	}
	if err := validateRoomID(room); err != nil {
		return "", newProtocolError(CodeInvalidPayload, env.Event, err.Error())
	}

	return domain.RoomID(room), nil
}

func decodeTyping(env Envelope) (Inbound, error) {
	if len(env.Data) == 0 {
		return nil, newProtocolError(CodeInvalidPayload, env.Event, "missing payload")
	}

	var data typingData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, newProtocolError(CodeInvalidPayload, env.Event, "payload must be {conversationId, userId, isTyping}")
	}
	if err := validateConversationID(data.ConversationID); err != nil {
		return nil, newProtocolError(CodeInvalidPayload, env.Event, err.Error())
	}
	if err := validateUserID(data.UserID); err != nil {
		return nil, newProtocolError(CodeInvalidPayload, env.Event, err.Error())
	}
	if data.IsTyping == nil {
		return nil, newProtocolError(CodeInvalidPayload, env.Event, "isTyping: this field is required")
	}

	return Typing{domain.TypingEvent{
		RoomID:   domain.RoomID(data.ConversationID),
		UserID:   domain.UserID(data.UserID),
		IsTyping: *data.IsTyping,
	}}, nil
}

// Encode serializes an outbound message.
func Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}
