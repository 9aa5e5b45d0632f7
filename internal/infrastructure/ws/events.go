package ws

// Client to server.
const (
	JoinChatEvent  = "join-chat"
	LeaveChatEvent = "leave-chat"
	TypingEvent    = "typing"
)

// Server to client.
const (
	UserTypingEvent = "user-typing"
	ErrorEvent      = "error"
)

// Protocol error codes.
const (
	CodeMalformed      = "malformed"
	CodeUnknownEvent   = "unknown_event"
	CodeInvalidPayload = "invalid_payload"
	CodeUnsupported    = "unsupported_frame"
	CodeRateLimited    = "rate_limited"
)
