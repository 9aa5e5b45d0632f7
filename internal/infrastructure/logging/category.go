package logging

type Category string
type SubCategory string
type ExtraKey string

const (
	General         Category = "General"
	IO              Category = "IO"
	Internal        Category = "Internal"
	RabbitMQ        Category = "RabbitMQ"
	Mongo           Category = "Mongo"
	Validation      Category = "Validation"
	RequestResponse Category = "RequestResponse"
	Prometheus      Category = "Prometheus"
	WebSocket       Category = "WebSocket"
	Relay           Category = "Relay"
)

const (
	// General
	Startup         SubCategory = "Startup"
	Shutdown        SubCategory = "Shutdown"
	RateLimiting    SubCategory = "RateLimiting"
	ExternalService SubCategory = "ExternalService"

	// Relay
	Connect    SubCategory = "Connect"
	Disconnect SubCategory = "Disconnect"
	Join       SubCategory = "Join"
	Leave      SubCategory = "Leave"
	Typing     SubCategory = "Typing"
	Protocol   SubCategory = "Protocol"
	Delivery   SubCategory = "Delivery"
	Presence   SubCategory = "Presence"
)

const (
	AppName      ExtraKey = "AppName"
	LoggerName   ExtraKey = "Logger"
	ClientIp     ExtraKey = "ClientIp"
	HostIp       ExtraKey = "HostIp"
	Method       ExtraKey = "Method"
	StatusCode   ExtraKey = "StatusCode"
	BodySize     ExtraKey = "BodySize"
	Path         ExtraKey = "Path"
	Latency      ExtraKey = "Latency"
	ErrorMessage ExtraKey = "ErrorMessage"
	ConnectionID ExtraKey = "ConnectionId"
	RoomID       ExtraKey = "RoomId"
	UserID       ExtraKey = "UserId"
	MemberCount  ExtraKey = "MemberCount"
	EventName    ExtraKey = "Event"
)
