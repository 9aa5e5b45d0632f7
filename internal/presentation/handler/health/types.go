package health

// healthResponse represents the health status of the relay
type healthResponse struct {
	Status      string `json:"status"`      // ok or unhealthy
	Timestamp   string `json:"timestamp"`   // RFC3339
	Uptime      string `json:"uptime"`      // since process start
	Connections int    `json:"connections"` // live realtime connections
	Rooms       int    `json:"rooms"`       // rooms with at least one member
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
