package health

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hilthontt/chatrelay/internal/infrastructure/json"
)

// Stats is the live relay state reported alongside health.
type Stats interface {
	ConnectionCount() int
	RoomCount() int
}

type Handler struct {
	stats     Stats
	startTime time.Time
	healthy   atomic.Bool
}

func NewHandler(stats Stats) *Handler {
	h := &Handler{
		stats:     stats,
		startTime: time.Now(),
	}
	h.healthy.Store(true)
	return h
}

// MarkUnhealthy makes readiness fail, e.g. while the server drains.
// Liveness is unaffected.
func (h *Handler) MarkUnhealthy() {
	h.healthy.Store(false)
}

// GetHealth godoc
// @Summary      Readiness and relay statistics
// @Description  Reports uptime and live connection/room counts; returns 503 once the server starts draining
// @Tags         health
// @Produce      json
// @Success      200 {object} healthResponse "Ready"
// @Failure      503 {object} healthResponse "Draining"
// @Router       /ready [get]
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Connections: h.stats.ConnectionCount(),
		Rooms:       h.stats.RoomCount(),
	}

	if !h.healthy.Load() {
		resp.Status = "unhealthy"
		_ = json.Write(w, http.StatusServiceUnavailable, resp)
		return
	}

	_ = json.Write(w, http.StatusOK, resp)
}

// GetLive godoc
// @Summary      Liveness check
// @Description  Returns 200 while the process is serving requests, including during shutdown drain
// @Tags         health
// @Produce      json
// @Success      200 {object} liveResponse "Alive"
// @Router       /live [get]
func (h *Handler) GetLive(w http.ResponseWriter, r *http.Request) {
	_ = json.Write(w, http.StatusOK, liveResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
