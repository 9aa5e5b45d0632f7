package rooms

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hilthontt/chatrelay/internal/domain"
	"github.com/hilthontt/chatrelay/internal/infrastructure/json"
	"github.com/hilthontt/chatrelay/internal/infrastructure/logging"
	"github.com/hilthontt/chatrelay/internal/infrastructure/validate"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

var validateRoomID = validate.Identifier("roomId", 128)

// MembershipReader is the read side of the connection registry.
type MembershipReader interface {
	MemberCount(room domain.RoomID) int
}

type Handler struct {
	membership MembershipReader
	audit      domain.PresenceAuditRepository
	logger     logging.Logger
}

// NewHandler builds the room presence handler. audit may be nil, in which
// case presence history is reported as unavailable.
func NewHandler(membership MembershipReader, audit domain.PresenceAuditRepository, logger logging.Logger) *Handler {
	return &Handler{
		membership: membership,
		audit:      audit,
		logger:     logger,
	}
}

// GetPresenceHandler godoc
// @Summary      Get room presence
// @Description  Returns the number of live connections currently joined to the room
// @Tags         rooms
// @Produce      json
// @Param        roomId path string true "Room ID (conversation id)"
// @Success      200 {object} presenceResponse "Presence snapshot"
// @Failure      400 {object} json.ErrorResponse "Invalid room id"
// @Router       /api/rooms/{roomId}/presence [get]
func (h *Handler) GetPresenceHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if err := validateRoomID(roomID); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	_ = json.Write(w, http.StatusOK, presenceResponse{
		RoomID:      domain.RoomID(roomID),
		MemberCount: h.membership.MemberCount(domain.RoomID(roomID)),
	})
}

// GetPresenceHistoryHandler godoc
// @Summary      Get room presence history
// @Description  Returns the newest presence audit entries for the room, newest first
// @Tags         rooms
// @Produce      json
// @Param        roomId path string true "Room ID (conversation id)"
// @Param        limit query int false "Maximum entries (1-500)" default(50)
// @Success      200 {object} presenceHistoryResponse "Presence history"
// @Failure      400 {object} json.ErrorResponse "Invalid room id or limit"
// @Failure      500 {object} json.ErrorResponse "Internal server error"
// @Failure      503 {object} json.ErrorResponse "Audit trail not enabled"
// @Router       /api/rooms/{roomId}/presence/history [get]
func (h *Handler) GetPresenceHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		json.WriteError(w, http.StatusServiceUnavailable, "Presence history is not enabled")
		return
	}

	roomID := chi.URLParam(r, "roomId")
	if err := validateRoomID(roomID); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			json.WriteBadRequestError(w, "limit must be between 1 and "+strconv.Itoa(maxHistoryLimit))
			return
		}
		limit = n
	}

	entries, err := h.audit.GetByRoomID(r.Context(), roomID, limit)
	if err != nil {
		h.logger.Error(logging.Mongo, logging.Presence, "failed to read presence history", map[logging.ExtraKey]any{
			logging.RoomID:       roomID,
			logging.ErrorMessage: err.Error(),
		})
		json.WriteInternalError(w)
		return
	}

	_ = json.Write(w, http.StatusOK, presenceHistoryResponse{
		RoomID:  domain.RoomID(roomID),
		Entries: entries,
	})
}
