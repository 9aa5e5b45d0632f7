package realtime

import (
	"context"
	"math"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/chatrelay/internal/domain"
	"github.com/hilthontt/chatrelay/internal/infrastructure/configs"
	"github.com/hilthontt/chatrelay/internal/infrastructure/json"
	"github.com/hilthontt/chatrelay/internal/infrastructure/logging"
	"github.com/hilthontt/chatrelay/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/chatrelay/internal/infrastructure/ws"
	"github.com/hilthontt/chatrelay/internal/presentation/utils"
)

type Handler struct {
	relay          *ws.Relay
	allowedOrigins []string
	upgrader       websocket.Upgrader
	clientCfg      ws.ClientConfig
	upgrades       *ratelimiter.FixedWindow
	logger         logging.Logger
}

// NewHandler builds the websocket entry point. upgrades may be nil to accept
// every upgrade attempt.
func NewHandler(relay *ws.Relay, cfg configs.WebSocketConfig, allowedOrigins []string, upgrades *ratelimiter.FixedWindow, logger logging.Logger) *Handler {
	return &Handler{
		relay:          relay,
		allowedOrigins: allowedOrigins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		clientCfg: ws.ClientConfig{
			SendQueueSize:  cfg.SendQueueSize,
			MaxMessageSize: cfg.MaxMessageSize,
			WriteWait:      cfg.WriteWait,
			PongWait:       cfg.PongWait,
			PingPeriod:     cfg.PingPeriod,
		},
		upgrades: upgrades,
		logger:   logger,
	}
}

// ServeWS godoc
// @Summary      Open a realtime connection
// @Description  Upgrades to a websocket carrying join-chat, leave-chat and typing events. The member id
// @Description  from X-Member-Token (or the member_id cookie, for listed origins) is attached to the
// @Description  connection for logging; a new one is issued in a cookie when neither is present.
// @Tags         realtime
// @Param        X-Member-Token header string false "Member id"
// @Success      101 "Switching protocols"
// @Failure      403 "Origin not allowed"
// @Failure      429 {object} json.ErrorResponse "Too many upgrade attempts"
// @Security     MemberAuth
// @Router       /ws [get]
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.upgrades != nil {
		if ok, retry := h.upgrades.Allow(clientKey(r)); !ok {
			h.logger.Warn(logging.WebSocket, logging.RateLimiting, "upgrade rejected", map[logging.ExtraKey]any{
				logging.ClientIp: clientKey(r),
			})
			json.WriteRateLimitError(w, int(math.Ceil(retry.Seconds())))
			return
		}
	}

	header := http.Header{}
	memberID := r.Header.Get(utils.HeaderMemberToken)
	if trustsCookies(h.allowedOrigins, r) {
		memberID = utils.GetMemberIDFromRequest(r)
	}
	if memberID == "" {
		memberID = uuid.NewString()
		header.Add("Set-Cookie", utils.MemberIDCookie(memberID).String())
	}

	conn, err := h.upgrader.Upgrade(w, r, header)
	if err != nil {
		h.logger.Warn(logging.WebSocket, logging.Connect, "websocket upgrade failed", map[logging.ExtraKey]any{
			logging.ClientIp:     r.RemoteAddr,
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	client := ws.NewClient(conn, domain.UserID(memberID), h.clientCfg, h.logger)

	// The connection outlives the request.
	ctx := context.WithoutCancel(r.Context())

	if err := h.relay.OnConnect(ctx, client); err != nil {
		h.logger.Error(logging.WebSocket, logging.Connect, "failed to register connection", map[logging.ExtraKey]any{
			logging.ConnectionID: client.ID(),
			logging.ErrorMessage: err.Error(),
		})
		client.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump(ctx, h.relay)
}

// checkOrigin accepts listed origins and "*". With no list configured only
// same-host origins are accepted.
func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowed) == 0 {
			return sameHost(origin, r.Host)
		}
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

// trustsCookies reports whether the member_id cookie may identify the caller.
// Origins admitted only through "*" must present X-Member-Token instead.
func trustsCookies(allowed []string, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(allowed, origin) {
		return true
	}
	return len(allowed) == 0 && sameHost(origin, r.Host)
}

func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
