package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hilthontt/chatrelay/internal/domain"
	"github.com/hilthontt/chatrelay/internal/infrastructure/configs"
	"github.com/hilthontt/chatrelay/internal/infrastructure/logging"
	"github.com/hilthontt/chatrelay/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/chatrelay/internal/infrastructure/ws"
	healthHandler "github.com/hilthontt/chatrelay/internal/presentation/handler/health"
	realtimeHandler "github.com/hilthontt/chatrelay/internal/presentation/handler/realtime"
	roomHandler "github.com/hilthontt/chatrelay/internal/presentation/handler/rooms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closablePeer struct {
	id     domain.ConnectionID
	closed atomic.Bool
}

func (p *closablePeer) ID() domain.ConnectionID { return p.id }
func (p *closablePeer) UserID() domain.UserID   { return "" }
func (p *closablePeer) Send(*ws.Message) error  { return nil }
func (p *closablePeer) Close()                  { p.closed.Store(true) }

func testConfig(t *testing.T) configs.Config {
	t.Helper()

	cfg, err := configs.Load("")
	require.NoError(t, err)
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.HTTP.AllowedOrigins = []string{"https://chat.example.com"}
	return *cfg
}

func newApp(t *testing.T, cfg configs.Config, burst int) (*Application, *ws.Relay) {
	t.Helper()

	logger := logging.NewNop()
	relay := ws.NewRelay(logger)
	limiter := ratelimiter.New(ratelimiter.Options{MaxRatePerSecond: 1, MaxBurst: burst, CacheTTL: time.Minute})
	t.Cleanup(func() { _ = limiter.Close() })

	app := NewApplication(
		cfg,
		relay,
		realtimeHandler.NewHandler(relay, cfg.WebSocket, cfg.HTTP.AllowedOrigins, nil, logger),
		roomHandler.NewHandler(relay.Registry(), nil, logger),
		healthHandler.NewHandler(relay.Registry()),
		logger,
		limiter,
	)
	return app, relay
}

func TestMount_Routes(t *testing.T) {
	app, _ := newApp(t, testConfig(t), 100)
	srv := httptest.NewServer(app.Mount())
	defer srv.Close()

	for _, path := range []string{"/api/health", "/healthz", "/ready", "/live", "/api/rooms/room-1/presence", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err, path)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Limit"), path)
	}

	resp, err := http.Get(srv.URL + "/api/rooms/room-1/presence/history")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMount_DrainingFailsReadinessOnly(t *testing.T) {
	app, _ := newApp(t, testConfig(t), 100)
	srv := httptest.NewServer(app.Mount())
	defer srv.Close()

	app.healthHandler.MarkUnhealthy()

	status := func(path string) int {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err, path)
		_ = resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusServiceUnavailable, status("/ready"))
	assert.Equal(t, http.StatusOK, status("/live"))
}

func TestMount_MetricsExposeRelayCollectors(t *testing.T) {
	app, _ := newApp(t, testConfig(t), 100)
	srv := httptest.NewServer(app.Mount())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "chatrelay_ws_connections_active")
}

func TestMount_WebSocketThroughMiddleware(t *testing.T) {
	app, relay := newApp(t, testConfig(t), 100)
	srv := httptest.NewServer(app.Mount())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	a, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer a.Close()
	b, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"event":"join-chat","data":"room-1"}`)))
	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte(`{"event":"join-chat","data":"room-1"}`)))
	require.Eventually(t, func() bool {
		return relay.Registry().MemberCount("room-1") == 2
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(srv.URL + "/api/rooms/room-1/presence")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.JSONEq(t, `{"roomId":"room-1","memberCount":2}`, string(body))

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"event":"typing","data":{"conversationId":"room-1","userId":"u1","isTyping":true}}`)))

	require.NoError(t, b.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := b.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"user-typing","data":{"userId":"u1","isTyping":true}}`, string(raw))
}

func TestMount_RateLimited(t *testing.T) {
	app, _ := newApp(t, testConfig(t), 1)
	srv := httptest.NewServer(app.Mount())
	defer srv.Close()

	get := func() *http.Response {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/health", nil)
		require.NoError(t, err)
		req.Header.Set("X-RateLimit-Key", "tester")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := get()
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get()
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
}

func TestMount_Cors(t *testing.T) {
	app, _ := newApp(t, testConfig(t), 100)
	srv := httptest.NewServer(app.Mount())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/rooms/room-1/presence", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://chat.example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://chat.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMount_CorsWildcardOmitsCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.HTTP.AllowedOrigins = []string{"*"}
	app, _ := newApp(t, cfg, 100)
	srv := httptest.NewServer(app.Mount())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/rooms/room-1/presence", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://anywhere.example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestServe_ShutdownClosesRelay(t *testing.T) {
	app, relay := newApp(t, testConfig(t), 100)
	peer := &closablePeer{id: "c1"}
	require.NoError(t, relay.OnConnect(context.Background(), peer))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, app.Mount()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after shutdown")
	}

	assert.True(t, peer.closed.Load())
	assert.Equal(t, 0, relay.Registry().ConnectionCount())
}
