package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hilthontt/chatrelay/internal/infrastructure/configs"
	"github.com/hilthontt/chatrelay/internal/infrastructure/logging"
	"github.com/hilthontt/chatrelay/internal/infrastructure/metrics"
	"github.com/hilthontt/chatrelay/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/chatrelay/internal/infrastructure/ws"
	healthHandler "github.com/hilthontt/chatrelay/internal/presentation/handler/health"
	realtimeHandler "github.com/hilthontt/chatrelay/internal/presentation/handler/realtime"
	roomHandler "github.com/hilthontt/chatrelay/internal/presentation/handler/rooms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Application struct {
	config          configs.Config
	relay           *ws.Relay
	realtimeHandler *realtimeHandler.Handler
	roomHandler     *roomHandler.Handler
	healthHandler   *healthHandler.Handler
	logger          logging.Logger
	ratelimiter     ratelimiter.Limiter
}

func NewApplication(
	config configs.Config,
	relay *ws.Relay,
	realtimeHandler *realtimeHandler.Handler,
	roomHandler *roomHandler.Handler,
	healthHandler *healthHandler.Handler,
	logger logging.Logger,
	ratelimiter ratelimiter.Limiter,
) *Application {
	return &Application{
		config:          config,
		relay:           relay,
		realtimeHandler: realtimeHandler,
		roomHandler:     roomHandler,
		healthHandler:   healthHandler,
		logger:          logger,
		ratelimiter:     ratelimiter,
	}
}

func (app *Application) Mount() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.loggerMiddleware)
	r.Use(app.prometheusMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(app.rateLimiterMiddleware)
	r.Use(app.enableCors)

	r.Get("/ws", app.realtimeHandler.ServeWS)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/api", func(r chi.Router) {
			r.Route("/rooms/{roomId}", func(r chi.Router) {
				r.Get("/presence", app.roomHandler.GetPresenceHandler)
				r.Get("/presence/history", app.roomHandler.GetPresenceHistoryHandler)
			})

			r.Get("/health", app.healthHandler.GetHealth)
		})

		r.Get("/healthz", app.healthHandler.GetHealth)
		r.Get("/ready", app.healthHandler.GetHealth)
		r.Get("/live", app.healthHandler.GetLive)
	})

	return otelhttp.NewHandler(r, "chatrelay",
		otelhttp.WithFilter(func(r *http.Request) bool { return r.URL.Path != "/metrics" }),
	)
}

// Run serves mux until SIGINT or SIGTERM, then drains HTTP and closes every
// realtime connection.
func (app *Application) Run(mux http.Handler) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Serve(ctx, mux)
}

// Serve is Run with the shutdown trigger supplied by the caller.
func (app *Application) Serve(ctx context.Context, mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.HTTP.Addr(),
		Handler:      mux,
		WriteTimeout: app.config.HTTP.WriteTimeout,
		ReadTimeout:  app.config.HTTP.ReadTimeout,
		IdleTimeout:  time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		app.logger.Info(logging.General, logging.Startup, "server has started", map[logging.ExtraKey]any{
			"addr": srv.Addr,
		})
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	app.logger.Info(logging.General, logging.Shutdown, "shutdown signal caught", nil)
	app.healthHandler.MarkUnhealthy()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.HTTP.ShutdownGrace)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)

	// Hijacked websocket connections are not tracked by Shutdown.
	app.relay.Close(shutdownCtx)

	if err != nil {
		return err
	}

	app.logger.Info(logging.General, logging.Shutdown, "server has stopped", map[logging.ExtraKey]any{
		"addr": srv.Addr,
	})
	return nil
}
