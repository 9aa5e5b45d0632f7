package main

import (
	"context"
	"log"
	"time"

	"github.com/hilthontt/chatrelay/internal/domain"
	"github.com/hilthontt/chatrelay/internal/infrastructure/configs"
	"github.com/hilthontt/chatrelay/internal/infrastructure/events"
	"github.com/hilthontt/chatrelay/internal/infrastructure/logging"
	"github.com/hilthontt/chatrelay/internal/infrastructure/messaging"
	"github.com/hilthontt/chatrelay/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/chatrelay/internal/infrastructure/tracing"
	"github.com/hilthontt/chatrelay/internal/infrastructure/ws"
	"github.com/hilthontt/chatrelay/internal/persistence/db"
	"github.com/hilthontt/chatrelay/internal/persistence/repository"
	"github.com/hilthontt/chatrelay/internal/presentation/api"
	"github.com/hilthontt/chatrelay/internal/presentation/handler/health"
	"github.com/hilthontt/chatrelay/internal/presentation/handler/realtime"
	"github.com/hilthontt/chatrelay/internal/presentation/handler/rooms"
)

const (
	serviceName = "chatrelay"
)

// @title                       chatrelay
// @version                     1.0
// @description                 Realtime conversation relay: room membership, presence and typing indicators.
// @BasePath                    /
// @securityDefinitions.apikey  MemberAuth
// @in                          header
// @name                        X-Member-Token
func main() {
	configPath := configs.DetermineConfigPath()
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.NewLogger(&cfg.Logger)
	defer logger.Sync()

	logger.Info(logging.General, logging.Startup, "configuration loaded", map[logging.ExtraKey]any{
		"ConfigPath": configPath,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := tracing.InitTracer(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: serviceName,
		Environment: cfg.Tracing.Environment,
		Endpoint:    cfg.Tracing.Endpoint,
	})
	if err != nil {
		logger.Fatalf("Failed to initialize the tracer: %v", err)
	}
	defer shutdownTracer(context.Background())

	sinks := events.MultiSink{events.NewLogSink(logger)}
	var audit domain.PresenceAuditRepository

	if cfg.RabbitMQ.Enabled {
		rabbitmq, err := messaging.NewRabbitMQ(cfg.RabbitMQ.URI, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rabbitmq.Close()

		logger.Info(logging.RabbitMQ, logging.Startup, "presence publisher enabled", nil)
		sinks = append(sinks, events.NewPresencePublisher(rabbitmq, logger))

		if cfg.MongoDB.Enabled {
			mongoCfg := db.NewMongoConfig(cfg.MongoDB)
			client, err := db.NewMongoClient(ctx, mongoCfg, logger)
			if err != nil {
				logger.Fatalf("Failed to connect to MongoDB: %v", err)
			}
			defer db.DisconnectMongo(context.Background(), client)

			audit = repository.NewPresenceAuditLogRepository(db.GetDatabase(client, mongoCfg))
			if err := audit.EnsureIndexes(ctx); err != nil {
				logger.Warn(logging.Mongo, logging.Startup, "failed to ensure presence audit indexes", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
			}

			presenceConsumer := events.NewPresenceConsumer(rabbitmq, audit, logger)
			if err := presenceConsumer.Listen(ctx); err != nil {
				logger.Fatalf("Failed to start presence consumer: %v", err)
			}
			go presenceConsumer.RunRetention(ctx, cfg.MongoDB.RetentionInterval, cfg.MongoDB.Retention)
		}
	}

	presenceSink := events.NewAsyncSink(sinks, cfg.RabbitMQ.SinkBuffer, logger)

	eventLimiter := ratelimiter.New(ratelimiter.Options{
		MaxRatePerSecond: cfg.WebSocket.EventsPerSecond,
		MaxBurst:         cfg.WebSocket.EventBurst,
		CacheTTL:         cfg.RateLimiter.CacheTTL,
	})
	defer eventLimiter.Close()

	relay := ws.NewRelay(logger,
		ws.WithPresenceSink(presenceSink),
		ws.WithEventLimiter(eventLimiter),
	)

	upgrades := ratelimiter.NewFixedWindow(cfg.WebSocket.UpgradesPerWindow, cfg.WebSocket.UpgradeWindow)
	defer upgrades.Close()

	rl := ratelimiter.New(ratelimiter.Options{
		MaxRatePerSecond: cfg.RateLimiter.MaxRatePerSecond,
		MaxBurst:         cfg.RateLimiter.MaxBurst,
		CacheTTL:         cfg.RateLimiter.CacheTTL,
		SourceHeaderKey:  cfg.RateLimiter.SourceHeaderKey,
	})
	defer rl.Close()

	realtimeHandler := realtime.NewHandler(relay, cfg.WebSocket, cfg.HTTP.AllowedOrigins, upgrades, logger)
	roomHandler := rooms.NewHandler(relay.Registry(), audit, logger)
	healthHandler := health.NewHandler(relay.Registry())

	app := api.NewApplication(*cfg, relay, realtimeHandler, roomHandler, healthHandler, logger, rl)

	mux := app.Mount()
	runErr := app.Run(mux)

	sinkCtx, sinkCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer sinkCancel()
	if err := presenceSink.Close(sinkCtx); err != nil {
		logger.Warn(logging.Relay, logging.Shutdown, "presence sink did not drain", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}

	if runErr != nil {
		logger.Fatalf("Server stopped: %v", runErr)
	}
}
