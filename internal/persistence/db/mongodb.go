package db

import (
	"context"
	"fmt"
	"time"

	"github.com/hilthontt/chatrelay/internal/infrastructure/configs"
	"github.com/hilthontt/chatrelay/internal/infrastructure/logging"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	PresenceAuditLogsCollection = "presence_audit_logs"

	DefaultDatabase          = "chatrelay"
	DefaultConnectionTimeout = 20 * time.Second
)

type MongoConfig struct {
	URI               string
	Database          string
	ConnectionTimeout time.Duration
}

func NewMongoConfig(cfg configs.MongoDBConfig) *MongoConfig {
	mc := &MongoConfig{
		URI:               cfg.URI,
		Database:          cfg.Database,
		ConnectionTimeout: cfg.ConnectionTimeout,
	}
	if mc.Database == "" {
		mc.Database = DefaultDatabase
	}
	if mc.ConnectionTimeout <= 0 {
		mc.ConnectionTimeout = DefaultConnectionTimeout
	}
	return mc
}

func (cfg *MongoConfig) validate() error {
	if cfg == nil {
		return fmt.Errorf("mongodb config is required")
	}
	if cfg.URI == "" {
		return fmt.Errorf("mongodb URI is required")
	}
	if cfg.Database == "" {
		return fmt.Errorf("mongodb database is required")
	}
	return nil
}

func NewMongoClient(ctx context.Context, cfg *MongoConfig, logger logging.Logger) (*mongo.Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(cfg.ConnectionTimeout).
		SetConnectTimeout(cfg.ConnectionTimeout)

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Info(logging.Mongo, logging.Startup, "connected to mongodb", map[logging.ExtraKey]any{
		"Database": cfg.Database,
	})
	return client, nil
}

func GetDatabase(client *mongo.Client, cfg *MongoConfig) *mongo.Database {
	if client == nil || cfg == nil {
		return nil
	}
	return client.Database(cfg.Database)
}

func DisconnectMongo(ctx context.Context, client *mongo.Client) error {
	if client == nil {
		return nil
	}

	disconnectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Disconnect(disconnectCtx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}
