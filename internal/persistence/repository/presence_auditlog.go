package repository

import (
	"context"
	"time"

	"github.com/hilthontt/chatrelay/internal/domain"
	"github.com/hilthontt/chatrelay/internal/persistence/db"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type presenceAuditLogRepository struct {
	db *mongo.Database
}

func NewPresenceAuditLogRepository(db *mongo.Database) domain.PresenceAuditRepository {
	return &presenceAuditLogRepository{
		db: db,
	}
}

func (r *presenceAuditLogRepository) collection() *mongo.Collection {
	return r.db.Collection(db.PresenceAuditLogsCollection)
}

func (r *presenceAuditLogRepository) Log(ctx context.Context, log *domain.PresenceAuditLog) error {
	_, err := r.collection().InsertOne(ctx, log)
	if mongo.IsDuplicateKeyError(err) {
		// Redelivered event; the document is already there.
		return nil
	}
	return err
}

func (r *presenceAuditLogRepository) GetByRoomID(ctx context.Context, roomID string, limit int) ([]domain.PresenceAuditLog, error) {
	filter := bson.M{"room_id": roomID}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	logs := make([]domain.PresenceAuditLog, 0)
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}

	return logs, nil
}

func (r *presenceAuditLogRepository) DeleteOlderThan(ctx context.Context, before time.Time) error {
	filter := bson.M{
		"timestamp": bson.M{
			"$lt": before,
		},
	}

	_, err := r.collection().DeleteMany(ctx, filter)
	return err
}

func (r *presenceAuditLogRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "room_id", Value: 1},
				{Key: "timestamp", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "connection_id", Value: 1},
				{Key: "timestamp", Value: -1},
			},
		},
		{
			// DeleteOlderThan scans by timestamp.
			Keys: bson.D{{Key: "timestamp", Value: 1}},
		},
	}

	_, err := r.collection().Indexes().CreateMany(ctx, indexes)
	return err
}
