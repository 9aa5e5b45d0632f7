package repository

import (
	"context"
	"testing"
	"time"

	"github.com/hilthontt/chatrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestPresenceAuditLogRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("log inserts document", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		repo := NewPresenceAuditLogRepository(mt.DB)

		ev := domain.NewPresenceEvent(domain.PresenceJoined, "c1", "room-1", 2)
		assert.NoError(mt, repo.Log(context.Background(), domain.NewPresenceAuditLog(ev)))
	})

	mt.Run("log ignores duplicate delivery", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))
		repo := NewPresenceAuditLogRepository(mt.DB)

		ev := domain.NewPresenceEvent(domain.PresenceJoined, "c1", "room-1", 2)
		assert.NoError(mt, repo.Log(context.Background(), domain.NewPresenceAuditLog(ev)))
	})

	mt.Run("log surfaces other errors", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "bad value",
		}))
		repo := NewPresenceAuditLogRepository(mt.DB)

		ev := domain.NewPresenceEvent(domain.PresenceLeft, "c1", "room-1", 0)
		assert.Error(mt, repo.Log(context.Background(), domain.NewPresenceAuditLog(ev)))
	})

	mt.Run("get by room id", func(mt *mtest.T) {
		ns := mt.DB.Name() + ".presence_audit_logs"
		ts := time.Now().UTC().Truncate(time.Millisecond)
		first := mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "e1"},
			{Key: "event_type", Value: "joined"},
			{Key: "connection_id", Value: "c1"},
			{Key: "room_id", Value: "room-1"},
			{Key: "timestamp", Value: ts},
		})
		last := mtest.CreateCursorResponse(0, ns, mtest.NextBatch)
		mt.AddMockResponses(first, last)

		repo := NewPresenceAuditLogRepository(mt.DB)
		logs, err := repo.GetByRoomID(context.Background(), "room-1", 10)

		require.NoError(mt, err)
		require.Len(mt, logs, 1)
		assert.Equal(mt, "e1", logs[0].ID)
		assert.Equal(mt, domain.PresenceJoined, logs[0].EventType)
		assert.Equal(mt, "room-1", logs[0].RoomID)
		assert.True(mt, ts.Equal(logs[0].Timestamp))
	})

	mt.Run("delete older than", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 3}})
		repo := NewPresenceAuditLogRepository(mt.DB)

		assert.NoError(mt, repo.DeleteOlderThan(context.Background(), time.Now().Add(-time.Hour)))
	})

	mt.Run("ensure indexes", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		repo := NewPresenceAuditLogRepository(mt.DB)

		assert.NoError(mt, repo.EnsureIndexes(context.Background()))
	})
}

func TestDuplicateKeyDetection(t *testing.T) {
	err := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000}}}
	assert.True(t, mongo.IsDuplicateKeyError(err))
}
