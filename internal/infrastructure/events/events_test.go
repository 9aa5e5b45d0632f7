package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/hilthontt/chatrelay/internal/domain"
	"github.com/hilthontt/chatrelay/internal/infrastructure/contracts"
	"github.com/hilthontt/chatrelay/internal/infrastructure/logging"
	"github.com/hilthontt/chatrelay/internal/infrastructure/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingSink struct {
	mu     sync.Mutex
	events []domain.PresenceEvent
	block  chan struct{}
}

func (s *collectingSink) Notify(_ context.Context, ev domain.PresenceEvent) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *collectingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type fakePublisher struct {
	mu       sync.Mutex
	keys     []string
	messages []contracts.AmqpMessage
	err      error
}

func (p *fakePublisher) PublishMessage(_ context.Context, routingKey string, message contracts.AmqpMessage) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	p.messages = append(p.messages, message)
	return nil
}

type fakeAuditRepo struct {
	mu       sync.Mutex
	logs     []*domain.PresenceAuditLog
	err      error
	prunedAt []time.Time
}

func (r *fakeAuditRepo) Log(_ context.Context, log *domain.PresenceAuditLog) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return nil
}

func (r *fakeAuditRepo) GetByRoomID(context.Context, string, int) ([]domain.PresenceAuditLog, error) {
	return nil, nil
}

func (r *fakeAuditRepo) DeleteOlderThan(_ context.Context, before time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prunedAt = append(r.prunedAt, before)
	return nil
}

func (r *fakeAuditRepo) EnsureIndexes(context.Context) error { return nil }

func (r *fakeAuditRepo) pruneCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prunedAt)
}

type fakeConsumer struct {
	queue   string
	handler messaging.MessageHandler
}

func (c *fakeConsumer) ConsumeMessages(_ context.Context, queueName string, handler messaging.MessageHandler) error {
	c.queue = queueName
	c.handler = handler
	return nil
}

func TestAsyncSink_DeliversInOrder(t *testing.T) {
	next := &collectingSink{}
	sink := NewAsyncSink(next, 16, logging.NewNop())

	for i := 0; i < 10; i++ {
		sink.Notify(context.Background(), domain.NewPresenceEvent(domain.PresenceJoined, "c1", "room-1", i))
	}
	require.NoError(t, sink.Close(context.Background()))

	require.Equal(t, 10, next.count())
	for i, ev := range next.events {
		assert.Equal(t, i, ev.MemberCount)
	}
}

func TestAsyncSink_DropsWhenFull(t *testing.T) {
	next := &collectingSink{block: make(chan struct{})}
	sink := NewAsyncSink(next, 1, logging.NewNop())

	start := time.Now()
	for i := 0; i < 50; i++ {
		sink.Notify(context.Background(), domain.NewPresenceEvent(domain.PresenceConnected, "c1", "", 0))
	}
	assert.Less(t, time.Since(start), time.Second, "Notify must not block")

	close(next.block)
	require.NoError(t, sink.Close(context.Background()))

	assert.LessOrEqual(t, next.count(), 2)
	assert.GreaterOrEqual(t, next.count(), 1)
}

func TestAsyncSink_RecoversFromPanickingSink(t *testing.T) {
	calls := 0
	next := domain.PresenceSinkFunc(func(context.Context, domain.PresenceEvent) {
		calls++
		if calls == 1 {
			panic("boom")
		}
	})
	sink := NewAsyncSink(next, 4, logging.NewNop())

	sink.Notify(context.Background(), domain.NewPresenceEvent(domain.PresenceConnected, "c1", "", 0))
	sink.Notify(context.Background(), domain.NewPresenceEvent(domain.PresenceDisconnected, "c1", "", 0))
	require.NoError(t, sink.Close(context.Background()))

	assert.Equal(t, 2, calls)
}

func TestAsyncSink_IgnoresEventsAfterClose(t *testing.T) {
	next := &collectingSink{}
	sink := NewAsyncSink(next, 4, logging.NewNop())
	require.NoError(t, sink.Close(context.Background()))

	sink.Notify(context.Background(), domain.NewPresenceEvent(domain.PresenceConnected, "c1", "", 0))

	assert.Equal(t, 0, next.count())
	require.NoError(t, sink.Close(context.Background()))
}

func TestMultiSink(t *testing.T) {
	a, b := &collectingSink{}, &collectingSink{}
	MultiSink{a, NewLogSink(logging.NewNop()), b}.Notify(context.Background(), domain.NewPresenceEvent(domain.PresenceLeft, "c1", "room-1", 0))

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestPresencePublisher_Publish(t *testing.T) {
	pub := &fakePublisher{}
	publisher := NewPresencePublisher(pub, logging.NewNop())
	ev := domain.NewPresenceEvent(domain.PresenceJoined, "c1", "room-1", 3)

	require.NoError(t, publisher.Publish(context.Background(), ev))

	require.Len(t, pub.messages, 1)
	assert.Equal(t, contracts.EventPresenceJoined, pub.keys[0])
	assert.Equal(t, "c1", pub.messages[0].ConnectionID)

	var payload messaging.PresenceEventData
	require.NoError(t, json.Unmarshal(pub.messages[0].Data, &payload))
	assert.Equal(t, ev.ID, payload.Event.ID)
	assert.Equal(t, domain.RoomID("room-1"), payload.Event.RoomID)
	assert.Equal(t, 3, payload.Event.MemberCount)
}

func TestPresencePublisher_RejectsUnknownType(t *testing.T) {
	publisher := NewPresencePublisher(&fakePublisher{}, logging.NewNop())

	err := publisher.Publish(context.Background(), domain.PresenceEvent{ID: "x", Type: "teleported"})

	assert.Error(t, err)
}

func TestPresencePublisher_NotifySwallowsErrors(t *testing.T) {
	publisher := NewPresencePublisher(&fakePublisher{err: errors.New("broker down")}, logging.NewNop())

	assert.NotPanics(t, func() {
		publisher.Notify(context.Background(), domain.NewPresenceEvent(domain.PresenceConnected, "c1", "", 0))
	})
}

func TestPresenceConsumer_RoundTripFromPublisher(t *testing.T) {
	pub := &fakePublisher{}
	repo := &fakeAuditRepo{}
	consumer := &fakeConsumer{}
	presence := NewPresenceConsumer(consumer, repo, logging.NewNop())
	require.NoError(t, presence.Listen(context.Background()))
	assert.Equal(t, messaging.PresenceQueue, consumer.queue)

	ev := domain.NewPresenceEvent(domain.PresenceLeft, "c1", "room-1", 0)
	ev.UserID = "u1"
	require.NoError(t, NewPresencePublisher(pub, logging.NewNop()).Publish(context.Background(), ev))

	body, err := json.Marshal(pub.messages[0])
	require.NoError(t, err)
	require.NoError(t, consumer.handler(context.Background(), amqp.Delivery{Body: body, RoutingKey: pub.keys[0]}))

	require.Len(t, repo.logs, 1)
	log := repo.logs[0]
	assert.Equal(t, ev.ID, log.ID)
	assert.Equal(t, domain.PresenceLeft, log.EventType)
	assert.Equal(t, "room-1", log.RoomID)
	assert.Equal(t, "u1", log.UserID)
	assert.Equal(t, 0, log.Metadata["member_count"])
}

func TestPresenceConsumer_RejectsBadDeliveries(t *testing.T) {
	repo := &fakeAuditRepo{}
	presence := NewPresenceConsumer(&fakeConsumer{}, repo, logging.NewNop())

	bodies := [][]byte{
		[]byte(`not json`),
		[]byte(`{"connectionId":"c1","data":"bm90IGpzb24="}`),
		[]byte(`{"connectionId":"c1","data":"e30="}`),
	}
	for _, body := range bodies {
		assert.Error(t, presence.HandleDelivery(context.Background(), amqp.Delivery{Body: body}))
	}
	assert.Empty(t, repo.logs)
}

func TestPresenceConsumer_RepositoryFailure(t *testing.T) {
	repo := &fakeAuditRepo{err: errors.New("mongo down")}
	presence := NewPresenceConsumer(&fakeConsumer{}, repo, logging.NewNop())

	data, err := json.Marshal(messaging.PresenceEventData{Event: domain.NewPresenceEvent(domain.PresenceConnected, "c1", "", 0)})
	require.NoError(t, err)
	body, err := json.Marshal(contracts.AmqpMessage{ConnectionID: "c1", Data: data})
	require.NoError(t, err)

	assert.ErrorContains(t, presence.HandleDelivery(context.Background(), amqp.Delivery{Body: body}), "mongo down")
}

func TestPresenceConsumer_RunRetention(t *testing.T) {
	repo := &fakeAuditRepo{}
	presence := NewPresenceConsumer(&fakeConsumer{}, repo, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		presence.RunRetention(ctx, 5*time.Millisecond, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool { return repo.pruneCount() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.WithinDuration(t, time.Now().Add(-time.Hour), repo.prunedAt[0], time.Second)
}
