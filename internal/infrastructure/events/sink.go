package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/hilthontt/chatrelay/internal/domain"
	"github.com/hilthontt/chatrelay/internal/infrastructure/logging"
	"github.com/hilthontt/chatrelay/internal/infrastructure/metrics"
)

// AsyncSink decouples the relay from slow sinks. Notify never blocks: when
// the buffer is full the event is dropped and counted.
type AsyncSink struct {
	next   domain.PresenceSink
	queue  chan queuedEvent
	logger logging.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type queuedEvent struct {
	ctx   context.Context
	event domain.PresenceEvent
}

func NewAsyncSink(next domain.PresenceSink, buffer int, logger logging.Logger) *AsyncSink {
	if buffer <= 0 {
		buffer = 1
	}

	s := &AsyncSink{
		next:   next,
		queue:  make(chan queuedEvent, buffer),
		logger: logger,
		done:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()

	return s
}

func (s *AsyncSink) Notify(ctx context.Context, event domain.PresenceEvent) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
	default:
		metrics.PresenceSinkDropped.Inc()
		s.logger.Debug(logging.Relay, logging.Presence, "presence event dropped", map[logging.ExtraKey]any{
			logging.ConnectionID: event.ConnectionID,
			logging.EventName:    event.Type,
		})
	}
}

// Close stops accepting events, delivers what is already buffered and waits
// for the worker until ctx is done.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("presence sink close: %w", ctx.Err())
	}
}

func (s *AsyncSink) run() {
	defer s.wg.Done()

	for {
		select {
		case q := <-s.queue:
			s.deliver(q)
		case <-s.done:
			for {
				select {
				case q := <-s.queue:
					s.deliver(q)
				default:
					return
				}
			}
		}
	}
}

func (s *AsyncSink) deliver(q queuedEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(logging.Relay, logging.Presence, "presence sink panicked", map[logging.ExtraKey]any{
				logging.EventName:    q.event.Type,
				logging.ErrorMessage: fmt.Sprint(r),
			})
		}
	}()

	s.next.Notify(q.ctx, q.event)
}

// MultiSink fans one event out to several sinks in order.
type MultiSink []domain.PresenceSink

func (m MultiSink) Notify(ctx context.Context, event domain.PresenceEvent) {
	for _, sink := range m {
		sink.Notify(ctx, event)
	}
}

// LogSink writes every presence transition to the structured log.
type LogSink struct {
	logger logging.Logger
}

func NewLogSink(logger logging.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, event domain.PresenceEvent) {
	s.logger.Info(logging.Relay, logging.Presence, string(event.Type), map[logging.ExtraKey]any{
		"PresenceId":         event.ID,
		logging.ConnectionID: event.ConnectionID,
		logging.RoomID:       event.RoomID,
		logging.UserID:       event.UserID,
		logging.MemberCount:  event.MemberCount,
	})
}
