package ws

import (
	"context"
	"sync"

	"github.com/hilthontt/chatrelay/internal/domain"
	"github.com/hilthontt/chatrelay/internal/infrastructure/logging"
)

type fakePeer struct {
	id      domain.ConnectionID
	user    domain.UserID
	sendErr error

	mu       sync.Mutex
	received []*Message
	closed   bool
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: domain.ConnectionID(id), user: domain.UserID("user-" + id)}
}

func (p *fakePeer) ID() domain.ConnectionID { return p.id }
func (p *fakePeer) UserID() domain.UserID   { return p.user }

func (p *fakePeer) Send(msg *Message) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = append(p.received, msg)
	return nil
}

func (p *fakePeer) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *fakePeer) messages() []*Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Message, len(p.received))
	copy(out, p.received)
	return out
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.PresenceEvent
}

func (s *recordingSink) Notify(_ context.Context, ev domain.PresenceEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) types() []domain.PresenceEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PresenceEventType, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestRelay(opts ...RelayOption) *Relay {
	return NewRelay(logging.NewNop(), opts...)
}
