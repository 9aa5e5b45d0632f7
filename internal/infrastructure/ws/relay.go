package ws

import (
	"context"
	"errors"

	"github.com/hilthontt/chatrelay/internal/domain"
	"github.com/hilthontt/chatrelay/internal/infrastructure/logging"
	"github.com/hilthontt/chatrelay/internal/infrastructure/metrics"
	"github.com/hilthontt/chatrelay/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/chatrelay/internal/infrastructure/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Relay routes join, leave and typing events between connections that share
// a room. Every broadcast is fire-and-forget: a member that cannot take the
// message simply misses it.
//
// The userId carried by a typing event is relayed as sent. It is not checked
// against the identity the connection authenticated with.
type Relay struct {
	registry *Registry
	sink     domain.PresenceSink
	limiter  ratelimiter.Limiter
	logger   logging.Logger
	tracer   trace.Tracer

	// replyErrors sends an error frame back to the originator of a dropped frame.
	replyErrors bool
}

type RelayOption func(*Relay)

func WithPresenceSink(sink domain.PresenceSink) RelayOption {
	return func(r *Relay) { r.sink = sink }
}

// WithEventLimiter bounds inbound frames per connection.
func WithEventLimiter(limiter ratelimiter.Limiter) RelayOption {
	return func(r *Relay) { r.limiter = limiter }
}

func WithErrorReplies(enabled bool) RelayOption {
	return func(r *Relay) { r.replyErrors = enabled }
}

func NewRelay(logger logging.Logger, opts ...RelayOption) *Relay {
	r := &Relay{
		registry:    NewRegistry(),
		sink:        domain.PresenceSinkFunc(func(context.Context, domain.PresenceEvent) {}),
		logger:      logger,
		tracer:      tracing.GetTracer("chatrelay/ws"),
		replyErrors: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) Registry() *Registry {
	return r.registry
}

func (r *Relay) OnConnect(ctx context.Context, peer Peer) error {
	if err := r.registry.Connect(peer); err != nil {
		return err
	}

	metrics.WSConnections.Inc()

	r.logger.Info(logging.Relay, logging.Connect, "connection registered", map[logging.ExtraKey]any{
		logging.ConnectionID: peer.ID(),
		logging.UserID:       peer.UserID(),
	})
	r.notify(ctx, domain.PresenceConnected, peer.ID(), peer.UserID(), "", 0)

	return nil
}

// OnDisconnect removes the connection from every room. Calling it again is a no-op.
func (r *Relay) OnDisconnect(ctx context.Context, id domain.ConnectionID) {
	peer, _ := r.registry.Peer(id)
	rooms, ok := r.registry.Disconnect(id)
	if !ok {
		return
	}

	metrics.WSConnections.Dec()
	metrics.RoomsActive.Set(float64(r.registry.RoomCount()))
	if r.limiter != nil {
		r.limiter.Forget(string(id))
	}

	var user domain.UserID
	if peer != nil {
		user = peer.UserID()
	}

	for _, room := range rooms {
		r.notify(ctx, domain.PresenceLeft, id, user, room, r.registry.MemberCount(room))
	}

	r.logger.Info(logging.Relay, logging.Disconnect, "connection removed", map[logging.ExtraKey]any{
		logging.ConnectionID: id,
		"rooms_left":         len(rooms),
	})
	r.notify(ctx, domain.PresenceDisconnected, id, user, "", 0)
}

func (r *Relay) Join(ctx context.Context, id domain.ConnectionID, room domain.RoomID) {
	_, span := r.tracer.Start(ctx, "relay.join", trace.WithAttributes(
		attribute.String("connection.id", string(id)),
		attribute.String("room.id", string(room)),
	))
	defer span.End()

	peer, ok := r.registry.Peer(id)
	if !ok {
		r.logger.Warn(logging.Relay, logging.Join, "join from unknown connection", map[logging.ExtraKey]any{
			logging.ConnectionID: id,
			logging.RoomID:       room,
		})
		return
	}

	joined, count := r.registry.Join(id, room)
	if !joined {
		return
	}

	metrics.RoomsActive.Set(float64(r.registry.RoomCount()))

	r.logger.Info(logging.Relay, logging.Join, "connection joined room", map[logging.ExtraKey]any{
		logging.ConnectionID: id,
		logging.RoomID:       room,
		logging.MemberCount:  count,
	})
	r.notify(ctx, domain.PresenceJoined, id, peer.UserID(), room, count)
}

func (r *Relay) Leave(ctx context.Context, id domain.ConnectionID, room domain.RoomID) {
	_, span := r.tracer.Start(ctx, "relay.leave", trace.WithAttributes(
		attribute.String("connection.id", string(id)),
		attribute.String("room.id", string(room)),
	))
	defer span.End()

	peer, _ := r.registry.Peer(id)
	left, count := r.registry.Leave(id, room)
	if !left {
		return
	}

	metrics.RoomsActive.Set(float64(r.registry.RoomCount()))

	r.logger.Info(logging.Relay, logging.Leave, "connection left room", map[logging.ExtraKey]any{
		logging.ConnectionID: id,
		logging.RoomID:       room,
		logging.MemberCount:  count,
	})

	var user domain.UserID
	if peer != nil {
		user = peer.UserID()
	}
	r.notify(ctx, domain.PresenceLeft, id, user, room, count)
}

// Typing broadcasts user-typing to every member of ev.RoomID except from.
// The sender does not need to be a member. It returns the number of members
// the message was handed to.
func (r *Relay) Typing(ctx context.Context, from domain.ConnectionID, ev domain.TypingEvent) int {
	_, span := r.tracer.Start(ctx, "relay.typing", trace.WithAttributes(
		attribute.String("connection.id", string(from)),
		attribute.String("room.id", string(ev.RoomID)),
	))
	defer span.End()

	delivered := r.broadcast(ev.RoomID, from, NewUserTyping(ev))
	span.SetAttributes(attribute.Int("relay.delivered", delivered))

	r.logger.Debug(logging.Relay, logging.Typing, "typing relayed", map[logging.ExtraKey]any{
		logging.ConnectionID: from,
		logging.RoomID:       ev.RoomID,
		logging.UserID:       ev.UserID,
		"delivered":          delivered,
	})
	return delivered
}

func (r *Relay) broadcast(room domain.RoomID, exclude domain.ConnectionID, msg *Message) int {
	delivered := 0
	for _, peer := range r.registry.Members(room, exclude) {
		if err := peer.Send(msg); err != nil {
			reason := "send_failed"
			switch {
			case errors.Is(err, ErrSendQueueFull):
				reason = "queue_full"
			case errors.Is(err, ErrPeerClosed):
				reason = "peer_closed"
			}
			metrics.RelayDropped.WithLabelValues(reason).Inc()

			r.logger.Warn(logging.Relay, logging.Delivery, "delivery dropped", map[logging.ExtraKey]any{
				logging.ConnectionID: peer.ID(),
				logging.RoomID:       room,
				logging.EventName:    msg.Event,
				logging.ErrorMessage: err.Error(),
			})
			continue
		}
		delivered++
	}

	metrics.RelayDeliveries.WithLabelValues(msg.Event).Add(float64(delivered))
	return delivered
}

// Dispatch decodes one inbound frame from id and routes it. Frames that fail
// to decode or exceed the connection's event budget are dropped and reported
// as *ProtocolError; the connection is left open.
func (r *Relay) Dispatch(ctx context.Context, id domain.ConnectionID, frame []byte) error {
	if r.limiter != nil && !r.limiter.Allow(string(id)) {
		return r.reject(id, newProtocolError(CodeRateLimited, "", "too many events"))
	}

	in, err := Decode(frame)
	if err != nil {
		var perr *ProtocolError
		if errors.As(err, &perr) {
			return r.reject(id, perr)
		}
		return err
	}

	metrics.RelayEvents.WithLabelValues(in.EventName()).Inc()

	switch ev := in.(type) {
	case JoinChat:
		r.Join(ctx, id, ev.RoomID)
	case LeaveChat:
		r.Leave(ctx, id, ev.RoomID)
	case Typing:
		r.Typing(ctx, id, ev.TypingEvent)
	}
	return nil
}

// Reject reports a frame the transport could not hand to Dispatch.
func (r *Relay) Reject(id domain.ConnectionID, code, reason string) error {
	return r.reject(id, newProtocolError(code, "", reason))
}

func (r *Relay) reject(id domain.ConnectionID, perr *ProtocolError) error {
	metrics.ProtocolErrors.WithLabelValues(perr.Code).Inc()

	r.logger.Warn(logging.Validation, logging.Protocol, "frame dropped", map[logging.ExtraKey]any{
		logging.ConnectionID: id,
		logging.EventName:    perr.Event,
		logging.ErrorMessage: perr.Error(),
	})

	if r.replyErrors {
		if peer, ok := r.registry.Peer(id); ok {
			_ = peer.Send(NewProtocolErrorMessage(perr))
		}
	}
	return perr
}

// Close disconnects every peer and drops all membership state.
func (r *Relay) Close(ctx context.Context) {
	peers := r.registry.Reset()
	for _, peer := range peers {
		peer.Close()
		metrics.WSConnections.Dec()
		r.notify(ctx, domain.PresenceDisconnected, peer.ID(), peer.UserID(), "", 0)
	}
	metrics.RoomsActive.Set(0)

	r.logger.Info(logging.Relay, logging.Shutdown, "relay closed", map[logging.ExtraKey]any{
		"connections_closed": len(peers),
	})
}

func (r *Relay) notify(ctx context.Context, t domain.PresenceEventType, id domain.ConnectionID, user domain.UserID, room domain.RoomID, count int) {
	ev := domain.NewPresenceEvent(t, id, room, count)
	ev.UserID = user
	r.sink.Notify(ctx, ev)
}
