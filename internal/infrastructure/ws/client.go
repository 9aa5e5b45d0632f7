package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/chatrelay/internal/domain"
	"github.com/hilthontt/chatrelay/internal/infrastructure/logging"
)

var (
	ErrPeerClosed    = errors.New("peer closed")
	ErrSendQueueFull = errors.New("send queue full")
)

type ClientConfig struct {
	SendQueueSize  int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		SendQueueSize:  64,
		MaxMessageSize: 4096,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     30 * time.Second,
	}
}

// Client is one websocket connection. Outbound messages go through a bounded
// FIFO queue drained by WritePump; inbound frames are read by ReadPump and
// dispatched one at a time, which keeps per-connection ordering.
type Client struct {
	conn   *connWrapper
	send   chan *Message
	id     domain.ConnectionID
	userID domain.UserID
	cfg    ClientConfig
	logger logging.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func NewClient(conn *websocket.Conn, userID domain.UserID, cfg ClientConfig, logger logging.Logger) *Client {
	return &Client{
		conn:   newConnWrapper(conn),
		send:   make(chan *Message, cfg.SendQueueSize),
		id:     domain.ConnectionID(uuid.NewString()),
		userID: userID,
		cfg:    cfg,
		logger: logger,
		closed: make(chan struct{}),
	}
}

func (c *Client) ID() domain.ConnectionID {
	return c.id
}

// UserID is the identity the transport authenticated, if any.
func (c *Client) UserID() domain.UserID {
	return c.userID
}

// Send enqueues msg without blocking.
func (c *Client) Send(msg *Message) error {
	select {
	case <-c.closed:
		return ErrPeerClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close tears the transport down immediately; queued messages are discarded.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.WriteClose(websocket.CloseGoingAway, "", time.Now().Add(c.cfg.WriteWait))
		_ = c.conn.Close()
	})
}

func (c *Client) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// ReadPump reads frames until the transport fails, then deregisters the
// connection from the relay.
func (c *Client) ReadPump(ctx context.Context, relay *Relay) {
	defer func() {
		relay.OnDisconnect(ctx, c.id)
		c.Close()
	}()

	c.conn.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.conn.SetPongHandler(func(string) error {
		return c.conn.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		msgType, raw, err := c.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !c.IsClosed() {
				c.logger.Warn(logging.WebSocket, logging.Disconnect, "ws read error", map[logging.ExtraKey]any{
					logging.ConnectionID: c.id,
					logging.ErrorMessage: err.Error(),
				})
			}
			return
		}

		if msgType != websocket.TextMessage {
			_ = relay.Reject(c.id, CodeUnsupported, "only text frames are accepted")
			continue
		}

		_ = relay.Dispatch(ctx, c.id, raw)
	}
}

// WritePump drains the send queue and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.closed:
			return

		case msg := <-c.send:
			payload, err := Encode(msg)
			if err != nil {
				c.logger.Error(logging.WebSocket, logging.Delivery, "failed to encode message", map[logging.ExtraKey]any{
					logging.ConnectionID: c.id,
					logging.EventName:    msg.Event,
					logging.ErrorMessage: err.Error(),
				})
				continue
			}

			if err := c.conn.WriteText(payload, time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.logger.Debug(logging.WebSocket, logging.Delivery, "ws write error", map[logging.ExtraKey]any{
					logging.ConnectionID: c.id,
					logging.ErrorMessage: err.Error(),
				})
				return
			}

		case <-ticker.C:
			if err := c.conn.WritePing(time.Now().Add(c.cfg.WriteWait)); err != nil {
				return
			}
		}
	}
}
