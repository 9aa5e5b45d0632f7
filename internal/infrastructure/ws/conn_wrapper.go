package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// connWrapper serializes writers; gorilla allows one concurrent writer.
type connWrapper struct {
	conn  *websocket.Conn
	mutex sync.Mutex
}

func newConnWrapper(c *websocket.Conn) *connWrapper {
	return &connWrapper{conn: c}
}

func (w *connWrapper) WriteText(payload []byte, deadline time.Time) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, payload)
}

// WritePing and WriteClose use control frames, which gorilla allows
// concurrently with other writers.
func (w *connWrapper) WritePing(deadline time.Time) error {
	return w.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (w *connWrapper) WriteClose(code int, reason string, deadline time.Time) error {
	return w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

func (w *connWrapper) Close() error {
	return w.conn.Close()
}
