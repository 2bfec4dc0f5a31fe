package connection

import (
	"context"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	closeWait = time.Second
)

// link is one open socket with its own send queue. A Manager replaces the
// link on every successful Connect and never reuses a closed one.
type link struct {
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
}

func newLink(conn *ws.Conn, buffer int) *link {
	return &link{
		conn:   conn,
		sendCh: make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// shutdown stops both loops and closes the socket.
func (l *link) shutdown() {
	l.once.Do(func() {
		close(l.done)
		_ = l.conn.Close()
	})
}

// closeNormal sends a close frame before shutting down.
func (l *link) closeNormal() {
	_ = l.conn.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(closeWait),
	)
	l.shutdown()
}

// writeLoop drains sendCh and writes messages to the socket in order.
func (m *Manager) writeLoop(l *link) {
	for {
		select {
		case <-l.done:
			return
		case data := <-l.sendCh:
			if err := l.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				m.drop(l, err)
				return
			}
			if err := l.conn.WriteMessage(ws.TextMessage, data); err != nil {
				m.drop(l, err)
				return
			}
			m.sent.Add(context.Background(), 1)
		}
	}
}

// readLoop hands every inbound text frame to Dispatch, one at a time.
func (m *Manager) readLoop(l *link) {
	for {
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			m.drop(l, err)
			return
		}
		m.received.Add(context.Background(), 1)
		m.Dispatch(message)
	}
}

// drop retires l after a transport failure or a remote close. It is a no-op
// when l is no longer the active link, which is the case after Disconnect.
func (m *Manager) drop(l *link, cause error) {
	m.mu.Lock()
	if m.link != l {
		m.mu.Unlock()
		return
	}
	m.link = nil
	onClose := m.onClose
	m.mu.Unlock()

	l.shutdown()
	m.logger.Info("disconnected", "reason", cause)

	if onClose != nil {
		onClose(cause)
	}
}
