// Package connection owns the client's single websocket connection to the
// relay server: its lifecycle, envelope framing and inbound dispatch.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/webgame-three/fpsync/internal/dispatcher"
	"github.com/webgame-three/fpsync/internal/session"
	"github.com/webgame-three/fpsync/pkg/core"
	"github.com/webgame-three/fpsync/pkg/streaming"
)

const defaultSendBuffer = 256

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithDialer replaces the websocket dialer. Defaults to websocket.DefaultDialer.
func WithDialer(d *ws.Dialer) Option {
	return func(m *Manager) {
		if d != nil {
			m.dialer = d
		}
	}
}

// WithSendBuffer sets how many outbound messages may wait for the write loop.
func WithSendBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.sendBuffer = n
		}
	}
}

// dialAttempt is shared by every Connect call that arrives while a dial is in flight.
type dialAttempt struct {
	done chan struct{}
	once sync.Once
	err  error
}

func (a *dialAttempt) finish(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

// Manager is the Connection Manager. It holds at most one open link.
type Manager struct {
	mu      sync.Mutex
	link    *link
	pending *dialAttempt
	onClose func(error)

	sess       *session.Context
	dispatcher *dispatcher.Dispatcher
	dialer     *ws.Dialer
	sendBuffer int
	logger     *slog.Logger

	sent     metric.Int64Counter
	dropped  metric.Int64Counter
	received metric.Int64Counter
}

// New creates a Manager for the given session. Inbound messages are routed
// through d.
func New(sess *session.Context, d *dispatcher.Dispatcher, opts ...Option) (*Manager, error) {
	m := &Manager{
		sess:       sess,
		dispatcher: d,
		dialer:     ws.DefaultDialer,
		sendBuffer: defaultSendBuffer,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	mt := otel.Meter("github.com/webgame-three/fpsync/internal/connection")

	var err error

	m.sent, err = mt.Int64Counter(
		"connection.messages.sent",
		metric.WithDescription("Total messages written to the socket"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sent counter: %w", err)
	}

	m.dropped, err = mt.Int64Counter(
		"connection.messages.dropped",
		metric.WithDescription("Total outbound messages dropped because the send queue was full"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	m.received, err = mt.Int64Counter(
		"connection.messages.received",
		metric.WithDescription("Total messages read from the socket"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating received counter: %w", err)
	}

	return m, nil
}

// LocalID returns the identity stamped on every outbound update.
func (m *Manager) LocalID() core.Identity {
	return m.sess.LocalID()
}

// Connected reports whether a link is open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.link != nil
}

// OnClose registers fn to be called when an open connection is lost without
// Disconnect. Only one hook is kept; nil clears it.
func (m *Manager) OnClose(fn func(error)) {
	m.mu.Lock()
	m.onClose = fn
	m.mu.Unlock()
}

// Connect opens the connection to addr, or to the session's server URL when
// addr is empty. It returns nil at once if a link is already open. Calls made
// while a dial is in flight wait for that dial and share its result, even if
// they name a different address. Cancelling ctx only stops the wait.
func (m *Manager) Connect(ctx context.Context, addr string) error {
	if addr == "" {
		addr = m.sess.GetSession().ServerURL
	}

	m.mu.Lock()
	if m.link != nil {
		m.mu.Unlock()
		return nil
	}
	a := m.pending
	if a == nil {
		a = &dialAttempt{done: make(chan struct{})}
		m.pending = a
		go m.dial(a, addr)
	}
	m.mu.Unlock()

	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) dial(a *dialAttempt, addr string) {
	m.logger.Debug("dialing", "addr", addr)
	conn, _, err := m.dialer.Dial(addr, nil)

	m.mu.Lock()
	if m.pending != a {
		// Disconnect ran while we were dialing.
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		a.finish(ErrDisconnected)
		return
	}
	m.pending = nil

	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("connect failed", "addr", addr, "error", err)
		a.finish(&ConnectionError{Addr: addr, Err: err})
		return
	}

	l := newLink(conn, m.sendBuffer)
	m.link = l
	m.mu.Unlock()

	m.sess.SetServerURL(addr)
	go m.writeLoop(l)
	go m.readLoop(l)

	m.logger.Info("connected", "addr", addr)
	a.finish(nil)
}

// Disconnect closes the open link, if any, and abandons an in-flight dial.
// Remote entity state is left to the caller.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if a := m.pending; a != nil {
		m.pending = nil
		a.finish(ErrDisconnected)
	}
	l := m.link
	m.link = nil
	m.mu.Unlock()

	if l == nil {
		return
	}
	l.closeNormal()
	m.logger.Info("disconnected", "reason", "local")
}

// Send frames payload under kind and queues it for the write loop. It does
// nothing unless a link is open and drops the message when the queue is full.
func (m *Manager) Send(kind string, payload any) {
	if !m.Connected() {
		return
	}
	data, err := streaming.MarshalEnvelope(kind, payload)
	if err != nil {
		m.logger.Warn("failed to frame outbound message", "kind", kind, "error", err)
		return
	}
	m.enqueue(kind, data)
}

// SendEnvelope queues a fully built envelope, for kinds that carry their
// content outside Data.
func (m *Manager) SendEnvelope(env streaming.Envelope) {
	if !m.Connected() {
		return
	}
	data, err := streaming.Marshal(env)
	if err != nil {
		m.logger.Warn("failed to frame outbound message", "kind", env.Type, "error", err)
		return
	}
	m.enqueue(env.Type, data)
}

func (m *Manager) enqueue(kind string, data []byte) {
	m.mu.Lock()
	l := m.link
	m.mu.Unlock()

	if l == nil {
		return
	}

	select {
	case <-l.done:
	case l.sendCh <- data:
	default:
		m.dropped.Add(context.Background(), 1)
		m.logger.Warn("send queue full, dropping message", "kind", kind)
	}
}

// SendPlayerUpdate transmits the local player's state.
func (m *Manager) SendPlayerUpdate(state core.PlayerState) {
	m.Send(streaming.TypePlayerUpdate, state)
}

// SendShoot transmits one projectile spawn.
func (m *Manager) SendShoot(state core.ProjectileState) {
	m.Send(streaming.TypePlayerShoot, state)
}

// Dispatch decodes raw as an envelope and routes it by kind. Malformed
// messages, unknown kinds and handler failures are logged and dropped.
func (m *Manager) Dispatch(raw []byte) {
	env, err := streaming.DecodeEnvelope(raw)
	if err != nil {
		m.logger.Warn("dropping malformed message", "error", err, "bytes", len(raw))
		return
	}

	err = m.dispatcher.Dispatch(dispatcher.Event{Envelope: env, Received: time.Now()})
	switch {
	case err == nil:
	case errors.Is(err, dispatcher.ErrUnknownKind):
		m.logger.Debug("ignoring message", "kind", env.Type)
	default:
		m.logger.Warn("dropping message", "kind", env.Type, "error", err)
	}
}
