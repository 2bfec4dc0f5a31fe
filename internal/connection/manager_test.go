package connection

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webgame-three/fpsync/internal/dispatcher"
	"github.com/webgame-three/fpsync/internal/session"
	"github.com/webgame-three/fpsync/pkg/core"
	"github.com/webgame-three/fpsync/pkg/streaming"
)

// testRelay upgrades every request, records what the client sends and lets
// the test push frames back down.
type testRelay struct {
	srv      *httptest.Server
	upgrades atomic.Int32
	gate     chan struct{} // when non-nil, upgrades wait for it to close

	mu       sync.Mutex
	messages []streaming.Envelope
	conns    []*ws.Conn
}

func newTestRelay(t *testing.T, gated bool) *testRelay {
	t.Helper()
	r := &testRelay{}
	if gated {
		r.gate = make(chan struct{})
	}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.gate != nil {
			<-r.gate
		}
		c, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		r.upgrades.Add(1)
		r.mu.Lock()
		r.conns = append(r.conns, c)
		r.mu.Unlock()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			r.mu.Lock()
			r.messages = append(r.messages, env)
			r.mu.Unlock()
		}
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *testRelay) url() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http")
}

func (r *testRelay) all() []streaming.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]streaming.Envelope, len(r.messages))
	copy(cp, r.messages)
	return cp
}

func (r *testRelay) push(t *testing.T, raw string) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.conns)
	require.NoError(t, r.conns[len(r.conns)-1].WriteMessage(ws.TextMessage, []byte(raw)))
}

func (r *testRelay) closeClients() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		_ = c.Close()
	}
}

func newTestManager(t *testing.T, d *dispatcher.Dispatcher) *Manager {
	t.Helper()
	if d == nil {
		var err error
		d, err = dispatcher.New(noopLogger{})
		require.NoError(t, err)
	}
	m, err := New(session.NewContext("player_local0001", ""), d)
	require.NoError(t, err)
	t.Cleanup(m.Disconnect)
	return m
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

func TestConnect_OpensConnection(t *testing.T) {
	relay := newTestRelay(t, false)
	m := newTestManager(t, nil)

	require.NoError(t, m.Connect(context.Background(), relay.url()))

	assert.True(t, m.Connected())
	assert.Equal(t, relay.url(), m.sess.GetSession().ServerURL)
}

func TestConnect_IdempotentWhenOpen(t *testing.T) {
	relay := newTestRelay(t, false)
	m := newTestManager(t, nil)

	require.NoError(t, m.Connect(context.Background(), relay.url()))
	require.NoError(t, m.Connect(context.Background(), relay.url()))

	assert.Eventually(t, func() bool { return relay.upgrades.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), relay.upgrades.Load())
}

func TestConnect_ConcurrentCallsShareOneDial(t *testing.T) {
	relay := newTestRelay(t, true)
	m := newTestManager(t, nil)

	const callers = 5
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			errs <- m.Connect(context.Background(), relay.url())
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(relay.gate)

	for i := 0; i < callers; i++ {
		select {
		case err := <-errs:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("connect did not return")
		}
	}
	assert.Equal(t, int32(1), relay.upgrades.Load())
	assert.True(t, m.Connected())
}

func TestConnect_UnreachableReturnsConnectionError(t *testing.T) {
	relay := newTestRelay(t, false)
	addr := relay.url()
	relay.srv.Close()

	m := newTestManager(t, nil)
	err := m.Connect(context.Background(), addr)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, addr, connErr.Addr)
	assert.Error(t, connErr.Unwrap())
	assert.False(t, m.Connected())
}

func TestConnect_HandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	m := newTestManager(t, nil)
	err := m.Connect(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, ws.ErrBadHandshake)
}

func TestConnect_UsesSessionURLWhenEmpty(t *testing.T) {
	relay := newTestRelay(t, false)
	d, err := dispatcher.New(noopLogger{})
	require.NoError(t, err)
	m, err := New(session.NewContext("player_local0001", relay.url()), d)
	require.NoError(t, err)
	defer m.Disconnect()

	require.NoError(t, m.Connect(context.Background(), ""))
	assert.True(t, m.Connected())
}

func TestConnect_ContextCancelStopsWaiting(t *testing.T) {
	relay := newTestRelay(t, true)
	defer close(relay.gate)
	m := newTestManager(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := m.Connect(ctx, relay.url())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnect_LateConnectionAfterDisconnectIsClosed(t *testing.T) {
	relay := newTestRelay(t, true)
	m := newTestManager(t, nil)

	errs := make(chan error, 1)
	go func() { errs <- m.Connect(context.Background(), relay.url()) }()

	time.Sleep(50 * time.Millisecond)
	m.Disconnect()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrDisconnected)
	case <-time.After(time.Second):
		t.Fatal("pending connect was not released by Disconnect")
	}

	close(relay.gate)
	time.Sleep(100 * time.Millisecond)
	assert.False(t, m.Connected())
}

func TestDisconnect_NoopWhenClosed(t *testing.T) {
	m := newTestManager(t, nil)

	assert.NotPanics(t, func() {
		m.Disconnect()
		m.Disconnect()
	})
	assert.False(t, m.Connected())
}

func TestDisconnect_ThenReconnect(t *testing.T) {
	relay := newTestRelay(t, false)
	m := newTestManager(t, nil)

	require.NoError(t, m.Connect(context.Background(), relay.url()))
	m.Disconnect()
	assert.False(t, m.Connected())

	require.NoError(t, m.Connect(context.Background(), relay.url()))
	assert.True(t, m.Connected())
	assert.Eventually(t, func() bool { return relay.upgrades.Load() == 2 }, time.Second, 10*time.Millisecond)
}

func TestSend_SilentWhenClosed(t *testing.T) {
	m := newTestManager(t, nil)

	assert.NotPanics(t, func() {
		m.Send(streaming.TypePlayerUpdate, core.PlayerState{ID: "player_a"})
		m.SendShoot(core.ProjectileState{ID: "bullet_a"})
	})
	assert.False(t, m.Connected())
	assert.Nil(t, m.link)
	assert.Nil(t, m.pending)
}

func TestSend_DeliversInOrder(t *testing.T) {
	relay := newTestRelay(t, false)
	m := newTestManager(t, nil)
	require.NoError(t, m.Connect(context.Background(), relay.url()))

	const n = 100
	for i := 0; i < n; i++ {
		m.SendPlayerUpdate(core.PlayerState{ID: "player_local0001", Health: i})
	}

	require.Eventually(t, func() bool { return len(relay.all()) == n }, 2*time.Second, 10*time.Millisecond)

	for i, env := range relay.all() {
		assert.Equal(t, streaming.TypePlayerUpdate, env.Type)
		state, err := streaming.DecodeData[core.PlayerState](env)
		require.NoError(t, err)
		assert.Equal(t, i, state.Health)
	}
}

func TestSend_ShootEnvelope(t *testing.T) {
	relay := newTestRelay(t, false)
	m := newTestManager(t, nil)
	require.NoError(t, m.Connect(context.Background(), relay.url()))

	shot := core.ProjectileState{
		ID:        "bullet_abc",
		Position:  core.Vector3{Y: 1},
		Direction: core.Vector3{Z: 1},
	}
	m.SendShoot(shot)

	require.Eventually(t, func() bool { return len(relay.all()) == 1 }, time.Second, 10*time.Millisecond)
	env := relay.all()[0]
	assert.Equal(t, streaming.TypePlayerShoot, env.Type)
	got, err := streaming.DecodeData[core.ProjectileState](env)
	require.NoError(t, err)
	assert.Equal(t, shot, got)
}

func TestRemoteClose_IsSilent(t *testing.T) {
	relay := newTestRelay(t, false)
	m := newTestManager(t, nil)

	closed := make(chan error, 1)
	m.OnClose(func(err error) { closed <- err })

	require.NoError(t, m.Connect(context.Background(), relay.url()))
	relay.closeClients()

	select {
	case err := <-closed:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("close hook not called")
	}
	assert.False(t, m.Connected())

	assert.NotPanics(t, func() {
		m.Send(streaming.TypeChat, nil)
	})
}

func TestDisconnect_DoesNotCallOnClose(t *testing.T) {
	relay := newTestRelay(t, false)
	m := newTestManager(t, nil)

	var calls atomic.Int32
	m.OnClose(func(error) { calls.Add(1) })

	require.NoError(t, m.Connect(context.Background(), relay.url()))
	m.Disconnect()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestInbound_RoutedThroughDispatcher(t *testing.T) {
	relay := newTestRelay(t, false)
	d, err := dispatcher.New(noopLogger{})
	require.NoError(t, err)

	got := make(chan streaming.Envelope, 1)
	d.Register(streaming.TypeSystem, func(e dispatcher.Event) error {
		got <- e.Envelope
		return nil
	})

	m := newTestManager(t, d)
	require.NoError(t, m.Connect(context.Background(), relay.url()))
	require.Eventually(t, func() bool { return relay.upgrades.Load() == 1 }, time.Second, 10*time.Millisecond)

	relay.push(t, `{"type":"system","message":"Welcome User_1!"}`)

	select {
	case env := <-got:
		assert.Equal(t, "Welcome User_1!", env.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("system message not dispatched")
	}
}

func TestDispatch_DropsBadInput(t *testing.T) {
	d, err := dispatcher.New(noopLogger{})
	require.NoError(t, err)

	var calls int
	d.Register(streaming.TypePlayerUpdate, func(dispatcher.Event) error {
		calls++
		return nil
	})
	d.Register(streaming.TypeChat, func(dispatcher.Event) error {
		return errors.New("bad chat")
	})

	m := newTestManager(t, d)

	inputs := []string{
		``,
		`not json`,
		`{"data":{}}`,
		`{"type":"nonsense"}`,
		`{"type":"chat"}`,
		`[1,2,3]`,
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { m.Dispatch([]byte(in)) }, "input %q", in)
	}
	assert.Equal(t, 0, calls)
}

func TestLocalID(t *testing.T) {
	m := newTestManager(t, nil)
	assert.Equal(t, core.Identity("player_local0001"), m.LocalID())
}

func TestConnectionError_Format(t *testing.T) {
	inner := errors.New("refused")
	err := &ConnectionError{Addr: "ws://x", Err: inner}

	assert.Equal(t, "connect ws://x: refused", err.Error())
	assert.ErrorIs(t, err, inner)
}
