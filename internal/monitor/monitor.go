package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/webgame-three/fpsync/internal/cache"
	"github.com/webgame-three/fpsync/internal/dispatcher"
	"github.com/webgame-three/fpsync/internal/session"
	"github.com/webgame-three/fpsync/pkg/streaming"
)

const (
	instrumentationName = "github.com/webgame-three/fpsync/internal/monitor"
	defaultInterval     = 5 * time.Second
)

var ErrNoTimestamp = errors.New("pong has no timestamp")

// Sender is the part of the connection manager the monitor needs.
type Sender interface {
	Connected() bool
	SendEnvelope(streaming.Envelope)
}

// RTTSink receives every round-trip sample.
type RTTSink interface {
	WriteRTT(sessionID string, rtt time.Duration, at time.Time) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Conn      Sender
	Session   *session.Context
	Telemetry RTTSink // optional
	Logger    *slog.Logger
	Interval  time.Duration
}

// Service pings the relay on a fixed interval and measures the round trip
// from the echoed pong.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	lastRTT   time.Duration

	pings cache.SafeCounter
	pongs cache.SafeCounter
	rtt   metric.Float64Histogram
}

// NewService creates a new monitor service
func NewService(deps Dependencies) (*Service, error) {
	if deps.Interval <= 0 {
		deps.Interval = defaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	rtt, err := otel.Meter(instrumentationName).Float64Histogram(
		"monitor.rtt",
		metric.WithDescription("Round trip time to the relay server"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rtt histogram: %w", err)
	}

	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
		rtt:      rtt,
	}, nil
}

// RegisterHandlers binds the pong kind to HandlePong.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(streaming.TypePong, s.HandlePong)
}

// IsRunning returns whether the ping loop is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// LastRTT returns the most recent round trip, or zero before the first pong.
func (s *Service) LastRTT() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRTT
}

// PingsSent returns how many pings went out while connected.
func (s *Service) PingsSent() int {
	return s.pings.Value()
}

// PongsReceived returns how many pongs were measured.
func (s *Service) PongsReceived() int {
	return s.pongs.Value()
}

// Ping sends one ping stamped with the current time. It does nothing while disconnected.
func (s *Service) Ping() {
	if !s.deps.Conn.Connected() {
		return
	}
	s.deps.Conn.SendEnvelope(streaming.Envelope{
		Type:      streaming.TypePing,
		Timestamp: time.Now().UnixMilli(),
	})
	s.pings.Inc()
}

// HandlePong measures the round trip from the echoed ping timestamp.
func (s *Service) HandlePong(e dispatcher.Event) error {
	ts := e.Envelope.Timestamp
	if ts <= 0 {
		return ErrNoTimestamp
	}
	received := e.Received
	if received.IsZero() {
		received = time.Now()
	}
	rtt := received.Sub(time.UnixMilli(ts))
	if rtt < 0 {
		rtt = 0
	}

	s.mu.Lock()
	s.lastRTT = rtt
	s.mu.Unlock()
	s.pongs.Inc()

	s.rtt.Record(context.Background(), float64(rtt.Microseconds())/1000)
	s.deps.Logger.Debug("pong", "rtt", rtt)

	if s.deps.Telemetry != nil && s.deps.Session != nil {
		if err := s.deps.Telemetry.WriteRTT(s.deps.Session.GetSession().ID, rtt, received); err != nil {
			s.deps.Logger.Warn("failed to write rtt sample", "error", err)
		}
	}
	return nil
}

// Start starts the ping loop. It stops on Stop or when ctx is done.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			if s.stopChan == stop {
				s.isRunning = false
			}
			s.mu.Unlock()
		}()

		s.deps.Logger.Debug("starting latency monitor", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Ping()
			}
		}
	}()

	return nil
}

// Stop stops the ping loop
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
		s.isRunning = false
	}
}
