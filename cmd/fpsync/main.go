// Command fpsync is a headless client: it joins a relay as a synthetic
// player, walks in a circle, fires periodically and records every remote
// peer it sees.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/webgame-three/fpsync/internal/config"
	"github.com/webgame-three/fpsync/internal/connection"
	"github.com/webgame-three/fpsync/internal/dispatcher"
	"github.com/webgame-three/fpsync/internal/entitysync"
	"github.com/webgame-three/fpsync/internal/influx"
	"github.com/webgame-three/fpsync/internal/logging"
	"github.com/webgame-three/fpsync/internal/monitor"
	"github.com/webgame-three/fpsync/internal/recorder"
	"github.com/webgame-three/fpsync/internal/session"
	"github.com/webgame-three/fpsync/internal/storage"
	"github.com/webgame-three/fpsync/pkg/core"
)

// BuildDate can be set at build time via ldflags
var (
	BuildDate = "unknown"
	AppName   = "fpsync"
)

var (
	SlogManager      *logging.SlogManager
	Logger           *slog.Logger
	SessionStartTime = time.Now()
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	addr := flag.String("server", "", "relay websocket URL (overrides server.url)")
	flag.Parse()

	// a missing .env is fine
	_ = godotenv.Load()

	configErr := config.Load(*configDir)

	localID := core.NewPlayerID()
	serverURL := config.GetServerURL()
	if *addr != "" {
		serverURL = *addr
	}
	sess := session.NewContext(localID, serverURL)

	logFile, gelfWriter := setupLogging(sess)
	defer logFile.Close()
	if gelfWriter != nil {
		defer gelfWriter.Close()
	}
	if configErr != nil {
		Logger.Warn("Using defaults", "error", configErr)
	}
	Logger.Info("Starting up", "version", session.Version, "build", BuildDate, "localId", localID)

	zlog := logging.NewZerolog(config.GetString("logLevel"), os.Stdout, logFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := dispatcher.New(Logger)
	if err != nil {
		return err
	}

	syncer := entitysync.New(localID, entitysync.WithLogger(Logger))
	syncer.RegisterHandlers(d)

	backend, err := initStorage(zlog)
	if err != nil {
		return err
	}
	s := sess.GetSession()
	if err := backend.StartSession(&s); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	var (
		playerSink recorder.PlayerSink
		rttSink    monitor.RTTSink
	)
	influxMgr := influx.NewManager(config.GetInfluxConfig(), zlog,
		filepath.Join(config.GetString("logsDir"), fmt.Sprintf("influx_backup_%s.log.gz", SessionStartTime.Format("20060102_150405"))))
	if err := influxMgr.Connect(ctx); err != nil {
		Logger.Info("Telemetry disabled", "reason", err)
	} else {
		defer influxMgr.Close()
		playerSink, rttSink = influxMgr, influxMgr
	}

	rec := recorder.New(recorder.Dependencies{
		Backend:   backend,
		Telemetry: playerSink,
		Logger:    Logger,
		Session:   sess,
	})
	rec.Bind(syncer)

	clientCfg := config.GetClientConfig()
	conn, err := connection.New(sess, d,
		connection.WithLogger(Logger),
		connection.WithSendBuffer(clientCfg.SendBuffer),
	)
	if err != nil {
		return err
	}
	conn.OnClose(func(err error) {
		Logger.Warn("Relay closed the connection", "error", err)
		stop()
	})

	mon, err := monitor.NewService(monitor.Dependencies{
		Conn:      conn,
		Session:   sess,
		Telemetry: rttSink,
		Logger:    Logger,
		Interval:  clientCfg.PingInterval,
	})
	if err != nil {
		return err
	}
	mon.RegisterHandlers(d)

	if err := conn.Connect(ctx, ""); err != nil {
		shutdown(sess, backend, rec)
		return err
	}
	Logger.Info("Connected", "server", sess.GetSession().ServerURL)

	if err := mon.Start(ctx); err != nil {
		Logger.Warn("Latency monitor not started", "error", err)
	}

	drive(ctx, clientCfg, syncer, conn)

	mon.Stop()
	conn.Disconnect()
	shutdown(sess, backend, rec)

	st := rec.Stats()
	Logger.Info("Shut down",
		"updates", st.Updates,
		"shots", st.Shots,
		"disconnects", st.Disconnects,
		"pings", mon.PingsSent(),
		"pongs", mon.PongsReceived(),
		"lastRtt", mon.LastRTT(),
	)
	return nil
}

// drive sends the local pose every tick until ctx is done.
func drive(ctx context.Context, cfg config.ClientConfig, syncer *entitysync.Synchronizer, conn *connection.Manager) {
	rate := cfg.TickRate
	if rate <= 0 {
		rate = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	p := newPilot(cfg.ShootEvery)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pos, rot := p.step()
			conn.SendPlayerUpdate(syncer.ProduceUpdate(pos, rot, 100))
			if p.shouldShoot() {
				origin, dir := muzzle(pos, rot)
				_, shot := syncer.ProduceShoot(origin, dir)
				conn.SendShoot(shot)
			}
		}
	}
}

func shutdown(sess *session.Context, backend storage.Backend, rec *recorder.Recorder) {
	rec.Close()
	sess.End(time.Now())

	if err := backend.EndSession(); err != nil {
		Logger.Error("Failed to end session", "error", err)
	}
	if err := backend.Close(); err != nil {
		Logger.Error("Failed to close storage", "error", err)
	}
	if exp, ok := backend.(storage.Exportable); ok && exp.ExportedFilePath() != "" {
		Logger.Info("Session exported", "path", exp.ExportedFilePath())
	}
}

// setupLogging wires console, rotating file and optional Graylog output.
func setupLogging(sess *session.Context) (io.WriteCloser, io.Closer) {
	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logs dir: %v\n", err)
	}
	logFile := logging.NewRotatingFile(logging.LogFilePath(logsDir, AppName, SessionStartTime))

	opts := logging.Options{
		Level:   config.GetString("logLevel"),
		Console: os.Stdout,
		File:    logFile,
		Context: logging.SessionAttrs(sess),
	}

	var gelfCloser io.Closer
	graylog := config.GetGraylogConfig()
	if graylog.Enabled {
		w, err := logging.NewGELFWriter(graylog.Address)
		if err != nil {
			fmt.Fprintf(os.Stderr, "graylog disabled: %v\n", err)
		} else {
			opts.GELF = w
			gelfCloser = w
		}
	}

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(opts)
	Logger = SlogManager.Logger()
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	return logFile, gelfCloser
}
