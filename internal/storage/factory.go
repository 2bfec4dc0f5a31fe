// internal/storage/factory.go
package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/webgame-three/fpsync/internal/config"
	"github.com/webgame-three/fpsync/internal/database"
	"github.com/webgame-three/fpsync/internal/storage/memory"
	"github.com/webgame-three/fpsync/internal/storage/postgres"
	sqlitestorage "github.com/webgame-three/fpsync/internal/storage/sqlite"
)

// Dependencies holds what the database-backed backends need.
type Dependencies struct {
	DB       config.DBConfig
	Logger   *slog.Logger
	DBLogger zerolog.Logger
}

// fallbackDumpPath is the configured sqlite dump path, or a timestamped
// file in the memory output directory.
func fallbackDumpPath(cfg config.StorageConfig) string {
	if cfg.SQLite.DumpPath != "" {
		return cfg.SQLite.DumpPath
	}
	return filepath.Join(cfg.Memory.OutputDir,
		fmt.Sprintf("fpsync_local_%s.db", time.Now().Format("20060102_150405")))
}

// NewBackend creates a storage backend based on configuration. The
// postgres type falls back to the sqlite backend when the server cannot
// be reached, dumping to a local file on Close.
func NewBackend(cfg config.StorageConfig, deps Dependencies) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		m := database.NewManager(deps.DB, deps.DBLogger)
		if err := m.Connect(); err != nil {
			return nil, err
		}
		if err := m.Setup(); err != nil {
			return nil, err
		}
		if m.ShouldSaveLocal {
			m.SqliteFilePath = fallbackDumpPath(cfg)
			deps.DBLogger.Warn().Str("path", m.SqliteFilePath).Msg("Recording to local SQLite")
			local := cfg.SQLite
			local.DumpPath = m.SqliteFilePath
			return sqlitestorage.New(local, m.DB, deps.Logger)
		}
		return postgres.New(postgres.Dependencies{DB: m.DB, Logger: deps.Logger}), nil
	case "sqlite":
		return sqlitestorage.New(cfg.SQLite, nil, deps.Logger)
	case "memory":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
