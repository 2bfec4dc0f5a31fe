package main

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/webgame-three/fpsync/internal/config"
	"github.com/webgame-three/fpsync/internal/storage"
)

func initStorage(zlog zerolog.Logger) (storage.Backend, error) {
	storageCfg := config.GetStorageConfig()
	if storageCfg.Type != "memory" && storageCfg.SQLite.DumpPath == "" {
		storageCfg.SQLite.DumpPath = filepath.Join(
			storageCfg.Memory.OutputDir,
			fmt.Sprintf("%s_%s.db", AppName, SessionStartTime.Format("20060102_150405")),
		)
	}

	backend, err := storage.NewBackend(storageCfg, storage.Dependencies{
		DB:       config.GetDBConfig(),
		Logger:   Logger,
		DBLogger: zlog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}

	Logger.Info("Storage backend initialized", "type", storageCfg.Type)
	return backend, nil
}
