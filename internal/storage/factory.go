package storage

import (
	"fmt"
	"log/slog"

	"github.com/heatbox/extension/internal/config"
	"github.com/heatbox/extension/internal/storage/gormstore"
	"github.com/heatbox/extension/internal/storage/influx"
	"github.com/heatbox/extension/internal/storage/memory"
	"github.com/heatbox/extension/internal/storage/websocket"
	"github.com/rs/zerolog"
)

// Storage type names accepted in storage.type.
const (
	TypeMemory    = "memory"
	TypeSQLite    = "sqlite"
	TypePostgres  = "postgres"
	TypeWebSocket = "websocket"
	TypeInflux    = "influx"
)

// Dependencies are shared by every backend.
type Dependencies struct {
	Logger   *slog.Logger
	DBLogger zerolog.Logger
	Version  string
}

// NewBackend creates a storage backend based on configuration. The returned
// backend still needs Init.
func NewBackend(cfg config.StorageConfig, deps Dependencies) (Backend, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	gormOpts := gormstore.Options{
		Logger:   deps.Logger,
		DBLogger: deps.DBLogger,
		Version:  deps.Version,
	}

	switch cfg.Type {
	case TypeMemory:
		return memory.New(cfg.Memory), nil
	case TypeSQLite:
		return gormstore.NewSQLite(cfg.SQLite, gormOpts), nil
	case TypePostgres:
		return gormstore.NewPostgres(cfg.DB, gormOpts), nil
	case TypeWebSocket:
		return websocket.New(websocket.Config{URL: cfg.WebSocket.URL, Secret: cfg.WebSocket.Secret}, deps.Logger), nil
	case TypeInflux:
		return influx.New(cfg.Influx, deps.Logger), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
