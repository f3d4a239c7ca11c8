// Package store persists session transcripts, one record per session.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/helpbyexperts/ava/backend/internal/config"
	"github.com/helpbyexperts/ava/backend/internal/logging"
	"github.com/helpbyexperts/ava/backend/internal/model/chat"
)

// ErrNotFound is returned by LoadSession for unknown ids.
var ErrNotFound = errors.New("session record not found")

// Store is the durable persistence boundary. SaveSession overwrites the
// whole record, so the last write wins.
type Store interface {
	SaveSession(ctx context.Context, session chat.Session) error
	LoadSession(ctx context.Context, sessionID string) (chat.Session, error)
	Close() error
}

// Lister is implemented by stores that can enumerate their records.
type Lister interface {
	ListSessions(ctx context.Context, limit int) ([]chat.Summary, error)
}

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, log *logging.Logger) (Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return NewMemoryStore(), nil
	case config.DriverSQLite:
		return OpenSQLite(cfg.SQLitePath, log)
	case config.DriverRedis:
		return NewRedisStore(ctx, RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
			TTL:      cfg.RedisTTL,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
