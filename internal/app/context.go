// Package app opens a workspace: database, config and the optional NATS,
// Redis and S3 backends, wired into an engine.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"intervene/internal/cache"
	"intervene/internal/config"
	"intervene/internal/db"
	"intervene/internal/engine"
	"intervene/internal/events"
	"intervene/internal/export"
	"intervene/internal/migrate"
)

type Options struct {
	Workspace string
	Logger    *log.Logger
}

// Workspace holds an opened engine and everything that must be closed with it.
type Workspace struct {
	Dir    string
	Config *config.Config
	Engine engine.Engine
	conn   *sql.DB
	pub    events.Publisher
	cache  cache.Cache
}

// Open loads the workspace config (defaults when no file exists), migrates
// the database and connects the configured event and cache backends.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	cfg, err := config.LoadOrDefault(opts.Workspace)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	ws := &Workspace{Dir: opts.Workspace, Config: cfg, conn: conn}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		ws.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if ws.pub, err = events.Open(cfg.Events.NATSURL); err != nil {
		ws.Close()
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	if ws.cache, err = cache.Open(ctx, cfg.Cache.RedisURL); err != nil {
		ws.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Debug("workspace opened", "db", db.Path(opts.Workspace), "nats", cfg.Events.NATSURL != "", "redis", cfg.Cache.RedisURL != "")

	e := engine.New(conn, cfg)
	e.Publisher = ws.pub
	e.Cache = ws.cache
	e.Logger = logger
	ws.Engine = e
	return ws, nil
}

// ExportDestination is S3 when a bucket is configured, otherwise dir.
func (w *Workspace) ExportDestination(ctx context.Context, dir string) (export.Destination, error) {
	s3cfg := w.Config.Export.S3
	if s3cfg.Bucket == "" {
		return export.FileDestination{Dir: dir}, nil
	}
	return export.NewS3Destination(ctx, s3cfg.Bucket, s3cfg.Prefix, s3cfg.Region, s3cfg.Endpoint)
}

func (w *Workspace) Close() error {
	var errs []error
	if w.cache != nil {
		errs = append(errs, w.cache.Close())
	}
	if w.pub != nil {
		errs = append(errs, w.pub.Close())
	}
	if w.conn != nil {
		errs = append(errs, w.conn.Close())
	}
	return errors.Join(errs...)
}
