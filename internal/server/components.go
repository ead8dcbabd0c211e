/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/signsync/internal/cache"
	"github.com/friendsincode/signsync/internal/config"
	"github.com/friendsincode/signsync/internal/db"
	"github.com/friendsincode/signsync/internal/engine"
	"github.com/friendsincode/signsync/internal/events"
	"github.com/friendsincode/signsync/internal/inventory"
	"github.com/friendsincode/signsync/internal/remote"
	"github.com/friendsincode/signsync/internal/storage"
)

// Components is the engine graph shared by the server and one-shot commands.
type Components struct {
	DB      *gorm.DB
	Store   *inventory.Store
	Remote  *remote.Client
	Cache   *cache.Cache // nil unless the Redis cache is enabled
	Archive *storage.TraceArchive
	Bus     *events.Bus
	Engine  *engine.Engine

	closers []func() error
}

// Wire connects the datastore and remote platform and builds the engine.
func Wire(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Components, error) {
	c := &Components{Bus: events.NewBus()}
	ok := false
	defer func() {
		if !ok {
			_ = c.Close()
		}
	}()

	database, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	c.DB = database
	c.closers = append(c.closers, func() error { return db.Close(database) })

	if err := db.Migrate(database); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	c.Store = inventory.NewStore(database, logger)

	c.Remote, err = remote.NewClient(remote.Options{
		BaseURL:     cfg.RemoteBaseURL,
		Token:       cfg.RemoteToken,
		TemplateID:  cfg.RemoteTemplateID,
		Timeout:     cfg.RemoteTimeout,
		Concurrency: int64(cfg.RemoteConcurrency),
		MaxRetries:  cfg.RemoteMaxRetries,
		RatePerSec:  cfg.RemoteRatePerSec,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("remote client: %w", err)
	}

	deps := engine.Deps{
		Platform: c.Remote,
		Store:    c.Store,
		Config:   cfg.Engine,
		Gate: engine.Gate{
			TokenConfigured:    c.Remote.HasToken(),
			TemplateConfigured: c.Remote.HasTemplate(),
		},
		Events: c.Bus,
	}

	if cfg.RedisCacheEnabled {
		c.Cache, err = cache.New(cache.Config{
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			RedisDB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		cc := c.Cache
		c.closers = append(c.closers, cc.Close)
		deps.BaselineCache = cc
		deps.Locker = cc
	}

	if cfg.S3Bucket != "" {
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("trace archive: %w", err)
		}
		c.Archive = storage.NewTraceArchive(store)
		deps.Archive = c.Archive
	}

	c.Engine, err = engine.New(deps, logger)
	if err != nil {
		return nil, err
	}

	if !deps.Gate.TokenConfigured {
		logger.Warn().Msg("remote token not configured, mutating operations are disabled")
	}
	ok = true
	return c, nil
}

// Close releases owned resources in reverse order.
func (c *Components) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}
