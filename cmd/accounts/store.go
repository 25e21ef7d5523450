package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-estoria/accounts/eventstore"
	"github.com/go-estoria/accounts/eventstore/bbolt"
	"github.com/go-estoria/accounts/eventstore/memory"
	"github.com/go-estoria/accounts/eventstore/retry"
	"github.com/go-estoria/accounts/eventstore/sqlite"
	"github.com/go-estoria/accounts/internal/config"
)

// openStore opens the configured event store. The returned close function
// releases it and is never nil.
func openStore(ctx context.Context, cfg config.Config) (eventstore.Store, func() error, error) {
	var (
		store   eventstore.Store
		closeFn = func() error { return nil }
	)

	switch cfg.Store {
	case config.StoreMemory:
		s, err := memory.NewEventStore(memory.WithLogger(slog.Default().WithGroup("memory")))
		if err != nil {
			return nil, closeFn, err
		}

		store = s

	case config.StoreSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath, sqlite.WithLogger(slog.Default().WithGroup("sqlite")))
		if err != nil {
			return nil, closeFn, err
		}

		store, closeFn = s, s.Close

	case config.StoreBolt:
		s, err := bbolt.Open(cfg.BoltPath, bbolt.WithLogger(slog.Default().WithGroup("bbolt")))
		if err != nil {
			return nil, closeFn, err
		}

		store, closeFn = s, s.Close

	default:
		return nil, closeFn, fmt.Errorf("unknown store %q", cfg.Store)
	}

	if !cfg.Retries() {
		return store, closeFn, nil
	}

	retrying, err := retry.New(store,
		retry.WithMaxTries(cfg.RetryMaxTries),
		retry.WithMaxElapsedTime(cfg.RetryMaxElapsed),
		retry.WithLogger(slog.Default().WithGroup("retry")),
	)
	if err != nil {
		_ = closeFn()
		return nil, func() error { return nil }, err
	}

	return retrying, closeFn, nil
}
