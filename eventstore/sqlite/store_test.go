package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-estoria/accounts/eventstore"
	"github.com/go-estoria/accounts/eventstore/sqlite"
	"github.com/go-estoria/accounts/eventstore/storetest"
	"golang.org/x/sync/errgroup"
)

func openStore(t *testing.T, path string, opts ...sqlite.EventStoreOption) *sqlite.EventStore {
	t.Helper()

	store, err := sqlite.Open(context.Background(), path, opts...)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestEventStore_Conformance(t *testing.T) {
	for _, tt := range []struct {
		name     string
		haveOpts []sqlite.EventStoreOption
		havePath func(t *testing.T) string
	}{
		{
			name:     "file database",
			havePath: func(t *testing.T) string { return filepath.Join(t.TempDir(), "events.db") },
		},
		{
			name:     "file database with single-event batches",
			haveOpts: []sqlite.EventStoreOption{sqlite.WithReadBatchSize(1)},
			havePath: func(t *testing.T) string { return filepath.Join(t.TempDir(), "events.db") },
		},
		{
			name:     "in-memory database",
			havePath: func(*testing.T) string { return sqlite.MemoryPath },
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			storetest.RunConformance(t, func(t *testing.T) eventstore.Store {
				return openStore(t, tt.havePath(t), tt.haveOpts...)
			})
		})
	}
}

func TestOpen(t *testing.T) {
	for _, tt := range []struct {
		name     string
		havePath string
		haveOpts []sqlite.EventStoreOption
	}{
		{name: "empty path", havePath: "  "},
		{name: "path with query", havePath: "events.db?mode=ro"},
		{name: "zero read batch size", havePath: sqlite.MemoryPath, haveOpts: []sqlite.EventStoreOption{sqlite.WithReadBatchSize(0)}},
		{name: "negative busy timeout", havePath: sqlite.MemoryPath, haveOpts: []sqlite.EventStoreOption{sqlite.WithBusyTimeout(-time.Second)}},
		{name: "nil clock", havePath: sqlite.MemoryPath, haveOpts: []sqlite.EventStoreOption{sqlite.WithClock(nil)}},
		{name: "nil logger", havePath: sqlite.MemoryPath, haveOpts: []sqlite.EventStoreOption{sqlite.WithLogger(nil)}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			store, err := sqlite.Open(context.Background(), tt.havePath, tt.haveOpts...)
			if store != nil {
				t.Errorf("expected nil store, got %v", store)
			}

			var initErr eventstore.InitializationError
			if !errors.As(err, &initErr) {
				t.Errorf("unexpected error: wanted InitializationError got %v", err)
			}
		})
	}
}

func TestEventStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	at := time.Date(2024, 5, 1, 12, 30, 0, 123_000_000, time.UTC)

	first, err := sqlite.Open(context.Background(), path, sqlite.WithClock(func() time.Time { return at }))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	events := []*eventstore.WritableEvent{
		storetest.NewEvent(t, "Added", `{"name":"Alice"}`),
		storetest.NewEvent(t, "Deleted", `"id"`),
	}
	if err := first.AppendStream(context.Background(), "accounts", events, eventstore.AppendStreamOptions{}); err != nil {
		t.Fatalf("AppendStream() error: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// migrations must not run twice
	second := openStore(t, path)

	got := storetest.ReadAll(t, second, "accounts", eventstore.ReadStreamOptions{})
	if len(got) != 2 {
		t.Fatalf("unexpected number of events: wanted 2 got %d", len(got))
	}
	for i, evt := range got {
		if evt.ID != events[i].ID {
			t.Errorf("unexpected ID at %d: wanted %s got %s", i, events[i].ID, evt.ID)
		}
		if !evt.Timestamp.Equal(at) {
			t.Errorf("unexpected timestamp at %d: wanted %s got %s", i, at, evt.Timestamp)
		}
	}
}

func TestEventStore_ConcurrentAppends(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "events.db"))

	g, ctx := errgroup.WithContext(context.Background())
	for i := range 20 {
		g.Go(func() error {
			return store.AppendStream(ctx, "accounts", []*eventstore.WritableEvent{
				storetest.NewEvent(t, "Added", fmt.Sprint(i)),
			}, eventstore.AppendStreamOptions{})
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("AppendStream() error: %v", err)
	}

	got := storetest.ReadAll(t, store, "accounts", eventstore.ReadStreamOptions{})
	if len(got) != 20 {
		t.Fatalf("unexpected number of events: wanted 20 got %d", len(got))
	}
	for i, evt := range got {
		if evt.StreamVersion != int64(i+1) {
			t.Errorf("unexpected version at %d: %d", i, evt.StreamVersion)
		}
	}
}

func TestEventStore_Close(t *testing.T) {
	var nilStore *sqlite.EventStore
	if err := nilStore.Close(); err != nil {
		t.Errorf("unexpected Close() error on nil store: %v", err)
	}
}
