package retry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-estoria/accounts/eventstore"
	"github.com/go-estoria/accounts/eventstore/memory"
	"github.com/go-estoria/accounts/eventstore/retry"
	"github.com/go-estoria/accounts/eventstore/storetest"
)

var errTransient = errors.New("database is locked")

// flakyStore fails the first failures calls of each operation with err.
type flakyStore struct {
	eventstore.Store

	failures int
	err      error

	appendCalls int
	readCalls   int
	nextCalls   int
}

func (s *flakyStore) AppendStream(ctx context.Context, stream string, events []*eventstore.WritableEvent, opts eventstore.AppendStreamOptions) error {
	s.appendCalls++
	if s.appendCalls <= s.failures {
		// the first attempt commits before failing, as a lost acknowledgement would
		if s.appendCalls == 1 {
			_ = s.Store.AppendStream(ctx, stream, events, opts)
		}
		return s.err
	}

	return s.Store.AppendStream(ctx, stream, events, opts)
}

func (s *flakyStore) ReadStream(ctx context.Context, stream string, opts eventstore.ReadStreamOptions) (eventstore.StreamIterator, error) {
	s.readCalls++
	if s.readCalls <= s.failures {
		return nil, s.err
	}

	iter, err := s.Store.ReadStream(ctx, stream, opts)
	if err != nil {
		return nil, err
	}

	return &flakyIterator{StreamIterator: iter, store: s}, nil
}

type flakyIterator struct {
	eventstore.StreamIterator
	store *flakyStore
}

func (i *flakyIterator) Next(ctx context.Context) (*eventstore.Event, error) {
	i.store.nextCalls++
	if i.store.nextCalls%2 == 1 && i.store.nextCalls <= 2*i.store.failures {
		return nil, i.store.err
	}

	return i.StreamIterator.Next(ctx)
}

func newFlakyStore(t *testing.T, failures int, err error) *flakyStore {
	t.Helper()

	inner, innerErr := memory.NewEventStore()
	if innerErr != nil {
		t.Fatalf("NewEventStore() error: %v", innerErr)
	}

	return &flakyStore{Store: inner, failures: failures, err: err}
}

func newRetryStore(t *testing.T, inner eventstore.Store, opts ...retry.Option) *retry.EventStore {
	t.Helper()

	opts = append([]retry.Option{
		retry.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	}, opts...)

	store, err := retry.New(inner, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return store
}

func TestEventStore_AppendStream(t *testing.T) {
	for _, tt := range []struct {
		name            string
		haveFailures    int
		haveErr         error
		haveMaxTries    uint
		wantAppendCalls int
		wantEvents      int
		wantErr         error
	}{
		{
			name:            "succeeds without retrying",
			haveErr:         errTransient,
			haveMaxTries:    3,
			wantAppendCalls: 1,
			wantEvents:      1,
		},
		{
			name:            "retries transient failures without duplicating events",
			haveFailures:    2,
			haveErr:         errTransient,
			haveMaxTries:    3,
			wantAppendCalls: 3,
			wantEvents:      1,
		},
		{
			name:            "gives up after max tries",
			haveFailures:    5,
			haveErr:         errTransient,
			haveMaxTries:    3,
			wantAppendCalls: 3,
			wantEvents:      1,
			wantErr:         errTransient,
		},
		{
			name:            "does not retry a version mismatch",
			haveFailures:    5,
			haveErr:         eventstore.StreamVersionMismatchError{ExpectedVersion: 1, ActualVersion: 2},
			haveMaxTries:    3,
			wantAppendCalls: 1,
			wantEvents:      1,
			wantErr:         eventstore.StreamVersionMismatchError{ExpectedVersion: 1, ActualVersion: 2},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			inner := newFlakyStore(t, tt.haveFailures, tt.haveErr)
			store := newRetryStore(t, inner, retry.WithMaxTries(tt.haveMaxTries))

			err := store.AppendStream(context.Background(), "accounts", []*eventstore.WritableEvent{
				storetest.NewEvent(t, "Added", "1"),
			}, eventstore.AppendStreamOptions{})

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("unexpected error: wanted %v got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if inner.appendCalls != tt.wantAppendCalls {
				t.Errorf("unexpected append calls: wanted %d got %d", tt.wantAppendCalls, inner.appendCalls)
			}

			got := storetest.ReadAll(t, inner.Store, "accounts", eventstore.ReadStreamOptions{})
			if len(got) != tt.wantEvents {
				t.Errorf("unexpected number of stored events: wanted %d got %d", tt.wantEvents, len(got))
			}
		})
	}
}

func TestEventStore_AppendStream_InvalidIsNotRetried(t *testing.T) {
	inner := newFlakyStore(t, 0, nil)
	store := newRetryStore(t, inner)

	if err := store.AppendStream(context.Background(), "accounts", nil, eventstore.AppendStreamOptions{}); err == nil {
		t.Fatal("expected error, got nil")
	}
	if inner.appendCalls != 0 {
		t.Errorf("unexpected append calls: %d", inner.appendCalls)
	}
}

func TestEventStore_ReadStream(t *testing.T) {
	inner := newFlakyStore(t, 0, errTransient)
	for _, data := range []string{"1", "2", "3"} {
		if err := inner.Store.AppendStream(context.Background(), "accounts", []*eventstore.WritableEvent{
			storetest.NewEvent(t, "Added", data),
		}, eventstore.AppendStreamOptions{}); err != nil {
			t.Fatalf("AppendStream() error: %v", err)
		}
	}
	inner.failures = 2

	store := newRetryStore(t, inner, retry.WithMaxTries(3))

	got := storetest.ReadAll(t, store, "accounts", eventstore.ReadStreamOptions{})
	if len(got) != 3 {
		t.Fatalf("unexpected number of events: wanted 3 got %d", len(got))
	}
	for i, want := range []string{"1", "2", "3"} {
		if string(got[i].Data) != want {
			t.Errorf("unexpected data at %d: wanted %s got %s", i, want, got[i].Data)
		}
	}
	if inner.readCalls != 3 {
		t.Errorf("unexpected read calls: wanted 3 got %d", inner.readCalls)
	}
}

func TestEventStore_ReadStream_MissingStreamIsNotRetried(t *testing.T) {
	inner := newFlakyStore(t, 0, nil)
	store := newRetryStore(t, inner)

	if _, err := store.ReadStream(context.Background(), "missing", eventstore.ReadStreamOptions{}); !errors.Is(err, eventstore.ErrStreamNotFound) {
		t.Errorf("unexpected error: wanted %v got %v", eventstore.ErrStreamNotFound, err)
	}
	if inner.readCalls != 1 {
		t.Errorf("unexpected read calls: wanted 1 got %d", inner.readCalls)
	}
}

func TestNew(t *testing.T) {
	inner := newFlakyStore(t, 0, nil)

	for _, tt := range []struct {
		name      string
		haveInner eventstore.Store
		haveOpts  []retry.Option
	}{
		{name: "nil inner store"},
		{name: "zero max tries", haveInner: inner, haveOpts: []retry.Option{retry.WithMaxTries(0)}},
		{name: "zero max elapsed", haveInner: inner, haveOpts: []retry.Option{retry.WithMaxElapsedTime(0)}},
		{name: "nil backoff", haveInner: inner, haveOpts: []retry.Option{retry.WithBackOff(nil)}},
		{name: "nil logger", haveInner: inner, haveOpts: []retry.Option{retry.WithLogger(nil)}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var initErr eventstore.InitializationError
			if _, err := retry.New(tt.haveInner, tt.haveOpts...); !errors.As(err, &initErr) {
				t.Errorf("unexpected error: wanted InitializationError got %v", err)
			}
		})
	}
}

func TestIsPermanent(t *testing.T) {
	for _, tt := range []struct {
		name          string
		haveErr       error
		wantPermanent bool
	}{
		{name: "transient", haveErr: errTransient},
		{name: "cancelled", haveErr: context.Canceled, wantPermanent: true},
		{name: "end of stream", haveErr: eventstore.ErrEndOfEventStream, wantPermanent: true},
		{name: "unmarshaling", haveErr: eventstore.EventUnmarshalingError{Err: errTransient}, wantPermanent: true},
		{name: "wrapped mismatch", haveErr: errors.Join(errTransient, eventstore.StreamVersionMismatchError{}), wantPermanent: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := retry.IsPermanent(tt.haveErr); got != tt.wantPermanent {
				t.Errorf("unexpected result: wanted %v got %v", tt.wantPermanent, got)
			}
		})
	}
}
