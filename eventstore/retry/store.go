// Package retry wraps an event store so that transient read and append
// failures are retried with exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-estoria/accounts"
	"github.com/go-estoria/accounts/eventstore"
)

// EventStore retries the operations of an inner store. Appends are safe to
// retry because stores treat a batch whose first event ID is already stored
// as appended.
type EventStore struct {
	inner      eventstore.Store
	maxTries   uint
	maxElapsed time.Duration
	newBackOff func() backoff.BackOff
	log        accounts.Logger
}

var _ eventstore.Store = (*EventStore)(nil)

// New wraps inner.
func New(inner eventstore.Store, opts ...Option) (*EventStore, error) {
	if inner == nil {
		return nil, eventstore.InitializationError{Err: errors.New("inner event store is required")}
	}

	store := &EventStore{
		inner:      inner,
		maxTries:   5,
		maxElapsed: 10 * time.Second,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
		log: accounts.DefaultLogger("retry"),
	}

	for _, opt := range opts {
		if err := opt(store); err != nil {
			return nil, eventstore.InitializationError{Err: err}
		}
	}

	return store, nil
}

// AppendStream appends events, retrying transient failures with the same event IDs.
func (s *EventStore) AppendStream(ctx context.Context, stream string, events []*eventstore.WritableEvent, opts eventstore.AppendStreamOptions) error {
	if err := eventstore.ValidateAppend(stream, events); err != nil {
		return err
	}

	_, err := retry(ctx, s, "append stream", func() (struct{}, error) {
		return struct{}{}, s.inner.AppendStream(ctx, stream, events, opts)
	})

	return err
}

// ReadStream opens a stream iterator whose Next calls are retried.
func (s *EventStore) ReadStream(ctx context.Context, stream string, opts eventstore.ReadStreamOptions) (eventstore.StreamIterator, error) {
	iter, err := retry(ctx, s, "read stream", func() (eventstore.StreamIterator, error) {
		return s.inner.ReadStream(ctx, stream, opts)
	})
	if err != nil {
		return nil, err
	}

	return &streamIterator{store: s, inner: iter}, nil
}

type streamIterator struct {
	store *EventStore
	inner eventstore.StreamIterator
}

// Next retries the inner Next; a failed Next does not advance the inner iterator.
func (i *streamIterator) Next(ctx context.Context) (*eventstore.Event, error) {
	return retry(ctx, i.store, "read next event", func() (*eventstore.Event, error) {
		return i.inner.Next(ctx)
	})
}

func (i *streamIterator) Close(ctx context.Context) error {
	return i.inner.Close(ctx)
}

func retry[T any](ctx context.Context, s *EventStore, op string, fn func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		result, err := fn()
		if err != nil && IsPermanent(err) {
			return result, backoff.Permanent(err)
		}

		return result, err
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(s.maxTries),
		backoff.WithMaxElapsedTime(s.maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Warn("retrying event store operation", "operation", op, "error", err, "backoff", next)
		}),
	)
}

// IsPermanent reports whether err cannot be cured by retrying.
func IsPermanent(err error) bool {
	var (
		mismatch    eventstore.StreamVersionMismatchError
		marshal     eventstore.EventMarshalingError
		unmarshal   eventstore.EventUnmarshalingError
		decodeError accounts.DecodeError
	)

	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, eventstore.ErrStreamNotFound),
		errors.Is(err, eventstore.ErrEndOfEventStream),
		errors.Is(err, eventstore.ErrStreamIteratorClosed),
		errors.As(err, &mismatch),
		errors.As(err, &marshal),
		errors.As(err, &unmarshal),
		errors.As(err, &decodeError):
		return true
	default:
		return false
	}
}
