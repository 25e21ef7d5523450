package sqlite

import (
	"errors"
	"time"

	"github.com/go-estoria/accounts"
)

// An EventStoreOption configures an EventStore.
type EventStoreOption func(*EventStore) error

// WithBusyTimeout sets how long a connection waits on a locked database.
//
// Default: 5 seconds
func WithBusyTimeout(timeout time.Duration) EventStoreOption {
	return func(s *EventStore) error {
		if timeout < 0 {
			return errors.New("busy timeout cannot be negative")
		}

		s.busyTimeout = timeout
		return nil
	}
}

// WithReadBatchSize sets how many rows a stream iterator fetches per query.
//
// Default: 256
func WithReadBatchSize(size int) EventStoreOption {
	return func(s *EventStore) error {
		if size <= 0 {
			return errors.New("read batch size must be positive")
		}

		s.batchSize = size
		return nil
	}
}

// WithClock sets the function used to timestamp appended events.
func WithClock(now func() time.Time) EventStoreOption {
	return func(s *EventStore) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}

		s.now = now
		return nil
	}
}

// WithLogger sets the logger for the EventStore.
func WithLogger(log accounts.Logger) EventStoreOption {
	return func(s *EventStore) error {
		if log == nil {
			return errors.New("logger cannot be nil")
		}

		s.log = log
		return nil
	}
}
