package bbolt

import (
	"errors"
	"time"

	"github.com/go-estoria/accounts"
)

// An EventStoreOption configures an EventStore.
type EventStoreOption func(*EventStore) error

// WithOpenTimeout sets how long Open waits for the file lock.
//
// Default: 1 second
func WithOpenTimeout(timeout time.Duration) EventStoreOption {
	return func(s *EventStore) error {
		if timeout < 0 {
			return errors.New("open timeout cannot be negative")
		}

		s.openTimeout = timeout
		return nil
	}
}

// WithReadBatchSize sets how many events a stream iterator copies per read transaction.
func WithReadBatchSize(size int) EventStoreOption {
	return func(s *EventStore) error {
		if size <= 0 {
			return errors.New("read batch size must be positive")
		}

		s.batchSize = size
		return nil
	}
}

// WithEventMarshaler configures the event store to use a custom event marshaler.
func WithEventMarshaler(marshaler EventMarshaler) EventStoreOption {
	return func(s *EventStore) error {
		if marshaler == nil {
			return errors.New("marshaler cannot be nil")
		}

		s.marshaler = marshaler
		return nil
	}
}

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
