package retry

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-estoria/accounts"
)

// An Option configures a retrying EventStore.
type Option func(*EventStore) error

// WithMaxTries sets the maximum number of attempts per operation, including the first.
//
// Default: 5
func WithMaxTries(tries uint) Option {
	return func(s *EventStore) error {
		if tries == 0 {
			return errors.New("max tries must be positive")
		}

		s.maxTries = tries
		return nil
	}
}

// WithMaxElapsedTime bounds the total time spent retrying one operation.
//
// Default: 10 seconds
func WithMaxElapsedTime(d time.Duration) Option {
	return func(s *EventStore) error {
		if d <= 0 {
			return errors.New("max elapsed time must be positive")
		}

		s.maxElapsed = d
		return nil
	}
}

// WithBackOff sets the factory for the backoff policy used by each operation.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(s *EventStore) error {
		if newBackOff == nil {
			return errors.New("backoff factory cannot be nil")
		}

		s.newBackOff = newBackOff
		return nil
	}
}

// WithLogger sets the logger for the EventStore.
func WithLogger(log accounts.Logger) Option {
	return func(s *EventStore) error {
		if log == nil {
			return errors.New("logger cannot be nil")
		}

		s.log = log
		return nil
	}
}
