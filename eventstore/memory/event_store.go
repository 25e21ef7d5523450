package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-estoria/accounts"
	"github.com/go-estoria/accounts/eventstore"
	"github.com/gofrs/uuid/v5"
)

// An EventMarshaler marshals stored events to and from their document form.
type EventMarshaler = accounts.Marshaler[eventstore.Event, *eventstore.Event]

// EventStore is an in-memory event store. It should not be used in production applications.
type EventStore struct {
	events    map[string][]*eventStoreDocument
	mu        sync.RWMutex
	marshaler EventMarshaler
	now       func() time.Time
	log       accounts.Logger
}

var _ eventstore.Store = (*EventStore)(nil)

// NewEventStore creates a new in-memory event store.
func NewEventStore(opts ...EventStoreOption) (*EventStore, error) {
	eventStore := &EventStore{
		events:    map[string][]*eventStoreDocument{},
		marshaler: accounts.JSONMarshaler[eventstore.Event]{},
		now:       time.Now,
		log:       accounts.DefaultLogger("memory"),
	}

	for _, opt := range opts {
		if err := opt(eventStore); err != nil {
			return nil, eventstore.InitializationError{Err: fmt.Errorf("applying option: %w", err)}
		}
	}

	return eventStore, nil
}

// AppendStream appends events to a stream.
func (s *EventStore) AppendStream(ctx context.Context, stream string, events []*eventstore.WritableEvent, opts eventstore.AppendStreamOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := eventstore.ValidateAppend(stream, events); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.events[stream]

	for _, doc := range docs {
		if doc.ID == events[0].ID {
			s.log.Debug("events already appended", "stream", stream, "event_id", doc.ID)
			return nil
		}
	}

	if opts.ExpectVersion > 0 && opts.ExpectVersion != int64(len(docs)) {
		return eventstore.StreamVersionMismatchError{
			Stream:          stream,
			EventID:         events[0].ID,
			ExpectedVersion: opts.ExpectVersion,
			ActualVersion:   int64(len(docs)),
		}
	}

	now := s.now()
	tx := make([]*eventStoreDocument, 0, len(events))
	for i, writableEvent := range events {
		event := &eventstore.Event{
			ID:            writableEvent.ID,
			StreamName:    stream,
			StreamVersion: int64(len(docs) + i + 1),
			Timestamp:     now,
			Type:          writableEvent.Type,
			Data:          writableEvent.Data,
		}

		data, err := s.marshaler.Marshal(event)
		if err != nil {
			return eventstore.EventMarshalingError{Stream: stream, EventID: event.ID, Err: err}
		}

		tx = append(tx, &eventStoreDocument{ID: event.ID, Data: data})
	}

	s.events[stream] = append(docs, tx...)
	s.log.Debug("appended events", "stream", stream, "events", len(tx), "version", len(s.events[stream]))

	return nil
}

// ReadStream reads events from a stream.
func (s *EventStore) ReadStream(_ context.Context, stream string, opts eventstore.ReadStreamOptions) (eventstore.StreamIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, ok := s.events[stream]
	if !ok || len(docs) == 0 {
		return nil, eventstore.ErrStreamNotFound
	}

	return &streamIterator{
		stream:    stream,
		pending:   window(docs, opts),
		marshaler: s.marshaler,
	}, nil
}

// An EventStoreOption configures an EventStore.
type EventStoreOption func(*EventStore) error

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

type eventStoreDocument struct {
	ID   uuid.UUID
	Data []byte
}
