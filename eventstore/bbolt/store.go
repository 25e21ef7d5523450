// Package bbolt provides a BoltDB-backed event store.
package bbolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-estoria/accounts"
	"github.com/go-estoria/accounts/eventstore"
	"go.etcd.io/bbolt"
)

// An EventMarshaler marshals stored events to and from their document form.
type EventMarshaler = accounts.Marshaler[eventstore.Event, *eventstore.Event]

var (
	streamsBucket = []byte("streams")
	eventsBucket  = []byte("events")
	idsBucket     = []byte("ids")
)

// EventStore keeps each stream in its own bucket under a top-level streams
// bucket. Events are keyed by big-endian version; a second bucket indexes
// versions by event ID. The stream bucket's sequence is the stream version.
type EventStore struct {
	db          *bbolt.DB
	openTimeout time.Duration
	batchSize   int
	marshaler   EventMarshaler
	now         func() time.Time
	log         accounts.Logger
}

var _ eventstore.Store = (*EventStore)(nil)

// Open opens the BoltDB file at path, creating it if needed.
func Open(path string, opts ...EventStoreOption) (*EventStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, eventstore.InitializationError{Err: errors.New("storage path is required")}
	}

	store := &EventStore{
		openTimeout: time.Second,
		batchSize:   256,
		marshaler:   accounts.JSONMarshaler[eventstore.Event]{},
		now:         time.Now,
		log:         accounts.DefaultLogger("bbolt"),
	}

	for _, opt := range opts {
		if err := opt(store); err != nil {
			return nil, eventstore.InitializationError{Err: fmt.Errorf("applying option: %w", err)}
		}
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: store.openTimeout})
	if err != nil {
		return nil, eventstore.InitializationError{Err: fmt.Errorf("opening storage db: %w", err)}
	}

	store.db = db
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, eventstore.InitializationError{Err: err}
	}

	store.log.Info("opened bbolt event store", "path", cleanPath)

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *EventStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// AppendStream appends events to a stream in a single update transaction.
func (s *EventStore) AppendStream(ctx context.Context, stream string, events []*eventstore.WritableEvent, opts eventstore.AppendStreamOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := eventstore.ValidateAppend(stream, events); err != nil {
		return err
	}

	appended := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket(streamsBucket).CreateBucketIfNotExists([]byte(stream))
		if err != nil {
			return fmt.Errorf("creating stream bucket: %w", err)
		}

		eventBucket, err := bucket.CreateBucketIfNotExists(eventsBucket)
		if err != nil {
			return fmt.Errorf("creating events bucket: %w", err)
		}

		idBucket, err := bucket.CreateBucketIfNotExists(idsBucket)
		if err != nil {
			return fmt.Errorf("creating ids bucket: %w", err)
		}

		if idBucket.Get(events[0].ID.Bytes()) != nil {
			return nil
		}

		version := int64(bucket.Sequence())
		if opts.ExpectVersion > 0 && opts.ExpectVersion != version {
			return eventstore.StreamVersionMismatchError{
				Stream:          stream,
				EventID:         events[0].ID,
				ExpectedVersion: opts.ExpectVersion,
				ActualVersion:   version,
			}
		}

		now := s.now()
		for i, writableEvent := range events {
			event := &eventstore.Event{
				ID:            writableEvent.ID,
				StreamName:    stream,
				StreamVersion: version + int64(i) + 1,
				Timestamp:     now,
				Type:          writableEvent.Type,
				Data:          writableEvent.Data,
			}

			data, err := s.marshaler.Marshal(event)
			if err != nil {
				return eventstore.EventMarshalingError{Stream: stream, EventID: event.ID, Err: err}
			}

			key := versionKey(event.StreamVersion)
			if err := eventBucket.Put(key, data); err != nil {
				return fmt.Errorf("putting event %s: %w", event.ID, err)
			}

			if err := idBucket.Put(event.ID.Bytes(), key); err != nil {
				return fmt.Errorf("indexing event %s: %w", event.ID, err)
			}
		}

		appended = true
		return bucket.SetSequence(uint64(version) + uint64(len(events)))
	})
	if err != nil {
		return err
	}

	if appended {
		s.log.Debug("appended events", "stream", stream, "events", len(events))
	} else {
		s.log.Debug("events already appended", "stream", stream, "event_id", events[0].ID)
	}

	return nil
}

// ReadStream reads events from a stream. Each batch is copied out of its own
// read transaction, so no transaction stays open between calls to Next.
func (s *EventStore) ReadStream(ctx context.Context, stream string, opts eventstore.ReadStreamOptions) (eventstore.StreamIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var version int64
	if err := s.db.View(func(tx *bbolt.Tx) error {
		if bucket := tx.Bucket(streamsBucket).Bucket([]byte(stream)); bucket != nil {
			version = int64(bucket.Sequence())
		}

		return nil
	}); err != nil {
		return nil, fmt.Errorf("reading stream version: %w", err)
	}

	if version == 0 {
		return nil, eventstore.ErrStreamNotFound
	}

	offset := max(opts.Offset, 0)
	next := offset + 1
	if opts.Direction == eventstore.Reverse {
		next = version - offset
	}

	return &streamIterator{
		store:     s,
		stream:    stream,
		next:      next,
		direction: opts.Direction,
		limit:     max(opts.Count, 0),
	}, nil
}

// readBatch reads up to size events starting at version next and moving in direction.
func (s *EventStore) readBatch(stream string, direction eventstore.ReadStreamDirection, next int64, size int) ([]*eventstore.Event, error) {
	batch := make([]*eventstore.Event, 0, size)

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(streamsBucket).Bucket([]byte(stream))
		if bucket == nil {
			return eventstore.ErrStreamNotFound
		}

		eventBucket := bucket.Bucket(eventsBucket)
		for v := next; v > 0 && len(batch) < size; {
			data := eventBucket.Get(versionKey(v))
			if data == nil {
				break
			}

			event := &eventstore.Event{}
			if err := s.marshaler.Unmarshal(data, event); err != nil {
				return eventstore.EventUnmarshalingError{Stream: stream, Err: err}
			}

			batch = append(batch, event)

			if direction == eventstore.Reverse {
				v--
			} else {
				v++
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return batch, nil
}

func (s *EventStore) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(streamsBucket); err != nil {
			return fmt.Errorf("creating streams bucket: %w", err)
		}

		return nil
	})
}

func versionKey(version int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(version))
	return key
}
