// Package eventstore defines the append-only, per-stream event log that
// account repositories are built on.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

// A Store can read and write events to a stream.
type Store interface {
	StreamReader
	StreamWriter
}

// A StreamReader can read events from a stream.
type StreamReader interface {
	// ReadStream creates an event stream iterator for reading events from a stream.
	// The starting point, direction, and number of events to read can be specified in the options.
	// It returns ErrStreamNotFound if the stream has no events.
	ReadStream(ctx context.Context, stream string, opts ReadStreamOptions) (StreamIterator, error)
}

// A StreamIterator reads events from a stream.
type StreamIterator interface {
	// Next reads the next event from the stream.
	// It returns ErrEndOfEventStream when there are no more events.
	// A failed call does not advance the iterator.
	Next(ctx context.Context) (*Event, error)

	// Close closes the stream iterator.
	Close(ctx context.Context) error
}

// ReadStreamOptions are options for reading an event stream.
type ReadStreamOptions struct {
	// Offset is the number of events to skip from the starting end of the stream.
	//
	// Default: 0 (beginning of stream)
	Offset int64

	// Count is the number of events to read.
	//
	// Default: 0 (read all events)
	Count int64

	// Direction is the direction to read the stream.
	//
	// Default: Forward
	Direction ReadStreamDirection
}

// A ReadStreamDirection specifies the direction in which to read a stream.
type ReadStreamDirection int

const (
	// Forward reads the stream from the beginning to the end.
	Forward ReadStreamDirection = iota

	// Reverse reads the stream from the end to the beginning.
	Reverse
)

// A StreamWriter appends events to an event stream.
type StreamWriter interface {
	// AppendStream atomically appends events to an event stream.
	// The expected version of the stream can be specified in the options.
	//
	// If the first event's ID is already stored in the stream, the batch is
	// treated as already appended and nil is returned, so that a retried append
	// whose first attempt committed does not duplicate events.
	AppendStream(ctx context.Context, stream string, events []*WritableEvent, opts AppendStreamOptions) error
}

// AnyVersion disables the optimistic concurrency check on append.
const AnyVersion int64 = 0

// AppendStreamOptions are options for appending events to a stream.
type AppendStreamOptions struct {
	// ExpectVersion specifies the expected latest version of the stream
	// when appending events.
	//
	// Default: AnyVersion (no expectation)
	ExpectVersion int64
}

// An Event is an event that has been read from an event store.
type Event struct {
	ID            uuid.UUID `json:"event_id"`
	StreamName    string    `json:"stream"`
	StreamVersion int64     `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
	Type          string    `json:"event_type"`
	Data          []byte    `json:"data"`
}

// A WritableEvent is an event that can be written to an event store.
type WritableEvent struct {
	ID   uuid.UUID
	Type string
	Data []byte
}

// ValidateAppend checks the arguments common to every AppendStream implementation.
func ValidateAppend(stream string, events []*WritableEvent) error {
	switch {
	case stream == "":
		return errors.New("stream name is required")
	case len(events) == 0:
		return errors.New("at least one event is required")
	}

	for i, evt := range events {
		switch {
		case evt == nil:
			return fmt.Errorf("event %d is nil", i)
		case evt.ID.IsNil():
			return fmt.Errorf("event %d has no ID", i)
		case evt.Type == "":
			return fmt.Errorf("event %d has no type", i)
		}
	}

	return nil
}

type EventMarshalingError struct {
	Stream  string
	EventID uuid.UUID
	Err     error
}

func (e EventMarshalingError) Error() string {
	return "marshaling event: " + e.Err.Error()
}

func (e EventMarshalingError) Unwrap() error {
	return e.Err
}

type EventUnmarshalingError struct {
	Stream  string
	EventID uuid.UUID
	Err     error
}

func (e EventUnmarshalingError) Error() string {
	return "unmarshaling event: " + e.Err.Error()
}

func (e EventUnmarshalingError) Unwrap() error {
	return e.Err
}

// StreamVersionMismatchError is returned when the expected stream version does not match the actual stream version.
type StreamVersionMismatchError struct {
	Stream          string
	EventID         uuid.UUID
	ExpectedVersion int64
	ActualVersion   int64
}

// Error returns the error message.
func (e StreamVersionMismatchError) Error() string {
	return fmt.Sprintf("stream version mismatch: expected version %d, got version %d",
		e.ExpectedVersion,
		e.ActualVersion)
}

// InitializationError is returned when an event store fails to initialize.
type InitializationError struct {
	Err error
}

// Error returns the error message.
func (e InitializationError) Error() string {
	return "initializing event store: " + e.Err.Error()
}

func (e InitializationError) Unwrap() error {
	return e.Err
}

var (
	ErrEndOfEventStream     = errors.New("end of event stream")
	ErrStreamNotFound       = errors.New("stream not found")
	ErrStreamIteratorClosed = errors.New("stream iterator closed")
)
