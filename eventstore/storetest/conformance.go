// Package storetest provides a reusable conformance suite for event store
// implementations. RunConformance checks the behavior every eventstore.Store
// must share:
//
//   - appended events read back in order with contiguous versions
//   - expected-version appends succeed or fail with StreamVersionMismatchError
//   - re-appending a batch whose first event ID is stored is a no-op
//   - offset, count and direction read options
//   - missing streams report ErrStreamNotFound
//   - closed iterators report ErrStreamIteratorClosed
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-estoria/accounts/eventstore"
	"github.com/gofrs/uuid/v5"
)

// RunConformance runs the conformance suite against stores created by newStore.
// Each subtest gets a fresh store.
func RunConformance(t *testing.T, newStore func(t *testing.T) eventstore.Store) {
	t.Helper()

	t.Run("appends and reads back in order", func(t *testing.T) {
		store := newStore(t)
		appendEvents(t, store, "s1", eventstore.AnyVersion, NewEvent(t, "Added", "1"), NewEvent(t, "Updated", "2"))
		appendEvents(t, store, "s1", eventstore.AnyVersion, NewEvent(t, "Deleted", "3"))
		appendEvents(t, store, "s2", eventstore.AnyVersion, NewEvent(t, "Added", "other"))

		got := ReadAll(t, store, "s1", eventstore.ReadStreamOptions{})
		assertData(t, got, "1", "2", "3")
		for i, evt := range got {
			if evt.StreamVersion != int64(i+1) {
				t.Errorf("unexpected version at %d: wanted %d got %d", i, i+1, evt.StreamVersion)
			}
			if evt.StreamName != "s1" {
				t.Errorf("unexpected stream name: %s", evt.StreamName)
			}
			if evt.Timestamp.IsZero() {
				t.Errorf("event %d has no timestamp", i)
			}
		}
		if got[0].Type != "Added" || got[2].Type != "Deleted" {
			t.Errorf("unexpected event types: %s, %s", got[0].Type, got[2].Type)
		}
	})

	t.Run("checks the expected version", func(t *testing.T) {
		store := newStore(t)
		appendEvents(t, store, "s1", eventstore.AnyVersion, NewEvent(t, "Added", "1"), NewEvent(t, "Updated", "2"))
		appendEvents(t, store, "s1", 2, NewEvent(t, "Updated", "3"))

		for _, expect := range []int64{1, 2, 4} {
			err := store.AppendStream(context.Background(), "s1", []*eventstore.WritableEvent{NewEvent(t, "Updated", "x")},
				eventstore.AppendStreamOptions{ExpectVersion: expect})

			var mismatch eventstore.StreamVersionMismatchError
			if !errors.As(err, &mismatch) {
				t.Fatalf("ExpectVersion %d: unexpected error: wanted StreamVersionMismatchError got %v", expect, err)
			}
			if mismatch.ExpectedVersion != expect || mismatch.ActualVersion != 3 {
				t.Errorf("ExpectVersion %d: unexpected mismatch %+v", expect, mismatch)
			}
		}

		assertData(t, ReadAll(t, store, "s1", eventstore.ReadStreamOptions{}), "1", "2", "3")
	})

	t.Run("treats a re-appended batch as already appended", func(t *testing.T) {
		store := newStore(t)
		batch := []*eventstore.WritableEvent{NewEvent(t, "Added", "1"), NewEvent(t, "Updated", "2")}
		appendEvents(t, store, "s1", eventstore.AnyVersion, batch...)
		appendEvents(t, store, "s1", eventstore.AnyVersion, batch...)
		appendEvents(t, store, "s1", 1, batch...)

		assertData(t, ReadAll(t, store, "s1", eventstore.ReadStreamOptions{}), "1", "2")
	})

	t.Run("rejects invalid appends", func(t *testing.T) {
		store := newStore(t)
		for name, events := range map[string][]*eventstore.WritableEvent{
			"no events":  nil,
			"nil event":  {nil},
			"no ID":      {{Type: "Added", Data: []byte("1")}},
			"no type":    {{ID: uuid.Must(uuid.NewV7()), Data: []byte("1")}},
			"bad second": {NewEvent(t, "Added", "1"), {Data: []byte("2")}},
		} {
			if err := store.AppendStream(context.Background(), "s1", events, eventstore.AppendStreamOptions{}); err == nil {
				t.Errorf("%s: expected error, got nil", name)
			}
		}

		if err := store.AppendStream(context.Background(), "", []*eventstore.WritableEvent{NewEvent(t, "Added", "1")}, eventstore.AppendStreamOptions{}); err == nil {
			t.Error("empty stream name: expected error, got nil")
		}

		if _, err := store.ReadStream(context.Background(), "s1", eventstore.ReadStreamOptions{}); !errors.Is(err, eventstore.ErrStreamNotFound) {
			t.Errorf("invalid appends wrote events: %v", err)
		}
	})

	t.Run("applies read options", func(t *testing.T) {
		store := newStore(t)
		for i := 1; i <= 5; i++ {
			appendEvents(t, store, "s1", eventstore.AnyVersion, NewEvent(t, "Added", fmt.Sprint(i)))
		}

		for _, tt := range []struct {
			name     string
			haveOpts eventstore.ReadStreamOptions
			wantData []string
		}{
			{name: "forward", wantData: []string{"1", "2", "3", "4", "5"}},
			{name: "forward with offset", haveOpts: eventstore.ReadStreamOptions{Offset: 2}, wantData: []string{"3", "4", "5"}},
			{name: "forward with count", haveOpts: eventstore.ReadStreamOptions{Count: 2}, wantData: []string{"1", "2"}},
			{name: "forward with offset and count", haveOpts: eventstore.ReadStreamOptions{Offset: 1, Count: 3}, wantData: []string{"2", "3", "4"}},
			{name: "offset past the end", haveOpts: eventstore.ReadStreamOptions{Offset: 5}},
			{name: "reverse", haveOpts: eventstore.ReadStreamOptions{Direction: eventstore.Reverse}, wantData: []string{"5", "4", "3", "2", "1"}},
			{name: "reverse with offset and count", haveOpts: eventstore.ReadStreamOptions{Direction: eventstore.Reverse, Offset: 1, Count: 2}, wantData: []string{"4", "3"}},
		} {
			t.Run(tt.name, func(t *testing.T) {
				assertData(t, ReadAll(t, store, "s1", tt.haveOpts), tt.wantData...)
			})
		}
	})

	t.Run("reports missing streams", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.ReadStream(context.Background(), "missing", eventstore.ReadStreamOptions{}); !errors.Is(err, eventstore.ErrStreamNotFound) {
			t.Errorf("unexpected error: wanted %v got %v", eventstore.ErrStreamNotFound, err)
		}
	})

	t.Run("reports closed iterators", func(t *testing.T) {
		store := newStore(t)
		appendEvents(t, store, "s1", eventstore.AnyVersion, NewEvent(t, "Added", "1"), NewEvent(t, "Added", "2"))

		iter, err := store.ReadStream(context.Background(), "s1", eventstore.ReadStreamOptions{})
		if err != nil {
			t.Fatalf("ReadStream() error: %v", err)
		}
		if _, err := iter.Next(context.Background()); err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		if err := iter.Close(context.Background()); err != nil {
			t.Fatalf("Close() error: %v", err)
		}
		if _, err := iter.Next(context.Background()); !errors.Is(err, eventstore.ErrStreamIteratorClosed) {
			t.Errorf("unexpected error: wanted %v got %v", eventstore.ErrStreamIteratorClosed, err)
		}
	})

	t.Run("refuses a cancelled append", func(t *testing.T) {
		store := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := store.AppendStream(ctx, "s1", []*eventstore.WritableEvent{NewEvent(t, "Added", "1")}, eventstore.AppendStreamOptions{})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: wanted %v got %v", context.Canceled, err)
		}
	})
}

// NewEvent creates a writable event with a new time-ordered ID.
func NewEvent(t *testing.T, typ, data string) *eventstore.WritableEvent {
	t.Helper()

	return &eventstore.WritableEvent{
		ID:   uuid.Must(uuid.NewV7()),
		Type: typ,
		Data: []byte(data),
	}
}

// ReadAll reads a stream to its end.
func ReadAll(t *testing.T, store eventstore.StreamReader, stream string, opts eventstore.ReadStreamOptions) []*eventstore.Event {
	t.Helper()

	iter, err := store.ReadStream(context.Background(), stream, opts)
	if err != nil {
		t.Fatalf("ReadStream() error: %v", err)
	}
	defer iter.Close(context.Background())

	var events []*eventstore.Event
	for {
		evt, err := iter.Next(context.Background())
		if errors.Is(err, eventstore.ErrEndOfEventStream) {
			break
		} else if err != nil {
			t.Fatalf("Next() error: %v", err)
		}

		events = append(events, evt)
	}

	return events
}

func appendEvents(t *testing.T, store eventstore.StreamWriter, stream string, expect int64, events ...*eventstore.WritableEvent) {
	t.Helper()

	if err := store.AppendStream(context.Background(), stream, events, eventstore.AppendStreamOptions{ExpectVersion: expect}); err != nil {
		t.Fatalf("AppendStream() error: %v", err)
	}
}

func assertData(t *testing.T, events []*eventstore.Event, want ...string) {
	t.Helper()

	if len(events) != len(want) {
		t.Fatalf("unexpected number of events: wanted %d got %d", len(want), len(events))
	}

	for i, evt := range events {
		if string(evt.Data) != want[i] {
			t.Errorf("unexpected data at %d: wanted %q got %q", i, want[i], evt.Data)
		}
	}
}
