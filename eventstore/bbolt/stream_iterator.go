package bbolt

import (
	"context"

	"github.com/go-estoria/accounts/eventstore"
)

type streamIterator struct {
	store     *EventStore
	stream    string
	direction eventstore.ReadStreamDirection

	// next is the version of the next event to read
	next      int64
	limit     int64
	retrieved int64

	batch     []*eventstore.Event
	exhausted bool
	closed    bool
}

func (i *streamIterator) Next(ctx context.Context) (*eventstore.Event, error) {
	switch {
	case i == nil, i.closed:
		return nil, eventstore.ErrStreamIteratorClosed
	case i.limit > 0 && i.retrieved >= i.limit:
		return nil, eventstore.ErrEndOfEventStream
	}

	if len(i.batch) == 0 {
		if i.exhausted || i.next < 1 {
			return nil, eventstore.ErrEndOfEventStream
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		size := i.store.batchSize
		if i.limit > 0 {
			size = int(min(int64(size), i.limit-i.retrieved))
		}

		batch, err := i.store.readBatch(i.stream, i.direction, i.next, size)
		if err != nil {
			return nil, err
		}

		if len(batch) < size {
			i.exhausted = true
		}

		if len(batch) == 0 {
			return nil, eventstore.ErrEndOfEventStream
		}

		i.batch = batch
	}

	evt := i.batch[0]
	i.batch = i.batch[1:]
	i.retrieved++

	if i.direction == eventstore.Reverse {
		i.next = evt.StreamVersion - 1
	} else {
		i.next = evt.StreamVersion + 1
	}

	return evt, nil
}

func (i *streamIterator) Close(_ context.Context) error {
	i.closed = true
	i.batch = nil
	return nil
}
