package sqlite

import (
	"context"

	"github.com/go-estoria/accounts/eventstore"
)

// streamIterator pages through a stream, holding at most one batch of events
// and no open rows between calls to Next.
type streamIterator struct {
	store     *EventStore
	stream    string
	direction eventstore.ReadStreamDirection

	// cursor is the exclusive version bound of the next batch
	cursor    int64
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
		if i.exhausted {
			return nil, eventstore.ErrEndOfEventStream
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		size := i.store.batchSize
		if i.limit > 0 {
			size = int(min(int64(size), i.limit-i.retrieved))
		}

		batch, err := i.store.readBatch(ctx, i.stream, i.direction, i.cursor, size)
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
	i.cursor = evt.StreamVersion
	i.retrieved++

	return evt, nil
}

func (i *streamIterator) Close(_ context.Context) error {
	i.closed = true
	i.batch = nil
	return nil
}
