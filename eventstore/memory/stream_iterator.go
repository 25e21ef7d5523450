package memory

import (
	"context"
	"slices"

	"github.com/go-estoria/accounts/eventstore"
)

// window returns the stored documents a read should yield, in read order.
func window(docs []*eventStoreDocument, opts eventstore.ReadStreamOptions) []*eventStoreDocument {
	offset := int(max(opts.Offset, 0))
	if offset >= len(docs) {
		return nil
	}

	var selected []*eventStoreDocument
	if opts.Direction == eventstore.Reverse {
		selected = slices.Clone(docs[:len(docs)-offset])
		slices.Reverse(selected)
	} else {
		// capped so later appends to the stream never show through
		selected = docs[offset:len(docs):len(docs)]
	}

	if opts.Count > 0 && opts.Count < int64(len(selected)) {
		selected = selected[:opts.Count]
	}

	return selected
}

// A streamIterator yields a fixed window of a stream, taken when the read began.
type streamIterator struct {
	stream    string
	pending   []*eventStoreDocument
	closed    bool
	marshaler EventMarshaler
}

func (i *streamIterator) Next(_ context.Context) (*eventstore.Event, error) {
	switch {
	case i == nil, i.closed:
		return nil, eventstore.ErrStreamIteratorClosed
	case len(i.pending) == 0:
		return nil, eventstore.ErrEndOfEventStream
	}

	doc := i.pending[0]

	event := &eventstore.Event{}
	if err := i.marshaler.Unmarshal(doc.Data, event); err != nil {
		return nil, eventstore.EventUnmarshalingError{Stream: i.stream, EventID: doc.ID, Err: err}
	}

	i.pending = i.pending[1:]

	return event, nil
}

func (i *streamIterator) Close(_ context.Context) error {
	i.closed = true
	i.pending = nil
	return nil
}
