package accounts

import (
	"errors"
	"fmt"

	"github.com/go-estoria/accounts/eventstore"
	"github.com/gofrs/uuid/v5"
)

// An Envelope is the unit of durable storage for an account event:
// a unique event ID, the wire type tag and the encoded payload.
type Envelope struct {
	ID   uuid.UUID
	Type string
	Data []byte
}

// NewEnvelope encodes evt with codec and wraps it with a new time-ordered ID.
// UnrecognizedEvent cannot be enveloped.
func NewEnvelope(codec Codec, evt Event) (Envelope, error) {
	var (
		data []byte
		err  error
	)

	switch e := evt.(type) {
	case AccountAdded:
		data, err = codec.EncodeAccount(e.Account)
	case AccountUpdated:
		data, err = codec.EncodeAccount(e.Account)
	case AccountDeleted:
		data, err = codec.EncodeID(e.ID)
	case nil:
		return Envelope{}, errors.New("event is required")
	default:
		return Envelope{}, fmt.Errorf("cannot write %s event", evt.Kind())
	}

	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s event: %w", evt.Kind(), err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Envelope{}, fmt.Errorf("generating event ID: %w", err)
	}

	return Envelope{ID: id, Type: evt.Kind().String(), Data: data}, nil
}

// EnvelopeFromEvent wraps an event read from an event store.
func EnvelopeFromEvent(evt *eventstore.Event) Envelope {
	return Envelope{ID: evt.ID, Type: evt.Type, Data: evt.Data}
}

// Kind resolves the envelope's type tag.
func (e Envelope) Kind() EventKind {
	return ParseEventKind(e.Type)
}

// Decode decodes the envelope's payload according to its kind.
// An unrecognized tag decodes to an UnrecognizedEvent without error; a payload
// that does not decode is returned as a DecodeError.
func (e Envelope) Decode(codec Codec) (Event, error) {
	switch e.Kind() {
	case EventKindAdded:
		account, err := codec.DecodeAccount(e.Data)
		if err != nil {
			return nil, e.decodeError(err)
		}

		return AccountAdded{Account: account}, nil

	case EventKindUpdated:
		account, err := codec.DecodeAccount(e.Data)
		if err != nil {
			return nil, e.decodeError(err)
		}

		return AccountUpdated{Account: account}, nil

	case EventKindDeleted:
		id, err := codec.DecodeID(e.Data)
		if err != nil {
			return nil, e.decodeError(err)
		}

		return AccountDeleted{ID: id}, nil

	default:
		return UnrecognizedEvent{Tag: e.Type}, nil
	}
}

// WritableEvent converts the envelope for appending to an event store.
func (e Envelope) WritableEvent() *eventstore.WritableEvent {
	return &eventstore.WritableEvent{ID: e.ID, Type: e.Type, Data: e.Data}
}

func (e Envelope) decodeError(err error) DecodeError {
	return DecodeError{EventType: e.Type, EventID: e.ID.String(), Err: err}
}
