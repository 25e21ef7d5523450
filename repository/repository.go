// Package repository maintains the account collection: an append-only event
// stream is the source of truth, and an in-memory view rebuilt from it serves reads.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-estoria/accounts"
	"github.com/go-estoria/accounts/eventstore"
	"github.com/go-estoria/accounts/eventstore/projection"
	"github.com/go-estoria/accounts/view"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StreamName is the default name of the account event stream.
const StreamName = "accounts2"

const instrumentationName = "github.com/go-estoria/accounts/repository"

// ErrNotInitialised is returned by writes made before Initialise has succeeded.
var ErrNotInitialised = errors.New("account repository is not initialised")

// A Repository serves the account collection from a view projected from an event stream.
type Repository struct {
	events eventstore.Store
	stream string
	codec  accounts.Codec
	view   *view.View

	// lifecycle is held exclusively by Initialise and shared by writers.
	lifecycle sync.RWMutex
	locks     keyedMutex
	ready     atomic.Bool

	log    accounts.Logger
	tracer trace.Tracer
}

// New creates a Repository over the given event store. Call Initialise before writing.
func New(events eventstore.Store, opts ...Option) (*Repository, error) {
	if events == nil {
		return nil, errors.New("event store is required")
	}

	repo := &Repository{
		events: events,
		stream: StreamName,
		codec:  accounts.NewJSONCodec(),
		view:   view.New(),
		log:    accounts.DefaultLogger("repository"),
		tracer: otel.GetTracerProvider().Tracer(instrumentationName),
	}

	for _, opt := range opts {
		if err := opt(repo); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	return repo, nil
}

// Initialise rebuilds the view by replaying the whole stream from its start.
// A payload that cannot be decoded aborts the replay and is returned; the
// repository then stays uninitialised with an empty view.
func (r *Repository) Initialise(ctx context.Context) (err error) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	ctx, span := r.tracer.Start(ctx, "accounts.Initialise", trace.WithAttributes(
		attribute.String("stream", r.stream),
	))
	defer func() { endSpan(span, err) }()

	r.log.Info("initialising account repository", "stream", r.stream)

	r.ready.Store(false)
	r.view.Reset()

	replay, err := projection.New(r.events, r.stream, projection.WithLogger(r.log))
	if err != nil {
		return fmt.Errorf("creating stream projection: %w", err)
	}

	// fold privately and publish once
	state := map[uuid.UUID]accounts.Account{}
	result, err := replay.Project(ctx, projection.EventHandlerFunc(func(_ context.Context, evt *eventstore.Event) error {
		return r.applyEvent(state, evt)
	}))
	if err != nil {
		return fmt.Errorf("replaying account stream %s: %w", r.stream, err)
	}

	r.view.Replace(state)
	r.ready.Store(true)
	span.SetAttributes(attribute.Int64("events", result.NumProjectedEvents))
	r.log.Info("account repository initialised",
		"stream", r.stream,
		"events", result.NumProjectedEvents,
		"accounts", len(state))

	return nil
}

// applyEvent folds one stored event into state.
func (r *Repository) applyEvent(state map[uuid.UUID]accounts.Account, evt *eventstore.Event) error {
	decoded, err := accounts.EnvelopeFromEvent(evt).Decode(r.codec)
	if err != nil {
		r.log.Error("failed to decode account event", "event_type", evt.Type, "event_id", evt.ID, "error", err)
		return err
	}

	switch e := decoded.(type) {
	case accounts.AccountAdded:
		state[e.Account.ID] = e.Account
		r.log.Debug("replayed account event", "kind", e.Kind(), "account_id", e.Account.ID, "name", e.Account.Name)

	case accounts.AccountUpdated:
		state[e.Account.ID] = e.Account
		r.log.Debug("replayed account event", "kind", e.Kind(), "account_id", e.Account.ID, "name", e.Account.Name)

	case accounts.AccountDeleted:
		removed := state[e.ID]
		delete(state, e.ID)
		r.log.Debug("replayed account event", "kind", e.Kind(), "account_id", e.ID, "name", removed.Name)

	case accounts.UnrecognizedEvent:
		r.log.Warn("unable to process event - unknown event type", "event_type", e.Tag, "event_id", evt.ID)
	}

	return nil
}

// GetAllAccounts returns a point-in-time snapshot of every account.
func (r *Repository) GetAllAccounts() []accounts.Account {
	return r.view.GetAll()
}

// GetAccount returns the account with the given ID.
func (r *Repository) GetAccount(id uuid.UUID) (accounts.Account, bool) {
	return r.view.Get(id)
}

// NumberAccounts returns the number of accounts.
func (r *Repository) NumberAccounts() int {
	return r.view.Len()
}

// AddOrUpdate records account as Added if its ID is new or as Updated if it
// differs from the current value. An unchanged account records nothing.
//
// The event is appended before the view changes, so a failed append leaves
// the view untouched.
func (r *Repository) AddOrUpdate(ctx context.Context, account accounts.Account) (err error) {
	if account.ID == uuid.Nil {
		return accounts.ErrMissingAccountID
	}

	r.lifecycle.RLock()
	defer r.lifecycle.RUnlock()

	if !r.ready.Load() {
		return ErrNotInitialised
	}

	unlock := r.locks.Lock(account.ID)
	defer unlock()

	ctx, span := r.tracer.Start(ctx, "accounts.AddOrUpdate", trace.WithAttributes(
		attribute.String("account_id", account.ID.String()),
	))
	defer func() { endSpan(span, err) }()

	var evt accounts.Event = accounts.AccountAdded{Account: account}
	if current, ok := r.view.Get(account.ID); ok {
		if current.Equal(account) {
			r.log.Debug("account unchanged", "account_id", account.ID)
			span.SetAttributes(attribute.Bool("noop", true))
			return nil
		}

		evt = accounts.AccountUpdated{Account: account}
	}

	span.SetAttributes(attribute.String("kind", evt.Kind().String()))

	if err := r.record(ctx, evt); err != nil {
		return err
	}

	r.view.Upsert(account.ID, account)
	r.log.Debug("recorded account event", "kind", evt.Kind(), "account_id", account.ID, "name", account.Name)

	return nil
}

// RemoveAccount records the deletion of the account with the given ID.
// Removing an absent account records nothing.
func (r *Repository) RemoveAccount(ctx context.Context, id uuid.UUID) (err error) {
	if id == uuid.Nil {
		return accounts.ErrMissingAccountID
	}

	r.lifecycle.RLock()
	defer r.lifecycle.RUnlock()

	if !r.ready.Load() {
		return ErrNotInitialised
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	ctx, span := r.tracer.Start(ctx, "accounts.RemoveAccount", trace.WithAttributes(
		attribute.String("account_id", id.String()),
	))
	defer func() { endSpan(span, err) }()

	current, ok := r.view.Get(id)
	if !ok {
		r.log.Debug("account not found, nothing to remove", "account_id", id)
		span.SetAttributes(attribute.Bool("noop", true))
		return nil
	}

	if err := r.record(ctx, accounts.AccountDeleted{ID: id}); err != nil {
		return err
	}

	r.view.Remove(id)
	r.log.Debug("removed account", "account_id", id, "name", current.Name)

	return nil
}

func (r *Repository) record(ctx context.Context, evt accounts.Event) error {
	envelope, err := accounts.NewEnvelope(r.codec, evt)
	if err != nil {
		return fmt.Errorf("creating %s event: %w", evt.Kind(), err)
	}

	if err := r.events.AppendStream(ctx, r.stream, []*eventstore.WritableEvent{envelope.WritableEvent()}, eventstore.AppendStreamOptions{
		ExpectVersion: eventstore.AnyVersion,
	}); err != nil {
		return fmt.Errorf("appending %s event to stream %s: %w", evt.Kind(), r.stream, err)
	}

	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}
