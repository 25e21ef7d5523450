// Package sqlite provides a SQLite-backed event store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-estoria/accounts"
	"github.com/go-estoria/accounts/eventstore"
	"github.com/go-estoria/accounts/eventstore/sqlite/migrations"
	"github.com/gofrs/uuid/v5"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// EventStore stores event streams in a single SQLite table, one row per event,
// keyed by stream name and version.
type EventStore struct {
	db          *sql.DB
	path        string
	busyTimeout time.Duration
	batchSize   int
	now         func() time.Time
	log         accounts.Logger

	existsStmt      *sql.Stmt
	versionStmt     *sql.Stmt
	insertStmt      *sql.Stmt
	readForwardStmt *sql.Stmt
	readReverseStmt *sql.Stmt
}

var _ eventstore.Store = (*EventStore)(nil)

// Open opens the database at path, creating it if needed, and applies the
// embedded schema migrations.
func Open(ctx context.Context, path string, opts ...EventStoreOption) (*EventStore, error) {
	path = strings.TrimSpace(path)
	switch {
	case path == "":
		return nil, eventstore.InitializationError{Err: errors.New("database path is required")}
	case path != MemoryPath && strings.ContainsAny(path, "?#"):
		return nil, eventstore.InitializationError{Err: errors.New("database path cannot contain '?' or '#'")}
	}

	store := &EventStore{
		path:        path,
		busyTimeout: 5 * time.Second,
		batchSize:   256,
		now:         time.Now,
		log:         accounts.DefaultLogger("sqlite"),
	}

	for _, opt := range opts {
		if err := opt(store); err != nil {
			return nil, eventstore.InitializationError{Err: fmt.Errorf("applying option: %w", err)}
		}
	}

	db, err := sql.Open("sqlite", store.dsn())
	if err != nil {
		return nil, eventstore.InitializationError{Err: fmt.Errorf("opening database: %w", err)}
	}

	// every connection to :memory: is a separate database
	if path == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, eventstore.InitializationError{Err: fmt.Errorf("pinging database: %w", err)}
	}

	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, eventstore.InitializationError{Err: fmt.Errorf("running migrations: %w", err)}
	}

	store.db = db
	if err := store.prepareStatements(ctx); err != nil {
		_ = store.Close()
		return nil, eventstore.InitializationError{Err: fmt.Errorf("preparing statements: %w", err)}
	}

	store.log.Info("opened sqlite event store", "path", path)

	return store, nil
}

func (s *EventStore) dsn() string {
	if s.path == MemoryPath {
		return MemoryPath
	}

	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		s.path, s.busyTimeout.Milliseconds())
}

func (s *EventStore) prepareStatements(ctx context.Context) error {
	stmts := []struct {
		dest **sql.Stmt
		sql  string
	}{
		{&s.existsStmt, "SELECT 1 FROM events WHERE stream = ? AND event_id = ?"},
		{&s.versionStmt, "SELECT COALESCE(MAX(version), 0) FROM events WHERE stream = ?"},
		{&s.insertStmt, "INSERT INTO events (stream, version, event_id, event_type, data, timestamp) VALUES (?, ?, ?, ?, ?, ?)"},
		{&s.readForwardStmt, `SELECT event_id, version, event_type, data, timestamp FROM events
			WHERE stream = ? AND version > ? ORDER BY version ASC LIMIT ?`},
		{&s.readReverseStmt, `SELECT event_id, version, event_type, data, timestamp FROM events
			WHERE stream = ? AND version < ? ORDER BY version DESC LIMIT ?`},
	}

	for _, def := range stmts {
		stmt, err := s.db.PrepareContext(ctx, def.sql)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}

		*def.dest = stmt
	}

	return nil
}

// Close closes the database handle.
func (s *EventStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	for _, stmt := range []*sql.Stmt{s.existsStmt, s.versionStmt, s.insertStmt, s.readForwardStmt, s.readReverseStmt} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}

	return s.db.Close()
}

// AppendStream appends events to a stream in a single transaction.
func (s *EventStore) AppendStream(ctx context.Context, stream string, events []*eventstore.WritableEvent, opts eventstore.AppendStreamOptions) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := eventstore.ValidateAppend(stream, events); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists int
	err = tx.StmtContext(ctx, s.existsStmt).QueryRowContext(ctx, stream, events[0].ID.String()).Scan(&exists)
	switch {
	case err == nil:
		s.log.Debug("events already appended", "stream", stream, "event_id", events[0].ID)
		return tx.Rollback()
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("checking for appended events: %w", err)
	}

	var version int64
	if err = tx.StmtContext(ctx, s.versionStmt).QueryRowContext(ctx, stream).Scan(&version); err != nil {
		return fmt.Errorf("reading stream version: %w", err)
	}

	if opts.ExpectVersion > 0 && opts.ExpectVersion != version {
		err = eventstore.StreamVersionMismatchError{
			Stream:          stream,
			EventID:         events[0].ID,
			ExpectedVersion: opts.ExpectVersion,
			ActualVersion:   version,
		}
		return err
	}

	insert := tx.StmtContext(ctx, s.insertStmt)
	timestamp := s.now().UTC().UnixMilli()
	for i, evt := range events {
		if _, err = insert.ExecContext(ctx,
			stream,
			version+int64(i)+1,
			evt.ID.String(),
			evt.Type,
			evt.Data,
			timestamp,
		); err != nil {
			if isConstraintError(err) {
				return fmt.Errorf("conflicting append to stream %s: %w", stream, err)
			}

			return fmt.Errorf("inserting event %s: %w", evt.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.log.Debug("appended events", "stream", stream, "events", len(events), "version", version+int64(len(events)))

	return nil
}

// ReadStream reads events from a stream in batches.
func (s *EventStore) ReadStream(ctx context.Context, stream string, opts eventstore.ReadStreamOptions) (eventstore.StreamIterator, error) {
	var version int64
	if err := s.versionStmt.QueryRowContext(ctx, stream).Scan(&version); err != nil {
		return nil, fmt.Errorf("reading stream version: %w", err)
	} else if version == 0 {
		return nil, eventstore.ErrStreamNotFound
	}

	offset := max(opts.Offset, 0)
	cursor := offset
	if opts.Direction == eventstore.Reverse {
		cursor = version - offset + 1
	}

	return &streamIterator{
		store:     s,
		stream:    stream,
		cursor:    cursor,
		direction: opts.Direction,
		limit:     max(opts.Count, 0),
	}, nil
}

func (s *EventStore) readBatch(ctx context.Context, stream string, direction eventstore.ReadStreamDirection, cursor int64, size int) ([]*eventstore.Event, error) {
	stmt := s.readForwardStmt
	if direction == eventstore.Reverse {
		stmt = s.readReverseStmt
	}

	rows, err := stmt.QueryContext(ctx, stream, cursor, size)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	batch := make([]*eventstore.Event, 0, size)
	for rows.Next() {
		var (
			eventID   string
			timestamp int64
			evt       = &eventstore.Event{StreamName: stream}
		)

		if err := rows.Scan(&eventID, &evt.StreamVersion, &evt.Type, &evt.Data, &timestamp); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}

		id, err := uuid.FromString(eventID)
		if err != nil {
			return nil, eventstore.EventUnmarshalingError{Stream: stream, Err: fmt.Errorf("parsing event ID %q: %w", eventID, err)}
		}

		evt.ID = id
		evt.Timestamp = time.UnixMilli(timestamp).UTC()
		batch = append(batch, evt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	return batch, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}

	return false
}
