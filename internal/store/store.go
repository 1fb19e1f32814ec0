// Package store contains the local entity store for the tripbook sync core.
// Records of every kind live in one on-device SQLite database; reads and
// writes never touch the network. Every successful write is announced to
// registered observers (the replication bridge and the query controller).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the pure Go "sqlite" driver

	"github.com/pkordes/tripbook/backend/internal/domain"
	"github.com/pkordes/tripbook/backend/migrations/local"
)

// Op is the kind of mutation a Change describes.
type Op string

const (
	OpPut    Op = "put"
	OpDelete Op = "delete"
)

// Origin tells observers where a change came from.
type Origin int

const (
	// OriginLocal is a write made on this device.
	OriginLocal Origin = iota
	// OriginRemote is a write pulled in from the remote store.
	OriginRemote
)

func (o Origin) String() string {
	if o == OriginRemote {
		return "remote"
	}
	return "local"
}

// Envelope is a record as the store sees it: the indexed Meta plus an opaque
// JSON payload. Seq is the insertion sequence, stable across replaces.
type Envelope struct {
	Kind    domain.Kind
	Meta    domain.Meta
	Seq     int64
	Payload []byte
}

// Change describes one successful put or delete.
// UpdatedAt is the record's UpdatedAt for puts and the deletion time for deletes.
// Envelope is zero for deletes.
type Change struct {
	Op        Op
	Kind      domain.Kind
	ID        uuid.UUID
	UpdatedAt time.Time
	Envelope  Envelope
	Origin    Origin
}

// Sort selects the order of Query results.
type Sort int

const (
	// SortStartDesc orders by start date, newest first; ties keep insertion order.
	SortStartDesc Sort = iota
	// SortCreatedDesc orders by creation time, newest first.
	SortCreatedDesc
	// SortInsertion orders by insertion sequence.
	SortInsertion
)

func (s Sort) orderBy() string {
	switch s {
	case SortCreatedDesc:
		return "created_at DESC, seq ASC"
	case SortInsertion:
		return "seq ASC"
	default:
		return "start_date DESC, seq ASC"
	}
}

// Filter narrows a Query.
type Filter struct {
	// CallerID restricts results to records visible to the caller.
	// Empty means unscoped; only maintenance code (image sweeps, share code
	// lookups) queries that way.
	CallerID string
	// ShareCode, when set, matches only the record holding that code.
	ShareCode string
	Sort      Sort
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQLite-backed entity store. Writes are serialized through a
// single mutex and a single connection.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time

	obsMu     sync.RWMutex
	observers map[int]func(Change)
	nextObs   int
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp deletions.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates or opens the SQLite database at path and applies all pending
// local migrations. It is safe to call on an existing database.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store.Open: %w: path is required", domain.ErrValidation)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("store.Open: create dirs: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store.Open: %w", err)
	}
	// SQLite allows one writer; a single connection keeps every write in line.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.Open: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.Open: %w", err)
	}

	s := &Store{
		db:        db,
		now:       time.Now,
		observers: make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, local.FS)
	if err != nil {
		return fmt.Errorf("create goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for tests and maintenance commands.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Observe registers fn to be called after every successful put or delete,
// local or remote. fn runs on the writing goroutine after the write has been
// committed and must not block. The returned func unregisters fn.
func (s *Store) Observe(fn func(Change)) (cancel func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.obsMu.RLock()
	fns := make([]func(Change), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Put inserts env, or fully replaces the stored record with the same kind and
// id. The record keeps its insertion sequence across replaces.
// Returns domain.ErrConflict if the share code is held by another record.
func (s *Store) Put(ctx context.Context, env Envelope) (uuid.UUID, error) {
	if err := checkEnvelope(env); err != nil {
		return uuid.Nil, fmt.Errorf("store.Store.Put: %w", err)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		seq, err := upsert(ctx, tx, env)
		if err != nil {
			return err
		}
		env.Seq = seq
		return clearTombstone(ctx, tx, env.Kind, env.Meta.ID)
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("store.Store.Put: %w", err)
	}

	s.notify(Change{
		Op:        OpPut,
		Kind:      env.Kind,
		ID:        env.Meta.ID,
		UpdatedAt: env.Meta.UpdatedAt,
		Envelope:  env,
		Origin:    OriginLocal,
	})
	return env.Meta.ID, nil
}

// Get retrieves a record by kind and id.
// Returns domain.ErrNotFound if no such record exists.
func (s *Store) Get(ctx context.Context, kind domain.Kind, id uuid.UUID) (Envelope, error) {
	const q = `SELECT ` + selectColumns + ` FROM records WHERE kind = ? AND id = ?`

	env, err := scanEnvelope(s.db.QueryRowContext(ctx, q, string(kind), id.String()))
	if err != nil {
		return Envelope{}, fmt.Errorf("store.Store.Get: %w", err)
	}
	return env, nil
}

// Query returns every record of kind matching f, in f.Sort order.
// The result is never nil.
func (s *Store) Query(ctx context.Context, kind domain.Kind, f Filter) ([]Envelope, error) {
	where := []string{"kind = ?"}
	args := []any{string(kind)}
	if f.CallerID != "" {
		where = append(where, `(user_id = ? OR owner_id = ? OR EXISTS (
			SELECT 1 FROM json_each(records.shared_with) WHERE json_each.value = ?))`)
		args = append(args, f.CallerID, f.CallerID, f.CallerID)
	}
	if f.ShareCode != "" {
		where = append(where, "share_code = ?")
		args = append(args, f.ShareCode)
	}
	q := `SELECT ` + selectColumns + ` FROM records WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY ` + f.Sort.orderBy()

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store.Store.Query: %w", err)
	}
	defer rows.Close()

	out := []Envelope{}
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, fmt.Errorf("store.Store.Query: scan: %w", err)
		}
		out = append(out, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store.Store.Query: rows: %w", err)
	}
	return out, nil
}

// Delete removes a record and remembers the deletion time so an older remote
// copy cannot bring it back. It reports whether a record was removed.
func (s *Store) Delete(ctx context.Context, kind domain.Kind, id uuid.UUID) (bool, error) {
	now := s.now().UTC()
	var deleted bool

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := deleteRecord(ctx, tx, kind, id)
		if err != nil || n == 0 {
			return err
		}
		deleted = true
		return putTombstone(ctx, tx, kind, id, now)
	})
	if err != nil {
		return false, fmt.Errorf("store.Store.Delete: %w", err)
	}

	if deleted {
		s.notify(Change{Op: OpDelete, Kind: kind, ID: id, UpdatedAt: now, Origin: OriginLocal})
	}
	return deleted, nil
}

// ApplyRemote writes a change pulled from the remote store. The last writer
// wins: the change is applied only when its UpdatedAt is strictly newer than
// the local record or tombstone. It reports whether anything changed.
// Applied changes reach observers exactly like local writes, marked OriginRemote.
func (s *Store) ApplyRemote(ctx context.Context, c Change) (bool, error) {
	var applied bool

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		local, ok, err := localVersion(ctx, tx, c.Kind, c.ID)
		if err != nil {
			return err
		}
		if ok && !c.UpdatedAt.After(local) {
			return nil
		}

		switch c.Op {
		case OpPut:
			if err := checkEnvelope(c.Envelope); err != nil {
				return err
			}
			seq, err := upsert(ctx, tx, c.Envelope)
			if err != nil {
				return err
			}
			c.Envelope.Seq = seq
			applied = true
			return clearTombstone(ctx, tx, c.Kind, c.ID)
		case OpDelete:
			n, err := deleteRecord(ctx, tx, c.Kind, c.ID)
			if err != nil {
				return err
			}
			applied = n > 0
			return putTombstone(ctx, tx, c.Kind, c.ID, c.UpdatedAt)
		default:
			return fmt.Errorf("%w: unknown op %q", domain.ErrValidation, c.Op)
		}
	})
	if err != nil {
		return false, fmt.Errorf("store.Store.ApplyRemote: %w", err)
	}

	if applied {
		c.Origin = OriginRemote
		s.notify(c)
	}
	return applied, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func checkEnvelope(env Envelope) error {
	if !env.Kind.Valid() {
		return fmt.Errorf("%w: unknown record kind %q", domain.ErrValidation, env.Kind)
	}
	if env.Meta.ID == uuid.Nil {
		return fmt.Errorf("%w: record id is required", domain.ErrValidation)
	}
	return nil
}

func upsert(ctx context.Context, db execer, env Envelope) (int64, error) {
	const q = `
		INSERT INTO records (kind, id, user_id, owner_id, shared_with, share_code, start_date, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET
			user_id     = excluded.user_id,
			owner_id    = excluded.owner_id,
			shared_with = excluded.shared_with,
			share_code  = excluded.share_code,
			start_date  = excluded.start_date,
			created_at  = excluded.created_at,
			updated_at  = excluded.updated_at,
			payload     = excluded.payload
		RETURNING seq`

	sharedWith := env.Meta.SharedWith
	if sharedWith == nil {
		sharedWith = []string{}
	}
	shared, err := json.Marshal(sharedWith)
	if err != nil {
		return 0, err
	}
	code := sql.NullString{String: env.Meta.ShareCode, Valid: env.Meta.ShareCode != ""}

	var seq int64
	err = db.QueryRowContext(ctx, q,
		string(env.Kind), env.Meta.ID.String(), env.Meta.UserID, env.Meta.OwnerID, string(shared), code,
		env.Meta.StartDate.UnixNano(), env.Meta.CreatedAt.UnixNano(), env.Meta.UpdatedAt.UnixNano(), env.Payload,
	).Scan(&seq)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: share code %q already in use", domain.ErrConflict, env.Meta.ShareCode)
		}
		return 0, err
	}
	return seq, nil
}

func deleteRecord(ctx context.Context, db execer, kind domain.Kind, id uuid.UUID) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM records WHERE kind = ? AND id = ?`, string(kind), id.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func putTombstone(ctx context.Context, db execer, kind domain.Kind, id uuid.UUID, at time.Time) error {
	const q = `
		INSERT INTO tombstones (kind, id, deleted_at) VALUES (?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET deleted_at = max(deleted_at, excluded.deleted_at)`
	_, err := db.ExecContext(ctx, q, string(kind), id.String(), at.UnixNano())
	return err
}

func clearTombstone(ctx context.Context, db execer, kind domain.Kind, id uuid.UUID) error {
	_, err := db.ExecContext(ctx, `DELETE FROM tombstones WHERE kind = ? AND id = ?`, string(kind), id.String())
	return err
}

// localVersion returns the UpdatedAt of the local record, or the deletion
// time of its tombstone. ok is false when the store has never seen the id.
func localVersion(ctx context.Context, db execer, kind domain.Kind, id uuid.UUID) (time.Time, bool, error) {
	var nanos int64
	err := db.QueryRowContext(ctx, `SELECT updated_at FROM records WHERE kind = ? AND id = ?`,
		string(kind), id.String()).Scan(&nanos)
	if err == nil {
		return time.Unix(0, nanos).UTC(), true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, err
	}

	err = db.QueryRowContext(ctx, `SELECT deleted_at FROM tombstones WHERE kind = ? AND id = ?`,
		string(kind), id.String()).Scan(&nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(0, nanos).UTC(), true, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const selectColumns = `seq, kind, id, user_id, owner_id, shared_with, share_code, start_date, created_at, updated_at, payload`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanEnvelope maps one records row into an Envelope.
func scanEnvelope(s scanner) (Envelope, error) {
	var (
		env                       Envelope
		kind, id, shared          string
		code                      sql.NullString
		start, created, updatedAt int64
	)
	err := s.Scan(&env.Seq, &kind, &id, &env.Meta.UserID, &env.Meta.OwnerID, &shared, &code,
		&start, &created, &updatedAt, &env.Payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Envelope{}, domain.ErrNotFound
		}
		return Envelope{}, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return Envelope{}, fmt.Errorf("parse id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(shared), &env.Meta.SharedWith); err != nil {
		return Envelope{}, fmt.Errorf("decode shared_with: %w", err)
	}
	if len(env.Meta.SharedWith) == 0 {
		env.Meta.SharedWith = nil
	}

	env.Kind = domain.Kind(kind)
	env.Meta.ID = parsed
	env.Meta.ShareCode = code.String
	env.Meta.StartDate = time.Unix(0, start).UTC()
	env.Meta.CreatedAt = time.Unix(0, created).UTC()
	env.Meta.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return env, nil
}
