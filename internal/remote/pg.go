// Package remote contains the cloud side of replication: an account-scoped
// Postgres table that every device pushes to and pulls from.
// No merging happens here. A write replaces the stored row only when it is
// newer; deletes are kept as tombstone rows.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/tripbook/backend/internal/domain"
	"github.com/pkordes/tripbook/backend/internal/store"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Integration tests pass a transaction that is rolled back after each test.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRemote is the Postgres implementation of the replication remote.
type PGRemote struct {
	db db
}

// NewPGRemote constructs a PGRemote backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx.
func NewPGRemote(db db) *PGRemote {
	return &PGRemote{db: db}
}

// Push writes c on behalf of account. An older or equal UpdatedAt than the
// stored row is silently ignored.
func (r *PGRemote) Push(ctx context.Context, account string, c store.Change) error {
	var err error
	switch c.Op {
	case store.OpPut:
		err = r.upsert(ctx, account, c)
	case store.OpDelete:
		err = r.tombstone(ctx, account, c)
	default:
		err = fmt.Errorf("%w: unknown op %q", domain.ErrValidation, c.Op)
	}
	if err != nil {
		return fmt.Errorf("remote.PGRemote.Push: %w", err)
	}
	return nil
}

func (r *PGRemote) upsert(ctx context.Context, account string, c store.Change) error {
	const q = `
		INSERT INTO records (kind, id, account_id, user_id, owner_id, shared_with, share_code,
		                     start_date, created_at, updated_at, deleted, payload)
		VALUES (@kind, @id, @account_id, @user_id, @owner_id, @shared_with, @share_code,
		        @start_date, @created_at, @updated_at, false, @payload)
		ON CONFLICT (kind, id) DO UPDATE SET
		    account_id  = EXCLUDED.account_id,
		    user_id     = EXCLUDED.user_id,
		    owner_id    = EXCLUDED.owner_id,
		    shared_with = EXCLUDED.shared_with,
		    share_code  = EXCLUDED.share_code,
		    start_date  = EXCLUDED.start_date,
		    created_at  = EXCLUDED.created_at,
		    updated_at  = EXCLUDED.updated_at,
		    deleted     = false,
		    payload     = EXCLUDED.payload,
		    rev         = nextval('records_rev_seq')
		WHERE records.updated_at < EXCLUDED.updated_at`

	meta := c.Envelope.Meta
	sharedWith := meta.SharedWith
	if sharedWith == nil {
		sharedWith = []string{}
	}
	var shareCode *string
	if meta.ShareCode != "" {
		shareCode = &meta.ShareCode
	}

	_, err := r.db.Exec(ctx, q, pgx.NamedArgs{
		"kind":        string(c.Kind),
		"id":          c.ID,
		"account_id":  account,
		"user_id":     meta.UserID,
		"owner_id":    meta.OwnerID,
		"shared_with": sharedWith,
		"share_code":  shareCode, // nil becomes NULL
		"start_date":  meta.StartDate,
		"created_at":  meta.CreatedAt,
		"updated_at":  c.UpdatedAt,
		"payload":     string(c.Envelope.Payload),
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: share code %q already in use", domain.ErrConflict, meta.ShareCode)
		}
		return err
	}
	return nil
}

// tombstone marks the row deleted. The row keeps its visibility columns so
// every device that could see the record learns about the deletion.
func (r *PGRemote) tombstone(ctx context.Context, account string, c store.Change) error {
	const q = `
		INSERT INTO records (kind, id, account_id, user_id, start_date, created_at, updated_at, deleted)
		VALUES (@kind, @id, @account_id, @account_id, @updated_at, @updated_at, @updated_at, true)
		ON CONFLICT (kind, id) DO UPDATE SET
		    updated_at = EXCLUDED.updated_at,
		    deleted    = true,
		    payload    = NULL,
		    rev        = nextval('records_rev_seq')
		WHERE records.updated_at < EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, q, pgx.NamedArgs{
		"kind":       string(c.Kind),
		"id":         c.ID,
		"account_id": account,
		"updated_at": c.UpdatedAt,
	})
	return err
}

// Pull returns every change visible to account with a revision after
// cursor, oldest first, together with the cursor to pass next time.
// At most limit changes are returned; limit <= 0 means 500.
func (r *PGRemote) Pull(ctx context.Context, account string, cursor int64, limit int) ([]store.Change, int64, error) {
	const q = `
		SELECT ` + changeColumns + `
		FROM records
		WHERE rev > @cursor
		  AND (account_id = @account OR user_id = @account OR owner_id = @account
		       OR @account = ANY(shared_with))
		ORDER BY rev
		LIMIT @limit`

	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"cursor": cursor, "account": account, "limit": limit})
	if err != nil {
		return nil, cursor, fmt.Errorf("remote.PGRemote.Pull: %w", err)
	}
	defer rows.Close()

	changes := []store.Change{}
	next := cursor
	for rows.Next() {
		c, rev, err := scanChange(rows)
		if err != nil {
			return nil, cursor, fmt.Errorf("remote.PGRemote.Pull: scan: %w", err)
		}
		changes = append(changes, c)
		next = max(next, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, cursor, fmt.Errorf("remote.PGRemote.Pull: rows: %w", err)
	}
	return changes, next, nil
}

// FindByShareCode returns the live record of kind holding code.
// Returns domain.ErrNotFound if no such record exists.
func (r *PGRemote) FindByShareCode(ctx context.Context, kind domain.Kind, code string) (store.Change, error) {
	const q = `
		SELECT ` + changeColumns + `
		FROM records
		WHERE kind = @kind AND share_code = @code AND NOT deleted`

	c, _, err := scanChange(r.db.QueryRow(ctx, q, pgx.NamedArgs{"kind": string(kind), "code": code}))
	if err != nil {
		return store.Change{}, fmt.Errorf("remote.PGRemote.FindByShareCode: %w", err)
	}
	return c, nil
}

const changeColumns = `kind, id, user_id, owner_id, shared_with, share_code, start_date, created_at, updated_at, deleted, payload, rev`

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanChange maps one records row into a store.Change. Deleted rows become
// OpDelete changes with an empty envelope.
func scanChange(s scanner) (store.Change, int64, error) {
	var (
		kind       string
		id         pgtype.UUID
		meta       domain.Meta
		shareCode  pgtype.Text
		deleted    bool
		payload    []byte
		rev        int64
		start      time.Time
		created    time.Time
		updatedAt  time.Time
		sharedWith []string
	)
	err := s.Scan(&kind, &id, &meta.UserID, &meta.OwnerID, &sharedWith, &shareCode,
		&start, &created, &updatedAt, &deleted, &payload, &rev)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Change{}, 0, domain.ErrNotFound
		}
		return store.Change{}, 0, err
	}

	meta.ID = uuid.UUID(id.Bytes)
	c := store.Change{
		Kind:      domain.Kind(kind),
		ID:        meta.ID,
		UpdatedAt: updatedAt.UTC(),
		Origin:    store.OriginRemote,
	}
	if deleted {
		c.Op = store.OpDelete
		return c, rev, nil
	}

	if len(sharedWith) > 0 {
		meta.SharedWith = sharedWith
	}
	meta.ShareCode = shareCode.String
	meta.StartDate = start.UTC()
	meta.CreatedAt = created.UTC()
	meta.UpdatedAt = c.UpdatedAt

	c.Op = store.OpPut
	c.Envelope = store.Envelope{Kind: c.Kind, Meta: meta, Payload: payload}
	return c, rev, nil
}
