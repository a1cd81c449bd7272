// Package pgstore implements [refresh.Store] on PostgreSQL through
// database/sql and the pgx stdlib driver.
//
// Rows are keyed by [refresh.Ref]; the bearer token id never reaches the
// database.
//
// Rotation is one conditional UPDATE guarded by status and version, followed
// by the successor INSERT in the same transaction. Row locking on the UPDATE
// serializes concurrent rotations of the same record; the losers re-evaluate
// the WHERE clause, match nothing and are classified from a follow-up read.
//
// Chain revocation repeats its recursive UPDATE until a pass changes nothing.
// Under READ COMMITTED every pass sees successors committed by rotations that
// raced the previous pass, and revoked rows stay locked until commit, so no
// rotation can extend the chain behind the revocation.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/refresh/pgstore/migrations"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const uniqueViolation = "23505"

// Store is a Postgres-backed [refresh.Store].
type Store struct {
	db       *sql.DB
	now      func() time.Time
	maxChain int
}

// Options configures a [Store].
type Options struct {
	MaxChainLength int
	Now            func() time.Time
}

// Open connects to dsn with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}
	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// New wraps an open database handle.
func New(db *sql.DB, opts Options) *Store {
	s := &Store{db: db, now: opts.Now, maxChain: opts.MaxChainLength}
	if s.now == nil {
		s.now = time.Now
	}
	if s.maxChain <= 0 {
		s.maxChain = refresh.DefaultMaxChainLength
	}
	return s
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const insertRecordQuery = `INSERT INTO refresh_records
    (token_ref, user_id, status, predecessor_ref, version, created_at, expires_at)
    VALUES ($1, $2, 'active', $3, 0, $4, $5)`

// Create implements [refresh.Store].
func (s *Store) Create(ctx context.Context, userID string, expiresAt time.Time) (*refresh.Record, error) {
	id, err := refresh.NewTokenID()
	if err != nil {
		return nil, err
	}
	createdAt := s.now().UTC()
	ref := refresh.Ref(id)

	_, err = s.db.ExecContext(ctx, insertRecordQuery, ref, userID, nil, createdAt, expiresAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, refresh.ErrConflict
		}
		return nil, unavailable(err)
	}

	return &refresh.Record{
		TokenID:   id,
		Ref:       ref,
		UserID:    userID,
		Status:    refresh.StatusActive,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

const selectRecordQuery = `SELECT user_id, status, COALESCE(successor_ref, ''), COALESCE(predecessor_ref, ''),
    version, created_at, expires_at
    FROM refresh_records WHERE token_ref = $1`

// Get implements [refresh.Store].
func (s *Store) Get(ctx context.Context, tokenID string) (*refresh.Record, error) {
	rec, err := s.GetByRef(ctx, refresh.Ref(tokenID))
	if err != nil {
		return nil, err
	}
	rec.TokenID = tokenID
	return rec, nil
}

// GetByRef implements [refresh.Store].
func (s *Store) GetByRef(ctx context.Context, ref string) (*refresh.Record, error) {
	var (
		rec     = refresh.Record{Ref: ref}
		status  string
		version int64
	)
	err := s.db.QueryRowContext(ctx, selectRecordQuery, ref).Scan(
		&rec.UserID,
		&status,
		&rec.SuccessorRef,
		&rec.PredecessorRef,
		&version,
		&rec.CreatedAt,
		&rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, refresh.ErrNotFound
		}
		return nil, unavailable(err)
	}

	st, err := refresh.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	rec.Status = st
	rec.Version = uint64(version)
	return &rec, nil
}

const rotateQuery = `UPDATE refresh_records
    SET status = 'rotated', successor_ref = $1, version = version + 1
    WHERE token_ref = $2 AND status = 'active' AND version = $3
    RETURNING user_id`

const classifyQuery = `SELECT status FROM refresh_records WHERE token_ref = $1`

// CompareAndRotate implements [refresh.Store].
func (s *Store) CompareAndRotate(
	ctx context.Context,
	tokenID string,
	expectedVersion uint64,
	newTokenID string,
	newExpiresAt time.Time,
) (rec *refresh.Record, err error) {
	ref, newRef := refresh.Ref(tokenID), refresh.Ref(newTokenID)

	tx, err := s.db.BeginTx(ctx, readCommitted)
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var userID string
	err = tx.QueryRowContext(ctx, rotateQuery, newRef, ref, int64(expectedVersion)).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = s.classifyRejected(ctx, tx, ref)
			return nil, err
		}
		if isUniqueViolation(err) {
			return nil, refresh.ErrConflict
		}
		return nil, unavailable(err)
	}

	createdAt := s.now().UTC()
	if _, err = tx.ExecContext(ctx, insertRecordQuery, newRef, userID, ref, createdAt, newExpiresAt.UTC()); err != nil {
		if isUniqueViolation(err) {
			return nil, refresh.ErrConflict
		}
		return nil, unavailable(err)
	}

	if err = tx.Commit(); err != nil {
		return nil, unavailable(err)
	}

	return &refresh.Record{
		TokenID:        newTokenID,
		Ref:            newRef,
		UserID:         userID,
		Status:         refresh.StatusActive,
		PredecessorRef: ref,
		CreatedAt:      createdAt,
		ExpiresAt:      newExpiresAt,
	}, nil
}

func (s *Store) classifyRejected(ctx context.Context, tx *sql.Tx, ref string) error {
	var status string
	if err := tx.QueryRowContext(ctx, classifyQuery, ref).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return refresh.ErrNotFound
		}
		return unavailable(err)
	}
	switch status {
	case "rotated":
		return refresh.ErrAlreadyRotated
	case "revoked":
		return refresh.ErrRevoked
	default:
		return refresh.ErrConflict
	}
}

const existsQuery = `SELECT 1 FROM refresh_records WHERE token_ref = $1`

// Both walks carry a depth column so a corrupted cyclic chain still
// terminates at $2.
const revokeChainQuery = `WITH RECURSIVE
back (token_ref, predecessor_ref, depth) AS (
    SELECT token_ref, predecessor_ref, 1 FROM refresh_records WHERE token_ref = $1
    UNION
    SELECT r.token_ref, r.predecessor_ref, b.depth + 1
    FROM refresh_records r JOIN back b ON r.token_ref = b.predecessor_ref
    WHERE b.depth < $2
),
fwd (token_ref, successor_ref, depth) AS (
    SELECT token_ref, successor_ref, 1 FROM refresh_records WHERE token_ref = $1
    UNION
    SELECT r.token_ref, r.successor_ref, f.depth + 1
    FROM refresh_records r JOIN fwd f ON r.token_ref = f.successor_ref
    WHERE f.depth < $2
)
UPDATE refresh_records SET status = 'revoked', version = version + 1
WHERE token_ref IN (SELECT token_ref FROM back UNION SELECT token_ref FROM fwd)
    AND status <> 'revoked'`

// readCommitted pins the isolation level the revocation passes rely on.
var readCommitted = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

// RevokeChain implements [refresh.Store].
func (s *Store) RevokeChain(ctx context.Context, tokenID string) (n int, err error) {
	ref := refresh.Ref(tokenID)

	tx, err := s.db.BeginTx(ctx, readCommitted)
	if err != nil {
		return 0, unavailable(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var one int
	if err = tx.QueryRowContext(ctx, existsQuery, ref).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = refresh.ErrNotFound
			return 0, err
		}
		return 0, unavailable(err)
	}

	for pass := 0; pass < s.maxChain; pass++ {
		var res sql.Result
		res, err = tx.ExecContext(ctx, revokeChainQuery, ref, s.maxChain)
		if err != nil {
			return 0, unavailable(err)
		}
		var affected int64
		affected, err = res.RowsAffected()
		if err != nil {
			return 0, unavailable(err)
		}
		if affected == 0 {
			break
		}
		n += int(affected)
	}

	if err = tx.Commit(); err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// Ping implements [refresh.Store].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteExpired removes records whose expiry lies before cutoff.
func (s *Store) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_records WHERE expires_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}
