// Package postgresrepo implements refresh.Store on PostgreSQL. Row-level
// atomic updates guarded by the revoked flag give the per-jti
// compare-and-set the rotation protocol depends on, with no explicit
// locking and no cross-row coordination.
package postgresrepo

import (
	"context"
	"database/sql"
	"time"

	"github.com/avasquez-dev/go-token-service/token/refresh"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

var _ refresh.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL with the pgx driver, runs the embedded
// migrations, and returns a ready Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[postgresrepo.Open] sql.Open")
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "[postgresrepo.Open] ping")
	}

	store := &Store{db: db}
	if err := store.runMigrations(ctx); err != nil {
		return nil, errors.Wrap(err, "[postgresrepo.Open] migrations")
	}
	return store, nil
}

// New wraps an existing database handle without running migrations.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db, "migrations")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Insert(ctx context.Context, record *refresh.Record) error {
	query := `
		INSERT INTO refresh_tokens (jti, subject_id, credential_hash, created_at, expires_at, revoked, rotated_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.JTI,
		record.SubjectID,
		record.CredentialHash,
		record.CreatedAt,
		record.ExpiresAt,
		record.Revoked,
		record.RotatedFrom,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return refresh.ErrDuplicateID
		}
		return errors.Wrap(err, "[Store.Insert] exec")
	}
	return nil
}

func (s *Store) FindByJTI(ctx context.Context, jti string) (*refresh.Record, error) {
	query := `
		SELECT jti, subject_id, credential_hash, created_at, expires_at, revoked, rotated_from
		FROM refresh_tokens
		WHERE jti = $1
	`
	record := &refresh.Record{}
	err := s.db.QueryRowContext(ctx, query, jti).Scan(
		&record.JTI,
		&record.SubjectID,
		&record.CredentialHash,
		&record.CreatedAt,
		&record.ExpiresAt,
		&record.Revoked,
		&record.RotatedFrom,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, refresh.ErrNotFound
		}
		return nil, errors.Wrap(err, "[Store.FindByJTI] query")
	}
	return record, nil
}

// Revoke performs the one-way transition as a single guarded UPDATE. The
// WHERE clause makes the operation a compare-and-set: a concurrent caller
// that loses the race matches zero rows and reports performed == false.
func (s *Store) Revoke(ctx context.Context, jti string) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE jti = $1 AND NOT revoked
	`
	result, err := s.db.ExecContext(ctx, query, jti)
	if err != nil {
		return false, errors.Wrap(err, "[Store.Revoke] exec")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "[Store.Revoke] rows affected")
	}
	if affected > 0 {
		return true, nil
	}

	// Distinguish an already-revoked row from a missing one.
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE jti = $1)`, jti).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "[Store.Revoke] exists check")
	}
	if !exists {
		return false, refresh.ErrNotFound
	}
	return false, nil
}

func (s *Store) RevokeAllForSubject(ctx context.Context, subjectID string) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE subject_id = $1 AND NOT revoked
	`
	result, err := s.db.ExecContext(ctx, query, subjectID)
	if err != nil {
		return 0, errors.Wrap(err, "[Store.RevokeAllForSubject] exec")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "[Store.RevokeAllForSubject] rows affected")
	}
	return affected, nil
}

func (s *Store) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1
	`
	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "[Store.DeleteExpiredBefore] exec")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "[Store.DeleteExpiredBefore] rows affected")
	}
	return affected, nil
}

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"
