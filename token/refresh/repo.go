// Package refresh declares the durable record kept for every issued refresh
// token and the store contract the token service rotates against. Records
// are never rewritten: the only mutation a store performs after insert is
// the one-way Revoked transition, so the rotation lineage stays auditable.
package refresh

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when no record exists for a jti.
	ErrNotFound = errors.New("refresh token record not found")

	// ErrDuplicateID is returned when an insert collides on jti. With
	// random UUID jtis this indicates a broken RNG or store corruption,
	// not a condition to retry past.
	ErrDuplicateID = errors.New("duplicate refresh token id")
)

// Record is the server-side state of one issued refresh token. The client
// holds the raw signed token; the store holds only its argon2id hash, so a
// leaked store cannot be replayed.
type Record struct {
	JTI            string     // Primary key; the jti claim of the signed token
	SubjectID      string     // Owning user; weak reference into the user directory
	CredentialHash string     // argon2id digest of the raw signed token string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	Revoked        bool       // One-way false -> true
	RotatedFrom    *string    // jti of the predecessor record, nil for first issuance
}

// Expired reports whether the record's lifetime has elapsed at time now.
// Expiry is evaluated lazily at verification; nothing deletes live rows.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store persists refresh token records. Implementations must make Revoke a
// per-jti compare-and-set: under concurrent rotation of the same token,
// exactly one caller observes performed == true. No cross-record ordering
// is required; each record's CreatedAt/RotatedFrom fields carry the chain.
type Store interface {
	// Insert adds a new record. Returns ErrDuplicateID if the jti exists.
	Insert(ctx context.Context, record *Record) error

	// FindByJTI returns the record for jti, or ErrNotFound.
	FindByJTI(ctx context.Context, jti string) (*Record, error)

	// Revoke marks the record revoked. performed is true only when this
	// call made the false -> true transition; a record that was already
	// revoked yields (false, nil). Returns ErrNotFound if absent.
	Revoke(ctx context.Context, jti string) (performed bool, err error)

	// RevokeAllForSubject revokes every non-revoked record owned by
	// subjectID and returns how many transitions it performed.
	RevokeAllForSubject(ctx context.Context, subjectID string) (int64, error)

	// DeleteExpiredBefore removes records whose ExpiresAt precedes cutoff.
	// Housekeeping only; the token service never calls it, and keeping
	// expired rows longer only preserves more rotation lineage.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
