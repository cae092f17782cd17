package users

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidCredentials is returned by Authenticate for an unknown
	// username or a wrong password; callers must not distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotFound is returned when a user ID cannot be resolved.
	ErrNotFound = errors.New("user not found")

	// ErrUsernameTaken is returned by Create when the username exists.
	ErrUsernameTaken = errors.New("username already taken")
)

// Directory resolves and authenticates users. Implementations wrap whatever
// user store the deployment already has (SQL, LDAP, an upstream API).
type Directory interface {
	Authenticate(ctx context.Context, username, password string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

// Registrar creates new users. Separate from Directory because many
// deployments authenticate against a directory they cannot write to.
type Registrar interface {
	Create(ctx context.Context, username, password string) (*User, error)
}
