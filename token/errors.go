package token

import "github.com/pkg/errors"

// Internal rejection causes. The public surface never returns these for a
// refresh-token check: VerifyRefreshToken and RotateRefreshToken collapse
// every cause into ErrInvalidRefreshToken so a caller cannot probe why a
// token was rejected. The causes stay distinguishable for logging.
var (
	ErrMalformed        = errors.New("token malformed")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrWrongType        = errors.New("unexpected token type")
	ErrRevoked          = errors.New("refresh token revoked")
	ErrHashMismatch     = errors.New("refresh token hash mismatch")
)

// Public errors returned across the service boundary.
var (
	// ErrInvalidRefreshToken is the single opaque outcome for any failed
	// refresh-token verification or rotation.
	ErrInvalidRefreshToken = errors.New("refresh token invalid")

	// ErrInvalidAccessToken is the opaque outcome for a bad access token
	// presented to LogoutAll.
	ErrInvalidAccessToken = errors.New("access token invalid")

	// ErrSessionNotFound is returned by Logout when the presented token
	// decodes but no record for its jti was ever stored. Surfacing this
	// (rather than silently succeeding) flags that an already-invalid
	// token was presented.
	ErrSessionNotFound = errors.New("session not found")
)
