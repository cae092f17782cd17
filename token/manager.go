package token

import (
	"context"
	"time"

	"github.com/avasquez-dev/go-token-service/internal/utils"
	"github.com/avasquez-dev/go-token-service/token/refresh"
	"github.com/avasquez-dev/go-token-service/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// CredentialHasher hashes raw refresh tokens before persistence and checks
// presented tokens against the stored digest. Satisfied by
// *credential.Hasher.
type CredentialHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encoded string) (bool, error)
}

// TokenPair is what a successful login or rotation hands back to the
// caller: a short-lived access token and the long-lived refresh token that
// will obtain its successor.
type TokenPair struct {
	AccessToken   string
	AccessClaims  *Claims
	RefreshToken  string
	RefreshClaims *Claims
}

// Manager orchestrates issuance, verification, rotation, and revocation of
// tokens over a Codec, a CredentialHasher, a refresh.Store, and the
// external user directory.
//
// A refresh-token lineage moves through: Active (issued, unrevoked,
// unexpired) -> Rotated (revoked because a successor was issued) or
// LoggedOut (revoked explicitly) -> terminal. Expiry overlays every state
// and is evaluated lazily at verification time.
type Manager struct {
	codec     *Codec
	hasher    CredentialHasher
	store     refresh.Store
	directory users.Directory
	logger    zerolog.Logger
	nowFunc   func() time.Time
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithLogger sets the logger used for internal rejection causes. The
// default is a nop logger so library use stays silent.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager initializes a Manager with required dependencies.
func NewManager(codec *Codec, hasher CredentialHasher, store refresh.Store, directory users.Directory, options ...ManagerOption) (*Manager, error) {
	if codec == nil {
		return nil, errors.New("[NewManager] codec is required")
	}
	if hasher == nil {
		return nil, errors.New("[NewManager] credential hasher is required")
	}
	if store == nil {
		return nil, errors.New("[NewManager] refresh store is required")
	}
	if directory == nil {
		return nil, errors.New("[NewManager] user directory is required")
	}

	m := &Manager{
		codec:     codec,
		hasher:    hasher,
		store:     store,
		directory: directory,
		logger:    zerolog.Nop(),
		nowFunc:   time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Login authenticates username/password against the user directory and, on
// success, issues a fresh access/refresh token pair. The refresh token
// starts a new lineage (no RotatedFrom).
func (m *Manager) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := m.directory.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return m.issuePair(ctx, user, nil)
}

// IssueAccessToken signs a short-lived access token for user. Pure: no
// store round-trip, no side effects.
func (m *Manager) IssueAccessToken(user *users.User) (string, *Claims, error) {
	return m.codec.IssueAccess(user)
}

// IssueRefreshToken signs a long-lived refresh token for user, hashes the
// raw token, and persists the record keyed by its jti. rotatedFrom links
// the record to the predecessor it replaced, nil for a first issuance.
// This is the only point that creates durable state.
func (m *Manager) IssueRefreshToken(ctx context.Context, user *users.User, rotatedFrom *string) (string, *Claims, error) {
	raw, claims, err := m.codec.IssueRefresh(user)
	if err != nil {
		return "", nil, errors.Wrap(err, "[Manager.IssueRefreshToken] issue")
	}

	hash, err := m.hasher.Hash(raw)
	if err != nil {
		return "", nil, errors.Wrap(err, "[Manager.IssueRefreshToken] hash")
	}

	record := &refresh.Record{
		JTI:            claims.JTI,
		SubjectID:      user.ID,
		CredentialHash: hash,
		CreatedAt:      claims.IssuedAt,
		ExpiresAt:      claims.ExpiresAt,
		RotatedFrom:    rotatedFrom,
	}
	if err := m.store.Insert(ctx, record); err != nil {
		if errors.Is(err, refresh.ErrDuplicateID) {
			// A v4 UUID collision means a broken RNG or store corruption.
			// Not retried; an operator needs to look at this.
			m.logger.Error().Str("jti", claims.JTI).Msg("jti collision on refresh token insert")
		}
		return "", nil, errors.Wrap(err, "[Manager.IssueRefreshToken] insert")
	}
	return raw, claims, nil
}

// VerifyRefreshToken checks a presented raw refresh token end to end:
// signature and structure, type tag, expiry, stored record, revocation
// state, and hash match against the stored digest. Every failure collapses
// to ErrInvalidRefreshToken; the cause is logged, never returned.
func (m *Manager) VerifyRefreshToken(ctx context.Context, raw string) (*refresh.Record, error) {
	record, cause := m.verifyRefreshToken(ctx, raw)
	if cause != nil {
		return nil, m.rejectRefresh("verify", cause)
	}
	return record, nil
}

func (m *Manager) verifyRefreshToken(ctx context.Context, raw string) (*refresh.Record, error) {
	claims, err := m.codec.Decode(raw, true)
	if err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh {
		return nil, ErrWrongType
	}

	record, err := m.store.FindByJTI(ctx, claims.JTI)
	if err != nil {
		if errors.Is(err, refresh.ErrNotFound) {
			return nil, refresh.ErrNotFound
		}
		return nil, errors.Wrap(err, "[Manager.verifyRefreshToken] find")
	}
	if record.Revoked {
		return nil, ErrRevoked
	}
	if record.Expired(m.nowFunc()) {
		return nil, ErrExpired
	}

	// The stored digest binds the record to the exact raw string that was
	// issued. A token that decodes and collides on jti but was not the
	// issued string is a forgery or a replay of stale material.
	ok, err := m.hasher.Verify(raw, record.CredentialHash)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.verifyRefreshToken] hash verify")
	}
	if !ok {
		return nil, ErrHashMismatch
	}
	return record, nil
}

// RotateRefreshToken exchanges a valid refresh token for a fresh token
// pair. The old record is revoked before the successor is issued, so a
// concurrent duplicate rotation of the same raw token observes the record
// as revoked and fails: at most one caller wins the exchange. The new
// record carries RotatedFrom = old jti, preserving the lineage for reuse
// detection and audit.
func (m *Manager) RotateRefreshToken(ctx context.Context, raw string) (*TokenPair, error) {
	record, cause := m.verifyRefreshToken(ctx, raw)
	if cause != nil {
		return nil, m.rejectRefresh("rotate", cause)
	}

	performed, err := m.store.Revoke(ctx, record.JTI)
	if err != nil {
		if errors.Is(err, refresh.ErrNotFound) {
			return nil, m.rejectRefresh("rotate", refresh.ErrNotFound)
		}
		return nil, errors.Wrap(err, "[Manager.RotateRefreshToken] revoke")
	}
	if !performed {
		// Lost the race against a concurrent rotation or logout.
		return nil, m.rejectRefresh("rotate", ErrRevoked)
	}

	user, err := m.directory.GetByID(ctx, record.SubjectID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, m.rejectRefresh("rotate", users.ErrNotFound)
		}
		return nil, errors.Wrap(err, "[Manager.RotateRefreshToken] resolve subject")
	}

	oldJTI := record.JTI
	pair, err := m.issuePair(ctx, user, utils.Ptr(oldJTI))
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.RotateRefreshToken] issue successor")
	}

	m.logger.Info().
		Str("subject", user.ID).
		Str("rotated_from", oldJTI).
		Str("jti", pair.RefreshClaims.JTI).
		Msg("refresh token rotated")
	return pair, nil
}

// Logout revokes the single refresh record named by rawRefresh. The token
// is decoded without expiry enforcement so a client can always end its own
// session. A token that never had a record yields ErrSessionNotFound; a
// record that is already revoked is a success (the session is terminated
// either way).
func (m *Manager) Logout(ctx context.Context, rawRefresh string) error {
	claims, err := m.codec.Decode(rawRefresh, false)
	if err != nil {
		return m.rejectRefresh("logout", err)
	}
	if claims.Type != TypeRefresh {
		return m.rejectRefresh("logout", ErrWrongType)
	}

	_, err = m.store.Revoke(ctx, claims.JTI)
	if err != nil {
		if errors.Is(err, refresh.ErrNotFound) {
			return ErrSessionNotFound
		}
		return errors.Wrap(err, "[Manager.Logout] revoke")
	}

	m.logger.Info().Str("subject", claims.SubjectID).Str("jti", claims.JTI).Msg("refresh token logged out")
	return nil
}

// VerifyAccessToken checks a presented access token's signature, expiry,
// and type tag and returns its claims. Access tokens are self-contained;
// no store round-trip happens here.
func (m *Manager) VerifyAccessToken(raw string) (*Claims, error) {
	claims, err := m.codec.Decode(raw, true)
	if err != nil {
		m.logger.Debug().Str("cause", err.Error()).Msg("access token rejected")
		return nil, ErrInvalidAccessToken
	}
	if claims.Type != TypeAccess {
		m.logger.Debug().Str("cause", ErrWrongType.Error()).Msg("access token rejected")
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}

// LogoutAll revokes every active refresh record owned by the subject of
// rawAccess and returns how many it revoked. It takes an access token, not
// a refresh token, so a client can terminate all of its sessions with the
// credential it actually has on hand; expiry is not enforced for the same
// reason as Logout.
func (m *Manager) LogoutAll(ctx context.Context, rawAccess string) (int64, error) {
	claims, err := m.codec.Decode(rawAccess, false)
	if err != nil {
		m.logger.Warn().Str("op", "logout_all").Str("cause", err.Error()).Msg("access token rejected")
		return 0, ErrInvalidAccessToken
	}
	if claims.Type != TypeAccess {
		m.logger.Warn().Str("op", "logout_all").Str("cause", ErrWrongType.Error()).Msg("access token rejected")
		return 0, ErrInvalidAccessToken
	}

	count, err := m.store.RevokeAllForSubject(ctx, claims.SubjectID)
	if err != nil {
		return 0, errors.Wrap(err, "[Manager.LogoutAll] revoke all")
	}

	m.logger.Info().Str("subject", claims.SubjectID).Int64("revoked", count).Msg("all sessions logged out")
	return count, nil
}

func (m *Manager) issuePair(ctx context.Context, user *users.User, rotatedFrom *string) (*TokenPair, error) {
	refreshRaw, refreshClaims, err := m.IssueRefreshToken(ctx, user, rotatedFrom)
	if err != nil {
		return nil, err
	}
	accessRaw, accessClaims, err := m.codec.IssueAccess(user)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.issuePair] issue access")
	}
	return &TokenPair{
		AccessToken:   accessRaw,
		AccessClaims:  accessClaims,
		RefreshToken:  refreshRaw,
		RefreshClaims: refreshClaims,
	}, nil
}

// rejectRefresh logs the internal cause and returns the single opaque
// public error, so callers cannot distinguish why a token was rejected.
func (m *Manager) rejectRefresh(op string, cause error) error {
	m.logger.Warn().Str("op", op).Str("cause", cause.Error()).Msg("refresh token rejected")
	return ErrInvalidRefreshToken
}
