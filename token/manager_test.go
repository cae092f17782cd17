package token_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/avasquez-dev/go-token-service/credential"
	"github.com/avasquez-dev/go-token-service/token"
	"github.com/avasquez-dev/go-token-service/token/refresh"
	refreshfake "github.com/avasquez-dev/go-token-service/token/refresh/repofake"
	"github.com/avasquez-dev/go-token-service/users"
	userfake "github.com/avasquez-dev/go-token-service/users/repofake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testUsername = "jdoe"
	testPassword = "Password123"
)

type managerFixture struct {
	manager   *token.Manager
	codec     *token.Codec
	store     *refreshfake.FakeRefreshStore
	directory *userfake.FakeDirectory
	userID    string
}

// fastHashParams keeps argon2id cheap enough for test loops while staying
// above the hasher's validation floor.
func fastHashParams() credential.Params {
	return credential.Params{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
}

func setupManagerFixture(t *testing.T, options ...token.ManagerOption) *managerFixture {
	t.Helper()

	codec, err := token.NewCodec(token.NewHMACSigner(secretStr), testConfig())
	require.NoError(t, err)

	hasher, err := credential.NewHasher(fastHashParams())
	require.NoError(t, err)

	store := refreshfake.NewFakeRefreshStore()
	directory := userfake.NewFakeDirectory()

	user, err := directory.Create(context.Background(), testUsername, testPassword)
	require.NoError(t, err)

	manager, err := token.NewManager(codec, hasher, store, directory, options...)
	require.NoError(t, err)

	return &managerFixture{
		manager:   manager,
		codec:     codec,
		store:     store,
		directory: directory,
		userID:    user.ID,
	}
}

func (f *managerFixture) login(t *testing.T) *token.TokenPair {
	t.Helper()
	pair, err := f.manager.Login(context.Background(), testUsername, testPassword)
	require.NoError(t, err)
	return pair
}

func (f *managerFixture) user(t *testing.T) *users.User {
	t.Helper()
	user, err := f.directory.GetByID(context.Background(), f.userID)
	require.NoError(t, err)
	return user
}

func TestNewManagerValidation(t *testing.T) {
	codec, err := token.NewCodec(token.NewHMACSigner(secretStr), testConfig())
	require.NoError(t, err)
	hasher, err := credential.NewHasher(fastHashParams())
	require.NoError(t, err)
	store := refreshfake.NewFakeRefreshStore()
	directory := userfake.NewFakeDirectory()

	_, err = token.NewManager(nil, hasher, store, directory)
	require.Error(t, err)
	_, err = token.NewManager(codec, nil, store, directory)
	require.Error(t, err)
	_, err = token.NewManager(codec, hasher, nil, directory)
	require.Error(t, err)
	_, err = token.NewManager(codec, hasher, store, nil)
	require.Error(t, err)
}

func TestLoginIssuesPair(t *testing.T) {
	f := setupManagerFixture(t)

	pair := f.login(t)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, token.TypeAccess, pair.AccessClaims.Type)
	require.Equal(t, token.TypeRefresh, pair.RefreshClaims.Type)
	require.Equal(t, f.userID, pair.AccessClaims.SubjectID)

	record, err := f.store.FindByJTI(context.Background(), pair.RefreshClaims.JTI)
	require.NoError(t, err)
	require.Equal(t, f.userID, record.SubjectID)
	require.Nil(t, record.RotatedFrom)
	require.False(t, record.Revoked)
	require.NotEqual(t, pair.RefreshToken, record.CredentialHash, "raw token must not be stored")
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := setupManagerFixture(t)

	_, err := f.manager.Login(context.Background(), testUsername, "WrongPassword1")
	require.Error(t, err)

	_, err = f.manager.Login(context.Background(), "nobody", testPassword)
	require.Error(t, err)
}

func TestVerifyRefreshTokenHappyPath(t *testing.T) {
	f := setupManagerFixture(t)
	pair := f.login(t)

	record, err := f.manager.VerifyRefreshToken(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, pair.RefreshClaims.JTI, record.JTI)

	// Verification alone does not consume the token.
	_, err = f.manager.VerifyRefreshToken(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
}

func TestVerifyRefreshTokenCollapsesFailures(t *testing.T) {
	f := setupManagerFixture(t)
	pair := f.login(t)
	ctx := context.Background()

	// Garbage, foreign signature, access-token-as-refresh, and unknown jti
	// must all yield the same opaque error.
	_, err := f.manager.VerifyRefreshToken(ctx, "garbage")
	require.ErrorIs(t, err, token.ErrInvalidRefreshToken)

	foreignCodec, err := token.NewCodec(token.NewHMACSigner("other-secret"), testConfig())
	require.NoError(t, err)
	foreignRaw, _, err := foreignCodec.IssueRefresh(f.user(t))
	require.NoError(t, err)
	_, err = f.manager.VerifyRefreshToken(ctx, foreignRaw)
	require.ErrorIs(t, err, token.ErrInvalidRefreshToken)

	_, err = f.manager.VerifyRefreshToken(ctx, pair.AccessToken)
	require.ErrorIs(t, err, token.ErrInvalidRefreshToken)

	orphanRaw, _, err := f.codec.IssueRefresh(f.user(t))
	require.NoError(t, err)
	_, err = f.manager.VerifyRefreshToken(ctx, orphanRaw)
	require.ErrorIs(t, err, token.ErrInvalidRefreshToken)
}

func TestVerifyRefreshTokenRejectsRevoked(t *testing.T) {
	f := setupManagerFixture(t)
	pair := f.login(t)
	ctx := context.Background()

	performed, err := f.store.Revoke(ctx, pair.RefreshClaims.JTI)
	require.NoError(t, err)
	require.True(t, performed)

	_, err = f.manager.VerifyRefreshToken(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, token.ErrInvalidRefreshToken)
}

func TestVerifyRefreshTokenExpiredRecord(t *testing.T) {
	f := setupManagerFixture(t, token.WithNowFunc(func() time.Time {
		return time.Now().Add(8 * 24 * time.Hour)
	}))
	pair := f.login(t)

	// The signed token decodes fine against real time; only the manager's
	// clock has advanced past the record's ExpiresAt, so this isolates the
	// record-level expiry check.
	record, err := f.store.FindByJTI(context.Background(), pair.RefreshClaims.JTI)
	require.NoError(t, err)
	require.True(t, record.Expired(time.Now().Add(8*24*time.Hour)))

	_, err = f.manager.VerifyRefreshToken(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, token.ErrInvalidRefreshToken)
}

func TestRotateRefreshToken(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()
	pair := f.login(t)

	rotated, err := f.manager.RotateRefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	require.NotEqual(t, pair.RefreshClaims.JTI, rotated.RefreshClaims.JTI)
	require.NotEmpty(t, rotated.AccessToken)

	// Old record is revoked, successor carries the lineage.
	oldRecord, err := f.store.FindByJTI(ctx, pair.RefreshClaims.JTI)
	require.NoError(t, err)
	require.True(t, oldRecord.Revoked)

	newRecord, err := f.store.FindByJTI(ctx, rotated.RefreshClaims.JTI)
	require.NoError(t, err)
	require.False(t, newRecord.Revoked)
	require.NotNil(t, newRecord.RotatedFrom)
	require.Equal(t, pair.RefreshClaims.JTI, *newRecord.RotatedFrom)

	// The new token verifies, the old one no longer does.
	_, err = f.manager.VerifyRefreshToken(ctx, rotated.RefreshToken)
	require.NoError(t, err)
	_, err = f.manager.VerifyRefreshToken(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, token.ErrInvalidRefreshToken)
}

func TestRotateDetectsReuse(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()
	pair := f.login(t)

	_, err := f.manager.RotateRefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)

	// Presenting the consumed token again is the reuse signal.
	_, err = f.manager.RotateRefreshToken(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, token.ErrInvalidRefreshToken)
}

func TestRotateChain(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()
	pair := f.login(t)

	jtis := []string{pair.RefreshClaims.JTI}
	raw := pair.RefreshToken
	for i := 0; i < 4; i++ {
		rotated, err := f.manager.RotateRefreshToken(ctx, raw)
		require.NoError(t, err)
		jtis = append(jtis, rotated.RefreshClaims.JTI)
		raw = rotated.RefreshToken
	}

	// Walk the lineage backwards through RotatedFrom.
	for i := len(jtis) - 1; i > 0; i-- {
		record, err := f.store.FindByJTI(ctx, jtis[i])
		require.NoError(t, err)
		require.NotNil(t, record.RotatedFrom)
		require.Equal(t, jtis[i-1], *record.RotatedFrom)
	}
	root, err := f.store.FindByJTI(ctx, jtis[0])
	require.NoError(t, err)
	require.Nil(t, root.RotatedFrom)
}

func TestConcurrentRotationSingleWinner(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()
	pair := f.login(t)

	const rotators = 16
	var wg sync.WaitGroup
	results := make(chan error, rotators)

	wg.Add(rotators)
	for i := 0; i < rotators; i++ {
		go func() {
			defer wg.Done()
			_, err := f.manager.RotateRefreshToken(ctx, pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		switch {
		case err == nil:
			wins++
		default:
			require.ErrorIs(t, err, token.ErrInvalidRefreshToken)
			losses++
		}
	}
	require.Equal(t, 1, wins, "exactly one rotation may win")
	require.Equal(t, rotators-1, losses)

	// The original plus exactly one active successor: sweeping the
	// subject's sessions finds a single live record.
	count, err := f.store.RevokeAllForSubject(ctx, f.userID)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestVerifyRejectsHashMismatch(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()
	pair := f.login(t)

	// Forge a second token carrying the stored jti: correctly signed and
	// the record exists, but it is not the string whose hash was stored.
	signer := token.NewHMACSigner(secretStr)
	now := time.Now()
	forged, err := signer.Sign(jwt.MapClaims{
		"sub":  f.userID,
		"type": token.TypeRefresh,
		"jti":  pair.RefreshClaims.JTI,
		"iss":  refreshIssuer,
		"iat":  now.Add(-time.Minute).Unix(),
		"exp":  now.Add(24 * time.Hour).Unix(),
	})
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, forged)

	_, err = f.manager.VerifyRefreshToken(ctx, forged)
	require.ErrorIs(t, err, token.ErrInvalidRefreshToken)

	// The genuine token is untouched by the failed attempt.
	_, err = f.manager.VerifyRefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
}

func TestLogout(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()
	pair := f.login(t)

	require.NoError(t, f.manager.Logout(ctx, pair.RefreshToken))

	record, err := f.store.FindByJTI(ctx, pair.RefreshClaims.JTI)
	require.NoError(t, err)
	require.True(t, record.Revoked)

	// Logging out an already-terminated session is not an error.
	require.NoError(t, f.manager.Logout(ctx, pair.RefreshToken))

	// But the token no longer verifies or rotates.
	_, err = f.manager.VerifyRefreshToken(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, token.ErrInvalidRefreshToken)
}

func TestLogoutUnknownSession(t *testing.T) {
	f := setupManagerFixture(t)

	// Well-signed refresh token that was never persisted.
	raw, _, err := f.codec.IssueRefresh(f.user(t))
	require.NoError(t, err)

	err = f.manager.Logout(context.Background(), raw)
	require.ErrorIs(t, err, token.ErrSessionNotFound)
}

func TestLogoutRejectsAccessToken(t *testing.T) {
	f := setupManagerFixture(t)
	pair := f.login(t)

	err := f.manager.Logout(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, token.ErrInvalidRefreshToken)
}

func TestLogoutAcceptsExpiredToken(t *testing.T) {
	past := time.Now().Add(-30 * 24 * time.Hour)
	expiredCodec, err := token.NewCodec(token.NewHMACSigner(secretStr), testConfig(),
		token.WithCodecNowFunc(func() time.Time { return past }))
	require.NoError(t, err)

	f := setupManagerFixture(t)
	ctx := context.Background()

	user, err := f.directory.GetByID(ctx, f.userID)
	require.NoError(t, err)

	raw, claims, err := expiredCodec.IssueRefresh(user)
	require.NoError(t, err)
	require.NoError(t, f.store.Insert(ctx, &refresh.Record{
		JTI:            claims.JTI,
		SubjectID:      user.ID,
		CredentialHash: "unused",
		CreatedAt:      claims.IssuedAt,
		ExpiresAt:      claims.ExpiresAt,
	}))

	// The session record outlived the token's validity; the client can
	// still end it.
	require.NoError(t, f.manager.Logout(ctx, raw))

	record, err := f.store.FindByJTI(ctx, claims.JTI)
	require.NoError(t, err)
	require.True(t, record.Revoked)
}

func TestLogoutAll(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()

	first := f.login(t)
	second := f.login(t)
	third := f.login(t)

	// A session belonging to someone else must survive.
	_, err := f.directory.Create(ctx, "other", "Password123")
	require.NoError(t, err)
	otherPair, err := f.manager.Login(ctx, "other", "Password123")
	require.NoError(t, err)

	count, err := f.manager.LogoutAll(ctx, first.AccessToken)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	for _, pair := range []*token.TokenPair{first, second, third} {
		_, err := f.manager.VerifyRefreshToken(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, token.ErrInvalidRefreshToken)
	}
	_, err = f.manager.VerifyRefreshToken(ctx, otherPair.RefreshToken)
	require.NoError(t, err)

	// A second sweep has nothing left to revoke.
	count, err = f.manager.LogoutAll(ctx, first.AccessToken)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestLogoutAllRejectsRefreshToken(t *testing.T) {
	f := setupManagerFixture(t)
	pair := f.login(t)

	_, err := f.manager.LogoutAll(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, token.ErrInvalidAccessToken)

	_, err = f.manager.LogoutAll(context.Background(), "garbage")
	require.ErrorIs(t, err, token.ErrInvalidAccessToken)
}

func TestVerifyAccessToken(t *testing.T) {
	f := setupManagerFixture(t)
	pair := f.login(t)

	claims, err := f.manager.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, f.userID, claims.SubjectID)
	require.Equal(t, token.TypeAccess, claims.Type)

	_, err = f.manager.VerifyAccessToken(pair.RefreshToken)
	require.ErrorIs(t, err, token.ErrInvalidAccessToken)

	_, err = f.manager.VerifyAccessToken("garbage")
	require.ErrorIs(t, err, token.ErrInvalidAccessToken)
}

func TestIssueAccessTokenIsPure(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()

	user, err := f.directory.GetByID(ctx, f.userID)
	require.NoError(t, err)

	raw, claims, err := f.manager.IssueAccessToken(user)
	require.NoError(t, err)
	require.Equal(t, token.TypeAccess, claims.Type)

	// No record is created for access tokens.
	_, err = f.store.FindByJTI(ctx, claims.JTI)
	require.ErrorIs(t, err, refresh.ErrNotFound)

	decoded, err := f.codec.Decode(raw, true)
	require.NoError(t, err)
	require.Equal(t, f.userID, decoded.SubjectID)
}
