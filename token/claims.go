package token

import (
	"time"

	"github.com/avasquez-dev/go-token-service/users"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Token type tags. Every issued token carries exactly one, and every
// verification path checks it, so an access token is never accepted where
// a refresh token is required or vice versa.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Config carries the signing parameters supplied at construction. It is
// immutable once passed in; nothing in the service reads ambient state.
type Config struct {
	AccessTTL     time.Duration // Minutes-scale lifetime for access tokens
	RefreshTTL    time.Duration // Days-scale lifetime for refresh tokens
	AccessIssuer  string        // iss claim for access tokens
	RefreshIssuer string        // iss claim for refresh tokens
	Leeway        time.Duration // Clock-skew tolerance applied at verification; 0 = none
}

// Claims is the decoded claim set of an issued token. Access claims are
// ephemeral; refresh claims are mirrored durably as a refresh.Record keyed
// by JTI.
type Claims struct {
	SubjectID   string
	DisplayName string // Access tokens only
	Type        string // TypeAccess or TypeRefresh
	JTI         string
	Issuer      string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Codec encodes and decodes signed, time-bounded claim sets over a Signer.
// It is stateless: issuance is a pure function of (user, now, config, key).
type Codec struct {
	signer  Signer
	config  Config
	nowFunc func() time.Time
}

// CodecOption defines a function type to modify the Codec instance.
type CodecOption func(*Codec)

// WithCodecNowFunc sets the now time function (primarily for testing)
func WithCodecNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

// NewCodec validates the config and returns a Codec.
func NewCodec(signer Signer, config Config, options ...CodecOption) (*Codec, error) {
	if signer == nil {
		return nil, errors.New("[NewCodec] signer is required")
	}
	if config.AccessTTL <= 0 || config.RefreshTTL <= 0 {
		return nil, errors.New("[NewCodec] token TTLs must be positive")
	}
	if config.AccessIssuer == "" || config.RefreshIssuer == "" {
		return nil, errors.New("[NewCodec] token issuers are required")
	}
	if config.Leeway < 0 {
		return nil, errors.New("[NewCodec] leeway must not be negative")
	}

	codec := &Codec{
		signer:  signer,
		config:  config,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(codec)
	}
	return codec, nil
}

// IssueAccess signs a short-lived access token for user with a fresh jti.
// No state is touched; the token is self-contained.
func (c *Codec) IssueAccess(user *users.User) (string, *Claims, error) {
	now := c.nowFunc()
	claims := &Claims{
		SubjectID:   user.ID,
		DisplayName: user.DisplayName,
		Type:        TypeAccess,
		JTI:         uuid.New().String(),
		Issuer:      c.config.AccessIssuer,
		IssuedAt:    now,
		ExpiresAt:   now.Add(c.config.AccessTTL),
	}
	raw, err := c.sign(claims)
	if err != nil {
		return "", nil, errors.Wrap(err, "[Codec.IssueAccess] sign")
	}
	return raw, claims, nil
}

// IssueRefresh signs a long-lived refresh token for user with a fresh jti.
func (c *Codec) IssueRefresh(user *users.User) (string, *Claims, error) {
	now := c.nowFunc()
	claims := &Claims{
		SubjectID: user.ID,
		Type:      TypeRefresh,
		JTI:       uuid.New().String(),
		Issuer:    c.config.RefreshIssuer,
		IssuedAt:  now,
		ExpiresAt: now.Add(c.config.RefreshTTL),
	}
	raw, err := c.sign(claims)
	if err != nil {
		return "", nil, errors.Wrap(err, "[Codec.IssueRefresh] sign")
	}
	return raw, claims, nil
}

// Decode verifies raw structurally and cryptographically and returns its
// claims. With checkExpiry false the signature is still verified but an
// elapsed exp is tolerated; logout paths use this to recover the jti or
// subject from a token that has already expired. Callers must check
// Claims.Type themselves.
func (c *Codec) Decode(raw string, checkExpiry bool) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.signer.GetSigningMethod().Alg()}),
	}
	if checkExpiry {
		options = append(options, jwt.WithExpirationRequired())
		if c.config.Leeway > 0 {
			options = append(options, jwt.WithLeeway(c.config.Leeway))
		}
	} else {
		options = append(options, jwt.WithoutClaimsValidation())
	}

	parsed, err := jwt.NewParser(options...).Parse(raw, c.signer.GetVerificationKey)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrSignatureInvalid
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, ErrMalformed
		}
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformed
	}
	return claimsFromMap(mapClaims)
}

func (c *Codec) sign(claims *Claims) (string, error) {
	mapClaims := jwt.MapClaims{
		"sub":  claims.SubjectID,
		"type": claims.Type,
		"jti":  claims.JTI,
		"iss":  claims.Issuer,
		"iat":  claims.IssuedAt.Unix(),
		"exp":  claims.ExpiresAt.Unix(),
	}
	if claims.DisplayName != "" {
		mapClaims["name"] = claims.DisplayName
	}
	return c.signer.Sign(mapClaims)
}

func claimsFromMap(mapClaims jwt.MapClaims) (*Claims, error) {
	sub, _ := mapClaims["sub"].(string)
	tokenType, _ := mapClaims["type"].(string)
	jti, _ := mapClaims["jti"].(string)
	if sub == "" || tokenType == "" || jti == "" {
		return nil, ErrMalformed
	}

	iat, iatOK := mapClaims["iat"].(float64)
	exp, expOK := mapClaims["exp"].(float64)
	if !iatOK || !expOK || exp == 0 {
		return nil, ErrMalformed
	}

	name, _ := mapClaims["name"].(string)
	iss, _ := mapClaims["iss"].(string)

	return &Claims{
		SubjectID:   sub,
		DisplayName: name,
		Type:        tokenType,
		JTI:         jti,
		Issuer:      iss,
		IssuedAt:    time.Unix(int64(iat), 0),
		ExpiresAt:   time.Unix(int64(exp), 0),
	}, nil
}
