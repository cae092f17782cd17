package config

import "time"

type TokenConfig interface {
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetAccessTokenIssuer() string
	GetRefreshTokenIssuer() string
	GetTokenLeeway() time.Duration
}

type Tokens struct{}

var _ TokenConfig = Tokens{}

func (Tokens) GetAccessTokenTTL() time.Duration {
	return getDuration("ACCESS_TOKEN_TTL", 15*time.Minute)
}

func (Tokens) GetRefreshTokenTTL() time.Duration {
	return getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour)
}

func (Tokens) GetAccessTokenIssuer() string {
	return GetEnv("ACCESS_TOKEN_ISSUER", "go-token-service")
}

func (Tokens) GetRefreshTokenIssuer() string {
	return GetEnv("REFRESH_TOKEN_ISSUER", "go-token-service")
}

// GetTokenLeeway is the clock-skew tolerance applied when verifying token
// expiry. Zero by default: expiry is exact unless an operator opts in.
func (Tokens) GetTokenLeeway() time.Duration {
	return getDuration("TOKEN_LEEWAY", 0)
}

// getDuration parses an env var in time.Duration syntax ("15m", "168h"),
// falling back to defaultValue when unset or unparseable.
func getDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := GetEnv(envVar, "")
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
