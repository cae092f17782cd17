// Package config reads service configuration from the environment. Every
// setting has a development default except SECRET_KEY, which callers must
// validate before signing anything with it.
package config

type Config interface {
	EnvConfig
	TokenConfig
	StoreConfig
}

type mainConfig struct {
	EnvVars
	Tokens
	Store
}

func New() Config {
	return mainConfig{}
}
