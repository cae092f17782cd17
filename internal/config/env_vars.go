package config

import (
	"fmt"
	"os"
)

const (
	portEnvVar   = "PORT"
	appNameVar   = "APP_NAME"
	secretKeyVar = "SECRET_KEY"
	envEnvVar    = "ENV"
)

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetSecretKey() string
	GetEnv() string
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Go Token Service")
}

// GetSecretKey returns the HMAC signing secret. There is deliberately no
// default: an empty value must fail startup, never sign tokens.
func (EnvVars) GetSecretKey() string {
	return os.Getenv(secretKeyVar)
}

func (EnvVars) GetEnv() string {
	env := os.Getenv(envEnvVar)
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
