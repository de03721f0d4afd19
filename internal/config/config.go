package config

import "time"

type Config interface {
	EnvConfig
	APIConfig
	SecurityConfig
	StoreConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetEnv() string
}

// APIConfig describes how the portal reaches the REST backend and the hosted payment gateway.
type APIConfig interface {
	GetAPIBaseURL() string
	GetAPITimeout() time.Duration
	GetPaymentMode() string
}

type mainConfig struct {
	EnvVars
	API
	Security
	Store
}

func New() Config {
	return mainConfig{}
}
