package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

const (
	TokenStoreMemory = "memory"
	TokenStoreRedis  = "redis"
	TokenStoreFile   = "file"
)

type StoreConfig interface {
	GetTokenStore() string
	GetTokenSealKey() string
}

type Store struct{}

var _ StoreConfig = Store{}

// GetTokenStore selects where portal sessions keep their token pairs
func (Store) GetTokenStore() string {
	return GetEnv("TOKEN_STORE", TokenStoreMemory)
}

// GetTokenSealKey returns the base64 secretbox key used to seal stored tokens, empty disables sealing
func (Store) GetTokenSealKey() string {
	return GetEnv("TOKEN_SEAL_KEY", "")
}

// Redis holds the connection settings for the redis token store
type Redis struct {
	URL    string `envconfig:"URL" default:"redis://localhost:6379/0"`
	Prefix string `envconfig:"PREFIX" default:"secportal"`
}

// LoadRedis reads REDIS_* variables
func LoadRedis() (Redis, error) {
	r := Redis{}
	if err := envconfig.Process("REDIS", &r); err != nil {
		return Redis{}, fmt.Errorf("[config LoadRedis] error reading redis configuration: %w", err)
	}
	return r, nil
}
