package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	portEnvVar   = "PORT"
	appNameVar   = "APP_NAME"
	folderEnvVar = "FOLDER"
)

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
	return GetEnv(appNameVar, "CypherX Portal")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

type API struct{}

var _ APIConfig = API{}

// GetAPIBaseURL returns the REST backend root, e.g. "http://127.0.0.1:8000"
func (API) GetAPIBaseURL() string {
	return GetEnv("API_BASE_URL", "http://127.0.0.1:8000")
}

func (API) GetAPITimeout() time.Duration {
	return GetDurationEnv("API_TIMEOUT", 15*time.Second)
}

// GetPaymentMode returns "LIVE" for the production gateway, anything else selects the test gateway
func (API) GetPaymentMode() string {
	return GetEnv("PAYMENT_MODE", "TEST")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDurationEnv parses a Go duration string ("30m", "12h"), falling back on empty or invalid input
func GetDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func GetBoolEnv(envVar string, defaultValue bool) bool {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
