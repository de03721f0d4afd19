package config

import "time"

type SecurityConfig interface {
	GetMaxSessionAge() time.Duration
	GetSecureCookies() bool
	GetRestoreWait() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetMaxSessionAge bounds how long a portal browser session (and its stored tokens) is kept
func (Security) GetMaxSessionAge() time.Duration {
	return GetDurationEnv("SESSION_MAX_AGE", 7*24*time.Hour)
}

func (Security) GetSecureCookies() bool {
	return GetBoolEnv("SECURE_COOKIES", false)
}

// GetRestoreWait is how long a guarded request waits for a session restore before
// rendering the pending placeholder instead
func (Security) GetRestoreWait() time.Duration {
	return GetDurationEnv("RESTORE_WAIT", 2*time.Second)
}
