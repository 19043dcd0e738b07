package connection

import "time"

// Config bundles the Connection Core's tunables. Defaults are generous timeouts that work
// against a real network rather than a loopback test fixture, and every field is
// overridable through a functional option (spec §6).
type Config struct {
	HeartbeatInterval          time.Duration
	ReconnectIntervalIncrement time.Duration
	MaxReconnectInterval       time.Duration
	MaxReconnectAttempts       int
	DialTimeout                time.Duration
	WriteChannelSize           int
	// AuthenticationTimeout bounds how long the core waits in AUTHENTICATING for
	// AUTH_SUCCESSFUL/AUTH_UNSUCCESSFUL before giving up (state enum declares
	// AUTHENTICATION_TIMEOUT; the source left its deadline unspecified, so this module
	// adds one rather than leaving the state unreachable).
	AuthenticationTimeout time.Duration
}

// DefaultConfig returns the Connection Core's default tunables.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:          30 * time.Second,
		ReconnectIntervalIncrement: 2 * time.Second,
		MaxReconnectInterval:       30 * time.Second,
		MaxReconnectAttempts:       10,
		DialTimeout:                30 * time.Second,
		WriteChannelSize:           100,
		AuthenticationTimeout:      20 * time.Second,
	}
}
