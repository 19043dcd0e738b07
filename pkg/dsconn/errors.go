package dsconn

import "errors"

// Error sentinels for the user-visible error kinds enumerated in §7. Collected here,
// rather than left as ad-hoc fmt.Errorf call sites, so callers can errors.Is against a
// stable kind regardless of the wrapping added at each boundary.
var (
	// Transport
	ErrConnectionError                = errors.New("dsconn: connection error")
	ErrIsClosed                       = errors.New("dsconn: connection is closed")
	ErrHeartbeatTimeout               = errors.New("dsconn: heartbeat timeout")
	ErrMaxReconnectionAttemptsReached = errors.New("dsconn: maximum reconnection attempts reached")
	ErrClientOffline                  = errors.New("dsconn: client offline")

	// Auth
	ErrInvalidAuthenticationDetails = errors.New("dsconn: invalid authentication details")
	ErrAuthenticationTimeout        = errors.New("dsconn: authentication timeout")
	ErrTooManyAuthAttempts          = errors.New("dsconn: too many authentication attempts")
	ErrReauthenticationFailure      = errors.New("dsconn: reauthentication failure")
	ErrInvalidAuthParams            = errors.New("dsconn: authentication params must be a map[string]any")
	ErrNotAwaitingAuthentication    = errors.New("dsconn: authenticate called outside AWAITING_AUTHENTICATION")

	// Protocol
	ErrUnsolicitedMessage   = errors.New("dsconn: unsolicited message")
	ErrUnknownCorrelationID = errors.New("dsconn: unknown correlation id")

	// Record
	ErrAckTimeout             = errors.New("dsconn: record ack timeout")
	ErrResponseTimeout        = errors.New("dsconn: record response timeout")
	ErrVersionExists          = errors.New("dsconn: version mismatch")
	ErrRecordAlreadyDestroyed = errors.New("dsconn: record already destroyed")
	ErrRecordDeleteTimeout    = errors.New("dsconn: record delete timeout")
	ErrRecordNotReady         = errors.New("dsconn: record not ready")
)
