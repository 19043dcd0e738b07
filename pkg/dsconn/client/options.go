package client

import (
	"time"

	"go.uber.org/zap"

	"github.com/tsarna/dsconn/pkg/dsconn/connection"
	"github.com/tsarna/dsconn/pkg/dsconn/metrics"
	"github.com/tsarna/dsconn/pkg/dsconn/record"
)

// Option configures a Client at construction. The functional-options form is used rather
// than a builder type, since Client has no other multi-step build sequence to chain
// against and every field has a sane zero-value-free default.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	metrics   metrics.Provider
	connCfg   connection.Config
	recordCfg record.Config
}

func defaultOptions() options {
	return options{
		logger:    zap.NewNop(),
		metrics:   metrics.NewNopProvider(),
		connCfg:   connection.DefaultConfig(),
		recordCfg: record.DefaultConfig(),
	}
}

// WithHeartbeatInterval sets the liveness tick period (spec §4.D).
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *options) { o.connCfg.HeartbeatInterval = d }
}

// WithReconnectIntervalIncrement sets the per-attempt backoff step.
func WithReconnectIntervalIncrement(d time.Duration) Option {
	return func(o *options) { o.connCfg.ReconnectIntervalIncrement = d }
}

// WithMaxReconnectInterval caps the backoff delay between reconnect attempts.
func WithMaxReconnectInterval(d time.Duration) Option {
	return func(o *options) { o.connCfg.MaxReconnectInterval = d }
}

// WithMaxReconnectAttempts terminates reconnection after n consecutive failed attempts.
func WithMaxReconnectAttempts(n int) Option {
	return func(o *options) { o.connCfg.MaxReconnectAttempts = n }
}

// WithAuthenticationTimeout bounds how long Login waits in AUTHENTICATING before the
// Connection Core gives up and transitions to AUTHENTICATION_TIMEOUT.
func WithAuthenticationTimeout(d time.Duration) Option {
	return func(o *options) { o.connCfg.AuthenticationTimeout = d }
}

// WithDialTimeout bounds how long a single dial attempt may take.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.connCfg.DialTimeout = d }
}

// WithWriteChannelSize sets the outbound socket write queue depth.
func WithWriteChannelSize(n int) Option {
	return func(o *options) { o.connCfg.WriteChannelSize = n }
}

// WithRecordReadAckTimeout bounds how long a Record waits for ACK after CREATEORREAD.
func WithRecordReadAckTimeout(d time.Duration) Option {
	return func(o *options) { o.recordCfg.ReadAckTimeout = d }
}

// WithRecordReadTimeout bounds how long a Record waits, counted from sending CREATEORREAD,
// for the server's READ.
func WithRecordReadTimeout(d time.Duration) Option {
	return func(o *options) { o.recordCfg.ReadTimeout = d }
}

// WithRecordDeleteTimeout bounds how long a Record waits, after sending DELETE, for the
// server's DELETE message confirming it.
func WithRecordDeleteTimeout(d time.Duration) Option {
	return func(o *options) { o.recordCfg.DeleteTimeout = d }
}

// WithLogger injects a structured logger used by every owned component. Defaults to
// zap.NewNop() (spec §8).
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsProvider injects a metrics backend used by the Connection Core; the Record
// Engine records no metrics. Defaults to metrics.NewNopProvider() (spec §8).
func WithMetricsProvider(mp metrics.Provider) Option {
	return func(o *options) {
		if mp != nil {
			o.metrics = mp
		}
	}
}
