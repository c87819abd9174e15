package repository

import "time"

const (
	defaultMaxOpenConns = 16
	defaultPingTimeout  = 5 * time.Second
)

type options struct {
	maxOpenConns int
	pingTimeout  time.Duration
}

func defaultOptions() options {
	return options{
		maxOpenConns: defaultMaxOpenConns,
		pingTimeout:  defaultPingTimeout,
	}
}

// Option applies a configuration option to Open.
type Option func(*options)

// WithMaxOpenConns caps the PostgreSQL connection pool. SQLite always uses one
// connection.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}

// WithPingTimeout bounds the connectivity check in Open.
func WithPingTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pingTimeout = d
		}
	}
}
