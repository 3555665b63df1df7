package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Startup connection retries
const ConnectMaxElapsed = 30 * time.Second

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Realtime connection timings
const (
	WSWriteWait      = 10 * time.Second
	WSPongWait       = 60 * time.Second
	WSPingInterval   = 30 * time.Second
	WSMaxMessageSize = 4096
)

// Background job intervals
const (
	RetentionJobInterval = time.Hour
	AnalyticsRetention   = 7 * 24 * time.Hour
)

// Default rate limiting
const DefaultRateLimitPerMin = 60

// Per-address limits for routes that need only a session code
const (
	IPRateLimitPerMin = 120
	IPRateLimitWindow = time.Minute
)
