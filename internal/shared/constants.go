package shared

import "time"

// HTTP Client Configuration
const (
	// Buffered agent calls are expected to finish quickly; streaming agent
	// calls can run for minutes while the agent produces output.
	BufferedRequestTimeout = 60 * time.Second
	StreamRequestTimeout   = 120 * time.Second

	DefaultShutdownTimeout = 10 * time.Second
)

// Cache Configuration
const (
	UserInfoCacheTTL = 1 * time.Minute
)

// ID Configuration
const (
	RequestIDLength   = 28
	RequestIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

	FileIDLength   = 32
	FileIDAlphabet = "0123456789abcdef"
)

// Audit Configuration
const (
	BucketFlushInterval = 1 * time.Minute
	BucketRetryDelay    = 30 * time.Second
	MaxFlushRetries     = 3
)
