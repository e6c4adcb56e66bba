package shared

import "time"

// UserMetadata is the validated identity attached to a request. It is
// produced by the identity validator (users package) and trusted as-is by
// everything downstream of the auth middleware.
type UserMetadata struct {
	UserID   uint64 `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	IsAdmin  bool   `json:"is_admin,omitempty"`

	APIKey string `json:"-"`
}

// AgentProxyRequest is the inbound body for the proxy endpoint.
type AgentProxyRequest struct {
	Agent  string         `json:"agent"`
	Params map[string]any `json:"params"`
}

// StreamError is the in-band error frame synthesized by the stream relay.
type StreamError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse is the caller-facing JSON error body.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// ProxyRecord is one completed proxy call, buffered by the audit cache and
// flushed to the database in batches.
type ProxyRecord struct {
	UserID        uint64
	RequestID     string
	Agent         string
	Stream        bool
	StatusCode    int
	ChunksRelayed int
	TotalTime     time.Duration
	CreatedAt     time.Time
}
