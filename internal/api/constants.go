package api

// API limits and constants.
const (
	// DefaultMaxUploadBytes caps a WXR document sent to the start and preview endpoints (256 MiB).
	DefaultMaxUploadBytes = 256 << 20

	// authRateLimitPerMinute bounds requests per client IP on the import routes.
	authRateLimitPerMinute = 120
	authRateLimitBurst     = 30
)
