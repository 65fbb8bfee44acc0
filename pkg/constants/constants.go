// Package constants defines SDK-wide constants for the content API client.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Entity Type Constants
// ================================================================================

// EntityType identifies the kind of principal a token session acts for.
type EntityType string

const (
	// EntityTypeEnterprise represents a service account acting for a whole enterprise.
	EntityTypeEnterprise EntityType = "enterprise"

	// EntityTypeUser represents an app user.
	EntityTypeUser EntityType = "user"
)

// IsValid reports whether t is a known entity type.
func (t EntityType) IsValid() bool {
	return t == EntityTypeEnterprise || t == EntityTypeUser
}

// ================================================================================
// Token Constants
// ================================================================================

// TokenType represents the type of authentication token
type TokenType string

const (
	// TokenTypeBearer represents the Bearer token type for HTTP Authorization header
	TokenTypeBearer TokenType = "bearer"

	// TokenTypeAccess is the subject token type used by token exchange.
	TokenTypeAccess TokenType = "urn:ietf:params:oauth:token-type:access_token"
)

// GrantType represents the OAuth 2.0 grant used at the token endpoint.
type GrantType string

const (
	// GrantTypeJWT is the JWT bearer assertion grant.
	GrantTypeJWT GrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// GrantTypeTokenExchange downscopes an existing access token.
	GrantTypeTokenExchange GrantType = "urn:ietf:params:oauth:grant-type:token-exchange"
)

const (
	// AssertionLifetime bounds the exp claim of a JWT assertion. The token endpoint
	// rejects assertions that expire more than 60s in the future.
	AssertionLifetime = 30 * time.Second

	// AssertionAlgorithm is the signing algorithm for JWT assertions.
	AssertionAlgorithm = "RS256"
)

// ================================================================================
// Event Feed Constants
// ================================================================================

// LongPollSignal is the message returned by the realtime long-poll endpoint.
type LongPollSignal string

const (
	// SignalNewChange means new events are available to fetch.
	SignalNewChange LongPollSignal = "new_change"

	// SignalReconnect means the long-poll coordinates must be re-discovered.
	SignalReconnect LongPollSignal = "reconnect"

	// SignalOther covers any other payload, including timeouts.
	SignalOther LongPollSignal = "other"
)

const (
	// RealtimeServerType marks the realtime entry in the long-poll discovery response.
	RealtimeServerType = "realtime_server"

	// StreamPositionNow asks the events endpoint for the current head of the stream.
	StreamPositionNow = "now"

	// DefaultRetryDelay is the delay before re-discovering after a failure.
	DefaultRetryDelay = time.Second

	// DefaultDeduplicationFilterSize is the number of event ids tracked before pruning.
	DefaultDeduplicationFilterSize = 5000

	// DefaultFetchInterval is the minimum spacing between event fetches.
	DefaultFetchInterval = time.Second

	// DefaultFetchLimit is the page size requested from the events endpoint.
	DefaultFetchLimit = 500

	// DefaultErrorBuffer is the capacity of the feed's error notification channel.
	DefaultErrorBuffer = 16
)

// ================================================================================
// Session Constants
// ================================================================================

const (
	// DefaultExpiredBuffer is the margin before expiry at which a token must be refreshed.
	DefaultExpiredBuffer = 3 * time.Minute

	// DefaultStaleBuffer is the margin before expiry at which a token is considered stale.
	DefaultStaleBuffer = 10 * time.Minute
)

// ================================================================================
// HTTP Constants
// ================================================================================

const (
	// DefaultBaseURL is the root of the content API.
	DefaultBaseURL = "https://api.box.com/2.0"

	// DefaultTokenURL is the OAuth 2.0 token endpoint.
	DefaultTokenURL = "https://api.box.com/oauth2/token"

	// DefaultRevokeURL is the OAuth 2.0 revocation endpoint.
	DefaultRevokeURL = "https://api.box.com/oauth2/revoke"

	// DefaultHTTPTimeout bounds ordinary API calls.
	DefaultHTTPTimeout = 60 * time.Second

	// DefaultMaxRetries is the number of retries for 5xx and 429 responses.
	DefaultMaxRetries = 5

	// HeaderAuthorization carries the bearer token.
	HeaderAuthorization = "Authorization"

	// HeaderForwardedFor carries the end-user IP on grant requests.
	HeaderForwardedFor = "X-Forwarded-For"

	// HeaderRequestID correlates a request across retries.
	HeaderRequestID = "X-Request-ID"

	// UserAgent identifies the SDK.
	UserAgent = "contentsdk-go/1.0"
)

// ================================================================================
// Logging Constants
// ================================================================================

// LogLevel represents the severity level of log messages
type LogLevel int

const (
	// LogLevelDebug represents debug-level logging (most verbose)
	LogLevelDebug LogLevel = iota

	// LogLevelInfo represents informational logging
	LogLevelInfo

	// LogLevelWarn represents warning-level logging
	LogLevelWarn

	// LogLevelError represents error-level logging
	LogLevelError
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ================================================================================
// Error Code Constants
// ================================================================================

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	ErrCodeTransport         ErrorCode = "transport_error"
	ErrCodeAuthExpired       ErrorCode = "auth_expired"
	ErrCodeMalformedResponse ErrorCode = "malformed_response"
	ErrCodeStore             ErrorCode = "store_error"
	ErrCodeInvalidConfig     ErrorCode = "invalid_config"
	ErrCodeInvalidGrant      ErrorCode = "invalid_grant"
	ErrCodeFeedClosed        ErrorCode = "feed_closed"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is the type for context keys used by the SDK.
type ContextKey string

const (
	// ContextKeyRequestID carries the request id of the current outbound call.
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyTraceID carries the trace id of the current operation.
	ContextKeyTraceID ContextKey = "trace_id"
)
