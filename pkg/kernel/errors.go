package kernel

import "fmt"

// Error codes produced by the kernel. Family profiles may refine the code
// through their error mapping hook; the kernel itself only knows about
// transport-level conditions.
const (
	CodeConnection   = "connection_error"
	CodeTimeout      = "upstream_timeout"
	CodeCancelled    = "cancelled"
	CodeAuthRejected = "auth_rejected"
	CodeRateLimited  = "rate_limited"
	CodeUpstream     = "upstream_error"
	CodeTokenExpired = "token_expired"
)

// Error is the normalized upstream error shape. Every failure leaving the
// kernel is one of these, carrying enough context to correlate the failure
// with a request and a provider key.
type Error struct {
	// StatusCode is the upstream HTTP status, or 0 for transport errors.
	StatusCode int

	// Code classifies the failure (see the Code constants).
	Code string

	// UpstreamCode is a provider-specific business error code extracted
	// by a family profile (e.g. iFlow status 439), when one exists.
	UpstreamCode int

	// ProviderKey identifies the provider entry the request targeted.
	ProviderKey string

	// RequestID correlates the failure with the inbound request.
	RequestID string

	// Body is the raw upstream error body, truncated for transport.
	Body string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream %q error (status %d, code %s): %s",
			e.ProviderKey, e.StatusCode, e.Code, e.Body)
	}
	return fmt.Sprintf("upstream %q error (code %s): %v", e.ProviderKey, e.Code, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the kernel retry policy may re-attempt after
// this error. Only connection failures and 5xx responses are retryable;
// auth failures, rate limits, and 4xx responses are surfaced immediately.
func (e *Error) Retryable() bool {
	if e.Code == CodeConnection {
		return true
	}
	return e.StatusCode >= 500
}

// CredentialError indicates credential material could not be assembled.
type CredentialError struct {
	// ProviderKey identifies the provider whose credential failed.
	ProviderKey string

	// Message describes the failure.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential for provider %q: %s", e.ProviderKey, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *CredentialError) Unwrap() error {
	return e.Cause
}

// truncate bounds raw upstream bodies carried inside errors.
func truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "...(truncated)"
}
