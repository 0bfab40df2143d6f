package client

import "errors"

// ProviderErrorKind distinguishes the failure classes of the generation
// API. Every kind maps to a user-displayable message; none of them are
// swallowed on the submission path.
type ProviderErrorKind string

const (
	ErrKindAuth        ProviderErrorKind = "auth"
	ErrKindQuota       ProviderErrorKind = "quota_or_access"
	ErrKindRateLimit   ProviderErrorKind = "rate_limit"
	ErrKindUnavailable ProviderErrorKind = "unavailable"
	ErrKindTimeout     ProviderErrorKind = "timeout"
	ErrKindConnection  ProviderErrorKind = "connection"
	ErrKindNoTaskID    ProviderErrorKind = "no_task_id"
	ErrKindAPI         ProviderErrorKind = "api"
	ErrKindConfig      ProviderErrorKind = "not_configured"
)

// ProviderError is a normalized generation-API failure. Message is safe
// to surface to the end user verbatim.
type ProviderError struct {
	Kind    ProviderErrorKind
	Message string
}

func (e *ProviderError) Error() string {
	return e.Message
}

func newProviderError(kind ProviderErrorKind, message string) *ProviderError {
	return &ProviderError{Kind: kind, Message: message}
}

// AsProviderError unwraps err into a *ProviderError if it is one.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
