package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidState means the OAuth callback carried a state string with no
	// matching record
	ErrInvalidState = errors.New("invalid state parameter")
	// ErrStateExpired means the state record existed but outlived its TTL
	ErrStateExpired = errors.New("state has expired")
	// ErrNoToken means no credential record exists for the integration
	ErrNoToken = errors.New("no tokens found for integration")
	// ErrTokenExpired means the access token is unusable and there is no
	// refresh token to recover with; the user must reconnect
	ErrTokenExpired = errors.New("token expired and no refresh token available")

	// ErrIntegrationNotFound means no integration matches the ID for this user
	ErrIntegrationNotFound = errors.New("integration not found")
	// ErrIntegrationNotActive rejects provider calls on an expired or
	// disconnected integration
	ErrIntegrationNotActive = errors.New("integration is not active")
	// ErrIntegrationExpired tells the user to go through consent again; it is
	// distinct from transient failures because the remediation differs
	ErrIntegrationExpired = errors.New("integration expired, please reconnect to refresh access")
	// ErrNotEmailProvider rejects email endpoints for non-email providers
	ErrNotEmailProvider = errors.New("provider is not an email integration")
	// ErrProviderNotImplemented marks providers that are enumerated but have
	// no client yet
	ErrProviderNotImplemented = errors.New("provider not implemented")
	// ErrUnknownFilter rejects a named email filter outside the known set
	ErrUnknownFilter = errors.New("unknown filter")
	// ErrInvalidStatus rejects status updates outside active|disconnected;
	// expired is only ever set by the sync pipeline
	ErrInvalidStatus = errors.New("status must be active or disconnected")
	// ErrSearchUnavailable means the deployment runs without a vector index
	ErrSearchUnavailable = errors.New("semantic search is not configured")
)

// ProviderError wraps a non-2xx or transport-level failure from an external
// provider. It is propagated, never swallowed; callers decide retry policy.
type ProviderError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether an error from a token lookup or provider fetch
// signals an unusable credential rather than a transient failure. This is the
// one condition under which a background sync mutates the parent integration
// (active -> expired).
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoToken) || errors.Is(err, ErrTokenExpired) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "no refresh token") || strings.Contains(message, "token expired")
}
