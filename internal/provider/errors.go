package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrUnknownProvider is returned when a provider id is not registered.
var ErrUnknownProvider = errors.New("unknown provider")

// ConfigError means a required credential or URL is missing. It is not a
// failure: the health monitor surfaces it as "not configured" and skips the
// network call entirely.
type ConfigError struct {
	Provider string
	Field    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s is not configured: missing %s", e.Provider, e.Field)
}

// AuthError means the provider rejected the configured credential.
type AuthError struct {
	Provider string
	Status   int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s rejected the API key (HTTP %d), check your settings", e.Provider, e.Status)
}

// NetworkError wraps transport-level failures, including timeouts.
type NetworkError struct {
	Provider string
	Err      error
}

func (e *NetworkError) Error() string {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s request timed out", e.Provider)
	}
	return fmt.Sprintf("%s is unreachable: %v", e.Provider, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ResponseError means the provider answered but the response was unusable:
// an error status, an empty completion or a body we could not parse.
type ResponseError struct {
	Provider string
	Detail   string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s returned an unusable response: %s", e.Provider, e.Detail)
}

// statusError converts a non-2xx provider reply into the right error type.
func statusError(providerID string, status int, body []byte) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return &AuthError{Provider: providerID, Status: status}
	}
	detail := fmt.Sprintf("HTTP %d", status)
	if len(body) > 0 {
		const maxDetail = 200
		s := string(body)
		if len(s) > maxDetail {
			s = s[:maxDetail]
		}
		detail = fmt.Sprintf("HTTP %d: %s", status, s)
	}
	return &ResponseError{Provider: providerID, Detail: detail}
}
