package crm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotConnected means the user has no credential record for the provider
	ErrNotConnected = errors.New("crm provider not connected")
	// ErrReauthRequired means the refresh token was rejected and the user must reconnect
	ErrReauthRequired = errors.New("crm provider requires re-authorization")
	// ErrUnknownProvider means the provider id is not registered in this process
	ErrUnknownProvider = errors.New("unknown or unconfigured crm provider")
)

// Codes carried by ProviderError
const (
	CodeNotConnected   = "not_connected"
	CodeReauthRequired = "reauth_required"
	CodeUpstreamError  = "upstream_error"
)

// ErrorCode classifies a provider failure for API clients. Anything that is
// not a connection problem counts as an upstream failure.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotConnected):
		return CodeNotConnected
	case errors.Is(err, ErrReauthRequired):
		return CodeReauthRequired
	}
	return CodeUpstreamError
}

// UpstreamError is a non-2xx response from a provider API
type UpstreamError struct {
	Provider   ProviderID
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Provider, e.StatusCode, e.Body)
}

// ConfigError reports provider settings missing at startup
type ConfigError struct {
	Provider ProviderID
	Missing  []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s is not configured: missing %s", e.Provider, strings.Join(e.Missing, ", "))
}
