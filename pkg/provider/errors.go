package provider

import "fmt"

// InvalidOperationError is returned when a provider does not support a
// requested operation, or the canonical params cannot be mapped to it.
type InvalidOperationError struct {
	ProviderID string
	Operation  string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("provider %q does not support operation %q", e.ProviderID, e.Operation)
}

// QuotaError is returned when the calling user has exceeded their global
// concurrent-job limit.
type QuotaError struct {
	Message string
}

func (e *QuotaError) Error() string { return e.Message }

// NoAccountAvailableError is returned when no provider account has spare
// capacity for a reservation.
type NoAccountAvailableError struct {
	ProviderID string
}

func (e *NoAccountAvailableError) Error() string {
	return fmt.Sprintf("no account available for provider %q", e.ProviderID)
}

// AccountCooldownError is returned when the only matching accounts are in
// cooldown; EarliestExpiry is the first cooldown to clear.
type AccountCooldownError struct {
	ProviderID     string
	EarliestExpiry string
}

func (e *AccountCooldownError) Error() string {
	return fmt.Sprintf("all accounts for provider %q are cooling down until %s", e.ProviderID, e.EarliestExpiry)
}

// AccountExhaustedError is returned when a matching account has no credit
// balance on any credit type.
type AccountExhaustedError struct {
	AccountID string
}

func (e *AccountExhaustedError) Error() string {
	return fmt.Sprintf("account %s has no remaining credits", e.AccountID)
}

// ProviderErrorKind classifies the closed taxonomy of adapter failures.
type ProviderErrorKind string

const (
	ProviderAuthentication   ProviderErrorKind = "authentication"
	ProviderRateLimit        ProviderErrorKind = "rate_limit"
	ProviderContentFiltered  ProviderErrorKind = "content_filtered"
	ProviderQuotaExceeded    ProviderErrorKind = "quota_exceeded"
	ProviderJobNotFound      ProviderErrorKind = "job_not_found"
	ProviderUnsupported      ProviderErrorKind = "unsupported"
	ProviderGeneric          ProviderErrorKind = "generic"
)

// ProviderError wraps an adapter-reported failure with its kind so callers
// (C5, C6, C9) can switch on it without string matching.
type ProviderError struct {
	Kind       ProviderErrorKind
	Message    string
	RetryAfter int // seconds, only meaningful for ProviderRateLimit
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider error (%s): %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("provider error (%s)", e.Kind)
}

// ResourceNotFoundError is used by administrative handlers.
type ResourceNotFoundError struct {
	Resource string
	ID       string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// PermissionDeniedError is used by administrative handlers.
type PermissionDeniedError struct {
	Message string
}

func (e *PermissionDeniedError) Error() string { return e.Message }
