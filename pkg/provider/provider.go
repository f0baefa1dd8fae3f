// Package provider defines the uniform capability surface over heterogeneous
// external generation services (video, image, LLM) and the registry that
// resolves a provider_id to a concrete adapter. Adapters live in
// subpackages (pixverse, sora, remaker) and register themselves via Register
// in an init function.
package provider

import (
	"context"
	"time"
)

// Kind classifies what a provider can generate.
type Kind string

const (
	KindVideo     Kind = "video"
	KindLLM       Kind = "llm"
	KindEmbedding Kind = "embedding"
	KindBoth      Kind = "both"
)

// Operation is a canonical generation operation type.
type Operation string

const (
	OpTextToVideo     Operation = "text_to_video"
	OpImageToVideo    Operation = "image_to_video"
	OpTextToImage     Operation = "text_to_image"
	OpImageToImage    Operation = "image_to_image"
	OpVideoExtend     Operation = "video_extend"
	OpVideoTransition Operation = "video_transition"
	OpFusion          Operation = "fusion"
)

// Status is the normalized status an adapter reports for a submitted job.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusFiltered   Status = "FILTERED"
	StatusCancelled  Status = "CANCELLED"
)

// Manifest describes a provider plugin's identity and capabilities.
type Manifest struct {
	ID                 string
	Name               string
	Version            string
	Kind               Kind
	Enabled            bool
	RequiresCredential bool
	Domains            []string
	CreditTypes        []string
}

// Account is the minimal view of a ProviderAccount an adapter needs to act
// on behalf of — credentials plus identifying metadata. Domain-level
// account state (counters, cooldowns) lives in pkg/account.
type Account struct {
	ID          string
	WorkspaceID string
	Credentials map[string]any
}

// Submission is what Execute returns after accepting a job.
type Submission struct {
	ProviderJobID        string
	InitialStatus        Status
	URLs                 []string
	Metadata             map[string]any
	EstimatedCompletion  *time.Time
}

// StatusResult is what CheckStatus returns for a polled job.
type StatusResult struct {
	Status       Status
	Progress     float64
	URLs         []string
	Width        int
	Height       int
	Duration     float64
	ErrorMessage string
	RawMetadata  map[string]any
}

// CredentialSet is the result of harvesting credentials from a captured
// browser session (cookies/JWTs), used to onboard new ProviderAccounts.
type CredentialSet struct {
	Fields map[string]string
}

// Adapter is the capability set every provider plugin must implement.
type Adapter interface {
	Manifest() Manifest
	SupportedOperations() []Operation

	// MapParameters translates canonical_params into a provider-specific
	// request payload. Must return an *InvalidOperationError for an
	// unsupported operation.
	MapParameters(operation Operation, canonicalParams map[string]any) (map[string]any, error)

	Execute(ctx context.Context, account Account, operation Operation, payload map[string]any) (Submission, error)
	CheckStatus(ctx context.Context, account Account, providerJobID string) (StatusResult, error)
	Cancel(ctx context.Context, account Account, providerJobID string) bool
	UploadAsset(ctx context.Context, account Account, localPath string) (string, error)

	// ComputeActualCredits is the provider-specific cost function used by
	// the Billing Finalizer once a generation completes.
	ComputeActualCredits(operation Operation, canonicalParams map[string]any, actualDuration time.Duration) int

	// ExtractAccountData implements the JWT/cookie harvesting contract for
	// onboarding a new account from a captured browser session.
	ExtractAccountData(raw map[string]any) (CredentialSet, error)
}
