// Package sora adapts OpenAI's Sora text/image-to-video API to the
// provider.Adapter contract.
package sora

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/duskforge/genforge/pkg/provider"
)

func init() {
	provider.Register(New())
}

const baseURL = "https://api.openai.com/v1"

// Adapter implements provider.Adapter for OpenAI Sora.
type Adapter struct {
	httpClient *http.Client
}

// New creates a Sora Adapter with a 10-second default timeout.
func New() *Adapter {
	return &Adapter{httpClient: &http.Client{Timeout: 10 * time.Second}}
}

func (a *Adapter) Manifest() provider.Manifest {
	return provider.Manifest{
		ID:                 "sora",
		Name:               "OpenAI Sora",
		Version:            "1.0.0",
		Kind:               provider.KindVideo,
		Enabled:            true,
		RequiresCredential: true,
		Domains:            []string{"api.openai.com"},
		CreditTypes:        []string{"openapi"},
	}
}

func (a *Adapter) SupportedOperations() []provider.Operation {
	return []provider.Operation{provider.OpTextToVideo, provider.OpImageToVideo}
}

func (a *Adapter) MapParameters(operation provider.Operation, canonicalParams map[string]any) (map[string]any, error) {
	switch operation {
	case provider.OpTextToVideo:
		return map[string]any{
			"model":  firstNonEmpty(canonicalParams["model"], "sora-2"),
			"prompt": canonicalParams["prompt"],
			"seconds": canonicalParams["duration_target"],
		}, nil
	case provider.OpImageToVideo:
		return map[string]any{
			"model":     firstNonEmpty(canonicalParams["model"], "sora-2"),
			"prompt":    canonicalParams["prompt"],
			"image_url": canonicalParams["image_url"],
			"seconds":   canonicalParams["duration_target"],
		}, nil
	default:
		return nil, &provider.InvalidOperationError{ProviderID: "sora", Operation: string(operation)}
	}
}

func (a *Adapter) Execute(ctx context.Context, account provider.Account, operation provider.Operation, payload map[string]any) (provider.Submission, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return provider.Submission{}, &provider.ProviderError{Kind: provider.ProviderGeneric, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/videos", bytes.NewReader(body))
	if err != nil {
		return provider.Submission{}, &provider.ProviderError{Kind: provider.ProviderGeneric, Message: err.Error()}
	}
	setAuthHeaders(req, account)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return provider.Submission{}, &provider.ProviderError{Kind: provider.ProviderGeneric, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if err := classifyHTTPError(resp.StatusCode); err != nil {
		return provider.Submission{}, err
	}

	var result struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return provider.Submission{}, &provider.ProviderError{Kind: provider.ProviderGeneric, Message: "decoding Sora response: " + err.Error()}
	}

	return provider.Submission{
		ProviderJobID: result.ID,
		InitialStatus: mapSoraStatus(result.Status),
	}, nil
}

func (a *Adapter) CheckStatus(ctx context.Context, account provider.Account, providerJobID string) (provider.StatusResult, error) {
	url := fmt.Sprintf("%s/videos/%s", baseURL, providerJobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return provider.StatusResult{}, &provider.ProviderError{Kind: provider.ProviderGeneric, Message: err.Error()}
	}
	setAuthHeaders(req, account)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return provider.StatusResult{}, &provider.ProviderError{Kind: provider.ProviderGeneric, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return provider.StatusResult{}, &provider.ProviderError{Kind: provider.ProviderJobNotFound}
	}
	if err := classifyHTTPError(resp.StatusCode); err != nil {
		return provider.StatusResult{}, err
	}

	var result struct {
		Status       string  `json:"status"`
		DownloadURL  string  `json:"download_url"`
		Seconds      float64 `json:"seconds"`
		Error        string  `json:"error"`
		ModerationHit bool   `json:"moderation_flagged"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return provider.StatusResult{}, &provider.ProviderError{Kind: provider.ProviderGeneric, Message: "decoding Sora status: " + err.Error()}
	}

	status := mapSoraStatus(result.Status)
	if result.ModerationHit {
		status = provider.StatusFiltered
	}

	sr := provider.StatusResult{
		Status:       status,
		Duration:     result.Seconds,
		ErrorMessage: result.Error,
	}
	if result.DownloadURL != "" {
		sr.URLs = []string{result.DownloadURL}
	}
	return sr, nil
}

func (a *Adapter) Cancel(ctx context.Context, account provider.Account, providerJobID string) bool {
	url := fmt.Sprintf("%s/videos/%s/cancel", baseURL, providerJobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return false
	}
	setAuthHeaders(req, account)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (a *Adapter) UploadAsset(ctx context.Context, account provider.Account, localPath string) (string, error) {
	return "", &provider.ProviderError{Kind: provider.ProviderUnsupported, Message: "sora does not support cross-provider asset upload"}
}

func (a *Adapter) ComputeActualCredits(operation provider.Operation, canonicalParams map[string]any, actualDuration time.Duration) int {
	seconds := actualDuration.Seconds()
	if seconds <= 0 {
		if d, ok := canonicalParams["duration_target"].(float64); ok {
			seconds = d
		}
	}
	const creditsPerSecond = 50
	credits := int(seconds * creditsPerSecond)
	if credits < creditsPerSecond {
		credits = creditsPerSecond
	}
	return credits
}

func (a *Adapter) ExtractAccountData(raw map[string]any) (provider.CredentialSet, error) {
	apiKey, _ := raw["api_key"].(string)
	if apiKey == "" {
		return provider.CredentialSet{}, fmt.Errorf("sora capture missing api_key")
	}
	return provider.CredentialSet{Fields: map[string]string{"api_key": apiKey}}, nil
}

func mapSoraStatus(s string) provider.Status {
	switch strings.ToLower(s) {
	case "completed", "succeeded":
		return provider.StatusCompleted
	case "failed":
		return provider.StatusFailed
	case "cancelled", "canceled":
		return provider.StatusCancelled
	default:
		return provider.StatusProcessing
	}
}

func setAuthHeaders(req *http.Request, account provider.Account) {
	apiKey, _ := account.Credentials["api_key"].(string)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func classifyHTTPError(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return &provider.ProviderError{Kind: provider.ProviderAuthentication}
	case status == http.StatusTooManyRequests:
		return &provider.ProviderError{Kind: provider.ProviderRateLimit, RetryAfter: 20}
	case status == http.StatusPaymentRequired:
		return &provider.ProviderError{Kind: provider.ProviderQuotaExceeded}
	case status == http.StatusUnprocessableEntity:
		return &provider.ProviderError{Kind: provider.ProviderContentFiltered}
	case status >= 500:
		return &provider.ProviderError{Kind: provider.ProviderGeneric, Message: fmt.Sprintf("server error %d", status)}
	case status >= 400:
		return &provider.ProviderError{Kind: provider.ProviderGeneric, Message: fmt.Sprintf("request error %d", status)}
	default:
		return nil
	}
}

func firstNonEmpty(v any, fallback string) any {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
