// Package remaker adapts the Remaker image-to-image enhancement API to the
// provider.Adapter contract.
package remaker

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

const baseURL = "https://api.remaker.ai"

// Adapter implements provider.Adapter for Remaker.
type Adapter struct {
	httpClient *http.Client
}

// New creates a Remaker Adapter with a 10-second default timeout.
func New() *Adapter {
	return &Adapter{httpClient: &http.Client{Timeout: 10 * time.Second}}
}

func (a *Adapter) Manifest() provider.Manifest {
	return provider.Manifest{
		ID:                 "remaker",
		Name:               "Remaker",
		Version:            "1.0.0",
		Kind:               provider.KindVideo,
		Enabled:            true,
		RequiresCredential: true,
		Domains:            []string{"api.remaker.ai"},
		CreditTypes:        []string{"web"},
	}
}

func (a *Adapter) SupportedOperations() []provider.Operation {
	return []provider.Operation{provider.OpTextToImage, provider.OpImageToImage}
}

func (a *Adapter) MapParameters(operation provider.Operation, canonicalParams map[string]any) (map[string]any, error) {
	switch operation {
	case provider.OpTextToImage:
		return map[string]any{
			"prompt": canonicalParams["prompt"],
			"seed":   canonicalParams["seed"],
		}, nil
	case provider.OpImageToImage:
		urls := canonicalParams["image_urls"]
		if urls == nil {
			if single, ok := canonicalParams["image_url"]; ok {
				urls = []any{single}
			}
		}
		return map[string]any{
			"prompt":     canonicalParams["prompt"],
			"image_urls": urls,
			"seed":       canonicalParams["seed"],
		}, nil
	default:
		return nil, &provider.InvalidOperationError{ProviderID: "remaker", Operation: string(operation)}
	}
}

func (a *Adapter) Execute(ctx context.Context, account provider.Account, operation provider.Operation, payload map[string]any) (provider.Submission, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return provider.Submission{}, &provider.ProviderError{Kind: provider.ProviderGeneric, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/jobs", bytes.NewReader(body))
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
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return provider.Submission{}, &provider.ProviderError{Kind: provider.ProviderGeneric, Message: "decoding Remaker response: " + err.Error()}
	}

	return provider.Submission{
		ProviderJobID: result.JobID,
		InitialStatus: provider.StatusProcessing,
	}, nil
}

func (a *Adapter) CheckStatus(ctx context.Context, account provider.Account, providerJobID string) (provider.StatusResult, error) {
	url := fmt.Sprintf("%s/v1/jobs/%s", baseURL, providerJobID)
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
		Status string `json:"status"`
		URL    string `json:"output_url"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
		Error  string `json:"error_message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return provider.StatusResult{}, &provider.ProviderError{Kind: provider.ProviderGeneric, Message: "decoding Remaker status: " + err.Error()}
	}

	sr := provider.StatusResult{
		Status:       mapRemakerStatus(result.Status),
		Width:        result.Width,
		Height:       result.Height,
		ErrorMessage: result.Error,
	}
	if result.URL != "" {
		sr.URLs = []string{result.URL}
	}
	return sr, nil
}

func (a *Adapter) Cancel(ctx context.Context, account provider.Account, providerJobID string) bool {
	url := fmt.Sprintf("%s/v1/jobs/%s", baseURL, providerJobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return false
	}
	setAuthHeaders(req, account)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent
}

func (a *Adapter) UploadAsset(ctx context.Context, account provider.Account, localPath string) (string, error) {
	return "", &provider.ProviderError{Kind: provider.ProviderUnsupported, Message: "remaker does not support cross-provider asset upload"}
}

func (a *Adapter) ComputeActualCredits(operation provider.Operation, canonicalParams map[string]any, actualDuration time.Duration) int {
	if operation == provider.OpImageToImage {
		return 8
	}
	return 5
}

func (a *Adapter) ExtractAccountData(raw map[string]any) (provider.CredentialSet, error) {
	cookie, _ := raw["session_cookie"].(string)
	if cookie == "" {
		return provider.CredentialSet{}, fmt.Errorf("remaker capture missing session_cookie")
	}
	return provider.CredentialSet{Fields: map[string]string{"session_cookie": cookie}}, nil
}

func mapRemakerStatus(s string) provider.Status {
	switch strings.ToLower(s) {
	case "done", "completed":
		return provider.StatusCompleted
	case "failed":
		return provider.StatusFailed
	case "blocked", "flagged":
		return provider.StatusFiltered
	case "cancelled", "canceled":
		return provider.StatusCancelled
	default:
		return provider.StatusProcessing
	}
}

func setAuthHeaders(req *http.Request, account provider.Account) {
	cookie, _ := account.Credentials["session_cookie"].(string)
	req.Header.Set("Cookie", cookie)
	req.Header.Set("Content-Type", "application/json")
}

func classifyHTTPError(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &provider.ProviderError{Kind: provider.ProviderAuthentication}
	case status == http.StatusTooManyRequests:
		return &provider.ProviderError{Kind: provider.ProviderRateLimit, RetryAfter: 15}
	case status == http.StatusPaymentRequired:
		return &provider.ProviderError{Kind: provider.ProviderQuotaExceeded}
	case status >= 500:
		return &provider.ProviderError{Kind: provider.ProviderGeneric, Message: fmt.Sprintf("server error %d", status)}
	case status >= 400:
		return &provider.ProviderError{Kind: provider.ProviderGeneric, Message: fmt.Sprintf("request error %d", status)}
	default:
		return nil
	}
}
