// Package pixverse adapts the Pixverse text/image-to-video API to the
// provider.Adapter contract.
package pixverse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/duskforge/genforge/pkg/provider"
)

func init() {
	provider.Register(New())
}

const baseURL = "https://app-api.pixverse.ai"

// Adapter implements provider.Adapter for Pixverse.
type Adapter struct {
	httpClient *http.Client
}

// New creates a Pixverse Adapter with a 10-second default timeout.
func New() *Adapter {
	return &Adapter{httpClient: &http.Client{Timeout: 10 * time.Second}}
}

func (a *Adapter) Manifest() provider.Manifest {
	return provider.Manifest{
		ID:                 "pixverse",
		Name:               "Pixverse",
		Version:            "1.0.0",
		Kind:               provider.KindVideo,
		Enabled:            true,
		RequiresCredential: true,
		Domains:            []string{"app-api.pixverse.ai"},
		CreditTypes:        []string{"web", "openapi"},
	}
}

func (a *Adapter) SupportedOperations() []provider.Operation {
	return []provider.Operation{
		provider.OpTextToVideo,
		provider.OpImageToVideo,
		provider.OpVideoExtend,
	}
}

func (a *Adapter) MapParameters(operation provider.Operation, canonicalParams map[string]any) (map[string]any, error) {
	payload := map[string]any{
		"prompt":   canonicalParams["prompt"],
		"duration": canonicalParams["duration_target"],
		"quality":  firstNonEmpty(canonicalParams["quality"], "540p"),
		"seed":     canonicalParams["seed"],
	}

	switch operation {
	case provider.OpTextToVideo:
		// prompt-only, payload above is sufficient.
	case provider.OpImageToVideo:
		payload["image_url"] = canonicalParams["image_url"]
	case provider.OpVideoExtend:
		payload["video_url"] = canonicalParams["video_url"]
		payload["original_video_id"] = canonicalParams["original_video_id"]
	default:
		return nil, &provider.InvalidOperationError{ProviderID: "pixverse", Operation: string(operation)}
	}
	return payload, nil
}

func (a *Adapter) Execute(ctx context.Context, account provider.Account, operation provider.Operation, payload map[string]any) (provider.Submission, error) {
	endpoint := operationEndpoint(operation)
	body, err := json.Marshal(payload)
	if err != nil {
		return provider.Submission{}, &provider.ProviderError{Kind: provider.ProviderGeneric, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+endpoint, bytes.NewReader(body))
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
		VideoID string `json:"video_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return provider.Submission{}, &provider.ProviderError{Kind: provider.ProviderGeneric, Message: "decoding Pixverse response: " + err.Error()}
	}

	return provider.Submission{
		ProviderJobID: result.VideoID,
		InitialStatus: provider.StatusProcessing,
	}, nil
}

func (a *Adapter) CheckStatus(ctx context.Context, account provider.Account, providerJobID string) (provider.StatusResult, error) {
	url := fmt.Sprintf("%s/openapi/v2/video/result/%s", baseURL, providerJobID)
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
		URL    string `json:"video_url"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
		Seconds float64 `json:"duration"`
		Message string `json:"error_message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return provider.StatusResult{}, &provider.ProviderError{Kind: provider.ProviderGeneric, Message: "decoding Pixverse status: " + err.Error()}
	}

	sr := provider.StatusResult{
		Status:       mapPixverseStatus(result.Status),
		Width:        result.Width,
		Height:       result.Height,
		Duration:     result.Seconds,
		ErrorMessage: result.Message,
	}
	if result.URL != "" {
		sr.URLs = []string{result.URL}
	}
	return sr, nil
}

func (a *Adapter) Cancel(ctx context.Context, account provider.Account, providerJobID string) bool {
	url := fmt.Sprintf("%s/openapi/v2/video/%s/cancel", baseURL, providerJobID)
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
	f, err := os.Open(localPath)
	if err != nil {
		return "", &provider.ProviderError{Kind: provider.ProviderGeneric, Message: err.Error()}
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/openapi/v2/media/upload", f)
	if err != nil {
		return "", &provider.ProviderError{Kind: provider.ProviderGeneric, Message: err.Error()}
	}
	setAuthHeaders(req, account)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", &provider.ProviderError{Kind: provider.ProviderGeneric, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if err := classifyHTTPError(resp.StatusCode); err != nil {
		return "", err
	}

	var result struct {
		MediaRef string `json:"media_ref"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &provider.ProviderError{Kind: provider.ProviderGeneric, Message: err.Error()}
	}
	return result.MediaRef, nil
}

func (a *Adapter) ComputeActualCredits(operation provider.Operation, canonicalParams map[string]any, actualDuration time.Duration) int {
	seconds := actualDuration.Seconds()
	if seconds <= 0 {
		if d, ok := canonicalParams["duration_target"].(float64); ok {
			seconds = d
		}
	}
	quality, _ := canonicalParams["quality"].(string)

	perSecond := 20
	if strings.Contains(quality, "1080") {
		perSecond = 40
	}
	credits := int(seconds * float64(perSecond))
	if credits < perSecond {
		credits = perSecond
	}
	return credits
}

func (a *Adapter) ExtractAccountData(raw map[string]any) (provider.CredentialSet, error) {
	token, _ := raw["token"].(string)
	if token == "" {
		return provider.CredentialSet{}, fmt.Errorf("pixverse capture missing token")
	}
	return provider.CredentialSet{Fields: map[string]string{"token": token}}, nil
}

func operationEndpoint(op provider.Operation) string {
	switch op {
	case provider.OpImageToVideo:
		return "/openapi/v2/video/img2video"
	case provider.OpVideoExtend:
		return "/openapi/v2/video/extend"
	default:
		return "/openapi/v2/video/txt2video"
	}
}

func mapPixverseStatus(s string) provider.Status {
	switch strings.ToLower(s) {
	case "success", "completed":
		return provider.StatusCompleted
	case "failed":
		return provider.StatusFailed
	case "filtered", "rejected":
		return provider.StatusFiltered
	case "cancelled", "canceled":
		return provider.StatusCancelled
	default:
		return provider.StatusProcessing
	}
}

func setAuthHeaders(req *http.Request, account provider.Account) {
	token, _ := account.Credentials["token"].(string)
	req.Header.Set("API-KEY", token)
	req.Header.Set("Content-Type", "application/json")
}

func classifyHTTPError(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &provider.ProviderError{Kind: provider.ProviderAuthentication}
	case status == http.StatusTooManyRequests:
		return &provider.ProviderError{Kind: provider.ProviderRateLimit, RetryAfter: 30}
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

func firstNonEmpty(v any, fallback string) any {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
