package pixverse

import (
	"errors"
	"testing"
	"time"

	"github.com/duskforge/genforge/pkg/provider"
)

func TestMapParameters_TextToVideo(t *testing.T) {
	a := New()
	payload, err := a.MapParameters(provider.OpTextToVideo, map[string]any{
		"prompt":          "a sunlit meadow",
		"duration_target": float64(5),
	})
	if err != nil {
		t.Fatalf("MapParameters() error = %v", err)
	}
	if payload["prompt"] != "a sunlit meadow" {
		t.Errorf("prompt = %v", payload["prompt"])
	}
	if payload["duration"] != float64(5) {
		t.Errorf("duration = %v, want 5", payload["duration"])
	}
	if payload["quality"] != "540p" {
		t.Errorf("quality = %v, want default 540p", payload["quality"])
	}
}

func TestMapParameters_ImageToVideo(t *testing.T) {
	a := New()
	payload, err := a.MapParameters(provider.OpImageToVideo, map[string]any{
		"prompt":    "pan slowly",
		"image_url": "https://example.com/a.png",
		"quality":   "1080p",
	})
	if err != nil {
		t.Fatalf("MapParameters() error = %v", err)
	}
	if payload["image_url"] != "https://example.com/a.png" {
		t.Errorf("image_url = %v", payload["image_url"])
	}
	if payload["quality"] != "1080p" {
		t.Errorf("quality = %v, want explicit 1080p to override default", payload["quality"])
	}
}

func TestMapParameters_UnsupportedOperation(t *testing.T) {
	a := New()
	_, err := a.MapParameters(provider.OpVideoTransition, map[string]any{})
	var invalidOp *provider.InvalidOperationError
	if !errors.As(err, &invalidOp) {
		t.Fatalf("error = %v, want *provider.InvalidOperationError", err)
	}
}

func TestMapPixverseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want provider.Status
	}{
		{"success", provider.StatusCompleted},
		{"Completed", provider.StatusCompleted},
		{"failed", provider.StatusFailed},
		{"filtered", provider.StatusFiltered},
		{"rejected", provider.StatusFiltered},
		{"cancelled", provider.StatusCancelled},
		{"canceled", provider.StatusCancelled},
		{"generating", provider.StatusProcessing},
		{"", provider.StatusProcessing},
	}
	for _, tt := range tests {
		if got := mapPixverseStatus(tt.raw); got != tt.want {
			t.Errorf("mapPixverseStatus(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestComputeActualCredits(t *testing.T) {
	a := New()

	tests := []struct {
		name     string
		params   map[string]any
		duration time.Duration
		want     int
	}{
		{
			name:     "standard quality 5s",
			params:   map[string]any{"quality": "540p"},
			duration: 5 * time.Second,
			want:     100,
		},
		{
			name:     "1080p doubles the rate",
			params:   map[string]any{"quality": "1080p"},
			duration: 5 * time.Second,
			want:     200,
		},
		{
			name:     "falls back to duration_target when no actual duration",
			params:   map[string]any{"duration_target": float64(8)},
			duration: 0,
			want:     160,
		},
		{
			name:     "minimum one second of credits",
			params:   map[string]any{},
			duration: 100 * time.Millisecond,
			want:     20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.ComputeActualCredits(provider.OpTextToVideo, tt.params, tt.duration)
			if got != tt.want {
				t.Errorf("ComputeActualCredits() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		status   int
		wantKind provider.ProviderErrorKind
		wantNil  bool
	}{
		{200, "", true},
		{401, provider.ProviderAuthentication, false},
		{403, provider.ProviderAuthentication, false},
		{402, provider.ProviderQuotaExceeded, false},
		{429, provider.ProviderRateLimit, false},
		{500, provider.ProviderGeneric, false},
		{400, provider.ProviderGeneric, false},
	}
	for _, tt := range tests {
		err := classifyHTTPError(tt.status)
		if tt.wantNil {
			if err != nil {
				t.Errorf("classifyHTTPError(%d) = %v, want nil", tt.status, err)
			}
			continue
		}
		var provErr *provider.ProviderError
		if !errors.As(err, &provErr) {
			t.Fatalf("classifyHTTPError(%d) = %T, want *provider.ProviderError", tt.status, err)
		}
		if provErr.Kind != tt.wantKind {
			t.Errorf("classifyHTTPError(%d).Kind = %s, want %s", tt.status, provErr.Kind, tt.wantKind)
		}
	}
}

func TestExtractAccountData(t *testing.T) {
	a := New()

	creds, err := a.ExtractAccountData(map[string]any{"token": "jwt-abc"})
	if err != nil {
		t.Fatalf("ExtractAccountData() error = %v", err)
	}
	if creds.Fields["token"] != "jwt-abc" {
		t.Errorf("token = %q, want jwt-abc", creds.Fields["token"])
	}

	if _, err := a.ExtractAccountData(map[string]any{}); err == nil {
		t.Error("expected error for capture without token")
	}
}
