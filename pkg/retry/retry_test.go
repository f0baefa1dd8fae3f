package retry

import (
	"testing"

	"github.com/duskforge/genforge/pkg/generation"
)

func failedGen(msg string, retryCount int) generation.Generation {
	return generation.Generation{
		Status:       generation.StatusFailed,
		ErrorMessage: &msg,
		RetryCount:   retryCount,
	}
}

func TestShouldAutoRetry(t *testing.T) {
	tests := []struct {
		name string
		gen  generation.Generation
		want bool
	}{
		{
			name: "output content filter is retryable",
			gen:  failedGen("Content filtered (output)", 0),
			want: true,
		},
		{
			name: "prompt content filter is not retryable",
			gen:  failedGen("Content filtered (prompt)", 0),
			want: false,
		},
		{
			name: "text rejection is not retryable",
			gen:  failedGen("the prompt was rejected by the provider", 0),
			want: false,
		},
		{
			name: "timeout is retryable",
			gen:  failedGen("provider reported terminal status: timeout waiting for completion", 0),
			want: true,
		},
		{
			name: "rate limit is retryable",
			gen:  failedGen("Rate limit exceeded, try again later", 0),
			want: true,
		},
		{
			name: "server error is retryable",
			gen:  failedGen("server error 503", 0),
			want: true,
		},
		{
			name: "unrecognized error is not retryable",
			gen:  failedGen("something inexplicable", 0),
			want: false,
		},
		{
			name: "retry budget exhausted",
			gen:  failedGen("timeout", 10),
			want: false,
		},
		{
			name: "not failed",
			gen:  generation.Generation{Status: generation.StatusProcessing},
			want: false,
		},
		{
			name: "failed with no message",
			gen:  generation.Generation{Status: generation.StatusFailed},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldAutoRetry(tt.gen, 10, true)
			if got != tt.want {
				t.Errorf("ShouldAutoRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldAutoRetry_GloballyDisabled(t *testing.T) {
	if ShouldAutoRetry(failedGen("timeout", 0), 10, false) {
		t.Error("auto-retry disabled globally must never retry")
	}
}

func TestShouldAutoRetry_NonRetryableWinsOverRetryableKeyword(t *testing.T) {
	// A message matching both lists short-circuits to non-retryable.
	gen := failedGen("Content filtered (prompt): moderation flagged the text", 0)
	if ShouldAutoRetry(gen, 10, true) {
		t.Error("non-retryable pattern must take precedence")
	}
}
