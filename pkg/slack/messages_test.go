package slack

import (
	"strings"
	"testing"
)

func TestSeverityEmoji(t *testing.T) {
	tests := []struct {
		severity string
		want     string
	}{
		{"critical", "🔴"},
		{"warning", "🟡"},
		{"info", "⚪"},
		{"", "⚪"},
	}
	for _, tt := range tests {
		if got := SeverityEmoji(tt.severity); got != tt.want {
			t.Errorf("SeverityEmoji(%q) = %q, want %q", tt.severity, got, tt.want)
		}
	}
}

func TestAlertBlocks(t *testing.T) {
	blocks := AlertBlocks(AlertInfo{
		Kind:        "billing_failed",
		Severity:    "critical",
		Title:       "billing failed for generation 42",
		Description: "credit deduction failed",
		WorkspaceID: "ws-1",
		ProviderID:  "pixverse",
	})
	// Header, fields section, description section.
	if len(blocks) != 3 {
		t.Fatalf("len(blocks) = %d, want 3", len(blocks))
	}
}

func TestAlertBlocks_MinimalAlert(t *testing.T) {
	blocks := AlertBlocks(AlertInfo{Severity: "warning", Title: "account pool exhausted"})
	if len(blocks) != 1 {
		t.Fatalf("len(blocks) = %d, want header only", len(blocks))
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", 600)
	got := truncate(long, 500)
	if len(got) != 500 {
		t.Errorf("len(truncate()) = %d, want 500", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("truncated text should end with ellipsis")
	}
	if truncate("short", 500) != "short" {
		t.Error("short text must pass through unchanged")
	}
}
