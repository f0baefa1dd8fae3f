package worker

import (
	"testing"

	"github.com/google/uuid"

	"github.com/duskforge/genforge/pkg/account"
)

func TestMediaTypeForOperation(t *testing.T) {
	tests := []struct {
		operation string
		want      string
	}{
		{"text_to_video", "video"},
		{"image_to_video", "video"},
		{"video_extend", "video"},
		{"video_transition", "video"},
		{"text_to_image", "image"},
		{"image_to_image", "image"},
		{"fusion", "image"},
	}
	for _, tt := range tests {
		if got := mediaTypeForOperation(tt.operation); got != tt.want {
			t.Errorf("mediaTypeForOperation(%q) = %q, want %q", tt.operation, got, tt.want)
		}
	}
}

func TestToProviderAccount(t *testing.T) {
	id := uuid.New()
	wsID := uuid.New()
	acc := account.Account{
		ID:          id,
		WorkspaceID: wsID,
		Credentials: map[string]any{"token": "jwt-abc"},
	}

	got := toProviderAccount(acc)
	if got.ID != id.String() {
		t.Errorf("ID = %q, want %q", got.ID, id.String())
	}
	if got.WorkspaceID != wsID.String() {
		t.Errorf("WorkspaceID = %q, want %q", got.WorkspaceID, wsID.String())
	}
	if got.Credentials["token"] != "jwt-abc" {
		t.Errorf("Credentials[token] = %v, want jwt-abc", got.Credentials["token"])
	}
}
