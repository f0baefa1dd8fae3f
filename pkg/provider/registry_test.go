package provider

import (
	"context"
	"testing"
	"time"
)

type fakeAdapter struct {
	manifest Manifest
	ops      []Operation
}

func (f *fakeAdapter) Manifest() Manifest             { return f.manifest }
func (f *fakeAdapter) SupportedOperations() []Operation { return f.ops }
func (f *fakeAdapter) MapParameters(op Operation, params map[string]any) (map[string]any, error) {
	return params, nil
}
func (f *fakeAdapter) Execute(ctx context.Context, a Account, op Operation, payload map[string]any) (Submission, error) {
	return Submission{}, nil
}
func (f *fakeAdapter) CheckStatus(ctx context.Context, a Account, jobID string) (StatusResult, error) {
	return StatusResult{}, nil
}
func (f *fakeAdapter) Cancel(ctx context.Context, a Account, jobID string) bool { return true }
func (f *fakeAdapter) UploadAsset(ctx context.Context, a Account, path string) (string, error) {
	return "", nil
}
func (f *fakeAdapter) ComputeActualCredits(op Operation, params map[string]any, d time.Duration) int {
	return 1
}
func (f *fakeAdapter) ExtractAccountData(raw map[string]any) (CredentialSet, error) {
	return CredentialSet{}, nil
}

func TestRegistry_GetAndSupports(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdapter{
		manifest: Manifest{ID: "fake", Enabled: true},
		ops:      []Operation{OpTextToVideo},
	})

	a, ok := r.Get("fake")
	if !ok || a == nil {
		t.Fatal("expected fake provider to be registered")
	}

	if !r.Supports("fake", OpTextToVideo) {
		t.Error("expected fake to support text_to_video")
	}
	if r.Supports("fake", OpImageToImage) {
		t.Error("did not expect fake to support image_to_image")
	}
	if r.Supports("unknown", OpTextToVideo) {
		t.Error("did not expect unknown provider to support anything")
	}
}

func TestRegistry_DisabledProviderNotReturned(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdapter{manifest: Manifest{ID: "disabled", Enabled: false}})

	if _, ok := r.Get("disabled"); ok {
		t.Error("expected disabled provider to not be returned")
	}
}

func TestRegistry_DuplicateRegistrationPanics(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdapter{manifest: Manifest{ID: "dup", Enabled: true}})

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	r.Register(&fakeAdapter{manifest: Manifest{ID: "dup", Enabled: true}})
}

func TestRegistry_ListSortedByID(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdapter{manifest: Manifest{ID: "zeta", Enabled: true}})
	r.Register(&fakeAdapter{manifest: Manifest{ID: "alpha", Enabled: true}})

	list := r.List()
	if len(list) != 2 || list[0].ID != "alpha" || list[1].ID != "zeta" {
		t.Fatalf("List() = %+v, want sorted [alpha, zeta]", list)
	}
}
