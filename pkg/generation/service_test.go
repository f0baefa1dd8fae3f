package generation

import (
	"testing"

	"github.com/google/uuid"

	"github.com/duskforge/genforge/pkg/cache"
)

// A populated scene_context must flow into both the reproducible-hash
// inputs and the strategy cache key from the same nested from_scene/
// to_scene objects — if either side stops seeing the scene ids, dedup
// and scene-discriminating caching silently degrade.
func TestSceneContext_FeedsInputsAndCacheKey(t *testing.T) {
	userID := uuid.New()
	req := CreateRequest{
		Operation:  "video_transition",
		ProviderID: "pixverse",
		GenerationConfig: map[string]any{
			"strategy": "per_playthrough",
			"purpose":  "transition",
		},
		SceneContext: map[string]any{
			"from_scene": map[string]any{"id": "scene-a"},
			"to_scene":   map[string]any{"id": "scene-b"},
			"image_urls": []any{"a.png", "b.png"},
			"prompts":    []any{"a to b"},
		},
		PlayerContext: map[string]any{"playthrough_id": "pt-1"},
		SocialContext: map[string]any{"contentRating": "sfw"},
	}

	inputs := extractInputs(req.Operation, req.SceneContext)
	wantInputs := []Input{{Type: "from_scene", Ref: "scene-a"}, {Type: "to_scene", Ref: "scene-b"}}
	if len(inputs) != len(wantInputs) {
		t.Fatalf("extractInputs() = %v, want %v", inputs, wantInputs)
	}
	for i := range inputs {
		if inputs[i] != wantInputs[i] {
			t.Errorf("inputs[%d] = %v, want %v", i, inputs[i], wantInputs[i])
		}
	}

	p := (&Service{}).cacheKeyParams(req, userID)
	if p.FromSceneID != "scene-a" || p.ToSceneID != "scene-b" {
		t.Errorf("cache key scene ids = %q/%q, want scene-a/scene-b", p.FromSceneID, p.ToSceneID)
	}
	key := cache.CacheKey(p)
	want := "generation:video_transition|transition|scene-a|scene-b|per_playthrough|pt:pt-1|v1"
	if key != want {
		t.Errorf("CacheKey() = %q, want %q", key, want)
	}

	// Scene identity must change the reproducible hash.
	canonical := canonicalizeParams(req)
	h1, err := reproducibleHash(canonical, inputs)
	if err != nil {
		t.Fatalf("reproducibleHash() error = %v", err)
	}
	h2, err := reproducibleHash(canonical, []Input{{Type: "from_scene", Ref: "scene-z"}, {Type: "to_scene", Ref: "scene-b"}})
	if err != nil {
		t.Fatalf("reproducibleHash() error = %v", err)
	}
	if h1 == h2 {
		t.Error("distinct scene inputs must hash differently")
	}
}
