package generation

import "testing"

func TestValidateStructuredParams(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		genCfg    map[string]any
		sceneCtx  map[string]any
		wantErr   bool
	}{
		{
			name:      "text_to_video with prompt",
			operation: "text_to_video",
			genCfg:    map[string]any{"prompt": "a sunlit meadow"},
			sceneCtx:  map[string]any{},
		},
		{
			name:      "text_to_video missing prompt",
			operation: "text_to_video",
			genCfg:    map[string]any{},
			sceneCtx:  map[string]any{},
			wantErr:   true,
		},
		{
			name:      "text_to_video blank prompt",
			operation: "text_to_video",
			genCfg:    map[string]any{"prompt": "   "},
			sceneCtx:  map[string]any{},
			wantErr:   true,
		},
		{
			name:      "image_to_video with image_url",
			operation: "image_to_video",
			genCfg:    map[string]any{"prompt": "pan slowly"},
			sceneCtx:  map[string]any{"image_url": "https://example.com/a.png"},
		},
		{
			name:      "image_to_video missing image_url",
			operation: "image_to_video",
			genCfg:    map[string]any{"prompt": "pan slowly"},
			sceneCtx:  map[string]any{},
			wantErr:   true,
		},
		{
			name:      "image_to_image with list",
			operation: "image_to_image",
			genCfg:    map[string]any{"prompt": "restyle"},
			sceneCtx:  map[string]any{"image_urls": []any{"https://example.com/a.png"}},
		},
		{
			name:      "image_to_image with single url",
			operation: "image_to_image",
			genCfg:    map[string]any{"prompt": "restyle"},
			sceneCtx:  map[string]any{"image_url": "https://example.com/a.png"},
		},
		{
			name:      "image_to_image empty list and no single url",
			operation: "image_to_image",
			genCfg:    map[string]any{"prompt": "restyle"},
			sceneCtx:  map[string]any{"image_urls": []any{}},
			wantErr:   true,
		},
		{
			name:      "video_extend with original_video_id",
			operation: "video_extend",
			genCfg:    map[string]any{},
			sceneCtx:  map[string]any{"original_video_id": "vid-1"},
		},
		{
			name:      "video_extend missing both",
			operation: "video_extend",
			genCfg:    map[string]any{},
			sceneCtx:  map[string]any{},
			wantErr:   true,
		},
		{
			name:      "video_transition valid",
			operation: "video_transition",
			genCfg:    map[string]any{},
			sceneCtx: map[string]any{
				"image_urls": []any{"a.png", "b.png", "c.png"},
				"prompts":    []any{"a to b", "b to c"},
			},
		},
		{
			name:      "video_transition too few images",
			operation: "video_transition",
			genCfg:    map[string]any{},
			sceneCtx:  map[string]any{"image_urls": []any{"a.png"}, "prompts": []any{}},
			wantErr:   true,
		},
		{
			name:      "video_transition prompt count mismatch",
			operation: "video_transition",
			genCfg:    map[string]any{},
			sceneCtx: map[string]any{
				"image_urls": []any{"a.png", "b.png"},
				"prompts":    []any{"x", "y"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateStructuredParams(tt.operation, tt.genCfg, tt.sceneCtx)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateStructuredParams() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyContentRatingClamp(t *testing.T) {
	socialCtx := map[string]any{"contentRating": "restricted"}
	genCfg := map[string]any{"maxContentRating": "romantic"}
	playerCtx := map[string]any{"maxContentRating": "mature_implied"}

	res, err := applyContentRatingClamp(socialCtx, genCfg, playerCtx)
	if err != nil {
		t.Fatalf("applyContentRatingClamp() error = %v", err)
	}
	if !res.Clamped {
		t.Error("expected clamp")
	}
	if got := socialCtx["contentRating"]; got != "romantic" {
		t.Errorf("contentRating = %v, want romantic", got)
	}
	if got := socialCtx["_ratingClamped"]; got != true {
		t.Errorf("_ratingClamped = %v, want true", got)
	}
	if got := socialCtx["_originalRating"]; got != "restricted" {
		t.Errorf("_originalRating = %v, want restricted", got)
	}
}

func TestApplyContentRatingClamp_NoClampWithinBounds(t *testing.T) {
	socialCtx := map[string]any{"contentRating": "sfw"}
	genCfg := map[string]any{"maxContentRating": "romantic"}

	res, err := applyContentRatingClamp(socialCtx, genCfg, map[string]any{})
	if err != nil {
		t.Fatalf("applyContentRatingClamp() error = %v", err)
	}
	if res.Clamped {
		t.Error("unexpected clamp")
	}
	if got := socialCtx["contentRating"]; got != "sfw" {
		t.Errorf("contentRating = %v, want sfw", got)
	}
	if _, present := socialCtx["_ratingClamped"]; present {
		t.Error("_ratingClamped should not be set when no clamp occurred")
	}
}

func TestApplyContentRatingClamp_UnknownRatingRejected(t *testing.T) {
	socialCtx := map[string]any{"contentRating": "extreme"}
	_, err := applyContentRatingClamp(socialCtx, map[string]any{}, map[string]any{})
	if err == nil {
		t.Fatal("expected error for unknown rating")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Errorf("error type = %T, want *ValidationError", err)
	}
}

func TestApplyContentRatingClamp_MissingBoundsDefaultOpen(t *testing.T) {
	socialCtx := map[string]any{"contentRating": "restricted"}
	res, err := applyContentRatingClamp(socialCtx, map[string]any{}, map[string]any{})
	if err != nil {
		t.Fatalf("applyContentRatingClamp() error = %v", err)
	}
	if res.Clamped {
		t.Error("no bounds configured should mean no clamp")
	}
}

func TestCanonicalizeParams_LiftsProviderAgnosticFields(t *testing.T) {
	req := CreateRequest{
		Operation:  "text_to_video",
		ProviderID: "pixverse",
		GenerationConfig: map[string]any{
			"prompt":      "a sunlit meadow",
			"duration":    map[string]any{"target": float64(5)},
			"constraints": map[string]any{"rating": "sfw"},
			"style": map[string]any{
				"pacing": "slow",
				"pixverse": map[string]any{
					"model":   "v2",
					"quality": "standard",
				},
				"sora": map[string]any{"model": "ignored"},
			},
		},
		SceneContext:  map[string]any{},
		SocialContext: map[string]any{"contentRating": "sfw"},
	}

	canonical := canonicalizeParams(req)

	if canonical["prompt"] != "a sunlit meadow" {
		t.Errorf("prompt = %v", canonical["prompt"])
	}
	if canonical["duration_target"] != float64(5) {
		t.Errorf("duration_target = %v, want 5", canonical["duration_target"])
	}
	if canonical["rating"] != "sfw" {
		t.Errorf("rating = %v, want sfw", canonical["rating"])
	}
	if canonical["pacing"] != "slow" {
		t.Errorf("pacing = %v, want slow", canonical["pacing"])
	}
	if canonical["model"] != "v2" {
		t.Errorf("model = %v, want v2 (pixverse style block, not sora)", canonical["model"])
	}
	if canonical["quality"] != "standard" {
		t.Errorf("quality = %v, want standard", canonical["quality"])
	}
	if _, ok := canonical["generation_config"]; !ok {
		t.Error("generation_config section should be carried forward")
	}
}

func TestExtractInputs(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		sceneCtx  map[string]any
		want      []Input
	}{
		{
			name:      "text_to_video has no inputs",
			operation: "text_to_video",
			sceneCtx:  map[string]any{"from_scene": map[string]any{"id": "scene-a"}},
			want:      nil,
		},
		{
			name:      "image_to_video seeds from from_scene",
			operation: "image_to_video",
			sceneCtx: map[string]any{
				"image_url":  "a.png",
				"from_scene": map[string]any{"id": "scene-a"},
			},
			want: []Input{{Type: "seed_image", Ref: "scene-a"}},
		},
		{
			name:      "image_to_video without scene refs",
			operation: "image_to_video",
			sceneCtx:  map[string]any{"image_url": "a.png"},
			want:      nil,
		},
		{
			name:      "video_transition takes both scenes",
			operation: "video_transition",
			sceneCtx: map[string]any{
				"from_scene": map[string]any{"id": "scene-a"},
				"to_scene":   map[string]any{"id": "scene-b"},
			},
			want: []Input{{Type: "from_scene", Ref: "scene-a"}, {Type: "to_scene", Ref: "scene-b"}},
		},
		{
			name:      "video_transition with one scene missing",
			operation: "video_transition",
			sceneCtx:  map[string]any{"from_scene": map[string]any{"id": "scene-a"}},
			want:      []Input{{Type: "from_scene", Ref: "scene-a"}},
		},
		{
			name:      "scene object without id still counts as an input",
			operation: "image_to_video",
			sceneCtx:  map[string]any{"from_scene": map[string]any{"label": "opening shot"}},
			want:      []Input{{Type: "seed_image", Ref: ""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractInputs(tt.operation, tt.sceneCtx)
			if len(got) != len(tt.want) {
				t.Fatalf("extractInputs() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("inputs[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestReproducibleHash_Deterministic(t *testing.T) {
	params := map[string]any{"prompt": "a sunlit meadow", "duration_target": float64(5)}
	inputs := []Input{{Type: "image", Ref: "a.png"}}

	h1, err := reproducibleHash(params, inputs)
	if err != nil {
		t.Fatalf("reproducibleHash() error = %v", err)
	}
	h2, err := reproducibleHash(map[string]any{"duration_target": float64(5), "prompt": "a sunlit meadow"}, inputs)
	if err != nil {
		t.Fatalf("reproducibleHash() error = %v", err)
	}
	if h1 != h2 {
		t.Errorf("hash differs for identical logical content: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h1))
	}
}

func TestReproducibleHash_InputOrderInsensitive(t *testing.T) {
	params := map[string]any{"prompt": "transition"}
	a := []Input{{Type: "image", Ref: "a.png"}, {Type: "image", Ref: "b.png"}}
	b := []Input{{Type: "image", Ref: "b.png"}, {Type: "image", Ref: "a.png"}}

	h1, _ := reproducibleHash(params, a)
	h2, _ := reproducibleHash(params, b)
	if h1 != h2 {
		t.Errorf("hash should not depend on input order: %s vs %s", h1, h2)
	}
}

func TestReproducibleHash_DiffersOnParamChange(t *testing.T) {
	inputs := []Input{{Type: "image", Ref: "a.png"}}
	h1, _ := reproducibleHash(map[string]any{"prompt": "a meadow"}, inputs)
	h2, _ := reproducibleHash(map[string]any{"prompt": "a forest"}, inputs)
	if h1 == h2 {
		t.Error("distinct prompts must hash differently")
	}
}
