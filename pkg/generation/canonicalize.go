package generation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// validateStructuredParams enforces the per-operation required-field rules
// of step 3: structured sections must be present (already guaranteed by the
// DTO's validate tags) and operation-specific fields must be populated.
func validateStructuredParams(operation string, genCfg, sceneCtx map[string]any) error {
	prompt, _ := genCfg["prompt"].(string)

	switch operation {
	case "text_to_video", "image_to_video", "text_to_image", "image_to_image":
		if strings.TrimSpace(prompt) == "" {
			return &ValidationError{Message: "generation_config.prompt is required for " + operation}
		}
	}

	switch operation {
	case "image_to_video":
		if s, _ := sceneCtx["image_url"].(string); strings.TrimSpace(s) == "" {
			return &ValidationError{Message: "scene_context.image_url is required for image_to_video"}
		}
	case "image_to_image":
		urls, hasList := sceneCtx["image_urls"].([]any)
		single, _ := sceneCtx["image_url"].(string)
		if (!hasList || len(urls) == 0) && strings.TrimSpace(single) == "" {
			return &ValidationError{Message: "scene_context.image_urls or image_url is required for image_to_image"}
		}
	case "video_extend":
		videoURL, _ := sceneCtx["video_url"].(string)
		originalID, _ := sceneCtx["original_video_id"].(string)
		if strings.TrimSpace(videoURL) == "" && strings.TrimSpace(originalID) == "" {
			return &ValidationError{Message: "scene_context.video_url or original_video_id is required for video_extend"}
		}
	case "video_transition":
		urls, _ := sceneCtx["image_urls"].([]any)
		prompts, _ := sceneCtx["prompts"].([]any)
		if len(urls) < 2 {
			return &ValidationError{Message: "scene_context.image_urls must have at least 2 entries for video_transition"}
		}
		if len(prompts) != len(urls)-1 {
			return &ValidationError{Message: fmt.Sprintf("scene_context.prompts must have exactly %d entries for video_transition", len(urls)-1)}
		}
	}
	return nil
}

// clampResult describes the outcome of content-rating enforcement.
type clampResult struct {
	Clamped        bool
	OriginalRating string
	EffectiveMax   string
}

// applyContentRatingClamp implements step 4: requested rating is clamped to
// effective_max = min(world_max, user_max) by ladder index. World max is
// read from generation_config.maxContentRating (mirroring the original's
// world-meta-merged-into-generation_config shape); user max is read from
// player_context.maxContentRating, standing in for the original's separate
// user-preferences fetch since this port has no persisted preference store.
// Either bound defaults to the least restrictive ladder entry when absent.
func applyContentRatingClamp(socialCtx, genCfg, playerCtx map[string]any) (clampResult, error) {
	requested, _ := socialCtx["contentRating"].(string)
	if requested == "" {
		requested = ratingLadder[0]
	}
	requestedIdx, ok := ratingIndex(requested)
	if !ok {
		return clampResult{}, &ValidationError{Message: fmt.Sprintf("invalid content rating %q", requested)}
	}

	worldMax, _ := genCfg["maxContentRating"].(string)
	worldIdx, ok := ratingIndex(worldMax)
	if !ok {
		worldIdx = len(ratingLadder) - 1
	}

	userMax, _ := playerCtx["maxContentRating"].(string)
	userIdx, ok := ratingIndex(userMax)
	if !ok {
		userIdx = len(ratingLadder) - 1
	}

	effectiveIdx := worldIdx
	if userIdx < effectiveIdx {
		effectiveIdx = userIdx
	}
	effectiveMax := ratingLadder[effectiveIdx]

	if requestedIdx <= effectiveIdx {
		return clampResult{EffectiveMax: effectiveMax}, nil
	}

	socialCtx["contentRating"] = effectiveMax
	socialCtx["_ratingClamped"] = true
	socialCtx["_originalRating"] = requested
	return clampResult{Clamped: true, OriginalRating: requested, EffectiveMax: effectiveMax}, nil
}

// canonicalizeParams implements step 5: provider-agnostic fields are lifted
// to the top level, style.<provider_id>.* overrides are copied over them,
// and the structured context sections are carried forward under their own
// keys so downstream consumers (cache key, audit, replay) retain them.
func canonicalizeParams(req CreateRequest) map[string]any {
	genCfg := req.GenerationConfig
	sceneCtx := req.SceneContext

	canonical := map[string]any{}

	if v, ok := genCfg["prompt"]; ok {
		canonical["prompt"] = v
	}
	if duration, ok := genCfg["duration"].(map[string]any); ok {
		if target, ok := duration["target"]; ok {
			canonical["duration_target"] = target
		}
	}
	if constraints, ok := genCfg["constraints"].(map[string]any); ok {
		if rating, ok := constraints["rating"]; ok {
			canonical["rating"] = rating
		}
	}
	if style, ok := genCfg["style"].(map[string]any); ok {
		if pacing, ok := style["pacing"]; ok {
			canonical["pacing"] = pacing
		}
		if providerStyle, ok := style[req.ProviderID].(map[string]any); ok {
			for k, v := range providerStyle {
				canonical[k] = v
			}
		}
	}

	for _, key := range []string{"image_url", "image_urls", "video_url", "original_video_id", "prompts"} {
		if v, ok := sceneCtx[key]; ok {
			canonical[key] = v
		}
	}

	canonical["generation_config"] = genCfg
	canonical["scene_context"] = sceneCtx
	canonical["player_context"] = req.PlayerContext
	canonical["social_context"] = req.SocialContext

	return canonical
}

// extractInputs implements step 6: inputs referenced by a generation are
// derived from scene_context's nested from_scene/to_scene objects — the
// same objects the cache key reads its scene ids from. For transitions
// both scenes are inputs; for image_to_video the from_scene is the seed
// image. Flat media fields (image_url, video_url, ...) are not inputs:
// they reach the reproducible hash through the scene_context section
// carried forward inside canonical_params.
func extractInputs(operation string, sceneCtx map[string]any) []Input {
	sceneInput := func(key, role string) (Input, bool) {
		scene, ok := sceneCtx[key].(map[string]any)
		if !ok {
			return Input{}, false
		}
		id, _ := scene["id"].(string)
		return Input{Type: role, Ref: id}, true
	}

	var inputs []Input
	switch operation {
	case "video_transition":
		if in, ok := sceneInput("from_scene", "from_scene"); ok {
			inputs = append(inputs, in)
		}
		if in, ok := sceneInput("to_scene", "to_scene"); ok {
			inputs = append(inputs, in)
		}
	case "image_to_video":
		if in, ok := sceneInput("from_scene", "seed_image"); ok {
			inputs = append(inputs, in)
		}
	}
	return inputs
}

// reproducibleHash implements step 7: sha256 over the canonical JSON
// encoding of canonical_params and inputs. encoding/json sorts map keys,
// giving a deterministic byte sequence for identical logical content.
func reproducibleHash(canonicalParams map[string]any, inputs []Input) (string, error) {
	sortedInputs := make([]Input, len(inputs))
	copy(sortedInputs, inputs)
	sort.Slice(sortedInputs, func(i, j int) bool {
		if sortedInputs[i].Type != sortedInputs[j].Type {
			return sortedInputs[i].Type < sortedInputs[j].Type
		}
		return sortedInputs[i].Ref < sortedInputs[j].Ref
	})

	payload := struct {
		CanonicalParams map[string]any `json:"canonical_params"`
		Inputs          []Input        `json:"inputs"`
	}{CanonicalParams: canonicalParams, Inputs: sortedInputs}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling canonical payload: %w", err)
	}

	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
