package cache

import "testing"

func TestCacheKey_Once(t *testing.T) {
	got := CacheKey(KeyParams{
		Operation:   "text_to_video",
		Purpose:     "intro",
		FromSceneID: "scene1",
		ToSceneID:   "scene2",
		Strategy:    StrategyOnce,
		Version:     1,
	})
	want := "generation:text_to_video|intro|scene1|scene2|once||v1"
	if got != want {
		t.Errorf("CacheKey() = %q, want %q", got, want)
	}
}

func TestCacheKey_PerPlaythrough(t *testing.T) {
	got := CacheKey(KeyParams{
		Operation:     "text_to_video",
		Strategy:      StrategyPerPlaythrough,
		PlaythroughID: "pt-1",
		Version:       2,
	})
	want := "generation:text_to_video||||per_playthrough|pt:pt-1|v2"
	if got != want {
		t.Errorf("CacheKey() = %q, want %q", got, want)
	}
}

func TestCacheKey_PerPlayer(t *testing.T) {
	got := CacheKey(KeyParams{
		Operation: "text_to_image",
		Strategy:  StrategyPerPlayer,
		UserID:    "user-1",
	})
	want := "generation:text_to_image||||per_player|player:user-1|v1"
	if got != want {
		t.Errorf("CacheKey() = %q, want %q", got, want)
	}
}

func TestCacheKey_Always_DisablesCaching(t *testing.T) {
	got := CacheKey(KeyParams{Operation: "text_to_video", Strategy: StrategyAlways})
	if got != "" {
		t.Errorf("CacheKey() for StrategyAlways = %q, want empty string", got)
	}
}

func TestDedupKey(t *testing.T) {
	got := DedupKey("abc123")
	want := "generation:hash:abc123"
	if got != want {
		t.Errorf("DedupKey() = %q, want %q", got, want)
	}
}

func TestTTLFor(t *testing.T) {
	tests := []struct {
		strategy Strategy
		wantDays int
	}{
		{StrategyOnce, 365},
		{StrategyPerPlaythrough, 90},
		{StrategyPerPlayer, 180},
	}
	for _, tt := range tests {
		got := ttlFor(tt.strategy)
		wantHours := float64(tt.wantDays * 24)
		if got.Hours() != wantHours {
			t.Errorf("ttlFor(%s) = %v hours, want %v", tt.strategy, got.Hours(), wantHours)
		}
	}
	if ttlFor(StrategyAlways) != 0 {
		t.Errorf("ttlFor(StrategyAlways) should be 0")
	}
}
