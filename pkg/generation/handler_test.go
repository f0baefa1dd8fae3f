package generation

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func testRouter() chi.Router {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), nil, nil)
	router := chi.NewRouter()
	router.Mount("/generations", h.Routes())
	return router
}

func TestCreateGeneration_Validation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "invalid JSON",
			body:       `{bad}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty body",
			body:       ``,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing operation",
			body:       `{"provider_id":"pixverse","generation_config":{},"scene_context":{},"social_context":{}}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "unknown operation",
			body:       `{"operation":"text_to_hologram","provider_id":"pixverse","generation_config":{},"scene_context":{},"social_context":{}}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "legacy flat payload rejected",
			body:       `{"operation":"text_to_video","provider_id":"pixverse","prompt":"a meadow"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "malformed prompt_version_id",
			body:       `{"operation":"text_to_video","provider_id":"pixverse","generation_config":{"prompt":"x"},"scene_context":{},"social_context":{},"prompt_version_id":"not-a-uuid"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	router := testRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/generations", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, r)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body: %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestCreateGeneration_Unauthenticated(t *testing.T) {
	body := `{"operation":"text_to_video","provider_id":"pixverse","generation_config":{"prompt":"a meadow"},"scene_context":{},"social_context":{"contentRating":"sfw"}}`
	r := httptest.NewRequest(http.MethodPost, "/generations", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	testRouter().ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestGenerationRoutes_BadID(t *testing.T) {
	for _, target := range []string{"/generations/abc", "/generations/abc/cancel"} {
		method := http.MethodGet
		if strings.HasSuffix(target, "/cancel") {
			method = http.MethodPost
		}
		r := httptest.NewRequest(method, target, nil)
		w := httptest.NewRecorder()

		testRouter().ServeHTTP(w, r)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s %s: status = %d, want 400", method, target, w.Code)
		}
	}
}
