package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	fsbackend "github.com/banux/cbz-edit/internal/backend/fs"
)

// newTestServer creates a Server backed by an fs backend over dir.
func newTestServer(t *testing.T, dir string, opts Options) *Server {
	t.Helper()
	backend, err := fsbackend.New(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}
	opts.Logger = zerolog.Nop()
	srv := New(backend, opts)
	t.Cleanup(srv.Wait)
	return srv
}

func TestAuth_Disabled(t *testing.T) {
	// When no key is set, all requests should succeed without credentials.
	srv := newTestServer(t, t.TempDir(), Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/series", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestAuth_MissingCredentials(t *testing.T) {
	srv := newTestServer(t, t.TempDir(), Options{APIKey: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/api/series", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header, got none")
	}
}

func TestAuth_Credentials(t *testing.T) {
	srv := newTestServer(t, t.TempDir(), Options{APIKey: "secret"})

	tests := []struct {
		name string
		set  func(r *http.Request)
		want int
	}{
		{"header", func(r *http.Request) { r.Header.Set("X-API-Key", "secret") }, http.StatusOK},
		{"wrong header", func(r *http.Request) { r.Header.Set("X-API-Key", "nope") }, http.StatusUnauthorized},
		{"basic auth", func(r *http.Request) { r.SetBasicAuth("anyone", "secret") }, http.StatusOK},
		{"wrong basic auth", func(r *http.Request) { r.SetBasicAuth("anyone", "wrong") }, http.StatusUnauthorized},
		{"query", func(r *http.Request) { r.URL.RawQuery = "api_key=secret" }, http.StatusOK},
		{"empty query", func(r *http.Request) { r.URL.RawQuery = "api_key=" }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/series", nil)
			tt.set(req)
			rr := httptest.NewRecorder()
			srv.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestAuth_HealthIsPublic(t *testing.T) {
	srv := newTestServer(t, t.TempDir(), Options{APIKey: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestAuth_UnknownPathStillProtected(t *testing.T) {
	srv := newTestServer(t, t.TempDir(), Options{APIKey: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/whatever", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(t, t.TempDir(), Options{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abcd1234")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "abcd1234" {
		t.Errorf("X-Request-ID = %q, want client value", got)
	}

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if got := rr.Header().Get("X-Request-ID"); len(got) != 8 {
		t.Errorf("generated X-Request-ID = %q", got)
	}
}
