package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jxwalker/modshelf/internal/state"
)

// MockHTTPServer creates a test HTTP server that serves canned responses
type MockHTTPServer struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]MockResponse
	hits      map[string]int
}

// MockResponse represents a canned HTTP response
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
}

// NewMockHTTPServer creates a new mock HTTP server. It is closed when the
// test completes.
func NewMockHTTPServer(t *testing.T) *MockHTTPServer {
	t.Helper()
	ms := &MockHTTPServer{
		responses: make(map[string]MockResponse),
		hits:      make(map[string]int),
	}

	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ms.mu.Lock()
		ms.hits[r.URL.Path]++
		resp, ok := ms.responses[r.URL.Path]
		ms.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = fmt.Fprintf(w, "No mock response configured for %s", r.URL.Path)
			return
		}
		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(resp.Body)
	}))
	t.Cleanup(ms.Close)
	return ms
}

// AddResponse adds a canned response for a specific path
func (ms *MockHTTPServer) AddResponse(path string, response MockResponse) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.responses[path] = response
}

// AddMedia serves body with the given content type and a 200 status.
func (ms *MockHTTPServer) AddMedia(path, contentType string, body []byte) {
	ms.AddResponse(path, MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": contentType},
	})
}

// Hits returns how many requests were made for path.
func (ms *MockHTTPServer) Hits(path string) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.hits[path]
}

// TestDB creates an in-memory SQLite database for testing
func TestDB(t *testing.T) *state.DB {
	t.Helper()

	db, err := state.NewDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

// SeedModels upserts models into db.
func SeedModels(t *testing.T, db *state.DB, models ...state.Model) {
	t.Helper()
	for i := range models {
		if err := db.UpsertModel(&models[i]); err != nil {
			t.Fatalf("seed %s: %v", models[i].Path, err)
		}
	}
}

// TempFile creates a temporary file with content
func TempFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}
