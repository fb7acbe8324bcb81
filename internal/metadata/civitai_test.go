package metadata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jxwalker/modshelf/internal/config"
	"github.com/jxwalker/modshelf/internal/testutil"
)

const versionJSON = `{
	"id": 67890,
	"modelId": 12345,
	"name": "v2.0",
	"baseModel": "SDXL 1.0",
	"trainedWords": ["inkwash", "brush"],
	"model": {"name": "Ink Wash", "type": "LORA", "nsfw": false},
	"images": [
		{"url": "https://image.civitai.com/a/1.jpeg", "type": "image"},
		{"url": "https://image.civitai.com/a/2.mp4", "type": "video"}
	],
	"files": [{"name": "inkwash.safetensors", "sizeKB": 143000}]
}`

func TestLookupByHash(t *testing.T) {
	srv := testutil.NewMockHTTPServer(t)
	srv.AddResponse("/api/v1/model-versions/by-hash/ABC123", testutil.MockResponse{StatusCode: http.StatusOK, Body: []byte(versionJSON)})

	c := NewCivitAI(nil, WithBaseURL(srv.URL+"/"))
	info, err := c.LookupByHash(context.Background(), "ABC123")
	if err != nil {
		t.Fatal(err)
	}
	if info.Model.Name != "Ink Wash" || info.BaseModel != "SDXL 1.0" || info.SHA256 != "abc123" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if got := info.PreviewURL(); got != "https://image.civitai.com/a/2.mp4" {
		t.Fatalf("preview should prefer video, got %s", got)
	}
	if got := info.Homepage(); got != "https://civitai.com/models/12345?modelVersionId=67890" {
		t.Fatalf("homepage = %s", got)
	}
}

func TestLookupByHashErrors(t *testing.T) {
	srv := testutil.NewMockHTTPServer(t)
	srv.AddResponse("/api/v1/model-versions/by-hash/denied", testutil.MockResponse{StatusCode: http.StatusForbidden})
	srv.AddResponse("/api/v1/model-versions/by-hash/broken", testutil.MockResponse{StatusCode: http.StatusInternalServerError})
	srv.AddResponse("/api/v1/model-versions/by-hash/garbage", testutil.MockResponse{StatusCode: http.StatusOK, Body: []byte("<html>")})
	c := NewCivitAI(nil, WithBaseURL(srv.URL))

	tests := []struct {
		hash    string
		wantErr error
		wantMsg string
	}{
		{"missing", ErrNotFound, ""},
		{"denied", ErrUnauthorized, ""},
		{"broken", nil, "status 500"},
		{"garbage", nil, "parsing response"},
		{"", nil, "empty hash"},
	}
	for _, tt := range tests {
		t.Run(tt.hash, func(t *testing.T) {
			_, err := c.LookupByHash(context.Background(), tt.hash)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("got %v, want message containing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	var auth, ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, ua = r.Header.Get("Authorization"), r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(versionJSON))
	}))
	defer srv.Close()

	t.Setenv("MY_CIVITAI", "sekret")
	cfg := &config.Config{Metadata: config.Metadata{CivitAI: config.CivitAI{BaseURL: srv.URL, TokenEnv: "MY_CIVITAI"}}}
	if _, err := NewCivitAI(cfg).LookupByHash(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if auth != "Bearer sekret" {
		t.Fatalf("authorization = %q", auth)
	}
	if !strings.HasPrefix(ua, "modshelf/") {
		t.Fatalf("user agent = %q", ua)
	}
}
