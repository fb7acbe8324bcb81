package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/jxwalker/modshelf/internal/config"
	"github.com/jxwalker/modshelf/internal/preview"
)

const defaultCivitAIBase = "https://civitai.com"

var (
	// ErrNotFound means the hash is unknown to CivitAI.
	ErrNotFound = errors.New("model not found on civitai")
	// ErrUnauthorized means CivitAI refused the request.
	ErrUnauthorized = errors.New("civitai access denied - API key may be required or VPN needed")
)

// CivitAI looks up model versions by file hash.
type CivitAI struct {
	client *http.Client
	base   string
	apiKey string // optional API key for authenticated requests
	ua     string
}

type Option func(*CivitAI)

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(u string) Option { return func(c *CivitAI) { c.base = strings.TrimRight(u, "/") } }

func WithHTTPClient(hc *http.Client) Option { return func(c *CivitAI) { c.client = hc } }

func WithAPIKey(key string) Option { return func(c *CivitAI) { c.apiKey = key } }

// NewCivitAI builds a client from metadata.civitai. The API key is read from
// the env var named by token_env (CIVITAI_TOKEN by default).
func NewCivitAI(cfg *config.Config, opts ...Option) *CivitAI {
	c := &CivitAI{
		client: preview.NewHTTPClient(cfg),
		base:   defaultCivitAIBase,
		ua:     preview.UserAgent(cfg),
	}
	if cfg != nil {
		if u := strings.TrimSpace(cfg.Metadata.CivitAI.BaseURL); u != "" {
			c.base = strings.TrimRight(u, "/")
		}
		env := cfg.Metadata.CivitAI.TokenEnv
		if env == "" {
			env = "CIVITAI_TOKEN"
		}
		c.apiKey = strings.TrimSpace(os.Getenv(env))
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// LookupByHash fetches the model version whose file has the given SHA256.
func (c *CivitAI) LookupByHash(ctx context.Context, sha256 string) (*Info, error) {
	sha256 = strings.TrimSpace(sha256)
	if sha256 == "" {
		return nil, errors.New("empty hash")
	}
	apiURL := fmt.Sprintf("%s/api/v1/model-versions/by-hash/%s", c.base, sha256)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Check if this might be a connectivity issue (e.g., needs VPN)
		if strings.Contains(err.Error(), "no such host") ||
			strings.Contains(err.Error(), "connection refused") ||
			strings.Contains(err.Error(), "timeout") {
			return nil, fmt.Errorf("CivitAI connection failed (VPN may be required): %w", err)
		}
		return nil, fmt.Errorf("fetching metadata: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrUnauthorized
	default:
		return nil, fmt.Errorf("CivitAI API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	var info Info
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if info.ID == 0 {
		return nil, ErrNotFound
	}
	info.SHA256 = strings.ToLower(sha256)
	return &info, nil
}
