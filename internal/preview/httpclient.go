package preview

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/jxwalker/modshelf/internal/config"
)

// Version is reported in the default User-Agent. cmd/modshelf overwrites it
// from its linker-provided version.
var Version = "dev"

// NewHTTPClient is the client used for preview and metadata requests.
func NewHTTPClient(cfg *config.Config) *http.Client {
	timeout := 30 * time.Second
	if cfg != nil && cfg.Previews.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Previews.TimeoutSeconds) * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
	client := &http.Client{Transport: tr, Timeout: timeout}
	// Keep the UA across redirects; CDNs behind civitai.com redirect previews.
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return fmt.Errorf("stopped after %d redirects", len(via))
		}
		if ua := via[len(via)-1].Header.Get("User-Agent"); ua != "" {
			req.Header.Set("User-Agent", ua)
		}
		return nil
	}
	return client
}

// UserAgent returns the configured User-Agent, or
// "modshelf/<version> (<goos>/<goarch>)" when not set.
func UserAgent(cfg *config.Config) string {
	if cfg != nil && strings.TrimSpace(cfg.Previews.UserAgent) != "" {
		return cfg.Previews.UserAgent
	}
	return fmt.Sprintf("modshelf/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}
