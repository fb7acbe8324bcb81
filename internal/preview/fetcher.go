package preview

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"

	"github.com/jxwalker/modshelf/internal/config"
	"github.com/jxwalker/modshelf/internal/logging"
	"github.com/jxwalker/modshelf/internal/util"
)

var (
	// ErrTooLarge is returned when a remote preview exceeds previews.max_megabytes.
	ErrTooLarge = errors.New("preview exceeds size limit")
	// ErrNoSource is returned for an empty source.
	ErrNoSource = errors.New("no preview source")
)

// DefaultMaxBytes caps a remote preview when previews.max_megabytes is unset.
const DefaultMaxBytes = 64 << 20

// Fetcher turns a preview source (local path, file:// or http(s) URL) into a
// local file. Remote previews are cached under the preview cache dir, keyed
// by URL.
type Fetcher struct {
	dir      string
	client   *http.Client
	ua       string
	maxBytes int64
	log      *logging.Logger
	group    singleflight.Group
}

type Option func(*Fetcher)

func WithLogger(l *logging.Logger) Option { return func(f *Fetcher) { f.log = l.Named("preview") } }

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option { return func(f *Fetcher) { f.client = c } }

func NewFetcher(cfg *config.Config, opts ...Option) *Fetcher {
	f := &Fetcher{client: NewHTTPClient(cfg), ua: UserAgent(cfg), maxBytes: DefaultMaxBytes}
	if cfg != nil {
		f.dir = cfg.PreviewCacheDir()
		if cfg.Previews.MaxMegabytes > 0 {
			f.maxBytes = int64(cfg.Previews.MaxMegabytes) << 20
		}
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// CacheDir is where remote previews are stored.
func (f *Fetcher) CacheDir() string { return f.dir }

// Fetch returns a local path for src. Local files are used in place;
// remote files are downloaded once and reused. Concurrent fetches of the
// same URL share one download.
func (f *Fetcher) Fetch(ctx context.Context, src string) (string, error) {
	if src == "" {
		return "", ErrNoSource
	}
	u, err := neturl.Parse(src)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain path (or a Windows drive letter).
		return f.local(src)
	}
	switch u.Scheme {
	case "file":
		return f.local(u.Path)
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported preview scheme %q", u.Scheme)
	}

	dest := f.CachedPath(src)
	if fi, err := os.Stat(dest); err == nil && fi.Size() > 0 {
		return dest, nil
	}
	v, err, _ := f.group.Do(dest, func() (any, error) {
		return dest, f.download(ctx, src, dest)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// CachedPath is the cache location for a remote URL. The extension of the
// URL path is kept so players can sniff the container.
func (f *Fetcher) CachedPath(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	ext := strings.ToLower(path.Ext(util.URLPathBase(rawURL)))
	if len(ext) > 6 {
		ext = ""
	}
	return filepath.Join(f.dir, hex.EncodeToString(sum[:12])+ext)
}

func (f *Fetcher) local(p string) (string, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("preview %s: %w", p, err)
	}
	if fi.IsDir() {
		return "", fmt.Errorf("preview %s: is a directory", p)
	}
	return p, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL, dest string) error {
	if f.dir == "" {
		return errors.New("preview cache dir not configured")
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", f.ua)
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", logging.SanitizeURL(rawURL), err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: %s", logging.SanitizeURL(rawURL), resp.Status)
	}
	if resp.ContentLength > f.maxBytes {
		return fmt.Errorf("%w: %s > %s", ErrTooLarge, humanize.Bytes(uint64(resp.ContentLength)), humanize.Bytes(uint64(f.maxBytes)))
	}

	tmp, err := os.CreateTemp(f.dir, ".preview.tmp.*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	n, err := io.Copy(tmp, io.LimitReader(resp.Body, f.maxBytes+1))
	if err == nil && n > f.maxBytes {
		err = fmt.Errorf("%w: more than %s", ErrTooLarge, humanize.Bytes(uint64(f.maxBytes)))
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return err
	}
	f.log.Debugf("cached %s (%s) -> %s", logging.SanitizeURL(rawURL), humanize.Bytes(uint64(n)), filepath.Base(dest))
	return nil
}

// CacheSize reports the number of cached previews and their total size.
func (f *Fetcher) CacheSize() (files int, bytes int64, err error) {
	entries, err := os.ReadDir(f.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if info, err := e.Info(); err == nil {
			files++
			bytes += info.Size()
		}
	}
	return files, bytes, nil
}

// Prune removes every cached preview.
func (f *Fetcher) Prune() (int, error) {
	entries, err := os.ReadDir(f.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(f.dir, e.Name())); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
