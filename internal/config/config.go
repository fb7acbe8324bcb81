package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML schema. Values come from YAML; the few runtime
// defaults (preview concurrency, delay) are applied by the consumers.
// Minimal validation occurs in Validate().
type Config struct {
	Version    int              `yaml:"version"`
	General    General          `yaml:"general"`
	Library    Library          `yaml:"library"`
	Previews   Previews         `yaml:"previews"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Metadata   Metadata         `yaml:"metadata"`
	Links      Links            `yaml:"links"`
	Logging    Logging          `yaml:"logging"`
	Metrics    Metrics          `yaml:"metrics"`
	UI         UIOptions        `yaml:"ui"`
}

type General struct {
	DataRoot  string `yaml:"data_root"`
	CacheRoot string `yaml:"cache_root"` // preview cache; defaults to data_root/previews
}

type Library struct {
	Roots []string `yaml:"roots"`
	// Extensions overrides the recognised model file extensions.
	Extensions []string `yaml:"extensions"`
	// PreviewSuffixes are tried, in order, next to each model file (foo.preview.mp4 ...).
	PreviewSuffixes []string `yaml:"preview_suffixes"`
	PruneMissing    bool     `yaml:"prune_missing"`
}

type Previews struct {
	Enabled        bool   `yaml:"enabled"`
	MaxConcurrency int    `yaml:"max_concurrency"`
	DelayMS        int    `yaml:"delay_ms"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent"`
	MaxMegabytes   int    `yaml:"max_megabytes"`
}

// Metadata configures lookups of model details by file hash.
type Metadata struct {
	CivitAI CivitAI `yaml:"civitai"`
	// Concurrency bounds parallel hash+lookup jobs. If 0, defaults to 2.
	Concurrency int `yaml:"concurrency"`
}

type CivitAI struct {
	Enabled  bool   `yaml:"enabled"`
	BaseURL  string `yaml:"base_url"`  // default https://civitai.com
	TokenEnv string `yaml:"token_env"` // env var holding an API key, default CIVITAI_TOKEN
}

// Links describes where models of each type are exposed to other apps.
type Links struct {
	Mode           string             `yaml:"mode"` // symlink | hardlink | copy
	AllowOverwrite bool               `yaml:"allow_overwrite"`
	Apps           map[string]LinkApp `yaml:"apps"`
	Mapping        []LinkRule         `yaml:"mapping"`
}

type LinkApp struct {
	Base  string            `yaml:"base"`
	Paths map[string]string `yaml:"paths"`
}

type LinkRule struct {
	Match   string       `yaml:"match"`
	Targets []LinkTarget `yaml:"targets"`
}

type LinkTarget struct {
	App     string `yaml:"app"`
	PathKey string `yaml:"path_key"`
}

type ClassifierConfig struct {
	Rules []ClassifierRule `yaml:"rules"`
}

type ClassifierRule struct {
	Regex string `yaml:"regex"`
	Type  string `yaml:"type"`
}

type Logging struct {
	Level  string  `yaml:"level"`  // debug|info|warn|error
	Format string  `yaml:"format"` // human|json
	File   LogFile `yaml:"file"`
}

type LogFile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type Metrics struct {
	PrometheusTextfile PromTextfile `yaml:"prometheus_textfile"`
}

type PromTextfile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type UIOptions struct {
	// RefreshHz controls the TUI tick frequency. If 0, defaults to 4.
	// Values above 30 are clamped.
	RefreshHz int `yaml:"refresh_hz"`
	// AutoplayOnHover plays previews only for the selected card. When false,
	// every loaded preview plays.
	AutoplayOnHover bool `yaml:"autoplay_on_hover"`
	// MarginRows is how far beyond the visible rows a card starts loading.
	MarginRows int  `yaml:"margin_rows"`
	Mouse      bool `yaml:"mouse"`
	// PersistState mirrors the UI state store (sort, filters) into the state DB.
	PersistState bool   `yaml:"persist_state"`
	SortBy       string `yaml:"sort_by"` // name | size | type | modified
}

// Load reads, parses, expands, and validates a YAML config file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	expanded, err := expandTilde(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(expanded)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes YAML bytes, expanding ${ENV} placeholders and ~ paths, then
// validates the result.
func Parse(b []byte) (*Config, error) {
	b = []byte(os.ExpandEnv(string(b)))
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if err := c.expandPaths(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) expandPaths() error {
	var err error
	if c.General.DataRoot, err = expandTilde(c.General.DataRoot); err != nil {
		return err
	}
	if c.General.CacheRoot, err = expandTilde(c.General.CacheRoot); err != nil {
		return err
	}
	if c.Logging.File.Path, err = expandTilde(c.Logging.File.Path); err != nil {
		return err
	}
	if c.Metrics.PrometheusTextfile.Path, err = expandTilde(c.Metrics.PrometheusTextfile.Path); err != nil {
		return err
	}
	for name, app := range c.Links.Apps {
		if app.Base == "" {
			continue
		}
		exp, err := expandTilde(app.Base)
		if err != nil {
			return fmt.Errorf("links.apps.%s.base: %w", name, err)
		}
		app.Base = exp
		c.Links.Apps[name] = app
	}
	for i, r := range c.Library.Roots {
		exp, err := expandTilde(r)
		if err != nil {
			return fmt.Errorf("library.roots[%d]: %w", i, err)
		}
		c.Library.Roots[i] = exp
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version: %d", c.Version)
	}
	if c.General.DataRoot == "" {
		return errors.New("general.data_root is required")
	}
	lvl := stringsLower(c.Logging.Level)
	switch lvl {
	case "", "debug", "info", "warn", "error":
		// ok
	default:
		return fmt.Errorf("logging.level invalid: %s", c.Logging.Level)
	}
	fmtStr := stringsLower(c.Logging.Format)
	switch fmtStr {
	case "", "human", "json":
		// ok
	default:
		return fmt.Errorf("logging.format invalid: %s", c.Logging.Format)
	}
	for i, r := range c.Classifier.Rules {
		if r.Regex == "" || r.Type == "" {
			return fmt.Errorf("classifier.rules[%d]: regex and type required", i)
		}
		if _, err := regexp.Compile(r.Regex); err != nil {
			return fmt.Errorf("classifier.rules[%d].regex: %v", i, err)
		}
	}
	if c.Previews.MaxConcurrency < 0 {
		return fmt.Errorf("previews.max_concurrency must be >= 0")
	}
	if c.Previews.DelayMS < 0 {
		return fmt.Errorf("previews.delay_ms must be >= 0")
	}
	if c.Metadata.Concurrency < 0 {
		return fmt.Errorf("metadata.concurrency must be >= 0")
	}
	if u := c.Metadata.CivitAI.BaseURL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return fmt.Errorf("metadata.civitai.base_url must be an http(s) URL: %s", u)
	}
	switch stringsLower(c.Links.Mode) {
	case "", "symlink", "hardlink", "copy":
	default:
		return fmt.Errorf("links.mode invalid: %s", c.Links.Mode)
	}
	for i, r := range c.Links.Mapping {
		if r.Match == "" {
			return fmt.Errorf("links.mapping[%d].match is required", i)
		}
		for j, t := range r.Targets {
			app, ok := c.Links.Apps[t.App]
			if !ok {
				return fmt.Errorf("links.mapping[%d].targets[%d]: unknown app %q", i, j, t.App)
			}
			if _, ok := app.Paths[t.PathKey]; !ok {
				return fmt.Errorf("links.mapping[%d].targets[%d]: app %s has no path %q", i, j, t.App, t.PathKey)
			}
		}
	}
	if c.UI.RefreshHz < 0 {
		return fmt.Errorf("ui.refresh_hz must be >= 0")
	}
	if c.UI.MarginRows < 0 {
		return fmt.Errorf("ui.margin_rows must be >= 0")
	}
	switch stringsLower(c.UI.SortBy) {
	case "", "name", "size", "type", "modified":
	default:
		return fmt.Errorf("ui.sort_by invalid: %s", c.UI.SortBy)
	}
	return nil
}

// PreviewCacheDir returns cache_root, or data_root/previews when unset.
func (c *Config) PreviewCacheDir() string {
	if c.General.CacheRoot != "" {
		return c.General.CacheRoot
	}
	return filepath.Join(c.General.DataRoot, "previews")
}

// LogFilePath returns the configured log file, or data_root/modshelf.log.
func (c *Config) LogFilePath() string {
	if c.Logging.File.Path != "" {
		return c.Logging.File.Path
	}
	return filepath.Join(c.General.DataRoot, "modshelf.log")
}

func expandTilde(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p[0] != '~' {
		return p, nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if p == "~" {
		return h, nil
	}
	return filepath.Join(h, p[2:]), nil
}

func stringsLower(s string) string {
	b := []byte(s)
	for i := range b {
		if 'A' <= b[i] && b[i] <= 'Z' {
			b[i] = b[i] + 32
		}
	}
	return string(b)
}

// EnsureDir creates path if it is set.
func EnsureDir(path string, perm fs.FileMode) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(path, perm)
}
