// Package linker exposes library models inside other applications' model
// folders (ComfyUI, A1111, ...) by symlink, hardlink or copy.
package linker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jxwalker/modshelf/internal/config"
	"github.com/jxwalker/modshelf/internal/state"
	"github.com/jxwalker/modshelf/internal/util"
)

// ErrNoTargets is returned when no links.mapping rule matches a model type.
var ErrNoTargets = errors.New("no link targets")

// Targets returns the destination directories configured for modelType.
func Targets(cfg *config.Config, modelType string) ([]string, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	var dirs []string
	for _, rule := range cfg.Links.Mapping {
		if rule.Match != modelType {
			continue
		}
		for _, t := range rule.Targets {
			app, ok := cfg.Links.Apps[t.App]
			if !ok {
				return nil, fmt.Errorf("mapping references unknown app: %s", t.App)
			}
			rel, ok := app.Paths[t.PathKey]
			if !ok {
				return nil, fmt.Errorf("app %s missing path key: %s", t.App, t.PathKey)
			}
			dirs = append(dirs, filepath.Join(app.Base, rel))
		}
	}
	return dirs, nil
}

// Link places src into every target directory for modelType and returns the
// paths it created or found already in place. mode overrides links.mode.
func Link(cfg *config.Config, src, modelType, mode string) ([]string, error) {
	if mode == "" {
		mode = cfg.Links.Mode
	}
	if mode == "" {
		mode = "symlink"
	}
	dirs, err := Targets(cfg, modelType)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("%w for type %q", ErrNoTargets, modelType)
	}

	var placed []string
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return placed, err
		}
		dst := filepath.Join(dir, filepath.Base(src))
		if fi, err := os.Lstat(dst); err == nil {
			if linksTo(dst, fi, src) {
				placed = append(placed, dst)
				continue
			}
			if !cfg.Links.AllowOverwrite {
				if same, _ := sameContent(dst, src); same {
					placed = append(placed, dst)
					continue
				}
				return placed, fmt.Errorf("destination exists and differs: %s", dst)
			}
			if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
				return placed, err
			}
		}
		switch strings.ToLower(mode) {
		case "symlink":
			target := src
			if rel, err := filepath.Rel(dir, src); err == nil && !strings.HasPrefix(rel, "..") {
				target = rel
			}
			err = os.Symlink(target, dst)
		case "hardlink":
			err = os.Link(src, dst)
		case "copy":
			err = copyFile(src, dst)
		default:
			err = fmt.Errorf("unknown link mode: %s", mode)
		}
		if err != nil {
			return placed, err
		}
		placed = append(placed, dst)
	}
	return placed, nil
}

// Result summarises LinkModels.
type Result struct {
	Linked  int
	Untyped int // no mapping for the model's type
	Errors  []error
	Placed  []string
}

// LinkModels links every model, collecting per-model failures.
func LinkModels(cfg *config.Config, models []state.Model) Result {
	var res Result
	for _, m := range models {
		paths, err := Link(cfg, m.Path, m.Type, "")
		switch {
		case errors.Is(err, ErrNoTargets):
			res.Untyped++
		case err != nil:
			res.Errors = append(res.Errors, fmt.Errorf("%s: %w", m.Name, err))
		default:
			res.Linked++
		}
		res.Placed = append(res.Placed, paths...)
	}
	return res
}

// linksTo reports whether dst is a symlink resolving to src.
func linksTo(dst string, fi os.FileInfo, src string) bool {
	if fi.Mode()&os.ModeSymlink == 0 {
		return false
	}
	got, err := filepath.EvalSymlinks(dst)
	if err != nil {
		return false
	}
	want, err := filepath.EvalSymlinks(src)
	if err != nil {
		return false
	}
	return got == want
}

func sameContent(a, b string) (bool, error) {
	sa, err := util.HashFileSHA256(a)
	if err != nil {
		return false, err
	}
	sb, err := util.HashFileSHA256(b)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(sa, sb), nil
}

func copyFile(src, dst string) error {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = sf.Close() }()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(df, sf); err != nil {
		_ = df.Close()
		return err
	}
	return df.Close()
}
