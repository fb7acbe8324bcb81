package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jxwalker/modshelf/internal/classifier"
	"github.com/jxwalker/modshelf/internal/config"
	"github.com/jxwalker/modshelf/internal/logging"
	"github.com/jxwalker/modshelf/internal/metadata"
	"github.com/jxwalker/modshelf/internal/state"
	"github.com/jxwalker/modshelf/internal/util"
)

// DefaultExtensions are file extensions we recognize as model files
var DefaultExtensions = []string{
	".safetensors",
	".ckpt",
	".pt",
	".pth",
	".bin",
	".gguf",
	".onnx",
}

// DefaultPreviewSuffixes are tried in order next to each model file.
var DefaultPreviewSuffixes = []string{
	".preview.mp4",
	".preview.webm",
	".preview.gif",
	".preview.png",
	".preview.jpg",
	".png",
	".jpg",
}

// Scanner walks library roots and keeps the models table in sync with disk.
type Scanner struct {
	db       *state.DB
	cls      *classifier.Classifier
	exts     map[string]bool
	suffixes []string
	prune    bool
	log      *logging.Logger
	progress func(path string, found int)
}

type Option func(*Scanner)

func WithLogger(l *logging.Logger) Option { return func(s *Scanner) { s.log = l.Named("scanner") } }

// WithProgress reports each model file as it is processed. fn may be called
// from several goroutines but never concurrently.
func WithProgress(fn func(path string, found int)) Option {
	return func(s *Scanner) { s.progress = fn }
}

// New creates a scanner using cfg's library and classifier sections.
func New(db *state.DB, cfg *config.Config, opts ...Option) *Scanner {
	s := &Scanner{db: db, cls: classifier.New(cfg), exts: map[string]bool{}}
	exts := DefaultExtensions
	s.suffixes = DefaultPreviewSuffixes
	if cfg != nil {
		if len(cfg.Library.Extensions) > 0 {
			exts = cfg.Library.Extensions
		}
		if len(cfg.Library.PreviewSuffixes) > 0 {
			s.suffixes = cfg.Library.PreviewSuffixes
		}
		s.prune = cfg.Library.PruneMissing
	}
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		s.exts[e] = true
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Result contains information about a scan operation
type Result struct {
	FilesScanned    int
	ModelsAdded     int
	ModelsUpdated   int
	ModelsUnchanged int
	PreviewsFound   int
	Pruned          int
	Errors          []error
}

// Scan walks every root concurrently. Per-file failures are collected in
// Result.Errors; a missing root is reported there too. The returned error is
// set only when the context is cancelled or pruning fails.
func (s *Scanner) Scan(ctx context.Context, roots []string) (*Result, error) {
	res := &Result{}
	var mu sync.Mutex
	seen := map[string]bool{}

	g, gctx := errgroup.WithContext(ctx)
	for _, root := range roots {
		root := root
		g.Go(func() error {
			err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					if errors.Is(err, fs.ErrPermission) && p != root {
						return filepath.SkipDir
					}
					return err
				}
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if d.IsDir() || !s.IsModelFile(p) {
					return nil
				}
				info, err := d.Info()
				if err != nil {
					mu.Lock()
					res.Errors = append(res.Errors, fmt.Errorf("stat %s: %w", p, err))
					mu.Unlock()
					return nil
				}
				m := s.describe(p, info)

				mu.Lock()
				defer mu.Unlock()
				seen[p] = true
				res.FilesScanned++
				if m.PreviewURL != "" {
					res.PreviewsFound++
				}
				if s.progress != nil {
					s.progress(p, res.FilesScanned)
				}
				if err := s.store(m, res); err != nil {
					res.Errors = append(res.Errors, fmt.Errorf("storing %s: %w", p, err))
				}
				return nil
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				mu.Lock()
				res.Errors = append(res.Errors, fmt.Errorf("scanning %s: %w", root, err))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	if s.prune {
		n, err := s.db.PruneModels(roots, seen)
		if err != nil {
			return res, fmt.Errorf("prune: %w", err)
		}
		res.Pruned = n
	}
	s.log.Infof("scan: %d files, %d added, %d updated, %d previews, %d pruned, %d errors",
		res.FilesScanned, res.ModelsAdded, res.ModelsUpdated, res.PreviewsFound, res.Pruned, len(res.Errors))
	return res, nil
}

// store upserts m unless an identical row already exists.
func (s *Scanner) store(m *state.Model, res *Result) error {
	existing, err := s.db.GetModel(m.Path)
	if err != nil {
		return err
	}
	if existing != nil && existing.Size == m.Size && existing.ModTime.Equal(m.ModTime) &&
		existing.PreviewURL == m.PreviewURL && existing.Type == m.Type &&
		existing.BaseModel == m.BaseModel && strings.Join(existing.Tags, "\x00") == strings.Join(m.Tags, "\x00") {
		res.ModelsUnchanged++
		return nil
	}
	if err := s.db.UpsertModel(m); err != nil {
		return err
	}
	if existing == nil {
		res.ModelsAdded++
	} else {
		res.ModelsUpdated++
	}
	return nil
}

// IsModelFile checks if a file has a recognized model extension.
func (s *Scanner) IsModelFile(path string) bool {
	return s.exts[strings.ToLower(filepath.Ext(path))]
}

func (s *Scanner) describe(p string, info fs.FileInfo) *state.Model {
	base := util.ModelBase(p)
	cls := s.cls.Classify(p)
	m := &state.Model{
		Path:      p,
		Name:      filepath.Base(base),
		Type:      cls.Type,
		BaseModel: cls.BaseModel,
		Size:      info.Size(),
		ModTime:   info.ModTime().Truncate(time.Second),
	}
	m.PreviewURL = s.findPreview(base)
	meta, err := metadata.ReadSidecar(base)
	if err != nil {
		s.log.Warnf("%v", err)
	}
	metadata.Apply(m, meta)
	sort.Strings(m.Tags)
	return m
}

// findPreview returns the first existing sidecar for base (path minus ext).
func (s *Scanner) findPreview(base string) string {
	for _, suf := range s.suffixes {
		p := base + suf
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}
