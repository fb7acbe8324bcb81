package metadata

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jxwalker/modshelf/internal/config"
	"github.com/jxwalker/modshelf/internal/logging"
	"github.com/jxwalker/modshelf/internal/state"
	"github.com/jxwalker/modshelf/internal/util"
)

// Lookup resolves a file hash to a model record.
type Lookup interface {
	LookupByHash(ctx context.Context, sha256 string) (*Info, error)
}

// Enricher hashes model files, looks them up and records what it finds in
// sidecars and the state DB.
type Enricher struct {
	db       *state.DB
	src      Lookup
	log      *logging.Logger
	workers  int
	force    bool
	progress func(m state.Model, err error)
}

type EnrichOption func(*Enricher)

func WithLogger(l *logging.Logger) EnrichOption {
	return func(e *Enricher) { e.log = l.Named("metadata") }
}

// WithForce looks models up again even when a sidecar exists.
func WithForce(v bool) EnrichOption { return func(e *Enricher) { e.force = v } }

// WithProgress is called once per looked-up model, from worker goroutines.
func WithProgress(fn func(m state.Model, err error)) EnrichOption {
	return func(e *Enricher) { e.progress = fn }
}

func NewEnricher(cfg *config.Config, db *state.DB, src Lookup, opts ...EnrichOption) *Enricher {
	e := &Enricher{db: db, src: src, workers: 2}
	if cfg != nil && cfg.Metadata.Concurrency > 0 {
		e.workers = cfg.Metadata.Concurrency
	}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = logging.Discard()
	}
	return e
}

// EnrichResult summarizes one Enrich run.
type EnrichResult struct {
	Checked  int
	Enriched int
	NotFound int
	Skipped  int
	Errors   []error
}

// Enrich looks up every model without a sidecar (all models with
// WithForce). Per-model failures are collected; an authorization failure
// aborts the run.
func (e *Enricher) Enrich(ctx context.Context, models []state.Model) (EnrichResult, error) {
	var (
		res EnrichResult
		mu  sync.Mutex
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, m := range models {
		m := m
		base := util.ModelBase(m.Path)
		if !e.force {
			if info, _ := ReadSidecar(base); info != nil {
				mu.Lock()
				res.Skipped++
				mu.Unlock()
				continue
			}
		}
		g.Go(func() error {
			err := e.one(gctx, &m, base, &res, &mu)
			if e.progress != nil {
				e.progress(m, err)
			}
			if errors.Is(err, ErrUnauthorized) || gctx.Err() != nil {
				return err
			}
			if err != nil {
				mu.Lock()
				res.Errors = append(res.Errors, fmt.Errorf("%s: %w", m.Name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()
	e.log.Infof("enrich: %d checked, %d enriched, %d not found, %d skipped, %d errors",
		res.Checked, res.Enriched, res.NotFound, res.Skipped, len(res.Errors))
	return res, err
}

func (e *Enricher) one(ctx context.Context, m *state.Model, base string, res *EnrichResult, mu *sync.Mutex) error {
	sha, err := util.HashFileSHA256(m.Path)
	if err != nil {
		return fmt.Errorf("hash: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := e.src.LookupByHash(ctx, sha)

	mu.Lock()
	defer mu.Unlock()
	res.Checked++
	if errors.Is(err, ErrNotFound) {
		res.NotFound++
		e.log.Debugf("%s (%s) not found", m.Name, util.AutoV2(sha))
		return nil
	}
	if err != nil {
		return err
	}
	if err := WriteSidecar(base, info); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	Apply(m, info)
	if e.db != nil {
		if err := e.db.UpsertModel(m); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}
	res.Enriched++
	return nil
}
