package metadata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jxwalker/modshelf/internal/state"
	"github.com/jxwalker/modshelf/internal/testutil"
	"github.com/jxwalker/modshelf/internal/util"
)

type fakeLookup struct {
	mu    sync.Mutex
	infos map[string]*Info
	err   error
	calls int
}

func (f *fakeLookup) LookupByHash(_ context.Context, sha string) (*Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if info, ok := f.infos[sha]; ok {
		cp := *info
		return &cp, nil
	}
	return nil, ErrNotFound
}

func writeModel(t *testing.T, dir, name, content string) state.Model {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return state.Model{Path: p, Name: util.ModelBase(name), Type: "sd.checkpoint", Size: int64(len(content))}
}

func TestEnrich(t *testing.T) {
	db := testutil.TestDB(t)
	dir := t.TempDir()
	known := writeModel(t, dir, "inkwash.safetensors", "known weights")
	unknown := writeModel(t, dir, "mystery.safetensors", "other weights")
	testutil.SeedModels(t, db, known, unknown)

	sha, err := util.HashFileSHA256(known.Path)
	if err != nil {
		t.Fatal(err)
	}
	src := &fakeLookup{infos: map[string]*Info{sha: {
		ID: 9, ModelID: 3, BaseModel: "Pony", TrainedWords: []string{"ink"},
		Model:  ModelRef{Name: "Ink", Type: "LORA"},
		Images: []Image{{URL: "https://img/1.mp4", Type: "video"}},
	}}}

	var seen atomic.Int32
	e := NewEnricher(nil, db, src, WithProgress(func(state.Model, error) { seen.Add(1) }))
	res, err := e.Enrich(context.Background(), []state.Model{known, unknown})
	if err != nil {
		t.Fatal(err)
	}
	if res.Checked != 2 || res.Enriched != 1 || res.NotFound != 1 || len(res.Errors) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if seen.Load() != 2 {
		t.Fatalf("progress called %d times", seen.Load())
	}

	got, _ := db.GetModel(known.Path)
	if got.Type != "sd.lora" || got.BaseModel != "pony" || got.PreviewURL != "https://img/1.mp4" {
		t.Fatalf("db not updated: %+v", got)
	}
	side, err := ReadSidecar(util.ModelBase(known.Path))
	if err != nil || side == nil || side.ModelID != 3 {
		t.Fatalf("sidecar not written: %+v %v", side, err)
	}

	// second run skips the model that now has a sidecar
	res, err = e.Enrich(context.Background(), []state.Model{known, unknown})
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 || res.Checked != 1 {
		t.Fatalf("rerun: %+v", res)
	}

	res, err = NewEnricher(nil, db, src, WithForce(true)).Enrich(context.Background(), []state.Model{known})
	if err != nil || res.Checked != 1 || res.Skipped != 0 {
		t.Fatalf("forced rerun: %+v %v", res, err)
	}
}

func TestEnrichErrors(t *testing.T) {
	dir := t.TempDir()
	m := writeModel(t, dir, "a.safetensors", "a")
	missing := state.Model{Path: filepath.Join(dir, "gone.safetensors"), Name: "gone"}

	res, err := NewEnricher(nil, nil, &fakeLookup{}).Enrich(context.Background(), []state.Model{missing})
	if err != nil || len(res.Errors) != 1 {
		t.Fatalf("hash failure should be collected: %+v %v", res, err)
	}

	_, err = NewEnricher(nil, nil, &fakeLookup{err: ErrUnauthorized}).Enrich(context.Background(), []state.Model{m})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unauthorized should abort, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewEnricher(nil, nil, &fakeLookup{}).Enrich(ctx, []state.Model{m}); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled context: %v", err)
	}
}
