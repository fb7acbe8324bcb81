package linker

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jxwalker/modshelf/internal/config"
	"github.com/jxwalker/modshelf/internal/state"
)

func comfyConfig(tmp, mode string) *config.Config {
	return &config.Config{
		Version: 1,
		General: config.General{DataRoot: filepath.Join(tmp, "data")},
		Links: config.Links{
			Mode: mode,
			Apps: map[string]config.LinkApp{
				"comfyui": {
					Base:  filepath.Join(tmp, "ComfyUI"),
					Paths: map[string]string{"loras": "models/loras", "checkpoints": "models/checkpoints"},
				},
			},
			Mapping: []config.LinkRule{
				{Match: "sd.lora", Targets: []config.LinkTarget{{App: "comfyui", PathKey: "loras"}}},
			},
		},
	}
}

func writeModel(t *testing.T, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLinkSymlinkLora(t *testing.T) {
	tmp := t.TempDir()
	cfg := comfyConfig(tmp, "symlink")
	src := writeModel(t, filepath.Join(tmp, "library"), "style.safetensors", "weights")

	paths, err := Link(cfg, src, "sd.lora", "")
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("expected 1 path, got %d", len(paths))
	}
	fi, err := os.Lstat(paths[0])
	if err != nil {
		t.Fatalf("lstat: %v", err)
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("expected symlink at %s", paths[0])
	}
	if want := filepath.Join(tmp, "ComfyUI", "models", "loras"); filepath.Dir(paths[0]) != want {
		t.Fatalf("parent = %s, want %s", filepath.Dir(paths[0]), want)
	}

	// Linking again is a no-op.
	again, err := Link(cfg, src, "sd.lora", "")
	if err != nil || len(again) != 1 {
		t.Fatalf("relink: %v %v", again, err)
	}
}

func TestLinkCopyRefusesDifferentFile(t *testing.T) {
	tmp := t.TempDir()
	cfg := comfyConfig(tmp, "copy")
	src := writeModel(t, filepath.Join(tmp, "library"), "style.safetensors", "weights")
	writeModel(t, filepath.Join(tmp, "ComfyUI", "models", "loras"), "style.safetensors", "other")

	if _, err := Link(cfg, src, "sd.lora", ""); err == nil {
		t.Fatal("expected conflict error")
	}

	cfg.Links.AllowOverwrite = true
	paths, err := Link(cfg, src, "sd.lora", "")
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	b, _ := os.ReadFile(paths[0])
	if string(b) != "weights" {
		t.Fatalf("copy content = %q", b)
	}
}

func TestLinkUnknownType(t *testing.T) {
	tmp := t.TempDir()
	cfg := comfyConfig(tmp, "")
	src := writeModel(t, tmp, "vae.safetensors", "x")
	if _, err := Link(cfg, src, "sd.vae", ""); !errors.Is(err, ErrNoTargets) {
		t.Fatalf("expected ErrNoTargets, got %v", err)
	}
}

func TestLinkModelsCounts(t *testing.T) {
	tmp := t.TempDir()
	cfg := comfyConfig(tmp, "hardlink")
	lib := filepath.Join(tmp, "library")
	models := []state.Model{
		{Name: "a", Path: writeModel(t, lib, "a.safetensors", "a"), Type: "sd.lora"},
		{Name: "b", Path: writeModel(t, lib, "b.safetensors", "b"), Type: "sd.lora"},
		{Name: "c", Path: writeModel(t, lib, "c.ckpt", "c"), Type: "sd.vae"},
		{Name: "gone", Path: filepath.Join(lib, "gone.safetensors"), Type: "sd.lora"},
	}
	res := LinkModels(cfg, models)
	if res.Linked != 2 || res.Untyped != 1 || len(res.Errors) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}
