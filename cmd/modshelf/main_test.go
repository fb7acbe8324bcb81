package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ferrors "github.com/jxwalker/modshelf/internal/errors"
	"github.com/jxwalker/modshelf/internal/metadata"
	"github.com/jxwalker/modshelf/internal/state"
	"github.com/jxwalker/modshelf/internal/testutil"
	"github.com/jxwalker/modshelf/internal/util"
)

// captureStdout redirects command output for the duration of the test.
func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

type fixture struct {
	cfgPath string
	library string
	apps    string
	data    string
}

func newFixture(t *testing.T, extra ...string) fixture {
	t.Helper()
	tmp := t.TempDir()
	f := fixture{
		cfgPath: filepath.Join(tmp, "config.yml"),
		library: filepath.Join(tmp, "loras"),
		apps:    filepath.Join(tmp, "ComfyUI"),
		data:    filepath.Join(tmp, "data"),
	}
	if err := os.MkdirAll(f.library, 0o755); err != nil {
		t.Fatal(err)
	}
	lines := []string{
		"version: 1",
		"general:",
		"  data_root: \"" + f.data + "\"",
		"library:",
		"  roots: [\"" + f.library + "\"]",
		"links:",
		"  mode: symlink",
		"  apps:",
		"    comfyui:",
		"      base: \"" + f.apps + "\"",
		"      paths:",
		"        loras: models/loras",
		"  mapping:",
		"    - match: sd.lora",
		"      targets:",
		"        - app: comfyui",
		"          path_key: loras",
	}
	lines = append(lines, extra...)
	if err := os.WriteFile(f.cfgPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f fixture) addModel(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(f.library, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func (f fixture) run(t *testing.T, args ...string) error {
	t.Helper()
	return run(context.Background(), append(args[:1:1], append([]string{"--config", f.cfgPath}, args[1:]...)...))
}

func TestRunUnknownCommand(t *testing.T) {
	captureStdout(t)
	err := run(context.Background(), []string{"frobnicate"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestRunVersionAndHelp(t *testing.T) {
	out := captureStdout(t)
	if err := run(context.Background(), []string{"version"}); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Fatalf("version output %q", out.String())
	}
	out.Reset()
	if err := run(context.Background(), []string{"help"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "config wizard") {
		t.Fatalf("usage missing commands:\n%s", out.String())
	}
}

func TestConfigMissingIsFriendly(t *testing.T) {
	captureStdout(t)
	err := run(context.Background(), []string{"list", "--config", filepath.Join(t.TempDir(), "nope.yml")})
	var fe *ferrors.UserFriendlyError
	if !errors.As(err, &fe) || !strings.Contains(fe.Message, "not found") {
		t.Fatalf("expected friendly config error, got %v", err)
	}
}

func TestConfigValidateAndPrint(t *testing.T) {
	f := newFixture(t)
	captureStdout(t)
	if err := run(context.Background(), []string{"config", "validate", "--config", f.cfgPath}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	out := captureStdout(t)
	if err := run(context.Background(), []string{"config", "print", "--config", f.cfgPath}); err != nil {
		t.Fatalf("print: %v", err)
	}
	if !strings.Contains(out.String(), f.library) {
		t.Fatalf("printed config missing library root:\n%s", out.String())
	}
}

func TestConfigValidateReportsMissingRoot(t *testing.T) {
	f := newFixture(t)
	if err := os.RemoveAll(f.library); err != nil {
		t.Fatal(err)
	}
	captureStdout(t)
	err := run(context.Background(), []string{"config", "validate", "--config", f.cfgPath})
	if err == nil || !strings.Contains(err.Error(), "library.roots[0]") {
		t.Fatalf("expected root problem, got %v", err)
	}
}

func TestScanListStatus(t *testing.T) {
	f := newFixture(t)
	f.addModel(t, "inkwash-lora.safetensors", "weights")
	f.addModel(t, "notes.txt", "not a model")

	out := captureStdout(t)
	if err := f.run(t, "scan"); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(out.String(), "1 new") {
		t.Fatalf("scan output: %q", out.String())
	}

	out.Reset()
	if err := f.run(t, "list", "--json"); err != nil {
		t.Fatalf("list: %v", err)
	}
	var models []state.Model
	if err := json.Unmarshal(out.Bytes(), &models); err != nil {
		t.Fatalf("list json: %v\n%s", err, out.String())
	}
	if len(models) != 1 || models[0].Name != "inkwash-lora" {
		t.Fatalf("unexpected models: %+v", models)
	}

	out.Reset()
	if err := f.run(t, "list"); err != nil {
		t.Fatalf("list table: %v", err)
	}
	if !strings.Contains(out.String(), "NAME") || !strings.Contains(out.String(), "inkwash-lora") {
		t.Fatalf("table output:\n%s", out.String())
	}

	out.Reset()
	if err := f.run(t, "status", "--json"); err != nil {
		t.Fatalf("status: %v", err)
	}
	var st map[string]any
	if err := json.Unmarshal(out.Bytes(), &st); err != nil {
		t.Fatalf("status json: %v", err)
	}
	if st["models"] != float64(1) || st["integrity"] != "ok" {
		t.Fatalf("unexpected status: %v", st)
	}
}

func TestLinkDryRunThenLink(t *testing.T) {
	f := newFixture(t)
	src := f.addModel(t, "moss.safetensors", "weights")

	out := captureStdout(t)
	if err := f.run(t, "link", "--path", src, "--type", "sd.lora", "--dry-run"); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	dest := filepath.Join(f.apps, "models", "loras")
	if !strings.Contains(out.String(), dest) {
		t.Fatalf("dry run output:\n%s", out.String())
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("dry run must not create directories")
	}

	if err := f.run(t, "link", "--path", src, "--type", "sd.lora"); err != nil {
		t.Fatalf("link: %v", err)
	}
	fi, err := os.Lstat(filepath.Join(dest, "moss.safetensors"))
	if err != nil || fi.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("expected symlink, got %v %v", fi, err)
	}
}

func TestEnrichWritesSidecar(t *testing.T) {
	srv := testutil.NewMockHTTPServer(t)
	f := newFixture(t,
		"metadata:",
		"  civitai:",
		"    enabled: true",
		"    base_url: \""+srv.URL+"\"",
	)
	p := f.addModel(t, "inkwash.safetensors", "weights")
	sha, err := util.HashFileSHA256(p)
	if err != nil {
		t.Fatal(err)
	}
	srv.AddResponse("/api/v1/model-versions/by-hash/"+sha, testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"id": 2, "modelId": 1, "name": "v1", "baseModel": "SDXL 1.0", "model": {"name": "Ink Wash", "type": "LORA"}}`),
	})

	out := captureStdout(t)
	if err := f.run(t, "scan"); err != nil {
		t.Fatalf("scan: %v", err)
	}
	out.Reset()
	if err := f.run(t, "enrich"); err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if !strings.Contains(out.String(), "1 enriched") {
		t.Fatalf("enrich output: %q", out.String())
	}
	info, err := metadata.ReadSidecar(util.ModelBase(p))
	if err != nil || info == nil || info.Model.Name != "Ink Wash" {
		t.Fatalf("sidecar: %+v %v", info, err)
	}
}

func TestEnrichDisabled(t *testing.T) {
	f := newFixture(t)
	captureStdout(t)
	if err := f.run(t, "enrich"); err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Fatalf("expected disabled error, got %v", err)
	}
}

func TestDoctorChecks(t *testing.T) {
	f := newFixture(t)
	out := captureStdout(t)
	if err := run(context.Background(), []string{"doctor", "--config", f.cfgPath}); err != nil {
		t.Fatalf("doctor: %v\n%s", err, out.String())
	}
	for _, want := range []string{"✓ Config file exists", "Database OK", "Link targets"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("doctor output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	err := run(context.Background(), []string{"doctor", "--config", filepath.Join(t.TempDir(), "missing.yml")})
	if err == nil || !strings.Contains(out.String(), "✗ Config file exists") {
		t.Fatalf("expected failed checks, got %v\n%s", err, out.String())
	}
}

func TestCompletionScripts(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish"} {
		out := captureStdout(t)
		if err := run(context.Background(), []string{"completion", shell}); err != nil {
			t.Fatalf("%s: %v", shell, err)
		}
		if !strings.Contains(out.String(), "enrich") {
			t.Fatalf("%s completion missing commands", shell)
		}
	}
	captureStdout(t)
	if err := run(context.Background(), []string{"completion", "tcsh"}); err == nil {
		t.Fatal("expected error for unknown shell")
	}
}
