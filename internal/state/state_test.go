package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jxwalker/modshelf/internal/config"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenCreatesDataRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data")
	db, err := Open(&config.Config{General: config.General{DataRoot: root}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if db.Path != filepath.Join(root, "state.db") {
		t.Fatalf("path = %s", db.Path)
	}
	if err := db.CheckIntegrity(); err != nil {
		t.Fatalf("integrity: %v", err)
	}
}

func TestOpenRequiresDataRoot(t *testing.T) {
	if _, err := Open(&config.Config{}); err == nil {
		t.Fatal("expected error for empty data_root")
	}
}

func TestUpsertAndGetModel(t *testing.T) {
	db := testDB(t)
	m := &Model{
		Path:       "/lib/loras/ink.safetensors",
		Name:       "ink",
		Type:       "sd.lora",
		BaseModel:  "sdxl",
		Size:       144 << 20,
		ModTime:    time.Unix(1700000000, 0),
		PreviewURL: "/lib/loras/ink.preview.mp4",
		Tags:       []string{"style", "ink"},
	}
	if err := db.UpsertModel(m); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := db.GetModel(m.Path)
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if got.Name != "ink" || got.Type != "sd.lora" || got.BaseModel != "sdxl" || got.Size != m.Size {
		t.Fatalf("unexpected model %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[1] != "ink" {
		t.Fatalf("tags = %v", got.Tags)
	}
	if !got.ModTime.Equal(m.ModTime) {
		t.Fatalf("mod time = %v", got.ModTime)
	}

	missing, err := db.GetModel("/nope")
	if err != nil || missing != nil {
		t.Fatalf("missing model: %v %v", missing, err)
	}
}

func TestUpsertValidates(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertModel(&Model{Name: "x"}); err == nil {
		t.Fatal("expected error without path")
	}
	if err := db.UpsertModel(&Model{Path: "/x"}); err == nil {
		t.Fatal("expected error without name")
	}
}

func TestFavoriteSurvivesRescan(t *testing.T) {
	db := testDB(t)
	m := &Model{Path: "/lib/a.safetensors", Name: "a", Type: "sd.lora"}
	if err := db.UpsertModel(m); err != nil {
		t.Fatal(err)
	}
	if err := db.SetFavorite(m.Path, true); err != nil {
		t.Fatal(err)
	}
	m.Size = 42
	if err := db.UpsertModel(m); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetModel(m.Path)
	if !got.Favorite || got.Size != 42 {
		t.Fatalf("favorite lost or size not updated: %+v", got)
	}
	if err := db.SetFavorite("/missing", true); err == nil {
		t.Fatal("expected error for unknown path")
	}
}

func TestListModelsFilterAndOrder(t *testing.T) {
	db := testDB(t)
	for _, m := range []Model{
		{Path: "/lib/b.safetensors", Name: "beta", Type: "sd.lora", Size: 10},
		{Path: "/lib/a.safetensors", Name: "Alpha", Type: "sd.checkpoint", Size: 30},
		{Path: "/lib/c.safetensors", Name: "gamma", Type: "sd.lora", Size: 20, Tags: []string{"anime"}},
	} {
		m := m
		if err := db.UpsertModel(&m); err != nil {
			t.Fatal(err)
		}
	}
	_ = db.SetFavorite("/lib/c.safetensors", true)

	tests := []struct {
		name   string
		filter ModelFilter
		want   []string
	}{
		{"by name", ModelFilter{}, []string{"Alpha", "beta", "gamma"}},
		{"by size", ModelFilter{OrderBy: "size"}, []string{"Alpha", "gamma", "beta"}},
		{"type", ModelFilter{Type: "sd.lora"}, []string{"beta", "gamma"}},
		{"favorites", ModelFilter{Favorite: true}, []string{"gamma"}},
		{"tag", ModelFilter{Tag: "anime"}, []string{"gamma"}},
		{"limit", ModelFilter{Limit: 1}, []string{"Alpha"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.ListModels(tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d models, want %d", len(got), len(tt.want))
			}
			for i, m := range got {
				if m.Name != tt.want[i] {
					t.Fatalf("[%d] = %s, want %s", i, m.Name, tt.want[i])
				}
			}
		})
	}
}

func TestPruneModels(t *testing.T) {
	db := testDB(t)
	for _, p := range []string{"/lib/a.safetensors", "/lib/sub/b.safetensors", "/other/c.safetensors", "/library2/d.safetensors"} {
		if err := db.UpsertModel(&Model{Path: p, Name: filepath.Base(p)}); err != nil {
			t.Fatal(err)
		}
	}
	n, err := db.PruneModels([]string{"/lib/"}, map[string]bool{"/lib/a.safetensors": true})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	all, _ := db.ListModels(ModelFilter{})
	if len(all) != 3 {
		t.Fatalf("remaining %d, want 3", len(all))
	}
}

func TestUIMirrorRoundTrip(t *testing.T) {
	db := testDB(t)
	m := UIMirror{DB: db}
	if err := m.Save("library.sort", "size"); err != nil {
		t.Fatal(err)
	}
	if err := m.Save("library.cursor", 3); err != nil {
		t.Fatal(err)
	}
	if err := m.Save("library.sort", "type"); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete("library.cursor"); err != nil {
		t.Fatal(err)
	}
	all, err := m.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all["library.sort"] != "type" {
		t.Fatalf("loaded %v", all)
	}
}

func TestGetStats(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertModel(&Model{Path: "/a", Name: "a", Type: "sd.lora", PreviewURL: "/a.png"})
	_ = db.UpsertModel(&Model{Path: "/b", Name: "b", Type: "sd.lora"})
	_ = db.UpsertModel(&Model{Path: "/c", Name: "c", Type: "sd.vae"})
	_ = db.SetFavorite("/b", true)
	_ = db.SaveUIState("library.sort", "name")

	st, err := db.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Models != 3 || st.Favorites != 1 || st.WithPreview != 1 || st.UIStateKeys != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if st.ByType["sd.lora"] != 2 || st.ByType["sd.vae"] != 1 {
		t.Fatalf("by type = %v", st.ByType)
	}
	if err := db.Vacuum(); err != nil {
		t.Fatalf("vacuum: %v", err)
	}
}
