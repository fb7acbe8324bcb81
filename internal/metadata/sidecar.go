// Package metadata looks up model details by file hash and keeps them in
// .civitai.info sidecars next to the model files.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jxwalker/modshelf/internal/state"
)

// SidecarSuffix is appended to the model path minus its extension.
const SidecarSuffix = ".civitai.info"

// Info is a model version record as served by the CivitAI by-hash API and
// stored in sidecars. Unknown fields are dropped.
type Info struct {
	ID           int64    `json:"id"`
	ModelID      int64    `json:"modelId"`
	Name         string   `json:"name"`
	BaseModel    string   `json:"baseModel"`
	TrainedWords []string `json:"trainedWords"`
	DownloadURL  string   `json:"downloadUrl,omitempty"`
	Model        ModelRef `json:"model"`
	Images       []Image  `json:"images"`
	SHA256       string   `json:"sha256,omitempty"`
}

type ModelRef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Image struct {
	URL    string `json:"url"`
	Type   string `json:"type,omitempty"` // image | video
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// PreviewURL picks the first video, falling back to the first image.
func (i *Info) PreviewURL() string {
	for _, img := range i.Images {
		if img.Type == "video" && img.URL != "" {
			return img.URL
		}
	}
	for _, img := range i.Images {
		if img.URL != "" {
			return img.URL
		}
	}
	return ""
}

// Homepage is the model page, when the record carries a model id.
func (i *Info) Homepage() string {
	if i.ModelID == 0 {
		return ""
	}
	if i.ID != 0 {
		return fmt.Sprintf("https://civitai.com/models/%d?modelVersionId=%d", i.ModelID, i.ID)
	}
	return fmt.Sprintf("https://civitai.com/models/%d", i.ModelID)
}

// ReadSidecar loads the sidecar for base (model path minus extension). A
// missing sidecar is (nil, nil).
func ReadSidecar(base string) (*Info, error) {
	b, err := os.ReadFile(base + SidecarSuffix)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(base+SidecarSuffix), err)
	}
	return &info, nil
}

// WriteSidecar stores info next to the model, replacing any existing file
// atomically.
func WriteSidecar(base string, info *Info) error {
	b, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(base), ".civitai.tmp.*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), base+SidecarSuffix)
}

// Apply merges info into m. The classifier's guesses lose to the record's
// type; fields the user or scanner already filled are kept. It reports
// whether m changed.
func Apply(m *state.Model, info *Info) bool {
	if info == nil {
		return false
	}
	changed := false
	if t := mapType(info.Model.Type); t != "" && t != m.Type {
		m.Type, changed = t, true
	}
	if m.BaseModel == "" {
		if b := NormalizeBase(info.BaseModel); b != "" {
			m.BaseModel, changed = b, true
		}
	}
	if m.PreviewURL == "" {
		if p := info.PreviewURL(); p != "" {
			m.PreviewURL, changed = p, true
		}
	}
	if tags := mergeTags(m.Tags, info.TrainedWords); len(tags) != len(m.Tags) {
		m.Tags, changed = tags, true
	}
	return changed
}

func mergeTags(have, add []string) []string {
	seen := make(map[string]bool, len(have)+len(add))
	out := make([]string, 0, len(have)+len(add))
	for _, list := range [][]string{have, add} {
		for _, t := range list {
			t = strings.TrimSpace(t)
			if t == "" || seen[strings.ToLower(t)] {
				continue
			}
			seen[strings.ToLower(t)] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// NormalizeBase maps a base model label ("SDXL 1.0", "SD 1.5", "Pony") to
// the short names the classifier uses.
func NormalizeBase(s string) string {
	l := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(l, "sdxl"):
		return "sdxl"
	case strings.HasPrefix(l, "sd 1"):
		return "sd15"
	case strings.HasPrefix(l, "sd 2"):
		return "sd2"
	case strings.HasPrefix(l, "pony"):
		return "pony"
	case strings.HasPrefix(l, "flux"):
		return "flux"
	}
	return ""
}

// mapType maps CivitAI model types to artifact types.
func mapType(civitaiType string) string {
	switch strings.ToLower(civitaiType) {
	case "checkpoint":
		return "sd.checkpoint"
	case "lora", "locon", "lycoris", "dora":
		return "sd.lora"
	case "textualinversion", "textual inversion":
		return "sd.embedding"
	case "vae":
		return "sd.vae"
	case "controlnet":
		return "sd.controlnet"
	case "upscaler":
		return "sd.upscaler"
	case "hypernetwork":
		return "sd.hypernetwork"
	}
	return ""
}
