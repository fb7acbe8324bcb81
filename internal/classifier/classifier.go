package classifier

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jxwalker/modshelf/internal/config"
)

// Artifact types
// sd.checkpoint, sd.lora, sd.vae, sd.controlnet, sd.embedding, sd.upscaler,
// llm.gguf, generic

// Result is what the classifier learned about one file.
type Result struct {
	Type      string
	BaseModel string // sd15, sd2, sdxl, pony, flux, or ""
}

// Classifier applies config rules before the built-in heuristics. Rules are
// compiled once.
type Classifier struct {
	rules []rule
}

type rule struct {
	re  *regexp.Regexp
	typ string
}

// New compiles cfg's classifier rules. Invalid regexes are skipped; Validate
// rejects them earlier.
func New(cfg *config.Config) *Classifier {
	c := &Classifier{}
	if cfg == nil {
		return c
	}
	for _, r := range cfg.Classifier.Rules {
		re, err := regexp.Compile(r.Regex)
		if err != nil {
			continue
		}
		c.rules = append(c.rules, rule{re: re, typ: r.Type})
	}
	return c
}

// Detect attempts to determine the artifact type of a file.
// Custom rules from the config are consulted before built-ins.
func Detect(cfg *config.Config, filePath string) string {
	return New(cfg).Classify(filePath).Type
}

// Classify returns the type and base model of filePath.
func (c *Classifier) Classify(filePath string) Result {
	name := strings.ToLower(filepath.Base(filePath))
	hdr := readSafetensorsMeta(filePath)
	res := Result{BaseModel: baseModel(name, hdr)}

	for _, r := range c.rules {
		if r.re.MatchString(name) {
			res.Type = r.typ
			return res
		}
	}
	res.Type = detectType(filePath, name, hdr)
	return res
}

func detectType(filePath, name string, hdr map[string]string) string {
	ext := filepath.Ext(name)
	switch ext {
	case ".gguf":
		return "llm.gguf"
	case ".ckpt":
		return "sd.checkpoint"
	case ".safetensors":
		if hdr["ss_network_module"] != "" {
			return "sd.lora"
		}
		if strings.Contains(name, "lora") || strings.Contains(name, "lycoris") || strings.Contains(name, "locon") {
			return "sd.lora"
		}
		if strings.Contains(name, "vae") {
			return "sd.vae"
		}
		if strings.Contains(name, "controlnet") {
			return "sd.controlnet"
		}
		if strings.Contains(name, "embedding") || strings.Contains(name, "textual") {
			return "sd.embedding"
		}
		// Ambiguous: default to sd.checkpoint for SD ecosystem, can be overridden
		return "sd.checkpoint"
	case ".pt", ".pth":
		if strings.Contains(name, "embed") {
			return "sd.embedding"
		}
		if strings.Contains(name, "esrgan") || strings.Contains(name, "upscale") {
			return "sd.upscaler"
		}
		return "generic"
	default:
		if t := detectMagic(filePath); t != "" {
			return t
		}
		return "generic"
	}
}

var baseModelPatterns = []struct {
	re   *regexp.Regexp
	base string
}{
	{regexp.MustCompile(`flux`), "flux"},
	{regexp.MustCompile(`pony`), "pony"},
	{regexp.MustCompile(`sdxl|[^a-z]xl([^a-z]|$)`), "sdxl"},
	{regexp.MustCompile(`sd[-_]?2|v2[-_]1`), "sd2"},
	{regexp.MustCompile(`sd[-_]?1[-_.]?5|v1[-_]5`), "sd15"},
}

func baseModel(name string, hdr map[string]string) string {
	if v := strings.ToLower(hdr["ss_base_model_version"]); v != "" {
		switch {
		case strings.HasPrefix(v, "sdxl"):
			return "sdxl"
		case strings.HasPrefix(v, "sd_v2"):
			return "sd2"
		case strings.HasPrefix(v, "sd_v1"):
			return "sd15"
		case strings.Contains(v, "flux"):
			return "flux"
		}
	}
	for _, p := range baseModelPatterns {
		if p.re.MatchString(name) {
			return p.base
		}
	}
	return ""
}

// readSafetensorsMeta returns the string entries of the __metadata__ block of
// a .safetensors header, or nil.
func readSafetensorsMeta(p string) map[string]string {
	if !strings.EqualFold(filepath.Ext(p), ".safetensors") {
		return nil
	}
	f, err := os.Open(p)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()
	var lenBuf [8]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return nil
	}
	n := binary.LittleEndian.Uint64(lenBuf[:])
	if n == 0 || n > 16<<20 {
		return nil
	}
	header := make([]byte, n)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil
	}
	var doc struct {
		Meta map[string]string `json:"__metadata__"`
	}
	if err := json.Unmarshal(header, &doc); err != nil {
		return nil
	}
	return doc.Meta
}

func detectMagic(p string) string {
	f, err := os.Open(p)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()
	buf := make([]byte, 8)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return ""
	}
	if n >= 4 && strings.EqualFold(string(buf[:4]), "GGUF") {
		return "llm.gguf"
	}
	if n >= 2 && buf[0] == 0x80 && buf[1] == 0x04 {
		return "sd.checkpoint"
	}
	if n >= 8 {
		headerLen := binary.LittleEndian.Uint64(buf[:8])
		if headerLen > 0 && headerLen < 1<<20 {
			header := make([]byte, headerLen)
			if _, err := io.ReadFull(f, header); err == nil && json.Valid(header) {
				return "sd.checkpoint"
			}
		}
	}
	return ""
}
