package util

import (
	"net/url"
	pathpkg "path"
	"path/filepath"
	"strings"
)

// URLPathBase extracts the last element of the URL path, ignoring query and fragment.
// If parsing fails or the path is empty, it falls back to "download".
func URLPathBase(u string) string {
	s := strings.TrimSpace(u)
	if s == "" {
		return "download"
	}
	if pu, err := url.Parse(s); err == nil && pu != nil {
		b := pathpkg.Base(pu.Path)
		if b != "" && b != "/" && b != "." {
			return b
		}
		return "download"
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	b := filepath.Base(s)
	if b == "" || b == "/" || b == "." {
		return "download"
	}
	return b
}

// ModelBase strips the extension from a model path; sidecars hang off it
// (foo.safetensors -> foo.preview.mp4, foo.civitai.info).
func ModelBase(p string) string {
	return strings.TrimSuffix(p, filepath.Ext(p))
}
