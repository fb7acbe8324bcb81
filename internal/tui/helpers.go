package tui

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/jxwalker/modshelf/internal/linker"
	"github.com/jxwalker/modshelf/internal/metadata"
	"github.com/jxwalker/modshelf/internal/scanner"
)

func truncateMiddle(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max < 7 {
		return string(r[:max])
	}
	left := (max - 3) / 2
	right := max - 3 - left
	return string(r[:left]) + "..." + string(r[len(r)-right:])
}

func padRight(s string, w int) string {
	r := []rune(s)
	if len(r) >= w {
		return string(r[:w])
	}
	return s + fmt.Sprintf("%*s", w-len(r), "")
}

func openInFileManager(p string, reveal bool) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		if reveal {
			cmd = exec.Command("open", "-R", p)
		} else {
			cmd = exec.Command("open", p)
		}
	case "windows":
		if reveal {
			cmd = exec.Command("explorer.exe", "/select,", p)
		} else {
			cmd = exec.Command("explorer.exe", filepath.Dir(p))
		}
	case "linux", "freebsd", "openbsd":
		dir := p
		if reveal {
			dir = filepath.Dir(p)
		}
		cmd = exec.Command("xdg-open", dir)
	default:
		return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
	return cmd.Start()
}

func scanSummary(r *scanner.Result) string {
	s := fmt.Sprintf("scan: %d files, %d new, %d updated", r.FilesScanned, r.ModelsAdded, r.ModelsUpdated)
	if r.Pruned > 0 {
		s += fmt.Sprintf(", %d pruned", r.Pruned)
	}
	if len(r.Errors) > 0 {
		s += fmt.Sprintf(", %d errors", len(r.Errors))
	}
	return s
}

func enrichSummary(r metadata.EnrichResult) string {
	s := fmt.Sprintf("lookup: %d found", r.Enriched)
	if r.NotFound > 0 {
		s += fmt.Sprintf(", %d unknown", r.NotFound)
	}
	if len(r.Errors) > 0 {
		s += fmt.Sprintf(", %d errors", len(r.Errors))
	}
	return s
}

func linkSummary(r linker.Result) string {
	s := fmt.Sprintf("linked %d", r.Linked)
	if r.Untyped > 0 {
		s += fmt.Sprintf(", %d without targets", r.Untyped)
	}
	if len(r.Errors) > 0 {
		s += fmt.Sprintf(", %d failed", len(r.Errors))
	}
	return s
}
