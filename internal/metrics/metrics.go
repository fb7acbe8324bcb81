package metrics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jxwalker/modshelf/internal/config"
)

// Manager accumulates counters and writes them in the Prometheus textfile
// format. A nil Manager is valid and does nothing.
type Manager struct {
	path string
	mu   sync.Mutex
	// counters
	dispatched      map[string]int64 // by event type
	handlerFaults   int64
	previewsLoaded  int64
	previewsDropped int64
	hoverLoads      int64
	peakActive      int64
	scanFiles       int64
	lastScanSec     float64
}

func New(cfg *config.Config) *Manager {
	if cfg == nil || !cfg.Metrics.PrometheusTextfile.Enabled || cfg.Metrics.PrometheusTextfile.Path == "" {
		return nil
	}
	p := cfg.Metrics.PrometheusTextfile.Path
	_ = os.MkdirAll(filepath.Dir(p), 0o755)
	return &Manager{path: p, dispatched: map[string]int64{}}
}

func (m *Manager) IncDispatched(eventType string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.dispatched[eventType]++
	m.mu.Unlock()
}

func (m *Manager) IncHandlerFaults() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.handlerFaults++
	m.mu.Unlock()
}

// ObserveLoader records the loader's cumulative counters.
func (m *Manager) ObserveLoader(loaded, discarded, hover uint64, peak int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.previewsLoaded = int64(loaded)
	m.previewsDropped = int64(discarded)
	m.hoverLoads = int64(hover)
	if int64(peak) > m.peakActive {
		m.peakActive = int64(peak)
	}
	m.mu.Unlock()
}

func (m *Manager) ObserveScan(files int, d time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.scanFiles += int64(files)
	m.lastScanSec = d.Seconds()
	m.mu.Unlock()
}

// Write replaces the textfile atomically.
func (m *Manager) Write() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := os.CreateTemp(filepath.Dir(m.path), ".metrics.tmp.*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	m.writeTo(f)
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), m.path)
}

func (m *Manager) writeTo(w io.Writer) {
	metric := func(name, typ, help string) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, typ)
	}

	metric("modshelf_events_dispatched_total", "counter", "UI events dispatched, by type.")
	types := make([]string, 0, len(m.dispatched))
	for t := range m.dispatched {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(w, "modshelf_events_dispatched_total{type=%q} %d\n", t, m.dispatched[t])
	}

	metric("modshelf_handler_faults_total", "counter", "Event handlers that panicked.")
	fmt.Fprintf(w, "modshelf_handler_faults_total %d\n", m.handlerFaults)

	metric("modshelf_previews_loaded_total", "counter", "Preview sources attached.")
	fmt.Fprintf(w, "modshelf_previews_loaded_total %d\n", m.previewsLoaded)

	metric("modshelf_previews_discarded_total", "counter", "Queued previews dropped because their card went away.")
	fmt.Fprintf(w, "modshelf_previews_discarded_total %d\n", m.previewsDropped)

	metric("modshelf_previews_hover_loads_total", "counter", "Previews loaded by hover, bypassing the queue.")
	fmt.Fprintf(w, "modshelf_previews_hover_loads_total %d\n", m.hoverLoads)

	metric("modshelf_previews_peak_active", "gauge", "Highest number of preview loads in flight.")
	fmt.Fprintf(w, "modshelf_previews_peak_active %d\n", m.peakActive)

	metric("modshelf_scan_files_total", "counter", "Model files seen by library scans.")
	fmt.Fprintf(w, "modshelf_scan_files_total %d\n", m.scanFiles)

	metric("modshelf_last_scan_seconds", "gauge", "Duration of the last library scan in seconds.")
	fmt.Fprintf(w, "modshelf_last_scan_seconds %.6f\n", m.lastScanSec)

	metric("modshelf_metrics_timestamp_seconds", "gauge", "UNIX timestamp when this file was written.")
	fmt.Fprintf(w, "modshelf_metrics_timestamp_seconds %d\n", time.Now().Unix())
}
