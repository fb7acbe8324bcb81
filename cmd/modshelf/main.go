package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/jxwalker/modshelf/internal/config"
	ferrors "github.com/jxwalker/modshelf/internal/errors"
	"github.com/jxwalker/modshelf/internal/logging"
	"github.com/jxwalker/modshelf/internal/preview"
	"github.com/jxwalker/modshelf/internal/scanner"
	"github.com/jxwalker/modshelf/internal/state"
)

var version = "dev"

// stdout is swapped by tests.
var stdout io.Writer = os.Stdout

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	preview.Version = version
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return handleTUI(ctx, nil)
	}
	cmd := args[0]
	switch cmd {
	case "tui":
		return handleTUI(ctx, args[1:])
	case "scan":
		return handleScan(ctx, args[1:])
	case "list":
		return handleList(ctx, args[1:])
	case "status":
		return handleStatus(ctx, args[1:])
	case "enrich":
		return handleEnrich(ctx, args[1:])
	case "link":
		return handleLink(ctx, args[1:])
	case "doctor":
		return handleDoctor(ctx, args[1:])
	case "config":
		return handleConfig(ctx, args[1:])
	case "completion":
		return handleCompletion(ctx, args[1:])
	case "version":
		fmt.Fprintln(stdout, version)
		return nil
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func usage() {
	fmt.Fprintln(stdout, strings.TrimSpace(`modshelf - browse and organise local model files

Usage:
  modshelf [command] [flags]

Commands:
  tui               Open the library browser (default)
  scan              Index model files under library.roots
  list              List indexed models (table or JSON)
  status            Show library and preview cache statistics
  enrich            Look models up on CivitAI by SHA256 and write .civitai.info sidecars
  link              Link models into configured app folders (links.mapping)
  doctor            Diagnose configuration and environment problems
  config validate   Validate a YAML config file
  config print      Print the loaded config as JSON
  config wizard     Interactive TUI to generate a YAML config
  completion        Generate shell completion scripts (bash|zsh|fish)
  version           Print version
  help              Show this help

Flags:
  --config PATH     Path to YAML config file (or MODSHELF_CONFIG env var; default: ~/.config/modshelf/config.yml)
  --log-level L     Log level: debug|info|warn|error (per command)
  --json            JSON output (per command)
`))
}

// commonFlags registers the flags every library command accepts.
type commonFlags struct {
	cfgPath  *string
	logLevel *string
	jsonOut  *bool
}

func addCommon(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		cfgPath:  fs.String("config", "", "Path to YAML config file"),
		logLevel: fs.String("log-level", "info", "log level"),
		jsonOut:  fs.Bool("json", false, "json output"),
	}
}

// defaultConfigPath resolves --config, then MODSHELF_CONFIG, then
// ~/.config/modshelf/config.yml.
func defaultConfigPath(flagVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if env := os.Getenv("MODSHELF_CONFIG"); env != "" {
		return env
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return filepath.Join(h, ".config", "modshelf", "config.yml")
	}
	return ""
}

func loadConfig(flagVal string) (*config.Config, string, error) {
	p := defaultConfigPath(flagVal)
	if p == "" {
		return nil, "", errors.New("--config is required or set MODSHELF_CONFIG")
	}
	c, err := config.Load(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, p, ferrors.ConfigNotFound(p, err)
		}
		return nil, p, fmt.Errorf("load %s: %w", p, err)
	}
	return c, p, nil
}

// openLibrary loads config, logger and state DB for a subcommand.
func openLibrary(cf commonFlags) (*config.Config, *logging.Logger, *state.DB, error) {
	c, _, err := loadConfig(*cf.cfgPath)
	if err != nil {
		return nil, nil, nil, err
	}
	// Logs stay on stderr so --json output on stdout remains parseable.
	log := logging.NewWithWriter(*cf.logLevel, *cf.jsonOut, os.Stderr)
	st, err := state.Open(c)
	if err != nil {
		return nil, nil, nil, ferrors.DatabaseError(err)
	}
	return c, log, st, nil
}

func handleScan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	cf := addCommon(fs)
	prune := fs.Bool("prune", false, "remove models whose files are gone (overrides library.prune_missing)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, log, st, err := openLibrary(cf)
	if err != nil {
		return err
	}
	defer func() { _ = st.SQL.Close() }()
	if *prune {
		c.Library.PruneMissing = true
	}
	roots := c.Library.Roots
	if fs.NArg() > 0 {
		roots = fs.Args()
	}
	if len(roots) == 0 {
		return ferrors.NewFriendlyError("No library roots to scan", "Add directories under library.roots in your config, or pass them as arguments")
	}
	s := scanner.New(st, c, scanner.WithLogger(log))
	res, err := s.Scan(ctx, roots)
	if err != nil {
		return err
	}
	for _, e := range res.Errors {
		log.Warnf("scan: %v", e)
	}
	if *cf.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"files":     res.FilesScanned,
			"added":     res.ModelsAdded,
			"updated":   res.ModelsUpdated,
			"unchanged": res.ModelsUnchanged,
			"previews":  res.PreviewsFound,
			"pruned":    res.Pruned,
			"errors":    len(res.Errors),
		})
	}
	fmt.Fprintf(stdout, "Scanned %d files: %d new, %d updated, %d unchanged, %d previews", res.FilesScanned, res.ModelsAdded, res.ModelsUpdated, res.ModelsUnchanged, res.PreviewsFound)
	if res.Pruned > 0 {
		fmt.Fprintf(stdout, ", %d pruned", res.Pruned)
	}
	fmt.Fprintln(stdout)
	return nil
}

func handleList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	cf := addCommon(fs)
	typ := fs.String("type", "", "only models of this type (e.g. sd.lora)")
	favs := fs.Bool("favorites", false, "only favorites")
	tag := fs.String("tag", "", "only models with this tag")
	sortBy := fs.String("sort", "name", "sort by name|size|type|modified")
	limit := fs.Int("limit", 0, "maximum rows (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	_, _, st, err := openLibrary(cf)
	if err != nil {
		return err
	}
	defer func() { _ = st.SQL.Close() }()
	models, err := st.ListModels(state.ModelFilter{Type: *typ, Favorite: *favs, Tag: *tag, OrderBy: *sortBy, Limit: *limit})
	if err != nil {
		return err
	}
	if *cf.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if models == nil {
			models = []state.Model{}
		}
		return enc.Encode(models)
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tBASE\tSIZE\tPREVIEW\tFAV")
	for _, m := range models {
		fav := ""
		if m.Favorite {
			fav = "★"
		}
		pv := "-"
		if m.PreviewURL != "" {
			pv = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", m.Name, dash(m.Type), dash(m.BaseModel), humanize.IBytes(uint64(m.Size)), pv, fav)
	}
	return tw.Flush()
}

func handleStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	cf := addCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, log, st, err := openLibrary(cf)
	if err != nil {
		return err
	}
	defer func() { _ = st.SQL.Close() }()
	stats, err := st.GetStats()
	if err != nil {
		return ferrors.DatabaseError(err)
	}
	integrity := "ok"
	if err := st.CheckIntegrity(); err != nil {
		integrity = err.Error()
	}
	files, bytes, err := preview.NewFetcher(c, preview.WithLogger(log)).CacheSize()
	if err != nil {
		log.Debugf("preview cache: %v", err)
	}
	if *cf.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"models":        stats.Models,
			"favorites":     stats.Favorites,
			"with_preview":  stats.WithPreview,
			"by_type":       stats.ByType,
			"ui_state_keys": stats.UIStateKeys,
			"db_bytes":      stats.DatabaseSize,
			"integrity":     integrity,
			"cache_files":   files,
			"cache_bytes":   bytes,
		})
	}
	fmt.Fprintf(stdout, "Models:      %d (%d favorites, %d with previews)\n", stats.Models, stats.Favorites, stats.WithPreview)
	types := make([]string, 0, len(stats.ByType))
	for t := range stats.ByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(stdout, "  %-16s %d\n", dash(t), stats.ByType[t])
	}
	fmt.Fprintf(stdout, "Database:    %s (%s, integrity %s)\n", st.Path, humanize.IBytes(uint64(stats.DatabaseSize)), integrity)
	fmt.Fprintf(stdout, "Preview cache: %d files, %s\n", files, humanize.IBytes(uint64(bytes)))
	return nil
}

func handleConfig(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("config subcommand required: validate | print | wizard")
	}
	sub := args[0]
	switch sub {
	case "validate":
		return configOp(args[1:], func(c *config.Config, log *logging.Logger) error {
			if err := c.ValidateWithFriendlyErrors(); err != nil {
				return err
			}
			log.Infof("config: valid")
			return nil
		})
	case "print":
		return configOp(args[1:], func(c *config.Config, log *logging.Logger) error {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(c)
		})
	case "wizard":
		return handleConfigWizard(ctx, args[1:])
	default:
		return fmt.Errorf("unknown config subcommand: %s", sub)
	}
}

func configOp(args []string, fn func(*config.Config, *logging.Logger) error) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	cf := addCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, _, err := loadConfig(*cf.cfgPath)
	if err != nil {
		return err
	}
	return fn(c, logging.NewWithWriter(*cf.logLevel, *cf.jsonOut, os.Stderr))
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
