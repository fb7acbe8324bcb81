package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jxwalker/modshelf/internal/config"
	"github.com/jxwalker/modshelf/internal/linker"
	"github.com/jxwalker/modshelf/internal/state"
	"github.com/jxwalker/modshelf/internal/system"
)

// Check is a single diagnostic.
type Check struct {
	Name     string
	Critical bool // failure means modshelf won't work
	Run      func(ctx context.Context) CheckResult
}

// CheckResult is the outcome of a Check.
type CheckResult struct {
	Passed     bool
	Warning    bool // passed, with caveats
	Message    string
	Suggestion string
}

func handleDoctor(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to YAML config file")
	verbose := fs.Bool("verbose", false, "Show timings for each check")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p := defaultConfigPath(*cfgPath)
	var cfg *config.Config
	var cfgErr error
	if p != "" {
		cfg, cfgErr = config.Load(p)
	}
	fmt.Fprintln(stdout, "Running modshelf diagnostics...")
	fmt.Fprintln(stdout)
	failed := runChecks(ctx, stdout, doctorChecks(p, cfg, cfgErr), *verbose)
	if failed > 0 {
		return fmt.Errorf("%d checks failed", failed)
	}
	return nil
}

func doctorChecks(cfgPath string, cfg *config.Config, cfgErr error) []Check {
	needConfig := func(fn func(ctx context.Context) CheckResult) func(ctx context.Context) CheckResult {
		return func(ctx context.Context) CheckResult {
			if cfg == nil {
				return CheckResult{Message: "Config not loaded"}
			}
			return fn(ctx)
		}
	}
	return []Check{
		{
			Name:     "Config file exists",
			Critical: true,
			Run: func(ctx context.Context) CheckResult {
				if cfgPath == "" {
					return CheckResult{Message: "No config path specified", Suggestion: "Set MODSHELF_CONFIG or use --config\nRun 'modshelf config wizard --out ~/.config/modshelf/config.yml'"}
				}
				if _, err := os.Stat(cfgPath); err != nil {
					return CheckResult{Message: fmt.Sprintf("Config file not found: %s", cfgPath), Suggestion: "Run 'modshelf' once to create one interactively"}
				}
				return CheckResult{Passed: true, Message: fmt.Sprintf("Found: %s", cfgPath)}
			},
		},
		{
			Name:     "Config is valid",
			Critical: true,
			Run: func(ctx context.Context) CheckResult {
				if cfgErr != nil {
					return CheckResult{Message: "Config parsing failed", Suggestion: fmt.Sprintf("%v\n\nRun 'modshelf config validate' for details", cfgErr)}
				}
				if cfg == nil {
					return CheckResult{Message: "Config not loaded"}
				}
				return CheckResult{Passed: true, Message: "Valid"}
			},
		},
		{
			Name:     "Data directory is writable",
			Critical: true,
			Run: needConfig(func(ctx context.Context) CheckResult {
				return writableDir(cfg.General.DataRoot)
			}),
		},
		{
			Name: "Library roots exist",
			Run: needConfig(func(ctx context.Context) CheckResult {
				var problems []string
				for _, e := range cfg.ValidateDetailed() {
					if strings.HasPrefix(e.Field, "library.roots") {
						problems = append(problems, fmt.Sprintf("%s: %s", e.Field, e.Message))
					}
				}
				if len(problems) > 0 {
					return CheckResult{Passed: true, Warning: true, Message: strings.Join(problems, "\n  "), Suggestion: "Fix library.roots in your config"}
				}
				return CheckResult{Passed: true, Message: fmt.Sprintf("%d roots", len(cfg.Library.Roots))}
			}),
		},
		{
			Name: "Disk space for preview cache",
			Run: needConfig(func(ctx context.Context) CheckResult {
				dir := cfg.PreviewCacheDir()
				u, err := system.DiskUsage(dir)
				if err != nil {
					return CheckResult{Passed: true, Warning: true, Message: fmt.Sprintf("Could not check disk space: %v", err)}
				}
				msg := fmt.Sprintf("%s free of %s (%.0f%% used)", humanize.IBytes(u.Available), humanize.IBytes(u.Total), u.UsedPercent())
				if low, _ := system.IsLowDiskSpace(dir, 95); low {
					return CheckResult{Passed: true, Warning: true, Message: msg, Suggestion: "Previews are cached under " + dir + "; free space or move general.cache_root"}
				}
				return CheckResult{Passed: true, Message: msg}
			}),
		},
		{
			Name:     "Database accessible",
			Critical: true,
			Run: needConfig(func(ctx context.Context) CheckResult {
				db, err := state.Open(cfg)
				if err != nil {
					return CheckResult{Message: fmt.Sprintf("Cannot open database: %v", err), Suggestion: "Check that data_root is writable"}
				}
				defer func() { _ = db.Close() }()
				if err := db.CheckIntegrity(); err != nil {
					return CheckResult{Message: err.Error(), Suggestion: "Move " + db.Path + " aside and run 'modshelf scan' to rebuild it"}
				}
				return CheckResult{Passed: true, Message: fmt.Sprintf("Database OK: %s", db.Path)}
			}),
		},
		{
			Name: "CivitAI lookups",
			Run: needConfig(func(ctx context.Context) CheckResult {
				if !cfg.Metadata.CivitAI.Enabled {
					return CheckResult{Passed: true, Message: "Disabled (metadata.civitai.enabled)"}
				}
				env := cfg.Metadata.CivitAI.TokenEnv
				if env == "" {
					env = "CIVITAI_TOKEN"
				}
				if os.Getenv(env) == "" {
					return CheckResult{Passed: true, Warning: true, Message: env + " not set", Suggestion: "Some models need an API key:\n  export " + env + "=...\n  Get one at: https://civitai.com/user/account"}
				}
				return CheckResult{Passed: true, Message: env + " set"}
			}),
		},
		{
			Name: "Link targets",
			Run: needConfig(func(ctx context.Context) CheckResult {
				if len(cfg.Links.Mapping) == 0 {
					return CheckResult{Passed: true, Message: "None configured"}
				}
				var missing []string
				seen := map[string]bool{}
				for _, rule := range cfg.Links.Mapping {
					dirs, err := linker.Targets(cfg, rule.Match)
					if err != nil {
						return CheckResult{Message: err.Error(), Suggestion: "Fix links.apps / links.mapping"}
					}
					for _, d := range dirs {
						if seen[d] {
							continue
						}
						seen[d] = true
						if _, err := os.Stat(d); err != nil {
							missing = append(missing, d)
						}
					}
				}
				if len(missing) > 0 {
					return CheckResult{Passed: true, Warning: true, Message: "Missing (created on first link): " + strings.Join(missing, ", ")}
				}
				return CheckResult{Passed: true, Message: fmt.Sprintf("%d directories", len(seen))}
			}),
		},
		{
			Name: "Other sessions",
			Run: needConfig(func(ctx context.Context) CheckResult {
				p := filepath.Join(cfg.General.DataRoot, "modshelf.lock")
				b, err := os.ReadFile(p)
				if err != nil {
					return CheckResult{Passed: true, Message: "No lock held"}
				}
				return CheckResult{Passed: true, Warning: true, Message: fmt.Sprintf("Lock held by PID %s", strings.TrimSpace(string(b))), Suggestion: "A stale lock is taken over automatically when that process is gone"}
			}),
		},
	}
}

func writableDir(dir string) CheckResult {
	if dir == "" {
		return CheckResult{Message: "general.data_root not set", Suggestion: "Add data_root to your config file"}
	}
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return CheckResult{Message: fmt.Sprintf("Directory doesn't exist and can't be created: %s", dir), Suggestion: fmt.Sprintf("Create manually: mkdir -p %s", dir)}
		}
		return CheckResult{Passed: true, Warning: true, Message: fmt.Sprintf("Created directory: %s", dir)}
	}
	if err != nil {
		return CheckResult{Message: fmt.Sprintf("Cannot access: %s", err), Suggestion: "Check file permissions"}
	}
	if !info.IsDir() {
		return CheckResult{Message: "Path exists but is not a directory"}
	}
	probe := filepath.Join(dir, ".modshelf_write_test")
	if err := os.WriteFile(probe, []byte("test"), 0o644); err != nil {
		return CheckResult{Message: "Directory is not writable", Suggestion: fmt.Sprintf("Fix permissions: chmod u+w %s", dir)}
	}
	_ = os.Remove(probe)
	return CheckResult{Passed: true, Message: fmt.Sprintf("Writable: %s", dir)}
}

// runChecks prints each result and returns how many critical checks failed.
func runChecks(ctx context.Context, w io.Writer, checks []Check, verbose bool) int {
	var passed, warned, failed int
	for _, check := range checks {
		start := time.Now()
		res := check.Run(ctx)
		symbol := "✓"
		switch {
		case !res.Passed:
			symbol = "✗"
			if check.Critical {
				failed++
			} else {
				warned++
			}
		case res.Warning:
			symbol = "⚠"
			warned++
			passed++
		default:
			passed++
		}
		fmt.Fprintf(w, "%s %s", symbol, check.Name)
		if verbose {
			fmt.Fprintf(w, " (%.2fs)", time.Since(start).Seconds())
		}
		fmt.Fprintln(w)
		if res.Message != "" {
			fmt.Fprintf(w, "  %s\n", res.Message)
		}
		if res.Suggestion != "" {
			for _, line := range strings.Split(res.Suggestion, "\n") {
				fmt.Fprintf(w, "  → %s\n", line)
			}
		}
	}
	fmt.Fprintf(w, "\nDiagnostic Summary: %d checks, %d passed, %d warnings, %d failed\n", len(checks), passed, warned, failed)
	if failed > 0 {
		fmt.Fprintln(w, "Some critical checks failed. Fix the issues above before using modshelf.")
	}
	return failed
}
