package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jxwalker/modshelf/internal/config"
	ferrors "github.com/jxwalker/modshelf/internal/errors"
	"github.com/jxwalker/modshelf/internal/lockfile"
	"github.com/jxwalker/modshelf/internal/logging"
	"github.com/jxwalker/modshelf/internal/metrics"
	"github.com/jxwalker/modshelf/internal/state"
	"github.com/jxwalker/modshelf/internal/tui"
)

func handleTUI(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tui", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to YAML config file")
	logLevel := fs.String("log-level", "info", "log level (written to the log file)")
	jsonOut := fs.Bool("json", false, "json log lines")
	noMouse := fs.Bool("no-mouse", false, "disable mouse input even if ui.mouse is set")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, p, err := loadConfig(*cfgPath)
	if err != nil {
		if p == "" || !errors.Is(err, os.ErrNotExist) {
			return err
		}
		// First run: collect the basics, then reload so paths get expanded.
		cfg, werr := runWizard(nil)
		if werr != nil {
			return werr
		}
		if err := writeConfig(p, cfg); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote config to %s\n", p)
		if c, err = config.Load(p); err != nil {
			return err
		}
	}
	if *noMouse {
		c.UI.Mouse = false
	}
	if *logLevel == "info" && c.Logging.Level != "" {
		*logLevel = c.Logging.Level
	}
	if err := os.MkdirAll(c.General.DataRoot, 0o755); err != nil {
		return ferrors.PathError(c.General.DataRoot, err)
	}
	lockPath := filepath.Join(c.General.DataRoot, "modshelf.lock")
	lock, err := lockfile.Acquire(lockPath)
	if err != nil {
		var held *lockfile.HeldError
		if errors.As(err, &held) {
			return ferrors.AlreadyRunning(held.PID, lockPath, err)
		}
		return err
	}
	defer func() { _ = lock.Release() }()

	log, closer, err := logging.NewFile(*logLevel, *jsonOut || c.Logging.Format == "json", c.LogFilePath())
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	st, err := state.Open(c)
	if err != nil {
		return ferrors.DatabaseError(err)
	}
	defer func() { _ = st.SQL.Close() }()

	log.Infof("modshelf %s starting: %d roots", version, len(c.Library.Roots))
	return tui.Run(c, st, tui.WithLogger(log), tui.WithMetrics(metrics.New(c)))
}
