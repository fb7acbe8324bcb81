package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"

	"github.com/jxwalker/modshelf/internal/config"
	cw "github.com/jxwalker/modshelf/internal/tui/configwizard"
)

func handleConfigWizard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("config wizard", flag.ContinueOnError)
	out := fs.String("out", "", "write YAML to this path instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := runWizard(nil)
	if err != nil {
		return err
	}
	if *out == "" {
		b, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Fprint(stdout, string(b))
		return nil
	}
	if err := writeConfig(*out, cfg); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote config to %s\n", *out)
	return nil
}

func runWizard(defaults *config.Config) (*config.Config, error) {
	m, err := tea.NewProgram(cw.New(defaults)).Run()
	if err != nil {
		return nil, err
	}
	wiz, ok := m.(*cw.Wizard)
	if !ok {
		return nil, errors.New("unexpected model type from wizard")
	}
	cfg := wiz.Config()
	if cfg == nil {
		return nil, errors.New("config wizard was cancelled")
	}
	return cfg, nil
}

func writeConfig(path string, cfg *config.Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
