package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path/filepath"

	"github.com/jxwalker/modshelf/internal/classifier"
	ferrors "github.com/jxwalker/modshelf/internal/errors"
	"github.com/jxwalker/modshelf/internal/linker"
	"github.com/jxwalker/modshelf/internal/metadata"
	"github.com/jxwalker/modshelf/internal/state"
)

func handleEnrich(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("enrich", flag.ContinueOnError)
	cf := addCommon(fs)
	force := fs.Bool("force", false, "look up models that already have a .civitai.info sidecar")
	typ := fs.String("type", "", "only models of this type")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, log, st, err := openLibrary(cf)
	if err != nil {
		return err
	}
	defer func() { _ = st.SQL.Close() }()
	if !c.Metadata.CivitAI.Enabled {
		return ferrors.NewFriendlyError("CivitAI lookups are disabled", "Set metadata.civitai.enabled: true in your config")
	}
	models, err := selectModels(st, *typ, fs.Args())
	if err != nil {
		return err
	}
	if len(models) == 0 {
		log.Infof("enrich: nothing to do")
		return nil
	}
	progress := func(m state.Model, err error) {
		if err != nil {
			log.Warnf("%s: %v", m.Name, err)
			return
		}
		log.Debugf("%s: checked", m.Name)
	}
	e := metadata.NewEnricher(c, st, metadata.NewCivitAI(c),
		metadata.WithLogger(log), metadata.WithForce(*force), metadata.WithProgress(progress))
	res, err := e.Enrich(ctx, models)
	fmt.Fprintf(stdout, "Checked %d: %d enriched, %d not found, %d skipped, %d errors\n",
		res.Checked, res.Enriched, res.NotFound, res.Skipped, len(res.Errors))
	if errors.Is(err, metadata.ErrUnauthorized) {
		return ferrors.CivitAIAuth(c.Metadata.CivitAI.TokenEnv, err)
	}
	return err
}

func handleLink(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("link", flag.ContinueOnError)
	cf := addCommon(fs)
	typ := fs.String("type", "", "only models of this type; with --path, overrides detection")
	path := fs.String("path", "", "link a single file instead of indexed models")
	mode := fs.String("mode", "", "link mode override: symlink|hardlink|copy")
	dryRun := fs.Bool("dry-run", false, "print planned destinations only; do not modify files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, log, st, err := openLibrary(cf)
	if err != nil {
		return err
	}
	defer func() { _ = st.SQL.Close() }()
	if *mode != "" {
		c.Links.Mode = *mode
	}

	var models []state.Model
	if *path != "" {
		t := *typ
		if t == "" {
			t = classifier.Detect(c, *path)
		}
		models = []state.Model{{Path: *path, Name: filepath.Base(*path), Type: t}}
	} else if models, err = selectModels(st, *typ, fs.Args()); err != nil {
		return err
	}

	if *dryRun {
		for _, m := range models {
			dirs, err := linker.Targets(c, m.Type)
			if err != nil {
				return err
			}
			if len(dirs) == 0 {
				continue
			}
			fmt.Fprintf(stdout, "Would link %s (type=%s) to:\n", m.Name, m.Type)
			for _, d := range dirs {
				fmt.Fprintf(stdout, "  %s\n", d)
			}
		}
		return nil
	}
	res := linker.LinkModels(c, models)
	for _, p := range res.Placed {
		log.Infof("linked: %s", p)
	}
	for _, e := range res.Errors {
		log.Errorf("link: %v", e)
	}
	fmt.Fprintf(stdout, "Linked %d models (%d without targets, %d failed)\n", res.Linked, res.Untyped, len(res.Errors))
	if len(res.Errors) > 0 {
		return fmt.Errorf("%d links failed", len(res.Errors))
	}
	return nil
}

// selectModels returns the named models (by path), or every model of typ.
func selectModels(st *state.DB, typ string, paths []string) ([]state.Model, error) {
	if len(paths) == 0 {
		return st.ListModels(state.ModelFilter{Type: typ})
	}
	var out []state.Model
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		m, err := st.GetModel(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		if m == nil {
			return nil, fmt.Errorf("%s: not in the library (run 'modshelf scan')", p)
		}
		out = append(out, *m)
	}
	return out, nil
}
