package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/amp-labs/automachine/cli"
	"github.com/amp-labs/automachine/logger"
	"github.com/amp-labs/automachine/statemachine"
	"github.com/amp-labs/automachine/statemachine/visualizer"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

const watchDebounce = 100 * time.Millisecond

type renderOptions struct {
	direction    string
	theme        string
	output       string
	titleCase    bool
	noConditions bool
	noDelays     bool
	highlight    []string
	pick         bool
	watch        bool
}

func (o renderOptions) visualizer() visualizer.Options {
	return visualizer.DefaultOptions().
		WithDirection(o.direction).
		WithTheme(o.theme).
		WithTitleCase(o.titleCase).
		WithShowConditions(!o.noConditions).
		WithShowDelays(!o.noDelays).
		WithHighlightPath(o.highlight)
}

func newRenderCmd() *cobra.Command {
	opts := renderOptions{}

	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Render a machine config as a Mermaid state diagram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			if opts.pick {
				picked, err := pickHighlight(path)
				if err != nil {
					return err
				}

				opts.highlight = append(opts.highlight, picked...)
			}

			if err := renderOnce(path, opts, cmd.OutOrStdout()); err != nil {
				return err
			}

			if !opts.watch {
				return nil
			}

			return watchFile(cmd.Context(), path, func() {
				if err := renderOnce(path, opts, cmd.OutOrStdout()); err != nil {
					logger.Get(cmd.Context()).Error("Render failed", "path", path, "error", err)
				}
			})
		},
	}

	cmd.Flags().StringVar(&opts.direction, "direction", "TD", "diagram direction: TD or LR")
	cmd.Flags().StringVar(&opts.theme, "theme", "default", "mermaid theme: default, dark, forest")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the diagram to a file instead of stdout")
	cmd.Flags().BoolVar(&opts.titleCase, "title-case", false, "title-case state labels")
	cmd.Flags().BoolVar(&opts.noConditions, "no-conditions", false, "hide transition conditions")
	cmd.Flags().BoolVar(&opts.noDelays, "no-delays", false, "hide transition delays")
	cmd.Flags().StringSliceVar(&opts.highlight, "highlight", nil, "states to highlight")
	cmd.Flags().BoolVar(&opts.pick, "pick", false, "choose states to highlight interactively")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "re-render whenever the file changes")

	return cmd
}

func pickHighlight(path string) ([]string, error) {
	config, err := statemachine.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	return cli.MultiSelect("States to highlight", config.States...)
}

func renderOnce(path string, opts renderOptions, stdout io.Writer) error {
	config, err := statemachine.LoadConfig(path)
	if err != nil {
		return err
	}

	diagram, err := visualizer.GenerateMermaidFromConfig(config, opts.visualizer())
	if err != nil {
		return err
	}

	if opts.output == "" {
		_, err = fmt.Fprint(stdout, diagram)

		return err
	}

	if err := os.WriteFile(opts.output, []byte(diagram), 0o600); err != nil {
		return logger.AnnotateError(fmt.Errorf("writing diagram: %w", err), "output", opts.output)
	}

	return nil
}

// watchFile calls onChange, debounced, whenever path is written or
// re-created, until ctx ends. The directory is watched so editors that
// replace the file are followed.
func watchFile(ctx context.Context, path string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	log := logger.Get(ctx)
	log.Info("Watching for changes", "path", target)

	var (
		mu       sync.Mutex
		debounce *time.Timer
	)

	defer func() {
		mu.Lock()
		defer mu.Unlock()

		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != target {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}

			debounce = time.AfterFunc(watchDebounce, onChange)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			log.Warn("Watcher error", "error", err)
		}
	}
}
