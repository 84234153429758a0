package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/amp-labs/automachine/cli"
	"github.com/amp-labs/automachine/logger"
	"github.com/amp-labs/automachine/loop"
	"github.com/amp-labs/automachine/statemachine"
	"github.com/spf13/cobra"
)

var errInvalidSet = errors.New("invalid --set value, want TICK:KEY=VALUE")

type assignment struct {
	key   string
	value any
}

type simulateOptions struct {
	ticks     int
	dt        time.Duration
	fixedStep time.Duration
	sets      []string
	vars      []string
}

func newSimulateCmd() *cobra.Command {
	opts := simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate FILE",
		Short: "Run a machine config for a number of ticks and print every switch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := statemachine.LoadConfig(args[0])
			if err != nil {
				return err
			}

			return simulate(cmd, config, opts)
		},
	}

	cmd.Flags().IntVar(&opts.ticks, "ticks", 10, "number of frames to run")
	cmd.Flags().DurationVar(&opts.dt, "dt", 100*time.Millisecond, "simulated time per frame")
	cmd.Flags().DurationVar(&opts.fixedStep, "fixed-step", loop.DefaultConfig().FixedStep, "fixed tick interval")
	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "set a variable before a frame, as TICK:KEY=VALUE (repeatable)")
	cmd.Flags().StringArrayVar(&opts.vars, "var", nil, "initial variable, as KEY=VALUE (repeatable)")

	return cmd
}

func simulate(cmd *cobra.Command, config *statemachine.Config, opts simulateOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if opts.ticks < 0 {
		return fmt.Errorf("%w: --ticks must not be negative", loop.ErrInvalidConfig)
	}

	schedule, err := parseSetFlags(opts.sets)
	if err != nil {
		return logger.AnnotateError(err, "flag", "--set")
	}

	if ticks := scheduledTicks(schedule); len(ticks) > 0 && ticks[len(ticks)-1] > opts.ticks {
		logger.Get(ctx).Warn("Some --set values are past the last tick and will not apply",
			"last_set", ticks[len(ticks)-1], "ticks", opts.ticks)
	}

	bb := statemachine.NewBlackboard()

	for _, raw := range opts.vars {
		key, value, err := cli.ParseAssignment(raw)
		if err != nil {
			return logger.AnnotateError(err, "flag", "--var")
		}

		bb.Set(key, value)
	}

	cfg := loop.DefaultConfig()
	cfg.Workers = 1
	cfg.FixedStep = opts.fixedStep

	frameLoop, err := loop.New(cfg)
	if err != nil {
		return err
	}
	defer frameLoop.Close()

	clock := newSimClock()
	track := &tracker{}

	core, dispose, err := buildMachine(ctx, config, bb, clock, out, track)
	if err != nil {
		return err
	}
	defer dispose()

	frameLoop.Add(core)

	for frame := 1; frame <= opts.ticks; frame++ {
		track.setFrame(frame)

		for _, a := range schedule[frame] {
			bb.Set(a.key, a.value)
			fmt.Fprintf(out, "[tick %d] set %s = %v\n", frame, a.key, a.value)
		}

		clock.Advance(opts.dt)

		if err := frameLoop.Step(ctx, opts.dt); err != nil {
			return logger.AnnotateError(err, "machine", config.Name, "tick", frame)
		}
	}

	logger.Get(ctx).Debug("Simulation finished",
		"machine", config.Name,
		"frames", frameLoop.Frames(),
		"fixed_ticks", frameLoop.FixedTicks(),
	)

	printSummary(out, config.Name, core, track)

	return nil
}

func printSummary(out io.Writer, name string, core *machine, track *tracker) {
	fmt.Fprintln(out, cli.BannerAutoWidth("summary: "+name, cli.AlignCenter))
	fmt.Fprintf(out, "ticks:    %d\n", track.Frame())
	fmt.Fprintf(out, "switches: %d\n", track.Switches())
	fmt.Fprintf(out, "final:    %s\n", core.CurrentState())

	if core.IsChangingState() {
		fmt.Fprintln(out, "pending:  delayed switch in progress")
	}

	fmt.Fprintln(out, cli.DividerAutoWidth())
}

// parseSetFlags groups TICK:KEY=VALUE flags by tick, keeping flag order
// within a tick.
func parseSetFlags(values []string) (map[int][]assignment, error) {
	out := make(map[int][]assignment, len(values))

	for _, raw := range values {
		tickPart, rest, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", errInvalidSet, raw)
		}

		tick, err := strconv.Atoi(strings.TrimSpace(tickPart))
		if err != nil || tick < 1 {
			return nil, fmt.Errorf("%w: %q", errInvalidSet, raw)
		}

		key, value, err := cli.ParseAssignment(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errInvalidSet, err)
		}

		out[tick] = append(out[tick], assignment{key: key, value: value})
	}

	return out, nil
}

// scheduledTicks lists the ticks that have assignments, ascending.
func scheduledTicks(schedule map[int][]assignment) []int {
	return slices.Sorted(maps.Keys(schedule))
}
