package main

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/amp-labs/automachine/cli"
	"github.com/amp-labs/automachine/statemachine"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

const (
	actionTick    = "Tick"
	actionTickN   = "Tick N times"
	actionSet     = "Set variable"
	actionAdvance = "Advance time"
	actionShow    = "Show variables"
	actionQuit    = "Quit"
)

func newStepCmd() *cobra.Command {
	var dt time.Duration

	cmd := &cobra.Command{
		Use:   "step FILE",
		Short: "Tick a machine config interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := statemachine.LoadConfig(args[0])
			if err != nil {
				return err
			}

			return stepInteractive(cmd, config, dt)
		},
	}

	cmd.Flags().DurationVar(&dt, "dt", 100*time.Millisecond, "simulated time per tick")

	return cmd
}

func stepInteractive(cmd *cobra.Command, config *statemachine.Config, dt time.Duration) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	bb := statemachine.NewBlackboard()
	clock := newSimClock()
	track := &tracker{}

	core, dispose, err := buildMachine(ctx, config, bb, clock, out, track)
	if err != nil {
		return err
	}
	defer dispose()

	tick := func() {
		track.setFrame(track.Frame() + 1)
		clock.Advance(dt)
		core.Tick(ctx)
		core.FixedTick(ctx)
		core.LateTick(ctx)
	}

	fmt.Fprintln(out, cli.BannerAutoWidth(config.Name, cli.AlignCenter))

	for {
		label := fmt.Sprintf("tick %d, state %s", track.Frame(), core.CurrentState())
		if core.IsChangingState() {
			label += " (switch pending)"
		}

		_, action, err := cli.Select(label, actionTick, actionTickN, actionSet, actionAdvance, actionShow, actionQuit)
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return nil
			}

			return err
		}

		switch action {
		case actionTick:
			tick()
		case actionTickN:
			n, err := cli.PromptInt("How many ticks")
			if err != nil {
				return err
			}

			for range n {
				tick()
			}
		case actionSet:
			key, value, err := cli.PromptAssignment("Variable (key=value)")
			if err != nil {
				return err
			}

			bb.Set(key, value)
		case actionAdvance:
			raw, err := cli.PromptString("Duration (e.g. 1.5s)")
			if err != nil {
				return err
			}

			d, err := statemachine.ParseDelay(raw)
			if err != nil {
				fmt.Fprintln(out, err)

				continue
			}

			if d == 0 {
				continue
			}

			clock.Advance(d)
		case actionShow:
			vars := bb.Snapshot()
			for _, key := range slices.Sorted(maps.Keys(vars)) {
				fmt.Fprintf(out, "  %s = %v\n", key, vars[key])
			}
		case actionQuit:
			quit, err := cli.PromptConfirm("Quit the session")
			if err != nil {
				return err
			}

			if !quit {
				continue
			}

			printSummary(out, config.Name, core, track)

			return nil
		}
	}
}
