// Command automachine validates, renders and simulates declarative state
// machine configs.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/amp-labs/automachine/build"
	"github.com/amp-labs/automachine/logger"
	"github.com/amp-labs/automachine/shutdown"
	"github.com/amp-labs/automachine/telemetry"
	"github.com/spf13/cobra"
)

const appName = "automachine"

var exampleUsage = strings.TrimSpace(`
  automachine validate enemy.yaml --strict
  automachine render enemy.yaml --direction LR --watch --output enemy.md
  automachine simulate enemy.yaml --ticks 20 --dt 100ms --set 1:hp=10 --set 5:counter=3
  automachine step enemy.toml
`)

func main() {
	handler := shutdown.New(shutdown.DefaultGrace)

	// An interrupted command skips PersistentPostRunE, so flush from here.
	handler.BeforeShutdown(func(ctx context.Context) {
		if err := telemetry.Shutdown(ctx); err != nil {
			logger.Get(ctx).Error("Telemetry shutdown failed", "error", err)
		}
	})

	ctx, stop := handler.Listen(context.Background())

	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	if err != nil {
		reportError(os.Stderr, err)
		logger.Get(ctx).Debug("Command failed", "error", err)
	}

	stop()

	if err != nil {
		os.Exit(1)
	}
}

// reportError prints err with the attributes annotated onto it, such as the
// config path or the tick a simulation failed on.
func reportError(w io.Writer, err error) {
	var sb strings.Builder

	sb.WriteString("Error: " + err.Error())

	for _, attr := range logger.ErrorAttrs(err) {
		fmt.Fprintf(&sb, "\n  %s: %s", attr.Key, attr.Value.String())
	}

	fmt.Fprintln(w, sb.String())
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var environment string

	root := &cobra.Command{
		Use:           appName,
		Short:         "Validate, render and simulate tick-driven state machines",
		Example:       exampleUsage,
		Version:       build.Current().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupObservability(cmd.Context(), environment, stderr)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return telemetry.Shutdown(cmd.Context())
		},
	}

	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&environment, "env", "local", "deployment environment reported to telemetry")

	root.AddCommand(
		newValidateCmd(),
		newRenderCmd(),
		newSimulateCmd(),
		newStepCmd(),
	)

	return root
}

// setupObservability configures slog from LOG_* variables and, when
// OTEL_ENABLED is set, exports spans and logs over OTLP.
func setupObservability(ctx context.Context, environment string, stderr io.Writer) error {
	if _, err := logger.ConfigureLogging(appName, logger.WithOutput(stderr)); err != nil {
		return err
	}

	config, err := telemetry.LoadConfigFromEnv(environment)
	if err != nil {
		return err
	}

	if err := telemetry.Initialize(ctx, config); err != nil {
		return err
	}

	if handler := telemetry.LogHandler(); handler != nil {
		if _, err := logger.ConfigureLogging(appName, logger.WithOutput(stderr), logger.WithExtraHandler(handler)); err != nil {
			return err
		}
	}

	return nil
}
