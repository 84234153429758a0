package main

import (
	"errors"
	"fmt"

	"github.com/amp-labs/automachine/statemachine/validator"
	"github.com/spf13/cobra"
)

var errValidationFailed = errors.New("validation failed")

func newValidateCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a machine config and report errors, warnings and suggestions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := validator.ValidateFileWithOptions(args[0], strict)

			fmt.Fprint(cmd.OutOrStdout(), result.String())

			if err != nil {
				return err
			}

			if !result.Valid {
				return fmt.Errorf("%w: %d error(s)", errValidationFailed, len(result.Errors))
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as errors")

	return cmd
}
