// Package cli holds terminal helpers shared by automachine commands:
// promptui prompts, boxed banners and key=value parsing.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
)

var (
	// ErrEmptyInput is returned by prompt validation for blank answers.
	ErrEmptyInput = errors.New("you must enter something")
	// ErrInvalidSize is returned when the terminal size output does not parse.
	ErrInvalidSize = errors.New("invalid terminal size")
	// ErrInvalidAssignment is returned for input that is not key=value.
	ErrInvalidAssignment = errors.New("expected key=value")
)

func PromptConfirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
	}

	_, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

func PromptString(label string) (string, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Validate: validateNonEmpty,
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
	}

	return prompt.Run()
}

func PromptInt(label string) (int, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Validate: validateInt,
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
	}

	txt, err := prompt.Run()
	if err != nil {
		return 0, err
	}

	val, err := strconv.ParseInt(txt, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}

	return int(val), nil
}

// PromptAssignment asks for a key=value pair and parses the value.
func PromptAssignment(label string) (string, any, error) {
	prompt := promptui.Prompt{
		Label: label,
		Validate: func(s string) error {
			_, _, err := ParseAssignment(s)

			return err
		},
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
	}

	txt, err := prompt.Run()
	if err != nil {
		return "", nil, err
	}

	return ParseAssignment(txt)
}

func validateNonEmpty(s string) error {
	if len(s) == 0 {
		return ErrEmptyInput
	}

	return nil
}

func validateInt(s string) error {
	if _, err := strconv.ParseInt(s, 10, 32); err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}

	return nil
}
