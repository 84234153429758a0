package cli

import (
	"slices"
	"strings"

	"github.com/manifoldco/promptui"
)

const doneItem = "[Done]"

// Select asks for one of choices and returns its index and value.
func Select(label string, choices ...string) (int, string, error) {
	sel := &promptui.Select{
		Label:    label,
		Items:    choices,
		Size:     min(len(choices), 10), //nolint:mnd
		Searcher: prefixSearcher(choices, false),
	}

	return sel.Run()
}

// MultiSelect repeatedly asks for one of the remaining choices until
// "[Done]" is picked. The result keeps the order of choices.
func MultiSelect(label string, choices ...string) ([]string, error) {
	if len(choices) == 0 {
		return nil, nil
	}

	remaining := slices.Clone(choices)
	slices.Sort(remaining)
	remaining = slices.Compact(remaining)

	selected := make(map[string]bool, len(remaining))

	for len(remaining) > 0 {
		items := append([]string{doneItem}, remaining...)

		sel := &promptui.Select{
			Label:    label,
			Items:    items,
			Searcher: prefixSearcher(items, true),
		}

		idx, value, err := sel.Run()
		if err != nil {
			return nil, err
		}

		if idx == 0 {
			break
		}

		selected[value] = true
		remaining = slices.DeleteFunc(remaining, func(s string) bool { return s == value })
	}

	return selectedInOrder(choices, selected), nil
}

func selectedInOrder(choices []string, selected map[string]bool) []string {
	var out []string

	for _, c := range choices {
		if selected[c] && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}

	return out
}

func prefixSearcher(items []string, skipFirst bool) func(string, int) bool {
	return func(input string, index int) bool {
		if skipFirst && index == 0 {
			return false
		}

		if len(input) == 0 {
			return false
		}

		return strings.HasPrefix(strings.ToLower(items[index]), strings.ToLower(input))
	}
}
