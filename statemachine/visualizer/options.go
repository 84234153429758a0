package visualizer

// Options configures the visualization output.
type Options struct {
	// ShowConditions shows guard keys as transition labels
	ShowConditions bool

	// ShowDelays appends delayed-switch durations to transition labels
	ShowDelays bool

	// Direction controls diagram flow: "TD" (top-down) or "LR" (left-right)
	Direction string

	// HighlightPath highlights states through the diagram
	HighlightPath []string

	// TitleCase renders state labels in title case ("walking" -> "Walking")
	TitleCase bool

	// Theme selects the mermaid init theme: "default", "dark", "forest"
	Theme string
}

// DefaultOptions returns sensible defaults for visualization.
func DefaultOptions() Options {
	return Options{
		ShowConditions: true,
		ShowDelays:     true,
		Direction:      "TD",
		Theme:          "default",
	}
}

// WithShowConditions enables/disables transition conditions.
func (o Options) WithShowConditions(show bool) Options {
	o.ShowConditions = show

	return o
}

// WithShowDelays enables/disables delay labels.
func (o Options) WithShowDelays(show bool) Options {
	o.ShowDelays = show

	return o
}

// WithDirection sets the diagram direction.
func (o Options) WithDirection(direction string) Options {
	o.Direction = direction

	return o
}

// WithHighlightPath sets states to highlight.
func (o Options) WithHighlightPath(path []string) Options {
	o.HighlightPath = path

	return o
}

// WithTitleCase enables/disables title-cased labels.
func (o Options) WithTitleCase(titleCase bool) Options {
	o.TitleCase = titleCase

	return o
}

// WithTheme sets the color theme.
func (o Options) WithTheme(theme string) Options {
	o.Theme = theme

	return o
}
