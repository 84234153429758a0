// Package logger configures log/slog for automachine binaries and hands out
// context-scoped loggers.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/caarlos0/env/v11"
)

// Default subsystem name, set by ConfigureLoggingWithOptions.
var subsystem atomic.Value //nolint:gochecknoglobals

// configMutex serializes changes to the global slog and log defaults.
var configMutex sync.Mutex //nolint:gochecknoglobals

type contextKey string

// ErrInvalidLogOutput is returned when an invalid log output destination is specified.
var ErrInvalidLogOutput = errors.New("invalid log output")

// ErrInvalidLogLevel is returned when a log level does not parse.
var ErrInvalidLogLevel = errors.New("invalid log level")

// Options is used to configure logging.
type Options struct {
	Subsystem   string
	JSON        bool
	MinLevel    slog.Level
	LegacyLevel slog.Level
	Output      io.Writer

	// Extra receives every record in addition to the console handler, e.g.
	// an OpenTelemetry log bridge. Optional.
	Extra slog.Handler
}

// envOptions is the environment view of Options.
type envOptions struct {
	JSON        bool   `env:"LOG_JSON"         envDefault:"false"`
	Level       string `env:"LOG_LEVEL"        envDefault:"info"`
	LegacyLevel string `env:"LEGACY_LOG_LEVEL" envDefault:"info"`
	Output      string `env:"LOG_OUTPUT"       envDefault:"stdout"`
}

// Option is a functional option for configuring logging via ConfigureLogging.
type Option func(*Options)

// WithExtraHandler tees every record into handler.
func WithExtraHandler(handler slog.Handler) Option {
	return func(o *Options) {
		o.Extra = handler
	}
}

// WithOutput overrides the console destination.
func WithOutput(w io.Writer) Option {
	return func(o *Options) {
		o.Output = w
	}
}

// LoadOptions reads LOG_JSON, LOG_LEVEL, LEGACY_LOG_LEVEL and LOG_OUTPUT.
func LoadOptions(app string) (Options, error) {
	var raw envOptions
	if err := env.Parse(&raw); err != nil {
		return Options{}, fmt.Errorf("parsing log env: %w", err)
	}

	minLevel, err := parseLevel(raw.Level)
	if err != nil {
		return Options{}, err
	}

	legacyLevel, err := parseLevel(raw.LegacyLevel)
	if err != nil {
		return Options{}, err
	}

	var output io.Writer

	switch raw.Output {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		return Options{}, fmt.Errorf("%w: %q", ErrInvalidLogOutput, raw.Output)
	}

	return Options{
		Subsystem:   app,
		JSON:        raw.JSON,
		MinLevel:    minLevel,
		LegacyLevel: legacyLevel,
		Output:      output,
	}, nil
}

func parseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return level, fmt.Errorf("%w: %q", ErrInvalidLogLevel, value)
	}

	return level, nil
}

// ConfigureLogging loads options from the environment, applies opts and
// installs the result as the default logger.
func ConfigureLogging(app string, opts ...Option) (*slog.Logger, error) {
	options, err := LoadOptions(app)
	if err != nil {
		return nil, err
	}

	for _, o := range opts {
		o(&options)
	}

	return ConfigureLoggingWithOptions(options), nil
}

// ConfigureLoggingWithOptions configures logging for the application and
// returns the default logger. It modifies global state; concurrent calls
// are serialized.
func ConfigureLoggingWithOptions(opts Options) *slog.Logger {
	configMutex.Lock()
	defer configMutex.Unlock()

	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	var handler slog.Handler

	handlerOpts := &slog.HandlerOptions{Level: opts.MinLevel}

	if opts.JSON {
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	}

	if opts.Extra != nil {
		handler = &teeHandler{handlers: []slog.Handler{handler, opts.Extra}}
	}

	handler = &slogErrorLogger{inner: handler}

	logger := slog.New(handler)

	slog.SetDefault(logger)

	// Third party packages may still use the log package.
	def := log.Default()
	*def = *slog.NewLogLogger(handler, opts.LegacyLevel)

	subsystem.Store(opts.Subsystem)

	return logger
}

// WithMuted marks the context as muted. Loggers obtained from a muted
// context discard everything.
func WithMuted(ctx context.Context, muted bool) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, contextKey("mute"), muted)
}

func isMuted(ctx context.Context) bool {
	if ctx == nil {
		return false
	}

	muted, ok := ctx.Value(contextKey("mute")).(bool)

	return ok && muted
}

// WithSubsystem overrides the subsystem for loggers obtained from ctx.
func WithSubsystem(ctx context.Context, subsystem string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, contextKey("subsystem"), subsystem)
}

// GetSubsystem returns the subsystem from the context, falling back to the
// configured default.
func GetSubsystem(ctx context.Context) string { //nolint:contextcheck
	if ctx == nil {
		ctx = context.Background()
	}

	if val, ok := ctx.Value(contextKey("subsystem")).(string); ok {
		return val
	}

	if val, ok := subsystem.Load().(string); ok {
		return val
	}

	return ""
}

// WithMachine attaches the identity of a state machine to every log line
// written through ctx.
func WithMachine(ctx context.Context, id, name, entity string) context.Context {
	values := make([]any, 0, 6) //nolint:mnd

	for _, kv := range [][2]string{{"machine_id", id}, {"machine", name}, {"entity", entity}} {
		if kv[1] != "" {
			values = append(values, kv[0], kv[1])
		}
	}

	return With(ctx, values...)
}

// Values returns the key-value pairs added to ctx with With or WithMachine.
func Values(ctx context.Context) []any {
	return slices.Clone(getValues(ctx))
}

// With returns a new context with the given values added.
// The values are added to the logger automatically.
func With(ctx context.Context, values ...any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	if len(values) == 0 {
		return ctx
	}

	existing := getValues(ctx)
	vals := make([]any, 0, len(existing)+len(values))
	vals = append(vals, existing...)
	vals = append(vals, values...)

	return context.WithValue(ctx, contextKey("loggerValues"), vals)
}

func getValues(ctx context.Context) []any { //nolint:contextcheck
	if ctx == nil {
		return nil
	}

	vals, _ := ctx.Value(contextKey("loggerValues")).([]any)

	return vals
}

// getRealContext returns the first non-nil context, or context.Background().
func getRealContext(ctx ...context.Context) context.Context {
	for _, c := range ctx {
		if c != nil {
			return c
		}
	}

	return context.Background()
}

// Get returns the default logger decorated with the subsystem and any values
// added to the context with With or WithMachine.
//
//nolint:contextcheck
func Get(ctx ...context.Context) *slog.Logger {
	realCtx := getRealContext(ctx...)

	if isMuted(realCtx) {
		return nullLogger
	}

	logger := slog.Default()

	if sub := GetSubsystem(realCtx); sub != "" {
		logger = logger.With("subsystem", sub)
	}

	if vals := getValues(realCtx); vals != nil {
		logger = logger.With(vals...)
	}

	return logger
}

// nullHandler discards all output.
type nullHandler struct{}

func (n *nullHandler) Enabled(context.Context, slog.Level) bool { return false }

func (n *nullHandler) Handle(context.Context, slog.Record) error { return nil }

func (n *nullHandler) WithAttrs([]slog.Attr) slog.Handler { return n }

func (n *nullHandler) WithGroup(string) slog.Handler { return n }

var nullLogger = slog.New(&nullHandler{}) //nolint:gochecknoglobals

// teeHandler forwards each record to every handler that has the level enabled.
type teeHandler struct {
	handlers []slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (t *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error

	for _, h := range t.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}

		if err := h.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		out[i] = h.WithAttrs(attrs)
	}

	return &teeHandler{handlers: out}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		out[i] = h.WithGroup(name)
	}

	return &teeHandler{handlers: out}
}
