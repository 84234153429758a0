// Package loop is a host frame loop for many machines. Each frame ticks every
// member on a worker pool, runs fixed ticks for the whole fixed steps that
// have accumulated, then runs late ticks. A member is never ticked by two
// workers at once because phases do not overlap.
package loop

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/amp-labs/automachine/logger"
	"github.com/caarlos0/env/v11"
	"go.uber.org/atomic"
)

var (
	// ErrClosed is returned by Step and Run after Close.
	ErrClosed = errors.New("loop is closed")
	// ErrRunning is returned by Run when the loop is already running.
	ErrRunning = errors.New("loop is already running")
	// ErrInvalidConfig is returned by New for non-positive settings.
	ErrInvalidConfig = errors.New("invalid loop config")
	// ErrMemberPanicked wraps a panic raised by a member hook.
	ErrMemberPanicked = errors.New("member panicked")
)

// Member is one ticked participant. *statemachine.Core satisfies it.
type Member interface {
	Tick(ctx context.Context)
	FixedTick(ctx context.Context)
	LateTick(ctx context.Context)
}

// Config controls pool size and timing.
type Config struct {
	Workers       int           `env:"AUTOMACHINE_WORKERS"        envDefault:"4"`
	FrameInterval time.Duration `env:"AUTOMACHINE_FRAME_INTERVAL" envDefault:"16ms"`
	FixedStep     time.Duration `env:"AUTOMACHINE_FIXED_STEP"     envDefault:"20ms"`
	// MaxFixedSteps caps fixed ticks per frame so a stalled host does not
	// spiral. Leftover time is dropped.
	MaxFixedSteps int `env:"AUTOMACHINE_MAX_FIXED_STEPS" envDefault:"5"`
}

// LoadConfig reads the loop settings from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing loop env: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the defaults LoadConfig falls back to.
func DefaultConfig() Config {
	return Config{
		Workers:       4,
		FrameInterval: 16 * time.Millisecond,
		FixedStep:     20 * time.Millisecond,
		MaxFixedSteps: 5,
	}
}

func (c Config) validate() error {
	var errs []error

	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers))
	}

	if c.FrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: frame interval must be positive, got %s", ErrInvalidConfig, c.FrameInterval))
	}

	if c.FixedStep <= 0 {
		errs = append(errs, fmt.Errorf("%w: fixed step must be positive, got %s", ErrInvalidConfig, c.FixedStep))
	}

	if c.MaxFixedSteps <= 0 {
		errs = append(errs, fmt.Errorf("%w: max fixed steps must be positive, got %d", ErrInvalidConfig, c.MaxFixedSteps))
	}

	return errors.Join(errs...)
}

type entry struct {
	id     uint64
	member Member
}

// Loop ticks its members frame by frame.
type Loop struct {
	cfg  Config
	pool pond.Pool

	// stepMu serializes frames.
	stepMu      sync.Mutex
	accumulated time.Duration

	membersMu sync.Mutex
	members   []entry
	nextID    uint64

	frames     atomic.Uint64
	fixedTicks atomic.Uint64
	running    atomic.Bool
	closed     atomic.Bool
}

// New creates a loop and its worker pool.
func New(cfg Config) (*Loop, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Loop{
		cfg:  cfg,
		pool: pond.NewPool(cfg.Workers),
	}, nil
}

// Add registers a member and returns a function that removes it. Removal
// takes effect from the next frame. Adding a member that is already
// registered is a no-op and returns a no-op remover.
func (l *Loop) Add(m Member) func() {
	if m == nil {
		return func() {}
	}

	l.membersMu.Lock()
	defer l.membersMu.Unlock()

	if l.registered(m) {
		logger.Get().Warn("Member already registered, ignoring", "member", fmt.Sprintf("%T", m))

		return func() {}
	}

	l.nextID++
	id := l.nextID
	l.members = append(l.members, entry{id: id, member: m})
	membersGauge.Inc()

	var once sync.Once

	return func() {
		once.Do(func() {
			l.membersMu.Lock()
			defer l.membersMu.Unlock()

			before := len(l.members)
			l.members = slices.DeleteFunc(l.members, func(e entry) bool { return e.id == id })

			if len(l.members) < before {
				membersGauge.Dec()
			}
		})
	}
}

// registered reports whether m is already a member. Members are compared by
// identity; values of non-comparable types are never considered equal.
func (l *Loop) registered(m Member) bool {
	if !reflect.TypeOf(m).Comparable() {
		return false
	}

	return slices.ContainsFunc(l.members, func(e entry) bool { return e.member == m })
}

// Len returns the number of members.
func (l *Loop) Len() int {
	l.membersMu.Lock()
	defer l.membersMu.Unlock()

	return len(l.members)
}

// Frames returns the number of completed frames.
func (l *Loop) Frames() uint64 { return l.frames.Load() }

// FixedTicks returns the number of fixed-tick phases run.
func (l *Loop) FixedTicks() uint64 { return l.fixedTicks.Load() }

func (l *Loop) snapshot() []Member {
	l.membersMu.Lock()
	defer l.membersMu.Unlock()

	out := make([]Member, len(l.members))
	for i, e := range l.members {
		out[i] = e.member
	}

	return out
}

// Step runs one frame covering dt of elapsed time and waits for it to finish.
// It returns the first panic raised by a member, wrapped in ErrMemberPanicked.
func (l *Loop) Step(ctx context.Context, dt time.Duration) error {
	if l.closed.Load() {
		return ErrClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	l.stepMu.Lock()
	defer l.stepMu.Unlock()

	if l.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	members := l.snapshot()

	if err := l.phase(members, func(m Member) { m.Tick(ctx) }); err != nil {
		return err
	}

	l.accumulated += max(dt, 0)

	for steps := 0; l.accumulated >= l.cfg.FixedStep; steps++ {
		if steps == l.cfg.MaxFixedSteps {
			l.accumulated = 0

			break
		}

		l.accumulated -= l.cfg.FixedStep

		if err := l.phase(members, func(m Member) { m.FixedTick(ctx) }); err != nil {
			return err
		}

		l.fixedTicks.Inc()
	}

	if err := l.phase(members, func(m Member) { m.LateTick(ctx) }); err != nil {
		return err
	}

	l.frames.Inc()
	frameDuration.Observe(time.Since(start).Seconds())

	return nil
}

func (l *Loop) phase(members []Member, fn func(Member)) error {
	if len(members) == 0 {
		return nil
	}

	group := l.pool.NewGroup()

	for _, m := range members {
		group.Submit(func() { fn(m) })
	}

	if err := group.Wait(); err != nil {
		return fmt.Errorf("%w: %w", ErrMemberPanicked, err)
	}

	return nil
}

// Run steps the loop every frame interval until ctx ends, then returns nil.
// A frame error stops the loop and is returned.
func (l *Loop) Run(ctx context.Context) error {
	if l.closed.Load() {
		return ErrClosed
	}

	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	log := logger.Get(ctx)
	log.Debug("Frame loop started", "interval", l.cfg.FrameInterval, "fixed_step", l.cfg.FixedStep)

	ticker := time.NewTicker(l.cfg.FrameInterval)
	defer ticker.Stop()

	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			log.Debug("Frame loop stopped", "frames", l.Frames())

			return nil
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now

			if err := l.Step(ctx, dt); err != nil {
				if ctx.Err() != nil {
					return nil
				}

				return err
			}
		}
	}
}

// Running reports whether Run is active.
func (l *Loop) Running() bool { return l.running.Load() }

// Close stops the worker pool after in-flight frames finish. Further Step and
// Run calls fail with ErrClosed.
func (l *Loop) Close() {
	if !l.closed.CompareAndSwap(false, true) {
		return
	}

	l.stepMu.Lock()
	defer l.stepMu.Unlock()

	l.pool.StopAndWait()
}
