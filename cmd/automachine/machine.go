package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/amp-labs/automachine/logger"
	"github.com/amp-labs/automachine/statemachine"
)

// simClock is a manually advanced clock for delayed transitions during
// simulation, so runs are reproducible regardless of wall time.
type simClock struct {
	mu  sync.Mutex
	now time.Time
}

func newSimClock() *simClock {
	return &simClock{now: time.Unix(0, 0).UTC()}
}

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *simClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// tracker holds the current frame, used to label output lines, and the
// number of completed switches after the first.
type tracker struct {
	mu       sync.Mutex
	frame    int
	switches int
}

func (t *tracker) setFrame(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.frame = n
}

func (t *tracker) Frame() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.frame
}

func (t *tracker) Switches() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.switches
}

func (t *tracker) switched() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.switches++
}

type machine = statemachine.Core[statemachine.NamedState]

// buildMachine assembles an initialized machine from config, reading
// conditions from bb and delays from clock. Every completed switch is
// printed to out and counted in track.
func buildMachine(
	ctx context.Context,
	config *statemachine.Config,
	bb *statemachine.Blackboard,
	clock statemachine.Clock,
	out io.Writer,
	track *tracker,
) (*machine, func(), error) {
	enum, err := config.Enumeration()
	if err != nil {
		return nil, nil, err
	}

	bus := statemachine.NewSignalBus[statemachine.NamedState]()

	core, err := statemachine.NewBuilder(enum).
		WithScheduler(statemachine.NewClockScheduler(clock)).
		WithSignalBus(bus).
		ApplyConfig(config, bb, namedState).
		Build(ctx)
	if err != nil {
		return nil, nil, err
	}

	unsubscribe := bus.OnStateChanged(func(_ context.Context, signal statemachine.StateChanged[statemachine.NamedState]) {
		if signal.FirstRun {
			fmt.Fprintf(out, "[tick %d] start in %s\n", track.Frame(), signal.Next)

			return
		}

		track.switched()
		fmt.Fprintf(out, "[tick %d] %s -> %s\n", track.Frame(), signal.Previous, signal.Next)
	})

	if err := core.Initialize(ctx); err != nil {
		unsubscribe()

		return nil, nil, err
	}

	return core, func() {
		core.Dispose(ctx)
		unsubscribe()
	}, nil
}

func namedState(value statemachine.NamedState) statemachine.State[statemachine.NamedState] {
	return statemachine.NewFuncState(value, statemachine.StateHooks[statemachine.NamedState]{
		OnStart: func(ctx context.Context) {
			logger.Get(ctx).Debug("Entered state", "state", value.String())
		},
		OnDispose: func(ctx context.Context) {
			logger.Get(ctx).Debug("Left state", "state", value.String())
		},
	})
}
