package statemachine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
)

type enemyState int

const (
	Idle enemyState = iota
	Walking
	Dead
)

func (s enemyState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Walking:
		return "Walking"
	case Dead:
		return "Dead"
	default:
		return "Unknown"
	}
}

var enemyStates = MustEnumeration(Idle, Walking, Dead) //nolint:gochecknoglobals

// countingState counts lifecycle calls and runs optional hooks.
type countingState struct {
	BaseState[enemyState]

	initialized int
	starts      int
	ticks       int
	fixedTicks  int
	lateTicks   int
	disposes    int

	onStart   func(ctx context.Context)
	onDispose func(ctx context.Context)
}

func newCountingState(state enemyState) *countingState {
	return &countingState{BaseState: NewBaseState(state)}
}

func (s *countingState) Initialize(*Core[enemyState]) { s.initialized++ }

func (s *countingState) StartState(ctx context.Context) {
	s.starts++

	if s.onStart != nil {
		s.onStart(ctx)
	}
}

func (s *countingState) Tick(context.Context) { s.ticks++ }

func (s *countingState) FixedTick(context.Context) { s.fixedTicks++ }

func (s *countingState) LateTick(context.Context) { s.lateTicks++ }

func (s *countingState) Dispose(ctx context.Context) {
	s.disposes++

	if s.onDispose != nil {
		s.onDispose(ctx)
	}
}

type enemyFixture struct {
	core    *Core[enemyState]
	idle    *countingState
	walking *countingState
	dead    *countingState
	clock   *manualClock
	changes []StateChanged[enemyState]
}

func newEnemyFixture(t *testing.T, opts ...Option[enemyState]) *enemyFixture {
	t.Helper()

	f := &enemyFixture{
		idle:    newCountingState(Idle),
		walking: newCountingState(Walking),
		dead:    newCountingState(Dead),
		clock:   newManualClock(),
	}

	base := []Option[enemyState]{
		WithName[enemyState]("enemy"),
		WithEntity[enemyState](NamedEntity("goblin")),
		WithLogger[enemyState](NewSlogLogger(slogt.New(t), DefaultDebugSettings())),
		WithScheduler[enemyState](NewClockScheduler(f.clock)),
	}

	core, err := NewCore(enemyStates, []State[enemyState]{f.idle, f.walking, f.dead}, append(base, opts...)...)
	require.NoError(t, err)

	core.Signals().OnStateChanged(func(_ context.Context, signal StateChanged[enemyState]) {
		f.changes = append(f.changes, signal)
	})

	f.core = core

	return f
}

func (f *enemyFixture) initialize(t *testing.T) {
	t.Helper()

	require.NoError(t, f.core.Initialize(t.Context()))
}

// counterGuard reads a shared counter, the way a host would expose a
// gameplay variable to a guard.
func counterGuard(counter *int, key string, check func(int) bool) Guard {
	return NewGuard(key, func() bool { return check(*counter) })
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}
