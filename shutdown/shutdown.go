// Package shutdown turns SIGINT and SIGTERM into context cancellation, running
// registered hooks first so exporters and open machines can flush.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/amp-labs/automachine/logger"
)

// DefaultGrace bounds how long hooks may run.
const DefaultGrace = 5 * time.Second

// Hook runs before the root context is cancelled. Its context expires after
// the grace period.
type Hook func(ctx context.Context)

// Handler owns the signal subscription and the hook list.
type Handler struct {
	mu      sync.Mutex
	hooks   []Hook
	grace   time.Duration
	signals chan os.Signal
	once    sync.Once
	cancel  context.CancelFunc
}

// New creates a handler. A non-positive grace uses DefaultGrace.
func New(grace time.Duration) *Handler {
	if grace <= 0 {
		grace = DefaultGrace
	}

	return &Handler{grace: grace}
}

// BeforeShutdown registers h. Hooks run in reverse registration order.
func (s *Handler) BeforeShutdown(h Hook) {
	if h == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.hooks = append(s.hooks, h)
}

// Listen returns a child of parent that is cancelled on SIGINT, SIGTERM or
// Trigger, after the hooks ran. Call stop when done to release the signal
// subscription.
func (s *Handler) Listen(parent context.Context) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	s.cancel = cancel
	s.signals = make(chan os.Signal, 1)
	signals := s.signals
	s.mu.Unlock()

	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		select {
		case sig := <-signals:
			logger.Get(ctx).Warn("Received " + sig.String() + ", shutting down")
			s.run(ctx)
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(signals)
		close(done)
		cancel()
	}
}

// Trigger runs the shutdown sequence as if a signal arrived.
func (s *Handler) Trigger() {
	s.mu.Lock()
	signals := s.signals
	s.mu.Unlock()

	if signals == nil {
		return
	}

	select {
	case signals <- os.Interrupt:
	default:
	}
}

func (s *Handler) run(ctx context.Context) {
	s.once.Do(func() {
		s.mu.Lock()
		hooks := slices.Clone(s.hooks)
		cancel := s.cancel
		s.hooks = nil
		s.mu.Unlock()

		graceCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), s.grace)
		defer stop()

		for _, h := range slices.Backward(hooks) {
			h(graceCtx)
		}

		cancel()
	})
}
