package proximity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jangxx/UniversalTrackerMarkers/internal/vr"
)

// DefaultInterval is the tick period, roughly 50 Hz.
const DefaultInterval = 20 * time.Millisecond

// Target receives every snapshot. ApplyFade writes alpha values for the
// proximity-enabled pairs, PlaceLabels moves the serial label overlays.
type Target interface {
	ApplyFade(s Snapshot) error
	PlaceLabels(s Snapshot) error
}

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Dependencies holds everything the scheduler needs.
type Dependencies struct {
	System   vr.System
	Target   Target
	Logger   Logger
	Interval time.Duration
}

// Scheduler runs the fade loop. Start and Stop may be called from any
// goroutine.
type Scheduler struct {
	deps Dependencies

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	ticks    metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

// New creates a stopped scheduler.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(deps Dependencies) (*Scheduler, error) {
	if deps.System == nil || deps.Target == nil {
		return nil, errors.New("proximity: system and target are required")
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}

	s := &Scheduler{deps: deps}
	m := meter()

	var err error
	s.ticks, err = m.Int64Counter(
		"proximity.ticks",
		metric.WithDescription("Total fade ticks run"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick counter: %w", err)
	}

	s.failures, err = m.Int64Counter(
		"proximity.tick.failures",
		metric.WithDescription("Total fade ticks that returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failure counter: %w", err)
	}

	s.duration, err = m.Float64Histogram(
		"proximity.tick.duration",
		metric.WithDescription("Time spent in one fade tick"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return s, nil
}

// Start spawns the loop unless it is already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(loopCtx, s.done)

	s.logInfo("proximity loop started", "interval", s.deps.Interval)
}

// Stop cancels the loop and waits until it has exited. After Stop returns
// no further tick runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()
	<-done

	s.logInfo("proximity loop stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.exited(done)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// a tick that raced with cancellation is dropped
		if ctx.Err() != nil {
			return
		}

		if err := s.Tick(); err != nil && s.deps.Logger != nil {
			s.deps.Logger.Warn("proximity tick failed", "error", err)
		}
	}
}

// exited clears the running state when the loop ended because its parent
// context was cancelled. After Stop the state is already cleared.
func (s *Scheduler) exited(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != done {
		return
	}
	s.cancel()
	s.running = false
	s.cancel = nil
	s.done = nil
}

// Tick samples the runtime once and hands the snapshot to the target.
// Fading and label placement are independent; both errors are returned.
func (s *Scheduler) Tick() error {
	start := time.Now()
	ctx := context.Background()

	snap := Capture(s.deps.System)
	err := errors.Join(
		s.deps.Target.ApplyFade(snap),
		s.deps.Target.PlaceLabels(snap),
	)

	s.ticks.Add(ctx, 1)
	s.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000.0)
	if err != nil {
		s.failures.Add(ctx, 1, metric.WithAttributes(attribute.Bool("overlay", errors.Is(err, vr.ErrOverlayOperationFailed))))
	}

	return err
}

func (s *Scheduler) logInfo(msg string, kv ...any) {
	if s.deps.Logger != nil {
		s.deps.Logger.Info(msg, kv...)
	}
}
