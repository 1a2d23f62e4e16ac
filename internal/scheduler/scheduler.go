// Package scheduler drives check cycles on a fixed interval for the life of
// the process. The interval is measured from the end of one cycle to the
// start of the next, so a slow cycle pushes the schedule out and cycles never
// overlap. A failing or panicking cycle is logged and the loop carries on.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-price-watcher/internal/checker"
	"github.com/tbourn/go-price-watcher/internal/domain"
)

// DefaultInterval is used when a non-positive interval is configured.
const DefaultInterval = 30 * time.Minute

// ErrAlreadyStarted is returned by Start when the loop is already running.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Source lists the active subscriptions for a cycle snapshot.
type Source interface {
	ListActive(ctx context.Context) ([]domain.Subscription, error)
}

// CycleRunner processes one snapshot to completion.
type CycleRunner interface {
	RunCycle(ctx context.Context, subs []domain.Subscription) checker.CycleReport
}

// Clock abstracts time so the schedule can be tested without real waits.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// State is the scheduler's loop state.
type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Status is a point-in-time view of the scheduler for the admin API.
type Status struct {
	State     string               `json:"state"`
	Interval  string               `json:"interval"`
	Cycles    int64                `json:"cycles"`
	NextRun   *time.Time           `json:"next_run,omitempty"`
	LastCycle *checker.CycleReport `json:"last_cycle,omitempty"`
	LastError string               `json:"last_error,omitempty"`
}

// Scheduler owns the background check loop.
type Scheduler struct {
	source     Source
	runner     CycleRunner
	interval   time.Duration
	clock      Clock
	runOnStart bool
	log        zerolog.Logger

	state  atomic.Int32
	cycles atomic.Int64

	mu      sync.Mutex
	last    *checker.CycleReport
	lastErr error
	next    time.Time
	stop    chan struct{}
	done    chan struct{}
	started bool
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock injects a Clock (default: wall clock).
func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithRunOnStart controls whether the first cycle starts immediately (true)
// or one interval after Run is called.
func WithRunOnStart(v bool) Option { return func(s *Scheduler) { s.runOnStart = v } }

// WithLogger overrides the logger (default: the global zerolog logger).
func WithLogger(l zerolog.Logger) Option { return func(s *Scheduler) { s.log = l } }

// New returns an idle scheduler. It does nothing until Run or Start.
func New(src Source, runner CycleRunner, interval time.Duration, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{
		source:     src,
		runner:     runner,
		interval:   interval,
		clock:      realClock{},
		runOnStart: true,
		log:        log.Logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With().Str("component", "scheduler").Logger()
	return s
}

// Start launches the loop in a goroutine and returns immediately.
//
// Return values:
//   - nil on the first call.
//   - ErrAlreadyStarted if Start or Run was already called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	go s.loop(ctx)
	return nil
}

// Run is the blocking variant of Start: it executes cycles until ctx is
// done or Stop is called, and returns ErrAlreadyStarted if the loop already
// runs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	s.loop(ctx)
	return nil
}

// Stop asks the loop to exit and waits for it.
//
// Behavior:
//   - No new cycle starts once Stop has been called. Calling Stop more than
//     once is safe.
//   - An in-flight cycle is not cancelled: its context is detached in
//     RunOnce, so Stop waits for it to fan in.
//   - Stop before Start/Run is a no-op.
//
// Return values:
//   - nil when the loop has exited.
//   - ctx.Err() when ctx expires first; the loop keeps running until the
//     current cycle ends and then exits on its own.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	s.mu.Unlock()
	if !started {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loop is the body of Start and Run.
//
// The first deadline is now (runOnStart) or now+interval. After every cycle
// the next deadline is taken from the cycle's end, never its start, so a
// cycle longer than the interval delays the next one instead of overlapping
// it. Waiting is done on the injected Clock; ctx cancellation and Stop wake
// the wait and end the loop before another cycle is started.
func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	next := s.clock.Now()
	if !s.runOnStart {
		next = next.Add(s.interval)
	}
	s.setNext(next)
	s.log.Info().Dur("interval", s.interval).Time("next_run", next).Msg("scheduler started")

	for {
		if s.stopping(ctx) {
			s.log.Info().Msg("scheduler stopped")
			return
		}
		if wait := next.Sub(s.clock.Now()); wait > 0 {
			select {
			case <-ctx.Done():
				continue
			case <-s.stop:
				continue
			case <-s.clock.After(wait):
			}
		}

		s.RunOnce(ctx)

		// Deadline for the next cycle is taken from this cycle's end.
		next = s.clock.Now().Add(s.interval)
		s.setNext(next)
	}
}

func (s *Scheduler) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// RunOnce runs a single cycle immediately: snapshot, fan out, fan in. The
// cycle's context is detached from ctx's cancellation so a shutdown never
// aborts a cycle midway. Panics are recovered and reported as errors.
func (s *Scheduler) RunOnce(ctx context.Context) (rep checker.CycleReport, err error) {
	s.state.Store(int32(Running))
	defer s.state.Store(int32(Idle))

	cctx := context.WithoutCancel(ctx)
	start := s.clock.Now()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("cycle panic: %v", p)
			s.log.Error().Interface("panic", p).Bytes("stack", debug.Stack()).Msg("cycle panicked")
		}
		s.finish(rep, err, start)
	}()

	subs, err := s.source.ListActive(cctx)
	if err != nil {
		s.log.Error().Err(err).Msg("list active subscriptions")
		return rep, fmt.Errorf("list active: %w", err)
	}
	rep = s.runner.RunCycle(cctx, subs)
	return rep, nil
}

func (s *Scheduler) finish(rep checker.CycleReport, err error, start time.Time) {
	s.cycles.Add(1)
	result := "ok"
	if err != nil {
		result = "error"
	}
	cyclesTotal.WithLabelValues(result).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err == nil {
		r := rep
		s.last = &r
	}
	s.log.Debug().Str("result", result).Dur("elapsed", s.clock.Now().Sub(start)).Msg("cycle done")
}

func (s *Scheduler) setNext(t time.Time) {
	s.mu.Lock()
	s.next = t
	s.mu.Unlock()
}

// State reports whether a cycle is currently running.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Interval returns the configured interval.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// LastReport returns the report of the most recent successful cycle.
func (s *Scheduler) LastReport() (checker.CycleReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return checker.CycleReport{}, false
	}
	return *s.last, true
}

// Status returns a snapshot for monitoring.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:     s.State().String(),
		Interval:  s.interval.String(),
		Cycles:    s.cycles.Load(),
		LastCycle: s.last,
	}
	if !s.next.IsZero() {
		n := s.next
		st.NextRun = &n
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
