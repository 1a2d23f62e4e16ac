// Package checker runs one check cycle: for a snapshot of active
// subscriptions it fans out bounded-concurrency fetch, extract, persist and
// notify tasks and waits for every task to reach a terminal outcome.
//
// A task's failure never affects its siblings. Fetch failures and extraction
// misses are silent to subscribers; they are logged and counted so the
// silence is observable operationally.
package checker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-price-watcher/internal/domain"
)

var tracer = otel.Tracer("github.com/tbourn/go-price-watcher/internal/checker")

// Recorder persists one observation and updates the subscription's last
// price and last-checked time.
type Recorder interface {
	RecordObservation(ctx context.Context, subID uint, price float64, at time.Time) error
}

// Fetcher returns the body of a page or an error.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Extractor returns the price found in page content, if any. It must not
// fail; malformed content yields ok == false.
type Extractor interface {
	Extract(page []byte) (price float64, ok bool)
}

// Sink delivers a text message to a chat. Delivery is best effort.
type Sink interface {
	Deliver(ctx context.Context, chatID int64, msg string) error
}

// Runner executes check cycles. A Runner is safe to reuse across cycles but
// cycles must not run concurrently on the same limiter if MaxInFlight is to
// be meaningful.
type Runner struct {
	recorder  Recorder
	fetcher   Fetcher
	extractor Extractor
	sink      Sink
	limiter   *Limiter
	now       func() time.Time
	log       zerolog.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithNow overrides the timestamp source for observations.
func WithNow(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithLogger overrides the logger (default: the global zerolog logger).
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// NewRunner wires a Runner. A nil limiter gets NewLimiter(DefaultConcurrency).
func NewRunner(rec Recorder, f Fetcher, x Extractor, s Sink, l *Limiter, opts ...Option) *Runner {
	if l == nil {
		l = NewLimiter(DefaultConcurrency)
	}
	r := &Runner{
		recorder:  rec,
		fetcher:   f,
		extractor: x,
		sink:      s,
		limiter:   l,
		now:       time.Now,
		log:       log.Logger,
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With().Str("component", "checker").Logger()
	return r
}

// Limiter returns the runner's concurrency limiter.
func (r *Runner) Limiter() *Limiter { return r.limiter }

// RunCycle processes one snapshot of subscriptions to completion and returns
// a report of what happened to each of them.
//
// Behavior:
//   - One task is dispatched per subscription; tasks share the runner's
//     Limiter, so at most Limiter().Cap() fetches are in flight.
//   - A task runs fetch, extract, RecordObservation and, on a decrease, one
//     Sink.Deliver. Any failure ends that task only; siblings carry on.
//   - Fetch failures and extraction misses are not reported to subscribers.
//     They are logged and counted under their Outcome.
//   - RunCycle never returns early: every dispatched task reaches a terminal
//     outcome first. The limiter peak is reset at cycle start.
//   - ctx flows into fetches and storage. Callers that want a cycle that
//     survives shutdown should detach it (context.WithoutCancel) first.
//
// Return values:
//   - CycleReport with one Result per input subscription, in input order,
//     per-outcome counts, Notified/NotifyFailed and the observed MaxInFlight.
func (r *Runner) RunCycle(ctx context.Context, subs []domain.Subscription) CycleReport {
	rep := CycleReport{
		ID:       uuid.NewString(),
		Started:  r.now(),
		Total:    len(subs),
		Outcomes: make(map[string]int, len(outcomeNames)),
		Results:  make([]Result, len(subs)),
	}
	ctx, span := tracer.Start(ctx, "checker.cycle", trace.WithAttributes(
		attribute.String("cycle.id", rep.ID),
		attribute.Int("cycle.subscriptions", len(subs)),
	))
	defer span.End()

	lg := r.log.With().Str("cycle_id", rep.ID).Logger()
	r.limiter.ResetPeak()

	var wg sync.WaitGroup
	for i := range subs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rep.Results[i] = r.check(ctx, lg, subs[i])
		}(i)
	}
	wg.Wait()

	rep.Finished = r.now()
	rep.MaxInFlight = r.limiter.Peak()
	for _, res := range rep.Results {
		rep.Outcomes[res.Outcome.String()]++
		checksTotal.WithLabelValues(res.Outcome.String()).Inc()
		if res.Notified {
			rep.Notified++
		}
	}
	rep.NotifyFailed = countNotifyFailed(rep.Results)
	cycleDuration.Observe(rep.Duration().Seconds())

	span.SetAttributes(
		attribute.Int("cycle.success", rep.Count(Success)),
		attribute.Int("cycle.notified", rep.Notified),
		attribute.Int("cycle.max_in_flight", rep.MaxInFlight),
	)
	lg.Info().
		Int("total", rep.Total).
		Interface("outcomes", rep.Outcomes).
		Int("notified", rep.Notified).
		Int("max_in_flight", rep.MaxInFlight).
		Dur("duration", rep.Duration()).
		Msg("cycle finished")
	return rep
}

// check runs one subscription's task and returns its tagged Result.
//
// The limiter slot is released on every path, including panics. A panic is
// recovered here: before the observation is stored it yields InternalError,
// after that the task stays Success and the panic is kept in Result.Err.
func (r *Runner) check(ctx context.Context, lg zerolog.Logger, sub domain.Subscription) (res Result) {
	res.SubscriptionID = sub.ID
	lg = lg.With().Uint("subscription_id", sub.ID).Str("url", sub.URL).Logger()

	if err := r.limiter.Acquire(ctx); err != nil {
		res.Outcome, res.Err = InternalError, fmt.Errorf("acquire limiter: %w", err)
		lg.Error().Err(err).Msg("check abandoned")
		return res
	}
	defer r.limiter.Release()

	ctx, span := tracer.Start(ctx, "checker.check", trace.WithAttributes(
		attribute.Int64("subscription.id", int64(sub.ID)),
		attribute.String("subscription.url", sub.URL),
	))
	defer span.End()

	// persisted flips once the observation is stored; a later panic (in the
	// sink, say) must not erase that from the report.
	var persisted, delivering bool
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("panic: %v", p)
			res.Notified = false
			if !persisted {
				res.Outcome, res.Price = InternalError, 0
			}
			if delivering {
				notificationsTotal.WithLabelValues("failed").Inc()
			}
			span.SetStatus(codes.Error, "panic")
			lg.Error().
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Str("outcome", res.Outcome.String()).
				Msg("check panicked")
		}
		span.SetAttributes(attribute.String("check.outcome", res.Outcome.String()))
	}()

	body, err := r.fetcher.Fetch(ctx, sub.URL)
	if err != nil {
		res.Outcome, res.Err = FetchFailed, err
		span.RecordError(err)
		lg.Warn().Err(err).Str("outcome", res.Outcome.String()).Msg("check abandoned")
		return res
	}

	price, ok := r.extractor.Extract(body)
	if !ok {
		res.Outcome = ExtractionMiss
		lg.Info().Int("bytes", len(body)).Str("outcome", res.Outcome.String()).Msg("check abandoned")
		return res
	}

	if err := r.recorder.RecordObservation(ctx, sub.ID, price, r.now()); err != nil {
		res.Outcome, res.Err = StorageFailed, err
		span.RecordError(err)
		lg.Error().Err(err).Float64("price", price).Str("outcome", res.Outcome.String()).Msg("check abandoned")
		return res
	}
	res.Outcome, res.Price = Success, price
	persisted = true

	drop, notify := Decide(sub, sub.LastPrice, price)
	if !notify {
		lg.Debug().Float64("price", price).Msg("price recorded")
		return res
	}
	delivering = true
	if err := r.sink.Deliver(ctx, drop.ChatID, drop.Message()); err != nil {
		res.Err = fmt.Errorf("deliver: %w", err)
		notificationsTotal.WithLabelValues("failed").Inc()
		lg.Warn().Err(err).Int64("chat_id", drop.ChatID).Msg("notification not delivered")
		return res
	}
	res.Notified = true
	notificationsTotal.WithLabelValues("delivered").Inc()
	lg.Info().
		Int64("chat_id", drop.ChatID).
		Float64("old", drop.Old).
		Float64("new", drop.New).
		Float64("percent", drop.Percent).
		Msg("price drop notified")
	return res
}

func countNotifyFailed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Outcome == Success && !r.Notified && r.Err != nil {
			n++
		}
	}
	return n
}
