package checker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-price-watcher/internal/domain"
)

// ---- fakes ----

type fakeFetcher struct {
	mu      sync.Mutex
	bodies  map[string]string
	errs    map[string]error
	delay   time.Duration
	cur     int32
	maxSeen int32
	calls   int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	n := atomic.AddInt32(&f.cur, 1)
	defer atomic.AddInt32(&f.cur, -1)
	atomic.AddInt32(&f.calls, 1)
	for {
		m := atomic.LoadInt32(&f.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxSeen, m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	return []byte(f.bodies[url]), nil
}

// plainExtractor reads the whole body as a number; "panic" panics.
type plainExtractor struct{}

func (plainExtractor) Extract(page []byte) (float64, bool) {
	s := string(page)
	if s == "panic" {
		panic("boom")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

type fakeRecorder struct {
	mu   sync.Mutex
	obs  map[uint][]float64
	fail map[uint]error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{obs: map[uint][]float64{}, fail: map[uint]error{}}
}

func (r *fakeRecorder) RecordObservation(_ context.Context, id uint, price float64, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[id]; err != nil {
		return err
	}
	r.obs[id] = append(r.obs[id], price)
	return nil
}

func (r *fakeRecorder) last(id uint) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.obs[id]
	if len(h) == 0 {
		return 0, false
	}
	return h[len(h)-1], true
}

type sent struct {
	chatID int64
	msg    string
}

type fakeSink struct {
	mu   sync.Mutex
	msgs []sent
	err  error
}

func (s *fakeSink) Deliver(_ context.Context, chatID int64, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, sent{chatID, msg})
	return nil
}

type panicSink struct{}

func (panicSink) Deliver(context.Context, int64, string) error { panic("sink exploded") }

func fptr(f float64) *float64 { return &f }

func sub(id uint, url string, last *float64) domain.Subscription {
	return domain.Subscription{ID: id, ChatID: int64(100 + id), URL: url, LastPrice: last, Active: true}
}

func newTestRunner(f Fetcher, rec Recorder, s Sink, cap int) *Runner {
	return NewRunner(rec, f, plainExtractor{}, s, NewLimiter(cap), WithLogger(zerolog.Nop()))
}

// ---- Decide / Message ----

func TestDecide(t *testing.T) {
	s := domain.Subscription{ChatID: 1, URL: "https://shop/x"}
	cases := []struct {
		name   string
		old    *float64
		price  float64
		notify bool
		diff   float64
		pct    float64
	}{
		{"first observation", nil, 50, false, 0, 0},
		{"decrease", fptr(100), 90, true, 10, 10},
		{"unchanged", fptr(100), 100, false, 0, 0},
		{"increase", fptr(100), 110, false, 0, 0},
		{"zero old guarded", fptr(0), -1, true, 1, 0},
	}
	for _, tc := range cases {
		d, ok := Decide(s, tc.old, tc.price)
		if ok != tc.notify {
			t.Fatalf("%s: notify = %v; want %v", tc.name, ok, tc.notify)
		}
		if ok && (d.Diff != tc.diff || d.Percent != tc.pct) {
			t.Fatalf("%s: diff/pct = %v/%v; want %v/%v", tc.name, d.Diff, d.Percent, tc.diff, tc.pct)
		}
	}
}

func TestDropMessage_Format(t *testing.T) {
	label := "Jacket"
	s := domain.Subscription{ChatID: 9, URL: "https://shop/jacket", Label: &label}
	d, ok := Decide(s, fptr(100), 90)
	if !ok {
		t.Fatalf("expected drop")
	}
	msg := d.Message()
	for _, want := range []string{"Jacket\n", "Was: 100.00", "Now: 90.00", "Drop: -10.00 (-10.0%)", "Link: https://shop/jacket"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}

	// Without label the URL is the display name.
	d, _ = Decide(domain.Subscription{URL: "https://shop/u"}, fptr(3), 2)
	if !strings.Contains(d.Message(), "\nhttps://shop/u\n") {
		t.Fatalf("expected URL as name:\n%s", d.Message())
	}
}

func TestOutcome_String(t *testing.T) {
	want := map[Outcome]string{
		Success: "success", ExtractionMiss: "extraction_miss", FetchFailed: "fetch_failed",
		StorageFailed: "storage_failed", InternalError: "internal_error", Outcome(99): "unknown",
	}
	for o, s := range want {
		if o.String() != s {
			t.Fatalf("Outcome(%d).String() = %q; want %q", o, o.String(), s)
		}
	}
}

// ---- RunCycle ----

func TestRunCycle_DropNotifies_UnchangedAndIncreaseDoNot(t *testing.T) {
	f := &fakeFetcher{bodies: map[string]string{"u1": "90", "u2": "100", "u3": "110"}}
	rec := newFakeRecorder()
	sink := &fakeSink{}
	r := newTestRunner(f, rec, sink, 5)

	rep := r.RunCycle(context.Background(), []domain.Subscription{
		sub(1, "u1", fptr(100)),
		sub(2, "u2", fptr(100)),
		sub(3, "u3", fptr(100)),
	})

	if rep.Count(Success) != 3 || rep.Notified != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if len(sink.msgs) != 1 || sink.msgs[0].chatID != 101 {
		t.Fatalf("expected one notification to chat 101, got %+v", sink.msgs)
	}
	if !strings.Contains(sink.msgs[0].msg, "-10.00 (-10.0%)") {
		t.Fatalf("unexpected message: %s", sink.msgs[0].msg)
	}
	// Every successful check is persisted, notable or not.
	for id, want := range map[uint]float64{1: 90, 2: 100, 3: 110} {
		if got, ok := rec.last(id); !ok || got != want {
			t.Fatalf("sub %d: recorded %v (ok=%v); want %v", id, got, ok, want)
		}
	}
}

func TestRunCycle_FirstObservation_RecordsWithoutNotification(t *testing.T) {
	f := &fakeFetcher{bodies: map[string]string{"u": "50"}}
	rec := newFakeRecorder()
	sink := &fakeSink{}

	rep := newTestRunner(f, rec, sink, 5).RunCycle(context.Background(), []domain.Subscription{sub(1, "u", nil)})

	if got, ok := rec.last(1); !ok || got != 50 {
		t.Fatalf("expected observation 50, got %v ok=%v", got, ok)
	}
	if len(sink.msgs) != 0 || rep.Notified != 0 {
		t.Fatalf("no notification expected on first observation, got %+v", sink.msgs)
	}
	if rep.Results[0].Outcome != Success || rep.Results[0].Price != 50 {
		t.Fatalf("unexpected result: %+v", rep.Results[0])
	}
}

func TestRunCycle_OneFetchFailure_OthersRecorded(t *testing.T) {
	f := &fakeFetcher{
		bodies: map[string]string{"a": "1", "b": "2", "c": "3", "d": "4", "e": "5"},
		errs:   map[string]error{"c": errors.New("connection reset")},
	}
	rec := newFakeRecorder()
	subs := []domain.Subscription{sub(1, "a", nil), sub(2, "b", nil), sub(3, "c", nil), sub(4, "d", nil), sub(5, "e", nil)}

	rep := newTestRunner(f, rec, &fakeSink{}, 5).RunCycle(context.Background(), subs)

	if rep.Total != 5 || rep.Count(Success) != 4 || rep.Count(FetchFailed) != 1 {
		t.Fatalf("unexpected outcomes: %+v", rep.Outcomes)
	}
	for _, id := range []uint{1, 2, 4, 5} {
		if _, ok := rec.last(id); !ok {
			t.Fatalf("sub %d should be recorded", id)
		}
	}
	if _, ok := rec.last(3); ok {
		t.Fatalf("failed fetch must record nothing")
	}
	if rep.Results[2].Err == nil {
		t.Fatalf("fetch failure should carry its cause")
	}
}

func TestRunCycle_ExtractionMiss_IsSilent(t *testing.T) {
	f := &fakeFetcher{bodies: map[string]string{"u": "<html>no price</html>"}}
	rec := newFakeRecorder()
	sink := &fakeSink{}

	rep := newTestRunner(f, rec, sink, 5).RunCycle(context.Background(), []domain.Subscription{sub(1, "u", fptr(10))})

	if rep.Count(ExtractionMiss) != 1 || len(sink.msgs) != 0 {
		t.Fatalf("expected silent extraction miss, got %+v msgs=%v", rep.Outcomes, sink.msgs)
	}
	if _, ok := rec.last(1); ok {
		t.Fatalf("extraction miss must record nothing")
	}
}

func TestRunCycle_StorageFailure_SkipsNotification(t *testing.T) {
	f := &fakeFetcher{bodies: map[string]string{"u": "5"}}
	rec := newFakeRecorder()
	rec.fail[1] = errors.New("disk full")
	sink := &fakeSink{}

	rep := newTestRunner(f, rec, sink, 5).RunCycle(context.Background(), []domain.Subscription{sub(1, "u", fptr(10))})

	if rep.Count(StorageFailed) != 1 || len(sink.msgs) != 0 {
		t.Fatalf("storage failure must not notify: %+v msgs=%v", rep.Outcomes, sink.msgs)
	}
}

func TestRunCycle_DeliveryFailure_DoesNotFailCheck(t *testing.T) {
	f := &fakeFetcher{bodies: map[string]string{"u": "5", "v": "1"}}
	rec := newFakeRecorder()
	sink := &fakeSink{err: errors.New("telegram down")}

	rep := newTestRunner(f, rec, sink, 5).RunCycle(context.Background(),
		[]domain.Subscription{sub(1, "u", fptr(10)), sub(2, "v", fptr(2))})

	if rep.Count(Success) != 2 || rep.Notified != 0 || rep.NotifyFailed != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestRunCycle_ConcurrencyNeverExceedsCap(t *testing.T) {
	const n, limit = 25, 3
	f := &fakeFetcher{bodies: map[string]string{}, delay: 15 * time.Millisecond}
	subs := make([]domain.Subscription, 0, n)
	for i := 1; i <= n; i++ {
		u := fmt.Sprintf("u%d", i)
		f.bodies[u] = "1"
		subs = append(subs, sub(uint(i), u, nil))
	}
	r := newTestRunner(f, newFakeRecorder(), &fakeSink{}, limit)

	rep := r.RunCycle(context.Background(), subs)

	if got := atomic.LoadInt32(&f.maxSeen); got > limit || got < 1 {
		t.Fatalf("observed %d concurrent fetches; cap is %d", got, limit)
	}
	if rep.MaxInFlight > limit || rep.MaxInFlight < 1 {
		t.Fatalf("limiter peak %d outside [1,%d]", rep.MaxInFlight, limit)
	}
	if r.Limiter().InFlight() != 0 {
		t.Fatalf("all slots must be released, in flight = %d", r.Limiter().InFlight())
	}
	if int(atomic.LoadInt32(&f.calls)) != n || rep.Count(Success) != n {
		t.Fatalf("expected %d completed checks, got %+v", n, rep.Outcomes)
	}
}

func TestRunCycle_PanicIsolated_AndSlotReleased(t *testing.T) {
	f := &fakeFetcher{bodies: map[string]string{"ok1": "1", "bad": "panic", "ok2": "2"}}
	rec := newFakeRecorder()
	r := newTestRunner(f, rec, &fakeSink{}, 1)

	rep := r.RunCycle(context.Background(), []domain.Subscription{sub(1, "ok1", nil), sub(2, "bad", nil), sub(3, "ok2", nil)})

	if rep.Count(InternalError) != 1 || rep.Count(Success) != 2 {
		t.Fatalf("unexpected outcomes: %+v", rep.Outcomes)
	}
	if r.Limiter().InFlight() != 0 {
		t.Fatalf("slot leaked after panic")
	}
	// The runner is reusable after a panic.
	rep = r.RunCycle(context.Background(), []domain.Subscription{sub(1, "ok1", nil)})
	if rep.Count(Success) != 1 {
		t.Fatalf("second cycle failed: %+v", rep.Outcomes)
	}
}

func TestRunCycle_PanicAfterRecord_KeepsSuccess(t *testing.T) {
	f := &fakeFetcher{bodies: map[string]string{"u": "90"}}
	rec := newFakeRecorder()
	r := newTestRunner(f, rec, panicSink{}, 2)
	failedBefore := testutil.ToFloat64(notificationsTotal.WithLabelValues("failed"))

	rep := r.RunCycle(context.Background(), []domain.Subscription{sub(1, "u", fptr(100))})

	if rep.Count(Success) != 1 || rep.Count(InternalError) != 0 {
		t.Fatalf("stored observation must count as success: %+v", rep.Outcomes)
	}
	res := rep.Results[0]
	if res.Price != 90 || res.Notified || res.Err == nil || !strings.Contains(res.Err.Error(), "sink exploded") {
		t.Fatalf("unexpected result: %+v", res)
	}
	if rep.NotifyFailed != 1 {
		t.Fatalf("NotifyFailed = %d; want 1", rep.NotifyFailed)
	}
	if got := testutil.ToFloat64(notificationsTotal.WithLabelValues("failed")); got != failedBefore+1 {
		t.Fatalf("failed notifications = %v; want %v", got, failedBefore+1)
	}
	if last, ok := rec.last(1); !ok || last != 90 {
		t.Fatalf("observation not persisted: %v %v", last, ok)
	}
	if r.Limiter().InFlight() != 0 {
		t.Fatalf("slot leaked after sink panic")
	}
}

func TestRunCycle_EmptySnapshot(t *testing.T) {
	rep := newTestRunner(&fakeFetcher{}, newFakeRecorder(), &fakeSink{}, 2).RunCycle(context.Background(), nil)
	if rep.Total != 0 || rep.ID == "" || rep.Finished.Before(rep.Started) {
		t.Fatalf("unexpected empty report: %+v", rep)
	}
}

// ---- Limiter ----

func TestLimiter_DefaultsAndCancelledAcquire(t *testing.T) {
	if NewLimiter(0).Cap() != DefaultConcurrency {
		t.Fatalf("default cap should be %d", DefaultConcurrency)
	}
	l := NewLimiter(1)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Acquire(ctx); err == nil {
		t.Fatalf("expected error acquiring a saturated limiter with a cancelled context")
	}
	if l.InFlight() != 1 || l.Peak() != 1 {
		t.Fatalf("in flight/peak = %d/%d; want 1/1", l.InFlight(), l.Peak())
	}
	l.Release()
	if prev := l.ResetPeak(); prev != 1 || l.Peak() != 0 {
		t.Fatalf("ResetPeak: prev=%d peak=%d", prev, l.Peak())
	}
}

func TestLimiter_GaugeTracksInFlight(t *testing.T) {
	l := NewLimiter(4)
	for i := 0; i < 3; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire: %v", err)
		}
	}
	if got := testutil.ToFloat64(fetchInflight); got != 3 {
		t.Fatalf("gauge = %v; want 3", got)
	}
	for i := 0; i < 3; i++ {
		l.Release()
	}

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			l.Release()
		}()
	}
	wg.Wait()
	if got := testutil.ToFloat64(fetchInflight); got != 0 || l.InFlight() != 0 {
		t.Fatalf("gauge = %v, in flight = %d after all releases; want 0", got, l.InFlight())
	}
}
