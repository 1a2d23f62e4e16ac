package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-price-watcher/internal/domain"
	"github.com/tbourn/go-price-watcher/internal/services"
)

type fakeService struct {
	subChat  int64
	subURL   string
	subLabel string
	subErr   error

	subs    []domain.Subscription
	listErr error

	removeID  uint
	removeErr error

	histLimit int
	hist      []domain.PriceObservation
	histErr   error
}

func (f *fakeService) Subscribe(_ context.Context, chatID int64, rawURL, label string) (*domain.Subscription, error) {
	f.subChat, f.subURL, f.subLabel = chatID, rawURL, label
	if f.subErr != nil {
		return nil, f.subErr
	}
	return &domain.Subscription{ID: 42, ChatID: chatID, URL: rawURL}, nil
}

func (f *fakeService) List(context.Context, int64) ([]domain.Subscription, error) {
	return f.subs, f.listErr
}

func (f *fakeService) Remove(_ context.Context, _ int64, id uint) error {
	f.removeID = id
	return f.removeErr
}

func (f *fakeService) History(_ context.Context, _ int64, _ uint, limit int) ([]domain.PriceObservation, error) {
	f.histLimit = limit
	return f.hist, f.histErr
}

func f64(v float64) *float64 { return &v }

func TestHandle_IgnoresPlainText(t *testing.T) {
	c := NewCommands(&fakeService{})
	if got := c.Handle(context.Background(), 1, "hello there"); got != "" {
		t.Fatalf("expected no reply, got %q", got)
	}
	if got := c.Handle(context.Background(), 1, "   "); got != "" {
		t.Fatalf("expected no reply, got %q", got)
	}
}

func TestHandle_StartAndUnknown(t *testing.T) {
	c := NewCommands(&fakeService{})
	if got := c.Handle(context.Background(), 1, "/start"); !strings.Contains(got, "/add <link>") {
		t.Fatalf("help text missing commands: %q", got)
	}
	if got := c.Handle(context.Background(), 1, "/START@PriceBot"); got != helpText {
		t.Fatalf("bot mention and case should be ignored, got %q", got)
	}
	if got := c.Handle(context.Background(), 1, "/nope"); !strings.HasPrefix(got, "Unknown command") {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestHandle_Add(t *testing.T) {
	svc := &fakeService{}
	c := NewCommands(svc)

	got := c.Handle(context.Background(), 7, "/add https://shop.example/p  Warm jacket")
	if !strings.Contains(got, "ID = 42") {
		t.Fatalf("unexpected reply: %q", got)
	}
	if svc.subChat != 7 || svc.subURL != "https://shop.example/p" || svc.subLabel != "Warm jacket" {
		t.Fatalf("unexpected args: %+v", svc)
	}

	if got := c.Handle(context.Background(), 7, "/add"); !strings.HasPrefix(got, "Example:") {
		t.Fatalf("expected usage, got %q", got)
	}

	svc.subErr = services.ErrInvalidURL
	if got := c.Handle(context.Background(), 7, "/add notalink"); !strings.Contains(got, "does not look like a link") {
		t.Fatalf("unexpected: %q", got)
	}

	svc.subErr = errors.New("db down")
	if got := c.Handle(context.Background(), 7, "/add https://a.b"); got != internalErrText {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestHandle_AddSKU(t *testing.T) {
	c := NewCommands(&fakeService{})
	got := c.Handle(context.Background(), 1, "/add_sku wb 123456")
	if !strings.Contains(got, "https://www.wildberries.ru/catalog/0/search.aspx?search=123456") {
		t.Fatalf("missing search link: %q", got)
	}
	got = c.Handle(context.Background(), 1, "/add_sku site 1")
	if !strings.Contains(got, "copy the product link directly") {
		t.Fatalf("unexpected: %q", got)
	}
	if got := c.Handle(context.Background(), 1, "/add_sku ozon"); !strings.HasPrefix(got, "Example:") {
		t.Fatalf("expected usage, got %q", got)
	}
}

func TestHandle_List(t *testing.T) {
	svc := &fakeService{}
	c := NewCommands(svc)
	if got := c.Handle(context.Background(), 1, "/list"); !strings.Contains(got, "empty") {
		t.Fatalf("unexpected: %q", got)
	}

	label := "Jacket"
	checked := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	svc.subs = []domain.Subscription{
		{ID: 2, URL: "https://a.b/2", Label: &label, LastPrice: f64(99.5), LastCheckedAt: &checked},
		{ID: 1, URL: "https://a.b/1"},
	}
	got := c.Handle(context.Background(), 1, "/list")
	want := "2) Jacket\n   price: 99.50\n   checked: 2024-05-01 10:30 UTC\n\n" +
		"1) https://a.b/1\n   price: n/a\n   checked: n/a"
	if got != want {
		t.Fatalf("list reply mismatch:\n got: %q\nwant: %q", got, want)
	}

	svc.listErr = errors.New("io")
	if got := c.Handle(context.Background(), 1, "/list"); got != internalErrText {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestHandle_Remove(t *testing.T) {
	svc := &fakeService{}
	c := NewCommands(svc)
	if got := c.Handle(context.Background(), 1, "/remove 3"); got != "✅ Removed." || svc.removeID != 3 {
		t.Fatalf("unexpected: %q id=%d", got, svc.removeID)
	}
	for _, in := range []string{"/remove", "/remove abc", "/remove 0", "/remove -1"} {
		if got := c.Handle(context.Background(), 1, in); got != "Example: /remove 3" {
			t.Fatalf("%q: expected usage, got %q", in, got)
		}
	}
	svc.removeErr = services.ErrSubscriptionNotFound
	if got := c.Handle(context.Background(), 1, "/remove 3"); got != "No subscription with that ID." {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestHandle_Price(t *testing.T) {
	svc := &fakeService{}
	c := NewCommands(svc)
	if got := c.Handle(context.Background(), 1, "/price 4"); !strings.HasPrefix(got, "No history yet") {
		t.Fatalf("unexpected: %q", got)
	}
	if svc.histLimit != services.DefaultHistoryLimit {
		t.Fatalf("history limit = %d", svc.histLimit)
	}

	at := time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC)
	svc.hist = []domain.PriceObservation{{Price: 90, ObservedAt: at}, {Price: 100, ObservedAt: at.Add(-time.Hour)}}
	got := c.Handle(context.Background(), 1, "/price 4")
	want := "Recent prices:\n90.00 (2024-01-02 03:04 UTC)\n100.00 (2024-01-02 02:04 UTC)"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	svc.histErr = services.ErrSubscriptionNotFound
	if got := c.Handle(context.Background(), 1, "/price 4"); got != "No subscription with that ID." {
		t.Fatalf("unexpected: %q", got)
	}
	if got := c.Handle(context.Background(), 1, "/price x"); got != "Example: /price 3" {
		t.Fatalf("unexpected: %q", got)
	}
}
