package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-price-watcher/internal/domain"
)

func migratedDB(t *testing.T) *Store {
	t.Helper()
	return NewStore(newTestDB(t, &domain.Subscription{}, &domain.PriceObservation{}))
}

func strptr(s string) *string { return &s }

func TestCreateSubscription_Error_NoTable(t *testing.T) {
	db := newTestDB(t)
	s, err := CreateSubscription(context.Background(), db, 1, "https://x", nil)
	if err == nil || s != nil {
		t.Fatalf("expected error creating without table, got sub=%v err=%v", s, err)
	}
}

func TestCreateSubscription_Success_PersistsAndSetsFields(t *testing.T) {
	st := migratedDB(t)
	ctx := context.Background()

	s, err := CreateSubscription(ctx, st.DB, 42, "https://shop/item", strptr("Jacket"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID == 0 || s.ChatID != 42 || !s.Active || s.LastPrice != nil || s.LastCheckedAt != nil {
		t.Fatalf("unexpected subscription: %+v", s)
	}

	got, err := GetSubscription(ctx, st.DB, 42, s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.URL != "https://shop/item" || got.Label == nil || *got.Label != "Jacket" {
		t.Fatalf("readback mismatch: %+v", got)
	}
}

func TestGetSubscription_ScopedToChat(t *testing.T) {
	st := migratedDB(t)
	ctx := context.Background()
	s, _ := CreateSubscription(ctx, st.DB, 1, "https://a", nil)

	if _, err := GetSubscription(ctx, st.DB, 2, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign chat, got %v", err)
	}
}

func TestListSubscriptions_ActiveOnly_NewestFirst(t *testing.T) {
	st := migratedDB(t)
	ctx := context.Background()

	a, _ := CreateSubscription(ctx, st.DB, 1, "https://a", nil)
	b, _ := CreateSubscription(ctx, st.DB, 1, "https://b", nil)
	c, _ := CreateSubscription(ctx, st.DB, 1, "https://c", nil)
	_, _ = CreateSubscription(ctx, st.DB, 2, "https://other", nil)

	if err := DeactivateSubscription(ctx, st.DB, 1, b.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	got, err := ListSubscriptions(ctx, st.DB, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].ID != c.ID || got[1].ID != a.ID {
		t.Fatalf("unexpected listing: %+v", got)
	}
}

func TestDeactivateSubscription_NotFound_And_Idempotence(t *testing.T) {
	st := migratedDB(t)
	ctx := context.Background()
	s, _ := CreateSubscription(ctx, st.DB, 1, "https://a", nil)

	if err := DeactivateSubscription(ctx, st.DB, 2, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign chat: expected ErrNotFound, got %v", err)
	}
	if err := DeactivateSubscription(ctx, st.DB, 1, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing id: expected ErrNotFound, got %v", err)
	}
	if err := DeactivateSubscription(ctx, st.DB, 1, s.ID); err != nil {
		t.Fatalf("first deactivate: %v", err)
	}
	if err := DeactivateSubscription(ctx, st.DB, 1, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second deactivate: expected ErrNotFound, got %v", err)
	}

	// Logical deletion: the row still exists.
	got, err := GetSubscription(ctx, st.DB, 1, s.ID)
	if err != nil || got.Active {
		t.Fatalf("expected inactive row to remain, got %+v err=%v", got, err)
	}
}

func TestListActive_AcrossChats(t *testing.T) {
	st := migratedDB(t)
	ctx := context.Background()

	a, _ := CreateSubscription(ctx, st.DB, 1, "https://a", nil)
	b, _ := CreateSubscription(ctx, st.DB, 2, "https://b", nil)
	c, _ := CreateSubscription(ctx, st.DB, 3, "https://c", nil)
	_ = DeactivateSubscription(ctx, st.DB, 2, b.ID)

	got, err := st.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	ids := map[uint]bool{}
	for _, s := range got {
		ids[s.ID] = true
	}
	if len(got) != 2 || !ids[a.ID] || !ids[c.ID] {
		t.Fatalf("unexpected active set: %+v", got)
	}
}

func TestRecordObservation_UpdatesLastPriceAndAppendsHistory(t *testing.T) {
	st := migratedDB(t)
	ctx := context.Background()
	s, _ := CreateSubscription(ctx, st.DB, 1, "https://a", nil)

	t1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(30 * time.Minute)
	if err := st.RecordObservation(ctx, s.ID, 100, t1); err != nil {
		t.Fatalf("record 1: %v", err)
	}
	if err := st.RecordObservation(ctx, s.ID, 90, t2); err != nil {
		t.Fatalf("record 2: %v", err)
	}

	got, _ := GetSubscription(ctx, st.DB, 1, s.ID)
	if got.LastPrice == nil || *got.LastPrice != 90 {
		t.Fatalf("LastPrice = %v; want 90", got.LastPrice)
	}
	if got.LastCheckedAt == nil || !got.LastCheckedAt.Equal(t2) {
		t.Fatalf("LastCheckedAt = %v; want %v", got.LastCheckedAt, t2)
	}

	hist, err := ListHistory(ctx, st.DB, 1, s.ID, 5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 || hist[0].Price != 90 || hist[1].Price != 100 {
		t.Fatalf("unexpected history: %+v", hist)
	}
	// Last price equals the newest history row.
	if hist[0].Price != *got.LastPrice {
		t.Fatalf("last price %v does not match newest observation %v", *got.LastPrice, hist[0].Price)
	}
}

func TestRecordObservation_MissingSubscription_RollsBack(t *testing.T) {
	st := migratedDB(t)
	ctx := context.Background()

	if err := st.RecordObservation(ctx, 12345, 10, time.Now()); err == nil {
		t.Fatalf("expected error for missing subscription")
	}
	var n int64
	st.DB.Model(&domain.PriceObservation{}).Count(&n)
	if n != 0 {
		t.Fatalf("expected no observation rows after rollback, got %d", n)
	}
}

func TestListHistory_InsertionOrder_Limit_AndChatScope(t *testing.T) {
	st := migratedDB(t)
	ctx := context.Background()
	s, _ := CreateSubscription(ctx, st.DB, 1, "https://a", nil)

	// Timestamps deliberately go backwards; order must follow insertion.
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range []float64{10, 20, 30, 40, 50, 60, 70} {
		if err := st.RecordObservation(ctx, s.ID, p, now.Add(-time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	hist, err := ListHistory(ctx, st.DB, 1, s.ID, 5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	want := []float64{70, 60, 50, 40, 30}
	if len(hist) != len(want) {
		t.Fatalf("len(history) = %d; want %d", len(hist), len(want))
	}
	for i, w := range want {
		if hist[i].Price != w {
			t.Fatalf("history[%d] = %v; want %v", i, hist[i].Price, w)
		}
	}

	other, err := ListHistory(ctx, st.DB, 2, s.ID, 5)
	if err != nil {
		t.Fatalf("History foreign chat: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected empty history for foreign chat, got %d rows", len(other))
	}
}
