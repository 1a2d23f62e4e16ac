package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type idemSeen struct {
	key  string
	ok   bool
	rep  bool
	skip bool
}

func idemRouter(opts IdempotencyOptions, lookup IdempotencyLookup, seen *idemSeen) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IdempotencyValidator(opts, lookup))
	h := func(c *gin.Context) {
		seen.key, seen.ok = GetIdempotencyKey(c)
		seen.rep, seen.skip = IsReplay(c), IsRateBypass(c)
		c.Status(http.StatusOK)
	}
	r.POST("/chats/:chat_id/subscriptions", h)
	r.POST("/other", h)
	return r
}

func TestIdempotencyValidator_NoHeader(t *testing.T) {
	called := false
	lookup := func(context.Context, int64, string, time.Time) (bool, error) { called = true; return true, nil }
	var seen idemSeen
	r := idemRouter(IdempotencyOptions{}, lookup, &seen)

	if w := serve(r, http.MethodPost, "/chats/1/subscriptions", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if seen.ok || seen.rep || seen.skip || called {
		t.Fatalf("expected pass-through, got %+v called=%v", seen, called)
	}
}

func TestIdempotencyValidator_RejectsBadKeys(t *testing.T) {
	var seen idemSeen
	r := idemRouter(IdempotencyOptions{MaxLen: 8}, nil, &seen)

	for _, key := range []string{"has space", "ünïcode", "semi;colon", strings.Repeat("a", 9)} {
		w := serve(r, http.MethodPost, "/chats/1/subscriptions", map[string]string{HeaderIdempotencyKey: key})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("key %q: status = %d", key, w.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["code"] != "bad_idempotency_key" {
			t.Fatalf("key %q: body %s", key, w.Body.String())
		}
	}
}

func TestIdempotencyValidator_CustomPattern(t *testing.T) {
	var seen idemSeen
	r := idemRouter(IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, nil, &seen)

	if w := serve(r, http.MethodPost, "/other", map[string]string{HeaderIdempotencyKey: "abc"}); w.Code != http.StatusBadRequest {
		t.Fatalf("letters should fail custom pattern, got %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/other", map[string]string{HeaderIdempotencyKey: "123"}); w.Code != http.StatusOK || seen.key != "123" {
		t.Fatalf("digits: %d %+v", w.Code, seen)
	}
}

func TestIdempotencyValidator_ReplayFlags(t *testing.T) {
	var gotChat int64
	var gotKey string
	lookup := func(_ context.Context, chatID int64, key string, _ time.Time) (bool, error) {
		gotChat, gotKey = chatID, key
		return key == "k-seen", nil
	}
	var seen idemSeen
	r := idemRouter(IdempotencyOptions{}, lookup, &seen)

	serve(r, http.MethodPost, "/chats/42/subscriptions", map[string]string{HeaderIdempotencyKey: " k-seen "})
	if !seen.ok || seen.key != "k-seen" || !seen.rep || !seen.skip {
		t.Fatalf("expected replay flags, got %+v", seen)
	}
	if gotChat != 42 || gotKey != "k-seen" {
		t.Fatalf("lookup args %d/%q", gotChat, gotKey)
	}

	serve(r, http.MethodPost, "/chats/42/subscriptions", map[string]string{HeaderIdempotencyKey: "k-new"})
	if !seen.ok || seen.rep || seen.skip {
		t.Fatalf("new key must not be a replay: %+v", seen)
	}
}

func TestIdempotencyValidator_LookupSkippedOrFailing(t *testing.T) {
	calls := 0
	lookup := func(context.Context, int64, string, time.Time) (bool, error) {
		calls++
		return true, errors.New("db down")
	}
	var seen idemSeen
	r := idemRouter(IdempotencyOptions{}, lookup, &seen)

	// no :chat_id on the route
	serve(r, http.MethodPost, "/other", map[string]string{HeaderIdempotencyKey: "k1"})
	if calls != 0 || !seen.ok || seen.rep {
		t.Fatalf("lookup should be skipped without chat_id: calls=%d %+v", calls, seen)
	}
	// non-numeric chat id
	serve(r, http.MethodPost, "/chats/abc/subscriptions", map[string]string{HeaderIdempotencyKey: "k1"})
	if calls != 0 {
		t.Fatalf("lookup should be skipped for bad chat_id")
	}
	// errors never mark a replay
	serve(r, http.MethodPost, "/chats/1/subscriptions", map[string]string{HeaderIdempotencyKey: "k1"})
	if calls != 1 || seen.rep || seen.skip {
		t.Fatalf("failed lookup must not flag replay: calls=%d %+v", calls, seen)
	}
}
