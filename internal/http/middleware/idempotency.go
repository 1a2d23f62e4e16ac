package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client key that makes a POST safe to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set on responses served from an earlier
// request with the same key.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the key accepted by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// IsReplay reports whether a live record already exists for the request's
// (chat_id, key).
func IsReplay(c *gin.Context) bool { return c.GetBool(ctxKeyIdemReplay) }

// IsRateBypass reports whether the rate limiter should let the request
// through without spending a token.
func IsRateBypass(c *gin.Context) bool { return c.GetBool(ctxKeyRateBypass) }

// IdempotencyOptions configures key validation.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen int
	// Pattern restricts the key alphabet; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether a non-expired record exists for
// (chatID, key) at now. TTLs are enforced by the implementation.
type IdempotencyLookup func(ctx context.Context, chatID int64, key string, now time.Time) (bool, error)

// IdempotencyValidator checks the Idempotency-Key header and marks replays.
//
// Behavior:
//   - No header: pass through untouched.
//   - Header too long or outside the allowed alphabet: 400 bad_idempotency_key.
//   - Valid header: the key is stored for GetIdempotencyKey. When the route
//     has a numeric :chat_id and lookup finds a live record, the request is
//     flagged as a replay and exempted from rate limiting.
//
// Lookup errors are ignored; the handler still deduplicates in storage.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(RequestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			if chatID, err := strconv.ParseInt(c.Param("chat_id"), 10, 64); err == nil {
				if found, err := lookup(c.Request.Context(), chatID, key, time.Now().UTC()); err == nil && found {
					c.Set(ctxKeyIdemReplay, true)
					c.Set(ctxKeyRateBypass, true)
				}
			}
		}
		c.Next()
	}
}
