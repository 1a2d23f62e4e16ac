// Package services – SubscriptionService
//
// This file implements the SubscriptionService, which manages the lifecycle of
// price subscriptions on behalf of a chat: subscribing to a page, listing and
// removing subscriptions, and reading a bounded recent price history. URLs
// are validated and labels normalized before they reach storage.
//
// Service-level errors (e.g., ErrSubscriptionNotFound) are returned for
// predictable cases so the bot and HTTP handlers can map them consistently.
package services

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-price-watcher/internal/domain"
	"github.com/tbourn/go-price-watcher/internal/repo"
	"github.com/tbourn/go-price-watcher/internal/utils"
)

// SubscriptionRepo defines the repository contract required by
// SubscriptionService.
type SubscriptionRepo interface {
	// CreateSubscription inserts a new active subscription.
	CreateSubscription(ctx context.Context, db *gorm.DB, chatID int64, url string, label *string) (*domain.Subscription, error)

	// ListSubscriptions returns a chat's active subscriptions, newest first.
	ListSubscriptions(ctx context.Context, db *gorm.DB, chatID int64) ([]domain.Subscription, error)

	// GetSubscription fetches one subscription scoped to the chat.
	GetSubscription(ctx context.Context, db *gorm.DB, chatID int64, id uint) (*domain.Subscription, error)

	// DeactivateSubscription clears the active flag.
	DeactivateSubscription(ctx context.Context, db *gorm.DB, chatID int64, id uint) error

	// ListHistory returns the most recent observations, newest first.
	ListHistory(ctx context.Context, db *gorm.DB, chatID int64, subID uint, limit int) ([]domain.PriceObservation, error)

	// SubscriptionsStats returns count and latest UpdatedAt for ETags.
	SubscriptionsStats(ctx context.Context, db *gorm.DB, chatID int64) (int64, *time.Time, error)

	// GetIdempotency returns the live record for (chatID, key).
	GetIdempotency(ctx context.Context, db *gorm.DB, chatID int64, key string, now time.Time) (*domain.Idempotency, error)

	// CreateSubscriptionOnce stores a subscription together with its
	// idempotency record; repo.ErrDuplicate when the key is already taken.
	CreateSubscriptionOnce(ctx context.Context, db *gorm.DB, chatID int64, key, url string, label *string, ttl time.Duration) (*domain.Subscription, error)
}

// Defaults for SubscriptionService.
const (
	DefaultHistoryLimit = 5
	MaxHistoryLimit     = 100
	DefaultLabelMaxLen  = 120

	// DefaultIdempotencyTTL is how long an Idempotency-Key keeps replaying
	// the subscription it created.
	DefaultIdempotencyTTL = 24 * time.Hour
)

// SubscriptionService provides subscription operations for one chat at a
// time. Every call is scoped by chat id; a chat never sees another chat's
// subscriptions.
type SubscriptionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the subscription repository used by this service.
	Repo SubscriptionRepo

	// HistoryLimit is used when History is called with limit <= 0.
	HistoryLimit int
	// LabelMaxLen caps stored labels by rune length.
	LabelMaxLen int
	// IdempotencyTTL bounds how long SubscribeOnce replays a key.
	IdempotencyTTL time.Duration
}

// NewSubscriptionService constructs a SubscriptionService with defaults.
func NewSubscriptionService(db *gorm.DB, r SubscriptionRepo) *SubscriptionService {
	return &SubscriptionService{
		DB:             db,
		Repo:           r,
		HistoryLimit:   DefaultHistoryLimit,
		LabelMaxLen:    DefaultLabelMaxLen,
		IdempotencyTTL: DefaultIdempotencyTTL,
	}
}

// Subscribe validates rawURL and stores a new subscription. A blank label is
// stored as no label.
func (s *SubscriptionService) Subscribe(ctx context.Context, chatID int64, rawURL, label string) (*domain.Subscription, error) {
	u, lbl, err := s.prepare(rawURL, label)
	if err != nil {
		return nil, err
	}
	return s.Repo.CreateSubscription(ctx, s.DB, chatID, u, lbl)
}

// SubscribeOnce is Subscribe guarded by a client-supplied idempotency key.
//
// Behavior:
//   - Blank key: identical to Subscribe.
//   - Key seen before for this chat (and not expired): nothing is written;
//     the subscription created by the first request is returned with
//     replayed == true.
//   - New key: the subscription and the key are stored atomically. If a
//     concurrent request with the same key wins the race, its subscription
//     is returned as a replay.
//
// The URL is validated first, so an invalid payload is rejected even when
// its key was used before.
func (s *SubscriptionService) SubscribeOnce(ctx context.Context, chatID int64, key, rawURL, label string) (sub *domain.Subscription, replayed bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		sub, err = s.Subscribe(ctx, chatID, rawURL, label)
		return sub, false, err
	}
	u, lbl, err := s.prepare(rawURL, label)
	if err != nil {
		return nil, false, err
	}

	sub, err = s.replay(ctx, chatID, key)
	switch {
	case err == nil:
		return sub, true, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, err
	}

	sub, err = s.Repo.CreateSubscriptionOnce(ctx, s.DB, chatID, key, u, lbl, s.idempotencyTTL())
	if errors.Is(err, repo.ErrDuplicate) {
		sub, err = s.replay(ctx, chatID, key)
		return sub, err == nil, err
	}
	return sub, false, err
}

// KnownKey reports whether key still replays a subscription for chatID.
func (s *SubscriptionService) KnownKey(ctx context.Context, chatID int64, key string, now time.Time) (bool, error) {
	_, err := s.Repo.GetIdempotency(ctx, s.DB, chatID, strings.TrimSpace(key), now)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		return false, err
	}
}

// replay loads the subscription recorded for (chatID, key).
func (s *SubscriptionService) replay(ctx context.Context, chatID int64, key string) (*domain.Subscription, error) {
	rec, err := s.Repo.GetIdempotency(ctx, s.DB, chatID, key, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return s.Repo.GetSubscription(ctx, s.DB, chatID, rec.SubscriptionID)
}

func (s *SubscriptionService) idempotencyTTL() time.Duration {
	if s.IdempotencyTTL > 0 {
		return s.IdempotencyTTL
	}
	return DefaultIdempotencyTTL
}

// prepare validates the URL and normalizes the label (blank -> nil).
func (s *SubscriptionService) prepare(rawURL, label string) (string, *string, error) {
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return "", nil, err
	}
	var lbl *string
	if l := s.clip(normalizeLabel(label)); l != "" {
		lbl = &l
	}
	return u, lbl, nil
}

// List returns the chat's active subscriptions, newest first.
func (s *SubscriptionService) List(ctx context.Context, chatID int64) ([]domain.Subscription, error) {
	return s.Repo.ListSubscriptions(ctx, s.DB, chatID)
}

// Get returns one subscription of the chat, active or not.
func (s *SubscriptionService) Get(ctx context.Context, chatID int64, id uint) (*domain.Subscription, error) {
	sub, err := s.Repo.GetSubscription(ctx, s.DB, chatID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	return sub, err
}

// Remove deactivates a subscription. History is kept.
func (s *SubscriptionService) Remove(ctx context.Context, chatID int64, id uint) error {
	err := s.Repo.DeactivateSubscription(ctx, s.DB, chatID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSubscriptionNotFound
	}
	return err
}

// History returns up to limit recent observations of a chat's subscription,
// newest first. limit <= 0 uses HistoryLimit; it is capped at MaxHistoryLimit.
func (s *SubscriptionService) History(ctx context.Context, chatID int64, id uint, limit int) ([]domain.PriceObservation, error) {
	if limit <= 0 {
		limit = s.HistoryLimit
		if limit <= 0 {
			limit = DefaultHistoryLimit
		}
	}
	limit = utils.Clamp(limit, 1, MaxHistoryLimit)
	if _, err := s.Get(ctx, chatID, id); err != nil {
		return nil, err
	}
	return s.Repo.ListHistory(ctx, s.DB, chatID, id, limit)
}

// Stats returns the active subscription count and latest update time.
func (s *SubscriptionService) Stats(ctx context.Context, chatID int64) (int64, *time.Time, error) {
	return s.Repo.SubscriptionsStats(ctx, s.DB, chatID)
}

// NormalizeURL trims rawURL and accepts only absolute http(s) URLs with a host.
func NormalizeURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", ErrInvalidURL
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", ErrInvalidURL
	}
	return u.String(), nil
}

var searchTemplates = map[string]string{
	"ozon": "https://www.ozon.ru/search/?text=",
	"wb":   "https://www.wildberries.ru/catalog/0/search.aspx?search=",
}

// SearchURL returns the marketplace search page for an article number so a
// user can find the product page and subscribe to it. Supported sources are
// "ozon" and "wb".
func SearchURL(source, sku string) (string, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return "", ErrEmptySKU
	}
	base, ok := searchTemplates[strings.ToLower(strings.TrimSpace(source))]
	if !ok {
		return "", ErrUnsupportedSource
	}
	return base + url.QueryEscape(sku), nil
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// normalizeLabel trims whitespace and collapses runs of spaces to one.
func normalizeLabel(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// clip truncates a label to the configured maximum rune length.
func (s *SubscriptionService) clip(label string) string {
	if s.LabelMaxLen > 0 && utf8.RuneCountInString(label) > s.LabelMaxLen {
		return string([]rune(label)[:s.LabelMaxLen])
	}
	return label
}
