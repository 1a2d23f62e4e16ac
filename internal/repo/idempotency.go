// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the Idempotency helpers that give
// POST /chats/{chat_id}/subscriptions safe-retry semantics.
package repo

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-price-watcher/internal/domain"
)

// ErrDuplicate indicates that a live idempotency record already exists for
// the (chat_id, key) pair.
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency returns the non-expired record for (chatID, key) or
// ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, chatID int64, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("chat_id = ? AND key = ? AND expires_at > ?", chatID, key, now).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateSubscriptionOnce inserts a subscription and its idempotency record
// in one transaction.
//
// Behavior:
//   - An expired record for (chatID, key) is removed first so the key can be
//     reused.
//   - If another request already holds a live record for the pair, nothing
//     is written and ErrDuplicate is returned; the caller should look the
//     record up and replay it.
func CreateSubscriptionOnce(ctx context.Context, db *gorm.DB, chatID int64, key, url string, label *string, ttl time.Duration) (*domain.Subscription, error) {
	var out *domain.Subscription
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := tx.Where("chat_id = ? AND key = ? AND expires_at <= ?", chatID, key, now).
			Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}

		sub, err := CreateSubscription(ctx, tx, chatID, url, label)
		if err != nil {
			return err
		}
		rec := &domain.Idempotency{
			ID:             uuid.NewString(),
			ChatID:         chatID,
			Key:            key,
			SubscriptionID: sub.ID,
			Status:         http.StatusCreated,
			CreatedAt:      now,
			ExpiresAt:      now.Add(ttl),
		}
		if err := tx.Create(rec).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		out = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// isUniqueViolation recognizes unique-constraint failures from both drivers;
// glebarez/sqlite reports them as plain text.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value")
}
