// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Subscription and PriceObservation models.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a subscription is not found (or belongs to another chat),
//     functions return gorm.ErrRecordNotFound (exported as ErrNotFound).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-price-watcher/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for consistency across the service
// layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateSubscription inserts a new active subscription for chatID.
func CreateSubscription(ctx context.Context, db *gorm.DB, chatID int64, url string, label *string) (*domain.Subscription, error) {
	now := time.Now().UTC()
	s := &domain.Subscription{
		ChatID:    chatID,
		URL:       url,
		Label:     label,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// ListSubscriptions returns the active subscriptions of chatID, newest first.
func ListSubscriptions(ctx context.Context, db *gorm.DB, chatID int64) ([]domain.Subscription, error) {
	var out []domain.Subscription
	err := db.WithContext(ctx).
		Where("chat_id = ? AND active = ?", chatID, true).
		Order("id desc").
		Find(&out).Error
	return out, err
}

// GetSubscription fetches one subscription by id, scoped to chatID.
// Inactive subscriptions are still returned so their history stays reachable.
func GetSubscription(ctx context.Context, db *gorm.DB, chatID int64, id uint) (*domain.Subscription, error) {
	var s domain.Subscription
	err := db.WithContext(ctx).
		Where("id = ? AND chat_id = ?", id, chatID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DeactivateSubscription clears the active flag of subscription id owned by
// chatID. Rows are never physically deleted. It returns ErrNotFound when no
// active row matched.
func DeactivateSubscription(ctx context.Context, db *gorm.DB, chatID int64, id uint) error {
	res := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ? AND chat_id = ? AND active = ?", id, chatID, true).
		Updates(map[string]any{"active": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListActive returns every active subscription across all chats. The order
// is by id but callers must not rely on it.
func ListActive(ctx context.Context, db *gorm.DB) ([]domain.Subscription, error) {
	var out []domain.Subscription
	err := db.WithContext(ctx).
		Where("active = ?", true).
		Order("id asc").
		Find(&out).Error
	return out, err
}

// RecordObservation appends a PriceObservation and updates the
// subscription's last_price and last_checked_at in one transaction, so the
// denormalized last price always equals the newest history row.
func RecordObservation(ctx context.Context, db *gorm.DB, subID uint, price float64, at time.Time) error {
	at = at.UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		obs := &domain.PriceObservation{
			SubscriptionID: subID,
			Price:          price,
			ObservedAt:     at,
		}
		if err := tx.Create(obs).Error; err != nil {
			return err
		}
		res := tx.Model(&domain.Subscription{}).
			Where("id = ?", subID).
			Updates(map[string]any{
				"last_price":      price,
				"last_checked_at": at,
				"updated_at":      at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// ListHistory returns up to limit most recent observations of subscription
// subID owned by chatID, newest first. Ordering is by insertion (id), never by
// timestamp.
func ListHistory(ctx context.Context, db *gorm.DB, chatID int64, subID uint, limit int) ([]domain.PriceObservation, error) {
	var out []domain.PriceObservation
	err := db.WithContext(ctx).
		Joins("JOIN subscriptions s ON s.id = price_history.subscription_id").
		Where("s.chat_id = ? AND s.id = ?", chatID, subID).
		Order("price_history.id desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
