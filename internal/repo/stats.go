// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-price-watcher/internal/domain"
)

// SubscriptionsStats returns the number of active subscriptions of chatID and
// the greatest UpdatedAt among them. Any price write bumps UpdatedAt, so the
// pair changes whenever the listing would render differently.
//
// When the chat has no active subscriptions, count is 0 and maxUpdatedAt nil.
func SubscriptionsStats(ctx context.Context, db *gorm.DB, chatID int64) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Subscription{}).Where("chat_id = ? AND active = ?", chatID, true)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
