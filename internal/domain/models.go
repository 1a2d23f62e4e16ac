// Package domain defines the persistence models for tracked subscriptions and
// their observed prices. These types are mapped with GORM and shared across
// the repository, checker, and service layers.
package domain

import "time"

// Subscription is a chat's request to watch the price on one web page.
//
// Fields:
//   - ID: autoincrement primary key, shown to users in chat commands.
//   - ChatID: owning chat identity; indexed together with Active.
//   - URL: page to fetch on every cycle.
//   - Label: optional human-readable name; nil when not provided.
//   - LastPrice: price of the most recent observation; nil until the first
//     successful check.
//   - LastCheckedAt: time of the most recent successful check.
//   - Active: logical deletion flag. Inactive rows keep their history.
type Subscription struct {
	ID            uint       `json:"id"              gorm:"primaryKey;autoIncrement"`
	ChatID        int64      `json:"chat_id"         gorm:"not null;index:idx_sub_chat_active,priority:1"`
	URL           string     `json:"url"             gorm:"type:text;not null"`
	Label         *string    `json:"label,omitempty" gorm:"type:text"`
	LastPrice     *float64   `json:"last_price,omitempty"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	Active        bool       `json:"active"          gorm:"not null;default:true;index:idx_sub_chat_active,priority:2"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Subscription.
func (Subscription) TableName() string { return "subscriptions" }

// DisplayName returns the label when set, otherwise the URL.
func (s Subscription) DisplayName() string {
	if s.Label != nil && *s.Label != "" {
		return *s.Label
	}
	return s.URL
}

// PriceObservation is one successfully extracted price for a subscription.
// Rows are append-only; history queries order by ID, not by ObservedAt, so
// clock anomalies never reorder a subscription's history.
type PriceObservation struct {
	ID             uint      `json:"id"              gorm:"primaryKey;autoIncrement"`
	SubscriptionID uint      `json:"subscription_id" gorm:"not null;index:idx_obs_sub,priority:1"`
	Price          float64   `json:"price"           gorm:"not null"`
	ObservedAt     time.Time `json:"observed_at"     gorm:"not null"`

	Subscription Subscription `json:"-" gorm:"foreignKey:SubscriptionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for PriceObservation.
func (PriceObservation) TableName() string { return "price_history" }
