package domain

import "time"

// Idempotency remembers which subscription a client-supplied
// Idempotency-Key produced, so a retried create returns the original row
// instead of adding a second subscription (and a second notification every
// cycle).
//
// Fields:
//   - ChatID, Key: the unique identity of the request.
//   - SubscriptionID: the row created by the first request.
//   - Status: HTTP status of the first response, replayed as-is.
//   - ExpiresAt: after this the key may be reused for a new create.
type Idempotency struct {
	ID             string    `gorm:"type:text;primaryKey"`
	ChatID         int64     `gorm:"not null;uniqueIndex:ux_idem_chat_key,priority:1"`
	Key            string    `gorm:"type:text;not null;uniqueIndex:ux_idem_chat_key,priority:2"`
	SubscriptionID uint      `gorm:"not null"`
	Status         int       `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
	ExpiresAt      time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
