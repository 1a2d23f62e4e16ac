// Package services defines the business logic for price subscriptions.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into chat replies or HTTP status codes is performed by the bot
// and handler layers.
package services

import "errors"

// Subscription-related errors.
var (
	// ErrSubscriptionNotFound indicates that the subscription does not exist,
	// belongs to another chat, or (for removal) is already inactive.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrInvalidURL is returned when a subscribe request carries something
	// other than an absolute http(s) URL.
	ErrInvalidURL = errors.New("url must be an absolute http or https URL")

	// ErrUnsupportedSource is returned by SearchURL for marketplaces without
	// a known search page.
	ErrUnsupportedSource = errors.New("unsupported marketplace")

	// ErrEmptySKU is returned by SearchURL when the article number is blank.
	ErrEmptySKU = errors.New("sku is empty")
)
