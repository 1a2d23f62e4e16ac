// Subscription HTTP handlers.
//
// This file exposes REST endpoints for a chat's price subscriptions:
//   - POST   /chats/{chat_id}/subscriptions               (subscribe)
//   - GET    /chats/{chat_id}/subscriptions               (list, ETag support)
//   - DELETE /chats/{chat_id}/subscriptions/{id}          (unsubscribe)
//   - GET    /chats/{chat_id}/subscriptions/{id}/history  (recent prices)
//
// Handlers validate input, call the subscription service and translate the
// result into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-price-watcher/internal/domain"
	"github.com/tbourn/go-price-watcher/internal/http/middleware"
	"github.com/tbourn/go-price-watcher/internal/scheduler"
	"github.com/tbourn/go-price-watcher/internal/services"
	"github.com/tbourn/go-price-watcher/internal/utils"
)

// SubscriptionService defines the subscription operations consumed by the
// handlers. Implementations must be safe for concurrent use and honor ctx.
type SubscriptionService interface {
	SubscribeOnce(ctx context.Context, chatID int64, key, rawURL, label string) (*domain.Subscription, bool, error)
	KnownKey(ctx context.Context, chatID int64, key string, now time.Time) (bool, error)
	List(ctx context.Context, chatID int64) ([]domain.Subscription, error)
	Remove(ctx context.Context, chatID int64, id uint) error
	History(ctx context.Context, chatID int64, id uint, limit int) ([]domain.PriceObservation, error)
	Stats(ctx context.Context, chatID int64) (int64, *time.Time, error)
}

// StatusProvider reports the background checker's state.
type StatusProvider interface {
	Status() scheduler.Status
}

// Handlers groups the admin API endpoints.
type Handlers struct {
	subs    SubscriptionService
	checker StatusProvider
}

// New constructs Handlers bound to the given dependencies.
func New(subs SubscriptionService, checker StatusProvider) *Handlers {
	return &Handlers{subs: subs, checker: checker}
}

//
// DTOs
//

// CreateSubscriptionRequest is the JSON payload for subscribing to a page.
type CreateSubscriptionRequest struct {
	// URL is the absolute http(s) product page address.
	URL string `json:"url" binding:"required" example:"https://shop.example/item/123"`
	// Label optionally names the product in notifications.
	Label string `json:"label" example:"Winter jacket"`
}

// ListSubscriptionsResponse wraps a chat's active subscriptions.
type ListSubscriptionsResponse struct {
	Subscriptions []domain.Subscription `json:"subscriptions"`
}

// HistoryResponse wraps recent observations, newest first.
type HistoryResponse struct {
	SubscriptionID uint                      `json:"subscription_id"`
	Items          []domain.PriceObservation `json:"items"`
}

//
// Helpers
//

func chatIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat_id must be an integer")
		return 0, false
	}
	return id, true
}

func subIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

//
// Handlers
//

// CreateSubscription godoc
// @ID          createSubscription
// @Summary     Subscribe a chat to a product page
// @Description Validates the URL and starts watching its price on the next cycle.
// @Description Retrying with the same Idempotency-Key returns the first subscription instead of creating another.
// @Tags        Subscriptions
// @Accept      json
// @Produce     json
//
// @Param       chat_id          path    int     true   "Chat ID"  example(123456789)
// @Param       Idempotency-Key  header  string  false  "Deduplicates retries for 24h"  example(3f1c2b7e-sub-1)
// @Param       body             body    handlers.CreateSubscriptionRequest  true  "Subscription payload"
//
// @Success     201  {object}  domain.Subscription
// @Header      201  {string}  Idempotency-Replayed  "true when served from an earlier request"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request, invalid URL or bad Idempotency-Key"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chats/{chat_id}/subscriptions [post]
func (h *Handlers) CreateSubscription(c *gin.Context) {
	chatID, valid := chatIDParam(c)
	if !valid {
		return
	}
	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	sub, replayed, err := h.subs.SubscribeOnce(c.Request.Context(), chatID, key, req.URL, req.Label)
	switch {
	case errors.Is(err, services.ErrInvalidURL):
		fail(c, http.StatusBadRequest, ErrCodeInvalidURL, err.Error())
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	if replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
	}
	c.Header("Location", fmt.Sprintf("%s/%d", c.Request.URL.Path, sub.ID))
	ok(c, http.StatusCreated, sub)
}

// ListSubscriptions godoc
// @ID          listSubscriptions
// @Summary     List a chat's subscriptions
// @Description Returns active subscriptions, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Subscriptions
// @Produce     json
//
// @Param       chat_id        path    int     true   "Chat ID"                     example(123456789)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"  example(W/\"subs:1:2:1700000000\")
//
// @Success     200  {object}  handlers.ListSubscriptionsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chats/{chat_id}/subscriptions [get]
func (h *Handlers) ListSubscriptions(c *gin.Context) {
	chatID, valid := chatIDParam(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()

	// ETag pre-check (best effort). Any price update bumps updated_at.
	if count, maxTS, err := h.subs.Stats(ctx, chatID); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"subs:%d:%d:%d"`, chatID, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.subs.List(ctx, chatID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if items == nil {
		items = []domain.Subscription{}
	}
	ok(c, http.StatusOK, ListSubscriptionsResponse{Subscriptions: items})
}

// DeleteSubscription godoc
// @ID          deleteSubscription
// @Summary     Unsubscribe
// @Description Deactivates a subscription of the chat. Its price history is kept.
// @Tags        Subscriptions
//
// @Param       chat_id  path  int  true  "Chat ID"          example(123456789)
// @Param       id       path  int  true  "Subscription ID"  example(3)
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Subscription not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chats/{chat_id}/subscriptions/{id} [delete]
func (h *Handlers) DeleteSubscription(c *gin.Context) {
	chatID, valid := chatIDParam(c)
	if !valid {
		return
	}
	id, valid := subIDParam(c)
	if !valid {
		return
	}

	err := h.subs.Remove(c.Request.Context(), chatID, id)
	switch {
	case errors.Is(err, services.ErrSubscriptionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "subscription not found")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeRemoveFailed, err.Error())
		return
	}
	noContent(c)
}

// SubscriptionHistory godoc
// @ID          subscriptionHistory
// @Summary     Recent prices of a subscription
// @Description Returns the most recent observations, newest first.
// @Tags        Subscriptions
// @Produce     json
//
// @Param       chat_id  path   int  true   "Chat ID"                  example(123456789)
// @Param       id       path   int  true   "Subscription ID"          example(3)
// @Param       limit    query  int  false  "Max items"  minimum(1)  maximum(100)  default(5)
//
// @Success     200  {object}  handlers.HistoryResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Subscription not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chats/{chat_id}/subscriptions/{id}/history [get]
func (h *Handlers) SubscriptionHistory(c *gin.Context) {
	chatID, valid := chatIDParam(c)
	if !valid {
		return
	}
	id, valid := subIDParam(c)
	if !valid {
		return
	}
	limit := utils.AtoiDefault(c.Query("limit"), 0)
	if limit < 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limit must be positive")
		return
	}

	items, err := h.subs.History(c.Request.Context(), chatID, id, limit)
	switch {
	case errors.Is(err, services.ErrSubscriptionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "subscription not found")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if items == nil {
		items = []domain.PriceObservation{}
	}
	ok(c, http.StatusOK, HistoryResponse{SubscriptionID: id, Items: items})
}

// CheckerStatus godoc
// @ID          checkerStatus
// @Summary     Background checker status
// @Description Reports whether a cycle is running, the next scheduled run and the last cycle report.
// @Tags        Checker
// @Produce     json
// @Success     200  {object}  scheduler.Status
// @Router      /checker/status [get]
func (h *Handlers) CheckerStatus(c *gin.Context) {
	ok(c, http.StatusOK, h.checker.Status())
}
