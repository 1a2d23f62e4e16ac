// Package docs holds the OpenAPI document served by gin-swagger.
// Regenerate with: swag init -g cmd/pricewatcher/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/chats/{chat_id}/subscriptions": {
            "get": {
                "description": "Returns active subscriptions, newest first. Supports weak ETag via If-None-Match and may return 304.",
                "produces": ["application/json"],
                "tags": ["Subscriptions"],
                "summary": "List a chat's subscriptions",
                "operationId": "listSubscriptions",
                "parameters": [
                    {"type": "integer", "example": 123456789, "description": "Chat ID", "name": "chat_id", "in": "path", "required": true},
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/handlers.ListSubscriptionsResponse"},
                        "headers": {"ETag": {"type": "string", "description": "Weak ETag for current result"}}
                    },
                    "304": {"description": "Not Modified", "schema": {"type": "string"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Validates the URL and starts watching its price on the next cycle.\nRetrying with the same Idempotency-Key returns the first subscription instead of creating another.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Subscriptions"],
                "summary": "Subscribe a chat to a product page",
                "operationId": "createSubscription",
                "parameters": [
                    {"type": "integer", "example": 123456789, "description": "Chat ID", "name": "chat_id", "in": "path", "required": true},
                    {"type": "string", "example": "3f1c2b7e-sub-1", "description": "Deduplicates retries for 24h", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Subscription payload", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CreateSubscriptionRequest"}}
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {"$ref": "#/definitions/domain.Subscription"},
                        "headers": {"Idempotency-Replayed": {"type": "string", "description": "true when served from an earlier request"}}
                    },
                    "400": {"description": "Bad request, invalid URL or bad Idempotency-Key", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/chats/{chat_id}/subscriptions/{id}": {
            "delete": {
                "description": "Deactivates a subscription of the chat. Its price history is kept.",
                "tags": ["Subscriptions"],
                "summary": "Unsubscribe",
                "operationId": "deleteSubscription",
                "parameters": [
                    {"type": "integer", "description": "Chat ID", "name": "chat_id", "in": "path", "required": true},
                    {"type": "integer", "description": "Subscription ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content", "schema": {"type": "string"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Subscription not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/chats/{chat_id}/subscriptions/{id}/history": {
            "get": {
                "description": "Returns the most recent observations, newest first.",
                "produces": ["application/json"],
                "tags": ["Subscriptions"],
                "summary": "Recent prices of a subscription",
                "operationId": "subscriptionHistory",
                "parameters": [
                    {"type": "integer", "description": "Chat ID", "name": "chat_id", "in": "path", "required": true},
                    {"type": "integer", "description": "Subscription ID", "name": "id", "in": "path", "required": true},
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 5, "description": "Max items", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HistoryResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Subscription not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/checker/status": {
            "get": {
                "description": "Reports whether a cycle is running, the next scheduled run and the last cycle report.",
                "produces": ["application/json"],
                "tags": ["Checker"],
                "summary": "Background checker status",
                "operationId": "checkerStatus",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/scheduler.Status"}}
                }
            }
        }
    },
    "definitions": {
        "checker.CycleReport": {
            "type": "object",
            "properties": {
                "finished": {"type": "string"},
                "id": {"type": "string"},
                "max_in_flight": {"type": "integer"},
                "notified": {"type": "integer"},
                "notify_failed": {"type": "integer"},
                "outcomes": {"type": "object", "additionalProperties": {"type": "integer"}},
                "started": {"type": "string"},
                "total": {"type": "integer"}
            }
        },
        "domain.PriceObservation": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "observed_at": {"type": "string"},
                "price": {"type": "number"},
                "subscription_id": {"type": "integer"}
            }
        },
        "domain.Subscription": {
            "type": "object",
            "properties": {
                "active": {"type": "boolean"},
                "chat_id": {"type": "integer"},
                "created_at": {"type": "string"},
                "id": {"type": "integer"},
                "label": {"type": "string"},
                "last_checked_at": {"type": "string"},
                "last_price": {"type": "number"},
                "updated_at": {"type": "string"},
                "url": {"type": "string"}
            }
        },
        "handlers.CreateSubscriptionRequest": {
            "type": "object",
            "required": ["url"],
            "properties": {
                "label": {"type": "string", "example": "Winter jacket"},
                "url": {"type": "string", "example": "https://shop.example/item/123"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string", "example": "subscription not found"},
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"}
            }
        },
        "handlers.HistoryResponse": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/domain.PriceObservation"}},
                "subscription_id": {"type": "integer"}
            }
        },
        "handlers.ListSubscriptionsResponse": {
            "type": "object",
            "properties": {
                "subscriptions": {"type": "array", "items": {"$ref": "#/definitions/domain.Subscription"}}
            }
        },
        "scheduler.Status": {
            "type": "object",
            "properties": {
                "cycles": {"type": "integer"},
                "interval": {"type": "string"},
                "last_cycle": {"$ref": "#/definitions/checker.CycleReport"},
                "last_error": {"type": "string"},
                "next_run": {"type": "string"},
                "state": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Price Watcher API",
	Description:      "Admin API for price subscriptions and the background checker.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
