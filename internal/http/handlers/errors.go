// Package handlers defines HTTP-layer error codes used across the admin API.
//
// Codes are stable, lowercase snake_case strings carried in ErrorResponse.Code
// next to the HTTP status. Clients branch on the code, not on the message.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_found",
//	  "message": "subscription not found"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeInvalidURL   = "invalid_url"
	ErrCodeCreateFailed = "create_failed"
	ErrCodeListFailed   = "list_failed"
	ErrCodeRemoveFailed = "remove_failed"
)
