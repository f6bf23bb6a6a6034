package adaptor

import (
	"fmt"
	"net/http"
)

// ErrorResponse is the RFC 7807 problem payload returned by every
// failing endpoint.
type ErrorResponse struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

func NewErrorResponse(status int, title, detail, instance string) *ErrorResponse {
	return &ErrorResponse{
		Type:     fmt.Sprintf("https://consult-engine.nakshatratalks.com/errors/%d", status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

func NewBadRequestError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusBadRequest, "Bad Request", detail, instance)
}

func NewNotFoundError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusNotFound, "Not Found", detail, instance)
}

func NewConflictError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusConflict, "Conflict", detail, instance)
}

func NewInternalError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusInternalServerError, "Internal Server Error", detail, instance)
}

func NewBadGatewayError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusBadGateway, "Bad Gateway", detail, instance)
}

// PaymentRequiredError reports a balance below the admission floor.
func PaymentRequiredError(detail, instance string) *ErrorResponse {
	return &ErrorResponse{
		Type:     "https://consult-engine.nakshatratalks.com/insufficient-balance",
		Title:    "Insufficient Balance",
		Status:   http.StatusPaymentRequired,
		Detail:   detail,
		Instance: instance,
	}
}

// TooManyRequestsError reports a throttled channel send.
func TooManyRequestsError(detail, instance string) *ErrorResponse {
	return &ErrorResponse{
		Type:     "https://consult-engine.nakshatratalks.com/rate-limited",
		Title:    "Too Many Requests",
		Status:   http.StatusTooManyRequests,
		Detail:   detail,
		Instance: instance,
	}
}
