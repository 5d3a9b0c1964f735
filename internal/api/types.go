package api

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/polymirror/engine/internal/model"
)

// OrderRequest is an order-entry submission.
type OrderRequest struct {
	Market        string // Market/token identifier
	Side          model.Side
	Price         decimal.Decimal
	Size          decimal.Decimal
	ClientOrderID string // Idempotency key; the exchange deduplicates on it
	Owner         string // Follower account the order is placed for
}

// OrderResponse is the exchange's answer to an order submission or lookup.
type OrderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderID"`
	Status  string `json:"status"`
	Error   string `json:"errorMsg,omitempty"`
}

// orderWire is the JSON body posted to the order-entry endpoint.
type orderWire struct {
	Market        string `json:"market"`
	Side          string `json:"side"`
	Price         string `json:"price"`
	Size          string `json:"size"`
	ClientOrderID string `json:"client_order_id"`
	Owner         string `json:"owner"`
}

// APIError represents a transport-level error from the exchange API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429 || e.StatusCode == 408
}

// OrderRejection means the exchange processed the order and refused it.
// Never retried.
type OrderRejection struct {
	Code    string
	Message string
}

func (e *OrderRejection) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("order rejected (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("order rejected: %s", e.Message)
}

// rejectionWire is the body the exchange returns on a 400-level refusal.
type rejectionWire struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}
