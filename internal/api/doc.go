// Package api provides the exchange order-entry REST client.
//
// The client performs single-shot signed requests and classifies failures:
//   - *APIError with IsRetryable() true (5xx, 408, 429): transient, the
//     executor owns the retry schedule because each attempt must be
//     persisted to the replica ledger between tries
//   - *OrderRejection: the exchange processed the order and said no
//     (bad price/size, insufficient balance); never retried
//
// Network errors are indistinguishable from not-yet-processed and are
// treated as retryable by callers.
package api
