package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// PostOrder submits one order. A single wire attempt: the caller decides
// whether and when to retry on transient failures.
func (c *Client) PostOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	body, err := json.Marshal(orderWire{
		Market:        req.Market,
		Side:          string(req.Side),
		Price:         req.Price.String(),
		Size:          req.Size.String(),
		ClientOrderID: req.ClientOrderID,
		Owner:         req.Owner,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/order", nil, body)
	if err != nil {
		return nil, err
	}

	var resp OrderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal order response: %w", err)
	}

	// Some rejections come back 200 with success=false.
	if !resp.Success {
		return nil, &OrderRejection{Message: resp.Error}
	}

	return &resp, nil
}

// GetOrder looks up an order by the client order id it was submitted with.
// Used to reconcile ambiguous outcomes after a timed-out submission.
func (c *Client) GetOrder(ctx context.Context, clientOrderID string) (*OrderResponse, error) {
	query := url.Values{}
	query.Set("client_order_id", clientOrderID)

	respBody, err := c.doRequest(ctx, http.MethodGet, "/order", query, nil)
	if err != nil {
		return nil, err
	}

	var resp OrderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal order response: %w", err)
	}

	return &resp, nil
}

// CancelOrder cancels an accepted order by exchange order id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	query := url.Values{}
	query.Set("order_id", orderID)

	_, err := c.doRequest(ctx, http.MethodDelete, "/order", query, nil)
	return err
}

// doRequest performs one signed HTTP request.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.creds != nil {
		headers, err := c.creds.SignRequest(method, path, body)
		if err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == 429 || resp.StatusCode == 408 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       respBody,
		}
	}

	if resp.StatusCode >= 400 {
		// The exchange saw the order and refused it: permanent.
		var rej rejectionWire
		if err := json.Unmarshal(respBody, &rej); err == nil && rej.Message != "" {
			return nil, &OrderRejection{Code: rej.Code, Message: rej.Message}
		}
		return nil, &OrderRejection{Message: http.StatusText(resp.StatusCode)}
	}

	return respBody, nil
}
