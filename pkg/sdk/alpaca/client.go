// Package alpaca implements the typed trading REST client: account, position
// and order operations over the shared httpx transport.
package alpaca

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Transport is the slice of the HTTP layer the client needs. Satisfied by
// *httpx.Client; tests substitute their own.
type Transport interface {
	Execute(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error)
	Close()
}

// Client handles brokerage trading API interactions.
type Client struct {
	transport Transport
}

// NewClient wraps a transport.
func NewClient(t Transport) *Client {
	return &Client{transport: t}
}

// Close releases the underlying transport.
func (c *Client) Close() {
	c.transport.Close()
}

// GetAccount fetches the account resource.
func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	raw, err := c.transport.Execute(ctx, http.MethodGet, "/v2/account", nil, nil)
	if err != nil {
		return nil, err
	}
	return ParseAccount(raw)
}

// ListPositions fetches all open positions.
func (c *Client) ListPositions(ctx context.Context) ([]Position, error) {
	raw, err := c.transport.Execute(ctx, http.MethodGet, "/v2/positions", nil, nil)
	if err != nil {
		return nil, err
	}
	return ParsePositions(raw)
}

// ListOrdersQuery controls /v2/orders requests.
type ListOrdersQuery struct {
	Status  string // open, closed, all
	Limit   int
	After   time.Time
	Until   time.Time
	Nested  bool
	Symbols []string
}

// ListOrders fetches orders matching the query.
func (c *Client) ListOrders(ctx context.Context, q ListOrdersQuery) ([]Order, error) {
	values := url.Values{}
	if q.Status != "" {
		values.Set("status", q.Status)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if !q.After.IsZero() {
		values.Set("after", q.After.UTC().Format(time.RFC3339))
	}
	if !q.Until.IsZero() {
		values.Set("until", q.Until.UTC().Format(time.RFC3339))
	}
	if q.Nested {
		values.Set("nested", "true")
	}
	if len(q.Symbols) > 0 {
		values.Set("symbols", strings.Join(q.Symbols, ","))
	}

	raw, err := c.transport.Execute(ctx, http.MethodGet, "/v2/orders", values, nil)
	if err != nil {
		return nil, err
	}
	return ParseOrders(raw)
}

// ListOpenOrders fetches every currently open order.
func (c *Client) ListOpenOrders(ctx context.Context) ([]Order, error) {
	return c.ListOrders(ctx, ListOrdersQuery{Status: "open", Limit: 500})
}

// GetOrder fetches one order by its brokerage id.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	raw, err := c.transport.Execute(ctx, http.MethodGet, "/v2/orders/"+orderID, nil, nil)
	if err != nil {
		return nil, err
	}
	return ParseOrder(raw)
}

// GetOrderByClientOrderID fetches one order by the caller-assigned
// idempotency key.
func (c *Client) GetOrderByClientOrderID(ctx context.Context, clientOrderID string) (*Order, error) {
	values := url.Values{}
	values.Set("client_order_id", clientOrderID)
	raw, err := c.transport.Execute(ctx, http.MethodGet, "/v2/orders:by_client_order_id", values, nil)
	if err != nil {
		return nil, err
	}
	return ParseOrder(raw)
}

// SubmitOrder places a new order. The brokerage rejects duplicate
// client_order_id values, which is what makes retried submissions safe.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	raw, err := c.transport.Execute(ctx, http.MethodPost, "/v2/orders", nil, req)
	if err != nil {
		return nil, err
	}
	return ParseOrder(raw)
}

// ReplaceOrder patches an open order in place.
func (c *Client) ReplaceOrder(ctx context.Context, orderID string, req ReplaceOrderRequest) (*Order, error) {
	raw, err := c.transport.Execute(ctx, http.MethodPatch, "/v2/orders/"+orderID, nil, req)
	if err != nil {
		return nil, err
	}
	return ParseOrder(raw)
}

// CancelOrder requests cancellation of one open order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	_, err := c.transport.Execute(ctx, http.MethodDelete, "/v2/orders/"+orderID, nil, nil)
	return err
}

// CancelAllOrders requests cancellation of every open order.
func (c *Client) CancelAllOrders(ctx context.Context) error {
	_, err := c.transport.Execute(ctx, http.MethodDelete, "/v2/orders", nil, nil)
	return err
}
