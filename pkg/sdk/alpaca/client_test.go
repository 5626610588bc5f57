package alpaca

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// fakeTransport records the last call and replies with a canned body.
type fakeTransport struct {
	method string
	path   string
	query  url.Values
	body   any

	reply json.RawMessage
	err   error
}

func (f *fakeTransport) Execute(_ context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	f.method = method
	f.path = path
	f.query = query
	f.body = body
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *fakeTransport) Close() {}

func TestGetAccount_ParsesMoneyFieldsAsDecimals(t *testing.T) {
	ft := &fakeTransport{reply: json.RawMessage(`{
		"id": "acct-1",
		"status": "ACTIVE",
		"currency": "USD",
		"cash": "10000.50",
		"equity": "12500.25",
		"buying_power": "25001.00",
		"trading_blocked": false
	}`)}
	c := NewClient(ft)

	acct, err := c.GetAccount(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ft.method != "GET" || ft.path != "/v2/account" {
		t.Fatalf("unexpected call: %s %s", ft.method, ft.path)
	}
	if !acct.Cash.Equal(decimal.RequireFromString("10000.50")) {
		t.Fatalf("cash not parsed: %s", acct.Cash)
	}
	if !acct.BuyingPower.Equal(decimal.RequireFromString("25001.00")) {
		t.Fatalf("buying_power not parsed: %s", acct.BuyingPower)
	}
}

func TestListOrders_QueryBuilding(t *testing.T) {
	ft := &fakeTransport{reply: json.RawMessage(`[]`)}
	c := NewClient(ft)

	after := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	_, err := c.ListOrders(context.Background(), ListOrdersQuery{
		Status:  "closed",
		Limit:   500,
		After:   after,
		Nested:  true,
		Symbols: []string{"AAPL", "MSFT"},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ft.path != "/v2/orders" {
		t.Fatalf("unexpected path: %s", ft.path)
	}
	if got := ft.query.Get("status"); got != "closed" {
		t.Fatalf("status=%q", got)
	}
	if got := ft.query.Get("limit"); got != "500" {
		t.Fatalf("limit=%q", got)
	}
	if got := ft.query.Get("after"); got != "2026-01-02T15:04:05Z" {
		t.Fatalf("after=%q", got)
	}
	if got := ft.query.Get("nested"); got != "true" {
		t.Fatalf("nested=%q", got)
	}
	if got := ft.query.Get("symbols"); got != "AAPL,MSFT" {
		t.Fatalf("symbols=%q", got)
	}
	if ft.query.Get("until") != "" {
		t.Fatal("zero until must be omitted")
	}
}

func TestListOpenOrders_DefaultsQuery(t *testing.T) {
	ft := &fakeTransport{reply: json.RawMessage(`[]`)}
	c := NewClient(ft)

	if _, err := c.ListOpenOrders(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ft.query.Get("status") != "open" || ft.query.Get("limit") != "500" {
		t.Fatalf("unexpected query: %v", ft.query)
	}
}

func TestGetOrderByClientOrderID(t *testing.T) {
	ft := &fakeTransport{reply: json.RawMessage(`{"id":"o-1","client_order_id":"strat|rb|AAPL|buy"}`)}
	c := NewClient(ft)

	o, err := c.GetOrderByClientOrderID(context.Background(), "strat|rb|AAPL|buy")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ft.path != "/v2/orders:by_client_order_id" {
		t.Fatalf("unexpected path: %s", ft.path)
	}
	if ft.query.Get("client_order_id") != "strat|rb|AAPL|buy" {
		t.Fatalf("unexpected query: %v", ft.query)
	}
	if o.ClientOrderID != "strat|rb|AAPL|buy" {
		t.Fatalf("unexpected order: %+v", o)
	}
}

func TestSubmitOrder_SerializesQtyAsString(t *testing.T) {
	ft := &fakeTransport{reply: json.RawMessage(`{"id":"o-2"}`)}
	c := NewClient(ft)

	req := OrderRequest{
		Symbol:      "AAPL",
		Qty:         decimal.NewFromInt(10),
		Side:        "buy",
		Type:        "market",
		TimeInForce: "day",
	}
	if _, err := c.SubmitOrder(context.Background(), req); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ft.method != "POST" || ft.path != "/v2/orders" {
		t.Fatalf("unexpected call: %s %s", ft.method, ft.path)
	}

	// qty must hit the wire as a string to avoid float representation drift
	encoded, err := json.Marshal(ft.body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &wire); err != nil {
		t.Fatalf("unmarshal wire: %v", err)
	}
	if string(wire["qty"]) != `"10"` {
		t.Fatalf("qty must serialize as string, got %s", wire["qty"])
	}
	if _, present := wire["limit_price"]; present {
		t.Fatal("nil limit_price must be omitted")
	}
}

func TestParseOrder_ToleratesUnknownAndMissingFields(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "o-3",
		"symbol": "TSLA",
		"qty": "5",
		"filled_qty": "2",
		"side": "sell",
		"status": "partially_filled",
		"filled_avg_price": "250.10",
		"some_future_field": {"nested": true}
	}`)
	o, err := ParseOrder(raw)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if o.ID != "o-3" || o.Status != "partially_filled" {
		t.Fatalf("unexpected order: %+v", o)
	}
	if o.FilledAvgPrice == nil || !o.FilledAvgPrice.Equal(decimal.RequireFromString("250.10")) {
		t.Fatalf("filled_avg_price: %v", o.FilledAvgPrice)
	}
	if o.LimitPrice != nil {
		t.Fatal("missing limit_price must stay nil")
	}
	if !o.CreatedAt.IsZero() {
		t.Fatal("missing created_at must stay zero")
	}
}

func TestCancelOrder_ErrorPassthrough(t *testing.T) {
	ft := &fakeTransport{err: context.DeadlineExceeded}
	c := NewClient(ft)

	if err := c.CancelOrder(context.Background(), "o-4"); err == nil {
		t.Fatal("expected error")
	}
	if ft.method != "DELETE" || ft.path != "/v2/orders/o-4" {
		t.Fatalf("unexpected call: %s %s", ft.method, ft.path)
	}
}
