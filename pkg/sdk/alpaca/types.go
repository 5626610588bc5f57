package alpaca

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Account is the brokerage account resource.
// Money fields arrive as JSON strings and decode into decimals.
type Account struct {
	ID               string          `json:"id"`
	AccountNumber    string          `json:"account_number"`
	Status           string          `json:"status"`
	Currency         string          `json:"currency"`
	Cash             decimal.Decimal `json:"cash"`
	Equity           decimal.Decimal `json:"equity"`
	BuyingPower      decimal.Decimal `json:"buying_power"`
	PortfolioValue   decimal.Decimal `json:"portfolio_value"`
	LongMarketValue  decimal.Decimal `json:"long_market_value"`
	ShortMarketValue decimal.Decimal `json:"short_market_value"`
	Multiplier       decimal.Decimal `json:"multiplier"`
	PatternDayTrader bool            `json:"pattern_day_trader"`
	TradingBlocked   bool            `json:"trading_blocked"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Position is one open position keyed by symbol.
type Position struct {
	Symbol         string          `json:"symbol"`
	Qty            decimal.Decimal `json:"qty"`
	Side           string          `json:"side"`
	AvgEntryPrice  decimal.Decimal `json:"avg_entry_price"`
	MarketValue    decimal.Decimal `json:"market_value"`
	CostBasis      decimal.Decimal `json:"cost_basis"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	UnrealizedPL   decimal.Decimal `json:"unrealized_pl"`
	UnrealizedPLPC decimal.Decimal `json:"unrealized_plpc"`
}

// Order is the brokerage order resource. Optional fields are pointers so a
// missing field stays absent instead of failing the parse - additive upstream
// API changes must not break us.
type Order struct {
	ID             string           `json:"id"`
	ClientOrderID  string           `json:"client_order_id"`
	Symbol         string           `json:"symbol"`
	Qty            decimal.Decimal  `json:"qty"`
	FilledQty      decimal.Decimal  `json:"filled_qty"`
	Side           string           `json:"side"`
	Type           string           `json:"type"`
	TimeInForce    string           `json:"time_in_force"`
	LimitPrice     *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice      *decimal.Decimal `json:"stop_price,omitempty"`
	FilledAvgPrice *decimal.Decimal `json:"filled_avg_price,omitempty"`
	Status         string           `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	SubmittedAt    time.Time        `json:"submitted_at"`
	FilledAt       *time.Time       `json:"filled_at,omitempty"`
	CanceledAt     *time.Time       `json:"canceled_at,omitempty"`
	ExpiredAt      *time.Time       `json:"expired_at,omitempty"`
}

// OrderRequest is the submission payload. Numeric fields serialize as strings
// on the wire (decimal marshals quoted) to avoid floating-point representation
// drift with the brokerage's parser.
type OrderRequest struct {
	Symbol        string           `json:"symbol"`
	Qty           decimal.Decimal  `json:"qty"`
	Side          string           `json:"side"`
	Type          string           `json:"type"`
	TimeInForce   string           `json:"time_in_force"`
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice     *decimal.Decimal `json:"stop_price,omitempty"`
	ClientOrderID string           `json:"client_order_id,omitempty"`
}

// ReplaceOrderRequest is a partial field update for an open order.
// Nil fields are left unchanged by the brokerage.
type ReplaceOrderRequest struct {
	Qty           *decimal.Decimal `json:"qty,omitempty"`
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice     *decimal.Decimal `json:"stop_price,omitempty"`
	TimeInForce   string           `json:"time_in_force,omitempty"`
	ClientOrderID string           `json:"client_order_id,omitempty"`
}

// ParseAccount decodes an account resource.
func ParseAccount(raw json.RawMessage) (*Account, error) {
	var a Account
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, errors.Wrap(err, "decode account")
	}
	return &a, nil
}

// ParsePositions decodes a position list.
func ParsePositions(raw json.RawMessage) ([]Position, error) {
	var ps []Position
	if err := json.Unmarshal(raw, &ps); err != nil {
		return nil, errors.Wrap(err, "decode positions")
	}
	return ps, nil
}

// ParseOrder decodes a single order resource. The stream decoder reuses this
// for the order object embedded in trade updates.
func ParseOrder(raw json.RawMessage) (*Order, error) {
	var o Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	return &o, nil
}

// ParseOrders decodes an order list.
func ParseOrders(raw json.RawMessage) ([]Order, error) {
	var os []Order
	if err := json.Unmarshal(raw, &os); err != nil {
		return nil, errors.Wrap(err, "decode orders")
	}
	return os, nil
}
