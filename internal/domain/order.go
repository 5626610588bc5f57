package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// TimeInForce 订单有效期
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceIOC TimeInForce = "ioc"
	TimeInForceFOK TimeInForce = "fok"
	TimeInForceOPG TimeInForce = "opg"
	TimeInForceCLS TimeInForce = "cls"
)

// OrderStatus 订单状态（券商侧状态机的本地投影）
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusAccepted        OrderStatus = "accepted"
	OrderStatusPendingNew      OrderStatus = "pending_new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusExpired         OrderStatus = "expired"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusReplaced        OrderStatus = "replaced"
)

// Order 订单领域模型
// 以订单 ID 为键，open-orders 每次拉取整体替换；同时通过 trade_updates 流增量观察
type Order struct {
	ID             string           // 券商分配的订单 ID
	ClientOrderID  string           // 客户端幂等键（≤48 字符，确定性生成）
	Symbol         string           // 标的代码
	Qty            decimal.Decimal  // 委托数量
	FilledQty      decimal.Decimal  // 已成交数量
	Side           Side             // 订单方向
	Type           OrderType        // 订单类型
	TimeInForce    TimeInForce      // 订单有效期
	LimitPrice     *decimal.Decimal // 限价（可选）
	StopPrice      *decimal.Decimal // 止损触发价（可选）
	FilledAvgPrice *decimal.Decimal // 平均成交价格（可选）
	Status         OrderStatus      // 订单状态
	CreatedAt      time.Time        // 创建时间
	UpdatedAt      time.Time        // 最后更新时间
	SubmittedAt    time.Time        // 提交时间
	FilledAt       *time.Time       // 成交时间（可选）
	CanceledAt     *time.Time       // 取消时间（可选）
	ExpiredAt      *time.Time       // 过期时间（可选）
}

// IsOpen 检查订单是否仍然在场（可能继续成交或被取消）
func (o *Order) IsOpen() bool {
	switch o.Status {
	case OrderStatusNew, OrderStatusAccepted, OrderStatusPendingNew, OrderStatusPartiallyFilled:
		return true
	}
	return false
}

// IsTerminal 检查订单是否为最终状态
// 最终状态不应该被中间状态（new/accepted）覆盖
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired, OrderStatusRejected, OrderStatusReplaced:
		return true
	}
	return false
}

// RemainingQty 返回未成交数量
func (o *Order) RemainingQty() decimal.Decimal {
	if o == nil {
		return decimal.Zero
	}
	return o.Qty.Sub(o.FilledQty)
}
