package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeUpdateEvent 订单生命周期事件类型（trade_updates 流推送）
type TradeUpdateEvent string

const (
	TradeUpdateNew                 TradeUpdateEvent = "new"
	TradeUpdateFill                TradeUpdateEvent = "fill"
	TradeUpdatePartialFill         TradeUpdateEvent = "partial_fill"
	TradeUpdateCanceled            TradeUpdateEvent = "canceled"
	TradeUpdateExpired             TradeUpdateEvent = "expired"
	TradeUpdateRejected            TradeUpdateEvent = "rejected"
	TradeUpdateReplaced            TradeUpdateEvent = "replaced"
	TradeUpdatePendingNew          TradeUpdateEvent = "pending_new"
	TradeUpdatePendingCancel       TradeUpdateEvent = "pending_cancel"
	TradeUpdatePendingReplace      TradeUpdateEvent = "pending_replace"
	TradeUpdateDoneForDay          TradeUpdateEvent = "done_for_day"
	TradeUpdateOrderCancelRejected TradeUpdateEvent = "order_cancel_rejected"
)

// TradeUpdate 券商推送的订单生命周期变更通知
type TradeUpdate struct {
	Event       TradeUpdateEvent // 事件类型
	Order       Order            // 事件内嵌的订单快照
	Price       *decimal.Decimal // 成交价格（fill/partial_fill 时存在）
	Qty         *decimal.Decimal // 成交数量（fill/partial_fill 时存在）
	Timestamp   time.Time        // 事件时间（多个候选字段归一化后的结果）
	ExecutionID string           // 成交执行 ID（可选）
	PositionQty *decimal.Decimal // 事件后的持仓数量（可选）
}

// IsFill 检查事件是否带有成交
func (t *TradeUpdate) IsFill() bool {
	return t.Event == TradeUpdateFill || t.Event == TradeUpdatePartialFill
}
