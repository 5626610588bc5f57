package domain

import (
	"github.com/shopspring/decimal"
)

// PlannedOrder 再平衡计划器产出的下单意图
// 本子系统只消费它：OrderFactory 把它转换成带幂等键的提交载荷
type PlannedOrder struct {
	Symbol string          // 标的代码
	Qty    decimal.Decimal // 计划数量
	Side   Side            // 方向

	// 可选覆盖项：为空时使用执行配置中的默认值
	Type        OrderType        // 订单类型覆盖（可选）
	TimeInForce TimeInForce      // 有效期覆盖（可选）
	LimitPrice  *decimal.Decimal // 限价覆盖（可选）
}
