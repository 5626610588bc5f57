package domain

import (
	"github.com/shopspring/decimal"
)

// Position 仓位领域模型
// 以 symbol 为键，每次拉取整体替换（不按成交增量累加）
type Position struct {
	Symbol         string          // 标的代码
	Qty            decimal.Decimal // 持仓数量（空头为负）
	Side           string          // long / short
	AvgEntryPrice  decimal.Decimal // 平均入场价格
	MarketValue    decimal.Decimal // 当前市值
	CostBasis      decimal.Decimal // 总成本
	CurrentPrice   decimal.Decimal // 最新价格
	UnrealizedPL   decimal.Decimal // 未实现盈亏
	UnrealizedPLPC decimal.Decimal // 未实现盈亏比例
}

// IsLong 检查是否为多头仓位
func (p *Position) IsLong() bool {
	return p.Side == "long" || p.Qty.IsPositive()
}

// IsFlat 检查仓位是否为零
func (p *Position) IsFlat() bool {
	return p.Qty.IsZero()
}
