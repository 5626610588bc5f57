package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account 账户领域模型
// 每次对账周期从券商整体拉取并整体替换，不做增量合并
type Account struct {
	ID               string          // 账户 ID
	AccountNumber    string          // 账户编号
	Status           string          // 账户状态（ACTIVE 等）
	Currency         string          // 计价货币
	Cash             decimal.Decimal // 现金余额
	Equity           decimal.Decimal // 净值
	BuyingPower      decimal.Decimal // 购买力
	PortfolioValue   decimal.Decimal // 组合市值
	LongMarketValue  decimal.Decimal // 多头市值
	ShortMarketValue decimal.Decimal // 空头市值
	Multiplier       decimal.Decimal // 杠杆倍数
	PatternDayTrader bool            // 是否被标记为 PDT
	TradingBlocked   bool            // 是否禁止交易
	CreatedAt        time.Time       // 开户时间
}

// CanTrade 检查账户是否可以交易
func (a *Account) CanTrade() bool {
	return a != nil && a.Status == "ACTIVE" && !a.TradingBlocked
}
