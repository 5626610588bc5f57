package services

import (
	"github.com/betbot/gobroker/internal/domain"
	"github.com/betbot/gobroker/pkg/sdk/alpaca"
)

// accountToDomain 把券商账户资源转换为领域模型
func accountToDomain(a *alpaca.Account) *domain.Account {
	if a == nil {
		return nil
	}
	return &domain.Account{
		ID:               a.ID,
		AccountNumber:    a.AccountNumber,
		Status:           a.Status,
		Currency:         a.Currency,
		Cash:             a.Cash,
		Equity:           a.Equity,
		BuyingPower:      a.BuyingPower,
		PortfolioValue:   a.PortfolioValue,
		LongMarketValue:  a.LongMarketValue,
		ShortMarketValue: a.ShortMarketValue,
		Multiplier:       a.Multiplier,
		PatternDayTrader: a.PatternDayTrader,
		TradingBlocked:   a.TradingBlocked,
		CreatedAt:        a.CreatedAt,
	}
}

// positionsToDomain 转换仓位列表
func positionsToDomain(ps []alpaca.Position) []domain.Position {
	out := make([]domain.Position, 0, len(ps))
	for _, p := range ps {
		out = append(out, domain.Position{
			Symbol:         p.Symbol,
			Qty:            p.Qty,
			Side:           p.Side,
			AvgEntryPrice:  p.AvgEntryPrice,
			MarketValue:    p.MarketValue,
			CostBasis:      p.CostBasis,
			CurrentPrice:   p.CurrentPrice,
			UnrealizedPL:   p.UnrealizedPL,
			UnrealizedPLPC: p.UnrealizedPLPC,
		})
	}
	return out
}

// orderToDomain 转换单个订单
func orderToDomain(o *alpaca.Order) domain.Order {
	return domain.Order{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Qty:            o.Qty,
		FilledQty:      o.FilledQty,
		Side:           domain.Side(o.Side),
		Type:           domain.OrderType(o.Type),
		TimeInForce:    domain.TimeInForce(o.TimeInForce),
		LimitPrice:     o.LimitPrice,
		StopPrice:      o.StopPrice,
		FilledAvgPrice: o.FilledAvgPrice,
		Status:         domain.OrderStatus(o.Status),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
		SubmittedAt:    o.SubmittedAt,
		FilledAt:       o.FilledAt,
		CanceledAt:     o.CanceledAt,
		ExpiredAt:      o.ExpiredAt,
	}
}

// ordersToDomain 转换订单列表
func ordersToDomain(os []alpaca.Order) []domain.Order {
	out := make([]domain.Order, 0, len(os))
	for i := range os {
		out = append(out, orderToDomain(&os[i]))
	}
	return out
}
