package services

import (
	"context"

	"github.com/betbot/gobroker/pkg/sdk/alpaca"
)

// BrokerageAPI 是对账循环需要的券商只读操作
// 由 *alpaca.Client 实现；测试中用假实现替换
type BrokerageAPI interface {
	GetAccount(ctx context.Context) (*alpaca.Account, error)
	ListPositions(ctx context.Context) ([]alpaca.Position, error)
	ListOpenOrders(ctx context.Context) ([]alpaca.Order, error)
	ListOrders(ctx context.Context, q alpaca.ListOrdersQuery) ([]alpaca.Order, error)
}
