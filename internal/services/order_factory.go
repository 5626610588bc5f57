package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/gobroker/internal/domain"
	"github.com/betbot/gobroker/pkg/config"
	"github.com/betbot/gobroker/pkg/sdk/alpaca"
)

// maxClientOrderIDLen 券商端对 client_order_id 的长度上限
const maxClientOrderIDLen = 48

// OrderFactory 把计划订单变成可提交的下单请求
//
// 确定性是核心约束：同一 (策略, 轮次, 标的, 方向) 必须产生同一个
// client_order_id——重试提交时券商据此去重，避免重复下单。
type OrderFactory struct {
	exec config.ExecutionConfig
}

// NewOrderFactory 创建订单工厂
func NewOrderFactory(exec config.ExecutionConfig) *OrderFactory {
	return &OrderFactory{exec: exec}
}

// ClientOrderID 生成确定性的幂等键
//
// 组成部分能放下时直接拼接（可读、便于排障）；超长时退化为
// symbol-side-<hash前12位> 的压缩形式，哈希覆盖完整原文以保持唯一性。
func (f *OrderFactory) ClientOrderID(strategyID, rebalanceID string, symbol string, side domain.Side) string {
	full := strings.Join([]string{strategyID, rebalanceID, symbol, string(side)}, "|")
	if len(full) <= maxClientOrderIDLen {
		return full
	}

	sum := sha256.Sum256([]byte(full))
	short := fmt.Sprintf("%s-%s-%s", symbol, side, hex.EncodeToString(sum[:])[:12])
	if len(short) > maxClientOrderIDLen {
		short = short[:maxClientOrderIDLen]
	}
	return short
}

// BuildOrderRequest 把计划订单填充为完整的提交载荷
//
// 缺省字段取执行配置的默认值；数量按配置的舍入模式取整到整股，
// 舍入后归零视为错误——静默提交零股订单只会被券商拒绝。
func (f *OrderFactory) BuildOrderRequest(planned domain.PlannedOrder, strategyID, rebalanceID string) (*alpaca.OrderRequest, error) {
	if planned.Symbol == "" {
		return nil, errors.New("planned order missing symbol")
	}
	if planned.Side != domain.SideBuy && planned.Side != domain.SideSell {
		return nil, errors.Errorf("planned order for %s has invalid side %q", planned.Symbol, planned.Side)
	}

	qty, err := f.roundQty(planned.Qty)
	if err != nil {
		return nil, errors.Wrapf(err, "planned order for %s", planned.Symbol)
	}

	orderType := string(planned.Type)
	if orderType == "" {
		orderType = f.exec.OrderType
	}
	tif := string(planned.TimeInForce)
	if tif == "" {
		tif = f.exec.TimeInForce
	}
	if orderType == "limit" && planned.LimitPrice == nil {
		return nil, errors.Errorf("planned limit order for %s missing limit price", planned.Symbol)
	}

	return &alpaca.OrderRequest{
		Symbol:        planned.Symbol,
		Qty:           qty,
		Side:          string(planned.Side),
		Type:          orderType,
		TimeInForce:   tif,
		LimitPrice:    planned.LimitPrice,
		ClientOrderID: f.ClientOrderID(strategyID, rebalanceID, planned.Symbol, planned.Side),
	}, nil
}

// roundQty 按配置模式把数量取整到整股
func (f *OrderFactory) roundQty(qty decimal.Decimal) (decimal.Decimal, error) {
	if qty.Sign() <= 0 {
		return decimal.Zero, errors.Errorf("quantity %s is not positive", qty)
	}

	var rounded decimal.Decimal
	switch f.exec.RoundingMode {
	case "nearest":
		rounded = qty.Round(0)
	default: // down
		rounded = qty.Floor()
	}
	if rounded.Sign() <= 0 {
		return decimal.Zero, errors.Errorf("quantity %s rounds to zero shares", qty)
	}
	return rounded, nil
}
