package services

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/gobroker/internal/domain"
	"github.com/betbot/gobroker/pkg/logger"
	"github.com/betbot/gobroker/pkg/sdk/alpaca"
	"github.com/betbot/gobroker/pkg/sdk/stream"
)

var decoderLog = logger.Component("stream_decoder")

// StreamDecoder 把通用流消息解码为类型化的订单生命周期事件
//
// 单条畸形消息只记日志并跳过——一条坏消息绝不能终止整个事件流。
type StreamDecoder struct{}

// NewStreamDecoder 创建解码器
func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{}
}

// tradeUpdatePayload 事件载荷（字段名存在历史变体，timestamp 和 at 二选一）
type tradeUpdatePayload struct {
	Event       string          `json:"event"`
	Price       json.RawMessage `json:"price"`
	Qty         json.RawMessage `json:"qty"`
	Timestamp   string          `json:"timestamp"`
	At          string          `json:"at"`
	ExecutionID string          `json:"execution_id"`
	PositionQty json.RawMessage `json:"position_qty"`
	Order       json.RawMessage `json:"order"`
}

// Decode 尝试把一条消息解码为 TradeUpdate
// 返回 false 表示消息与主题无关、缺少内嵌订单、或格式损坏（已记日志）
func (d *StreamDecoder) Decode(msg stream.Message) (*domain.TradeUpdate, bool) {
	if msg.Stream != stream.StreamTradeUpdates {
		return nil, false
	}

	var payload tradeUpdatePayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		decoderLog.Warnf("⚠️ [事件流] 跳过畸形消息: %v", err)
		return nil, false
	}
	if len(payload.Order) == 0 || string(payload.Order) == "null" {
		decoderLog.Warnf("⚠️ [事件流] 跳过缺少内嵌订单的 %q 事件", payload.Event)
		return nil, false
	}

	order, err := alpaca.ParseOrder(payload.Order)
	if err != nil {
		decoderLog.Warnf("⚠️ [事件流] 跳过订单解码失败的消息: %v", err)
		return nil, false
	}

	update := &domain.TradeUpdate{
		Event:       domain.TradeUpdateEvent(payload.Event),
		Order:       orderToDomain(order),
		Price:       coerceDecimal(payload.Price),
		Qty:         coerceDecimal(payload.Qty),
		Timestamp:   resolveTimestamp(payload, order),
		ExecutionID: payload.ExecutionID,
		PositionQty: coerceDecimal(payload.PositionQty),
	}
	return update, true
}

// Run 消费流消息并把解码出的事件写入状态管理器
// ctx 取消或输入通道耗尽时返回
func (d *StreamDecoder) Run(ctx context.Context, in <-chan stream.Message, state *StateManager) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			update, ok := d.Decode(msg)
			if !ok {
				continue
			}
			state.ApplyTradeUpdate(*update)
			decoderLog.Debugf("📨 [事件流] %s: order=%s symbol=%s status=%s",
				update.Event, update.Order.ID, update.Order.Symbol, update.Order.Status)
		}
	}
}

// coerceDecimal 宽容的数值解析：接受 JSON 字符串或数字，失败返回 nil
func coerceDecimal(raw json.RawMessage) *decimal.Decimal {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return nil
	}
	dec, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &dec
}

// resolveTimestamp 时间戳归一化：timestamp → at → 订单自身的最后更新时间
func resolveTimestamp(payload tradeUpdatePayload, order *alpaca.Order) time.Time {
	for _, candidate := range []string{payload.Timestamp, payload.At} {
		if candidate == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339Nano, candidate); err == nil {
			return ts
		}
		// 历史格式：epoch 纳秒
		if ns, err := strconv.ParseInt(candidate, 10, 64); err == nil && ns > 0 {
			return time.Unix(0, ns)
		}
	}
	return order.UpdatedAt
}
