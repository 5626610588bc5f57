package domain

import (
	"time"
)

// BrokerageState 券商侧状态的本地聚合快照
//
// 读者拿到的永远是一份完整的、不可变的时点快照：
// 持有旧快照引用的读者继续看到自洽的旧视图，写入方通过 copy-on-write
// 发布新快照，绝不原地修改已发布的对象。
//
// Version 是唯一的陈旧度信号：每次成功的字段组更新加一（约定为
// 「每次更新调用加一」，而不是每个周期加一），只增不减。
type BrokerageState struct {
	Version    uint64              // 单调递增的版本号
	UpdatedAt  time.Time           // 最近一次成功更新的时间
	Account    *Account            // 账户（整体替换）
	Positions  map[string]Position // 仓位，以 symbol 为键（整体替换）
	OpenOrders map[string]Order    // 未结订单，以订单 ID 为键（整体替换或流事件增量）
}

// NewBrokerageState 创建空的初始状态（version=0，bootstrap 前）
func NewBrokerageState() *BrokerageState {
	return &BrokerageState{
		Positions:  make(map[string]Position),
		OpenOrders: make(map[string]Order),
	}
}

// OpenOrderForSymbol 返回指定标的的第一个未结订单（没有则返回 nil）
func (s *BrokerageState) OpenOrderForSymbol(symbol string) *Order {
	for _, o := range s.OpenOrders {
		if o.Symbol == symbol {
			order := o
			return &order
		}
	}
	return nil
}

// HasOpenOrders 检查是否存在未结订单
func (s *BrokerageState) HasOpenOrders() bool {
	return len(s.OpenOrders) > 0
}
