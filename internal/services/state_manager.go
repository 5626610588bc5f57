package services

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/betbot/gobroker/internal/domain"
	"github.com/betbot/gobroker/pkg/logger"
)

var stateLog = logger.Component("state_manager")

// StateManager 持有 BrokerageState 的版本化快照存储
//
// 写入走 copy-on-write：每次更新整体替换一个字段组（account / positions /
// open_orders），版本号加一，然后原子发布新快照。已发出的快照永不被修改，
// 持有旧引用的读者继续看到自洽的时点视图。
//
// 版本号约定：每次成功的更新调用加一（不是每个同步周期加一）。
//
// 所有写入方（对账循环、事件流）共享同一把互斥锁；字段组之间是独立的
// 更新单元，绝不做更细粒度的合并。读取无锁（原子指针加载）。
type StateManager struct {
	mu      sync.Mutex
	current atomic.Pointer[domain.BrokerageState]
}

// NewStateManager 创建空状态（version=0）
func NewStateManager() *StateManager {
	m := &StateManager{}
	m.current.Store(domain.NewBrokerageState())
	return m
}

// Snapshot 返回当前快照引用（开销可忽略，调用方绝不能修改）
func (m *StateManager) Snapshot() *domain.BrokerageState {
	return m.current.Load()
}

// Version 返回当前版本号
func (m *StateManager) Version() uint64 {
	return m.current.Load().Version
}

// UpdateAccount 整体替换账户字段组
func (m *StateManager) UpdateAccount(account *domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.cloneLocked()
	next.Account = account
	m.publishLocked(next)
}

// UpdatePositions 整体替换仓位字段组（以 symbol 为键重建映射）
func (m *StateManager) UpdatePositions(positions []domain.Position) {
	bySymbol := make(map[string]domain.Position, len(positions))
	for _, p := range positions {
		bySymbol[p.Symbol] = p
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.cloneLocked()
	next.Positions = bySymbol
	m.publishLocked(next)
}

// UpdateOpenOrders 整体替换未结订单字段组（以订单 ID 为键重建映射）
func (m *StateManager) UpdateOpenOrders(orders []domain.Order) {
	byID := make(map[string]domain.Order, len(orders))
	for _, o := range orders {
		if o.ID == "" {
			continue
		}
		byID[o.ID] = o
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.cloneLocked()
	next.OpenOrders = byID
	m.publishLocked(next)
}

// ApplyTradeUpdate 按流事件增量维护未结订单字段组
// 终态订单移出 open_orders；最终状态不会被迟到的中间状态事件覆盖
func (m *StateManager) ApplyTradeUpdate(update domain.TradeUpdate) {
	order := update.Order
	if order.ID == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.current.Load()
	if existing, ok := cur.OpenOrders[order.ID]; ok {
		if existing.IsTerminal() && !order.IsTerminal() {
			stateLog.Debugf("忽略迟到的中间状态事件: order=%s status=%s", order.ID, order.Status)
			return
		}
	}

	next := m.cloneLocked()
	orders := make(map[string]domain.Order, len(next.OpenOrders)+1)
	for id, o := range next.OpenOrders {
		orders[id] = o
	}
	if order.IsTerminal() {
		delete(orders, order.ID)
	} else {
		orders[order.ID] = order
	}
	next.OpenOrders = orders
	m.publishLocked(next)
}

// cloneLocked 基于当前快照做浅拷贝（字段组引用照搬，由调用方替换其一）
func (m *StateManager) cloneLocked() *domain.BrokerageState {
	cur := m.current.Load()
	next := *cur
	return &next
}

// publishLocked 版本加一并原子发布
func (m *StateManager) publishLocked(next *domain.BrokerageState) {
	next.Version++
	next.UpdatedAt = time.Now()
	m.current.Store(next)
}
