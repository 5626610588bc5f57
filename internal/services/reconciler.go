package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/betbot/gobroker/internal/domain"
	"github.com/betbot/gobroker/pkg/config"
	"github.com/betbot/gobroker/pkg/logger"
	"github.com/betbot/gobroker/pkg/sdk/alpaca"
	"github.com/betbot/gobroker/pkg/syncgroup"
)

var reconcileLog = logger.Component("reconciler")

// Reconciler 驱动本地状态与券商状态的持续对账
//
// 状态机：Idle → Bootstrapping → Polling → Stopped。
// Bootstrap 是一次性的同步全量拉取，必须在任何下单之前完成——
// 避免重复提交的前提是先知道哪些订单已经在场。
// 之后的轮询循环每个周期整体重拉三个字段组，以带宽换取正确性的简单：
// 任何漏掉的事件、重启、时钟偏差都会在下一个周期被纠正，
// 代价是最多一个轮询间隔的陈旧度。
type Reconciler struct {
	api      BrokerageAPI
	state    *StateManager
	interval time.Duration

	// 全量审计间隔：除常规轮询外，定期拉取最近终结的订单做日志审计
	fullResyncInterval time.Duration
	lastFullResyncMu   sync.Mutex
	lastFullResync     time.Time

	sg     *syncgroup.SyncGroup
	cancel context.CancelFunc
	runMu  sync.Mutex

	consecFailures int
}

// NewReconciler 创建对账器（不启动）
func NewReconciler(api BrokerageAPI, state *StateManager, cfg config.ReconcileConfig) *Reconciler {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		api:                api,
		state:              state,
		interval:           interval,
		fullResyncInterval: cfg.FullResyncInterval,
		sg:                 syncgroup.NewSyncGroup(),
	}
}

// Bootstrap 一次性全量拉取账户、仓位、全部未结订单并写入状态
// 同步执行，任何一步失败都向上传播（启动期不允许带着未知状态交易）
func (r *Reconciler) Bootstrap(ctx context.Context) error {
	reconcileLog.Info("🚀 [对账] bootstrap 开始：全量拉取账户/仓位/未结订单")

	account, err := r.api.GetAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "bootstrap 拉取账户失败")
	}
	r.state.UpdateAccount(accountToDomain(account))

	positions, err := r.api.ListPositions(ctx)
	if err != nil {
		return errors.Wrap(err, "bootstrap 拉取仓位失败")
	}
	r.state.UpdatePositions(positionsToDomain(positions))

	orders, err := r.api.ListOpenOrders(ctx)
	if err != nil {
		return errors.Wrap(err, "bootstrap 拉取未结订单失败")
	}
	r.state.UpdateOpenOrders(ordersToDomain(orders))

	r.setLastFullResync(time.Now())

	snap := r.state.Snapshot()
	reconcileLog.Infof("✅ [对账] bootstrap 完成: version=%d, positions=%d, open_orders=%d",
		snap.Version, len(snap.Positions), len(snap.OpenOrders))
	return nil
}

// Start 启动后台轮询循环（幂等：重复调用只启动一次）
func (r *Reconciler) Start(ctx context.Context) {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.sg.Go(func() {
		r.runLoop(loopCtx)
	})
	reconcileLog.Infof("🔄 [对账] 轮询已启动，间隔 %s", r.interval)
}

// Stop 协作式停止轮询并等待循环退出
func (r *Reconciler) Stop() {
	r.runMu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	r.sg.Wait()
	reconcileLog.Info("🔄 [对账] 已停止")
}

// runLoop 轮询主循环：一个周期完整结束后才进入下一次等待
func (r *Reconciler) runLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// 周期内的任何失败只记日志不终止循环——单次抖动由下个周期重试，
			// 失败的字段组保留上一次的已知好值
			if err := r.runCycle(ctx); err != nil {
				r.consecFailures++
				if r.consecFailures > 3 {
					reconcileLog.Warnf("⚠️ [对账] 连续 %d 个周期失败: %v", r.consecFailures, err)
				} else {
					reconcileLog.Warnf("⚠️ [对账] 本周期部分失败，状态保持陈旧: %v", err)
				}
			} else {
				r.consecFailures = 0
			}
		}
	}
}

// runCycle 执行一个同步周期，并吞掉 panic（连 panic 都不允许杀死循环）
func (r *Reconciler) runCycle(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Errorf("同步周期 panic: %v", rec)
		}
	}()
	return r.syncCycle(ctx)
}

// syncCycle 一个同步周期：三个阻塞的 REST 调用派发到各自的 goroutine，
// 每个结果完成后独立提交——一致性以字段组为单位，不以周期为单位，
// 一个调用失败不妨碍另外两个提交
func (r *Reconciler) syncCycle(ctx context.Context) error {
	cycleID := uuid.NewString()[:8]
	started := time.Now()
	reconcileLog.Debugf("🔄 [对账] 周期 %s 开始", cycleID)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures []error

	record := func(what string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, errors.Wrap(err, what))
		reconcileLog.Warnf("⚠️ [对账] 周期 %s: %s 失败: %v", cycleID, what, err)
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		orders, err := r.api.ListOpenOrders(ctx)
		if err != nil {
			record("拉取未结订单", err)
			return
		}
		r.state.UpdateOpenOrders(ordersToDomain(orders))
	}()
	go func() {
		defer wg.Done()
		positions, err := r.api.ListPositions(ctx)
		if err != nil {
			record("拉取仓位", err)
			return
		}
		r.state.UpdatePositions(positionsToDomain(positions))
	}()
	go func() {
		defer wg.Done()
		account, err := r.api.GetAccount(ctx)
		if err != nil {
			record("拉取账户", err)
			return
		}
		r.state.UpdateAccount(accountToDomain(account))
	}()
	wg.Wait()

	r.maybeAuditClosedOrders(ctx, cycleID)

	reconcileLog.Debugf("🔄 [对账] 周期 %s 结束: version=%d, 耗时=%s, 失败=%d",
		cycleID, r.state.Version(), time.Since(started).Round(time.Millisecond), len(failures))

	if len(failures) > 0 {
		return failures[0]
	}
	return nil
}

// maybeAuditClosedOrders 按全量审计间隔拉取最近终结的订单
// 纯审计用途：整周期内开又关的订单不会出现在任何 open 拉取里，
// 这里把它们补进日志，方便排查「本地从未见过的成交」
func (r *Reconciler) maybeAuditClosedOrders(ctx context.Context, cycleID string) {
	if r.fullResyncInterval <= 0 {
		return
	}
	r.lastFullResyncMu.Lock()
	due := time.Since(r.lastFullResync) >= r.fullResyncInterval
	since := r.lastFullResync
	r.lastFullResyncMu.Unlock()
	if !due {
		return
	}

	closed, err := r.api.ListOrders(ctx, listClosedSince(since))
	if err != nil {
		reconcileLog.Warnf("⚠️ [对账] 周期 %s: 终结订单审计失败: %v", cycleID, err)
		return
	}
	r.setLastFullResync(time.Now())

	for _, o := range closed {
		d := orderToDomain(&o)
		if d.IsTerminal() {
			reconcileLog.Infof("📋 [对账] 审计: 订单 %s (%s %s %s) 已终结: %s",
				d.ID, d.Side, d.Qty, d.Symbol, d.Status)
		}
	}
}

func listClosedSince(since time.Time) alpaca.ListOrdersQuery {
	return alpaca.ListOrdersQuery{Status: "closed", Limit: 500, After: since}
}

func (r *Reconciler) setLastFullResync(t time.Time) {
	r.lastFullResyncMu.Lock()
	r.lastFullResync = t
	r.lastFullResyncMu.Unlock()
}

// ApplyTradeUpdate 把流事件转交给状态管理器（两个写入方共享同一把锁）
func (r *Reconciler) ApplyTradeUpdate(update domain.TradeUpdate) {
	r.state.ApplyTradeUpdate(update)
}
