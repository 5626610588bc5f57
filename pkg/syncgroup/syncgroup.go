package syncgroup

import (
	"sync"
)

// SyncGroup 是 sync.WaitGroup 的包装器，简化 goroutine 生命周期管理
// 自动管理 Add() 和 Done()，减少遗漏 Done() 的风险
type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	running int // 当前运行的 goroutine 数量
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Go 启动一个由本组管理的 goroutine
func (w *SyncGroup) Go(fn func()) {
	if fn == nil {
		return
	}

	w.mu.Lock()
	w.running++
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer func() {
			w.wg.Done()
			w.mu.Lock()
			w.running--
			w.mu.Unlock()
		}()
		fn()
	}()
}

// Running 返回当前运行的 goroutine 数量
func (w *SyncGroup) Running() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Wait 等待所有 goroutine 完成
func (w *SyncGroup) Wait() {
	w.wg.Wait()
}
