package stream

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Supervisor 把单条连接包装成可续期的事件流
//
// 传输层的消息通道一旦耗尽就表示连接结束；Supervisor 等待退避间隔后
// 重连、重新认证、重新订阅，然后在同一个外层通道上继续投递。
// 认证失败不重试（凭证错误重试没有意义），直接返回错误。
type Supervisor struct {
	cfg      Config
	topics   []string
	delay    time.Duration
	maxDelay time.Duration
	out      chan Message
}

// NewSupervisor 创建流监督器
func NewSupervisor(cfg Config, topics ...string) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		topics:   topics,
		delay:    defaultReconnectDelay,
		maxDelay: defaultMaxReconnectDelay,
		out:      make(chan Message, cfg.withDefaults().MessageBufferSize),
	}
}

// Messages 返回长生命周期的外层消息通道
// Run 退出时通道关闭
func (s *Supervisor) Messages() <-chan Message {
	return s.out
}

// Run 阻塞运行，直到 ctx 取消或认证失败
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.out)

	backoff := s.delay
	for {
		if ctx.Err() != nil {
			return nil
		}

		client := NewClient(s.cfg)
		if err := client.Connect(ctx); err != nil {
			if errors.Is(err, ErrAuthFailed) {
				log.Errorf("认证失败，停止事件流: %v", err)
				return err
			}
			log.Warnf("连接失败，%s 后重试: %v", backoff, err)
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, s.maxDelay)
			continue
		}

		if err := client.Subscribe(s.topics...); err != nil {
			log.Warnf("订阅失败，重连: %v", err)
			client.Close()
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, s.maxDelay)
			continue
		}

		// 连接健康，重置退避
		backoff = s.delay
		exhausted := s.pump(ctx, client)
		client.Close()
		if !exhausted {
			return nil // ctx 取消
		}

		log.Warnf("消息流耗尽，%s 后重连", backoff)
		if !sleepCtx(ctx, backoff) {
			return nil
		}
		backoff = nextBackoff(backoff, s.maxDelay)
	}
}

// pump 把一条连接的消息透传到外层通道
// 返回 true 表示内层通道耗尽（需要重连），false 表示 ctx 取消
func (s *Supervisor) pump(ctx context.Context, client *Client) bool {
	in := client.Listen()
	for {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-in:
			if !ok {
				return true
			}
			select {
			case s.out <- msg:
			case <-ctx.Done():
				return false
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
