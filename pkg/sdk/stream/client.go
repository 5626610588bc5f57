package stream

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "stream")

// State 连接状态
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateListening
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateListening:
		return "listening"
	default:
		return "disconnected"
	}
}

// Client 一条私有事件流连接
//
// 生命周期：Connect（拨号 + 认证）→ Subscribe → Listen → 通道关闭。
// 通道关闭表示连接已结束（对端关闭或解码致命错误），调用方应视为
// 「需要重连」；本类型不自行重连，认证失败更是直接致命。
type Client struct {
	cfg    Config
	binary bool // 二进制帧解码能力，构造时一次性确定

	connMu sync.Mutex
	conn   *websocket.Conn

	state atomic.Int32

	msgCh     chan Message
	listening sync.Once
	closeOnce sync.Once
	doneCh    chan struct{}
}

// NewClient 创建流客户端（不拨号）
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:    cfg,
		binary: cfg.BinaryFrames,
		msgCh:  make(chan Message, cfg.MessageBufferSize),
		doneCh: make(chan struct{}),
	}
}

// State 返回当前连接状态
func (c *Client) State() State {
	return State(c.state.Load())
}

// Connect 打开连接并立刻认证
// 认证应答可能是单个对象，也可能是数组的第一个元素；只接受
// stream=authorization 且 data.status=authorized 的应答，
// 其余情况返回 ErrAuthFailed 并关闭连接
func (c *Client) Connect(ctx context.Context) error {
	c.state.Store(int32(StateConnecting))

	dialer := websocket.Dialer{
		ReadBufferSize:   c.cfg.ReadBufferSize,
		WriteBufferSize:  c.cfg.WriteBufferSize,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return errors.Wrapf(err, "连接 %s 失败", c.cfg.URL)
	}

	c.state.Store(int32(StateAuthenticating))

	authMsg := map[string]any{
		"action": "authenticate",
		"data": map[string]string{
			"key_id":     c.cfg.KeyID,
			"secret_key": c.cfg.SecretKey,
		},
	}
	if err := conn.WriteJSON(authMsg); err != nil {
		conn.Close()
		c.state.Store(int32(StateDisconnected))
		return errors.Wrap(err, "发送认证命令失败")
	}

	if err := c.awaitAuthAck(conn); err != nil {
		conn.Close()
		c.state.Store(int32(StateDisconnected))
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.state.Store(int32(StateListening))
	log.Infof("已连接并通过认证: %s", c.cfg.URL)
	return nil
}

func (c *Client) awaitAuthAck(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.AuthTimeout))
	defer conn.SetReadDeadline(time.Time{})

	msgType, frame, err := conn.ReadMessage()
	if err != nil {
		return errors.Wrap(ErrAuthFailed, err.Error())
	}

	msgs, err := decodeFrame(frame, c.binary && msgType == websocket.BinaryMessage)
	if err != nil || len(msgs) == 0 {
		return errors.Wrap(ErrAuthFailed, "无法解码认证应答")
	}

	first := msgs[0]
	if first.Stream != StreamAuthorization {
		return errors.Wrapf(ErrAuthFailed, "预期 authorization 应答，得到 %q", first.Stream)
	}

	var ack struct {
		Status string `json:"status"`
		Action string `json:"action"`
	}
	if err := json.Unmarshal(first.Data, &ack); err != nil {
		return errors.Wrap(ErrAuthFailed, "无法解析认证状态")
	}
	if ack.Status != "authorized" {
		return errors.Wrapf(ErrAuthFailed, "认证状态 %q", ack.Status)
	}
	return nil
}

// Subscribe 发送 listen 命令订阅主题
// 乐观发送，不等待确认（listening 应答会出现在消息流里）
func (c *Client) Subscribe(topics ...string) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return errors.New("未连接")
	}

	msg := map[string]any{
		"action": "listen",
		"data": map[string]any{
			"streams": topics,
		},
	}
	return conn.WriteJSON(msg)
}

// Listen 返回解码后的消息通道，首次调用启动读取循环
// 通道在连接关闭或解码致命错误后关闭（不报错），调用方据此重连
func (c *Client) Listen() <-chan Message {
	c.listening.Do(func() {
		go c.readLoop()
	})
	return c.msgCh
}

func (c *Client) readLoop() {
	defer func() {
		c.state.Store(int32(StateDisconnected))
		close(c.msgCh)
		close(c.doneCh)
	}()

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return
	}

	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("读取失败，结束消息流: %v", err)
			}
			return
		}

		// 能力未开启时对二进制帧做尽力而为的文本解码
		binary := msgType == websocket.BinaryMessage && c.binary
		msgs, err := decodeFrame(frame, binary)
		if err != nil {
			log.Warnf("解码失败，结束消息流: %v", err)
			return
		}

		for _, m := range msgs {
			c.msgCh <- m
		}
	}
}

// Close 关闭连接（幂等）
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.connMu.Lock()
		conn := c.conn
		c.conn = nil
		c.connMu.Unlock()

		if conn != nil {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()

			select {
			case <-c.doneCh:
			case <-time.After(3 * time.Second):
				log.Warn("关闭超时")
			}
		}
		c.state.Store(int32(StateDisconnected))
	})
}
