// Package stream 提供券商私有事件流的 WebSocket 客户端
// 传输层只负责连接、认证、订阅、解码帧；断线自愈由 Supervisor 负责
package stream

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// 已知的流主题
	StreamAuthorization = "authorization"
	StreamListening     = "listening"
	StreamTradeUpdates  = "trade_updates"

	// 连接设置
	defaultHandshakeTimeout = 15 * time.Second
	defaultAuthTimeout      = 10 * time.Second
	defaultReadBufferSize   = 4096
	defaultWriteBufferSize  = 4096

	// 消息通道缓冲区大小
	defaultMessageBufferSize = 1000

	// Supervisor 重连设置
	defaultReconnectDelay    = 2 * time.Second
	defaultMaxReconnectDelay = 30 * time.Second
)

// ErrAuthFailed 认证被拒绝：该连接不可用，传输层不自愈
var ErrAuthFailed = errors.New("stream authentication rejected")

// Message 解码后的通用流消息（一个入站帧可能携带多条）
type Message struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Config 流客户端配置
type Config struct {
	URL       string // wss 端点
	KeyID     string // API key
	SecretKey string // API secret

	// 二进制帧能力：构造时一次性确定，不靠运行期异常探测
	// 开启后二进制帧按 msgpack 解码，否则对帧内容做尽力而为的文本解码
	BinaryFrames bool

	HandshakeTimeout  time.Duration
	AuthTimeout       time.Duration // 等待认证应答的超时
	ReadBufferSize    int
	WriteBufferSize   int
	MessageBufferSize int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BinaryFrames:      true,
		HandshakeTimeout:  defaultHandshakeTimeout,
		AuthTimeout:       defaultAuthTimeout,
		ReadBufferSize:    defaultReadBufferSize,
		WriteBufferSize:   defaultWriteBufferSize,
		MessageBufferSize: defaultMessageBufferSize,
	}
}

func (c *Config) withDefaults() Config {
	out := *c
	def := DefaultConfig()
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = def.HandshakeTimeout
	}
	if out.AuthTimeout <= 0 {
		out.AuthTimeout = def.AuthTimeout
	}
	if out.ReadBufferSize <= 0 {
		out.ReadBufferSize = def.ReadBufferSize
	}
	if out.WriteBufferSize <= 0 {
		out.WriteBufferSize = def.WriteBufferSize
	}
	if out.MessageBufferSize <= 0 {
		out.MessageBufferSize = def.MessageBufferSize
	}
	return out
}

// decodeFrame 把一个入站帧归一化成消息列表
// 帧内容可能是单个对象，也可能是对象数组；二进制帧按 msgpack 解码后
// 重新编码为 JSON，让下游只面对一种表示
func decodeFrame(data []byte, binary bool) ([]Message, error) {
	if binary {
		var decoded any
		if err := msgpack.Unmarshal(data, &decoded); err != nil {
			return nil, errors.Wrap(err, "msgpack 解码失败")
		}
		normalized, err := json.Marshal(decoded)
		if err != nil {
			return nil, errors.Wrap(err, "msgpack 归一化失败")
		}
		data = normalized
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var msgs []Message
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, errors.Wrap(err, "解码消息数组失败")
		}
		return msgs, nil
	}

	var msg Message
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, errors.Wrap(err, "解码消息失败")
	}
	return []Message{msg}, nil
}
