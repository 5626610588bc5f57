package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// TestDecodeFrame_SingleObject 单个 JSON 对象帧
func TestDecodeFrame_SingleObject(t *testing.T) {
	msgs, err := decodeFrame([]byte(`{"stream":"trade_updates","data":{"event":"fill"}}`), false)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Stream != StreamTradeUpdates {
		t.Fatalf("unexpected stream: %s", msgs[0].Stream)
	}
}

// TestDecodeFrame_Array 一个帧携带多条消息
func TestDecodeFrame_Array(t *testing.T) {
	frame := `[{"stream":"listening","data":{}},{"stream":"trade_updates","data":{"event":"new"}}]`
	msgs, err := decodeFrame([]byte(frame), false)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Stream != StreamListening || msgs[1].Stream != StreamTradeUpdates {
		t.Fatalf("unexpected streams: %s, %s", msgs[0].Stream, msgs[1].Stream)
	}
}

// TestDecodeFrame_Msgpack 二进制帧经 msgpack 归一化为 JSON
func TestDecodeFrame_Msgpack(t *testing.T) {
	packed, err := msgpack.Marshal(map[string]any{
		"stream": "trade_updates",
		"data":   map[string]any{"event": "fill"},
	})
	if err != nil {
		t.Fatalf("msgpack marshal: %v", err)
	}

	msgs, err := decodeFrame(packed, true)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Stream != StreamTradeUpdates {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	var data struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(msgs[0].Data, &data); err != nil {
		t.Fatalf("data not normalized to JSON: %v", err)
	}
	if data.Event != "fill" {
		t.Fatalf("unexpected event: %s", data.Event)
	}
}

// TestDecodeFrame_Garbage 畸形帧返回错误而非 panic
func TestDecodeFrame_Garbage(t *testing.T) {
	if _, err := decodeFrame([]byte(`{not json`), false); err == nil {
		t.Fatal("expected error for garbage frame")
	}
	msgs, err := decodeFrame([]byte("   "), false)
	if err != nil || msgs != nil {
		t.Fatalf("blank frame should decode to nothing: msgs=%v err=%v", msgs, err)
	}
}

// authServer 模拟券商事件流端点：校验认证命令并按脚本应答
func authServer(t *testing.T, authorize bool) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var cmd struct {
			Action string `json:"action"`
			Data   struct {
				KeyID     string `json:"key_id"`
				SecretKey string `json:"secret_key"`
			} `json:"data"`
		}
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		if cmd.Action != "authenticate" || cmd.Data.KeyID == "" || cmd.Data.SecretKey == "" {
			conn.WriteJSON(Message{Stream: StreamAuthorization, Data: json.RawMessage(`{"status":"unauthorized"}`)})
			return
		}

		status := "unauthorized"
		if authorize {
			status = "authorized"
		}
		conn.WriteJSON(Message{Stream: StreamAuthorization, Data: json.RawMessage(`{"status":"` + status + `","action":"authenticate"}`)})
		if !authorize {
			return
		}

		// 等 listen 命令后推一条订单事件
		var listen struct {
			Action string `json:"action"`
			Data   struct {
				Streams []string `json:"streams"`
			} `json:"data"`
		}
		if err := conn.ReadJSON(&listen); err != nil {
			return
		}
		conn.WriteJSON(Message{Stream: StreamListening, Data: json.RawMessage(`{"streams":["trade_updates"]}`)})
		conn.WriteJSON(Message{Stream: StreamTradeUpdates, Data: json.RawMessage(`{"event":"new","order":{"id":"o-1"}}`)})

		// 保持连接直到对端关闭
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// TestClient_ConnectSubscribeListen 完整生命周期：认证 → 订阅 → 收消息
func TestClient_ConnectSubscribeListen(t *testing.T) {
	srv := authServer(t, true)
	defer srv.Close()

	c := NewClient(Config{
		URL:       wsURL(srv),
		KeyID:     "key",
		SecretKey: "secret",
	})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if c.State() != StateListening {
		t.Fatalf("unexpected state: %s", c.State())
	}
	if err := c.Subscribe(StreamTradeUpdates); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	var got []Message
	timeout := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case msg, ok := <-c.Listen():
			if !ok {
				t.Fatalf("channel closed early, got %d messages", len(got))
			}
			got = append(got, msg)
		case <-timeout:
			t.Fatalf("timed out, got %d messages", len(got))
		}
	}

	if got[0].Stream != StreamListening {
		t.Fatalf("expected listening ack first, got %s", got[0].Stream)
	}
	if got[1].Stream != StreamTradeUpdates {
		t.Fatalf("expected trade update, got %s", got[1].Stream)
	}
}

// TestClient_AuthRejected 认证被拒必须返回 ErrAuthFailed（致命，不重连）
func TestClient_AuthRejected(t *testing.T) {
	srv := authServer(t, false)
	defer srv.Close()

	c := NewClient(Config{
		URL:       wsURL(srv),
		KeyID:     "key",
		SecretKey: "wrong",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.Connect(ctx)
	if err == nil {
		t.Fatal("expected auth error")
	}
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("unexpected state after rejection: %s", c.State())
	}
}

// TestClient_ChannelClosesOnDisconnect 对端断开后消息通道关闭
func TestClient_ChannelClosesOnDisconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var cmd map[string]any
		_ = conn.ReadJSON(&cmd)
		_ = conn.WriteJSON(Message{Stream: StreamAuthorization, Data: json.RawMessage(`{"status":"authorized"}`)})
		conn.Close() // 认证后立刻断开
	}))
	defer srv.Close()

	c := NewClient(Config{URL: wsURL(srv), KeyID: "k", SecretKey: "s"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	select {
	case _, ok := <-c.Listen():
		if ok {
			// 收到残留消息也行，继续等关闭
			select {
			case _, ok2 := <-c.Listen():
				if ok2 {
					t.Fatal("expected channel to close")
				}
			case <-time.After(5 * time.Second):
				t.Fatal("channel did not close")
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel did not close")
	}
}
