package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pharmasignals/event"
	"pharmasignals/logger"
	"pharmasignals/metrics"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsSendBuffer = 32
)

// wsClient 单个 WebSocket 连接
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// WebSocketHub WebSocket 中心：把事件总线上的信号事件推送给所有连接
type WebSocketHub struct {
	upgrader   websocket.Upgrader
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	metrics    *metrics.PrometheusMetrics
}

// NewWebSocketHub 创建 WebSocket 中心，allowedOrigins 为空时允许所有来源
func NewWebSocketHub(allowedOrigins []string) *WebSocketHub {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &WebSocketHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		metrics:    metrics.GetPrometheusMetrics(),
	}
}

// Run 运行 WebSocket 中心，ctx 取消后关闭所有连接
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.metrics.SetWebSocketClients(0)
			return

		case client := <-h.register:
			h.clients[client] = true
			h.metrics.SetWebSocketClients(len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.metrics.SetWebSocketClients(len(h.clients))

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// 客户端消费过慢，断开
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.metrics.SetWebSocketClients(len(h.clients))
		}
	}
}

// Forward 消费事件总线并广播，总线关闭或 ctx 取消时返回
func (h *WebSocketHub) Forward(ctx context.Context, bus *event.EventBus) {
	ch := bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			h.Broadcast(ev)
		}
	}
}

// Broadcast 广播消息（非阻塞）
func (h *WebSocketHub) Broadcast(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("⚠️ 序列化 WebSocket 消息失败: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Channel 满了，丢弃消息
	}
}

func (h *WebSocketHub) handleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Debug("WebSocket 升级失败: %v", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(client)
	h.readPump(client)
}

// readPump 只处理控制帧，连接断开时注销
func (h *WebSocketHub) readPump(client *wsClient) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
	}()

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHub) writePump(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
