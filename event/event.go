package event

import (
	"sync"
	"time"

	"pharmasignals/logger"
)

// EventType 事件类型
type EventType string

const (
	EventTypeSignalsRefreshed  EventType = "signals_refreshed"   // 完成一次价格刷新
	EventTypeSignalClosed      EventType = "signal_closed"       // 信号归档到历史
	EventTypeSignalDeleted     EventType = "signal_deleted"      // 管理员删除信号（不归档）
	EventTypePriceLookupFailed EventType = "price_lookup_failed" // 单个信号查询价格失败
)

// Event 事件结构
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventBus 事件总线（单消费者）
type EventBus struct {
	mu         sync.RWMutex
	eventCh    chan *Event
	bufferSize int
	closed     bool
}

// NewEventBus 创建事件总线
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventBus{
		eventCh:    make(chan *Event, bufferSize),
		bufferSize: bufferSize,
	}
}

// Publish 发布事件（非阻塞），nil 总线上调用为空操作
func (eb *EventBus) Publish(event *Event) {
	if eb == nil || event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}

	select {
	case eb.eventCh <- event:
	default:
		logger.Warn("⚠️ 事件队列已满，丢弃事件: %s", event.Type)
	}
}

// Subscribe 订阅事件（返回 channel）
func (eb *EventBus) Subscribe() <-chan *Event {
	return eb.eventCh
}

// Close 关闭事件总线
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	close(eb.eventCh)
}
