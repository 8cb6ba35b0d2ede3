package sse

import (
	"log"
	"sync"

	"github.com/qs3c/exam_go_server/internal/pkg/pubsub"
)

// Event 推送给单个订阅者的一条事件
type Event struct {
	Name    string      // progress, complete, error_event
	Payload interface{} // 序列化进 SSE data 字段
}

// IsTerminal 终态事件之后不再有任何事件
func (e Event) IsTerminal() bool {
	return e.Name == pubsub.EventComplete || e.Name == pubsub.EventError
}

// Hub 按任务 ID 扇出进度事件
// 每个任务可以有多个订阅者（多标签页同时观察同一任务）
type Hub struct {
	subscribers map[int64]map[chan Event]struct{}
	queueSize   int
	mu          sync.RWMutex
}

func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Hub{
		subscribers: make(map[int64]map[chan Event]struct{}),
		queueSize:   queueSize,
	}
}

// Subscribe 订阅指定任务的事件，返回缓冲 channel
// 终态事件发出后 channel 会被 Hub 关闭
func (h *Hub) Subscribe(examID int64) chan Event {
	ch := make(chan Event, h.queueSize)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers[examID] == nil {
		h.subscribers[examID] = make(map[chan Event]struct{})
	}
	h.subscribers[examID][ch] = struct{}{}

	return ch
}

// Unsubscribe 取消订阅（客户端断开时调用）
// 不关闭 channel，终态路径上 Hub 可能已经关闭过了
func (h *Hub) Unsubscribe(examID int64, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if chans, ok := h.subscribers[examID]; ok {
		delete(chans, ch)
		if len(chans) == 0 {
			delete(h.subscribers, examID)
		}
	}
}

// Publish 向任务的所有订阅者发送事件
// 订阅者缓冲满则丢弃该条，不阻塞发布方；终态事件发送后关闭所有订阅
func (h *Hub) Publish(examID int64, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	chans, ok := h.subscribers[examID]
	if !ok {
		return
	}

	for ch := range chans {
		select {
		case ch <- event:
		default:
			log.Printf("SSE hub: dropping event for exam %d, subscriber too slow", examID)
		}
	}

	if event.IsTerminal() {
		for ch := range chans {
			close(ch)
		}
		delete(h.subscribers, examID)
	}
}

// SubscriberCount 指定任务的订阅者数量
func (h *Hub) SubscriberCount(examID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[examID])
}

// TotalSubscribers 所有任务的订阅者总数
func (h *Hub) TotalSubscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, chans := range h.subscribers {
		total += len(chans)
	}
	return total
}
