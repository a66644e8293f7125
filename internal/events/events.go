// Package events carries asynchronous notifications from sessions and
// transfers to whoever is listening (the WebSocket stream, tests).
package events

import (
	"log"
	"sync"
)

const (
	TopicShellData        = "ssh:data"
	TopicShellClosed      = "ssh:closed"
	TopicUploadProgress   = "sftp:upload-progress"
	TopicDownloadProgress = "sftp:download-progress"
)

type ShellData struct {
	SessionID string `json:"sessionId"`
	Data      string `json:"data"`
}

type ShellClosed struct {
	SessionID string `json:"sessionId"`
}

type TransferProgress struct {
	TransferID       string `json:"transferId"`
	SessionID        string `json:"sessionId"`
	RemotePath       string `json:"remotePath"`
	BytesTransferred int64  `json:"bytesTransferred"`
	TotalBytes       int64  `json:"totalBytes"`
	Speed            int64  `json:"speed"` // bytes per second
}

// Event is one published notification.
type Event struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// Emitter publishes events. Implementations must not block for long: the
// shell read loops and transfer loops call Emit inline.
type Emitter interface {
	Emit(topic string, payload any)
}

// Discard drops every event.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(string, any) {}

// Hub fans events out to subscribers. A subscriber whose buffer is full is
// dropped and its channel closed, so a stalled consumer never stalls a
// session. Events from one goroutine reach each subscriber in order.
type Hub struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

type Subscription struct {
	C  <-chan Event
	ch chan Event
}

// Subscribe registers a consumer with the given buffer size.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{C: ch, ch: ch}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

func (h *Hub) Emit(topic string, payload any) {
	ev := Event{Topic: topic, Payload: payload}

	var slow []*Subscription
	h.mu.RLock()
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		log.Printf("[events] dropping slow subscriber (buffer %d full)", cap(sub.ch))
		h.Unsubscribe(sub)
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
