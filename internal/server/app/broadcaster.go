// Package app coordinates workflow runs with the durable records and the
// streaming surface: it is the layer the HTTP and WebSocket handlers call.
package app

import (
	"sync"

	"agentstation/internal/logging"
	"agentstation/internal/observability"
)

// Stream event types.
const (
	EventTaskCreated = "task_created"
	EventStateUpdate = "state_update"
	EventTaskResumed = "task_resumed"
	EventTaskError   = "task_error"
	EventPong        = "pong"
)

// StreamEvent is the wire unit pushed to subscribers of a conversation.
type StreamEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`

	// Final marks the last state_update of a run. Final events must reach
	// slow subscribers even when their buffers are full.
	Final bool `json:"-"`
}

// subscriberBuffer bounds each subscriber channel. A full buffer drops
// non-critical events rather than blocking the workflow loop.
const subscriberBuffer = 64

// Broadcaster fans events out to the subscribers of each conversation.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string][]chan StreamEvent
	metrics     *observability.Metrics
	logger      logging.Logger
}

func NewBroadcaster(metrics *observability.Metrics, logger logging.Logger) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string][]chan StreamEvent),
		metrics:     metrics,
		logger:      logging.OrNop(logger),
	}
}

// Subscribe registers a new listener on a conversation and returns its
// channel. The channel is closed by Unsubscribe.
func (b *Broadcaster) Subscribe(conversationID string) chan StreamEvent {
	ch := make(chan StreamEvent, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[conversationID] = append(b.subscribers[conversationID], ch)
	count := len(b.subscribers[conversationID])
	b.mu.Unlock()

	b.metrics.StreamOpened()
	b.logger.Info("subscriber joined conversation %s (total: %d)", conversationID, count)
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *Broadcaster) Unsubscribe(conversationID string, ch chan StreamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[conversationID]
	for i, sub := range subs {
		if sub == ch {
			b.subscribers[conversationID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			b.metrics.StreamClosed()
			if len(b.subscribers[conversationID]) == 0 {
				delete(b.subscribers, conversationID)
			}
			b.logger.Info("subscriber left conversation %s (remaining: %d)", conversationID, len(b.subscribers[conversationID]))
			return
		}
	}
}

// SubscriberCount reports the listeners on a conversation.
func (b *Broadcaster) SubscriberCount(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[conversationID])
}

// Emit delivers an event to every subscriber of the conversation. Slow
// subscribers lose non-critical events; critical ones (errors and final
// updates) get a retry and, failing that, evict the oldest buffered event.
// The read lock is held across delivery: Unsubscribe closes channels under
// the write lock, so a send can never race a close. Every send is a
// non-blocking select, keeping the hold time bounded.
func (b *Broadcaster) Emit(conversationID string, event StreamEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := b.subscribers[conversationID]
	for i, ch := range subs {
		select {
		case ch <- event:
		default:
			if b.deliverCritical(conversationID, i, len(subs), ch, event) {
				continue
			}
			b.logger.Warn("subscriber buffer full for conversation %s, dropping %s (client %d/%d)",
				conversationID, event.Type, i+1, len(subs))
			b.metrics.ObserveDroppedEvent()
		}
	}
}

func isCritical(event StreamEvent) bool {
	return event.Type == EventTaskError || event.Final
}

func (b *Broadcaster) deliverCritical(conversationID string, idx, total int, ch chan StreamEvent, event StreamEvent) bool {
	if !isCritical(event) {
		return false
	}

	// Retry first: the consumer may have drained the buffer since the
	// initial attempt.
	select {
	case ch <- event:
		return true
	default:
	}

	// Drop the oldest buffered event to make room.
	select {
	case <-ch:
	default:
		return false
	}

	select {
	case ch <- event:
		b.logger.Warn("dropped oldest event to deliver critical %s on conversation %s (client %d/%d)",
			event.Type, conversationID, idx+1, total)
		b.metrics.ObserveDroppedEvent()
		return true
	default:
		return false
	}
}
