package server

import (
	"sync"

	zap "go.uber.org/zap"

	types "github.com/agentruntime/a2a/types"
)

// subscriberBuffer bounds how many undelivered events a slow subscriber can
// hold before further events for it are dropped.
const subscriberBuffer = 16

// EventBroadcaster fans task events out to live subscribers, backing
// tasks/resubscribe. Subscribers registered for a task id receive every event
// published for it until CloseTask is called after the final event.
type EventBroadcaster struct {
	logger      *zap.Logger
	mu          sync.Mutex
	subscribers map[string]map[chan types.Event]struct{}
}

// NewEventBroadcaster creates an empty broadcaster.
func NewEventBroadcaster(logger *zap.Logger) *EventBroadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EventBroadcaster{
		logger:      logger,
		subscribers: make(map[string]map[chan types.Event]struct{}),
	}
}

// Subscribe registers a new subscriber for a task and returns its channel.
// The channel is closed when the task's stream ends or when Unsubscribe is
// called.
func (b *EventBroadcaster) Subscribe(taskID string) chan types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan types.Event, subscriberBuffer)
	if b.subscribers[taskID] == nil {
		b.subscribers[taskID] = make(map[chan types.Event]struct{})
	}
	b.subscribers[taskID][ch] = struct{}{}

	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBroadcaster) Unsubscribe(taskID string, ch chan types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	taskSubscribers, exists := b.subscribers[taskID]
	if !exists {
		return
	}
	if _, subscribed := taskSubscribers[ch]; !subscribed {
		return
	}

	delete(taskSubscribers, ch)
	close(ch)
	if len(taskSubscribers) == 0 {
		delete(b.subscribers, taskID)
	}
}

// Publish delivers an event to every subscriber of the task. Delivery never
// blocks; events for a subscriber whose buffer is full are dropped.
func (b *EventBroadcaster) Publish(taskID string, event types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers[taskID] {
		select {
		case ch <- event:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				zap.String("task_id", taskID),
				zap.String("kind", event.EventKind()))
		}
	}
}

// CloseTask closes every subscriber channel for the task. Called once the
// final event has been published.
func (b *EventBroadcaster) CloseTask(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers[taskID] {
		close(ch)
	}
	delete(b.subscribers, taskID)
}
