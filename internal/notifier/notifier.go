// Package notifier broadcasts change notifications to subscribers.
package notifier

import (
	"sync"

	"github.com/leapstack-labs/leaptable/pkg/core"
)

// DefaultBuffer is the channel capacity of a subscription.
const DefaultBuffer = 64

// Notifier broadcasts changes to all subscribed listeners.
// Listeners use the change kind to decide what to re-query.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan core.Change]struct{}
	buffer    int
}

// New creates a new Notifier instance.
func New() *Notifier {
	return NewWithBuffer(DefaultBuffer)
}

// NewWithBuffer creates a Notifier whose subscriptions hold up to buffer
// pending changes.
func NewWithBuffer(buffer int) *Notifier {
	if buffer < 1 {
		buffer = 1
	}
	return &Notifier{
		listeners: make(map[chan core.Change]struct{}),
		buffer:    buffer,
	}
}

// Subscribe returns a channel that receives changes.
// The caller must call Unsubscribe when done to prevent goroutine leaks.
func (n *Notifier) Subscribe() chan core.Change {
	ch := make(chan core.Change, n.buffer)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(ch chan core.Change) {
	n.mu.Lock()
	if _, ok := n.listeners[ch]; ok {
		delete(n.listeners, ch)
		close(ch)
	}
	n.mu.Unlock()
}

// Broadcast sends the changes to all listeners, in order.
// Non-blocking: if a listener's channel is full, the change is dropped
// for that listener.
func (n *Notifier) Broadcast(changes ...core.Change) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		for _, c := range changes {
			select {
			case ch <- c:
			default:
				// Channel full, skip (listener re-fetches on its next change)
			}
		}
	}
}
