package api

import (
	"sync"

	"github.com/saquibalam09/kanban/board"
)

const (
	subscriberBuffer = 8
	maxPending       = 16
)

// notificationBroker fans a session's notifications out to its open event
// streams. Notifications raised while no stream is open are held (up to
// maxPending) and flushed to the next subscriber.
type notificationBroker struct {
	mu      sync.Mutex
	subs    map[chan board.Notification]struct{}
	pending []board.Notification
	closed  bool
}

func newNotificationBroker() *notificationBroker {
	return &notificationBroker{subs: make(map[chan board.Notification]struct{})}
}

// Notify implements board.Notifier.
func (b *notificationBroker) Notify(n board.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if len(b.subs) == 0 {
		if len(b.pending) == maxPending {
			b.pending = b.pending[1:]
		}
		b.pending = append(b.pending, n)
		return
	}
	for ch := range b.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

func (b *notificationBroker) subscribe() chan board.Notification {
	ch := make(chan board.Notification, subscriberBuffer+maxPending)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	for _, n := range b.pending {
		ch <- n
	}
	b.pending = nil
	b.subs[ch] = struct{}{}
	return ch
}

func (b *notificationBroker) unsubscribe(ch chan board.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *notificationBroker) active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *notificationBroker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
		delete(b.subs, ch)
	}
	b.pending = nil
}
