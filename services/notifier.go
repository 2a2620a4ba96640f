// services/notifier.go
package services

import (
	"sync"
)

// Push event names sent to connected game bridges over SSE.
const (
	EventNewCommand     = "shop:new-command"
	EventRequestTargets = "requestTargets"
)

// Notifier fans lightweight "work available" signals out to every connected
// bridge. Broadcast never blocks: a bridge that cannot keep up just misses a
// nudge and catches the work on its next poll.
type Notifier struct {
	mu   sync.RWMutex
	subs map[chan string]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[chan string]struct{})}
}

func (n *Notifier) Subscribe() chan string {
	ch := make(chan string, 8)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

func (n *Notifier) Unsubscribe(ch chan string) {
	n.mu.Lock()
	delete(n.subs, ch)
	n.mu.Unlock()
}

func (n *Notifier) Broadcast(event string) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for ch := range n.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Connected reports how many bridges are currently subscribed.
func (n *Notifier) Connected() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}
