package kanban

import (
	"log"
	"sync"
)

type Notifier interface {
	Notify(n Notify)
}

type LogNotifier struct{}

func (LogNotifier) Notify(n Notify) {
	if n.Kind == NotifyFailure {
		log.Printf("[kanban] ✗ %s order=%s err=%v", n.Message, n.OrderID, n.Err)
		return
	}
	log.Printf("[kanban] ✓ %s order=%s", n.Message, n.OrderID)
}

// RecordingNotifier keeps every notification, newest last.
type RecordingNotifier struct {
	mu    sync.Mutex
	items []Notify
}

func (r *RecordingNotifier) Notify(n Notify) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

func (r *RecordingNotifier) All() []Notify {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notify, len(r.items))
	copy(out, r.items)
	return out
}

// Drain returns the notifications recorded so far and forgets them.
func (r *RecordingNotifier) Drain() []Notify {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.items
	r.items = nil
	return out
}
