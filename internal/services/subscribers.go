package services

import (
	"sync"

	"github.com/lyallcooper/dupdeleter/internal/types"
)

// subscriber wraps a channel with safe close handling
type subscriber struct {
	mu     sync.Mutex
	ch     chan *types.ScanProgress
	closed bool
}

func (sub *subscriber) close() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// send never blocks; a slow subscriber misses the update
func (sub *subscriber) send(progress *types.ScanProgress) bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return false
	}
	select {
	case sub.ch <- progress:
		return true
	default:
		return false
	}
}

// Subscribe returns a channel receiving progress for every scan until
// Unsubscribe or Close
func (s *Session) Subscribe() chan *types.ScanProgress {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	sub := &subscriber{
		ch: make(chan *types.ScanProgress, 10),
	}
	s.subscribers = append(s.subscribers, sub)
	return sub.ch
}

// Unsubscribe removes and closes a subscriber
func (s *Session) Unsubscribe(ch chan *types.ScanProgress) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for i, sub := range s.subscribers {
		if sub.ch == ch {
			// Remove from slice first, then close safely
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			sub.close()
			break
		}
	}
}

// broadcast sends progress to all subscribers
func (s *Session) broadcast(progress *types.ScanProgress) {
	s.subMu.RLock()
	// Copy so sends happen without the lock
	subs := make([]*subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.RUnlock()

	for _, sub := range subs {
		sub.send(progress)
	}
}

// closeSubscribers closes every subscriber channel
func (s *Session) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, sub := range s.subscribers {
		sub.close()
	}
	s.subscribers = nil
}
