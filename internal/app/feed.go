package app

import (
	"sync"

	"exam-service/internal/domain"
)

// Feed fans out recomputed class reports of one exam to live subscribers.
type Feed struct {
	examID string

	mu          sync.Mutex
	subscribers map[chan domain.ClassReport]struct{}
}

func NewFeed(examID string) *Feed {
	return &Feed{
		examID:      examID,
		subscribers: make(map[chan domain.ClassReport]struct{}),
	}
}

func (f *Feed) ExamID() string { return f.examID }

// IsIdle reports whether nobody is listening.
func (f *Feed) IsIdle() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers) == 0
}

// Subscribe registers a listener that first receives initial. The returned
// function unregisters it and closes the channel.
func (f *Feed) Subscribe(initial domain.ClassReport) (<-chan domain.ClassReport, func()) {
	ch := make(chan domain.ClassReport, 4)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	ch <- initial
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish hands r to every subscriber without blocking.
func (f *Feed) Publish(r domain.ClassReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		select {
		case ch <- r:
		default:
			// slow subscriber: replace the oldest pending report
			select {
			case <-ch:
			default:
			}
			ch <- r
		}
	}
}
