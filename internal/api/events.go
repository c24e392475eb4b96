package api

import (
	"sync"
	"time"
)

// BatchEvent is pushed to stream subscribers as the pipeline progresses.
type BatchEvent struct {
	Type string         `json:"type"`
	Time time.Time      `json:"time"`
	Data map[string]any `json:"data,omitempty"`
}

// Batch event types.
const (
	EventBatchStarted  = "batch_started"
	EventBatchFinished = "batch_finished"
	EventBatchFailed   = "batch_failed"
	EventTourCreated   = "tour_created"
)

// Broker fans batch events out to stream subscribers. Slow subscribers
// drop events instead of blocking the pipeline.
type Broker struct {
	mu   sync.Mutex
	subs map[chan BatchEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[chan BatchEvent]struct{}{}}
}

func (b *Broker) Subscribe() chan BatchEvent {
	ch := make(chan BatchEvent, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(ch chan BatchEvent) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// SubscriberCount reports the live subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broker) Publish(evt BatchEvent) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
