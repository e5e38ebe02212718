package server

import (
	"context"
	"sync"
	"time"

	"github.com/morotw/awards/backend/internal/event"
)

const (
	realtimeEventReveal    = "reveal"
	realtimeEventHeartbeat = "heartbeat"
)

// RevealMessage is the payload broadcast to every gala stream subscriber the
// moment a reveal commits.
type RevealMessage struct {
	FinalistID    string    `json:"finalist_id"`
	CategoryID    int       `json:"category_id"`
	DisplayName   string    `json:"display_name"`
	FinalPosition int       `json:"final_position"`
	VoteCount     int       `json:"vote_count"`
	RevealedAt    time.Time `json:"revealed_at"`
}

// RealtimeDispatcher fans reveal events out to every connected gala viewer.
// Publishing never blocks; slow subscribers drop messages and catch up from
// the finalists endpoint.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]chan RevealMessage
	nextID      int64
	bufferSize  int
}

// NewRealtimeDispatcher constructs an empty dispatcher.
func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]chan RevealMessage),
		bufferSize:  16,
	}
}

// Subscribe registers a stream that receives reveal broadcasts until the
// context is cancelled or the returned cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan RevealMessage, func()) {
	stream := make(chan RevealMessage, d.bufferSize)

	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subscribers[id] = stream
	d.mu.Unlock()

	cleanup := func() {
		d.mu.Lock()
		delete(d.subscribers, id)
		d.mu.Unlock()
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

// PublishReveal implements event.RevealPublisher.
func (d *RealtimeDispatcher) PublishReveal(finalist event.Finalist) {
	message := RevealMessage{
		FinalistID:  finalist.ID,
		CategoryID:  finalist.CategoryID,
		DisplayName: finalist.DisplayName,
		VoteCount:   finalist.VoteCount,
	}
	if finalist.FinalPosition != nil {
		message.FinalPosition = *finalist.FinalPosition
	}
	if finalist.RevealedAt != nil {
		message.RevealedAt = *finalist.RevealedAt
	}

	d.mu.RLock()
	streams := make([]chan RevealMessage, 0, len(d.subscribers))
	for _, stream := range d.subscribers {
		streams = append(streams, stream)
	}
	d.mu.RUnlock()

	for _, stream := range streams {
		select {
		case stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the number of connected streams.
func (d *RealtimeDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}
