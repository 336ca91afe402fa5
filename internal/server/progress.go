package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/griddeck/griddeck/internal/drafts"
)

const (
	ProgressEventStart    = "submit-start"
	ProgressEventProgress = "submit-progress"
	ProgressEventComplete = "submit-complete"
)

// ProgressEvent is one submission lifecycle update pushed to listening grid
// sessions.
type ProgressEvent struct {
	OperationID   string    `json:"operation_id"`
	EventType     string    `json:"event_type"`
	OperationType string    `json:"operation_type,omitempty"`
	Total         int       `json:"total,omitempty"`
	Completed     int       `json:"completed"`
	Failed        int       `json:"failed"`
	Status        string    `json:"status,omitempty"`
	Message       string    `json:"message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// ProgressDispatcher fans submission progress out to subscribed event
// streams. Slow subscribers drop events instead of blocking the submission
// loop.
type ProgressDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*progressSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type progressSubscriber struct {
	id     int64
	stream chan ProgressEvent
}

// NewProgressDispatcher constructs an empty dispatcher.
func NewProgressDispatcher() *ProgressDispatcher {
	return &ProgressDispatcher{
		subscribers: make(map[int64]*progressSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

// Subscribe registers a stream that receives every published event until the
// context ends or the cleanup function runs.
func (d *ProgressDispatcher) Subscribe(ctx context.Context) (<-chan ProgressEvent, func()) {
	subscriber := &progressSubscriber{
		id:     d.nextSequence(),
		stream: make(chan ProgressEvent, d.bufferSize),
	}
	d.registerSubscriber(subscriber)
	cleanup := func() {
		d.unregisterSubscriber(subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers an event to every subscriber without blocking.
func (d *ProgressDispatcher) Publish(event ProgressEvent) {
	if event.OperationID == "" || event.EventType == "" {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.clock()
	}

	d.mu.RLock()
	copies := make([]*progressSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()

	for _, subscriber := range copies {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

func (d *ProgressDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *ProgressDispatcher) registerSubscriber(subscriber *progressSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[subscriber.id] = subscriber
}

func (d *ProgressDispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subscribers, subscriberID)
}

// ProgressCallbacks wires the submission pipeline's feedback hooks to the
// dispatcher so grid sessions see live batch progress without polling.
func ProgressCallbacks(dispatcher *ProgressDispatcher) drafts.Callbacks {
	return drafts.Callbacks{
		OnStart: func(operationType string, total int) string {
			operationID := uuid.NewString()
			dispatcher.Publish(ProgressEvent{
				OperationID:   operationID,
				EventType:     ProgressEventStart,
				OperationType: operationType,
				Total:         total,
			})
			return operationID
		},
		OnProgress: func(operationID string, completed, failed int) {
			dispatcher.Publish(ProgressEvent{
				OperationID: operationID,
				EventType:   ProgressEventProgress,
				Completed:   completed,
				Failed:      failed,
			})
		},
		OnComplete: func(operationID string, status drafts.CompletionStatus, message string) {
			dispatcher.Publish(ProgressEvent{
				OperationID: operationID,
				EventType:   ProgressEventComplete,
				Status:      string(status),
				Message:     message,
			})
		},
	}
}
