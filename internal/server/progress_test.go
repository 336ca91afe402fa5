package server

import (
	"context"
	"testing"
	"time"
)

func collectEvents(t *testing.T, stream <-chan ProgressEvent, count int) []ProgressEvent {
	t.Helper()
	events := make([]ProgressEvent, 0, count)
	for len(events) < count {
		select {
		case event := <-stream:
			events = append(events, event)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d of %d", len(events)+1, count)
		}
	}
	return events
}

func TestDispatcherDeliversToEverySubscriber(t *testing.T) {
	dispatcher := NewProgressDispatcher()

	first, cancelFirst := dispatcher.Subscribe(context.Background())
	defer cancelFirst()
	second, cancelSecond := dispatcher.Subscribe(context.Background())
	defer cancelSecond()

	dispatcher.Publish(ProgressEvent{OperationID: "op-1", EventType: ProgressEventStart, Total: 3})

	for _, stream := range []<-chan ProgressEvent{first, second} {
		event := collectEvents(t, stream, 1)[0]
		if event.OperationID != "op-1" || event.EventType != ProgressEventStart || event.Total != 3 {
			t.Fatalf("unexpected event %+v", event)
		}
		if event.Timestamp.IsZero() {
			t.Fatalf("publish should stamp the event")
		}
	}
}

func TestDispatcherDropsIncompleteEvents(t *testing.T) {
	dispatcher := NewProgressDispatcher()
	stream, cancel := dispatcher.Subscribe(context.Background())
	defer cancel()

	dispatcher.Publish(ProgressEvent{EventType: ProgressEventStart})
	dispatcher.Publish(ProgressEvent{OperationID: "op-1"})

	select {
	case event := <-stream:
		t.Fatalf("events without id or type must be dropped, got %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcherUnsubscribeStopsDelivery(t *testing.T) {
	dispatcher := NewProgressDispatcher()
	stream, cancel := dispatcher.Subscribe(context.Background())
	cancel()

	dispatcher.Publish(ProgressEvent{OperationID: "op-1", EventType: ProgressEventStart})

	select {
	case event := <-stream:
		t.Fatalf("unsubscribed stream must not receive events, got %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcherSlowSubscriberDoesNotBlock(t *testing.T) {
	dispatcher := NewProgressDispatcher()
	stream, cancel := dispatcher.Subscribe(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 64; i++ {
			dispatcher.Publish(ProgressEvent{OperationID: "op-1", EventType: ProgressEventProgress, Completed: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publishing past a full buffer must not block")
	}
	if len(stream) == 0 {
		t.Fatalf("buffered events should still be delivered")
	}
}

func TestProgressCallbacksEmitLifecycleEvents(t *testing.T) {
	dispatcher := NewProgressDispatcher()
	stream, cancel := dispatcher.Subscribe(context.Background())
	defer cancel()

	callbacks := ProgressCallbacks(dispatcher)
	operationID := callbacks.OnStart("draft_rows", 2)
	if operationID == "" {
		t.Fatalf("start callback must mint an operation id")
	}
	callbacks.OnProgress(operationID, 1, 0)
	callbacks.OnComplete(operationID, "success", "Submitted 2 draft rows")

	events := collectEvents(t, stream, 3)
	if events[0].EventType != ProgressEventStart || events[0].Total != 2 || events[0].OperationType != "draft_rows" {
		t.Fatalf("unexpected start event %+v", events[0])
	}
	if events[1].EventType != ProgressEventProgress || events[1].Completed != 1 || events[1].Failed != 0 {
		t.Fatalf("unexpected progress event %+v", events[1])
	}
	if events[2].EventType != ProgressEventComplete || events[2].Status != "success" || events[2].Message != "Submitted 2 draft rows" {
		t.Fatalf("unexpected completion event %+v", events[2])
	}
	for _, event := range events {
		if event.OperationID != operationID {
			t.Fatalf("all lifecycle events must share the operation id, got %+v", event)
		}
	}
}
