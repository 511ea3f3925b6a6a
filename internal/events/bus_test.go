package events

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// TestPublishSubscribe verifies basic publish/subscribe functionality.
func TestPublishSubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 10)

	bus.Publish(TopicTask, TaskAssignedEvent{
		ID:        "task-1",
		AgentID:   "a1",
		Policy:    "dag",
		Timestamp: time.Now(),
	})

	select {
	case received := <-ch:
		if received.TaskID() != "task-1" {
			t.Errorf("expected task ID 'task-1', got '%s'", received.TaskID())
		}
		if received.EventType() != EventTypeTaskAssigned {
			t.Errorf("expected event type '%s', got '%s'", EventTypeTaskAssigned, received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

// TestMultipleSubscribers verifies multiple subscribers receive the same event.
func TestMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch1 := bus.Subscribe(TopicTask, 10)
	ch2 := bus.Subscribe(TopicTask, 10)

	bus.Publish(TopicTask, TaskCompletedEvent{
		ID:       "task-2",
		Result:   "success",
		Duration: 100 * time.Millisecond,
	})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.TaskID() != "task-2" {
				t.Errorf("subscriber %d: expected task ID 'task-2', got '%s'", i+1, received.TaskID())
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("subscriber %d: timeout waiting for event", i+1)
		}
	}
}

// TestNonBlockingSend verifies that publishing doesn't block when channels are
// full and that skipped deliveries are counted.
func TestNonBlockingSend(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(TopicTask, TaskRegisteredEvent{ID: fmt.Sprintf("task-%d", i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("publish blocked on full channel")
	}

	if got := (<-ch).TaskID(); got != "task-0" {
		t.Errorf("first buffered event = %s, want task-0", got)
	}
	if bus.Dropped() != 9 {
		t.Errorf("Dropped() = %d, want 9", bus.Dropped())
	}
}

// TestCloseSignalsSubscribers verifies Close closes every channel and is idempotent.
func TestCloseSignalsSubscribers(t *testing.T) {
	bus := NewEventBus()
	topicCh := bus.Subscribe(TopicAgent, 1)
	allCh := bus.SubscribeAll(1)

	bus.Close()
	bus.Close()

	for name, ch := range map[string]<-chan Event{"topic": topicCh, "all": allCh} {
		select {
		case _, ok := <-ch:
			if ok {
				t.Errorf("%s channel should be closed", name)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("%s channel not closed", name)
		}
	}
}

// TestPublishAfterClose verifies late publishers and subscribers are harmless.
func TestPublishAfterClose(t *testing.T) {
	bus := NewEventBus()
	bus.Close()

	bus.Publish(TopicTask, TaskFailedEvent{ID: "late", Err: errors.New("boom")})

	ch := bus.Subscribe(TopicTask, 1)
	if _, ok := <-ch; ok {
		t.Error("subscribing to a closed bus should return a closed channel")
	}
}

// TestMultipleTopics verifies events only reach subscribers of their topic.
func TestMultipleTopics(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 10)
	agentCh := bus.Subscribe(TopicAgent, 10)
	dispatchCh := bus.Subscribe(TopicDispatch, 10)

	bus.Publish(TopicTask, TaskOutputEvent{ID: "t1", Line: "hello"})
	bus.Publish(TopicAgent, AgentReleasedEvent{AgentID: "a1", Busy: 0, Capacity: 2})
	bus.Publish(TopicDispatch, ProgressEvent{Total: 3, Completed: 1})

	tests := []struct {
		name string
		ch   <-chan Event
		want string
	}{
		{"task", taskCh, EventTypeTaskOutput},
		{"agent", agentCh, EventTypeAgentReleased},
		{"dispatch", dispatchCh, EventTypeProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			select {
			case ev := <-tt.ch:
				if ev.EventType() != tt.want {
					t.Errorf("got %s, want %s", ev.EventType(), tt.want)
				}
			case <-time.After(100 * time.Millisecond):
				t.Fatal("timeout waiting for event")
			}
			select {
			case ev := <-tt.ch:
				t.Errorf("unexpected extra event %s", ev.EventType())
			default:
			}
		})
	}
}

// TestSubscribeAll verifies a single channel sees every topic.
func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	all := bus.SubscribeAll(10)

	bus.Publish(TopicTask, TaskAssignedEvent{ID: "t1", AgentID: "a1"})
	bus.Publish(TopicAgent, AgentReleasedEvent{AgentID: "a1"})
	bus.Publish(TopicDispatch, ProgressEvent{Total: 1})

	received := make(map[string]bool)
	for i := 0; i < 3; i++ {
		select {
		case ev := <-all:
			received[ev.EventType()] = true
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("timeout after %d events", i)
		}
	}
	for _, want := range []string{EventTypeTaskAssigned, EventTypeAgentReleased, EventTypeProgress} {
		if !received[want] {
			t.Errorf("SubscribeAll missed %s", want)
		}
	}
}

func TestProgressEventDone(t *testing.T) {
	tests := []struct {
		name string
		ev   ProgressEvent
		want bool
	}{
		{"empty run", ProgressEvent{}, false},
		{"in flight", ProgressEvent{Total: 3, Completed: 1, Running: 2}, false},
		{"all completed", ProgressEvent{Total: 2, Completed: 2}, true},
		{"mixed outcomes", ProgressEvent{Total: 3, Completed: 2, Failed: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.Done(); got != tt.want {
				t.Errorf("Done() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	gone := bus.SubscribeAll(10)
	kept := bus.Subscribe(TopicTask, 10)
	bus.Unsubscribe(gone)
	bus.Unsubscribe(gone) // second call is a no-op

	if _, ok := <-gone; ok {
		t.Fatal("unsubscribed channel should be closed")
	}

	bus.Publish(TopicTask, TaskRegisteredEvent{ID: "t1"})
	select {
	case ev := <-kept:
		if ev.EventType() != EventTypeTaskRegistered {
			t.Errorf("got %s, want %s", ev.EventType(), EventTypeTaskRegistered)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("remaining subscriber missed the event")
	}
	if bus.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", bus.Dropped())
	}
}
