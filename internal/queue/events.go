// Package queue implements the priority task queue: durable task
// records, idle-agent assignment, and retry handling driven by bus
// traffic.
package queue

import (
	"log"
	"sync/atomic"
	"time"
)

// EventType represents the kind of queue lifecycle event.
type EventType string

const (
	// EventTaskCreated indicates a task entered the queue.
	EventTaskCreated EventType = "task_created"
	// EventTaskAssigned indicates a task was delegated to an agent.
	EventTaskAssigned EventType = "task_assigned"
	// EventTaskStarted indicates the assigned agent accepted the task.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed permanently.
	EventTaskFailed EventType = "task_failed"
	// EventTaskRetried indicates a recoverable failure requeued the task.
	EventTaskRetried EventType = "task_retried"
	// EventTaskCancelled indicates a task was cancelled before completion.
	EventTaskCancelled EventType = "task_cancelled"
)

// Event is one queue lifecycle notification. Events are observability
// only; dropping one never affects task state.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task.
	TaskID string
	// AgentID is the ID of the related agent, if applicable.
	AgentID string
	// Message provides additional context about the event.
	Message string
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// EventEmitter provides a simple, thread-safe way to emit queue events
// to a subscriber.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit sends an event to the events channel.
// If the channel is full, it tries with a timeout before dropping the event.
func (e *EventEmitter) Emit(event Event) {
	// Try immediate send first
	select {
	case e.events <- event:
		return
	default:
		// Channel full, try with timeout
	}

	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		// Timeout expired, drop the event
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // Log every 10th drop to avoid spam
			log.Printf("[queue] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events for subscribers.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel.
func (e *EventEmitter) Close() {
	close(e.events)
}
