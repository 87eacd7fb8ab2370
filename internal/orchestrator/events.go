// Package orchestrator coordinates concurrent agent workflows: dispatch,
// deadlines, cancellation, consensus, and terminal-state persistence.
package orchestrator

import (
	"log"
	"sync/atomic"
	"time"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventWorkflowSubmitted indicates a workflow was accepted.
	EventWorkflowSubmitted EventType = "workflow_submitted"
	// EventWorkflowStarted indicates the first agent task was dispatched.
	EventWorkflowStarted EventType = "workflow_started"
	// EventAgentResult indicates one agent returned a result.
	EventAgentResult EventType = "agent_result"
	// EventWorkflowCompleted indicates a consensus decision was produced.
	EventWorkflowCompleted EventType = "workflow_completed"
	// EventWorkflowFailed indicates the workflow failed.
	EventWorkflowFailed EventType = "workflow_failed"
	// EventWorkflowCancelled indicates the workflow was cancelled.
	EventWorkflowCancelled EventType = "workflow_cancelled"
)

// Event represents an event emitted by the orchestrator. Subscribers (the
// serve loop, tests) receive these to track progress.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// WorkflowID is the id of the related workflow.
	WorkflowID string
	// AgentID is the id of the related agent, if applicable.
	AgentID string
	// Message provides additional context about the event.
	Message string
	// Confidence carries the overall confidence for terminal events and the
	// agent confidence for agent events.
	Confidence float64
	// Cost is the metered cost attributed to the event, if any.
	Cost float64
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// EventEmitter handles event emission for the orchestrator.
// It provides a simple, thread-safe way to emit events to subscribers.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit sends an event to the events channel.
// If the channel is full, it tries with a timeout before dropping the event.
func (e *EventEmitter) Emit(event Event) {
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
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // Log every 10th drop to avoid spam
			log.Printf("[orchestrator] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}
