package engine

import "github.com/pipeforge/pipeforge/runtime/pipeline/pctx"

// EventKind is one of the tagged PipelineEvent variants (spec §3
// "PipelineEvent"). Events are observational only; no component consumes
// them for control (spec §3).
type EventKind string

const (
	EventPipelineStarted  EventKind = "PIPELINE_STARTED"
	EventStageStarted     EventKind = "STAGE_STARTED"
	EventStageCompleted   EventKind = "STAGE_COMPLETED"
	EventStageRetrying    EventKind = "STAGE_RETRYING"
	EventStageFailed      EventKind = "STAGE_FAILED"
	EventEdgeSelected     EventKind = "EDGE_SELECTED"
	EventCheckpointSaved  EventKind = "CHECKPOINT_SAVED"
	EventPipelineCompleted EventKind = "PIPELINE_COMPLETED"
	EventPipelineAborted  EventKind = "PIPELINE_ABORTED"
)

// Event is a single typed payload on the event bus. Only the fields
// relevant to Kind are populated; the rest are zero.
type Event struct {
	Kind EventKind

	NodeID  string
	Attempt int

	Outcome pctx.Outcome

	// TargetNodeID is set on EventEdgeSelected.
	TargetNodeID string
	// EdgeLabel is left empty by the engine: EventEdgeSelected identifies
	// the chosen edge by TargetNodeID only.
	EdgeLabel string

	// Err carries the failure detail for EventStageFailed and
	// EventPipelineAborted.
	Err error
}

// Observer receives every Event synchronously, in emission order (spec §5
// "Ordering guarantees": "Events are delivered synchronously to observers
// in the order emitted").
type Observer func(Event)

// bus fans Event values out to every registered Observer, in registration
// order, on the goroutine that emits the Event. When a parallel fan-out runs
// its branches concurrently, each branch emits from its own goroutine, so
// observers can then be called concurrently.
type bus struct {
	observers []Observer
}

func (b *bus) Subscribe(o Observer) {
	b.observers = append(b.observers, o)
}

func (b *bus) emit(e Event) {
	for _, o := range b.observers {
		o(e)
	}
}
