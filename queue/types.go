package queue

import (
	"fmt"
	"time"

	"github.com/zero-day-ai/provgraph/graph"
)

// ItemKind identifies what an Item carries.
type ItemKind string

const (
	// KindVertex items carry a single vertex.
	KindVertex ItemKind = "vertex"

	// KindEdge items carry a single edge with its endpoints inline.
	KindEdge ItemKind = "edge"

	// KindFlush marks the end of a batch. Batch stages transform everything
	// received since the previous flush when they pop one.
	KindFlush ItemKind = "flush"
)

// Operator kinds stored in OperatorMeta.
const (
	OperatorFilter      = "filter"
	OperatorTransformer = "transformer"
)

// Item is one unit of graph data travelling between pipeline stages.
type Item struct {
	// Kind selects which of Vertex or Edge is set.
	Kind ItemKind `json:"kind"`

	// Vertex is set for KindVertex items.
	Vertex *graph.VertexRecord `json:"vertex,omitempty"`

	// Edge is set for KindEdge items, with Child and Parent inline.
	Edge *graph.EdgeRecord `json:"edge,omitempty"`

	// Source names the stage that produced the item.
	Source string `json:"source,omitempty"`

	// TraceID is the distributed tracing trace ID for observability
	TraceID string `json:"trace_id,omitempty"`

	// SpanID is the distributed tracing span ID for observability
	SpanID string `json:"span_id,omitempty"`

	// SubmittedAt is the Unix timestamp in milliseconds when the item was pushed
	SubmittedAt int64 `json:"submitted_at"`
}

// NewVertexItem wraps v in an Item.
func NewVertexItem(v graph.Vertex) Item {
	rec := graph.NewVertexRecord(v)
	return Item{
		Kind:        KindVertex,
		Vertex:      &rec,
		SubmittedAt: time.Now().UnixMilli(),
	}
}

// NewEdgeItem wraps e and its endpoints in an Item.
func NewEdgeItem(e graph.Edge) Item {
	rec := graph.NewEdgeRecord(e, true)
	return Item{
		Kind:        KindEdge,
		Edge:        &rec,
		SubmittedAt: time.Now().UnixMilli(),
	}
}

// NewFlushItem creates a batch terminator.
func NewFlushItem() Item {
	return Item{
		Kind:        KindFlush,
		SubmittedAt: time.Now().UnixMilli(),
	}
}

// IsValid checks that the payload matches the kind.
func (i *Item) IsValid() error {
	switch i.Kind {
	case KindVertex:
		if i.Vertex == nil {
			return fmt.Errorf("vertex item has no vertex")
		}
	case KindEdge:
		if i.Edge == nil {
			return fmt.Errorf("edge item has no edge")
		}
		if i.Edge.Child == nil || i.Edge.Parent == nil {
			return fmt.Errorf("edge item is missing an endpoint")
		}
	case KindFlush:
	default:
		return fmt.Errorf("unknown item kind %q", i.Kind)
	}
	if i.SubmittedAt <= 0 {
		return fmt.Errorf("submitted_at must be positive, got %d", i.SubmittedAt)
	}
	return nil
}

// ToVertex rebuilds the carried vertex.
func (i *Item) ToVertex() (graph.Vertex, error) {
	if i.Kind != KindVertex || i.Vertex == nil {
		return nil, fmt.Errorf("item of kind %q carries no vertex", i.Kind)
	}
	return i.Vertex.Vertex(), nil
}

// ToEdge rebuilds the carried edge and its endpoints.
func (i *Item) ToEdge() (graph.Edge, error) {
	if i.Kind != KindEdge || i.Edge == nil {
		return nil, fmt.Errorf("item of kind %q carries no edge", i.Kind)
	}
	return i.Edge.Edge()
}

// Age returns the duration since this item was submitted.
// Useful for detecting stale items and computing queue wait time.
func (i *Item) Age() time.Duration {
	if i.SubmittedAt <= 0 {
		return 0
	}
	now := time.Now().UnixMilli()
	return time.Duration(now-i.SubmittedAt) * time.Millisecond
}

// OperatorMeta contains metadata about a running pipeline stage.
// It is stored as a Redis hash and used for discovery.
type OperatorMeta struct {
	// Name is the unique stage name
	Name string `json:"name"`

	// Kind is OperatorFilter or OperatorTransformer
	Kind string `json:"kind"`

	// Version is the version of the operator implementation
	Version string `json:"version"`

	// Description is a human-readable description of the stage
	Description string `json:"description"`

	// InputQueue is the list the stage consumes
	InputQueue string `json:"input_queue"`

	// OutputQueue is the list the stage produces into
	OutputQueue string `json:"output_queue"`

	// Arguments is the effective key=value argument string of the operator
	Arguments string `json:"arguments"`

	// WorkerCount is the number of active workers for this stage
	// Updated by IncrementWorkerCount/DecrementWorkerCount
	WorkerCount int `json:"worker_count"`
}

// IsValid checks if the OperatorMeta has all required fields populated correctly.
func (o *OperatorMeta) IsValid() error {
	if o.Name == "" {
		return fmt.Errorf("operator name is required")
	}
	if o.Kind != OperatorFilter && o.Kind != OperatorTransformer {
		return fmt.Errorf("operator kind must be %q or %q, got %q", OperatorFilter, OperatorTransformer, o.Kind)
	}
	if o.InputQueue == "" {
		return fmt.Errorf("input_queue is required")
	}
	if o.OutputQueue == "" {
		return fmt.Errorf("output_queue is required")
	}
	if o.WorkerCount < 0 {
		return fmt.Errorf("worker_count must be non-negative, got %d", o.WorkerCount)
	}
	return nil
}
