package queue

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/provgraph/graph"
)

// Sink pushes every vertex and edge it receives onto a Redis list, so a
// filter can forward straight into the next pipeline stage.
type Sink struct {
	client Client
	queue  string
	source string
}

// NewSink creates a Sink pushing to queue. source is recorded on every item.
func NewSink(client Client, queue, source string) *Sink {
	return &Sink{client: client, queue: queue, source: source}
}

// PutVertex pushes v as a vertex item.
func (s *Sink) PutVertex(ctx context.Context, v graph.Vertex) error {
	if !graph.ValidVertex(v) {
		return fmt.Errorf("cannot push nil vertex")
	}
	return s.push(ctx, NewVertexItem(v))
}

// PutEdge pushes e as an edge item with its endpoints inline.
func (s *Sink) PutEdge(ctx context.Context, e graph.Edge) error {
	if !graph.ValidEdge(e) {
		return fmt.Errorf("cannot push invalid edge")
	}
	return s.push(ctx, NewEdgeItem(e))
}

// Flush pushes a batch terminator.
func (s *Sink) Flush(ctx context.Context) error {
	return s.push(ctx, NewFlushItem())
}

// PutGraph pushes every vertex, then every edge of g, then a flush marker.
func (s *Sink) PutGraph(ctx context.Context, g *graph.Graph) error {
	for _, v := range g.Vertices() {
		if err := s.PutVertex(ctx, v); err != nil {
			return err
		}
	}
	for _, e := range g.Edges() {
		if err := s.PutEdge(ctx, e); err != nil {
			return err
		}
	}
	return s.Flush(ctx)
}

// Queue returns the name of the list the sink pushes to.
func (s *Sink) Queue() string {
	return s.queue
}

func (s *Sink) push(ctx context.Context, item Item) error {
	item.Source = s.source
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		item.TraceID = sc.TraceID().String()
		item.SpanID = sc.SpanID().String()
	}
	return s.client.PushItem(ctx, s.queue, item)
}
