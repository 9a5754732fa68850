package filter

import (
	"context"
	"sync"

	"github.com/zero-day-ai/provgraph/graph"
)

// Sink receives vertices and edges one at a time.
//
// Operators are Sinks for their upstream and call a Sink downstream for
// every item they forward, so filters chain by passing one as the next
// Sink of another. A returned error means the item could not be delivered;
// items an operator decides to discard are not errors.
type Sink interface {
	PutVertex(ctx context.Context, v graph.Vertex) error
	PutEdge(ctx context.Context, e graph.Edge) error
}

// Collector is a terminal Sink that records every item it receives.
type Collector struct {
	mu       sync.Mutex
	vertices []graph.Vertex
	edges    []graph.Edge
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// PutVertex records v.
func (c *Collector) PutVertex(_ context.Context, v graph.Vertex) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vertices = append(c.vertices, v)
	return nil
}

// PutEdge records e.
func (c *Collector) PutEdge(_ context.Context, e graph.Edge) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edges = append(c.edges, e)
	return nil
}

// Vertices returns the recorded vertices in arrival order.
func (c *Collector) Vertices() []graph.Vertex {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]graph.Vertex, len(c.vertices))
	copy(out, c.vertices)
	return out
}

// Edges returns the recorded edges in arrival order.
func (c *Collector) Edges() []graph.Edge {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]graph.Edge, len(c.edges))
	copy(out, c.edges)
	return out
}

// Graph builds a graph from everything recorded so far. Edge endpoints are
// added to the vertex set when they were not received on their own.
func (c *Collector) Graph() *graph.Graph {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := graph.New()
	for _, v := range c.vertices {
		g.PutVertex(v)
	}
	for _, e := range c.edges {
		if !graph.ValidEdge(e) {
			continue
		}
		g.PutVertex(e.Child())
		g.PutVertex(e.Parent())
		g.PutEdge(e)
	}
	return g
}

// Reset discards everything recorded.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vertices = nil
	c.edges = nil
}

// Feed pushes every vertex of g and then every edge of g into sink, stopping
// at the first delivery error.
func Feed(ctx context.Context, g *graph.Graph, sink Sink) error {
	for _, v := range g.Vertices() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sink.PutVertex(ctx, v); err != nil {
			return err
		}
	}
	for _, e := range g.Edges() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sink.PutEdge(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
