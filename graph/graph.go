// Package graph defines the vertices, edges and graphs the provenance
// operators work on.
//
// Vertex and Edge are interfaces so hosts can carry their own concrete
// variants. Every variant provides its own deep copy (Vertex.Clone and
// Edge.CloneWith); the operators never construct copies by inspecting
// runtime types. BasicVertex and BasicEdge are the variants used by this
// module's codecs and by fresh-identity rebuilding.
package graph

import (
	"fmt"
	"reflect"

	"github.com/zero-day-ai/provgraph/annotation"
	"github.com/zero-day-ai/provgraph/graph/id"
)

// Vertex is a graph node carrying annotations.
type Vertex interface {
	// Annotations returns the live annotation map of the vertex.
	// Mutating the returned map mutates the vertex.
	Annotations() *annotation.Map

	// Clone returns a structurally independent copy of the vertex,
	// of the same concrete variant.
	Clone() (Vertex, error)
}

// Edge is a directed connection from a child (source) vertex to a parent
// (destination) vertex.
type Edge interface {
	// Annotations returns the live annotation map of the edge.
	Annotations() *annotation.Map

	// Child returns the source vertex.
	Child() Vertex

	// Parent returns the destination vertex.
	Parent() Vertex

	// SetChild rebinds the source vertex.
	SetChild(v Vertex)

	// SetParent rebinds the destination vertex.
	SetParent(v Vertex)

	// CloneWith returns a copy of the edge, of the same concrete variant and
	// with an independent copy of its annotations, bound to child and parent.
	CloneWith(child, parent Vertex) (Edge, error)
}

// Identity returns the identity of v: its "id" annotation when set,
// otherwise the content hash of its annotations.
func Identity(v Vertex) string {
	if !ValidVertex(v) {
		return ""
	}
	if vid := v.Annotations().Get(annotation.KeyID); vid != "" {
		return vid
	}
	return id.Default.VertexID(v.Annotations())
}

// EdgeIdentity returns the identity of e: its "id" annotation when set,
// otherwise the content hash of its annotations and endpoint identities.
func EdgeIdentity(e Edge) string {
	if !ValidEdge(e) {
		return ""
	}
	if eid := e.Annotations().Get(annotation.KeyID); eid != "" {
		return eid
	}
	return id.Default.EdgeID(Identity(e.Child()), Identity(e.Parent()), e.Annotations())
}

// ValidVertex reports whether v is usable: non-nil, including a nil pointer
// held in the interface, and carrying an annotation map.
func ValidVertex(v Vertex) bool {
	if v == nil {
		return false
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return false
	}
	return v.Annotations() != nil
}

// ValidEdge reports whether e and both its endpoints are usable.
func ValidEdge(e Edge) bool {
	if e == nil {
		return false
	}
	if rv := reflect.ValueOf(e); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return false
	}
	return e.Annotations() != nil && ValidVertex(e.Child()) && ValidVertex(e.Parent())
}

// Describe renders a vertex for log messages.
func Describe(v Vertex) string {
	if !ValidVertex(v) {
		return "<nil>"
	}
	return v.Annotations().String()
}

// DescribeEdge renders an edge and its endpoints for log messages.
func DescribeEdge(e Edge) string {
	if !ValidEdge(e) {
		return "<nil>"
	}
	return fmt.Sprintf("%s (%s -> %s)", e.Annotations(), Describe(e.Child()), Describe(e.Parent()))
}

// Graph is a set of vertices unique by identity and a set of edges unique by
// identity. Both sets iterate in insertion order.
//
// Identities are computed when an item is added; mutating an item after
// adding it does not re-index the graph.
type Graph struct {
	vertices    []Vertex
	vertexIndex map[string]int
	edges       []Edge
	edgeIndex   map[string]int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		vertexIndex: make(map[string]int),
		edgeIndex:   make(map[string]int),
	}
}

// PutVertex adds v to the graph. It returns false when v is nil or a vertex
// with the same identity is already present.
func (g *Graph) PutVertex(v Vertex) bool {
	if !ValidVertex(v) {
		return false
	}
	key := Identity(v)
	if _, exists := g.vertexIndex[key]; exists {
		return false
	}
	g.vertexIndex[key] = len(g.vertices)
	g.vertices = append(g.vertices, v)
	return true
}

// PutEdge adds e to the graph. It returns false when e or one of its
// endpoints is nil, or an edge with the same identity is already present.
// Endpoint membership is not enforced here; see Validate.
func (g *Graph) PutEdge(e Edge) bool {
	if !ValidEdge(e) {
		return false
	}
	key := EdgeIdentity(e)
	if _, exists := g.edgeIndex[key]; exists {
		return false
	}
	g.edgeIndex[key] = len(g.edges)
	g.edges = append(g.edges, e)
	return true
}

// Vertices returns the vertices in insertion order.
func (g *Graph) Vertices() []Vertex {
	out := make([]Vertex, len(g.vertices))
	copy(out, g.vertices)
	return out
}

// Edges returns the edges in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Vertex returns the vertex with the given identity.
func (g *Graph) Vertex(identity string) (Vertex, bool) {
	i, ok := g.vertexIndex[identity]
	if !ok {
		return nil, false
	}
	return g.vertices[i], true
}

// HasVertex reports whether a vertex with v's identity is present.
func (g *Graph) HasVertex(v Vertex) bool {
	_, ok := g.vertexIndex[Identity(v)]
	return ok
}

// VertexCount returns the number of vertices.
func (g *Graph) VertexCount() int {
	return len(g.vertices)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Validate checks that every edge endpoint is a member of the vertex set.
func (g *Graph) Validate() error {
	for i, e := range g.edges {
		if !g.HasVertex(e.Child()) {
			return fmt.Errorf("edge %d: child vertex %s is not in the graph", i, Identity(e.Child()))
		}
		if !g.HasVertex(e.Parent()) {
			return fmt.Errorf("edge %d: parent vertex %s is not in the graph", i, Identity(e.Parent()))
		}
	}
	return nil
}
