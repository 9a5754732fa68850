package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/zero-day-ai/provgraph/annotation"
)

// VertexRecord is the wire form of a vertex.
type VertexRecord struct {
	Annotations *annotation.Map `json:"annotations"`
}

// EdgeRecord is the wire form of an edge.
//
// Inside a Document, endpoints are referenced by identity through From and
// To. Standalone records (queue items) carry the endpoints inline in Child
// and Parent instead.
type EdgeRecord struct {
	From        string          `json:"from,omitempty"`
	To          string          `json:"to,omitempty"`
	Child       *VertexRecord   `json:"child,omitempty"`
	Parent      *VertexRecord   `json:"parent,omitempty"`
	Annotations *annotation.Map `json:"annotations"`
}

// Document is the JSON layout of a graph file.
type Document struct {
	Vertices []VertexRecord `json:"vertices"`
	Edges    []EdgeRecord   `json:"edges"`
}

// NewVertexRecord converts a vertex to its wire form.
func NewVertexRecord(v Vertex) VertexRecord {
	return VertexRecord{Annotations: v.Annotations().Clone()}
}

// Vertex converts the record back into a BasicVertex.
func (r VertexRecord) Vertex() *BasicVertex {
	if r.Annotations == nil {
		return NewVertex(nil)
	}
	return NewVertex(r.Annotations.Clone())
}

// NewEdgeRecord converts an edge to its wire form. With inline set the
// endpoints are embedded, otherwise they are referenced by identity.
func NewEdgeRecord(e Edge, inline bool) EdgeRecord {
	rec := EdgeRecord{Annotations: e.Annotations().Clone()}
	if inline {
		child := NewVertexRecord(e.Child())
		parent := NewVertexRecord(e.Parent())
		rec.Child = &child
		rec.Parent = &parent
		return rec
	}
	rec.From = Identity(e.Child())
	rec.To = Identity(e.Parent())
	return rec
}

// Edge converts a record with inline endpoints back into a BasicEdge.
func (r EdgeRecord) Edge() (*BasicEdge, error) {
	if r.Child == nil || r.Parent == nil {
		return nil, errors.New("edge record has no inline endpoints")
	}
	return NewEdge(r.Child.Vertex(), r.Parent.Vertex()).WithAnnotations(cloneOrNew(r.Annotations)), nil
}

// NewDocument converts a graph to its wire form.
func NewDocument(g *Graph) Document {
	doc := Document{
		Vertices: make([]VertexRecord, 0, g.VertexCount()),
		Edges:    make([]EdgeRecord, 0, g.EdgeCount()),
	}
	for _, v := range g.Vertices() {
		doc.Vertices = append(doc.Vertices, NewVertexRecord(v))
	}
	for _, e := range g.Edges() {
		doc.Edges = append(doc.Edges, NewEdgeRecord(e, false))
	}
	return doc
}

// Graph rebuilds the graph described by the document. Edges must reference
// vertices of the document, by identity or inline.
func (d Document) Graph() (*Graph, error) {
	g := New()
	for _, rec := range d.Vertices {
		g.PutVertex(rec.Vertex())
	}

	for i, rec := range d.Edges {
		child, err := resolveEndpoint(g, rec.From, rec.Child)
		if err != nil {
			return nil, fmt.Errorf("edge %d child: %w", i, err)
		}
		parent, err := resolveEndpoint(g, rec.To, rec.Parent)
		if err != nil {
			return nil, fmt.Errorf("edge %d parent: %w", i, err)
		}
		g.PutEdge(NewEdge(child, parent).WithAnnotations(cloneOrNew(rec.Annotations)))
	}
	return g, nil
}

// Encode writes g to w as an indented JSON document.
func Encode(w io.Writer, g *Graph) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewDocument(g)); err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}
	return nil
}

// Decode reads a JSON graph document from r.
func Decode(r io.Reader) (*Graph, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode graph: %w", err)
	}
	return doc.Graph()
}

func resolveEndpoint(g *Graph, ref string, inline *VertexRecord) (Vertex, error) {
	if inline != nil {
		v := inline.Vertex()
		if existing, ok := g.Vertex(Identity(v)); ok {
			return existing, nil
		}
		g.PutVertex(v)
		return v, nil
	}
	if ref == "" {
		return nil, errors.New("missing endpoint reference")
	}
	v, ok := g.Vertex(ref)
	if !ok {
		return nil, fmt.Errorf("unknown vertex %q", ref)
	}
	return v, nil
}

func cloneOrNew(m *annotation.Map) *annotation.Map {
	if m == nil {
		return annotation.New()
	}
	return m.Clone()
}
