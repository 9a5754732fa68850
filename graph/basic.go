package graph

import (
	"errors"

	"github.com/zero-day-ai/provgraph"
	"github.com/zero-day-ai/provgraph/annotation"
)

var (
	errNilCopy   = errors.New("clone returned nil")
	errNilVertex = errors.New("nil vertex")
)

// BasicVertex is the default Vertex variant: an annotation map and nothing else.
type BasicVertex struct {
	annotations *annotation.Map
}

// NewVertex creates a vertex owning the given annotations.
// A nil map yields a vertex with no annotations.
func NewVertex(annotations *annotation.Map) *BasicVertex {
	if annotations == nil {
		annotations = annotation.New()
	}
	return &BasicVertex{annotations: annotations}
}

// Annotations returns the live annotation map, or nil for a nil vertex.
func (v *BasicVertex) Annotations() *annotation.Map {
	if v == nil {
		return nil
	}
	return v.annotations
}

// Clone returns a deep copy of the vertex.
func (v *BasicVertex) Clone() (Vertex, error) {
	if v == nil {
		return nil, errNilVertex
	}
	return &BasicVertex{annotations: v.annotations.Clone()}, nil
}

// String implements fmt.Stringer.
func (v *BasicVertex) String() string {
	return v.Annotations().String()
}

// BasicEdge is the default Edge variant.
type BasicEdge struct {
	child       Vertex
	parent      Vertex
	annotations *annotation.Map
}

// NewEdge creates an edge from child to parent with no annotations.
func NewEdge(child, parent Vertex) *BasicEdge {
	return &BasicEdge{
		child:       child,
		parent:      parent,
		annotations: annotation.New(),
	}
}

// WithAnnotations replaces the edge annotations and returns the edge for chaining.
func (e *BasicEdge) WithAnnotations(annotations *annotation.Map) *BasicEdge {
	if annotations == nil {
		annotations = annotation.New()
	}
	e.annotations = annotations
	return e
}

// Annotations returns the live annotation map, or nil for a nil edge.
func (e *BasicEdge) Annotations() *annotation.Map {
	if e == nil {
		return nil
	}
	return e.annotations
}

// Child returns the source vertex.
func (e *BasicEdge) Child() Vertex {
	return e.child
}

// Parent returns the destination vertex.
func (e *BasicEdge) Parent() Vertex {
	return e.parent
}

// SetChild rebinds the source vertex.
func (e *BasicEdge) SetChild(v Vertex) {
	e.child = v
}

// SetParent rebinds the destination vertex.
func (e *BasicEdge) SetParent(v Vertex) {
	e.parent = v
}

// CloneWith returns a copy of the edge bound to child and parent.
func (e *BasicEdge) CloneWith(child, parent Vertex) (Edge, error) {
	return &BasicEdge{
		child:       child,
		parent:      parent,
		annotations: e.annotations.Clone(),
	}, nil
}

// String implements fmt.Stringer.
func (e *BasicEdge) String() string {
	return DescribeEdge(e)
}

// CopyVertex returns a deep copy of v through its own Clone implementation.
func CopyVertex(v Vertex) (Vertex, error) {
	if !ValidVertex(v) {
		return nil, provgraph.NewValidationError("graph.CopyVertex", provgraph.ErrInvalidItem)
	}
	c, err := v.Clone()
	if err != nil {
		return nil, provgraph.NewCopyError("graph.CopyVertex", err)
	}
	if c == nil {
		return nil, provgraph.NewCopyError("graph.CopyVertex", errNilCopy)
	}
	return c, nil
}

// CopyEdge returns a deep copy of e bound to deep copies of its endpoints.
func CopyEdge(e Edge) (Edge, error) {
	if !ValidEdge(e) {
		return nil, provgraph.NewValidationError("graph.CopyEdge", provgraph.ErrInvalidItem)
	}
	child, err := CopyVertex(e.Child())
	if err != nil {
		return nil, err
	}
	parent, err := CopyVertex(e.Parent())
	if err != nil {
		return nil, err
	}
	c, err := e.CloneWith(child, parent)
	if err != nil {
		return nil, provgraph.NewCopyError("graph.CopyEdge", err)
	}
	if c == nil {
		return nil, provgraph.NewCopyError("graph.CopyEdge", errNilCopy)
	}
	return c, nil
}
