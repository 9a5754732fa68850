// Package id provides deterministic identity hashing for provenance vertices
// and edges.
//
// # Core Concepts
//
// The "id" annotation of a vertex is a content hash over its other
// annotations. The "id" of an edge additionally covers the identities of its
// child and parent vertices, so rewiring an edge changes its identity.
//
// # Canonical Representation
//
// Annotations are canonicalized before hashing:
//   - the "id" annotation is excluded
//   - keys are sorted lexically
//   - keys and values are quoted, so content cannot forge separators
//
// Hashing therefore never depends on map iteration or insertion order, which
// keeps identities stable across runs and across pipeline stages.
//
// # Usage
//
//	m := annotation.FromPairs("type", "Process", "name", "bash")
//	vid := id.Default.VertexID(m)
//	m.Set("id", vid)
//
//	// re-hashing ignores the stored id
//	vid == id.Default.VertexID(m) // true
package id
