package id

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/zero-day-ai/provgraph/annotation"
)

// Hasher computes content-derived identities for vertices and edges.
type Hasher interface {
	// VertexID hashes the vertex annotations, ignoring any "id" annotation.
	// The same logical content always produces the same ID regardless of
	// insertion order.
	VertexID(annotations *annotation.Map) string

	// EdgeID hashes the edge annotations, ignoring any "id" annotation,
	// together with the identities of the child and parent vertices.
	EdgeID(childID, parentID string, annotations *annotation.Map) string
}

// DeterministicHasher implements Hasher using SHA-256.
//
// ID Generation Algorithm:
//  1. Drop the "id" annotation
//  2. Sort the remaining keys lexically
//  3. Build the canonical string:
//     vertex: vertex|"k1"="v1";"k2"="v2";
//     edge:   edge|"<child>"|"<parent>"|"k1"="v1";
//     (keys, values and endpoint IDs are Go-quoted, so no separator can be
//     forged by annotation content)
//  4. SHA-256 hash the canonical string
//  5. Return the lowercase hex digest
//
// Values are hashed verbatim: unlike node-type identifiers, provenance
// annotations are case sensitive.
type DeterministicHasher struct{}

// Default is the hasher used when callers do not supply one.
var Default Hasher = DeterministicHasher{}

// VertexID creates a deterministic ID from vertex annotations.
func (DeterministicHasher) VertexID(annotations *annotation.Map) string {
	var b strings.Builder
	b.WriteString("vertex|")
	writeCanonical(&b, annotations)
	return digest(b.String())
}

// EdgeID creates a deterministic ID from edge annotations and endpoint identities.
func (DeterministicHasher) EdgeID(childID, parentID string, annotations *annotation.Map) string {
	var b strings.Builder
	b.WriteString("edge|")
	b.WriteString(strconv.Quote(childID))
	b.WriteByte('|')
	b.WriteString(strconv.Quote(parentID))
	b.WriteByte('|')
	writeCanonical(&b, annotations)
	return digest(b.String())
}

// Canonical returns the canonical string of an annotation set, exposed for
// debugging hash mismatches between pipeline stages.
func Canonical(annotations *annotation.Map) string {
	var b strings.Builder
	writeCanonical(&b, annotations)
	return b.String()
}

func writeCanonical(b *strings.Builder, annotations *annotation.Map) {
	for _, k := range annotations.SortedKeys() {
		if k == annotation.KeyID {
			continue
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(annotations.Get(k)))
		b.WriteByte(';')
	}
}

func digest(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
