package transform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/provgraph"
	"github.com/zero-day-ai/provgraph/annotation"
	"github.com/zero-day-ai/provgraph/component"
	"github.com/zero-day-ai/provgraph/graph"
	"github.com/zero-day-ai/provgraph/graph/id"
)

const (
	opMergeInit      = "MergeVertex.Init"
	opMergeTransform = "MergeVertex.Transform"

	// DefaultDelimiter follows every contributing value in a merge hash.
	DefaultDelimiter = ","
)

// Outcomes recorded on the provgraph.merge.edges counter.
const (
	EdgeKept       = "kept"
	EdgeUnmatched  = "unmatched"
	EdgeSelfLoop   = "self_loop"
	EdgeCopyFailed = "copy_failed"
)

// Transformer rewrites a complete graph into a new one.
type Transformer interface {
	Transform(ctx context.Context, g *graph.Graph) (*graph.Graph, error)
}

// Option configures a MergeVertex transformer.
type Option func(*MergeVertex)

// WithPreserveEdgeAnnotations controls whether rewired edges keep the
// annotations of the edge they replace. Enabled by default.
func WithPreserveEdgeAnnotations(preserve bool) Option {
	return func(m *MergeVertex) {
		m.preserve = preserve
	}
}

// WithDelimiter sets the separator placed after each value of a merge hash.
// It must not be empty.
func WithDelimiter(delim string) Option {
	return func(m *MergeVertex) {
		m.delimiter = delim
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *MergeVertex) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTracer wraps every Transform call in a span.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *MergeVertex) {
		m.tracer = tracer
	}
}

// WithMeter enables the provgraph.merge.groups and provgraph.merge.edges counters.
func WithMeter(meter metric.Meter) Option {
	return func(m *MergeVertex) {
		m.meter = meter
	}
}

// WithHasher replaces the hasher used to re-identify preserved edges.
func WithHasher(h id.Hasher) Option {
	return func(m *MergeVertex) {
		if h != nil {
			m.hasher = h
		}
	}
}

// MergeVertex collapses vertices that agree on a set of merge keys into a
// single representative and rewires edges onto the representatives.
//
// The first vertex of each group, in graph insertion order, is copied to
// become the representative. Every later member removes from the
// representative each shared key whose member value does not contain the
// representative value. Vertices with no merge key value are dropped along
// with their edges, and edges whose endpoints end up in the same group are
// dropped instead of becoming self-loops.
//
// A MergeVertex keeps no state between Transform calls.
type MergeVertex struct {
	keys      []string
	delimiter string
	preserve  bool
	hasher    id.Hasher
	logger    *slog.Logger
	tracer    trace.Tracer
	meter     metric.Meter

	groupCounter metric.Int64Counter
	edgeCounter  metric.Int64Counter
}

// ParseMergeKeys splits a comma-separated merge key list. Whitespace around
// keys is trimmed and empty entries are ignored; at least one key must remain.
func ParseMergeKeys(list string) ([]string, error) {
	keys, _ := component.SplitKeys(list)
	if len(keys) == 0 {
		return nil, provgraph.NewConfigError(opMergeInit, "merge key list is empty")
	}
	return keys, nil
}

// NewMergeVertex creates a transformer merging on keys, in order.
func NewMergeVertex(keys []string, opts ...Option) (*MergeVertex, error) {
	if len(keys) == 0 {
		return nil, provgraph.NewConfigError(opMergeInit, "merge key list is empty")
	}
	for _, k := range keys {
		if k == "" {
			return nil, provgraph.NewConfigError(opMergeInit, "merge key list contains an empty key")
		}
	}

	m := &MergeVertex{
		keys:      append([]string(nil), keys...),
		delimiter: DefaultDelimiter,
		preserve:  true,
		hasher:    id.Default,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.delimiter == "" {
		return nil, provgraph.NewConfigError(opMergeInit, "merge hash delimiter is empty")
	}

	if m.meter != nil {
		var err error
		m.groupCounter, err = m.meter.Int64Counter(
			"provgraph.merge.groups",
			metric.WithDescription("Number of merge groups produced"),
			metric.WithUnit("1"),
		)
		if err != nil {
			return nil, fmt.Errorf("create group counter: %w", err)
		}
		m.edgeCounter, err = m.meter.Int64Counter(
			"provgraph.merge.edges",
			metric.WithDescription("Number of edges considered for rewiring, by outcome"),
			metric.WithUnit("1"),
		)
		if err != nil {
			return nil, fmt.Errorf("create edge counter: %w", err)
		}
	}

	return m, nil
}

// Keys returns the merge keys in order.
func (m *MergeVertex) Keys() []string {
	return append([]string(nil), m.keys...)
}

// MergeHash concatenates the non-empty values of the merge keys of v, each
// followed by the delimiter. It returns "" when v has none of them.
func (m *MergeVertex) MergeHash(v graph.Vertex) string {
	if !graph.ValidVertex(v) {
		return ""
	}
	var b strings.Builder
	ann := v.Annotations()
	for _, k := range m.keys {
		if val := ann.Get(k); val != "" {
			b.WriteString(val)
			b.WriteString(m.delimiter)
		}
	}
	return b.String()
}

// group is one merge-hash bucket.
type group struct {
	hash           string
	representative graph.Vertex
	members        int
}

// Transform returns a new graph holding one representative per merge group
// and the edges rewired onto them. The input graph is not modified.
func (m *MergeVertex) Transform(ctx context.Context, g *graph.Graph) (*graph.Graph, error) {
	if g == nil {
		return nil, provgraph.NewValidationError(opMergeTransform, provgraph.ErrInvalidItem)
	}

	var span trace.Span
	if m.tracer != nil {
		ctx, span = m.tracer.Start(ctx, "provgraph.merge.transform")
		defer span.End()
		span.SetAttributes(
			attribute.StringSlice("merge.keys", m.keys),
			attribute.Int("graph.vertices", g.VertexCount()),
			attribute.Int("graph.edges", g.EdgeCount()),
		)
	}

	groups, order, skipped, err := m.group(ctx, g)
	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "grouping failed")
		}
		return nil, err
	}

	out := graph.New()
	for _, h := range order {
		out.PutVertex(groups[h].representative)
	}

	outcomes := map[string]int{}
	for _, e := range g.Edges() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcome := m.rewire(ctx, e, groups, out)
		outcomes[outcome]++
		m.recordEdge(ctx, outcome)
	}

	if m.groupCounter != nil {
		m.groupCounter.Add(ctx, int64(len(order)))
	}

	m.logger.DebugContext(ctx, "merged vertices",
		"groups", len(order),
		"skipped_vertices", skipped,
		"edges_kept", outcomes[EdgeKept],
		"edges_unmatched", outcomes[EdgeUnmatched],
		"edges_self_loop", outcomes[EdgeSelfLoop])

	if span != nil {
		span.SetAttributes(
			attribute.Int("merge.groups", len(order)),
			attribute.Int("merge.skipped_vertices", skipped),
			attribute.Int("merge.edges_kept", outcomes[EdgeKept]),
		)
		span.SetStatus(codes.Ok, "")
	}

	return out, nil
}

// group runs the grouping and reconciliation pass. order lists the group
// hashes in the order their first member was seen.
func (m *MergeVertex) group(ctx context.Context, g *graph.Graph) (map[string]*group, []string, int, error) {
	groups := make(map[string]*group)
	var order []string
	skipped := 0

	for _, v := range g.Vertices() {
		if err := ctx.Err(); err != nil {
			return nil, nil, 0, err
		}

		h := m.MergeHash(v)
		if h == "" {
			skipped++
			continue
		}

		grp, ok := groups[h]
		if !ok {
			rep, err := graph.CopyVertex(v)
			if err != nil {
				return nil, nil, 0, fmt.Errorf("copy representative for %q: %w", h, err)
			}
			groups[h] = &group{hash: h, representative: rep, members: 1}
			order = append(order, h)
			continue
		}

		reconcile(grp.representative.Annotations(), v.Annotations())
		grp.members++
	}
	return groups, order, skipped, nil
}

// reconcile removes from rep every key that member also has, unless the
// member value contains the representative value.
func reconcile(rep, member *annotation.Map) {
	for _, k := range rep.Keys() {
		mv, ok := member.Lookup(k)
		if !ok {
			continue
		}
		if !strings.Contains(mv, rep.Get(k)) {
			rep.Remove(k)
		}
	}
}

// rewire builds the replacement for e and adds it to out when both
// endpoints resolve to distinct groups.
func (m *MergeVertex) rewire(ctx context.Context, e graph.Edge, groups map[string]*group, out *graph.Graph) string {
	if !graph.ValidEdge(e) {
		return EdgeUnmatched
	}

	skeleton, err := m.skeleton(e)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to copy edge",
			"edge", graph.DescribeEdge(e),
			"error", err)
		return EdgeCopyFailed
	}

	childHash := m.MergeHash(e.Child())
	parentHash := m.MergeHash(e.Parent())
	childGroup, foundChild := lookup(groups, childHash)
	parentGroup, foundParent := lookup(groups, parentHash)
	if foundChild {
		skeleton.SetChild(childGroup.representative)
	}
	if foundParent {
		skeleton.SetParent(parentGroup.representative)
	}

	if !foundChild || !foundParent {
		return EdgeUnmatched
	}
	if childGroup == parentGroup {
		return EdgeSelfLoop
	}

	if m.preserve && e.Annotations().Has(annotation.KeyID) {
		ann := skeleton.Annotations()
		ann.Set(annotation.KeyID, m.hasher.EdgeID(
			graph.Identity(childGroup.representative),
			graph.Identity(parentGroup.representative),
			ann,
		))
	}

	out.PutEdge(skeleton)
	return EdgeKept
}

// skeleton returns a new edge bound to the original endpoints of e. With
// annotation preservation it is a copy of e without its stale "id";
// otherwise it carries no annotations.
func (m *MergeVertex) skeleton(e graph.Edge) (graph.Edge, error) {
	if !m.preserve {
		return graph.NewEdge(e.Child(), e.Parent()), nil
	}
	c, err := e.CloneWith(e.Child(), e.Parent())
	if err != nil {
		return nil, provgraph.NewCopyError(opMergeTransform, err)
	}
	if c == nil {
		return nil, provgraph.NewCopyError(opMergeTransform, fmt.Errorf("clone returned nil"))
	}
	c.Annotations().Remove(annotation.KeyID)
	return c, nil
}

func (m *MergeVertex) recordEdge(ctx context.Context, outcome string) {
	if m.edgeCounter == nil {
		return
	}
	m.edgeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func lookup(groups map[string]*group, hash string) (*group, bool) {
	if hash == "" {
		return nil, false
	}
	grp, ok := groups[hash]
	return grp, ok
}
