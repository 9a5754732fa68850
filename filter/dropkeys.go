package filter

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/zero-day-ai/provgraph"
	"github.com/zero-day-ai/provgraph/annotation"
	"github.com/zero-day-ai/provgraph/graph"
	"github.com/zero-day-ai/provgraph/graph/id"
)

// Outcomes recorded on the provgraph.filter.items counter.
const (
	OutcomeForwarded  = "forwarded"
	OutcomeInvalid    = "invalid"
	OutcomeCopyFailed = "copy_failed"
)

// Option configures a DropKeys filter.
type Option func(*DropKeys)

// WithLogger sets the logger used for discarded items.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DropKeys) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMeter enables the provgraph.filter.items counter.
func WithMeter(meter metric.Meter) Option {
	return func(d *DropKeys) {
		d.meter = meter
	}
}

// WithHasher replaces the identity hasher used in fresh-identity mode.
func WithHasher(h id.Hasher) Option {
	return func(d *DropKeys) {
		if h != nil {
			d.hasher = h
		}
	}
}

// DropKeys removes configured annotation keys from every vertex and edge it
// receives and forwards the result to the next Sink.
//
// In fresh-identity mode (KeepOriginalID false) every forwarded item is a
// new BasicVertex or BasicEdge whose "id" is recomputed from the remaining
// annotations. In identity-preserving mode items are deep copies of the
// input and keep their original "id".
//
// Inputs are never mutated. DropKeys holds no per-item state; it is safe
// for concurrent use when the next Sink is.
type DropKeys struct {
	cfg        DropKeysConfig
	edgeDrop   []string
	vertexDrop []string
	next       Sink
	hasher     id.Hasher
	logger     *slog.Logger
	meter      metric.Meter
	items      metric.Int64Counter
}

// NewDropKeys validates cfg and creates a filter forwarding to next.
func NewDropKeys(cfg DropKeysConfig, next Sink, opts ...Option) (*DropKeys, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if next == nil {
		return nil, provgraph.NewConfigError(opInit, "next sink is required")
	}

	d := &DropKeys{
		cfg:    cfg,
		next:   next,
		hasher: id.Default,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	// "id" is always recomputed in fresh-identity mode, so it is dropped
	// together with the configured keys.
	d.edgeDrop = append([]string{annotation.KeyID}, cfg.EdgeDropKeys...)
	d.vertexDrop = append([]string{annotation.KeyID}, cfg.VertexDropKeys...)

	if d.meter != nil {
		counter, err := d.meter.Int64Counter(
			"provgraph.filter.items",
			metric.WithDescription("Number of items handled by the key-drop filter"),
			metric.WithUnit("1"),
		)
		if err != nil {
			return nil, fmt.Errorf("create item counter: %w", err)
		}
		d.items = counter
	}

	return d, nil
}

// Config returns the configuration the filter was built with.
func (d *DropKeys) Config() DropKeysConfig {
	return d.cfg
}

// PutVertex forwards v without the configured vertex keys. A nil vertex or a
// failed copy is logged and discarded.
func (d *DropKeys) PutVertex(ctx context.Context, v graph.Vertex) error {
	if !graph.ValidVertex(v) {
		d.logger.WarnContext(ctx, "discarding nil vertex")
		d.record(ctx, "vertex", OutcomeInvalid)
		return nil
	}

	var out graph.Vertex
	if d.cfg.KeepOriginalID {
		c, err := graph.CopyVertex(v)
		if err != nil {
			d.logger.ErrorContext(ctx, "failed to copy vertex",
				"vertex", graph.Describe(v),
				"error", err)
			d.record(ctx, "vertex", OutcomeCopyFailed)
			return nil
		}
		removeKeys(c.Annotations(), d.cfg.VertexDropKeys)
		out = c
	} else {
		out = d.freshVertex(v)
	}

	if err := d.next.PutVertex(ctx, out); err != nil {
		return fmt.Errorf("forward vertex: %w", err)
	}
	d.record(ctx, "vertex", OutcomeForwarded)
	return nil
}

// PutEdge forwards e without the configured edge keys, with endpoints
// stripped of the configured vertex keys. Edges that are nil, have a nil
// endpoint, or fail to copy are logged and discarded.
func (d *DropKeys) PutEdge(ctx context.Context, e graph.Edge) error {
	if !graph.ValidEdge(e) {
		d.logger.WarnContext(ctx, "discarding invalid edge",
			"edge", graph.DescribeEdge(e))
		d.record(ctx, "edge", OutcomeInvalid)
		return nil
	}

	var out graph.Edge
	if d.cfg.KeepOriginalID {
		c, err := graph.CopyEdge(e)
		if err != nil {
			d.logger.ErrorContext(ctx, "failed to copy edge",
				"edge", graph.DescribeEdge(e),
				"error", err)
			d.record(ctx, "edge", OutcomeCopyFailed)
			return nil
		}
		removeKeys(c.Annotations(), d.cfg.EdgeDropKeys)
		removeKeys(c.Child().Annotations(), d.cfg.VertexDropKeys)
		removeKeys(c.Parent().Annotations(), d.cfg.VertexDropKeys)
		out = c
	} else {
		out = d.freshEdge(e)
	}

	if err := d.next.PutEdge(ctx, out); err != nil {
		return fmt.Errorf("forward edge: %w", err)
	}
	d.record(ctx, "edge", OutcomeForwarded)
	return nil
}

func (d *DropKeys) freshVertex(v graph.Vertex) *graph.BasicVertex {
	annotations := v.Annotations().Without(d.vertexDrop...)
	annotations.Set(annotation.KeyID, d.hasher.VertexID(annotations))
	return graph.NewVertex(annotations)
}

func (d *DropKeys) freshEdge(e graph.Edge) *graph.BasicEdge {
	child := d.freshVertex(e.Child())
	parent := d.freshVertex(e.Parent())

	annotations := e.Annotations().Without(d.edgeDrop...)
	annotations.Set(annotation.KeyID, d.hasher.EdgeID(
		child.Annotations().Get(annotation.KeyID),
		parent.Annotations().Get(annotation.KeyID),
		annotations,
	))
	return graph.NewEdge(child, parent).WithAnnotations(annotations)
}

func (d *DropKeys) record(ctx context.Context, kind, outcome string) {
	if d.items == nil {
		return
	}
	d.items.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func removeKeys(m *annotation.Map, keys []string) {
	for _, k := range keys {
		m.Remove(k)
	}
}
