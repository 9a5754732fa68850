package worker

import (
	"context"
	"fmt"

	"github.com/zero-day-ai/provgraph/filter"
	"github.com/zero-day-ai/provgraph/queue"
	"github.com/zero-day-ai/provgraph/transform"
)

// Stage is a graph operator hosted by a worker.
type Stage interface {
	// Kind returns queue.OperatorFilter or queue.OperatorTransformer.
	Kind() string

	// Bind connects the stage to the output queue. Run calls it once,
	// before the first Process.
	Bind(out *queue.Sink) error

	// Process handles one item popped from the input queue. Returned errors
	// come from the output side; malformed items are the caller's concern.
	Process(ctx context.Context, item *queue.Item) error
}

// FilterStage streams every item through a filter chain.
type FilterStage struct {
	build func(next filter.Sink) (filter.Sink, error)
	head  filter.Sink
	out   *queue.Sink
}

// NewFilterStage creates a streaming stage. build receives the output sink
// and returns the head of the chain, typically a *filter.DropKeys:
//
//	stage := worker.NewFilterStage(func(next filter.Sink) (filter.Sink, error) {
//	    return filter.NewDropKeys(cfg, next, filter.WithLogger(logger))
//	})
func NewFilterStage(build func(next filter.Sink) (filter.Sink, error)) *FilterStage {
	return &FilterStage{build: build}
}

// Kind implements Stage.
func (s *FilterStage) Kind() string { return queue.OperatorFilter }

// Bind implements Stage.
func (s *FilterStage) Bind(out *queue.Sink) error {
	if s.build == nil {
		return fmt.Errorf("filter stage has no builder")
	}
	head, err := s.build(out)
	if err != nil {
		return err
	}
	if head == nil {
		return fmt.Errorf("filter builder returned a nil sink")
	}
	s.head = head
	s.out = out
	return nil
}

// Process implements Stage. Flush markers are forwarded so batch stages
// further down see the same batch boundaries.
func (s *FilterStage) Process(ctx context.Context, item *queue.Item) error {
	if s.head == nil {
		return fmt.Errorf("filter stage is not bound")
	}
	switch item.Kind {
	case queue.KindVertex:
		v, err := item.ToVertex()
		if err != nil {
			return err
		}
		return s.head.PutVertex(ctx, v)
	case queue.KindEdge:
		e, err := item.ToEdge()
		if err != nil {
			return err
		}
		return s.head.PutEdge(ctx, e)
	case queue.KindFlush:
		return s.out.Flush(ctx)
	default:
		return fmt.Errorf("unknown item kind %q", item.Kind)
	}
}

// TransformStage buffers items until a flush marker, then transforms the
// buffered graph and pushes the result as one batch.
type TransformStage struct {
	transformer transform.Transformer
	buffer      *filter.Collector
	out         *queue.Sink
}

// NewTransformStage creates a batch stage around t.
func NewTransformStage(t transform.Transformer) *TransformStage {
	return &TransformStage{transformer: t, buffer: filter.NewCollector()}
}

// Kind implements Stage.
func (s *TransformStage) Kind() string { return queue.OperatorTransformer }

// Bind implements Stage.
func (s *TransformStage) Bind(out *queue.Sink) error {
	if s.transformer == nil {
		return fmt.Errorf("transform stage has no transformer")
	}
	s.out = out
	return nil
}

// Pending returns the number of buffered vertices and edges.
func (s *TransformStage) Pending() (vertices, edges int) {
	return len(s.buffer.Vertices()), len(s.buffer.Edges())
}

// Process implements Stage.
func (s *TransformStage) Process(ctx context.Context, item *queue.Item) error {
	if s.out == nil {
		return fmt.Errorf("transform stage is not bound")
	}
	switch item.Kind {
	case queue.KindVertex:
		v, err := item.ToVertex()
		if err != nil {
			return err
		}
		return s.buffer.PutVertex(ctx, v)
	case queue.KindEdge:
		e, err := item.ToEdge()
		if err != nil {
			return err
		}
		return s.buffer.PutEdge(ctx, e)
	case queue.KindFlush:
		in := s.buffer.Graph()
		result, err := s.transformer.Transform(ctx, in)
		if err != nil {
			// An interrupted batch stays buffered for the next flush.
			if ctx.Err() != nil {
				return fmt.Errorf("transform batch interrupted, keeping %d vertices and %d edges: %w",
					in.VertexCount(), in.EdgeCount(), err)
			}
			s.buffer.Reset()
			return fmt.Errorf("transform batch failed, dropped %d vertices and %d edges: %w",
				in.VertexCount(), in.EdgeCount(), err)
		}
		if err := s.out.PutGraph(ctx, result); err != nil {
			return fmt.Errorf("push batch: %w", err)
		}
		s.buffer.Reset()
		return nil
	default:
		return fmt.Errorf("unknown item kind %q", item.Kind)
	}
}
