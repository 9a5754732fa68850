package filter

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/zero-day-ai/provgraph"
	"github.com/zero-day-ai/provgraph/annotation"
	"github.com/zero-day-ai/provgraph/graph"
	"github.com/zero-day-ai/provgraph/graph/id"
)

func vertex(kv ...string) *graph.BasicVertex {
	return graph.NewVertex(annotation.FromPairs(kv...))
}

type brokenVertex struct {
	*graph.BasicVertex
}

func (brokenVertex) Clone() (graph.Vertex, error) {
	return nil, errors.New("clone refused")
}

type failingSink struct{}

func (failingSink) PutVertex(context.Context, graph.Vertex) error { return errors.New("downstream gone") }
func (failingSink) PutEdge(context.Context, graph.Edge) error { return errors.New("downstream gone") }

func newFilter(t *testing.T, keep bool, opts ...Option) (*DropKeys, *Collector) {
	t.Helper()
	out := NewCollector()
	d, err := NewDropKeys(DropKeysConfig{
		EdgeDropKeys:   []string{"seq"},
		VertexDropKeys: []string{"pid"},
		KeepOriginalID: keep,
	}, out, opts...)
	require.NoError(t, err)
	return d, out
}

func TestParseDropKeysConfig(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]string
		want    DropKeysConfig
		wantErr string
	}{
		{
			name: "valid",
			values: map[string]string{
				"EdgeDropKeys":   "seq, jiffies",
				"VertexDropKeys": "pid",
				"KeepOriginalID": "true",
			},
			want: DropKeysConfig{
				EdgeDropKeys:   []string{"seq", "jiffies"},
				VertexDropKeys: []string{"pid"},
				KeepOriginalID: true,
			},
		},
		{
			name:    "missing edge keys",
			values:  map[string]string{"VertexDropKeys": "pid", "KeepOriginalID": "false"},
			wantErr: "EdgeDropKeys is required",
		},
		{
			name:    "empty vertex keys",
			values:  map[string]string{"EdgeDropKeys": "seq", "VertexDropKeys": "", "KeepOriginalID": "false"},
			wantErr: "VertexDropKeys is required",
		},
		{
			name:    "empty token",
			values:  map[string]string{"EdgeDropKeys": "seq,,x", "VertexDropKeys": "pid", "KeepOriginalID": "false"},
			wantErr: "EdgeDropKeys contains an empty key",
		},
		{
			name:    "type is reserved",
			values:  map[string]string{"EdgeDropKeys": "seq", "VertexDropKeys": "pid, type", "KeepOriginalID": "false"},
			wantErr: `VertexDropKeys must not contain "type"`,
		},
		{
			name:    "bad boolean",
			values:  map[string]string{"EdgeDropKeys": "seq", "VertexDropKeys": "pid", "KeepOriginalID": "yes"},
			wantErr: "KeepOriginalID must be true or false",
		},
		{
			name:    "missing boolean",
			values:  map[string]string{"EdgeDropKeys": "seq", "VertexDropKeys": "pid"},
			wantErr: "KeepOriginalID is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDropKeysConfig(tt.values)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, provgraph.ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewDropKeysRejectsInvalidConfig(t *testing.T) {
	_, err := NewDropKeys(DropKeysConfig{VertexDropKeys: []string{"pid"}}, NewCollector())
	assert.ErrorIs(t, err, provgraph.ErrInvalidConfig)

	_, err = NewDropKeys(DropKeysConfig{EdgeDropKeys: []string{"type"}, VertexDropKeys: []string{"pid"}}, NewCollector())
	assert.ErrorIs(t, err, provgraph.ErrInvalidConfig)

	_, err = NewDropKeys(DropKeysConfig{EdgeDropKeys: []string{"seq"}, VertexDropKeys: []string{"pid"}}, nil)
	assert.ErrorIs(t, err, provgraph.ErrInvalidConfig)
}

func TestPutVertexFreshIdentity(t *testing.T) {
	d, out := newFilter(t, false)
	in := vertex("type", "Process", "name", "bash", "pid", "100", "id", "X")

	require.NoError(t, d.PutVertex(context.Background(), in))

	got := out.Vertices()
	require.Len(t, got, 1)
	ann := got[0].Annotations()
	assert.False(t, ann.Has("pid"))
	assert.Equal(t, "bash", ann.Get("name"))
	assert.NotEqual(t, "X", ann.Get("id"))
	assert.Equal(t, id.Default.VertexID(annotation.FromPairs("type", "Process", "name", "bash")), ann.Get("id"))

	// input untouched
	assert.Equal(t, "100", in.Annotations().Get("pid"))
	assert.Equal(t, "X", in.Annotations().Get("id"))
}

func TestPutVertexFreshIdentityIgnoresOrder(t *testing.T) {
	d, out := newFilter(t, false)
	ctx := context.Background()

	require.NoError(t, d.PutVertex(ctx, vertex("type", "Process", "name", "bash", "pid", "1")))
	require.NoError(t, d.PutVertex(ctx, vertex("pid", "2", "name", "bash", "type", "Process")))

	got := out.Vertices()
	require.Len(t, got, 2)
	assert.Equal(t, got[0].Annotations().Get("id"), got[1].Annotations().Get("id"))
}

func TestPutVertexKeepOriginalID(t *testing.T) {
	d, out := newFilter(t, true)
	in := vertex("type", "Process", "name", "bash", "pid", "100", "id", "X")

	require.NoError(t, d.PutVertex(context.Background(), in))

	got := out.Vertices()
	require.Len(t, got, 1)
	assert.NotSame(t, in, got[0])
	assert.Equal(t, "X", got[0].Annotations().Get("id"))
	assert.False(t, got[0].Annotations().Has("pid"))
	assert.Equal(t, "100", in.Annotations().Get("pid"))
}

func TestPutVertexDiscards(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	ctx := context.Background()

	d, out := newFilter(t, true, WithLogger(logger))
	require.NoError(t, d.PutVertex(ctx, nil))
	require.NoError(t, d.PutVertex(ctx, brokenVertex{vertex("id", "X")}))

	assert.Empty(t, out.Vertices())
	assert.Contains(t, logs.String(), "discarding nil vertex")
	assert.Contains(t, logs.String(), "failed to copy vertex")
	assert.Contains(t, logs.String(), "level=ERROR")

	for _, keep := range []bool{true, false} {
		d, out := newFilter(t, keep)
		assert.NotPanics(t, func() {
			require.NoError(t, d.PutVertex(ctx, (*graph.BasicVertex)(nil)))
		}, "keep=%t", keep)
		assert.Empty(t, out.Vertices())
	}
}

func TestPutEdgeFreshIdentity(t *testing.T) {
	d, out := newFilter(t, false)
	child := vertex("type", "Process", "name", "bash", "pid", "1", "id", "C")
	parent := vertex("type", "Artifact", "path", "/tmp/x", "pid", "2", "id", "P")
	e := graph.NewEdge(child, parent).WithAnnotations(annotation.FromPairs("type", "Used", "seq", "9", "id", "E"))

	require.NoError(t, d.PutEdge(context.Background(), e))

	got := out.Edges()
	require.Len(t, got, 1)
	ge := got[0]

	wantChild := id.Default.VertexID(annotation.FromPairs("type", "Process", "name", "bash"))
	wantParent := id.Default.VertexID(annotation.FromPairs("type", "Artifact", "path", "/tmp/x"))
	assert.Equal(t, wantChild, ge.Child().Annotations().Get("id"))
	assert.Equal(t, wantParent, ge.Parent().Annotations().Get("id"))
	assert.False(t, ge.Child().Annotations().Has("pid"))

	assert.False(t, ge.Annotations().Has("seq"))
	assert.Equal(t, id.Default.EdgeID(wantChild, wantParent, annotation.FromPairs("type", "Used")), ge.Annotations().Get("id"))

	assert.Equal(t, "E", e.Annotations().Get("id"))
	assert.Equal(t, "9", e.Annotations().Get("seq"))
}

func TestPutEdgeEndpointsMatchVertexPath(t *testing.T) {
	d, out := newFilter(t, false)
	ctx := context.Background()
	child := vertex("type", "Process", "name", "bash", "pid", "1")
	parent := vertex("type", "Artifact", "path", "/tmp/x")

	require.NoError(t, d.PutVertex(ctx, child))
	require.NoError(t, d.PutVertex(ctx, parent))
	require.NoError(t, d.PutEdge(ctx, graph.NewEdge(child, parent).WithAnnotations(annotation.FromPairs("type", "Used"))))

	g := out.Graph()
	assert.Equal(t, 2, g.VertexCount(), "edge endpoints carry the same identity as the forwarded vertices")
	assert.Equal(t, 1, g.EdgeCount())
	assert.NoError(t, g.Validate())
}

func TestPutEdgeKeepOriginalID(t *testing.T) {
	d, out := newFilter(t, true)
	child := vertex("type", "Process", "pid", "1", "seq", "3", "id", "C")
	parent := vertex("type", "Artifact", "pid", "2", "id", "P")
	e := graph.NewEdge(child, parent).WithAnnotations(annotation.FromPairs("type", "Used", "seq", "9", "pid", "5", "id", "E"))

	require.NoError(t, d.PutEdge(context.Background(), e))

	got := out.Edges()
	require.Len(t, got, 1)
	ge := got[0]
	assert.Equal(t, "E", ge.Annotations().Get("id"))
	assert.False(t, ge.Annotations().Has("seq"))
	assert.Equal(t, "5", ge.Annotations().Get("pid"), "edge keeps vertex drop keys")

	assert.Equal(t, "C", ge.Child().Annotations().Get("id"))
	assert.False(t, ge.Child().Annotations().Has("pid"))
	assert.Equal(t, "3", ge.Child().Annotations().Get("seq"), "endpoints keep edge drop keys")
	assert.Equal(t, "P", ge.Parent().Annotations().Get("id"))

	assert.NotSame(t, child, ge.Child())
	assert.Equal(t, "1", child.Annotations().Get("pid"))
}

func TestPutEdgeDiscards(t *testing.T) {
	ctx := context.Background()
	a := vertex("id", "A")

	for _, keep := range []bool{true, false} {
		d, out := newFilter(t, keep)
		require.NoError(t, d.PutEdge(ctx, nil))
		require.NoError(t, d.PutEdge(ctx, graph.NewEdge(nil, a)))
		require.NoError(t, d.PutEdge(ctx, graph.NewEdge(a, nil)))
		assert.NotPanics(t, func() {
			var typedNil *graph.BasicVertex
			require.NoError(t, d.PutEdge(ctx, graph.NewEdge(typedNil, a)))
			require.NoError(t, d.PutEdge(ctx, graph.NewEdge(a, typedNil)))
			require.NoError(t, d.PutEdge(ctx, (*graph.BasicEdge)(nil)))
		}, "keep=%t", keep)
		assert.Empty(t, out.Edges())
	}

	d, out := newFilter(t, true)
	require.NoError(t, d.PutEdge(ctx, graph.NewEdge(a, brokenVertex{vertex("id", "B")})))
	assert.Empty(t, out.Edges())
}

func TestDownstreamErrorsPropagate(t *testing.T) {
	d, err := NewDropKeys(DropKeysConfig{
		EdgeDropKeys:   []string{"seq"},
		VertexDropKeys: []string{"pid"},
	}, failingSink{})
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorContains(t, d.PutVertex(ctx, vertex("id", "A")), "downstream gone")
	assert.ErrorContains(t, d.PutEdge(ctx, graph.NewEdge(vertex("id", "A"), vertex("id", "B"))), "downstream gone")

	// discarded items never reach the sink
	assert.NoError(t, d.PutVertex(ctx, nil))
}

func TestFiltersChain(t *testing.T) {
	out := NewCollector()
	second, err := NewDropKeys(DropKeysConfig{
		EdgeDropKeys:   []string{"jiffies"},
		VertexDropKeys: []string{"boot_id"},
	}, out)
	require.NoError(t, err)
	first, err := NewDropKeys(DropKeysConfig{
		EdgeDropKeys:   []string{"seq"},
		VertexDropKeys: []string{"pid"},
	}, second)
	require.NoError(t, err)

	require.NoError(t, first.PutVertex(context.Background(), vertex("type", "Process", "pid", "1", "boot_id", "7", "name", "sh")))

	got := out.Vertices()
	require.Len(t, got, 1)
	assert.Equal(t, []string{"type", "name", "id"}, got[0].Annotations().Keys())
}

func TestFeed(t *testing.T) {
	g := graph.New()
	a := vertex("type", "Process", "pid", "1")
	b := vertex("type", "Artifact", "pid", "2")
	g.PutVertex(a)
	g.PutVertex(b)
	g.PutEdge(graph.NewEdge(a, b).WithAnnotations(annotation.FromPairs("type", "Used", "seq", "1")))

	d, out := newFilter(t, false)
	require.NoError(t, Feed(context.Background(), g, d))
	assert.Len(t, out.Vertices(), 2)
	assert.Len(t, out.Edges(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Feed(ctx, g, d), context.Canceled)
}

func TestItemCounter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	ctx := context.Background()

	d, _ := newFilter(t, true, WithMeter(provider.Meter("test")))
	require.NoError(t, d.PutVertex(ctx, vertex("id", "A")))
	require.NoError(t, d.PutVertex(ctx, vertex("id", "B")))
	require.NoError(t, d.PutVertex(ctx, nil))
	require.NoError(t, d.PutEdge(ctx, graph.NewEdge(vertex("id", "A"), brokenVertex{vertex("id", "B")})))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "provgraph.filter.items" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				kind, _ := dp.Attributes.Value("kind")
				outcome, _ := dp.Attributes.Value("outcome")
				counts[kind.AsString()+"/"+outcome.AsString()] = dp.Value
			}
		}
	}

	assert.Equal(t, map[string]int64{
		"vertex/forwarded": 2,
		"vertex/invalid":   1,
		"edge/copy_failed": 1,
	}, counts)
}
