package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/provgraph/annotation"
	"github.com/zero-day-ai/provgraph/graph"
	"github.com/zero-day-ai/provgraph/queue"
)

type result struct {
	stdout bytes.Buffer
	stderr bytes.Buffer
	err    error
}

func run(t *testing.T, stdin []byte, args ...string) *result {
	t.Helper()
	res := &result{}
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(bytes.NewReader(stdin))
	cmd.SetOut(&res.stdout)
	cmd.SetErr(&res.stderr)
	res.err = cmd.Execute()
	return res
}

func writePipeline(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func sampleGraph(t *testing.T) []byte {
	t.Helper()
	g := graph.New()
	bash1 := graph.NewVertex(annotation.FromPairs("type", "process", "name", "bash", "pid", "7", "path", "/bin/bash"))
	bash2 := graph.NewVertex(annotation.FromPairs("type", "process", "name", "bash", "pid", "9", "path", "/usr/bin/bash"))
	passwd := graph.NewVertex(annotation.FromPairs("type", "file", "name", "passwd"))
	for _, v := range []graph.Vertex{bash1, bash2, passwd} {
		g.PutVertex(v)
	}
	read := graph.NewEdge(bash2, passwd)
	read.Annotations().Set("type", "read")
	read.Annotations().Set("seq", "12")
	g.PutEdge(read)

	var buf bytes.Buffer
	require.NoError(t, graph.Encode(&buf, g))
	return buf.Bytes()
}

func decode(t *testing.T, data []byte) *graph.Graph {
	t.Helper()
	g, err := graph.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return g
}

const emptyPipeline = "name: test\n"

func TestDropKeysCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.json")
	out := filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(in, sampleGraph(t), 0o600))

	res := run(t, nil,
		"--config", writePipeline(t, emptyPipeline),
		"dropkeys", "--in", in, "--out", out,
		"--args", "EdgeDropKeys=seq VertexDropKeys=pid KeepOriginalID=false")
	require.NoError(t, res.err, res.stderr.String())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	g := decode(t, data)
	assert.Equal(t, 3, g.VertexCount())
	require.Equal(t, 1, g.EdgeCount())

	for _, v := range g.Vertices() {
		assert.False(t, v.Annotations().Has("pid"))
		assert.True(t, v.Annotations().Has("id"))
	}
	e := g.Edges()[0]
	assert.False(t, e.Annotations().Has("seq"))
	assert.Equal(t, "read", e.Annotations().Get("type"))
}

func TestDropKeysArgumentsOverridePipeline(t *testing.T) {
	pipeline := writePipeline(t, `
name: dropkeys
filters:
  drop_keys:
    edge_drop_keys: seq
    vertex_drop_keys: pid
`)

	res := run(t, sampleGraph(t), "--config", pipeline, "dropkeys")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "KeepOriginalID is required")

	res = run(t, sampleGraph(t), "--config", pipeline, "dropkeys", "--args", "KeepOriginalID=true")
	require.NoError(t, res.err, res.stderr.String())
	g := decode(t, res.stdout.Bytes())
	for _, v := range g.Vertices() {
		assert.False(t, v.Annotations().Has("pid"))
		assert.False(t, v.Annotations().Has("id"), "original identities are kept, none are added")
	}
}

func TestDropKeysRejectsBadArguments(t *testing.T) {
	res := run(t, sampleGraph(t), "--config", writePipeline(t, emptyPipeline),
		"dropkeys", "--args", "EdgeDropKeys=type VertexDropKeys=pid KeepOriginalID=false")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), `must not contain "type"`)

	res = run(t, sampleGraph(t), "--config", writePipeline(t, emptyPipeline), "dropkeys", "--args", "broken")
	assert.Error(t, res.err)
}

func TestMergeCommand(t *testing.T) {
	res := run(t, sampleGraph(t), "--config", writePipeline(t, emptyPipeline), "merge", "--keys", "name")
	require.NoError(t, res.err, res.stderr.String())

	g := decode(t, res.stdout.Bytes())
	assert.Equal(t, 2, g.VertexCount())
	require.Equal(t, 1, g.EdgeCount())

	e := g.Edges()[0]
	assert.Equal(t, "/bin/bash", e.Child().Annotations().Get("path"))
	assert.Equal(t, "read", e.Annotations().Get("type"))
}

func TestMergeCommandUsesPipelineSettings(t *testing.T) {
	pipeline := writePipeline(t, `
name: merge
transformers:
  merge_vertex:
    keys: name
    preserve_edge_annotations: false
`)

	res := run(t, sampleGraph(t), "--config", pipeline, "merge")
	require.NoError(t, res.err, res.stderr.String())
	g := decode(t, res.stdout.Bytes())
	require.Equal(t, 1, g.EdgeCount())
	assert.False(t, g.Edges()[0].Annotations().Has("type"), "edge annotations are dropped")

	res = run(t, sampleGraph(t), "--config", pipeline, "merge", "--preserve-edge-annotations=true")
	require.NoError(t, res.err, res.stderr.String())
	g = decode(t, res.stdout.Bytes())
	require.Equal(t, 1, g.EdgeCount())
	assert.Equal(t, "read", g.Edges()[0].Annotations().Get("type"))
}

func TestMergeCommandRequiresKeys(t *testing.T) {
	res := run(t, sampleGraph(t), "--config", writePipeline(t, emptyPipeline), "merge")
	assert.Error(t, res.err)
}

func TestMetricsAndTraceOutput(t *testing.T) {
	res := run(t, sampleGraph(t),
		"--config", writePipeline(t, emptyPipeline),
		"--metrics", "--trace",
		"dropkeys", "--args", "EdgeDropKeys=seq VertexDropKeys=pid KeepOriginalID=false")
	require.NoError(t, res.err, res.stderr.String())

	logs := res.stderr.String()
	assert.Contains(t, logs, "operator metric")
	assert.Contains(t, logs, "provgraph.filter.items")
	assert.Contains(t, logs, "provxform.dropkeys")
}

func TestInvalidLogLevel(t *testing.T) {
	res := run(t, nil, "--log-level", "loud", "--config", writePipeline(t, emptyPipeline), "merge", "--keys", "name")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "invalid log level")
}

func TestWorkerRejectsUnknownOperator(t *testing.T) {
	res := run(t, nil, "--config", writePipeline(t, emptyPipeline), "worker", "bogus")
	assert.Error(t, res.err)

	res = run(t, nil, "--config", writePipeline(t, emptyPipeline), "worker")
	assert.Error(t, res.err)
}

func TestOperatorsCommand(t *testing.T) {
	s := miniredis.RunT(t)
	url := "redis://" + s.Addr()

	client, err := queue.NewRedisClient(queue.RedisOptions{URL: url})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.RegisterOperator(ctx, queue.OperatorMeta{
		Name:        "dropkeys",
		Kind:        queue.OperatorFilter,
		InputQueue:  "provgraph:dropkeys:in",
		OutputQueue: "provgraph:merge:in",
		Arguments:   "EdgeDropKeys=seq VertexDropKeys=pid KeepOriginalID=false",
	}))
	require.NoError(t, client.IncrementWorkerCount(ctx, "dropkeys"))
	require.NoError(t, client.Heartbeat(ctx, "dropkeys"))

	t.Setenv("PROVGRAPH_REGISTRY_ENDPOINTS", "")
	res := run(t, nil, "--config", writePipeline(t, emptyPipeline), "operators", "--redis-url", url)
	require.NoError(t, res.err, res.stderr.String())

	out := res.stdout.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "dropkeys")
	assert.Contains(t, out, "filter")
	assert.Contains(t, out, "true")
	assert.Contains(t, out, "provgraph:merge:in")
	assert.NotContains(t, out, "INSTANCE")
}
