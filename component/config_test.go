package component

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePipeline = `
name: dropkeys
description: strip volatile annotations
filters:
  drop_keys:
    edge_drop_keys: seq,jiffies
    vertex_drop_keys: pid
    keep_original_id: "false"
transformers:
  merge_vertex:
    keys: name,path
    preserve_edge_annotations: false
    delimiter: "|"
worker:
  redis_url: redis://queue:6379
  input_queue: raw
  shutdown_timeout: 1m
  heartbeat_interval: bogus
  health_address: ":9090"
registry:
  endpoints: ["etcd-0:2379", "etcd-1:2379"]
  namespace: lab
  ttl: 15
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(samplePipeline))
	require.NoError(t, err)

	assert.Equal(t, "dropkeys", cfg.Name)
	assert.Equal(t, "strip volatile annotations", cfg.Description)

	require.NotNil(t, cfg.Filters)
	assert.Equal(t, map[string]string{
		ArgEdgeDropKeys:   "seq,jiffies",
		ArgVertexDropKeys: "pid",
		ArgKeepOriginalID: "false",
	}, cfg.Filters.DropKeys.Values())

	require.NotNil(t, cfg.Transformers)
	merge := cfg.Transformers.MergeVertex
	assert.Equal(t, "name,path", merge.Keys)
	assert.False(t, merge.GetPreserveEdgeAnnotations())
	assert.Equal(t, "|", merge.Delimiter)

	w := cfg.Worker
	assert.Equal(t, "redis://queue:6379", w.GetRedisURL())
	assert.Equal(t, "raw", w.GetInputQueue("dropkeys"))
	assert.Equal(t, "provgraph:dropkeys:out", w.GetOutputQueue("dropkeys"))
	assert.Equal(t, time.Minute, w.GetShutdownTimeout())
	assert.Equal(t, 10*time.Second, w.GetHeartbeatInterval(), "invalid durations fall back to the default")
	assert.Equal(t, ":9090", w.HealthAddress)

	assert.Equal(t, []string{"etcd-0:2379", "etcd-1:2379"}, cfg.Registry.Endpoints)
	assert.Equal(t, "lab", cfg.Registry.Namespace)
	assert.Equal(t, 15, cfg.Registry.TTL)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte("name: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestDefaults(t *testing.T) {
	var w *WorkerConfig
	assert.Equal(t, "redis://localhost:6379", w.GetRedisURL())
	assert.Equal(t, "provgraph:merge:in", w.GetInputQueue("merge"))
	assert.Equal(t, "provgraph:merge:out", w.GetOutputQueue("merge"))
	assert.Equal(t, 30*time.Second, w.GetShutdownTimeout())
	assert.Equal(t, 10*time.Second, w.GetHeartbeatInterval())

	var m *MergeVertexConfig
	assert.True(t, m.GetPreserveEdgeAnnotations())
	assert.True(t, (&MergeVertexConfig{}).GetPreserveEdgeAnnotations())
	assert.True(t, (&MergeVertexConfig{PreserveEdgeAnnotations: BoolPtr(true)}).GetPreserveEdgeAnnotations())

	var d *DropKeysConfig
	assert.Empty(t, d.Values())
	assert.Equal(t, map[string]string{ArgVertexDropKeys: "pid"}, (&DropKeysConfig{VertexDropKeys: "pid"}).Values())

	assert.Equal(t, "true", FormatBool(true))
	assert.Equal(t, "false", FormatBool(false))
}

func TestLoad(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte("name: merge\n"), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "merge", cfg.Name)
	})

	t.Run("directory with pipeline.yml", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "pipeline.yml"), []byte("name: yml\n"), 0o600))

		cfg, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, "yml", cfg.Name)
	})

	t.Run("pipeline.yaml wins over pipeline.yml", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "pipeline.yml"), []byte("name: yml\n"), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "pipeline.yaml"), []byte("name: yaml\n"), 0o600))

		cfg, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, "yaml", cfg.Name)
	})

	t.Run("empty directory", func(t *testing.T) {
		_, err := Load(t.TempDir())
		assert.ErrorContains(t, err, "no pipeline.yaml or pipeline.yml found")
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorContains(t, err, "failed to stat path")
	})
}

func TestLoadFromDirWalksUp(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "pipeline.yaml"), []byte("name: root\n"), 0o600))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	cfg, err := LoadFromDir(nested)
	require.NoError(t, err)
	assert.Equal(t, "root", cfg.Name)
}
