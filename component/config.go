// Package component provides loading and parsing of pipeline.yaml configuration
// files and of operator argument strings.
package component

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents a pipeline.yaml configuration file.
// It configures the graph operators and the queue worker hosting them.
type Config struct {
	// Name identifies the pipeline stage (used for queue keys and registration).
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	Filters      *FiltersConfig      `yaml:"filters,omitempty"`
	Transformers *TransformersConfig `yaml:"transformers,omitempty"`

	// Worker configuration (for queue-based execution)
	Worker *WorkerConfig `yaml:"worker,omitempty"`

	// Registry lists etcd endpoints for operator discovery. Optional.
	Registry *RegistryConfig `yaml:"registry,omitempty"`
}

// FiltersConfig groups streaming filter settings.
type FiltersConfig struct {
	DropKeys *DropKeysConfig `yaml:"drop_keys,omitempty"`
}

// DropKeysConfig holds the raw key-drop settings. Values are kept as strings
// so they validate exactly like argument strings do.
type DropKeysConfig struct {
	EdgeDropKeys   string `yaml:"edge_drop_keys,omitempty"`
	VertexDropKeys string `yaml:"vertex_drop_keys,omitempty"`
	KeepOriginalID string `yaml:"keep_original_id,omitempty"`
}

// Values returns the settings under their argument names, omitting unset ones.
func (d *DropKeysConfig) Values() map[string]string {
	out := make(map[string]string)
	if d == nil {
		return out
	}
	if d.EdgeDropKeys != "" {
		out[ArgEdgeDropKeys] = d.EdgeDropKeys
	}
	if d.VertexDropKeys != "" {
		out[ArgVertexDropKeys] = d.VertexDropKeys
	}
	if d.KeepOriginalID != "" {
		out[ArgKeepOriginalID] = d.KeepOriginalID
	}
	return out
}

// TransformersConfig groups batch transformer settings.
type TransformersConfig struct {
	MergeVertex *MergeVertexConfig `yaml:"merge_vertex,omitempty"`
}

// MergeVertexConfig holds the vertex-merge settings.
type MergeVertexConfig struct {
	// Keys is the ordered, comma-separated merge key list.
	Keys string `yaml:"keys"`

	// PreserveEdgeAnnotations keeps the original edge annotations on rewired
	// edges. Default: true
	PreserveEdgeAnnotations *bool `yaml:"preserve_edge_annotations,omitempty"`

	// Delimiter separates merge-key values inside the merge hash. Default: ","
	Delimiter string `yaml:"delimiter,omitempty"`
}

// GetPreserveEdgeAnnotations returns the configured value or the default (true).
func (m *MergeVertexConfig) GetPreserveEdgeAnnotations() bool {
	if m == nil || m.PreserveEdgeAnnotations == nil {
		return true
	}
	return *m.PreserveEdgeAnnotations
}

// WorkerConfig defines configuration for queue-based worker execution.
type WorkerConfig struct {
	// RedisURL is the Redis connection string. Default: redis://localhost:6379
	RedisURL string `yaml:"redis_url,omitempty"`

	// InputQueue is the Redis list the worker consumes.
	// Default: "provgraph:<name>:in"
	InputQueue string `yaml:"input_queue,omitempty"`

	// OutputQueue is the Redis list transformed items are pushed to.
	// Default: "provgraph:<name>:out"
	OutputQueue string `yaml:"output_queue,omitempty"`

	// ShutdownTimeout is the time to wait for graceful shutdown.
	// Format: Go duration string (e.g., "30s", "1m")
	// Default: 30s
	ShutdownTimeout string `yaml:"shutdown_timeout,omitempty"`

	// HeartbeatInterval is the interval between health heartbeats.
	// Format: Go duration string (e.g., "10s")
	// Default: 10s
	HeartbeatInterval string `yaml:"heartbeat_interval,omitempty"`

	// HealthAddress is the listen address of the gRPC health server.
	// Empty disables it.
	HealthAddress string `yaml:"health_address,omitempty"`
}

// RegistryConfig configures etcd registration.
type RegistryConfig struct {
	Endpoints []string `yaml:"endpoints,omitempty"`
	Namespace string   `yaml:"namespace,omitempty"`
	TTL       int      `yaml:"ttl,omitempty"`
}

// GetShutdownTimeout parses the shutdown timeout string and returns a duration.
// Returns the default value if not set or invalid.
func (w *WorkerConfig) GetShutdownTimeout() time.Duration {
	return parseDuration(w, func(w *WorkerConfig) string { return w.ShutdownTimeout }, 30*time.Second)
}

// GetHeartbeatInterval parses the heartbeat interval string and returns a duration.
// Returns the default value if not set or invalid.
func (w *WorkerConfig) GetHeartbeatInterval() time.Duration {
	return parseDuration(w, func(w *WorkerConfig) string { return w.HeartbeatInterval }, 10*time.Second)
}

// GetRedisURL returns the configured Redis URL or the default value.
func (w *WorkerConfig) GetRedisURL() string {
	if w == nil || w.RedisURL == "" {
		return "redis://localhost:6379"
	}
	return w.RedisURL
}

// GetInputQueue returns the input queue name or the default for the stage name.
func (w *WorkerConfig) GetInputQueue(name string) string {
	if w == nil || w.InputQueue == "" {
		return fmt.Sprintf("provgraph:%s:in", name)
	}
	return w.InputQueue
}

// GetOutputQueue returns the output queue name or the default for the stage name.
func (w *WorkerConfig) GetOutputQueue(name string) string {
	if w == nil || w.OutputQueue == "" {
		return fmt.Sprintf("provgraph:%s:out", name)
	}
	return w.OutputQueue
}

func parseDuration(w *WorkerConfig, field func(*WorkerConfig) string, def time.Duration) time.Duration {
	if w == nil || field(w) == "" {
		return def
	}
	d, err := time.ParseDuration(field(w))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Load reads and parses a pipeline.yaml file from the given path.
// If the path is a directory, it looks for pipeline.yaml or pipeline.yml in that directory.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	var configPath string
	if info.IsDir() {
		yamlPath := filepath.Join(path, "pipeline.yaml")
		if _, err := os.Stat(yamlPath); err == nil {
			configPath = yamlPath
		} else {
			ymlPath := filepath.Join(path, "pipeline.yml")
			if _, err := os.Stat(ymlPath); err == nil {
				configPath = ymlPath
			} else {
				return nil, fmt.Errorf("no pipeline.yaml or pipeline.yml found in %s", path)
			}
		}
	} else {
		configPath = path
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes pipeline.yaml content.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}

// LoadFromDir searches for pipeline.yaml starting from the given directory
// and walking up to parent directories until found or root is reached.
func LoadFromDir(dir string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	for {
		config, err := Load(absDir)
		if err == nil {
			return config, nil
		}

		parent := filepath.Dir(absDir)
		if parent == absDir {
			return nil, fmt.Errorf("no pipeline.yaml found in %s or parent directories", dir)
		}
		absDir = parent
	}
}

// LoadFromCurrentDir loads pipeline.yaml from the current working directory.
func LoadFromCurrentDir() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	return LoadFromDir(cwd)
}

// BoolPtr returns a pointer to b, for building configs in code.
func BoolPtr(b bool) *bool {
	return &b
}

// FormatBool renders b the way argument strings expect it.
func FormatBool(b bool) string {
	return strconv.FormatBool(b)
}
