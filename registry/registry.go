// Package registry provides etcd-backed registration and discovery of
// running pipeline operators.
//
// Each queue worker registers an OperatorInfo under
// /{namespace}/{kind}/{name}/{instance-id} attached to a lease. The lease is
// renewed in the background, so entries disappear shortly after a worker
// crashes, and are removed immediately on graceful shutdown.
package registry

import (
	"context"
	"fmt"
	"time"
)

// OperatorInfo describes a registered operator instance.
type OperatorInfo struct {
	// Kind is "filter" or "transformer"
	Kind string `json:"kind"`

	// Name is the pipeline stage name (e.g., "dropkeys", "merge")
	Name string `json:"name"`

	// Version is the version of the operator implementation
	Version string `json:"version"`

	// InstanceID is a unique identifier for this specific instance (typically UUID)
	InstanceID string `json:"instance_id"`

	// Endpoint is the gRPC health address of the instance, if it serves one
	Endpoint string `json:"endpoint,omitempty"`

	// InputQueue and OutputQueue are the Redis lists the instance connects
	InputQueue  string `json:"input_queue"`
	OutputQueue string `json:"output_queue"`

	// Metadata carries operator settings such as the effective argument string
	Metadata map[string]string `json:"metadata,omitempty"`

	// StartedAt is the timestamp when this instance started
	StartedAt time.Time `json:"started_at"`
}

// Validate checks the fields that form the registry key.
func (o OperatorInfo) Validate() error {
	if o.Kind == "" {
		return fmt.Errorf("operator kind is required")
	}
	if o.Name == "" {
		return fmt.Errorf("operator name is required")
	}
	if o.InstanceID == "" {
		return fmt.Errorf("operator instance id is required")
	}
	return nil
}

// Registry defines the operator registration and discovery interface.
//
// Implementations must be safe for concurrent use.
type Registry interface {
	// Register adds this instance to the registry and keeps its lease alive.
	// Registering the same InstanceID again replaces the entry.
	Register(ctx context.Context, info OperatorInfo) error

	// Deregister removes this instance. Unknown instances are a no-op.
	Deregister(ctx context.Context, info OperatorInfo) error

	// Discover finds all instances of an operator by kind and name.
	Discover(ctx context.Context, kind, name string) ([]OperatorInfo, error)

	// DiscoverAll finds all instances of a given kind.
	DiscoverAll(ctx context.Context, kind string) ([]OperatorInfo, error)

	// Watch emits the current instances of kind/name, then the full list
	// again after every change. The channel closes with ctx or Close.
	Watch(ctx context.Context, kind, name string) (<-chan []OperatorInfo, error)

	// Close releases registry resources and stops all background goroutines.
	Close() error
}

// Config holds registry connection configuration.
type Config struct {
	// Endpoints is the list of etcd endpoints
	// Format: ["host1:2379", "host2:2379", "host3:2379"]
	Endpoints []string `json:"endpoints" yaml:"endpoints"`

	// Namespace is the etcd key prefix for all operator entries
	// Default: "provgraph"
	Namespace string `json:"namespace" yaml:"namespace"`

	// TTL is the lease time-to-live in seconds
	// Default: 30 seconds
	TTL int `json:"ttl" yaml:"ttl"`

	// DialTimeout bounds connection establishment
	// Default: 5 seconds
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout"`

	// TLS holds TLS configuration for secure etcd communication
	// If nil, TLS is disabled
	TLS *TLSConfig `json:"tls" yaml:"tls"`
}

// withDefaults validates cfg and fills in defaults.
func (c Config) withDefaults() (Config, error) {
	if len(c.Endpoints) == 0 {
		return c, fmt.Errorf("registry endpoints cannot be empty")
	}
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.TTL <= 0 {
		c.TTL = 30
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	return c, nil
}

// DefaultNamespace is the key prefix used when Config.Namespace is empty.
const DefaultNamespace = "provgraph"

// TLSConfig holds TLS certificate configuration for secure registry communication.
type TLSConfig struct {
	// Enabled determines whether TLS is active
	// If false, all other fields are ignored
	Enabled bool `json:"enabled" yaml:"enabled"`

	// CertFile is the path to the client certificate file (PEM format)
	CertFile string `json:"cert_file" yaml:"cert_file"`

	// KeyFile is the path to the client private key file (PEM format)
	KeyFile string `json:"key_file" yaml:"key_file"`

	// CAFile is the path to the certificate authority file (PEM format)
	CAFile string `json:"ca_file" yaml:"ca_file"`
}
