package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/zero-day-ai/provgraph"
)

// EnvEndpoints names the environment variable read by NewClientFromEnv.
const EnvEndpoints = "PROVGRAPH_REGISTRY_ENDPOINTS"

var errClosed = errors.New("registry client is closed")

// Client implements Registry on top of an etcd cluster.
//
// Register attaches each entry to a lease renewed every TTL/3, so entries of
// crashed workers expire on their own.
//
// Thread-safety: All methods are safe for concurrent use.
type Client struct {
	client    *clientv3.Client
	namespace string
	ttl       int

	// Lease tracking for keepalive
	mu         sync.RWMutex
	leases     map[string]clientv3.LeaseID // key: instance ID, value: lease ID
	cancelFns  map[string]context.CancelFunc
	wg         sync.WaitGroup // tracks background goroutines
	closed     bool
	closedChan chan struct{}
}

// NewClient connects to etcd and verifies connectivity with a quick read.
func NewClient(cfg Config) (*Client, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, provgraph.NewConfigError("registry.NewClient", err.Error())
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	}

	tlsConfig, err := clientTLS(cfg.TLS)
	if err != nil {
		return nil, provgraph.NewConfigError("registry.NewClient", fmt.Sprintf("failed to configure TLS: %v", err))
	}
	clientCfg.TLS = tlsConfig

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, provgraph.NewNetworkError("registry.NewClient", fmt.Errorf("failed to create etcd client: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := cli.Get(ctx, "health-check"); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		_ = cli.Close()
		return nil, provgraph.NewNetworkError("registry.NewClient", fmt.Errorf("etcd health check failed: %w", err))
	}

	return &Client{
		client:     cli,
		namespace:  cfg.Namespace,
		ttl:        cfg.TTL,
		leases:     make(map[string]clientv3.LeaseID),
		cancelFns:  make(map[string]context.CancelFunc),
		closedChan: make(chan struct{}),
	}, nil
}

// NewClientFromEnv creates a client from the comma-separated endpoint list
// in PROVGRAPH_REGISTRY_ENDPOINTS.
//
// If the variable is not set it returns (nil, nil): registration is optional
// and workers run undiscoverable without it.
func NewClientFromEnv() (*Client, error) {
	endpoints := ParseEndpoints(os.Getenv(EnvEndpoints))
	if len(endpoints) == 0 {
		return nil, nil
	}

	return NewClient(Config{
		Endpoints: endpoints,
		Namespace: DefaultNamespace,
		TTL:       30,
	})
}

// ParseEndpoints splits a comma-separated endpoint list, dropping blanks.
func ParseEndpoints(list string) []string {
	var out []string
	for _, ep := range strings.Split(list, ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			out = append(out, ep)
		}
	}
	return out
}

// Register adds this operator instance and starts its keepalive.
func (c *Client) Register(ctx context.Context, info OperatorInfo) error {
	if err := info.Validate(); err != nil {
		return provgraph.NewValidationError("registry.Register", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClosed
	}

	// Cancel existing keepalive if re-registering
	if cancelFn, exists := c.cancelFns[info.InstanceID]; exists {
		cancelFn()
		delete(c.cancelFns, info.InstanceID)
	}

	leaseResp, err := c.client.Grant(ctx, int64(c.ttl))
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal operator info: %w", err)
	}

	key := buildKey(c.namespace, info.Kind, info.Name, info.InstanceID)
	if _, err := c.client.Put(ctx, key, string(data), clientv3.WithLease(leaseResp.ID)); err != nil {
		return fmt.Errorf("failed to register operator: %w", err)
	}

	c.leases[info.InstanceID] = leaseResp.ID

	keepaliveCtx, cancel := context.WithCancel(context.Background())
	c.cancelFns[info.InstanceID] = cancel

	c.wg.Add(1)
	go c.keepalive(keepaliveCtx, leaseResp.ID, info.InstanceID)

	return nil
}

// Deregister revokes the lease of this instance, deleting its entry.
func (c *Client) Deregister(ctx context.Context, info OperatorInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClosed
	}

	if cancelFn, exists := c.cancelFns[info.InstanceID]; exists {
		cancelFn()
		delete(c.cancelFns, info.InstanceID)
	}

	leaseID, exists := c.leases[info.InstanceID]
	if !exists {
		return nil
	}

	if _, err := c.client.Revoke(ctx, leaseID); err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}

	delete(c.leases, info.InstanceID)
	return nil
}

// Discover finds all instances of an operator by kind and name, sorted by
// instance ID.
func (c *Client) Discover(ctx context.Context, kind, name string) ([]OperatorInfo, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, errClosed
	}
	return c.list(ctx, prefix(c.namespace, kind, name))
}

// DiscoverAll finds all instances of a given kind.
func (c *Client) DiscoverAll(ctx context.Context, kind string) ([]OperatorInfo, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, errClosed
	}
	return c.list(ctx, prefix(c.namespace, kind))
}

// Watch emits the instances of kind/name after every change.
func (c *Client) Watch(ctx context.Context, kind, name string) (<-chan []OperatorInfo, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, errClosed
	}

	p := prefix(c.namespace, kind, name)
	instances, err := c.list(ctx, p)
	if err != nil {
		return nil, err
	}

	ch := make(chan []OperatorInfo, 1)
	ch <- instances

	watchChan := c.client.Watch(ctx, p, clientv3.WithPrefix())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.closedChan:
				return
			case watchResp, ok := <-watchChan:
				if !ok || watchResp.Err() != nil {
					return
				}

				instances, err := c.list(ctx, p)
				if err != nil {
					continue
				}

				select {
				case ch <- instances:
				case <-ctx.Done():
					return
				case <-c.closedChan:
					return
				}
			}
		}
	}()

	return ch, nil
}

// Ping checks that etcd answers reads.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.Get(ctx, "health-check"); err != nil {
		return provgraph.NewNetworkError("registry.Ping", err)
	}
	return nil
}

// Close stops all keepalives and watches and closes the etcd connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	for _, cancel := range c.cancelFns {
		cancel()
	}
	c.cancelFns = make(map[string]context.CancelFunc)

	close(c.closedChan)
	c.mu.Unlock()

	c.wg.Wait()

	return c.client.Close()
}

func (c *Client) list(ctx context.Context, keyPrefix string) ([]OperatorInfo, error) {
	resp, err := c.client.Get(ctx, keyPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover operators: %w", err)
	}

	values := make([][]byte, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		values = append(values, kv.Value)
	}
	return decodeInstances(values), nil
}

// keepalive renews the lease every TTL/3 until cancelled or the lease is lost.
func (c *Client) keepalive(ctx context.Context, leaseID clientv3.LeaseID, instanceID string) {
	defer c.wg.Done()

	interval := time.Duration(c.ttl) * time.Second / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closedChan:
			return
		case <-ticker.C:
			if _, err := c.client.KeepAliveOnce(ctx, leaseID); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.mu.Lock()
				delete(c.leases, instanceID)
				delete(c.cancelFns, instanceID)
				c.mu.Unlock()
				return
			}
		}
	}
}

// decodeInstances parses stored entries, skipping invalid ones, and sorts
// them by kind, name and instance ID.
func decodeInstances(values [][]byte) []OperatorInfo {
	instances := make([]OperatorInfo, 0, len(values))
	for _, v := range values {
		var info OperatorInfo
		if err := json.Unmarshal(v, &info); err != nil {
			continue
		}
		instances = append(instances, info)
	}
	sort.Slice(instances, func(i, j int) bool {
		a, b := instances[i], instances[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.InstanceID < b.InstanceID
	})
	return instances
}

// buildKey constructs the etcd key for an operator instance.
//
// Format: /namespace/kind/name/instance-id
func buildKey(namespace, kind, name, instanceID string) string {
	return fmt.Sprintf("/%s/%s/%s/%s", namespace, kind, name, instanceID)
}

// prefix builds a discovery prefix ending in "/".
func prefix(namespace string, parts ...string) string {
	return "/" + strings.Join(append([]string{namespace}, parts...), "/") + "/"
}
