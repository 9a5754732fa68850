package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/provgraph"
	"github.com/zero-day-ai/provgraph/component"
	"github.com/zero-day-ai/provgraph/health"
	"github.com/zero-day-ai/provgraph/queue"
	"github.com/zero-day-ai/provgraph/registry"
)

// Options configures the worker behavior.
type Options struct {
	// Name is the stage name used for queue keys and registration.
	// If empty, uses the name from pipeline.yaml.
	Name string

	// Version and Description are recorded in the stage metadata.
	Version     string
	Description string

	// Arguments is the effective argument string, recorded for discovery.
	Arguments string

	// RedisURL is the Redis connection string (e.g., "redis://localhost:6379")
	RedisURL string

	// InputQueue and OutputQueue name the Redis lists. If empty, uses
	// pipeline.yaml or "provgraph:<name>:in" / "provgraph:<name>:out".
	InputQueue  string
	OutputQueue string

	// ShutdownTimeout is the time to wait for the item in flight on shutdown.
	// If 0, uses value from pipeline.yaml or default (30s).
	ShutdownTimeout time.Duration

	// HeartbeatInterval is the interval between heartbeats.
	// If 0, uses value from pipeline.yaml or default (10s).
	HeartbeatInterval time.Duration

	// PopTimeout bounds a single blocking pop. Default: 5s
	PopTimeout time.Duration

	// HealthAddress enables the gRPC health server on this address.
	HealthAddress string

	// RegistryEndpoints enables etcd registration.
	RegistryEndpoints []string
	RegistryNamespace string

	// Logger is the structured logger for worker operations.
	// If nil, a JSON logger on stdout is created.
	Logger *slog.Logger

	// Tracer creates a span per processed item. Optional.
	Tracer trace.Tracer

	// Client overrides the Redis client. Run does not close it.
	Client queue.Client

	// Registry overrides the etcd registry. Run does not close it.
	Registry registry.Registry

	// PipelineConfig is the parsed pipeline.yaml configuration.
	// If nil, the worker will attempt to load it from the current directory.
	// Set to an empty config to skip pipeline.yaml loading.
	PipelineConfig *component.Config

	// ConfigPath is the path to pipeline.yaml.
	// If empty and PipelineConfig is nil, searches from current directory.
	ConfigPath string
}

const (
	defaultPopTimeout = 5 * time.Second
	popRetryDelay     = time.Second
)

// Run hosts stage on the configured input queue until ctx is cancelled or
// SIGTERM/SIGINT is received.
//
// Configuration priority (highest to lowest):
//  1. Explicit Options values (if non-zero)
//  2. pipeline.yaml worker and registry sections
//  3. Default values
//
// Items are consumed by a single loop so a batch stage sees them in push
// order. Scale out by running more processes on distinct queues.
//
// Run registers the stage in Redis, keeps its heartbeat, and tracks the
// worker count. When registry endpoints are configured it also registers the
// instance in etcd; registry failures are logged and do not stop the worker.
func Run(ctx context.Context, stage Stage, opts Options) error {
	if stage == nil {
		return provgraph.NewConfigError("worker.Run", "stage is required")
	}

	pipelineCfg := opts.PipelineConfig
	if pipelineCfg == nil {
		var err error
		if opts.ConfigPath != "" {
			pipelineCfg, err = component.Load(opts.ConfigPath)
		} else {
			pipelineCfg, err = component.LoadFromCurrentDir()
		}
		if err != nil {
			// pipeline.yaml is optional
			pipelineCfg = nil
		}
	}

	opts = applyPipelineConfig(opts, pipelineCfg)
	if opts.Name == "" {
		return provgraph.NewConfigError("worker.Run", "stage name is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	workerID := generateWorkerID()
	logger := opts.Logger.With(
		"operator", opts.Name,
		"kind", stage.Kind(),
		"worker_id", workerID,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	client := opts.Client
	if client == nil {
		redisClient, err := queue.NewRedisClient(queue.RedisOptions{URL: opts.RedisURL})
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisClient.Close()
		client = redisClient
	}

	out := queue.NewSink(client, opts.OutputQueue, opts.Name)
	if err := stage.Bind(out); err != nil {
		return provgraph.NewConfigError("worker.Run", fmt.Sprintf("failed to bind stage: %v", err))
	}

	meta := queue.OperatorMeta{
		Name:        opts.Name,
		Kind:        stage.Kind(),
		Version:     opts.Version,
		Description: opts.Description,
		InputQueue:  opts.InputQueue,
		OutputQueue: opts.OutputQueue,
		Arguments:   opts.Arguments,
	}
	if err := client.RegisterOperator(ctx, meta); err != nil {
		logger.Error("failed to register operator", "error", err)
		return fmt.Errorf("failed to register operator: %w", err)
	}

	if err := client.IncrementWorkerCount(ctx, opts.Name); err != nil {
		logger.Error("failed to increment worker count", "error", err)
	}
	defer func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cleanupCancel()
		if err := client.DecrementWorkerCount(cleanupCtx, opts.Name); err != nil {
			logger.Error("failed to decrement worker count", "error", err)
		}
	}()

	// Beat once up front so the stage is visible before the first tick.
	if err := client.Heartbeat(ctx, opts.Name); err != nil {
		logger.Debug("heartbeat failed", "error", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runHeartbeat(ctx, client, opts.Name, opts.HeartbeatInterval, logger)
	}()

	reg := opts.Registry
	if reg == nil && len(opts.RegistryEndpoints) > 0 {
		etcdClient, err := registry.NewClient(registry.Config{
			Endpoints: opts.RegistryEndpoints,
			Namespace: opts.RegistryNamespace,
		})
		if err != nil {
			logger.Warn("registry unavailable, continuing without it", "error", err)
		} else {
			defer etcdClient.Close()
			reg = etcdClient
		}
	}

	info := registry.OperatorInfo{
		Kind:        stage.Kind(),
		Name:        opts.Name,
		Version:     opts.Version,
		InstanceID:  workerID,
		Endpoint:    opts.HealthAddress,
		InputQueue:  opts.InputQueue,
		OutputQueue: opts.OutputQueue,
		Metadata:    map[string]string{"arguments": opts.Arguments},
		StartedAt:   time.Now(),
	}
	if reg != nil {
		if err := reg.Register(ctx, info); err != nil {
			logger.Warn("failed to register in registry", "error", err)
		} else {
			defer func() {
				cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cleanupCancel()
				if err := reg.Deregister(cleanupCtx, info); err != nil {
					logger.Warn("failed to deregister", "error", err)
				}
			}()
		}
	}

	if opts.HealthAddress != "" {
		srv, err := health.Listen(opts.HealthAddress, probe(client, reg, opts.Name), health.ServerOptions{
			Service:  opts.Name,
			Interval: opts.HeartbeatInterval,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Serve(ctx); err != nil {
				logger.Error("health server failed", "error", err)
			}
		}()
	}

	logger.Info("worker started",
		"input_queue", opts.InputQueue,
		"output_queue", opts.OutputQueue,
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		loop(ctx, stage, client, opts, logger)
	}()

	<-ctx.Done()
	logger.Info("shutdown requested", "reason", context.Cause(ctx))

	select {
	case <-done:
	case <-time.After(opts.ShutdownTimeout):
		logger.Warn("worker shutdown timeout exceeded", "timeout", opts.ShutdownTimeout)
	}
	wg.Wait()

	logger.Info("worker shutdown complete")
	return nil
}

// loop pops items until ctx is cancelled.
func loop(ctx context.Context, stage Stage, client queue.Client, opts Options, logger *slog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}

		item, err := client.PopItem(ctx, opts.InputQueue, opts.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, provgraph.ErrInvalidItem) {
				logger.Warn("discarding malformed item", "error", err)
				continue
			}
			logger.Error("failed to pop item", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(popRetryDelay):
			}
			continue
		}
		if item == nil {
			continue
		}

		if err := Process(ctx, stage, item, opts.Tracer, logger); err != nil {
			logger.Error("failed to process item", "item_kind", item.Kind, "error", err)
		}
	}
}

// Process validates item and hands it to stage. Invalid items are logged and
// dropped with a nil error; errors returned come from the stage.
//
// When tracer is set the item is processed under a span that continues the
// producer's trace, if the item carries one.
func Process(ctx context.Context, stage Stage, item *queue.Item, tracer trace.Tracer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if item == nil {
		logger.WarnContext(ctx, "discarding nil item")
		return nil
	}
	if err := item.IsValid(); err != nil {
		logger.WarnContext(ctx, "discarding invalid item", "source", item.Source, "error", err)
		return nil
	}

	if tracer != nil {
		ctx = withRemoteParent(ctx, item)
		var span trace.Span
		ctx, span = tracer.Start(ctx, "provgraph.worker.process",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("provgraph.item.kind", string(item.Kind)),
				attribute.String("provgraph.item.source", item.Source),
			))
		defer span.End()

		err := stage.Process(ctx, item)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}

	return stage.Process(ctx, item)
}

// withRemoteParent attaches the span context recorded on item, if any.
func withRemoteParent(ctx context.Context, item *queue.Item) context.Context {
	if item.TraceID == "" || item.SpanID == "" {
		return ctx
	}
	traceID, err := trace.TraceIDFromHex(item.TraceID)
	if err != nil {
		return ctx
	}
	spanID, err := trace.SpanIDFromHex(item.SpanID)
	if err != nil {
		return ctx
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithRemoteSpanContext(ctx, sc)
}

// probe combines the checks reported by the health server.
func probe(client queue.Client, reg registry.Registry, name string) health.Probe {
	// A nil interface must reach RegistryCheck, not a typed nil.
	var registryPinger health.Pinger
	if p, ok := reg.(health.Pinger); ok {
		registryPinger = p
	}
	return func(ctx context.Context) health.Status {
		return health.Combine(
			health.QueueCheck(ctx, client),
			health.HeartbeatCheck(ctx, client, name),
			health.RegistryCheck(ctx, registryPinger),
		)
	}
}

// runHeartbeat sends periodic heartbeats to maintain stage health status.
// It runs in a goroutine and stops when the context is cancelled.
func runHeartbeat(ctx context.Context, client queue.Client, name string, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Debug("heartbeat goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("heartbeat goroutine stopped")
			return
		case <-ticker.C:
			if err := client.Heartbeat(ctx, name); err != nil {
				// heartbeat failures are transient
				logger.Debug("heartbeat failed", "error", err)
			}
		}
	}
}

// generateWorkerID creates a unique identifier for this worker instance.
// Uses hostname + PID + UUID for uniqueness.
func generateWorkerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
}

// applyPipelineConfig applies pipeline.yaml settings to Options.
// Explicit Options values take priority over pipeline.yaml values.
func applyPipelineConfig(opts Options, cfg *component.Config) Options {
	var w *component.WorkerConfig
	if cfg != nil {
		if opts.Name == "" {
			opts.Name = cfg.Name
		}
		if opts.Description == "" {
			opts.Description = cfg.Description
		}
		w = cfg.Worker
		if cfg.Registry != nil {
			if len(opts.RegistryEndpoints) == 0 {
				opts.RegistryEndpoints = cfg.Registry.Endpoints
			}
			if opts.RegistryNamespace == "" {
				opts.RegistryNamespace = cfg.Registry.Namespace
			}
		}
	}

	// The getters fall back to defaults on a nil *WorkerConfig.
	if opts.RedisURL == "" {
		opts.RedisURL = w.GetRedisURL()
	}
	if opts.InputQueue == "" {
		opts.InputQueue = w.GetInputQueue(opts.Name)
	}
	if opts.OutputQueue == "" {
		opts.OutputQueue = w.GetOutputQueue(opts.Name)
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = w.GetShutdownTimeout()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = w.GetHeartbeatInterval()
	}
	if opts.HealthAddress == "" && w != nil {
		opts.HealthAddress = w.HealthAddress
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = defaultPopTimeout
	}
	return opts
}
