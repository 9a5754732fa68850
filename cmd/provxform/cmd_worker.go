package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/provgraph/filter"
	"github.com/zero-day-ai/provgraph/worker"
)

const version = "0.1.0"

func newWorkerCmd(a *app) *cobra.Command {
	var (
		opts     worker.Options
		registry string
		dropKeys dropKeysFlags
		merge    mergeFlags
	)
	cmd := &cobra.Command{
		Use:       "worker (dropkeys|merge)",
		Short:     "Host an operator between two Redis queues",
		ValidArgs: []string{"dropkeys", "merge"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		Long: `Pops vertex and edge items from the input queue, applies the operator, and
pushes the result onto the output queue until interrupted.

dropkeys forwards every item as it arrives. merge buffers items until a flush
marker and then pushes the merged batch followed by a new flush marker.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var stage worker.Stage
			switch args[0] {
			case "dropkeys":
				_, effective, err := dropKeys.config(a)
				if err != nil {
					return err
				}
				opts.Arguments = effective
				stage = worker.NewFilterStage(func(next filter.Sink) (filter.Sink, error) {
					return dropKeys.build(a, next)
				})
			case "merge":
				op, err := merge.build(cmd, a)
				if err != nil {
					return err
				}
				opts.Arguments = fmt.Sprintf("Keys=%s", joinKeys(op.Keys()))
				stage = worker.NewTransformStage(op)
			}

			if opts.Name == "" && a.pipeline.Name == "" {
				opts.Name = args[0]
			}
			opts.Version = version
			opts.RegistryEndpoints = a.registryEndpoints(registry)
			opts.Logger = a.logger
			opts.Tracer = a.telemetry.tracer()
			opts.PipelineConfig = a.pipeline

			return worker.Run(cmd.Context(), stage, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Name, "name", "", "stage name (default: pipeline.yaml name, then the operator)")
	flags.StringVar(&opts.RedisURL, "redis-url", envOr(envRedisURL, ""), "Redis URL (env "+envRedisURL+")")
	flags.StringVar(&opts.InputQueue, "input-queue", "", `input list (default "provgraph:<name>:in")`)
	flags.StringVar(&opts.OutputQueue, "output-queue", "", `output list (default "provgraph:<name>:out")`)
	flags.StringVar(&opts.HealthAddress, "health-addr", "", "serve gRPC health checks on this address")
	flags.DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 0, "time allowed for the item in flight on shutdown (default 30s)")
	flags.StringVar(&registry, "registry", "", "comma-separated etcd endpoints (env PROVGRAPH_REGISTRY_ENDPOINTS)")
	dropKeys.register(cmd)
	merge.register(cmd)
	return cmd
}
