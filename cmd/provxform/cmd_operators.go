package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/provgraph"
	"github.com/zero-day-ai/provgraph/queue"
	"github.com/zero-day-ai/provgraph/registry"
)

func newOperatorsCmd(a *app) *cobra.Command {
	var (
		redisURL  string
		endpoints string
	)
	cmd := &cobra.Command{
		Use:   "operators",
		Short: "List registered operator stages and their instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if redisURL == "" {
				redisURL = a.pipeline.Worker.GetRedisURL()
			}
			client, err := queue.NewRedisClient(queue.RedisOptions{URL: redisURL})
			if err != nil {
				return err
			}
			defer provgraph.CloseWithLog(client, a.logger, "redis client")

			operators, err := client.ListOperators(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tWORKERS\tALIVE\tINPUT\tOUTPUT\tARGUMENTS")
			for _, op := range operators {
				alive, err := client.IsAlive(ctx, op.Name)
				if err != nil {
					a.logger.Warn("failed to read heartbeat", "operator", op.Name, "error", err)
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\t%s\t%s\n",
					op.Name, op.Kind, op.WorkerCount, alive, op.InputQueue, op.OutputQueue, op.Arguments)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			regEndpoints := a.registryEndpoints(endpoints)
			if len(regEndpoints) == 0 {
				return nil
			}
			reg, err := registry.NewClient(registry.Config{Endpoints: regEndpoints, Namespace: registryNamespace(a)})
			if err != nil {
				return err
			}
			defer provgraph.CloseWithLog(reg, a.logger, "registry client")

			fmt.Fprintln(cmd.OutOrStdout())
			w = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INSTANCE\tKIND\tNAME\tVERSION\tHEALTH\tSTARTED")
			for _, kind := range []string{queue.OperatorFilter, queue.OperatorTransformer} {
				instances, err := reg.DiscoverAll(ctx, kind)
				if err != nil {
					return err
				}
				for _, inst := range instances {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						inst.InstanceID, inst.Kind, inst.Name, inst.Version, inst.Endpoint,
						inst.StartedAt.Format(time.RFC3339))
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&redisURL, "redis-url", envOr(envRedisURL, ""), "Redis URL (env "+envRedisURL+")")
	cmd.Flags().StringVar(&endpoints, "registry", "", "comma-separated etcd endpoints (env PROVGRAPH_REGISTRY_ENDPOINTS)")
	return cmd
}

func registryNamespace(a *app) string {
	if a.pipeline.Registry != nil {
		return a.pipeline.Registry.Namespace
	}
	return ""
}
