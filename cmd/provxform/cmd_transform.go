package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zero-day-ai/provgraph/filter"
)

// ioFlags select the input and output graph files.
type ioFlags struct {
	in  string
	out string
}

func (f *ioFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.in, "in", "i", "-", `input graph file ("-" for stdin)`)
	cmd.Flags().StringVarP(&f.out, "out", "o", "-", `output graph file ("-" for stdout)`)
}

func newDropKeysCmd(a *app) *cobra.Command {
	var (
		files ioFlags
		flags dropKeysFlags
	)
	cmd := &cobra.Command{
		Use:   "dropkeys",
		Short: "Strip annotation keys from every vertex and edge of a graph file",
		Long: `Streams every vertex and then every edge of the input graph through the
key-drop filter and writes what it forwards.

Settings come from the filters.drop_keys section of pipeline.yaml and are
overridden by --args. EdgeDropKeys, VertexDropKeys and KeepOriginalID must all
be set by one of the two.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			collector := filter.NewCollector()
			op, err := flags.build(a, collector)
			if err != nil {
				return err
			}

			g, err := readGraph(cmd, files.in)
			if err != nil {
				return err
			}

			ctx, span := a.telemetry.tracer().Start(cmd.Context(), "provxform.dropkeys")
			defer span.End()
			span.SetAttributes(
				attribute.Int("provgraph.input.vertices", g.VertexCount()),
				attribute.Int("provgraph.input.edges", g.EdgeCount()),
			)

			if err := filter.Feed(ctx, g, op); err != nil {
				return fmt.Errorf("feed graph: %w", err)
			}

			result := collector.Graph()
			a.logger.InfoContext(ctx, "dropped keys",
				"vertices", result.VertexCount(),
				"edges", result.EdgeCount())
			return writeGraph(cmd, a.logger, files.out, result)
		},
	}
	files.register(cmd)
	flags.register(cmd)
	return cmd
}

func newMergeCmd(a *app) *cobra.Command {
	var (
		files ioFlags
		flags mergeFlags
	)
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge vertices that agree on a set of annotation keys",
		Long: `Groups the vertices of the input graph by the values of the merge keys,
reconciles each group into one representative, and rewires edges onto the
representatives. Edges whose endpoints collapse into the same group are
dropped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			op, err := flags.build(cmd, a)
			if err != nil {
				return err
			}

			g, err := readGraph(cmd, files.in)
			if err != nil {
				return err
			}

			result, err := op.Transform(cmd.Context(), g)
			if err != nil {
				return err
			}

			a.logger.InfoContext(cmd.Context(), "merged vertices",
				"keys", joinKeys(op.Keys()),
				"vertices_in", g.VertexCount(),
				"vertices_out", result.VertexCount(),
				"edges_out", result.EdgeCount())
			return writeGraph(cmd, a.logger, files.out, result)
		},
	}
	files.register(cmd)
	flags.register(cmd)
	return cmd
}
