package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/provgraph"
	"github.com/zero-day-ai/provgraph/component"
	"github.com/zero-day-ai/provgraph/graph"
	"github.com/zero-day-ai/provgraph/registry"
)

// Environment variables read for flag defaults.
const (
	envRedisURL = "PROVGRAPH_REDIS_URL"
)

// app carries state shared by every subcommand once the persistent flags
// have been processed.
type app struct {
	configPath string
	logLevel   string
	jsonLogs   bool
	trace      bool
	metrics    bool

	logger    *slog.Logger
	pipeline  *component.Config
	telemetry *telemetry
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "provxform",
		Short:        "Transform provenance graph annotations",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "path to pipeline.yaml or its directory (default: search upwards from the working directory)")
	flags.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.BoolVar(&a.jsonLogs, "json-logs", false, "write logs as JSON")
	flags.BoolVar(&a.trace, "trace", false, "export spans to stderr")
	flags.BoolVar(&a.metrics, "metrics", false, "log operator counters before exiting")

	rootCmd.AddCommand(
		newDropKeysCmd(a),
		newMergeCmd(a),
		newWorkerCmd(a),
		newOperatorsCmd(a),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	logger, err := newLogger(cmd.ErrOrStderr(), a.logLevel, a.jsonLogs)
	if err != nil {
		return err
	}
	a.logger = logger

	if a.configPath != "" {
		cfg, err := component.Load(a.configPath)
		if err != nil {
			return provgraph.NewConfigError("provxform", err.Error())
		}
		a.pipeline = cfg
	} else if cfg, err := component.LoadFromCurrentDir(); err == nil {
		a.pipeline = cfg
		a.logger.Debug("loaded pipeline config from working directory")
	} else {
		a.pipeline = &component.Config{}
	}

	var traceOut io.Writer
	if a.trace {
		traceOut = cmd.ErrOrStderr()
	}
	t, err := newTelemetry(traceOut)
	if err != nil {
		return err
	}
	a.telemetry = t
	return nil
}

func (a *app) teardown(cmd *cobra.Command) error {
	if a.telemetry == nil {
		return nil
	}
	if a.metrics {
		if err := a.telemetry.report(cmd.Context(), a.logger); err != nil {
			a.logger.Warn("failed to report metrics", "error", err)
		}
	}
	return a.telemetry.shutdown(cmd.Context())
}

func newLogger(w io.Writer, level string, jsonLogs bool) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, provgraph.NewConfigError("provxform", fmt.Sprintf("invalid log level %q", level))
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if jsonLogs {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// readGraph decodes a graph file; "-" reads standard input.
func readGraph(cmd *cobra.Command, path string) (*graph.Graph, error) {
	if path == "-" {
		return graph.Decode(cmd.InOrStdin())
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return graph.Decode(f)
}

// writeGraph encodes g to a file; "-" writes standard output.
func writeGraph(cmd *cobra.Command, logger *slog.Logger, path string, g *graph.Graph) error {
	if path == "-" {
		return graph.Encode(cmd.OutOrStdout(), g)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := graph.Encode(f, g); err != nil {
		provgraph.CloseWithLog(f, logger, path)
		return err
	}
	return f.Close()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// registryEndpoints resolves --registry, then the environment, then pipeline.yaml.
func (a *app) registryEndpoints(flag string) []string {
	if flag != "" {
		return registry.ParseEndpoints(flag)
	}
	if env := os.Getenv(registry.EnvEndpoints); env != "" {
		return registry.ParseEndpoints(env)
	}
	if a.pipeline.Registry != nil {
		return a.pipeline.Registry.Endpoints
	}
	return nil
}

func joinKeys(keys []string) string {
	return strings.Join(keys, ",")
}
