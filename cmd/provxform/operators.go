package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/provgraph/component"
	"github.com/zero-day-ai/provgraph/filter"
	"github.com/zero-day-ai/provgraph/transform"
)

// dropKeysFlags are the flags shared by "dropkeys" and "worker dropkeys".
type dropKeysFlags struct {
	arguments string
}

func (f *dropKeysFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.arguments, "args", "",
		`key=value arguments overriding pipeline.yaml, e.g. "EdgeDropKeys=seq VertexDropKeys=pid KeepOriginalID=false"`)
}

// config merges pipeline.yaml drop_keys settings with --args.
func (f *dropKeysFlags) config(a *app) (filter.DropKeysConfig, string, error) {
	var base map[string]string
	if a.pipeline.Filters != nil {
		base = a.pipeline.Filters.DropKeys.Values()
	}
	values, err := component.MergeArguments(base, f.arguments)
	if err != nil {
		return filter.DropKeysConfig{}, "", err
	}
	cfg, err := filter.ParseDropKeysConfig(values)
	if err != nil {
		return filter.DropKeysConfig{}, "", err
	}
	effective := fmt.Sprintf("%s=%s %s=%s %s=%s",
		component.ArgEdgeDropKeys, joinKeys(cfg.EdgeDropKeys),
		component.ArgVertexDropKeys, joinKeys(cfg.VertexDropKeys),
		component.ArgKeepOriginalID, component.FormatBool(cfg.KeepOriginalID))
	return cfg, effective, nil
}

func (f *dropKeysFlags) build(a *app, next filter.Sink) (*filter.DropKeys, error) {
	cfg, _, err := f.config(a)
	if err != nil {
		return nil, err
	}
	return filter.NewDropKeys(cfg, next,
		filter.WithLogger(a.logger),
		filter.WithMeter(a.telemetry.meter()),
	)
}

// mergeFlags are the flags shared by "merge" and "worker merge".
type mergeFlags struct {
	keys      string
	preserve  bool
	delimiter string
}

func (f *mergeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.keys, "keys", "", "ordered comma-separated merge keys (default: pipeline.yaml merge_vertex.keys)")
	cmd.Flags().BoolVar(&f.preserve, "preserve-edge-annotations", true, "keep the original annotations on rewired edges")
	cmd.Flags().StringVar(&f.delimiter, "delimiter", "", `separator inside merge hashes (default: pipeline.yaml or ",")`)
}

// build resolves flags over pipeline.yaml merge_vertex settings. Flags win
// only when set explicitly.
func (f *mergeFlags) build(cmd *cobra.Command, a *app) (*transform.MergeVertex, error) {
	var fileCfg *component.MergeVertexConfig
	if a.pipeline.Transformers != nil {
		fileCfg = a.pipeline.Transformers.MergeVertex
	}

	keyList := f.keys
	if keyList == "" && fileCfg != nil {
		keyList = fileCfg.Keys
	}
	keys, err := transform.ParseMergeKeys(keyList)
	if err != nil {
		return nil, err
	}

	preserve := fileCfg.GetPreserveEdgeAnnotations()
	if cmd.Flags().Changed("preserve-edge-annotations") {
		preserve = f.preserve
	}

	delimiter := f.delimiter
	if delimiter == "" && fileCfg != nil {
		delimiter = fileCfg.Delimiter
	}

	opts := []transform.Option{
		transform.WithPreserveEdgeAnnotations(preserve),
		transform.WithLogger(a.logger),
		transform.WithTracer(a.telemetry.tracer()),
		transform.WithMeter(a.telemetry.meter()),
	}
	if delimiter != "" {
		opts = append(opts, transform.WithDelimiter(delimiter))
	}
	return transform.NewMergeVertex(keys, opts...)
}
