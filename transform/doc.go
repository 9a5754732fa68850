// Package transform holds batch operators that consume a complete graph and
// produce a new one.
//
// MergeVertex groups vertices by the values of an ordered list of merge
// keys, keeps one representative per group and rewires edges onto the
// representatives:
//
//	keys, err := transform.ParseMergeKeys("name,cf:id")
//	if err != nil {
//		return err
//	}
//	merger, err := transform.NewMergeVertex(keys,
//		transform.WithPreserveEdgeAnnotations(true),
//		transform.WithLogger(logger),
//	)
//	if err != nil {
//		return err
//	}
//	merged, err := merger.Transform(ctx, g)
//
// Representatives are chosen in the insertion order of the input graph, so
// the same input always produces the same output.
package transform
