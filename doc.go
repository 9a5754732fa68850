// Package provgraph rewrites annotated provenance graphs.
//
// Vertices and edges carry string annotations. Two reserved keys exist:
// "id", a content hash over the remaining annotations (plus, for edges, the
// identities of both endpoints), and "type", which configuration may never
// remove.
//
// # Operators
//
// The module provides two operators built on the same primitives:
//
//   - filter.DropKeys: a streaming filter that removes configured annotation
//     keys from every vertex and edge it receives and forwards the result to
//     a downstream filter.Sink. In fresh-identity mode the "id" annotation is
//     recomputed from the remaining content; in identity-preserving mode the
//     original "id" is kept.
//   - transform.MergeVertex: a batch transformer that groups vertices by the
//     values of an ordered list of merge keys, drops annotations whose values
//     diverge inside a group, and rewires edges onto the group
//     representatives while suppressing self-loops.
//
// # Packages
//
//	annotation   ordered annotation map
//	graph        vertices, edges, graphs and their JSON codec
//	graph/id     deterministic identity hashing
//	filter       the key-drop operator and the Sink port
//	transform    the vertex-merge operator
//	component    pipeline.yaml and argument parsing
//	queue        Redis item queue between pipeline stages
//	worker       queue worker hosting a streaming operator
//	registry     etcd discovery of running operators
//	health       health checks and the gRPC health server
//
// # Getting Started
//
//	cfg, err := filter.ParseDropKeysConfig(map[string]string{
//		"EdgeDropKeys":   "seq",
//		"VertexDropKeys": "pid",
//		"KeepOriginalID": "false",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	out := filter.NewCollector()
//	dk, err := filter.NewDropKeys(cfg, out)
//	if err != nil {
//		log.Fatal(err)
//	}
//	_ = dk.PutVertex(ctx, v)
//
// Errors returned by this module wrap the sentinels declared in this package
// (ErrInvalidConfig, ErrInvalidItem, ErrCopyFailed, ErrQueueUnavailable) and
// can be inspected with errors.Is.
package provgraph
