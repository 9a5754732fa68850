// Package queue moves graph items between pipeline stages through Redis.
//
// Every stage reads vertex and edge items from an input list and writes the
// items it produces to an output list, so stages can be chained and scaled
// independently of each other.
//
// # Core Components
//
// Client: Interface for interacting with Redis queues. Provides methods for:
//   - PushItem/PopItem operations on item lists
//   - Operator registration and discovery
//   - Health monitoring and worker tracking
//
// Item: A single vertex or edge (with its endpoints inline), or a flush
// marker closing a batch.
//
// Sink: Pushes everything it receives onto a list. A filter forwarding to a
// Sink feeds the next stage directly.
//
// OperatorMeta: Metadata about a running stage for discovery.
//
// # Redis Key Schema
//
//   - provgraph:<stage>:in / provgraph:<stage>:out - default item lists (LPUSH/BRPOP)
//   - operator:<name>:meta - Hash for stage metadata
//   - operator:<name>:health - String with 30s TTL for heartbeat
//   - operator:<name>:workers - Integer counter for active workers
//   - operators:available - Set of all registered stage names
//
// # Usage
//
//	client, err := queue.NewRedisClient(queue.RedisOptions{
//		URL: "redis://localhost:6379",
//	})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	sink := queue.NewSink(client, "provgraph:dropkeys:in", "loader")
//	if err := sink.PutGraph(ctx, g); err != nil {
//		return err
//	}
//
//	item, err := client.PopItem(ctx, "provgraph:dropkeys:out", time.Second)
//
// # Thread Safety
//
// RedisClient and Sink are safe for concurrent use by multiple goroutines.
package queue
