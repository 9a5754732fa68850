// Package worker runs graph operators as Redis queue workers.
//
// # Overview
//
// A worker hosts one Stage. It pops items from the stage's input list,
// hands them to the stage, and the stage pushes its output onto the output
// list through a queue.Sink. Chaining stages is a matter of pointing one
// stage's output list at the next stage's input list.
//
// Two stage shapes exist:
//   - FilterStage streams each vertex and edge through a filter chain, such
//     as filter.DropKeys, and forwards flush markers unchanged
//   - TransformStage buffers vertices and edges until a flush marker, runs a
//     transform.Transformer over the buffered graph, and pushes the result
//     followed by a new flush marker. A batch interrupted by cancellation
//     stays buffered; a batch the transformer rejects is dropped and the
//     error names its size
//
// # Usage
//
//	stage := worker.NewTransformStage(merge)
//	err := worker.Run(ctx, stage, worker.Options{
//	    Name:     "merge",
//	    RedisURL: "redis://localhost:6379",
//	})
//
// # Graceful Shutdown
//
// Run returns when ctx is cancelled or SIGTERM/SIGINT is received. The item
// in flight is given ShutdownTimeout to complete; buffered batch items that
// never saw a flush marker are dropped.
//
// # Redis Queue Schema
//
// Workers interact with Redis using the following key patterns:
//   - provgraph:<name>:in - List of incoming items (LPUSH/BRPOP)
//   - provgraph:<name>:out - List of produced items
//   - operator:<name>:meta - Hash containing stage metadata
//   - operator:<name>:health - Key with TTL for health checks
//   - operator:<name>:workers - Counter for active worker count
//
// # Error Handling
//
//   - Redis connection errors at startup: Run returns the error
//   - Pop errors: logged, retried after a short delay
//   - Malformed or invalid items: logged and discarded
//   - Stage errors: logged, the loop continues with the next item
//   - Registry errors: logged, the worker runs unregistered
package worker
