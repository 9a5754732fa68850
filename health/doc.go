// Package health reports whether a pipeline stage can do its work.
//
// Checks probe the dependencies of a queue worker and return a Status:
//
//   - QueueCheck: the Redis item queue answers PING
//   - HeartbeatCheck: a stage refreshed its heartbeat key recently
//   - RegistryCheck: the etcd registry answers reads (healthy when disabled)
//   - Combine: aggregate several statuses into one
//
// Server exposes the combined result through the standard gRPC health
// service (grpc.health.v1.Health), re-probing on an interval:
//
//	srv, err := health.Listen(":8081", func(ctx context.Context) health.Status {
//		return health.Combine(
//			health.QueueCheck(ctx, client),
//			health.RegistryCheck(ctx, reg),
//		)
//	}, health.ServerOptions{Service: "dropkeys", Logger: logger})
//	if err != nil {
//		return err
//	}
//	go srv.Serve(ctx)
//
// # Health Status Priority
//
// When combining health checks with Combine(), the result follows this priority:
//
//   - Unhealthy: If any check is unhealthy, the combined result is unhealthy
//   - Degraded: If any check is degraded (and none unhealthy), the result is degraded
//   - Healthy: If all checks are healthy, the result is healthy
//
// Healthy and degraded stages report SERVING; unhealthy ones NOT_SERVING.
package health
