package health

import (
	"context"
	"fmt"
	"time"
)

// Pinger is a dependency that can be probed for reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HeartbeatSource reports whether a stage is alive.
type HeartbeatSource interface {
	IsAlive(ctx context.Context, name string) (bool, error)
}

// defaultTimeout bounds a single probe when ctx has no deadline.
const defaultTimeout = 5 * time.Second

// QueueCheck verifies the Redis item queue answers PING.
//
// Example:
//
//	status := health.QueueCheck(ctx, client)
//	if status.IsUnhealthy() {
//	    logger.Warn("queue unreachable", "message", status.Message)
//	}
func QueueCheck(ctx context.Context, queue Pinger) Status {
	if queue == nil {
		return Unhealthy("queue client is not configured", nil)
	}

	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	if err := queue.Ping(ctx); err != nil {
		return Unhealthy("queue is unreachable", map[string]any{
			"error": err.Error(),
		})
	}
	return Healthy("queue is reachable")
}

// HeartbeatCheck verifies that the named stage refreshed its heartbeat.
// A missing heartbeat is reported as degraded: items still flow, but the
// stage is invisible to discovery until the next beat.
func HeartbeatCheck(ctx context.Context, source HeartbeatSource, name string) Status {
	if source == nil {
		return Unhealthy("heartbeat source is not configured", nil)
	}

	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	alive, err := source.IsAlive(ctx, name)
	if err != nil {
		return Unhealthy(fmt.Sprintf("failed to read heartbeat of %s", name), map[string]any{
			"operator": name,
			"error":    err.Error(),
		})
	}
	if !alive {
		return Degraded(fmt.Sprintf("no recent heartbeat from %s", name), map[string]any{
			"operator": name,
		})
	}
	return Healthy(fmt.Sprintf("%s is alive", name))
}

// RegistryCheck verifies the etcd registry answers reads. Registration is
// optional, so a nil registry is healthy.
func RegistryCheck(ctx context.Context, registry Pinger) Status {
	if registry == nil {
		return Healthy("registry is disabled")
	}

	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	if err := registry.Ping(ctx); err != nil {
		// Workers keep processing without the registry.
		return Degraded("registry is unreachable", map[string]any{
			"error": err.Error(),
		})
	}
	return Healthy("registry is reachable")
}

// Combine aggregates multiple health checks into a single status.
// The result follows this priority:
//   - If any check is unhealthy, the result is unhealthy
//   - If any check is degraded (and none unhealthy), the result is degraded
//   - If all checks are healthy, the result is healthy
func Combine(checks ...Status) Status {
	if len(checks) == 0 {
		return Healthy("no checks provided")
	}

	var unhealthyChecks []string
	var degradedChecks []string
	var healthyCount int

	for _, check := range checks {
		msg := check.Message
		if msg == "" {
			msg = "unnamed check"
		}
		switch check.Status {
		case StatusUnhealthy:
			unhealthyChecks = append(unhealthyChecks, msg)
		case StatusDegraded:
			degradedChecks = append(degradedChecks, msg)
		case StatusHealthy:
			healthyCount++
		}
	}

	if len(unhealthyChecks) > 0 {
		return Unhealthy(
			fmt.Sprintf("%d check(s) failed", len(unhealthyChecks)),
			map[string]any{
				"total":         len(checks),
				"unhealthy":     len(unhealthyChecks),
				"degraded":      len(degradedChecks),
				"healthy":       healthyCount,
				"failed_checks": unhealthyChecks,
			},
		)
	}

	if len(degradedChecks) > 0 {
		return Degraded(
			fmt.Sprintf("%d check(s) degraded", len(degradedChecks)),
			map[string]any{
				"total":           len(checks),
				"degraded":        len(degradedChecks),
				"healthy":         healthyCount,
				"degraded_checks": degradedChecks,
			},
		)
	}

	return Healthy(fmt.Sprintf("all %d check(s) passed", len(checks)))
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultTimeout)
}
