package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type heartbeatFunc func(ctx context.Context, name string) (bool, error)

func (f heartbeatFunc) IsAlive(ctx context.Context, name string) (bool, error) { return f(ctx, name) }

func TestQueueCheck(t *testing.T) {
	tests := []struct {
		name   string
		pinger Pinger
		want   string
	}{
		{name: "reachable", pinger: pingerFunc(func(context.Context) error { return nil }), want: StatusHealthy},
		{name: "unreachable", pinger: pingerFunc(func(context.Context) error { return errors.New("refused") }), want: StatusUnhealthy},
		{name: "not configured", pinger: nil, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := QueueCheck(context.Background(), tt.pinger)
			if status.Status != tt.want {
				t.Errorf("expected %s, got %s: %s", tt.want, status.Status, status.Message)
			}
			if status.Message == "" {
				t.Error("expected non-empty message")
			}
		})
	}
}

func TestQueueCheckAppliesTimeout(t *testing.T) {
	var hadDeadline bool
	QueueCheck(context.Background(), pingerFunc(func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}))
	if !hadDeadline {
		t.Error("expected probe context to carry a deadline")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	want, _ := ctx.Deadline()
	QueueCheck(ctx, pingerFunc(func(ctx context.Context) error {
		got, _ := ctx.Deadline()
		if !got.Equal(want) {
			t.Errorf("expected caller deadline %v, got %v", want, got)
		}
		return nil
	}))
}

func TestRegistryCheck(t *testing.T) {
	if s := RegistryCheck(context.Background(), nil); !s.IsHealthy() {
		t.Errorf("disabled registry should be healthy, got %s", s.Status)
	}
	if s := RegistryCheck(context.Background(), pingerFunc(func(context.Context) error { return nil })); !s.IsHealthy() {
		t.Errorf("expected healthy, got %s", s.Status)
	}
	s := RegistryCheck(context.Background(), pingerFunc(func(context.Context) error { return errors.New("no leader") }))
	if !s.IsDegraded() {
		t.Errorf("unreachable registry should be degraded, got %s", s.Status)
	}
	if s.Details["error"] != "no leader" {
		t.Errorf("expected error detail, got %v", s.Details)
	}
}

func TestHeartbeatCheck(t *testing.T) {
	alive := heartbeatFunc(func(_ context.Context, name string) (bool, error) { return name == "dropkeys", nil })
	broken := heartbeatFunc(func(context.Context, string) (bool, error) { return false, errors.New("timeout") })

	if s := HeartbeatCheck(context.Background(), alive, "dropkeys"); !s.IsHealthy() {
		t.Errorf("expected healthy, got %s", s.Status)
	}
	if s := HeartbeatCheck(context.Background(), alive, "merge"); !s.IsDegraded() {
		t.Errorf("expected degraded, got %s", s.Status)
	}
	if s := HeartbeatCheck(context.Background(), broken, "dropkeys"); !s.IsUnhealthy() {
		t.Errorf("expected unhealthy, got %s", s.Status)
	}
	if s := HeartbeatCheck(context.Background(), nil, "dropkeys"); !s.IsUnhealthy() {
		t.Errorf("expected unhealthy, got %s", s.Status)
	}
}

func TestCombine(t *testing.T) {
	tests := []struct {
		name   string
		checks []Status
		want   string
	}{
		{name: "no checks", checks: nil, want: StatusHealthy},
		{name: "all healthy", checks: []Status{Healthy("a"), Healthy("b")}, want: StatusHealthy},
		{name: "one degraded", checks: []Status{Healthy("a"), Degraded("b", nil)}, want: StatusDegraded},
		{name: "unhealthy wins", checks: []Status{Degraded("a", nil), Unhealthy("b", nil), Healthy("c")}, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Combine(tt.checks...)
			if got.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.Status)
			}
		})
	}

	got := Combine(Unhealthy("", nil), Unhealthy("queue is unreachable", nil))
	failed, ok := got.Details["failed_checks"].([]string)
	if !ok || len(failed) != 2 || failed[0] != "unnamed check" || failed[1] != "queue is unreachable" {
		t.Errorf("unexpected failed_checks: %v", got.Details["failed_checks"])
	}
}
