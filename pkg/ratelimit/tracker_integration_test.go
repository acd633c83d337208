//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func windowHeaders(remaining, reset string) http.Header {
	h := http.Header{}
	h.Set("X-RateLimit-Remaining", remaining)
	h.Set("X-RateLimit-Reset", reset)
	return h
}

func TestTracker_Integration_GetState(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := NewTracker(redisClient, zerolog.Nop())
	ctx := context.Background()

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.IsHealthy {
		t.Error("Default state should be healthy")
	}

	if err := tracker.UpdateFromHeaders(ctx, windowHeaders("45", "120"), http.StatusOK); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, err = tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() after update error = %v", err)
	}
	if state.Remaining != 45 {
		t.Errorf("Remaining = %d, want 45", state.Remaining)
	}
	if d := state.TimeUntilReset(); d < 115*time.Second || d > 125*time.Second {
		t.Errorf("TimeUntilReset = %v, want about 120s", d)
	}
}

func TestTracker_Integration_ShouldAllowRequest(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := NewTracker(redisClient, zerolog.Nop())
	tracker.SetThrottleDelay(200 * time.Millisecond)
	ctx := context.Background()

	tests := []struct {
		name         string
		remaining    string
		wantAllowed  bool
		wantMinDelay time.Duration
		wantMaxDelay time.Duration
	}{
		{name: "healthy", remaining: "80", wantAllowed: true, wantMaxDelay: 100 * time.Millisecond},
		{name: "warning", remaining: "5", wantAllowed: true, wantMinDelay: 180 * time.Millisecond, wantMaxDelay: time.Second},
		{name: "critical", remaining: "1", wantAllowed: false, wantMaxDelay: 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tracker.UpdateFromHeaders(ctx, windowHeaders(tt.remaining, "60"), http.StatusOK); err != nil {
				t.Fatalf("UpdateFromHeaders() error = %v", err)
			}

			start := time.Now()
			allowed, err := tracker.ShouldAllowRequest(ctx)
			elapsed := time.Since(start)
			if err != nil {
				t.Fatalf("ShouldAllowRequest() error = %v", err)
			}
			if allowed != tt.wantAllowed {
				t.Errorf("ShouldAllowRequest() = %v, want %v", allowed, tt.wantAllowed)
			}
			if elapsed < tt.wantMinDelay || elapsed > tt.wantMaxDelay {
				t.Errorf("elapsed = %v, want between %v and %v", elapsed, tt.wantMinDelay, tt.wantMaxDelay)
			}
		})
	}
}

func TestTracker_Integration_RetryAfter(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := NewTracker(redisClient, zerolog.Nop())
	ctx := context.Background()

	h := http.Header{}
	h.Set("Retry-After", "2")
	if err := tracker.UpdateFromHeaders(ctx, h, http.StatusTooManyRequests); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	// the reset is within the max block wait, so the request is held, not rejected
	start := time.Now()
	allowed, err := tracker.ShouldAllowRequest(ctx)
	elapsed := time.Since(start)
	if err != nil || !allowed {
		t.Fatalf("ShouldAllowRequest() = %v, %v; want allowed after the reset", allowed, err)
	}
	if elapsed < 900*time.Millisecond || elapsed > 3*time.Second {
		t.Errorf("elapsed = %v, want 1-2s", elapsed)
	}

	start = time.Now()
	allowed, err = tracker.ShouldAllowRequest(ctx)
	if err != nil || !allowed || time.Since(start) > 100*time.Millisecond {
		t.Errorf("ShouldAllowRequest() after reset = %v, %v; want allowed without delay", allowed, err)
	}
}
