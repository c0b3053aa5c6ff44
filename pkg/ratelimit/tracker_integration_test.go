//go:build integration

package ratelimit

import (
	"context"
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

func TestTracker_Integration_Mirror(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := NewTracker(redisClient, zerolog.Nop())
	tracker.SetClock(func() time.Time { return testNow })
	ctx := context.Background()

	if _, err := tracker.Observe(ctx, "user_tweets", headers("1200", "1500", epoch(12, 15, 0))); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if _, err := tracker.Observe(ctx, "query", headers("0", "450", epoch(12, 5, 0))); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}

	mirrored, err := LoadMirrored(ctx, redisClient)
	if err != nil {
		t.Fatalf("LoadMirrored() error = %v", err)
	}

	if len(mirrored) != 2 {
		t.Fatalf("mirrored %d endpoints, want 2", len(mirrored))
	}

	tweets := mirrored["user_tweets"]
	if tweets.PercentRemaining != 80 {
		t.Errorf("PercentRemaining = %d, want 80", tweets.PercentRemaining)
	}
	if tweets.ResetClock() != "12:15:00" {
		t.Errorf("ResetClock() = %s, want 12:15:00", tweets.ResetClock())
	}
	if !mirrored["query"].Exhausted() {
		t.Error("query snapshot should be exhausted")
	}
}

func TestTracker_Integration_FailedObservationNotMirrored(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := NewTracker(redisClient, zerolog.Nop())
	ctx := context.Background()

	if _, err := tracker.Observe(ctx, "user_following", headers("0", "0", epoch(12, 15, 0))); err == nil {
		t.Fatal("expected division error")
	}

	mirrored, err := LoadMirrored(ctx, redisClient)
	if err != nil {
		t.Fatalf("LoadMirrored() error = %v", err)
	}
	if len(mirrored) != 0 {
		t.Errorf("mirrored = %v, want empty", mirrored)
	}
}
