//go:build integration

package heightcache

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisCacheIntegration(t *testing.T) {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	defer container.Terminate(ctx)

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}

	cache, err := Open(Config{Backend: BackendRedis, Chain: "eth", RedisAddr: endpoint})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer cache.Close()

	if err := cache.Set(19_000_000, 1_700_000_000); err != nil {
		t.Fatalf("set: %v", err)
	}
	ts, ok, err := cache.Get(19_000_000)
	if err != nil || !ok || ts != 1_700_000_000 {
		t.Fatalf("get = %d %v %v", ts, ok, err)
	}
	if ok, _ := cache.Contains(1); ok {
		t.Fatalf("unexpected height")
	}
}
