//go:build integration

package worker

import (
	"context"
	"net/http"
	"slices"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/pwa-posts-offline/internal/testutil"
	"github.com/Sternrassler/pwa-posts-offline/pkg/cache"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) string {
	t.Helper()
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
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}
	return host + ":" + port.Port()
}

func redisStore(t *testing.T, addr string) *cache.Store {
	t.Helper()
	store := cache.NewStore(
		cache.NewRedisBackend(redis.NewClient(&redis.Options{Addr: addr}), "it"),
		cache.WithHotTier(32),
	)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// A restarted process sharing the same Redis serves what the previous one
// cached, and a redeploy removes the old generations for everyone.
func TestWorker_RedisAcrossRestarts(t *testing.T) {
	addr := setupRedis(t)
	ctx := context.Background()

	env := newTestEnv(t)
	env.store = redisStore(t, addr)
	reg := NewRegistration(env.network)
	if err := reg.Register(ctx, env.worker(t, env.config("v1"))); err != nil {
		t.Fatalf("Register v1: %v", err)
	}
	resp, err := reg.Fetch(env.request(t, http.MethodGet, "/posts", DestinationEmpty))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	readBody(t, resp)

	// second process: fresh store and worker, network gone
	restarted := &testEnv{origin: env.origin, network: env.network, store: redisStore(t, addr)}
	w := restarted.worker(t, restarted.config("v1"))
	w.setState(StateInstalled)
	if _, err := w.Activate(ctx); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	env.network.SetOffline(true)

	resp, err = w.OnFetch(restarted.request(t, http.MethodGet, "/posts", DestinationEmpty))
	if err != nil {
		t.Fatalf("OnFetch: %v", err)
	}
	if got := readBody(t, resp); got != testutil.PostsJSON {
		t.Errorf("body from shared Redis = %q", got)
	}
	resp, err = w.OnFetch(restarted.request(t, http.MethodGet, "/main.js", DestinationScript))
	if err != nil {
		t.Fatalf("OnFetch static: %v", err)
	}
	if got := readBody(t, resp); got != "asset /main.js" {
		t.Errorf("static body = %q", got)
	}

	env.network.SetOffline(false)
	if err := reg.Register(ctx, env.worker(t, env.config("v2"))); err != nil {
		t.Fatalf("Register v2: %v", err)
	}
	names, err := restarted.store.Names(ctx)
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if !slices.Equal(names, []string{"pwa-posts-v2"}) {
		t.Errorf("generations seen by second process = %v", names)
	}
}
