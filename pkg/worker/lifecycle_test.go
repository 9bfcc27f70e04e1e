package worker

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"testing"

	"github.com/Sternrassler/pwa-posts-offline/internal/testutil"
)

func generationKeys(t *testing.T, env *testEnv, name string) []string {
	t.Helper()
	gen, err := env.store.Generation(name)
	if err != nil {
		t.Fatal(err)
	}
	keys, err := gen.Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	slices.Sort(out)
	return out
}

func generationNames(t *testing.T, env *testEnv) []string {
	t.Helper()
	names, err := env.store.Names(context.Background())
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	slices.Sort(names)
	return names
}

func TestOnInstall_PrecachesShell(t *testing.T) {
	env := newTestEnv(t)
	w := env.worker(t, env.config("v1"))

	if err := w.OnInstall(context.Background()); err != nil {
		t.Fatalf("OnInstall: %v", err)
	}
	if w.State() != StateInstalled {
		t.Errorf("expected installed, got %s", w.State())
	}

	keys := generationKeys(t, env, "pwa-posts-v1")
	if len(keys) != len(testutil.ShellAssets) {
		t.Fatalf("expected %d shell entries, got %v", len(testutil.ShellAssets), keys)
	}
	for _, p := range testutil.ShellAssets {
		if env.stored(t, "pwa-posts-v1", p) == nil {
			t.Errorf("missing shell asset %s", p)
		}
	}
}

func TestOnInstall_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := env.worker(t, env.config("v1"))
	if err := w.OnInstall(ctx); err != nil {
		t.Fatalf("first OnInstall: %v", err)
	}
	first := generationKeys(t, env, "pwa-posts-v1")

	if err := w.OnInstall(ctx); err != nil {
		t.Fatalf("second OnInstall: %v", err)
	}
	again := env.worker(t, env.config("v1"))
	if err := again.OnInstall(ctx); err != nil {
		t.Fatalf("OnInstall with same version: %v", err)
	}

	if got := generationKeys(t, env, "pwa-posts-v1"); !slices.Equal(first, got) {
		t.Errorf("shell set changed: %v -> %v", first, got)
	}
}

func TestOnInstall_FailureWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.origin.SetResponse("/main.js", testutil.NewServerErrorResponse())
	w := env.worker(t, env.config("v1"))

	err := w.OnInstall(context.Background())
	var ie *InstallError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *InstallError, got %v", err)
	}
	if ie.Asset != "/main.js" {
		t.Errorf("asset = %q", ie.Asset)
	}
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindHTTP || fe.Status != http.StatusInternalServerError {
		t.Errorf("expected wrapped HTTP FetchError, got %v", err)
	}
	if w.State() != StateRedundant {
		t.Errorf("expected redundant, got %s", w.State())
	}
	if keys := generationKeys(t, env, "pwa-posts-v1"); len(keys) != 0 {
		t.Errorf("failed install wrote entries: %v", keys)
	}
}

func TestOnInstall_NetworkFailure(t *testing.T) {
	env := newTestEnv(t)
	env.network.SetOffline(true)
	w := env.worker(t, env.config("v1"))

	err := w.OnInstall(context.Background())
	if !errors.Is(err, testutil.ErrOffline) {
		t.Fatalf("expected wrapped offline error, got %v", err)
	}
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindNetwork {
		t.Errorf("expected network FetchError, got %v", err)
	}
}

func TestActivate_DeletesOldGenerations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v1 := env.activeWorker(t, "v1")
	resp, _ := v1.OnFetch(env.request(t, http.MethodGet, "/posts", DestinationEmpty))
	readBody(t, resp)
	if got := generationNames(t, env); !slices.Equal(got, []string{"pwa-posts-api-v1", "pwa-posts-v1"}) {
		t.Fatalf("v1 generations = %v", got)
	}

	v2 := env.worker(t, env.config("v2"))
	if err := v2.OnInstall(ctx); err != nil {
		t.Fatalf("OnInstall: %v", err)
	}
	deleted, err := v2.Activate(ctx)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	slices.Sort(deleted)
	if !slices.Equal(deleted, []string{"pwa-posts-api-v1", "pwa-posts-v1"}) {
		t.Errorf("deleted = %v", deleted)
	}
	if got := generationNames(t, env); !slices.Equal(got, []string{"pwa-posts-v2"}) {
		t.Errorf("after activation = %v, want only pwa-posts-v2", got)
	}

	resp, err = v2.OnFetch(env.request(t, http.MethodGet, "/posts", DestinationEmpty))
	if err != nil {
		t.Fatalf("OnFetch: %v", err)
	}
	readBody(t, resp)
	if got := generationNames(t, env); !slices.Equal(got, []string{"pwa-posts-api-v2", "pwa-posts-v2"}) {
		t.Errorf("after first API fetch = %v", got)
	}
}

func TestActivate_DeletesForeignGenerations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.store.Open(ctx, "other-app-v9"); err != nil {
		t.Fatal(err)
	}

	env.activeWorker(t, "v1")
	if got := generationNames(t, env); !slices.Equal(got, []string{"pwa-posts-v1"}) {
		t.Errorf("generations = %v", got)
	}
}

func TestActivate_RequiresInstalled(t *testing.T) {
	env := newTestEnv(t)
	w := env.worker(t, env.config("v1"))

	if _, err := w.Activate(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if err := env.activeWorker(t, "v2").OnInstall(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("install of an active worker: expected ErrInvalidState, got %v", err)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateParsed, "parsed"},
		{StateInstalling, "installing"},
		{StateInstalled, "installed"},
		{StateActivating, "activating"},
		{StateActivated, "activated"},
		{StateRedundant, "redundant"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
