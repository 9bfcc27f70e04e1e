package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/pwa-posts-offline/internal/testutil"
)

func TestRegistration_NoControllerPassesThrough(t *testing.T) {
	env := newTestEnv(t)
	reg := NewRegistration(env.network)

	resp, err := reg.Fetch(env.request(t, http.MethodGet, "/posts", DestinationEmpty))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := readBody(t, resp); got != testutil.PostsJSON {
		t.Errorf("body = %q", got)
	}
	if reg.Active() != nil {
		t.Error("expected no controller")
	}
	if r := reg.Sync(context.Background(), "background-sync"); r.Handled {
		t.Error("sync without controller must be unhandled")
	}
}

func TestRegistration_RegisterSwapsController(t *testing.T) {
	env := newTestEnv(t)
	reg := NewRegistration(env.network)
	ctx := context.Background()

	v1 := env.worker(t, env.config("v1"))
	if err := reg.Register(ctx, v1); err != nil {
		t.Fatalf("Register v1: %v", err)
	}
	if reg.Active() != v1 || v1.State() != StateActivated {
		t.Fatalf("v1 not in control: %s", v1.State())
	}

	v2 := env.worker(t, env.config("v2"))
	if err := reg.Register(ctx, v2); err != nil {
		t.Fatalf("Register v2: %v", err)
	}
	if reg.Active() != v2 {
		t.Error("v2 did not take control")
	}
	if v1.State() != StateRedundant {
		t.Errorf("superseded worker state = %s", v1.State())
	}
	if ok, _ := env.store.Has(ctx, "pwa-posts-v1"); ok {
		t.Error("v1 static generation survived activation")
	}
}

func TestRegistration_FailedInstallKeepsController(t *testing.T) {
	env := newTestEnv(t)
	reg := NewRegistration(env.network)
	ctx := context.Background()

	v1 := env.worker(t, env.config("v1"))
	if err := reg.Register(ctx, v1); err != nil {
		t.Fatalf("Register v1: %v", err)
	}

	env.origin.SetResponse("/style.css", testutil.NewServerErrorResponse())
	v2 := env.worker(t, env.config("v2"))
	err := reg.Register(ctx, v2)
	var ie *InstallError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *InstallError, got %v", err)
	}

	if reg.Active() != v1 {
		t.Error("failed install replaced the controller")
	}
	if v1.State() != StateActivated {
		t.Errorf("v1 state = %s", v1.State())
	}
	if ok, _ := env.store.Has(ctx, "pwa-posts-v1"); !ok {
		t.Error("v1 static generation deleted by failed install")
	}

	env.network.SetOffline(true)
	resp, err := reg.Fetch(env.request(t, http.MethodGet, "/style.css", DestinationStyle))
	if err != nil {
		t.Fatalf("Fetch via v1: %v", err)
	}
	if got := readBody(t, resp); got != "asset /style.css" {
		t.Errorf("body = %q", got)
	}
}

func TestRegistration_ConcurrentFetchDuringRegister(t *testing.T) {
	env := newTestEnv(t)
	reg := NewRegistration(env.network)
	ctx := context.Background()
	if err := reg.Register(ctx, env.worker(t, env.config("v1"))); err != nil {
		t.Fatalf("Register v1: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodGet, env.origin.URL()+"/posts", nil)
			if err != nil {
				errs <- err
				return
			}
			resp, err := reg.Fetch(req)
			if err != nil {
				errs <- err
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				errs <- errors.New(resp.Status)
			}
		}()
	}
	if err := reg.Register(ctx, env.worker(t, env.config("v2"))); err != nil {
		t.Fatalf("Register v2: %v", err)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("fetch during register: %v", err)
	}
}

func TestRegistration_HangingRequestDoesNotBlockOthers(t *testing.T) {
	env := newTestEnv(t)
	reg := NewRegistration(env.network)
	ctx := context.Background()
	if err := reg.Register(ctx, env.worker(t, env.config("v1"))); err != nil {
		t.Fatalf("Register v1: %v", err)
	}

	release := make(chan struct{})
	env.origin.SetHandler("/slow.js", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.Write([]byte("late"))
	})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)

	slowReq := env.request(t, http.MethodGet, "/slow.js", DestinationScript)
	slow := make(chan error, 1)
	go func() {
		resp, err := reg.Fetch(slowReq)
		if err == nil {
			resp.Body.Close()
		}
		slow <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for env.origin.RequestCount("/slow.js") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	v2 := env.worker(t, env.config("v2"))
	registered := make(chan error, 1)
	go func() { registered <- reg.Register(ctx, v2) }()

	cachedReq := env.request(t, http.MethodGet, "/style.css", DestinationStyle)
	cached := make(chan error, 1)
	go func() {
		resp, err := reg.Fetch(cachedReq)
		if err == nil {
			resp.Body.Close()
		}
		cached <- err
	}()

	for name, ch := range map[string]chan error{"register": registered, "cached fetch": cached} {
		select {
		case err := <-ch:
			if err != nil {
				t.Errorf("%s: %v", name, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s blocked behind a hanging request", name)
		}
	}
	if reg.Active() != v2 {
		t.Error("v2 did not take control")
	}

	unblock()
	if err := <-slow; err != nil {
		t.Fatalf("slow fetch: %v", err)
	}
	if ok, _ := env.store.Has(ctx, "pwa-posts-v1"); ok {
		t.Error("superseded worker recreated its deleted generation")
	}
}

func TestTransport_RoutesThroughRegistration(t *testing.T) {
	env := newTestEnv(t)
	reg := NewRegistration(env.network)
	if err := reg.Register(context.Background(), env.worker(t, env.config("v1"))); err != nil {
		t.Fatalf("Register: %v", err)
	}
	client := &http.Client{Transport: NewTransport(reg)}

	resp, err := client.Get(env.origin.URL() + "/posts")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	readBody(t, resp)

	env.network.SetOffline(true)
	resp, err = client.Get(env.origin.URL() + "/posts")
	if err != nil {
		t.Fatalf("Get offline: %v", err)
	}
	if got := readBody(t, resp); got != testutil.PostsJSON {
		t.Errorf("offline body = %q", got)
	}
	if resp.Header.Get(OfflineHeader) != "hit" {
		t.Error("expected offline marker")
	}
}

func TestTransport_FillsRequest(t *testing.T) {
	stub := FetcherFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       io.NopCloser(bytes.NewReader([]byte("stub"))),
		}, nil
	})
	req, _ := http.NewRequest(http.MethodGet, "https://posts.example.com/", nil)

	resp, err := NewTransport(stub).RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if resp.Request != req {
		t.Error("RoundTrip must attach the request")
	}
	if got := readBody(t, resp); got != "stub" {
		t.Errorf("body = %q", got)
	}
}

func TestRegistration_SyncLoop(t *testing.T) {
	env := newTestEnv(t)
	reg := NewRegistration(env.network)
	if err := reg.Register(context.Background(), env.worker(t, env.config("v1"))); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.SyncLoop(ctx, "background-sync", 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for env.stored(t, "pwa-posts-api-v1", "/posts") == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if env.stored(t, "pwa-posts-api-v1", "/posts") == nil {
		t.Error("sync loop never refreshed the API generation")
	}
}
