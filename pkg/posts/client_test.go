package posts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Sternrassler/pwa-posts-offline/internal/testutil"
	"github.com/Sternrassler/pwa-posts-offline/pkg/cache"
	"github.com/Sternrassler/pwa-posts-offline/pkg/worker"
)

func TestClient_List(t *testing.T) {
	origin := testutil.NewShellOrigin()
	defer origin.Close()

	posts, err := NewClient(origin.URL(), origin.Client()).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
	if posts[0].ID != 1 || posts[0].UserID != 1 || posts[0].Title != "first" || posts[1].Body != "world" {
		t.Errorf("decoded posts = %+v", posts)
	}
}

func TestClient_ListErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantOffline bool
		wantStatus  int
	}{
		{"offline response", http.StatusServiceUnavailable, worker.OfflineBody, true, 0},
		{"plain 503", http.StatusServiceUnavailable, "maintenance", false, http.StatusServiceUnavailable},
		{"not found", http.StatusNotFound, "", false, http.StatusNotFound},
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, false, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, srv.Client()).List(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if IsOffline(err) != tt.wantOffline {
				t.Errorf("IsOffline(%v) = %v", err, !tt.wantOffline)
			}
			var se *StatusError
			if tt.wantStatus != 0 && (!errors.As(err, &se) || se.StatusCode != tt.wantStatus) {
				t.Errorf("expected StatusError %d, got %v", tt.wantStatus, err)
			}
		})
	}
}

func TestClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, srv.Client()).List(context.Background()); err == nil {
		t.Error("expected decode error")
	}
}

func TestClient_ThroughWorker(t *testing.T) {
	origin := testutil.NewShellOrigin()
	defer origin.Close()
	network := testutil.NewNetwork(origin.Client())
	ctx := context.Background()

	cfg := worker.DefaultConfig(origin.URL() + "/")
	cfg.APIURLs = []string{origin.URL() + "/posts"}
	reg := worker.NewRegistration(network)
	w, err := worker.New(cfg, cache.NewStore(cache.NewMemoryBackend()), worker.WithFetcher(network))
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(ctx, w); err != nil {
		t.Fatalf("Register: %v", err)
	}
	client := NewClient(origin.URL(), &http.Client{Transport: worker.NewTransport(reg)})

	network.SetOffline(true)
	if _, err := client.List(ctx); !IsOffline(err) {
		t.Fatalf("expected OfflineError before anything is cached, got %v", err)
	}

	network.SetOffline(false)
	if _, err := client.List(ctx); err != nil {
		t.Fatalf("online List: %v", err)
	}

	network.SetOffline(true)
	posts, err := client.List(ctx)
	if err != nil {
		t.Fatalf("offline List after caching: %v", err)
	}
	if len(posts) != 2 {
		t.Errorf("expected cached posts, got %d", len(posts))
	}
}
