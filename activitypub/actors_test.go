package activitypub

import (
	"context"
	"testing"
	"time"

	"github.com/deemkeen/vidodon/queue"
)

func TestActorFromResponseValidation(t *testing.T) {
	tests := []struct {
		name string
		resp ActorResponse
		ok   bool
	}{
		{
			name: "complete",
			resp: ActorResponse{
				ID:                "https://other.example.com/accounts/bob",
				PreferredUsername: "bob",
				Inbox:             "https://other.example.com/accounts/bob/inbox",
				PublicKey: struct {
					ID           string `json:"id"`
					Owner        string `json:"owner"`
					PublicKeyPem string `json:"publicKeyPem"`
				}{PublicKeyPem: "pem"},
			},
			ok: true,
		},
		{
			name: "missing inbox",
			resp: ActorResponse{ID: "https://other.example.com/accounts/bob"},
			ok:   false,
		},
		{
			name: "missing id",
			resp: ActorResponse{Inbox: "https://other.example.com/inbox"},
			ok:   false,
		},
	}

	for _, tt := range tests {
		actor, err := actorFromResponse(&tt.resp)
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
		if tt.ok && actor.Domain != "other.example.com" {
			t.Errorf("%s: expected extracted domain, got %s", tt.name, actor.Domain)
		}
	}
}

func TestGetOrFetchActorReturnsCached(t *testing.T) {
	env := newTestEnv(t)
	deliverer := NewDeliverer(env.conf)
	refresher := NewRefresher(env.store, deliverer)
	resolver := NewActorResolver(env.store, deliverer, env.jobs, refresher)

	cached := env.createRemoteActor(t, "other.example.com", "bob")

	got, err := resolver.GetOrFetchActor(context.Background(), cached.Url)
	if err != nil {
		t.Fatalf("GetOrFetchActor failed: %v", err)
	}
	if got.Id != cached.Id {
		t.Error("Expected the cached actor back")
	}

	pending, _ := env.store.ReadPendingJobs(10)
	if len(pending) != 0 {
		t.Errorf("A fresh cached actor should not schedule a refresh, got %+v", pending)
	}
}

func TestGetOrFetchActorSchedulesRefreshWhenStale(t *testing.T) {
	env := newTestEnv(t)
	deliverer := NewDeliverer(env.conf)
	refresher := NewRefresher(env.store, deliverer)
	resolver := NewActorResolver(env.store, deliverer, env.jobs, refresher)

	stale := env.createRemoteActor(t, "other.example.com", "bob")
	env.store.UpdateActorRefreshedAt(stale.Url, time.Now().Add(-RefreshInterval-time.Hour))

	if _, err := resolver.GetOrFetchActor(context.Background(), stale.Url); err != nil {
		t.Fatalf("GetOrFetchActor failed: %v", err)
	}

	pending, _ := env.store.ReadPendingJobs(10)
	if len(pending) != 1 || pending[0].Type != queue.JobTypeRefresher {
		t.Fatalf("Expected a scheduled refresh job, got %+v", pending)
	}
}

func TestServerActorLoaderCreatesAndMemoizes(t *testing.T) {
	env := newTestEnv(t)
	loader := NewServerActorLoader(env.store, env.conf)

	first, err := loader.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !first.Local || first.PreferredUsername != ServerActorName {
		t.Errorf("Unexpected server actor: %+v", first)
	}
	if first.PrivateKeyPem == "" {
		t.Error("Server actor needs signing material")
	}

	second, err := loader.Get()
	if err != nil {
		t.Fatalf("Second Get failed: %v", err)
	}
	if first != second {
		t.Error("Get should return the memoized actor")
	}

	loader.Invalidate()
	third, err := loader.Get()
	if err != nil {
		t.Fatalf("Get after Invalidate failed: %v", err)
	}
	if third.Id != first.Id {
		t.Error("Reload should find the same stored actor, not create a new one")
	}
}
