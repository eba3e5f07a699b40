package activitypub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/deemkeen/vidodon/domain"
	"github.com/deemkeen/vidodon/queue"
)

func TestFilterDestinationsExcludesSignerAndLocal(t *testing.T) {
	env := newTestEnv(t)
	b := NewBroadcaster(env.store, NewDeliverer(env.conf), env.jobs, env.health, env.conf)

	signer := &domain.Actor{
		Url:            "https://other.example.com/accounts/bob",
		InboxUrl:       "https://other.example.com/accounts/bob/inbox",
		SharedInboxUrl: "https://other.example.com/inbox",
	}

	inboxes := []string{
		"https://other.example.com/inbox",                    // signer's shared inbox
		"https://other.example.com/accounts/bob/inbox",       // signer's own inbox
		"https://tube.example.com/inbox",                     // our own server
		"https://third.example.com/inbox",                    // legit
		"https://third.example.com/inbox",                    // duplicate
		"",                                                   // empty
		"https://fourth.example.com/accounts/carol/inbox",    // legit
	}

	filtered := b.filterDestinations(inboxes, signer, nil)

	if len(filtered) != 2 {
		t.Fatalf("Expected 2 destinations, got %v", filtered)
	}
	for _, inbox := range filtered {
		if inbox != "https://third.example.com/inbox" && inbox != "https://fourth.example.com/accounts/carol/inbox" {
			t.Errorf("Unexpected destination %s", inbox)
		}
	}
}

func TestFilterDestinationsSkipsBadInboxes(t *testing.T) {
	env := newTestEnv(t)
	b := NewBroadcaster(env.store, NewDeliverer(env.conf), env.jobs, env.health, env.conf)

	env.health.RecordOutcome(nil, []string{"https://flaky.example.com/inbox"})

	signer := &domain.Actor{Url: "https://other.example.com/accounts/bob", InboxUrl: "https://other.example.com/accounts/bob/inbox"}
	filtered := b.filterDestinations([]string{
		"https://flaky.example.com/inbox",
		"https://healthy.example.com/inbox",
	}, signer, nil)

	if len(filtered) != 1 || filtered[0] != "https://healthy.example.com/inbox" {
		t.Errorf("Bad inbox should be skipped, got %v", filtered)
	}
}

func TestUnicastEnqueuesJob(t *testing.T) {
	env := newTestEnv(t)
	b := NewBroadcaster(env.store, NewDeliverer(env.conf), env.jobs, env.health, env.conf)
	signer := env.createLocalChannel(t, "alice")

	activity := NewFollow(env.conf.Conf.SslDomain, signer, "https://other.example.com/accounts/bob")
	if err := b.Unicast(activity, signer, "https://other.example.com/accounts/bob/inbox"); err != nil {
		t.Fatalf("Unicast failed: %v", err)
	}

	pending, _ := env.store.ReadPendingJobs(10)
	if len(pending) != 1 || pending[0].Type != queue.JobTypeHTTPUnicast {
		t.Fatalf("Expected one unicast job, got %+v", pending)
	}

	var payload queue.BroadcastPayload
	if err := json.Unmarshal([]byte(pending[0].Payload), &payload); err != nil {
		t.Fatalf("Invalid payload: %v", err)
	}

	var parsed Activity
	if err := json.Unmarshal(payload.Activity, &parsed); err != nil {
		t.Fatalf("Payload activity should be valid JSON: %v", err)
	}
	if parsed.Type != "Follow" {
		t.Errorf("Expected Follow activity in payload, got %s", parsed.Type)
	}
}

func TestUnicastToFilteredDestinationIsDropped(t *testing.T) {
	env := newTestEnv(t)
	b := NewBroadcaster(env.store, NewDeliverer(env.conf), env.jobs, env.health, env.conf)
	signer := env.createLocalChannel(t, "alice")

	// Target on our own domain: filtered out, nothing enqueued
	activity := NewFollow(env.conf.Conf.SslDomain, signer, signer.Url)
	if err := b.Unicast(activity, signer, "https://tube.example.com/accounts/other/inbox"); err != nil {
		t.Fatalf("Unicast failed: %v", err)
	}

	pending, _ := env.store.ReadPendingJobs(10)
	if len(pending) != 0 {
		t.Errorf("Expected no jobs for a local destination, got %+v", pending)
	}
}

func TestOutboundFollowCreatesPendingEdge(t *testing.T) {
	env := newTestEnv(t)
	deliverer := NewDeliverer(env.conf)
	refresher := NewRefresher(env.store, deliverer)
	actors := NewActorResolver(env.store, deliverer, env.jobs, refresher)
	b := NewBroadcaster(env.store, deliverer, env.jobs, env.health, env.conf)
	serverActors := NewServerActorLoader(env.store, env.conf)
	outbound := NewOutbound(env.store, actors, b, serverActors, env.conf)

	target := env.createRemoteActor(t, "other.example.com", "bob")

	if err := outbound.FollowActor(context.Background(), target.Url); err != nil {
		t.Fatalf("FollowActor failed: %v", err)
	}

	server, err := serverActors.Get()
	if err != nil {
		t.Fatalf("Server actor missing: %v", err)
	}

	edge, err := env.store.ReadActorFollowByPair(server.Id, target.Id)
	if err != nil {
		t.Fatalf("Outbound follow edge missing: %v", err)
	}
	if edge.State != domain.FollowStatePending {
		t.Errorf("Outbound follow should stay pending until accepted, got %s", edge.State)
	}

	pending, _ := env.store.ReadPendingJobs(10)
	if len(pending) != 1 || pending[0].Type != queue.JobTypeHTTPUnicast {
		t.Errorf("Expected one unicast Follow job, got %+v", pending)
	}
}
