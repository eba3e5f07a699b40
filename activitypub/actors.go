package activitypub

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/deemkeen/vidodon/db"
	"github.com/deemkeen/vidodon/domain"
	"github.com/deemkeen/vidodon/queue"
	"github.com/deemkeen/vidodon/util"
	"github.com/google/uuid"
)

// ServerActorName is the preferred username of the instance actor that signs
// server-level activities (views, instance announces).
const ServerActorName = "vidodon"

// ActorResponse represents the JSON structure of an ActivityPub actor
type ActorResponse struct {
	Context           interface{} `json:"@context"`
	ID                string      `json:"id"`
	Type              string      `json:"type"`
	PreferredUsername string      `json:"preferredUsername"`
	Inbox             string      `json:"inbox"`
	Outbox            string      `json:"outbox"`
	Followers         string      `json:"followers"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// actorFromResponse converts a fetched actor document into the cached form.
func actorFromResponse(resp *ActorResponse) (*domain.Actor, error) {
	if resp.ID == "" || resp.Inbox == "" || resp.PublicKey.PublicKeyPem == "" {
		return nil, fmt.Errorf("actor missing required fields")
	}

	domainName, err := extractDomain(resp.ID)
	if err != nil {
		return nil, err
	}

	return &domain.Actor{
		Id:                uuid.New(),
		PreferredUsername: resp.PreferredUsername,
		Domain:            domainName,
		Url:               resp.ID,
		InboxUrl:          resp.Inbox,
		SharedInboxUrl:    resp.Endpoints.SharedInbox,
		OutboxUrl:         resp.Outbox,
		FollowersUrl:      resp.Followers,
		PublicKeyPem:      resp.PublicKey.PublicKeyPem,
		Local:             false,
		LastRefreshedAt:   time.Now(),
		CreatedAt:         time.Now(),
	}, nil
}

// ActorResolver looks up actors in the local cache and fetches unknown ones
// from their canonical URL. Access to a stale cached actor schedules a
// refresh job instead of blocking the caller.
type ActorResolver struct {
	store     *db.Store
	deliverer *Deliverer
	jobs      *queue.Queue
	refresher *Refresher
}

func NewActorResolver(store *db.Store, deliverer *Deliverer, jobs *queue.Queue, refresher *Refresher) *ActorResolver {
	return &ActorResolver{
		store:     store,
		deliverer: deliverer,
		jobs:      jobs,
		refresher: refresher,
	}
}

// GetOrFetchActor returns the cached actor or fetches it when unknown.
func (r *ActorResolver) GetOrFetchActor(ctx context.Context, actorURI string) (*domain.Actor, error) {
	cached, err := r.store.ReadActorByUrl(actorURI)
	if err == nil {
		if r.refresher.IsOutdated(cached.LastRefreshedAt) {
			if err := r.jobs.Enqueue(queue.JobTypeRefresher, queue.RefreshPayload{ObjectType: "actor", Url: actorURI}); err != nil {
				log.Printf("Actors: Failed to schedule refresh of %s: %v", actorURI, err)
			}
		}
		return cached, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	return r.FetchRemoteActor(ctx, actorURI)
}

// FetchRemoteActor fetches an actor from a remote server and stores it in
// the cache.
func (r *ActorResolver) FetchRemoteActor(ctx context.Context, actorURI string) (*domain.Actor, error) {
	body, status, err := r.deliverer.FetchObject(ctx, actorURI)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("actor fetch failed with status: %d", status)
	}

	var resp ActorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse actor JSON: %w", err)
	}

	actor, err := actorFromResponse(&resp)
	if err != nil {
		return nil, err
	}

	if err := r.store.CreateActor(actor); err != nil {
		// Already cached concurrently - merge instead
		actor.LastRefreshedAt = time.Now()
		if err := r.store.UpdateActor(actor); err != nil {
			return nil, fmt.Errorf("failed to store remote actor: %w", err)
		}
		return r.store.ReadActorByUrl(actorURI)
	}

	return actor, nil
}

// extractDomain extracts the domain from an actor URI
// Example: "https://tube.example.com/accounts/alice" -> "tube.example.com"
func extractDomain(actorURI string) (string, error) {
	parsed, err := url.Parse(actorURI)
	if err != nil {
		return "", fmt.Errorf("invalid actor URI: %w", err)
	}

	return parsed.Host, nil
}

// ServerActorLoader memoizes the instance actor behind an explicit loader.
// Invalidate forces the next Get to reload from storage, which tests and the
// key-rotation path rely on.
type ServerActorLoader struct {
	store *db.Store
	conf  *util.AppConfig

	mu     sync.Mutex
	cached *domain.Actor
}

func NewServerActorLoader(store *db.Store, conf *util.AppConfig) *ServerActorLoader {
	return &ServerActorLoader{store: store, conf: conf}
}

// Get returns the instance actor, creating it on first use.
func (l *ServerActorLoader) Get() (*domain.Actor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached != nil {
		return l.cached, nil
	}

	actor, err := l.store.ReadLocalActorByUsername(ServerActorName)
	if err == sql.ErrNoRows {
		actor, err = l.createServerActor()
	}
	if err != nil {
		return nil, err
	}

	l.cached = actor
	return actor, nil
}

// Invalidate drops the memoized actor so the next Get reloads it.
func (l *ServerActorLoader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cached = nil
}

func (l *ServerActorLoader) createServerActor() (*domain.Actor, error) {
	sslDomain := l.conf.Conf.SslDomain
	keypair := util.GeneratePemKeypair()

	actor := &domain.Actor{
		Id:                uuid.New(),
		PreferredUsername: ServerActorName,
		Domain:            sslDomain,
		Url:               fmt.Sprintf("https://%s/accounts/%s", sslDomain, ServerActorName),
		InboxUrl:          fmt.Sprintf("https://%s/accounts/%s/inbox", sslDomain, ServerActorName),
		SharedInboxUrl:    fmt.Sprintf("https://%s/inbox", sslDomain),
		OutboxUrl:         fmt.Sprintf("https://%s/accounts/%s/outbox", sslDomain, ServerActorName),
		FollowersUrl:      fmt.Sprintf("https://%s/accounts/%s/followers", sslDomain, ServerActorName),
		PublicKeyPem:      keypair.Public,
		PrivateKeyPem:     keypair.Private,
		Local:             true,
		LastRefreshedAt:   time.Now(),
		CreatedAt:         time.Now(),
	}

	if err := l.store.CreateActor(actor); err != nil {
		return nil, fmt.Errorf("failed to create server actor: %w", err)
	}

	log.Printf("Actors: Created server actor %s", actor.Url)
	return actor, nil
}
