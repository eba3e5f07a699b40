package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deemkeen/vidodon/activitypub"
	"github.com/deemkeen/vidodon/db"
	"github.com/deemkeen/vidodon/domain"
	"github.com/deemkeen/vidodon/queue"
	"github.com/deemkeen/vidodon/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func newTestServer(t *testing.T) (*Server, *db.Store, *util.AppConfig) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := db.NewStore(filepath.Join(t.TempDir(), "web.db"))
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	conf := &util.AppConfig{}
	conf.Conf.Host = "localhost"
	conf.Conf.HttpPort = 8080
	conf.Conf.SslDomain = "tube.example.com"
	conf.Conf.WithAp = true
	conf.Conf.FanoutConcurrency = 4
	conf.Conf.RequestTimeoutSec = 5

	deliverer := activitypub.NewDeliverer(conf)
	refresher := activitypub.NewRefresher(store, deliverer)
	jobs := queue.New(store)
	actors := activitypub.NewActorResolver(store, deliverer, jobs, refresher)
	videos := activitypub.NewVideoResolver(store, deliverer, actors)
	health := activitypub.NewActorFollowHealthCache()
	broadcaster := activitypub.NewBroadcaster(store, deliverer, jobs, health, conf)
	serverActors := activitypub.NewServerActorLoader(store, conf)
	processor := activitypub.NewProcessor(store, actors, videos, broadcaster, conf)
	outbound := activitypub.NewOutbound(store, actors, broadcaster, serverActors, conf)

	return NewServer(conf, store, actors, serverActors, processor, outbound), store, conf
}

func createLocalActor(t *testing.T, store *db.Store, conf *util.AppConfig, username string) *domain.Actor {
	t.Helper()
	keypair := util.GeneratePemKeypair()
	actor := &domain.Actor{
		Id:                uuid.New(),
		PreferredUsername: username,
		Domain:            conf.Conf.SslDomain,
		Url:               fmt.Sprintf("https://%s/accounts/%s", conf.Conf.SslDomain, username),
		InboxUrl:          fmt.Sprintf("https://%s/accounts/%s/inbox", conf.Conf.SslDomain, username),
		SharedInboxUrl:    fmt.Sprintf("https://%s/inbox", conf.Conf.SslDomain),
		OutboxUrl:         fmt.Sprintf("https://%s/accounts/%s/outbox", conf.Conf.SslDomain, username),
		FollowersUrl:      fmt.Sprintf("https://%s/accounts/%s/followers", conf.Conf.SslDomain, username),
		PublicKeyPem:      keypair.Public,
		PrivateKeyPem:     keypair.Private,
		Local:             true,
		LastRefreshedAt:   time.Now(),
		CreatedAt:         time.Now(),
	}
	if err := store.CreateActor(actor); err != nil {
		t.Fatalf("Failed to create actor: %v", err)
	}
	return actor
}

func TestActorEndpoint(t *testing.T) {
	server, store, conf := newTestServer(t)
	createLocalActor(t, store, conf, "alice")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/accounts/alice", nil)
	server.Router().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Type"), "application/activity+json") {
		t.Errorf("Unexpected content type: %s", w.Header().Get("Content-Type"))
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Invalid actor JSON: %v", err)
	}
	if doc["preferredUsername"] != "alice" {
		t.Errorf("Expected alice, got %v", doc["preferredUsername"])
	}
	pubKey, ok := doc["publicKey"].(map[string]interface{})
	if !ok || pubKey["publicKeyPem"] == "" {
		t.Error("Actor document should publish the public key")
	}
}

func TestActorEndpointUnknown(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/accounts/nobody", nil)
	server.Router().ServeHTTP(w, req)

	if w.Code != 404 {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestWebfingerEndpoint(t *testing.T) {
	server, store, conf := newTestServer(t)
	createLocalActor(t, store, conf, "alice")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/.well-known/webfinger?resource=acct:alice@tube.example.com", nil)
	server.Router().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "https://tube.example.com/accounts/alice") {
		t.Errorf("Webfinger should link the actor document, got %s", w.Body.String())
	}
}

func TestWebfingerRejectsForeignResource(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/.well-known/webfinger?resource=acct:alice@elsewhere.example.com", nil)
	server.Router().ServeHTTP(w, req)

	if w.Code != 404 {
		t.Errorf("Expected 404 for a foreign domain, got %d", w.Code)
	}
}

func TestParseWebfingerResource(t *testing.T) {
	tests := []struct {
		resource string
		expected string
		ok       bool
	}{
		{"acct:alice@tube.example.com", "alice", true},
		{"acct:alice", "alice", true},
		{"acct:alice@elsewhere.example.com", "", false},
		{"https://tube.example.com/accounts/alice", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseWebfingerResource(tt.resource, "tube.example.com")
		if ok != tt.ok || got != tt.expected {
			t.Errorf("ParseWebfingerResource(%q) = %q, %v; expected %q, %v", tt.resource, got, ok, tt.expected, tt.ok)
		}
	}
}

func TestInboxRejectsUnsignedRequest(t *testing.T) {
	server, store, _ := newTestServer(t)

	keypair := util.GeneratePemKeypair()
	remote := &domain.Actor{
		Id:                uuid.New(),
		PreferredUsername: "bob",
		Domain:            "other.example.com",
		Url:               "https://other.example.com/accounts/bob",
		InboxUrl:          "https://other.example.com/accounts/bob/inbox",
		PublicKeyPem:      keypair.Public,
		LastRefreshedAt:   time.Now(),
		CreatedAt:         time.Now(),
	}
	if err := store.CreateActor(remote); err != nil {
		t.Fatalf("Failed to create remote actor: %v", err)
	}

	body := `{"id":"https://other.example.com/activities/1","type":"Follow","actor":"https://other.example.com/accounts/bob","object":"x"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/inbox", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/activity+json")
	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for an unverifiable request, got %d", w.Code)
	}
}

func TestInboxRejectsBodyWithoutActor(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/inbox", strings.NewReader(`{"type":"Follow"}`))
	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a body without actor, got %d", w.Code)
	}
}

func TestServerFollowingEndpoint(t *testing.T) {
	server, store, _ := newTestServer(t)

	keypair := util.GeneratePemKeypair()
	remote := &domain.Actor{
		Id:                uuid.New(),
		PreferredUsername: "bob",
		Domain:            "other.example.com",
		Url:               "https://other.example.com/accounts/bob",
		InboxUrl:          "https://other.example.com/accounts/bob/inbox",
		PublicKeyPem:      keypair.Public,
		LastRefreshedAt:   time.Now(),
		CreatedAt:         time.Now(),
	}
	if err := store.CreateActor(remote); err != nil {
		t.Fatalf("Failed to create remote actor: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/server/following",
		strings.NewReader(`{"uri":"https://other.example.com/accounts/bob"}`))
	req.Header.Set("Content-Type", "application/json")
	server.Router().ServeHTTP(w, req)

	if w.Code != 204 {
		t.Fatalf("Expected 204, got %d: %s", w.Code, w.Body.String())
	}

	jobs, err := store.ReadPendingJobs(10)
	if err != nil {
		t.Fatalf("Failed to read jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Type != queue.JobTypeHTTPUnicast {
		t.Errorf("Expected one unicast Follow job, got %+v", jobs)
	}
}

func TestServerFollowingEndpointRejectsEmptyBody(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/server/following", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	server.Router().ServeHTTP(w, req)

	if w.Code != 400 {
		t.Errorf("Expected 400 for a missing uri, got %d", w.Code)
	}
}

func TestVideoFeed(t *testing.T) {
	server, store, conf := newTestServer(t)
	channel := createLocalActor(t, store, conf, "alice")

	video := &domain.Video{
		Id:              uuid.New(),
		Url:             fmt.Sprintf("https://%s/videos/watch/%s", conf.Conf.SslDomain, uuid.New()),
		Name:            "my first video",
		ChannelActorId:  channel.Id,
		Privacy:         domain.VideoPrivacyPublic,
		Local:           true,
		LastRefreshedAt: time.Now(),
		CreatedAt:       time.Now(),
	}
	if err := store.CreateVideo(video); err != nil {
		t.Fatalf("Failed to create video: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/feeds/videos.xml", nil)
	server.Router().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "my first video") {
		t.Error("Feed should contain the local video title")
	}
	if !strings.Contains(w.Header().Get("Content-Type"), "application/xml") {
		t.Errorf("Unexpected content type: %s", w.Header().Get("Content-Type"))
	}
}
