package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/deemkeen/vidodon/activitypub"
	"github.com/deemkeen/vidodon/domain"
)

// handleInbox authenticates and processes one inbound activity. The HTTP
// signature must verify against the claimed actor's published key and the key
// owner must be the claimed actor; a verification failure against a cached
// key triggers one re-fetch, covering remote key rotation.
func (s *Server) handleInbox(req *http.Request, body []byte) (int, error) {
	var probe struct {
		Actor string `json:"actor"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.Actor == "" {
		return http.StatusBadRequest, fmt.Errorf("activity has no actor")
	}

	ctx := req.Context()
	sender, err := s.actors.GetOrFetchActor(ctx, probe.Actor)
	if err != nil {
		return http.StatusUnauthorized, fmt.Errorf("unknown actor %s: %w", probe.Actor, err)
	}

	if err := s.verifySender(ctx, req, sender); err != nil {
		return http.StatusUnauthorized, err
	}

	if err := s.processor.Process(ctx, body, sender); err != nil {
		return http.StatusInternalServerError, err
	}
	return http.StatusAccepted, nil
}

func (s *Server) verifySender(ctx context.Context, req *http.Request, sender *domain.Actor) error {
	if req.Header.Get("Signature") == "" && req.Header.Get("Authorization") == "" {
		return fmt.Errorf("request from %s carries no signature", sender.Url)
	}

	ownerURI, err := activitypub.VerifyRequest(req, sender.PublicKeyPem)
	if err != nil {
		log.Printf("Inbox: Signature of %s failed against cached key, refetching: %v", sender.Url, err)
		refreshed, fetchErr := s.actors.FetchRemoteActor(ctx, sender.Url)
		if fetchErr != nil {
			return fmt.Errorf("signature verification failed: %w", err)
		}
		*sender = *refreshed
		ownerURI, err = activitypub.VerifyRequest(req, sender.PublicKeyPem)
		if err != nil {
			return fmt.Errorf("signature verification failed: %w", err)
		}
	}

	if ownerURI != sender.Url {
		return fmt.Errorf("signature key owner %s does not match actor %s", ownerURI, sender.Url)
	}
	return nil
}
