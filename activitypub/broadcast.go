package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"

	"github.com/deemkeen/vidodon/db"
	"github.com/deemkeen/vidodon/domain"
	"github.com/deemkeen/vidodon/queue"
	"github.com/deemkeen/vidodon/util"
)

// Broadcaster turns outgoing activities into persistent delivery jobs. It
// never talks to the network itself; the queue worker picks the jobs up and
// runs them through the Deliverer.
type Broadcaster struct {
	store     *db.Store
	deliverer *Deliverer
	jobs      *queue.Queue
	health    *ActorFollowHealthCache
	conf      *util.AppConfig
}

func NewBroadcaster(store *db.Store, deliverer *Deliverer, jobs *queue.Queue, health *ActorFollowHealthCache, conf *util.AppConfig) *Broadcaster {
	return &Broadcaster{
		store:     store,
		deliverer: deliverer,
		jobs:      jobs,
		health:    health,
		conf:      conf,
	}
}

// RegisterHandlers binds the delivery job kinds to this broadcaster.
func (b *Broadcaster) RegisterHandlers() {
	b.jobs.Register(queue.JobTypeHTTPUnicast, b.handleUnicastJob)
	b.jobs.Register(queue.JobTypeHTTPBroadcast, b.handleBroadcastJob)
	b.jobs.Register(queue.JobTypeHTTPBroadcastParallel, b.handleBroadcastParallelJob)
}

// filterDestinations drops destinations we must never deliver to: our own
// inboxes, the signer's inboxes, inboxes flagged bad by the last broadcast
// run, and any explicitly excluded URLs.
func (b *Broadcaster) filterDestinations(inboxUrls []string, signer *domain.Actor, excluded []string) []string {
	skip := make(map[string]struct{}, len(excluded)+2)
	for _, u := range excluded {
		skip[u] = struct{}{}
	}
	skip[signer.InboxUrl] = struct{}{}
	if signer.SharedInboxUrl != "" {
		skip[signer.SharedInboxUrl] = struct{}{}
	}

	seen := make(map[string]struct{}, len(inboxUrls))
	filtered := make([]string, 0, len(inboxUrls))
	for _, inbox := range inboxUrls {
		if inbox == "" {
			continue
		}
		if _, ok := skip[inbox]; ok {
			continue
		}
		if _, ok := seen[inbox]; ok {
			continue
		}
		if parsed, err := url.Parse(inbox); err == nil && parsed.Host == b.conf.Conf.SslDomain {
			continue
		}
		if b.health.IsBadInbox(inbox) {
			log.Printf("Broadcaster: Skipping inbox %s flagged bad by the last run", inbox)
			continue
		}
		seen[inbox] = struct{}{}
		filtered = append(filtered, inbox)
	}
	return filtered
}

func (b *Broadcaster) enqueue(jobType string, activity *Activity, signer *domain.Actor, inboxUrls []string) error {
	if len(inboxUrls) == 0 {
		return nil
	}

	body, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity %s: %w", activity.ID, err)
	}

	return b.jobs.Enqueue(jobType, queue.BroadcastPayload{
		Activity:             body,
		SigningActorUrl:      signer.Url,
		DestinationInboxUrls: inboxUrls,
	})
}

// Unicast schedules delivery of one activity to one inbox. A failed unicast
// retries with backoff until the queue gives up.
func (b *Broadcaster) Unicast(activity *Activity, signer *domain.Actor, inboxUrl string) error {
	destinations := b.filterDestinations([]string{inboxUrl}, signer, nil)
	return b.enqueue(queue.JobTypeHTTPUnicast, activity, signer, destinations)
}

// Broadcast schedules ordered delivery of one activity to a fixed set of
// inboxes.
func (b *Broadcaster) Broadcast(activity *Activity, signer *domain.Actor, inboxUrls []string, excluded []string) error {
	destinations := b.filterDestinations(inboxUrls, signer, excluded)
	return b.enqueue(queue.JobTypeHTTPBroadcast, activity, signer, destinations)
}

// BroadcastToFollowers fans an activity out to the followers of the given
// actors with parallel delivery. excluded lists inbox URLs that must not
// receive the activity, typically the inbox it arrived from.
func (b *Broadcaster) BroadcastToFollowers(activity *Activity, signer *domain.Actor, followersOf []*domain.Actor, excluded []string) error {
	inboxUrls, err := b.collectFollowerInboxes(followersOf)
	if err != nil {
		return err
	}

	destinations := b.filterDestinations(inboxUrls, signer, excluded)
	return b.enqueue(queue.JobTypeHTTPBroadcastParallel, activity, signer, destinations)
}

// ForwardActivity re-sends a received activity byte-for-byte to the followers
// of the given actors. The original signature only covers the sender's
// request, so the forwarded copies are signed by the forwarding signer.
func (b *Broadcaster) ForwardActivity(rawActivity json.RawMessage, signer *domain.Actor, followersOf []*domain.Actor, excluded []string) error {
	inboxUrls, err := b.collectFollowerInboxes(followersOf)
	if err != nil {
		return err
	}

	destinations := b.filterDestinations(inboxUrls, signer, excluded)
	if len(destinations) == 0 {
		return nil
	}

	return b.jobs.Enqueue(queue.JobTypeHTTPBroadcastParallel, queue.BroadcastPayload{
		Activity:             rawActivity,
		SigningActorUrl:      signer.Url,
		DestinationInboxUrls: destinations,
	})
}

func (b *Broadcaster) collectFollowerInboxes(actors []*domain.Actor) ([]string, error) {
	seen := make(map[string]struct{})
	var inboxUrls []string
	for _, actor := range actors {
		urls, err := b.store.ReadFollowerInboxUrls(actor.Id)
		if err != nil {
			return nil, fmt.Errorf("failed to read followers of %s: %w", actor.Url, err)
		}
		for _, u := range urls {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			inboxUrls = append(inboxUrls, u)
		}
	}
	return inboxUrls, nil
}

// loadPayload parses a delivery payload and reloads the signing actor, whose
// key material must be current at execution time.
func (b *Broadcaster) loadPayload(raw json.RawMessage) (*queue.BroadcastPayload, *domain.Actor, error) {
	var payload queue.BroadcastPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, fmt.Errorf("invalid broadcast payload: %w", err)
	}

	signer, err := b.store.ReadActorByUrl(payload.SigningActorUrl)
	if err != nil {
		return nil, nil, fmt.Errorf("signing actor %s not found: %w", payload.SigningActorUrl, err)
	}

	return &payload, signer, nil
}

func (b *Broadcaster) handleUnicastJob(ctx context.Context, raw json.RawMessage) error {
	payload, signer, err := b.loadPayload(raw)
	if err != nil {
		return err
	}

	outcome, err := b.deliverer.DeliverSequential(ctx, payload.Activity, signer, payload.DestinationInboxUrls)
	if err != nil {
		return err
	}

	b.health.RecordOutcome(outcome.Good, outcome.Bad)
	if len(outcome.Bad) > 0 {
		return fmt.Errorf("unicast to %s failed", outcome.Bad[0])
	}
	return nil
}

func (b *Broadcaster) handleBroadcastJob(ctx context.Context, raw json.RawMessage) error {
	payload, signer, err := b.loadPayload(raw)
	if err != nil {
		return err
	}

	outcome, err := b.deliverer.DeliverSequential(ctx, payload.Activity, signer, payload.DestinationInboxUrls)
	if err != nil {
		return err
	}

	b.health.RecordOutcome(outcome.Good, outcome.Bad)
	return nil
}

func (b *Broadcaster) handleBroadcastParallelJob(ctx context.Context, raw json.RawMessage) error {
	payload, signer, err := b.loadPayload(raw)
	if err != nil {
		return err
	}

	outcome, err := b.deliverer.DeliverParallel(ctx, payload.Activity, signer, payload.DestinationInboxUrls)
	if err != nil {
		return err
	}

	b.health.RecordOutcome(outcome.Good, outcome.Bad)
	return nil
}
