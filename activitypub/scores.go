package activitypub

import (
	"context"
	"log"
	"time"

	"github.com/deemkeen/vidodon/db"
	"github.com/deemkeen/vidodon/domain"
)

// ScoreFlushInterval is how often pending health outcomes are persisted and
// dead follow edges swept.
const ScoreFlushInterval = time.Hour

// FollowScoreScheduler periodically drains the health cache into persistent
// follow score updates and removes edges whose score decayed to zero.
type FollowScoreScheduler struct {
	store    *db.Store
	health   *ActorFollowHealthCache
	interval time.Duration
}

func NewFollowScoreScheduler(store *db.Store, health *ActorFollowHealthCache) *FollowScoreScheduler {
	return &FollowScoreScheduler{
		store:    store,
		health:   health,
		interval: ScoreFlushInterval,
	}
}

// Start runs the flush loop until the context is cancelled.
func (s *FollowScoreScheduler) Start(ctx context.Context) {
	log.Println("FollowScores: starting scheduler...")

	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Flush()
			case <-ctx.Done():
				log.Println("FollowScores: stopping scheduler")
				return
			}
		}
	}()
}

// Flush persists all pending score deltas and sweeps dead follows. Each
// drained delta is applied exactly once; a storage error loses that delta
// rather than double-applying it on the next tick.
func (s *FollowScoreScheduler) Flush() {
	pending := s.health.DrainPendingScores()
	for inboxUrl, delta := range pending {
		if err := s.store.AddScoreToInbox(inboxUrl, delta); err != nil {
			log.Printf("FollowScores: Failed to apply score %+d to inbox %s: %v", delta, inboxUrl, err)
		}
	}

	for _, serverDomain := range s.health.DrainGoodServers() {
		if err := s.store.AddScoreToServer(serverDomain, domain.FollowScoreBonus); err != nil {
			log.Printf("FollowScores: Failed to reward server %s: %v", serverDomain, err)
		}
	}
	for _, serverDomain := range s.health.DrainBadServers() {
		if err := s.store.AddScoreToServer(serverDomain, domain.FollowScorePenalty); err != nil {
			log.Printf("FollowScores: Failed to penalize server %s: %v", serverDomain, err)
		}
	}

	removed, err := s.store.RemoveBadActorFollows()
	if err != nil {
		log.Printf("FollowScores: Failed to sweep dead follows: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("FollowScores: Removed %d follows with exhausted scores", removed)
	}
}
