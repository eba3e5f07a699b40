package activitypub

import (
	"sync"

	"github.com/deemkeen/vidodon/domain"
)

// ActorFollowHealthCache is the process-wide scoreboard of remote inbox
// reliability. Delivery jobs record outcomes here and the follow scores
// scheduler periodically drains the pending state into persistent score
// updates. Pending deltas live in memory only and are lost on restart.
type ActorFollowHealthCache struct {
	mu sync.Mutex

	// pending score deltas per inbox URL, drained by the scheduler
	pendingScores map[string]int

	// inboxes reported bad by the most recent broadcast run. Replaced
	// wholesale on every RecordOutcome call.
	badInboxes map[string]struct{}

	// server-granularity hints, keyed by server domain
	pendingGoodServers map[string]struct{}
	pendingBadServers  map[string]struct{}
}

func NewActorFollowHealthCache() *ActorFollowHealthCache {
	return &ActorFollowHealthCache{
		pendingScores:      make(map[string]int),
		badInboxes:         make(map[string]struct{}),
		pendingGoodServers: make(map[string]struct{}),
		pendingBadServers:  make(map[string]struct{}),
	}
}

// RecordOutcome accumulates score deltas for the given inboxes and replaces
// the current bad set with exactly the inboxes reported bad in this call.
func (c *ActorFollowHealthCache) RecordOutcome(goodInboxes, badInboxes []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, inbox := range goodInboxes {
		c.pendingScores[inbox] += domain.FollowScoreBonus
	}
	for _, inbox := range badInboxes {
		c.pendingScores[inbox] += domain.FollowScorePenalty
	}

	c.badInboxes = make(map[string]struct{}, len(badInboxes))
	for _, inbox := range badInboxes {
		c.badInboxes[inbox] = struct{}{}
	}
}

// IsBadInbox reports whether the inbox failed in the latest broadcast run.
func (c *ActorFollowHealthCache) IsBadInbox(inboxUrl string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.badInboxes[inboxUrl]
	return ok
}

// MarkServerGood queues a server-wide score bonus for the next flush.
func (c *ActorFollowHealthCache) MarkServerGood(serverDomain string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingGoodServers[serverDomain] = struct{}{}
}

// MarkServerBad queues a server-wide score penalty for the next flush.
func (c *ActorFollowHealthCache) MarkServerBad(serverDomain string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingBadServers[serverDomain] = struct{}{}
}

// DrainPendingScores atomically returns and clears the pending per-inbox
// deltas, so each delta is flushed exactly once.
func (c *ActorFollowHealthCache) DrainPendingScores() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	drained := c.pendingScores
	c.pendingScores = make(map[string]int)
	return drained
}

// DrainGoodServers atomically returns and clears the pending good-server set.
func (c *ActorFollowHealthCache) DrainGoodServers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	drained := make([]string, 0, len(c.pendingGoodServers))
	for s := range c.pendingGoodServers {
		drained = append(drained, s)
	}
	c.pendingGoodServers = make(map[string]struct{})
	return drained
}

// DrainBadServers atomically returns and clears the pending bad-server set.
func (c *ActorFollowHealthCache) DrainBadServers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	drained := make([]string, 0, len(c.pendingBadServers))
	for s := range c.pendingBadServers {
		drained = append(drained, s)
	}
	c.pendingBadServers = make(map[string]struct{})
	return drained
}
