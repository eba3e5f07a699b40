package activitypub

import (
	"testing"

	"github.com/deemkeen/vidodon/domain"
)

func TestRecordOutcomeAccumulatesScores(t *testing.T) {
	c := NewActorFollowHealthCache()

	c.RecordOutcome([]string{"https://a.example.com/inbox"}, []string{"https://b.example.com/inbox"})
	c.RecordOutcome([]string{"https://a.example.com/inbox"}, nil)

	pending := c.DrainPendingScores()
	if pending["https://a.example.com/inbox"] != 2*domain.FollowScoreBonus {
		t.Errorf("Expected accumulated bonus %d, got %d", 2*domain.FollowScoreBonus, pending["https://a.example.com/inbox"])
	}
	if pending["https://b.example.com/inbox"] != domain.FollowScorePenalty {
		t.Errorf("Expected penalty %d, got %d", domain.FollowScorePenalty, pending["https://b.example.com/inbox"])
	}
}

func TestBadInboxSetIsReplacedWholesale(t *testing.T) {
	c := NewActorFollowHealthCache()

	c.RecordOutcome(nil, []string{"https://b.example.com/inbox"})
	if !c.IsBadInbox("https://b.example.com/inbox") {
		t.Error("Inbox should be bad right after a failed outcome")
	}

	// Next run reports a different inbox bad; the old one is forgiven
	c.RecordOutcome(nil, []string{"https://c.example.com/inbox"})
	if c.IsBadInbox("https://b.example.com/inbox") {
		t.Error("Old bad inbox should be cleared by the next outcome")
	}
	if !c.IsBadInbox("https://c.example.com/inbox") {
		t.Error("New bad inbox should be flagged")
	}
}

func TestDrainPendingScoresClears(t *testing.T) {
	c := NewActorFollowHealthCache()

	c.RecordOutcome([]string{"https://a.example.com/inbox"}, nil)

	first := c.DrainPendingScores()
	if len(first) != 1 {
		t.Fatalf("Expected 1 pending delta, got %d", len(first))
	}

	second := c.DrainPendingScores()
	if len(second) != 0 {
		t.Errorf("Second drain should be empty, got %d entries", len(second))
	}
}

func TestDrainServerSets(t *testing.T) {
	c := NewActorFollowHealthCache()

	c.MarkServerGood("good.example.com")
	c.MarkServerGood("good.example.com")
	c.MarkServerBad("bad.example.com")

	good := c.DrainGoodServers()
	if len(good) != 1 || good[0] != "good.example.com" {
		t.Errorf("Expected one good server, got %v", good)
	}

	bad := c.DrainBadServers()
	if len(bad) != 1 || bad[0] != "bad.example.com" {
		t.Errorf("Expected one bad server, got %v", bad)
	}

	if len(c.DrainGoodServers()) != 0 || len(c.DrainBadServers()) != 0 {
		t.Error("Second drain should return empty sets")
	}
}
