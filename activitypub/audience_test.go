package activitypub

import (
	"testing"

	"github.com/deemkeen/vidodon/domain"
)

func testActor(followersUrl string) *domain.Actor {
	return &domain.Actor{
		Url:          "https://tube.example.com/accounts/alice",
		FollowersUrl: followersUrl,
	}
}

func TestBuildAudiencePublic(t *testing.T) {
	sender := testActor("https://tube.example.com/accounts/alice/followers")

	audience := BuildAudience(sender, domain.VideoPrivacyPublic)

	if len(audience.To) != 1 || audience.To[0] != PublicAudience {
		t.Errorf("Expected public marker in to, got %v", audience.To)
	}
	if len(audience.Cc) != 1 || audience.Cc[0] != sender.FollowersUrl {
		t.Errorf("Expected followers URL in cc, got %v", audience.Cc)
	}
}

func TestBuildAudienceUnlisted(t *testing.T) {
	sender := testActor("https://tube.example.com/accounts/alice/followers")

	audience := BuildAudience(sender, domain.VideoPrivacyUnlisted)

	if len(audience.To) != 0 {
		t.Errorf("Expected empty to for unlisted, got %v", audience.To)
	}
	if len(audience.Cc) != 1 || audience.Cc[0] != PublicAudience {
		t.Errorf("Expected public marker in cc, got %v", audience.Cc)
	}
}

func TestBuildAudiencePrivatePanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for private video audience")
		}
	}()

	BuildAudience(testActor(""), domain.VideoPrivacyPrivate)
}

func TestBuildAudienceFromActors(t *testing.T) {
	actors := []*domain.Actor{
		{FollowersUrl: "https://a.example.com/accounts/x/followers"},
		{FollowersUrl: "https://b.example.com/accounts/y/followers"},
		{FollowersUrl: "https://a.example.com/accounts/x/followers"},
		{FollowersUrl: ""},
	}

	audience := BuildAudienceFromActors(actors)

	if len(audience.To) != 1 || audience.To[0] != PublicAudience {
		t.Errorf("Expected public marker in to, got %v", audience.To)
	}
	if len(audience.Cc) != 2 {
		t.Errorf("Expected 2 deduped followers URLs, got %v", audience.Cc)
	}
}
