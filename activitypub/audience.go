package activitypub

import (
	"fmt"

	"github.com/deemkeen/vidodon/domain"
)

// Audience is the to/cc recipient pair of an outgoing activity.
type Audience struct {
	To []string
	Cc []string
}

// BuildAudience derives the recipient lists for an object owned by sender.
//
// Public objects address the public collection and carry the sender's
// followers in cc. Unlisted objects are discoverable by direct reference
// only: the public marker moves to cc so followers collections never
// enumerate them. Asking for an audience of a private object is a caller
// bug, not a runtime condition, and panics.
func BuildAudience(sender *domain.Actor, privacy domain.VideoPrivacy) Audience {
	switch privacy {
	case domain.VideoPrivacyPublic:
		return Audience{
			To: []string{PublicAudience},
			Cc: []string{sender.FollowersUrl},
		}
	case domain.VideoPrivacyUnlisted:
		return Audience{
			To: []string{},
			Cc: []string{PublicAudience},
		}
	default:
		panic(fmt.Sprintf("cannot build audience for %s object", privacy))
	}
}

// BuildAudienceFromActors derives a public audience whose cc is the union of
// the followers collections of several actors, used when an activity
// concerns more than one actor (e.g. a video's channel and its announcers).
func BuildAudienceFromActors(actors []*domain.Actor) Audience {
	seen := make(map[string]struct{})
	cc := make([]string, 0, len(actors))
	for _, a := range actors {
		if a.FollowersUrl == "" {
			continue
		}
		if _, ok := seen[a.FollowersUrl]; ok {
			continue
		}
		seen[a.FollowersUrl] = struct{}{}
		cc = append(cc, a.FollowersUrl)
	}
	return Audience{
		To: []string{PublicAudience},
		Cc: cc,
	}
}
