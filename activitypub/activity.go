package activitypub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/deemkeen/vidodon/domain"
	"github.com/google/uuid"
)

const (
	// PublicAudience is the well-known collection marking an activity as
	// publicly visible.
	PublicAudience = "https://www.w3.org/ns/activitystreams#Public"

	ActivityStreamsContext = "https://www.w3.org/ns/activitystreams"
)

// Activity is the wire form of an ActivityPub activity. The Object field
// stays raw because it can be a bare URI string or an embedded object.
type Activity struct {
	Context interface{}     `json:"@context,omitempty"`
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Actor   string          `json:"actor"`
	To      []string        `json:"to,omitempty"`
	Cc      []string        `json:"cc,omitempty"`
	Object  json.RawMessage `json:"object,omitempty"`
	Expires string          `json:"expires,omitempty"`
	Result  *ViewerResult   `json:"result,omitempty"`
}

// ViewerResult carries the aggregated watch counter of a Viewer activity.
type ViewerResult struct {
	Type                 string `json:"type"`
	UserInteractionCount int64  `json:"userInteractionCount"`
}

// ObjectURI extracts the object reference: either the bare string or the
// embedded object's id.
func (a *Activity) ObjectURI() string {
	if len(a.Object) == 0 {
		return ""
	}

	var uri string
	if err := json.Unmarshal(a.Object, &uri); err == nil {
		return uri
	}

	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(a.Object, &obj); err == nil {
		return obj.ID
	}
	return ""
}

// ObjectActivity parses an embedded activity object (e.g. the object of an
// Undo).
func (a *Activity) ObjectActivity() (*Activity, error) {
	if len(a.Object) == 0 {
		return nil, fmt.Errorf("activity %s has no object", a.ID)
	}
	var inner Activity
	if err := json.Unmarshal(a.Object, &inner); err != nil {
		return nil, fmt.Errorf("failed to parse embedded object of %s: %w", a.ID, err)
	}
	return &inner, nil
}

func mustMarshalRaw(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal: %v", err))
	}
	return b
}

func newActivityID(sslDomain string) string {
	return fmt.Sprintf("https://%s/activities/%s", sslDomain, uuid.New().String())
}

// NewAnnounce builds an Announce of the given object for the given audience.
func NewAnnounce(sslDomain string, byActor *domain.Actor, objectUrl string, audience Audience) *Activity {
	return &Activity{
		Context: ActivityStreamsContext,
		ID:      newActivityID(sslDomain),
		Type:    "Announce",
		Actor:   byActor.Url,
		To:      audience.To,
		Cc:      audience.Cc,
		Object:  mustMarshalRaw(objectUrl),
	}
}

// NewRate builds a Like or Dislike of a video.
func NewRate(sslDomain string, rateType domain.RateType, byActor *domain.Actor, videoUrl string, audience Audience) *Activity {
	activityType := "Like"
	if rateType == domain.RateTypeDislike {
		activityType = "Dislike"
	}
	return &Activity{
		Context: ActivityStreamsContext,
		ID:      newActivityID(sslDomain),
		Type:    activityType,
		Actor:   byActor.Url,
		To:      audience.To,
		Cc:      audience.Cc,
		Object:  mustMarshalRaw(videoUrl),
	}
}

// NewView builds a fire-and-forget View ping for a video.
func NewView(sslDomain string, byActor *domain.Actor, videoUrl string) *Activity {
	return &Activity{
		Context: ActivityStreamsContext,
		ID:      newActivityID(sslDomain),
		Type:    "View",
		Actor:   byActor.Url,
		To:      []string{PublicAudience},
		Object:  mustMarshalRaw(videoUrl),
	}
}

// NewViewer builds an aggregated Viewer activity with a watch counter and an
// expiry after which the viewer may be counted again.
func NewViewer(sslDomain string, byActor *domain.Actor, videoUrl string, count int64, expires time.Time) *Activity {
	return &Activity{
		Context: ActivityStreamsContext,
		ID:      newActivityID(sslDomain),
		Type:    "View",
		Actor:   byActor.Url,
		To:      []string{PublicAudience},
		Object:  mustMarshalRaw(videoUrl),
		Expires: expires.UTC().Format(time.RFC3339),
		Result: &ViewerResult{
			Type:                 "InteractionCounter",
			UserInteractionCount: count,
		},
	}
}

// NewFollow builds an outbound Follow request.
func NewFollow(sslDomain string, byActor *domain.Actor, targetActorUrl string) *Activity {
	return &Activity{
		Context: ActivityStreamsContext,
		ID:      newActivityID(sslDomain),
		Type:    "Follow",
		Actor:   byActor.Url,
		Object:  mustMarshalRaw(targetActorUrl),
	}
}

// NewUndoFollow builds the Undo retracting a previously sent Follow.
func NewUndoFollow(sslDomain string, byActor *domain.Actor, followID, targetActorUrl string) *Activity {
	return &Activity{
		Context: ActivityStreamsContext,
		ID:      newActivityID(sslDomain),
		Type:    "Undo",
		Actor:   byActor.Url,
		Object: mustMarshalRaw(map[string]interface{}{
			"id":     followID,
			"type":   "Follow",
			"actor":  byActor.Url,
			"object": targetActorUrl,
		}),
	}
}

// NewAccept builds the Accept reply to an inbound Follow.
func NewAccept(sslDomain string, byActor *domain.Actor, follow *Activity) *Activity {
	return &Activity{
		Context: ActivityStreamsContext,
		ID:      newActivityID(sslDomain),
		Type:    "Accept",
		Actor:   byActor.Url,
		Object: mustMarshalRaw(map[string]interface{}{
			"id":     follow.ID,
			"type":   "Follow",
			"actor":  follow.Actor,
			"object": byActor.Url,
		}),
	}
}

// NewCommentCreate builds the Create activity (re)federating a comment.
func NewCommentCreate(sslDomain string, byActor *domain.Actor, comment *domain.VideoComment, videoUrl string, audience Audience) *Activity {
	return &Activity{
		Context: ActivityStreamsContext,
		ID:      newActivityID(sslDomain),
		Type:    "Create",
		Actor:   byActor.Url,
		To:      audience.To,
		Cc:      audience.Cc,
		Object: mustMarshalRaw(map[string]interface{}{
			"id":           comment.Url,
			"type":         "Note",
			"attributedTo": byActor.Url,
			"content":      comment.Text,
			"inReplyTo":    videoUrl,
			"published":    comment.CreatedAt.UTC().Format(time.RFC3339),
		}),
	}
}
