package activitypub

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deemkeen/vidodon/db"
	"github.com/deemkeen/vidodon/domain"
	"github.com/google/uuid"
)

// VideoObject is the wire form of a federated video.
type VideoObject struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Name         string `json:"name"`
	Views        int64  `json:"views"`
	AttributedTo []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"attributedTo"`
	To []string `json:"to"`
	Cc []string `json:"cc"`
}

// channelURI returns the id of the Group (channel) the video is attributed to.
func (v *VideoObject) channelURI() string {
	for _, a := range v.AttributedTo {
		if a.Type == "Group" {
			return a.ID
		}
	}
	return ""
}

// privacyFromAudience derives the privacy of a federated object from its
// addressing: the public marker in "to" means public, in "cc" unlisted.
// Private objects are never federated, so anything else is treated as
// unlisted.
func privacyFromAudience(to, cc []string) domain.VideoPrivacy {
	for _, u := range to {
		if u == PublicAudience {
			return domain.VideoPrivacyPublic
		}
	}
	return domain.VideoPrivacyUnlisted
}

// VideoResolver looks up videos in local storage and fetches unknown remote
// ones. The fetch is lightweight: it never triggers a refresh of an already
// cached video.
type VideoResolver struct {
	store     *db.Store
	deliverer *Deliverer
	actors    *ActorResolver
}

func NewVideoResolver(store *db.Store, deliverer *Deliverer, actors *ActorResolver) *VideoResolver {
	return &VideoResolver{store: store, deliverer: deliverer, actors: actors}
}

// GetOrFetchVideo returns the stored video or fetches and caches the remote
// one when the URL is unknown.
func (r *VideoResolver) GetOrFetchVideo(ctx context.Context, videoURL string) (*domain.Video, error) {
	video, err := r.store.ReadVideoByUrl(videoURL)
	if err == nil {
		return video, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	return r.FetchRemoteVideo(ctx, videoURL)
}

// FetchRemoteVideo fetches a video object from its canonical URL, resolves
// its owning channel and stores the cached copy.
func (r *VideoResolver) FetchRemoteVideo(ctx context.Context, videoURL string) (*domain.Video, error) {
	body, status, err := r.deliverer.FetchObject(ctx, videoURL)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("video fetch failed with status: %d", status)
	}

	var obj VideoObject
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("failed to parse video JSON: %w", err)
	}
	if obj.ID == "" || obj.Type != "Video" {
		return nil, fmt.Errorf("object at %s is not a video", videoURL)
	}

	channelURI := obj.channelURI()
	if channelURI == "" {
		return nil, fmt.Errorf("video %s has no associated channel", videoURL)
	}

	channel, err := r.actors.GetOrFetchActor(ctx, channelURI)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve channel of video %s: %w", videoURL, err)
	}

	video := &domain.Video{
		Id:              uuid.New(),
		Url:             obj.ID,
		Name:            obj.Name,
		ChannelActorId:  channel.Id,
		Privacy:         privacyFromAudience(obj.To, obj.Cc),
		Views:           obj.Views,
		Local:           false,
		LastRefreshedAt: time.Now(),
		CreatedAt:       time.Now(),
	}

	if err := r.store.CreateVideo(video); err != nil {
		// Lost a race against a concurrent fetch of the same video
		return r.store.ReadVideoByUrl(videoURL)
	}

	return video, nil
}
