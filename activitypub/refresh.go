package activitypub

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/deemkeen/vidodon/db"
	"github.com/deemkeen/vidodon/queue"
)

// RefreshInterval is how long a cached remote object stays fresh before a
// lookup schedules a re-fetch.
const RefreshInterval = 48 * time.Hour

// PlaylistObject is the wire form of a federated playlist.
type PlaylistObject struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// Refresher re-fetches stale cached copies of remote objects. Refreshes run
// as queue jobs so a lookup that notices staleness never blocks on a remote
// server.
type Refresher struct {
	store     *db.Store
	deliverer *Deliverer
	ttl       time.Duration
}

func NewRefresher(store *db.Store, deliverer *Deliverer) *Refresher {
	return &Refresher{
		store:     store,
		deliverer: deliverer,
		ttl:       RefreshInterval,
	}
}

// IsOutdated reports whether a cached copy with the given freshness timestamp
// is due for a refresh.
func (r *Refresher) IsOutdated(lastRefreshedAt time.Time) bool {
	return time.Since(lastRefreshedAt) > r.ttl
}

// HandleRefreshJob is the queue handler for refresh jobs.
func (r *Refresher) HandleRefreshJob(ctx context.Context, payload json.RawMessage) error {
	var p queue.RefreshPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid refresh payload: %w", err)
	}

	switch p.ObjectType {
	case "video":
		return r.RefreshVideo(ctx, p.Url)
	case "actor":
		return r.RefreshActor(ctx, p.Url)
	case "video-playlist":
		return r.RefreshPlaylist(ctx, p.Url)
	default:
		return fmt.Errorf("unknown refresh object type: %s", p.ObjectType)
	}
}

// RefreshVideo re-fetches a cached remote video. A 404 or 410 removes the
// local copy; any other failure bumps the freshness timestamp so the next
// lookup does not immediately re-schedule the same fetch.
func (r *Refresher) RefreshVideo(ctx context.Context, videoURL string) error {
	video, err := r.store.ReadVideoByUrl(videoURL)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	if video.Local {
		return nil
	}

	body, status, err := r.deliverer.FetchObject(ctx, videoURL)
	if err != nil {
		log.Printf("Refresher: Failed to fetch video %s: %v", videoURL, err)
		return r.store.UpdateVideoRefreshedAt(videoURL, time.Now())
	}

	if status == 404 || status == 410 {
		log.Printf("Refresher: Video %s is gone, removing local copy", videoURL)
		return r.store.DeleteVideoByUrl(videoURL)
	}
	if status != 200 {
		return r.store.UpdateVideoRefreshedAt(videoURL, time.Now())
	}

	var obj VideoObject
	if err := json.Unmarshal(body, &obj); err != nil || obj.ID == "" {
		log.Printf("Refresher: Unparseable video document at %s", videoURL)
		return r.store.UpdateVideoRefreshedAt(videoURL, time.Now())
	}

	video.Name = obj.Name
	video.Privacy = privacyFromAudience(obj.To, obj.Cc)
	video.Views = obj.Views
	video.LastRefreshedAt = time.Now()
	return r.store.UpdateVideoFromRemote(video)
}

// RefreshActor re-fetches a cached remote actor, picking up renamed inboxes
// and rotated keys.
func (r *Refresher) RefreshActor(ctx context.Context, actorURL string) error {
	actor, err := r.store.ReadActorByUrl(actorURL)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	if actor.Local {
		return nil
	}

	body, status, err := r.deliverer.FetchObject(ctx, actorURL)
	if err != nil {
		log.Printf("Refresher: Failed to fetch actor %s: %v", actorURL, err)
		return r.store.UpdateActorRefreshedAt(actorURL, time.Now())
	}

	if status == 404 || status == 410 {
		log.Printf("Refresher: Actor %s is gone, removing local copy", actorURL)
		return r.store.DeleteActorByUrl(actorURL)
	}
	if status != 200 {
		return r.store.UpdateActorRefreshedAt(actorURL, time.Now())
	}

	var resp ActorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Printf("Refresher: Unparseable actor document at %s", actorURL)
		return r.store.UpdateActorRefreshedAt(actorURL, time.Now())
	}

	fetched, err := actorFromResponse(&resp)
	if err != nil {
		log.Printf("Refresher: Incomplete actor document at %s: %v", actorURL, err)
		return r.store.UpdateActorRefreshedAt(actorURL, time.Now())
	}

	actor.PreferredUsername = fetched.PreferredUsername
	actor.InboxUrl = fetched.InboxUrl
	actor.SharedInboxUrl = fetched.SharedInboxUrl
	actor.OutboxUrl = fetched.OutboxUrl
	actor.FollowersUrl = fetched.FollowersUrl
	actor.PublicKeyPem = fetched.PublicKeyPem
	actor.LastRefreshedAt = time.Now()
	return r.store.UpdateActor(actor)
}

// RefreshPlaylist re-fetches a cached remote playlist.
func (r *Refresher) RefreshPlaylist(ctx context.Context, playlistURL string) error {
	playlist, err := r.store.ReadVideoPlaylistByUrl(playlistURL)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	if playlist.Local {
		return nil
	}

	body, status, err := r.deliverer.FetchObject(ctx, playlistURL)
	if err != nil {
		log.Printf("Refresher: Failed to fetch playlist %s: %v", playlistURL, err)
		return r.store.UpdateVideoPlaylistRefreshedAt(playlistURL, time.Now())
	}

	if status == 404 || status == 410 {
		log.Printf("Refresher: Playlist %s is gone, removing local copy", playlistURL)
		return r.store.DeleteVideoPlaylistByUrl(playlistURL)
	}
	if status != 200 {
		return r.store.UpdateVideoPlaylistRefreshedAt(playlistURL, time.Now())
	}

	var obj PlaylistObject
	if err := json.Unmarshal(body, &obj); err != nil || obj.ID == "" {
		log.Printf("Refresher: Unparseable playlist document at %s", playlistURL)
		return r.store.UpdateVideoPlaylistRefreshedAt(playlistURL, time.Now())
	}

	playlist.Name = obj.Name
	playlist.LastRefreshedAt = time.Now()
	return r.store.UpdateVideoPlaylistFromRemote(playlist)
}
