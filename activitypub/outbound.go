package activitypub

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/deemkeen/vidodon/db"
	"github.com/deemkeen/vidodon/domain"
	"github.com/deemkeen/vidodon/util"
	"github.com/google/uuid"
)

// Outbound federates locally originated actions: following other servers,
// announcing local videos, rating and view reporting. Everything goes through
// the broadcaster, so network work always happens in queue jobs.
type Outbound struct {
	store        *db.Store
	actors       *ActorResolver
	broadcaster  *Broadcaster
	serverActors *ServerActorLoader
	conf         *util.AppConfig
}

func NewOutbound(store *db.Store, actors *ActorResolver, broadcaster *Broadcaster, serverActors *ServerActorLoader, conf *util.AppConfig) *Outbound {
	return &Outbound{
		store:        store,
		actors:       actors,
		broadcaster:  broadcaster,
		serverActors: serverActors,
		conf:         conf,
	}
}

// FollowActor sends a Follow from the instance actor to the given remote
// actor. The edge stays pending until the remote Accept arrives.
func (o *Outbound) FollowActor(ctx context.Context, targetURI string) error {
	target, err := o.actors.GetOrFetchActor(ctx, targetURI)
	if err != nil {
		return fmt.Errorf("failed to resolve follow target %s: %w", targetURI, err)
	}

	server, err := o.serverActors.Get()
	if err != nil {
		return err
	}

	follow := NewFollow(o.conf.Conf.SslDomain, server, target.Url)
	now := time.Now()
	if err := o.store.CreateActorFollow(&domain.ActorFollow{
		Id:            uuid.New(),
		ActorId:       server.Id,
		TargetActorId: target.Id,
		Url:           follow.ID,
		State:         domain.FollowStatePending,
		Score:         domain.FollowScoreBase,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		return fmt.Errorf("failed to store outbound follow of %s: %w", target.Url, err)
	}

	log.Printf("Outbound: Following %s", target.Url)
	return o.broadcaster.Unicast(follow, server, target.BestInboxUrl())
}

// UnfollowActor sends an Undo of a previous Follow and removes the edge.
func (o *Outbound) UnfollowActor(ctx context.Context, targetURI string) error {
	target, err := o.store.ReadActorByUrl(targetURI)
	if err == sql.ErrNoRows {
		return fmt.Errorf("not following %s", targetURI)
	}
	if err != nil {
		return err
	}

	server, err := o.serverActors.Get()
	if err != nil {
		return err
	}

	follow, err := o.store.ReadActorFollowByPair(server.Id, target.Id)
	if err == sql.ErrNoRows {
		return fmt.Errorf("not following %s", targetURI)
	}
	if err != nil {
		return err
	}

	undo := NewUndoFollow(o.conf.Conf.SslDomain, server, follow.Url, target.Url)
	if err := o.broadcaster.Unicast(undo, server, target.BestInboxUrl()); err != nil {
		return err
	}

	log.Printf("Outbound: Unfollowed %s", target.Url)
	return o.store.DeleteActorFollowByUrl(follow.Url)
}

// AnnounceVideo federates a share of a local video to the channel's
// followers.
func (o *Outbound) AnnounceVideo(ctx context.Context, video *domain.Video) error {
	if video.Privacy == domain.VideoPrivacyPrivate {
		return fmt.Errorf("video %s is private and cannot be announced", video.Url)
	}

	channel, err := o.store.ReadActorById(video.ChannelActorId)
	if err != nil {
		return fmt.Errorf("failed to load channel of video %s: %w", video.Url, err)
	}

	server, err := o.serverActors.Get()
	if err != nil {
		return err
	}

	audience := BuildAudienceFromActors([]*domain.Actor{channel, server})
	announce := NewAnnounce(o.conf.Conf.SslDomain, server, video.Url, audience)

	if _, err := o.store.CreateVideoShare(&domain.VideoShare{
		Id:        uuid.New(),
		ActorId:   server.Id,
		VideoId:   video.Id,
		Url:       announce.ID,
		CreatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to store share of %s: %w", video.Url, err)
	}

	return o.broadcaster.BroadcastToFollowers(announce, server, []*domain.Actor{channel, server}, nil)
}

// RateVideo applies a local account's rate and federates it: to the channel's
// followers for local videos, to the origin server for remote ones.
func (o *Outbound) RateVideo(ctx context.Context, byActor *domain.Actor, video *domain.Video, rateType domain.RateType) error {
	if !byActor.Local {
		return fmt.Errorf("actor %s is not local", byActor.Url)
	}

	audience := BuildAudience(byActor, domain.VideoPrivacyPublic)
	activity := NewRate(o.conf.Conf.SslDomain, rateType, byActor, video.Url, audience)

	likesDelta, dislikesDelta := 0, 0
	existing, err := o.store.ReadRateByPair(byActor.Id, video.Id)
	switch {
	case err == sql.ErrNoRows:
		if rateType == domain.RateTypeLike {
			likesDelta = 1
		} else {
			dislikesDelta = 1
		}
	case err != nil:
		return err
	case existing.Type == rateType:
		return nil
	default:
		if rateType == domain.RateTypeLike {
			likesDelta, dislikesDelta = 1, -1
		} else {
			likesDelta, dislikesDelta = -1, 1
		}
	}

	if err := o.store.ApplyRateChange(&domain.AccountVideoRate{
		Id:             uuid.New(),
		AccountActorId: byActor.Id,
		VideoId:        video.Id,
		Type:           rateType,
		Url:            activity.ID,
		CreatedAt:      time.Now(),
	}, likesDelta, dislikesDelta); err != nil {
		return err
	}

	return o.federateVideoActivity(activity, byActor, video)
}

// ReportView federates an aggregated view of a video, signed by the instance
// actor so viewer identities stay on this server.
func (o *Outbound) ReportView(ctx context.Context, video *domain.Video, count int64, expires time.Time) error {
	server, err := o.serverActors.Get()
	if err != nil {
		return err
	}

	var activity *Activity
	if count > 1 {
		activity = NewViewer(o.conf.Conf.SslDomain, server, video.Url, count, expires)
	} else {
		activity = NewView(o.conf.Conf.SslDomain, server, video.Url)
	}

	return o.federateVideoActivity(activity, server, video)
}

// federateVideoActivity routes an activity about a video: broadcast to the
// channel's followers when the video is ours, unicast to the origin channel
// when it is not.
func (o *Outbound) federateVideoActivity(activity *Activity, signer *domain.Actor, video *domain.Video) error {
	channel, err := o.store.ReadActorById(video.ChannelActorId)
	if err != nil {
		return fmt.Errorf("failed to load channel of video %s: %w", video.Url, err)
	}

	if video.Local {
		return o.broadcaster.BroadcastToFollowers(activity, signer, []*domain.Actor{channel}, nil)
	}
	return o.broadcaster.Unicast(activity, signer, channel.BestInboxUrl())
}
