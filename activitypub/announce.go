package activitypub

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/deemkeen/vidodon/domain"
	"github.com/google/uuid"
)

// processAnnounce records that the sender shared a video. The share is keyed
// by the Announce URL, so a re-delivered Announce changes nothing. A share of
// a local video is forwarded to the channel's followers, excluding whoever
// sent it.
func (p *Processor) processAnnounce(ctx context.Context, pc *ProcessContext) error {
	videoURL := pc.Activity.ObjectURI()
	if videoURL == "" {
		return fmt.Errorf("announce %s has no object", pc.Activity.ID)
	}

	video, err := p.videos.GetOrFetchVideo(ctx, videoURL)
	if err != nil {
		return fmt.Errorf("failed to resolve announced video %s: %w", videoURL, err)
	}

	created, err := p.store.CreateVideoShare(&domain.VideoShare{
		Id:        uuid.New(),
		ActorId:   pc.Sender.Id,
		VideoId:   video.Id,
		Url:       pc.Activity.ID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to store share %s: %w", pc.Activity.ID, err)
	}
	if !created {
		log.Printf("Inbox: Share %s already known", pc.Activity.ID)
		return nil
	}

	log.Printf("Inbox: %s announced video %s", pc.Sender.Url, video.Url)

	if video.Local {
		return p.forwardToVideoFollowers(video, pc)
	}
	return nil
}

// processUndoAnnounce removes the share created by the announced activity.
func (p *Processor) processUndoAnnounce(ctx context.Context, pc *ProcessContext, announce *Activity) error {
	share, err := p.store.ReadVideoShareByUrl(announce.ID)
	if err != nil {
		log.Printf("Inbox: Undo of unknown share %s", announce.ID)
		return nil
	}
	if share.ActorId != pc.Sender.Id {
		return fmt.Errorf("undo announce %s: sender %s does not own the share", announce.ID, pc.Sender.Url)
	}

	if err := p.store.DeleteVideoShareByUrl(announce.ID); err != nil {
		return fmt.Errorf("failed to delete share %s: %w", announce.ID, err)
	}

	video, err := p.store.ReadVideoById(share.VideoId)
	if err != nil {
		return nil
	}
	if video.Local {
		return p.forwardToVideoFollowers(video, pc)
	}
	return nil
}
