package activitypub

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/deemkeen/vidodon/domain"
	"github.com/google/uuid"
)

func rateTypeFromActivity(activityType string) domain.RateType {
	if activityType == "Dislike" {
		return domain.RateTypeDislike
	}
	return domain.RateTypeLike
}

// processRate applies a Like or Dislike to a local video. An account holds at
// most one rate per video: a repeated rate of the same kind is a no-op, a
// rate of the other kind moves both counters in one transaction. The change
// is forwarded to the channel's followers so the rest of the network
// converges on the new counters.
func (p *Processor) processRate(ctx context.Context, pc *ProcessContext) error {
	videoURL := pc.Activity.ObjectURI()
	if videoURL == "" {
		return fmt.Errorf("rate %s has no object", pc.Activity.ID)
	}

	video, err := p.videos.GetOrFetchVideo(ctx, videoURL)
	if err != nil {
		return fmt.Errorf("failed to resolve rated video %s: %w", videoURL, err)
	}
	if !video.Local {
		log.Printf("Inbox: Ignoring rate on remote video %s", video.Url)
		return nil
	}

	newType := rateTypeFromActivity(pc.Activity.Type)

	likesDelta, dislikesDelta := 0, 0
	existing, err := p.store.ReadRateByPair(pc.Sender.Id, video.Id)
	switch {
	case err == sql.ErrNoRows:
		if newType == domain.RateTypeLike {
			likesDelta = 1
		} else {
			dislikesDelta = 1
		}
	case err != nil:
		return err
	case existing.Type == newType:
		log.Printf("Inbox: %s already rated video %s with %s", pc.Sender.Url, video.Url, newType)
		return nil
	default:
		// Switching sides moves both counters
		if newType == domain.RateTypeLike {
			likesDelta, dislikesDelta = 1, -1
		} else {
			likesDelta, dislikesDelta = -1, 1
		}
	}

	rate := &domain.AccountVideoRate{
		Id:             uuid.New(),
		AccountActorId: pc.Sender.Id,
		VideoId:        video.Id,
		Type:           newType,
		Url:            pc.Activity.ID,
		CreatedAt:      time.Now(),
	}
	if err := p.store.ApplyRateChange(rate, likesDelta, dislikesDelta); err != nil {
		return fmt.Errorf("failed to apply rate %s: %w", pc.Activity.ID, err)
	}

	log.Printf("Inbox: %s rated video %s with %s", pc.Sender.Url, video.Url, newType)

	return p.forwardToVideoFollowers(video, pc)
}

// processUndoRate removes the sender's rate of the given kind and decrements
// the matching counter.
func (p *Processor) processUndoRate(ctx context.Context, pc *ProcessContext, rate *Activity) error {
	videoURL := rate.ObjectURI()
	if videoURL == "" {
		return fmt.Errorf("undo rate %s has no object", rate.ID)
	}

	video, err := p.store.ReadVideoByUrl(videoURL)
	if err == sql.ErrNoRows {
		log.Printf("Inbox: Undo rate on unknown video %s", videoURL)
		return nil
	}
	if err != nil {
		return err
	}

	if err := p.store.RemoveRate(pc.Sender.Id, video.Id, rateTypeFromActivity(rate.Type)); err != nil {
		return fmt.Errorf("failed to remove rate of %s on %s: %w", pc.Sender.Url, video.Url, err)
	}

	if video.Local {
		return p.forwardToVideoFollowers(video, pc)
	}
	return nil
}
