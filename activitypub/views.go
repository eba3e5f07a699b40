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

// processView counts a watch of a known video. Views are deliberately
// lightweight: an unknown video is ignored rather than fetched, because view
// pings arrive in volume and must never fan out into remote requests. A
// viewer with an unexpired view record is not counted twice.
func (p *Processor) processView(ctx context.Context, pc *ProcessContext) error {
	videoURL := pc.Activity.ObjectURI()
	if videoURL == "" {
		return fmt.Errorf("view %s has no object", pc.Activity.ID)
	}

	video, err := p.store.ReadVideoByUrl(videoURL)
	if err == sql.ErrNoRows {
		log.Printf("Inbox: View on unknown video %s", videoURL)
		return nil
	}
	if err != nil {
		return err
	}

	views := int64(1)
	if pc.Activity.Result != nil && pc.Activity.Result.UserInteractionCount > 0 {
		views = pc.Activity.Result.UserInteractionCount
	}

	var expiresAt *time.Time
	if pc.Activity.Expires != "" {
		if t, err := time.Parse(time.RFC3339, pc.Activity.Expires); err == nil {
			expiresAt = &t
		}
	}

	counted, err := p.store.CreateVideoView(&domain.VideoView{
		Id:        uuid.New(),
		VideoId:   video.Id,
		ViewerId:  pc.Activity.Actor,
		Views:     views,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to record view on %s: %w", video.Url, err)
	}
	if !counted {
		return nil
	}

	if video.Local {
		return p.forwardToVideoFollowers(video, pc)
	}
	return nil
}
