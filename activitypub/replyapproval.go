package activitypub

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/deemkeen/vidodon/domain"
)

// processApproveReply marks a local comment on a remote video as approved by
// the video's owner. Only the owning channel may approve, and a re-delivered
// approval with the same id changes nothing. A fresh approval re-federates
// the comment so servers that held it back can now show it.
func (p *Processor) processApproveReply(ctx context.Context, pc *ProcessContext) error {
	commentURL := pc.Activity.ObjectURI()
	if commentURL == "" {
		return fmt.Errorf("approval %s has no object", pc.Activity.ID)
	}

	comment, err := p.store.ReadVideoCommentByUrl(commentURL)
	if err == sql.ErrNoRows {
		log.Printf("Inbox: Approval of unknown comment %s", commentURL)
		return nil
	}
	if err != nil {
		return err
	}
	if comment.Deleted {
		log.Printf("Inbox: Ignoring approval of deleted comment %s", commentURL)
		return nil
	}
	if comment.ApprovalUrl == pc.Activity.ID {
		return nil
	}

	author, err := p.store.ReadActorById(comment.ActorId)
	if err != nil {
		return fmt.Errorf("failed to load author of comment %s: %w", commentURL, err)
	}
	if !author.Local {
		return fmt.Errorf("approval %s: comment %s is not locally owned", pc.Activity.ID, commentURL)
	}

	video, err := p.store.ReadVideoById(comment.VideoId)
	if err != nil {
		return fmt.Errorf("failed to load video of comment %s: %w", commentURL, err)
	}
	if video.ChannelActorId != pc.Sender.Id {
		return fmt.Errorf("approval %s: sender %s does not own video %s", pc.Activity.ID, pc.Sender.Url, video.Url)
	}

	if err := p.store.ApproveVideoComment(comment.Url, pc.Activity.ID); err != nil {
		return fmt.Errorf("failed to approve comment %s: %w", commentURL, err)
	}

	log.Printf("Inbox: Comment %s approved by %s", commentURL, pc.Sender.Url)

	if video.Privacy == domain.VideoPrivacyPrivate {
		return nil
	}

	audience := BuildAudience(author, video.Privacy)
	create := NewCommentCreate(p.conf.Conf.SslDomain, author, comment, video.Url, audience)
	return p.broadcaster.BroadcastToFollowers(create, author, []*domain.Actor{author}, senderInboxes(pc.Sender))
}

// processRejectReply acknowledges a rejection without acting on it. Comments
// start out unapproved, so there is no state to roll back yet.
func (p *Processor) processRejectReply(ctx context.Context, pc *ProcessContext) error {
	log.Printf("Inbox: Comment %s rejected by %s", pc.Activity.ObjectURI(), pc.Sender.Url)
	return nil
}
