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

// processFollow registers the sender as a follower of a local actor and
// replies with an Accept. Follows are auto-accepted; the pending state only
// exists between the edge insert and the Accept going out.
func (p *Processor) processFollow(ctx context.Context, pc *ProcessContext) error {
	targetURL := pc.Activity.ObjectURI()
	if targetURL == "" {
		return fmt.Errorf("follow %s has no object", pc.Activity.ID)
	}

	target, err := p.store.ReadActorByUrl(targetURL)
	if err == sql.ErrNoRows {
		log.Printf("Inbox: Follow of unknown actor %s", targetURL)
		return nil
	}
	if err != nil {
		return err
	}
	if !target.Local {
		log.Printf("Inbox: Ignoring follow of remote actor %s", targetURL)
		return nil
	}

	now := time.Now()
	if err := p.store.CreateActorFollow(&domain.ActorFollow{
		Id:            uuid.New(),
		ActorId:       pc.Sender.Id,
		TargetActorId: target.Id,
		Url:           pc.Activity.ID,
		State:         domain.FollowStatePending,
		Score:         domain.FollowScoreBase,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		return fmt.Errorf("failed to store follow %s: %w", pc.Activity.ID, err)
	}

	accept := NewAccept(p.conf.Conf.SslDomain, target, pc.Activity)
	if err := p.broadcaster.Unicast(accept, target, pc.Sender.BestInboxUrl()); err != nil {
		return fmt.Errorf("failed to schedule accept of %s: %w", pc.Activity.ID, err)
	}

	if err := p.store.UpdateActorFollowState(pc.Activity.ID, domain.FollowStateAccepted); err != nil {
		return err
	}

	log.Printf("Inbox: %s now follows %s", pc.Sender.Url, target.Url)
	return nil
}

// processAccept flips one of our outbound follows to accepted. The embedded
// object is the Follow activity we sent, identified by its URL.
func (p *Processor) processAccept(ctx context.Context, pc *ProcessContext) error {
	follow, err := pc.Activity.ObjectActivity()
	if err != nil {
		return err
	}
	if follow.ID == "" {
		return fmt.Errorf("accept %s carries no follow id", pc.Activity.ID)
	}

	stored, err := p.store.ReadActorFollowByUrl(follow.ID)
	if err == sql.ErrNoRows {
		log.Printf("Inbox: Accept of unknown follow %s", follow.ID)
		return nil
	}
	if err != nil {
		return err
	}
	if stored.TargetActorId != pc.Sender.Id {
		return fmt.Errorf("accept %s: sender %s is not the follow target", pc.Activity.ID, pc.Sender.Url)
	}

	if err := p.store.UpdateActorFollowState(follow.ID, domain.FollowStateAccepted); err != nil {
		return err
	}

	log.Printf("Inbox: Follow %s accepted by %s", follow.ID, pc.Sender.Url)
	return nil
}

// processUndo reverses a previous activity of the sender. The undone
// activity is embedded as the object.
func (p *Processor) processUndo(ctx context.Context, pc *ProcessContext) error {
	inner, err := pc.Activity.ObjectActivity()
	if err != nil {
		return err
	}
	if inner.Actor != "" && inner.Actor != pc.Sender.Url {
		return fmt.Errorf("undo %s: sender %s does not own the undone activity", pc.Activity.ID, pc.Sender.Url)
	}

	switch inner.Type {
	case "Follow":
		return p.processUndoFollow(ctx, pc, inner)
	case "Announce":
		return p.processUndoAnnounce(ctx, pc, inner)
	case "Like", "Dislike":
		return p.processUndoRate(ctx, pc, inner)
	default:
		log.Printf("Inbox: Ignoring undo of unsupported type %s", inner.Type)
		return nil
	}
}

func (p *Processor) processUndoFollow(ctx context.Context, pc *ProcessContext, follow *Activity) error {
	stored, err := p.store.ReadActorFollowByUrl(follow.ID)
	if err == sql.ErrNoRows {
		log.Printf("Inbox: Undo of unknown follow %s", follow.ID)
		return nil
	}
	if err != nil {
		return err
	}
	if stored.ActorId != pc.Sender.Id {
		return fmt.Errorf("undo follow %s: sender %s is not the follower", follow.ID, pc.Sender.Url)
	}

	if err := p.store.DeleteActorFollowByUrl(follow.ID); err != nil {
		return fmt.Errorf("failed to delete follow %s: %w", follow.ID, err)
	}

	log.Printf("Inbox: %s unfollowed, edge %s removed", pc.Sender.Url, follow.ID)
	return nil
}
