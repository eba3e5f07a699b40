package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/deemkeen/vidodon/domain"
	"github.com/google/uuid"
)

// NoteObject is the wire form of a federated video comment.
type NoteObject struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Content      string `json:"content"`
	AttributedTo string `json:"attributedTo"`
	InReplyTo    string `json:"inReplyTo"`
}

// processCreate dispatches on the created object's type. Only Note objects
// (video comments) are handled; anything else is logged and ignored.
func (p *Processor) processCreate(ctx context.Context, pc *ProcessContext) error {
	var note NoteObject
	if err := json.Unmarshal(pc.Activity.Object, &note); err != nil || note.Type == "" {
		return fmt.Errorf("create %s has no usable object", pc.Activity.ID)
	}

	if note.Type != "Note" {
		log.Printf("Inbox: Ignoring Create of unsupported object type %s from %s", note.Type, pc.Sender.Url)
		return nil
	}

	return p.processCreateComment(ctx, pc, &note)
}

// processCreateComment stores a remote comment on a known video. Comments on
// local videos are approved on arrival and forwarded to the channel's
// followers; comments on remote videos stay unapproved until the owning
// channel sends an ApproveReply.
func (p *Processor) processCreateComment(ctx context.Context, pc *ProcessContext, note *NoteObject) error {
	if note.ID == "" || note.InReplyTo == "" {
		return fmt.Errorf("comment in %s is missing id or inReplyTo", pc.Activity.ID)
	}

	if _, err := p.store.ReadVideoCommentByUrl(note.ID); err == nil {
		log.Printf("Inbox: Comment %s already known", note.ID)
		return nil
	}

	video, err := p.videos.GetOrFetchVideo(ctx, note.InReplyTo)
	if err != nil {
		return fmt.Errorf("failed to resolve commented video %s: %w", note.InReplyTo, err)
	}

	authorURI := note.AttributedTo
	if authorURI == "" {
		authorURI = pc.Activity.Actor
	}
	author, err := p.actors.GetOrFetchActor(ctx, authorURI)
	if err != nil {
		return fmt.Errorf("failed to resolve comment author %s: %w", authorURI, err)
	}

	if err := p.store.CreateVideoComment(&domain.VideoComment{
		Id:        uuid.New(),
		Url:       note.ID,
		VideoId:   video.Id,
		ActorId:   author.Id,
		Text:      note.Content,
		Approved:  video.Local,
		CreatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to store comment %s: %w", note.ID, err)
	}

	log.Printf("Inbox: %s commented on video %s", author.Url, video.Url)

	if video.Local {
		return p.forwardToVideoFollowers(video, pc)
	}
	return nil
}
