package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/deemkeen/vidodon/db"
	"github.com/deemkeen/vidodon/domain"
	"github.com/deemkeen/vidodon/util"
	"github.com/google/uuid"
)

// ProcessContext carries one inbound activity through its handler. RawJSON is
// the body exactly as received, so forwarding re-sends the original bytes.
type ProcessContext struct {
	Activity *Activity
	RawJSON  json.RawMessage
	Sender   *domain.Actor
}

type processorHandler func(ctx context.Context, pc *ProcessContext) error

// Processor dispatches verified inbound activities to per-type handlers.
// Every activity passes the dedupe gate first: an activity URI seen before is
// dropped no matter how often remote servers re-deliver it.
type Processor struct {
	store       *db.Store
	actors      *ActorResolver
	videos      *VideoResolver
	broadcaster *Broadcaster
	conf        *util.AppConfig

	handlers map[string]processorHandler
}

func NewProcessor(store *db.Store, actors *ActorResolver, videos *VideoResolver, broadcaster *Broadcaster, conf *util.AppConfig) *Processor {
	p := &Processor{
		store:       store,
		actors:      actors,
		videos:      videos,
		broadcaster: broadcaster,
		conf:        conf,
		handlers:    make(map[string]processorHandler),
	}

	p.handlers["Create"] = p.processCreate
	p.handlers["Announce"] = p.processAnnounce
	p.handlers["Like"] = p.processRate
	p.handlers["Dislike"] = p.processRate
	p.handlers["View"] = p.processView
	p.handlers["Follow"] = p.processFollow
	p.handlers["Accept"] = p.processAccept
	p.handlers["Undo"] = p.processUndo
	p.handlers["ApproveReply"] = p.processApproveReply
	p.handlers["RejectReply"] = p.processRejectReply

	return p
}

// Process runs one verified inbound activity through deduplication and its
// type handler. sender is the actor whose signature authenticated the
// request.
func (p *Processor) Process(ctx context.Context, rawJSON json.RawMessage, sender *domain.Actor) error {
	var activity Activity
	if err := json.Unmarshal(rawJSON, &activity); err != nil {
		return fmt.Errorf("invalid activity JSON: %w", err)
	}
	if activity.ID == "" || activity.Type == "" || activity.Actor == "" {
		return fmt.Errorf("activity missing id, type or actor")
	}

	handler, ok := p.handlers[activity.Type]
	if !ok {
		log.Printf("Inbox: Ignoring unsupported activity type %s from %s", activity.Type, sender.Url)
		return nil
	}

	created, err := p.store.CreateActivity(&domain.Activity{
		Id:           uuid.New(),
		ActivityURI:  activity.ID,
		ActivityType: activity.Type,
		ActorURI:     activity.Actor,
		ObjectURI:    activity.ObjectURI(),
		RawJSON:      string(rawJSON),
		Processed:    false,
		Local:        false,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to record activity %s: %w", activity.ID, err)
	}
	if !created {
		log.Printf("Inbox: Skipping already processed activity %s", activity.ID)
		return nil
	}

	pc := &ProcessContext{
		Activity: &activity,
		RawJSON:  rawJSON,
		Sender:   sender,
	}
	if err := handler(ctx, pc); err != nil {
		return err
	}

	return p.store.MarkActivityProcessed(activity.ID)
}

// senderInboxes lists the inbox URLs an activity arrived through, which a
// forward must never target.
func senderInboxes(sender *domain.Actor) []string {
	inboxes := make([]string, 0, 2)
	if sender.InboxUrl != "" {
		inboxes = append(inboxes, sender.InboxUrl)
	}
	if sender.SharedInboxUrl != "" {
		inboxes = append(inboxes, sender.SharedInboxUrl)
	}
	return inboxes
}

// forwardToVideoFollowers re-sends the received activity to the followers of
// the video's owning channel, signed by the channel since the original
// signature only covered the sender's own request.
func (p *Processor) forwardToVideoFollowers(video *domain.Video, pc *ProcessContext) error {
	channel, err := p.store.ReadActorById(video.ChannelActorId)
	if err != nil {
		return fmt.Errorf("failed to load channel of video %s: %w", video.Url, err)
	}
	if !channel.Local {
		return nil
	}
	return p.broadcaster.ForwardActivity(pc.RawJSON, channel, []*domain.Actor{channel}, senderInboxes(pc.Sender))
}
