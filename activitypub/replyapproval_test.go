package activitypub

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/deemkeen/vidodon/domain"
	"github.com/deemkeen/vidodon/queue"
	"github.com/google/uuid"
)

func (e *testEnv) createRemoteVideo(t *testing.T, channel *domain.Actor) *domain.Video {
	t.Helper()
	video := &domain.Video{
		Id:              uuid.New(),
		Url:             fmt.Sprintf("https://%s/videos/watch/%s", channel.Domain, uuid.New()),
		Name:            "remote video",
		ChannelActorId:  channel.Id,
		Privacy:         domain.VideoPrivacyPublic,
		Local:           false,
		LastRefreshedAt: time.Now(),
		CreatedAt:       time.Now(),
	}
	if err := e.store.CreateVideo(video); err != nil {
		t.Fatalf("Failed to create remote video: %v", err)
	}
	return video
}

func (e *testEnv) createComment(t *testing.T, author *domain.Actor, video *domain.Video) *domain.VideoComment {
	t.Helper()
	comment := &domain.VideoComment{
		Id:        uuid.New(),
		Url:       fmt.Sprintf("https://%s/comments/%s", author.Domain, uuid.New()),
		VideoId:   video.Id,
		ActorId:   author.Id,
		Text:      "nice video",
		CreatedAt: time.Now(),
	}
	if err := e.store.CreateVideoComment(comment); err != nil {
		t.Fatalf("Failed to create comment: %v", err)
	}
	return comment
}

func TestApproveReplyMarksCommentAndRefederates(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createRemoteActor(t, "other.example.com", "bob")
	video := env.createRemoteVideo(t, owner)
	author := env.createLocalChannel(t, "alice")
	comment := env.createComment(t, author, video)
	follower := env.createRemoteActor(t, "third.example.com", "carol")

	now := time.Now()
	if err := env.store.CreateActorFollow(&domain.ActorFollow{
		Id:            uuid.New(),
		ActorId:       follower.Id,
		TargetActorId: author.Id,
		Url:           "https://third.example.com/activities/follow-1",
		State:         domain.FollowStateAccepted,
		Score:         domain.FollowScoreBase,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		t.Fatalf("Failed to create follow: %v", err)
	}

	approval := &Activity{
		ID:     "https://other.example.com/activities/approval-1",
		Type:   "ApproveReply",
		Actor:  owner.Url,
		Object: mustMarshalRaw(comment.Url),
	}
	if err := env.processor.Process(context.Background(), rawActivity(t, approval), owner); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	got, err := env.store.ReadVideoCommentByUrl(comment.Url)
	if err != nil {
		t.Fatalf("Comment disappeared: %v", err)
	}
	if !got.Approved {
		t.Error("Comment should be approved")
	}
	if got.ApprovalUrl != approval.ID {
		t.Errorf("Expected approval url %s, got %s", approval.ID, got.ApprovalUrl)
	}

	pending, _ := env.store.ReadPendingJobs(10)
	if len(pending) != 1 || pending[0].Type != queue.JobTypeHTTPBroadcastParallel {
		t.Fatalf("Expected the approved comment to re-federate to followers, got %+v", pending)
	}
}

func TestApproveReplyFromNonOwnerIsRejected(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createRemoteActor(t, "other.example.com", "bob")
	video := env.createRemoteVideo(t, owner)
	author := env.createLocalChannel(t, "alice")
	comment := env.createComment(t, author, video)
	impostor := env.createRemoteActor(t, "evil.example.com", "mallory")

	approval := &Activity{
		ID:     "https://evil.example.com/activities/approval-1",
		Type:   "ApproveReply",
		Actor:  impostor.Url,
		Object: mustMarshalRaw(comment.Url),
	}
	if err := env.processor.Process(context.Background(), rawActivity(t, approval), impostor); err == nil {
		t.Fatal("An approval from a non-owner should fail")
	}

	got, _ := env.store.ReadVideoCommentByUrl(comment.Url)
	if got.Approved {
		t.Error("Comment must not be approved by a non-owner")
	}
}

func TestApproveReplyOfRemoteCommentIsRejected(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createRemoteActor(t, "other.example.com", "bob")
	video := env.createRemoteVideo(t, owner)
	remoteAuthor := env.createRemoteActor(t, "third.example.com", "carol")
	comment := env.createComment(t, remoteAuthor, video)

	approval := &Activity{
		ID:     "https://other.example.com/activities/approval-2",
		Type:   "ApproveReply",
		Actor:  owner.Url,
		Object: mustMarshalRaw(comment.Url),
	}
	if err := env.processor.Process(context.Background(), rawActivity(t, approval), owner); err == nil {
		t.Fatal("An approval of a remotely authored comment should fail")
	}

	got, _ := env.store.ReadVideoCommentByUrl(comment.Url)
	if got.Approved || got.ApprovalUrl != "" {
		t.Error("A rejected approval must not mark the comment approved")
	}
}

func TestRejectReplyLeavesCommentUntouched(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createRemoteActor(t, "other.example.com", "bob")
	video := env.createRemoteVideo(t, owner)
	author := env.createLocalChannel(t, "alice")
	comment := env.createComment(t, author, video)

	rejection := &Activity{
		ID:     "https://other.example.com/activities/rejection-1",
		Type:   "RejectReply",
		Actor:  owner.Url,
		Object: mustMarshalRaw(comment.Url),
	}
	if err := env.processor.Process(context.Background(), rawActivity(t, rejection), owner); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	got, _ := env.store.ReadVideoCommentByUrl(comment.Url)
	if got.Approved || got.ApprovalUrl != "" {
		t.Error("A rejection should leave the comment untouched")
	}
}
