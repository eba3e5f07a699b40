package domain

import (
	"fmt"
	"github.com/google/uuid"
	"time"
)

// Actor represents a federated identity (account, channel or the instance
// itself), local or remote. Remote actors are cached copies refreshed by the
// staleness refresher.
type Actor struct {
	Id                uuid.UUID
	PreferredUsername string
	Domain            string
	Url               string // stable actor URL, also the ActivityPub id
	InboxUrl          string
	SharedInboxUrl    string
	OutboxUrl         string
	FollowersUrl      string
	PublicKeyPem      string
	PrivateKeyPem     string // only set for local actors
	Local             bool
	LastRefreshedAt   time.Time
	CreatedAt         time.Time
}

func (a *Actor) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tUsername: %s \n\tUrl: %s \n\tLocal: %v)", a.Id, a.PreferredUsername, a.Url, a.Local)
}

// BestInboxUrl prefers the shared inbox when the remote server exposes one,
// so broadcasts to many followers of the same server collapse to one POST.
func (a *Actor) BestInboxUrl() string {
	if a.SharedInboxUrl != "" {
		return a.SharedInboxUrl
	}
	return a.InboxUrl
}

type FollowState string

const (
	FollowStatePending  FollowState = "pending"
	FollowStateAccepted FollowState = "accepted"
	FollowStateRejected FollowState = "rejected"
)

// Follow score bounds. A follow starts at the base score, gains the bonus for
// every successful delivery flush and loses the penalty for failed ones.
// A follow whose score reaches zero is removed by the score scheduler.
const (
	FollowScoreBase    = 1000
	FollowScoreMax     = 10000
	FollowScoreBonus   = 10
	FollowScorePenalty = -10
)

// ActorFollow is a directed edge: ActorId follows TargetActorId.
// At most one edge exists per (ActorId, TargetActorId) pair.
type ActorFollow struct {
	Id            uuid.UUID
	ActorId       uuid.UUID // the follower
	TargetActorId uuid.UUID // the actor being followed
	Url           string    // URL of the Follow activity
	State         FollowState
	Score         int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
