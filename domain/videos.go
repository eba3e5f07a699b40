package domain

import (
	"github.com/google/uuid"
	"time"
)

type VideoPrivacy string

const (
	VideoPrivacyPublic   VideoPrivacy = "public"
	VideoPrivacyUnlisted VideoPrivacy = "unlisted"
	VideoPrivacyPrivate  VideoPrivacy = "private"
)

// Video is a local video or the cached copy of a remote one.
type Video struct {
	Id              uuid.UUID
	Url             string // canonical object URL
	Name            string
	ChannelActorId  uuid.UUID // owning channel actor
	Privacy         VideoPrivacy
	Likes           int
	Dislikes        int
	Views           int64
	Local           bool
	LastRefreshedAt time.Time
	CreatedAt       time.Time
}

// VideoShare records that an actor announced a video. The share URL is the
// Announce activity's own URL and is unique, which makes re-processing a
// duplicate Announce a no-op.
type VideoShare struct {
	Id        uuid.UUID
	ActorId   uuid.UUID
	VideoId   uuid.UUID
	Url       string
	CreatedAt time.Time
}

type RateType string

const (
	RateTypeLike    RateType = "like"
	RateTypeDislike RateType = "dislike"
)

// AccountVideoRate holds the single current rate of an account on a video.
type AccountVideoRate struct {
	Id             uuid.UUID
	AccountActorId uuid.UUID
	VideoId        uuid.UUID
	Type           RateType
	Url            string // URL of the Like/Dislike activity
	CreatedAt      time.Time
}

// VideoView is one watch record. Viewer activities carry an expiry and an
// aggregated counter, plain View activities are fire-and-forget.
type VideoView struct {
	Id        uuid.UUID
	VideoId   uuid.UUID
	ViewerId  string
	Views     int64 // aggregated counter from Viewer activities, 1 for View
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// VideoComment is the subset of a comment the federation engine touches:
// reply-approval processing and (re)federation of the comment's creation.
type VideoComment struct {
	Id          uuid.UUID
	Url         string
	VideoId     uuid.UUID
	ActorId     uuid.UUID
	Text        string
	Deleted     bool
	Approved    bool
	ApprovalUrl string
	CreatedAt   time.Time
}

// VideoPlaylist carries just enough state to participate in refreshing.
type VideoPlaylist struct {
	Id              uuid.UUID
	Url             string
	Name            string
	OwnerActorId    uuid.UUID
	Local           bool
	LastRefreshedAt time.Time
	CreatedAt       time.Time
}
