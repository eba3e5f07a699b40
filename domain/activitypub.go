package domain

import (
	"github.com/google/uuid"
	"time"
)

// Activity is the stored record of a processed activity, used for
// deduplication: the activity URI is the idempotence key for the whole
// inbound path.
type Activity struct {
	Id           uuid.UUID
	ActivityURI  string
	ActivityType string // Announce, Like, Dislike, View, Follow, ...
	ActorURI     string
	ObjectURI    string
	RawJSON      string
	Processed    bool
	Local        bool // true if originated from this server
	CreatedAt    time.Time
}
