package web

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deemkeen/vidodon/domain"
	"github.com/deemkeen/vidodon/util"
)

// ActorDocument renders a local actor as an ActivityPub JSON document.
func ActorDocument(actor *domain.Actor, conf *util.AppConfig) (string, error) {
	doc := map[string]interface{}{
		"@context": []string{
			"https://www.w3.org/ns/activitystreams",
			"https://w3id.org/security/v1",
		},
		"id":                        actor.Url,
		"type":                      "Application",
		"preferredUsername":         actor.PreferredUsername,
		"inbox":                     actor.InboxUrl,
		"outbox":                    actor.OutboxUrl,
		"followers":                 actor.FollowersUrl,
		"url":                       actor.Url,
		"manuallyApprovesFollowers": false,
		"endpoints": map[string]string{
			"sharedInbox": actor.SharedInboxUrl,
		},
		"publicKey": map[string]string{
			"id":           actor.Url + "#main-key",
			"owner":        actor.Url,
			"publicKeyPem": actor.PublicKeyPem,
		},
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return "{}", err
	}
	return string(body), nil
}

// VideoDocument renders a local video as an ActivityPub Video object.
func VideoDocument(video *domain.Video, channel *domain.Actor, conf *util.AppConfig) (string, error) {
	doc := map[string]interface{}{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       video.Url,
		"type":     "Video",
		"name":     video.Name,
		"views":    video.Views,
		"attributedTo": []map[string]string{
			{"type": "Group", "id": channel.Url},
		},
	}

	if video.Privacy == domain.VideoPrivacyPublic {
		doc["to"] = []string{"https://www.w3.org/ns/activitystreams#Public"}
		doc["cc"] = []string{channel.FollowersUrl}
	} else {
		doc["to"] = []string{}
		doc["cc"] = []string{"https://www.w3.org/ns/activitystreams#Public"}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return "{}", err
	}
	return string(body), nil
}

// Webfinger resolves an acct: resource to the matching local actor document
// URL.
func Webfinger(username string, actor *domain.Actor, conf *util.AppConfig) string {
	return fmt.Sprintf(
		`{
			"subject": "acct:%s@%s",
			"links": [
				{
					"rel": "self",
					"type": "application/activity+json",
					"href": "%s"
				}
			]
		}`, username, conf.Conf.SslDomain, actor.Url)
}

func WebfingerNotFound() string {
	return `{"detail":"Not Found"}`
}

// ParseWebfingerResource strips the acct: prefix and the local domain suffix
// from a webfinger resource query.
func ParseWebfingerResource(resource, sslDomain string) (string, bool) {
	if !strings.HasPrefix(resource, "acct:") {
		return "", false
	}
	resource = strings.TrimPrefix(resource, "acct:")
	resource = strings.TrimSuffix(resource, fmt.Sprintf("@%s", sslDomain))
	if resource == "" || strings.Contains(resource, "@") {
		return "", false
	}
	return resource, true
}
