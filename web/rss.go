package web

import (
	"fmt"
	"time"

	"github.com/deemkeen/vidodon/db"
	"github.com/deemkeen/vidodon/util"
	"github.com/gorilla/feeds"
)

const feedVideoLimit = 50

// GetVideoFeed renders the most recent local videos as an RSS feed.
func GetVideoFeed(store *db.Store, conf *util.AppConfig) (string, error) {
	videos, err := store.ReadLocalVideos(feedVideoLimit)
	if err != nil {
		return "", fmt.Errorf("failed to read local videos: %w", err)
	}

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s videos", util.Name),
		Link:        &feeds.Link{Href: fmt.Sprintf("https://%s/feeds/videos.xml", conf.Conf.SslDomain)},
		Description: fmt.Sprintf("Latest videos on %s", conf.Conf.SslDomain),
		Created:     time.Now(),
	}

	var items []*feeds.Item
	for _, video := range videos {
		items = append(items, &feeds.Item{
			Id:      video.Id.String(),
			Title:   video.Name,
			Link:    &feeds.Link{Href: video.Url},
			Content: fmt.Sprintf("%s (%d views)", video.Name, video.Views),
			Created: video.CreatedAt,
		})
	}

	feed.Items = items
	return feed.ToRss()
}
