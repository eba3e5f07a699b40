package web

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/deemkeen/vidodon/activitypub"
	"github.com/deemkeen/vidodon/db"
	"github.com/deemkeen/vidodon/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"golang.org/x/time/rate"
)

// Server bundles the HTTP surface with the federation components it fronts.
type Server struct {
	conf         *util.AppConfig
	store        *db.Store
	actors       *activitypub.ActorResolver
	serverActors *activitypub.ServerActorLoader
	processor    *activitypub.Processor
	outbound     *activitypub.Outbound
}

func NewServer(conf *util.AppConfig, store *db.Store, actors *activitypub.ActorResolver, serverActors *activitypub.ServerActorLoader, processor *activitypub.Processor, outbound *activitypub.Outbound) *Server {
	return &Server{
		conf:         conf,
		store:        store,
		actors:       actors,
		serverActors: serverActors,
		processor:    processor,
		outbound:     outbound,
	}
}

// Router builds the gin engine with all federation routes.
func (s *Server) Router() *gin.Engine {
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// RSS feed of local videos
	g.GET("/feeds/videos.xml", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")
		rss, err := GetVideoFeed(s.store, s.conf)
		if err != nil {
			log.Printf("Web: Failed to render video feed: %v", err)
			c.Render(404, render.String{Format: ""})
			return
		}
		c.Render(200, render.String{Format: rss})
	})

	if s.conf.Conf.WithAp {
		// Stricter rate limit for ActivityPub endpoints: 5 req/sec per IP
		apLimiter := NewRateLimiter(rate.Limit(5), 10)

		// Max 1MB request body size for ActivityPub activities
		maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024)

		g.GET("/accounts/:name", func(c *gin.Context) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")

			actor, err := s.store.ReadLocalActorByUsername(c.Param("name"))
			if err != nil {
				c.JSON(404, gin.H{"error": "Actor not found"})
				return
			}

			doc, err := ActorDocument(actor, s.conf)
			if err != nil {
				c.JSON(500, gin.H{"error": "Failed to render actor"})
				return
			}
			c.Render(200, render.String{Format: doc})
		})

		g.GET("/videos/watch/:id", func(c *gin.Context) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")

			videoURL := fmt.Sprintf("https://%s/videos/watch/%s", s.conf.Conf.SslDomain, c.Param("id"))
			video, err := s.store.ReadVideoByUrl(videoURL)
			if err != nil || !video.Local {
				c.JSON(404, gin.H{"error": "Video not found"})
				return
			}

			channel, err := s.store.ReadActorById(video.ChannelActorId)
			if err != nil {
				c.JSON(500, gin.H{"error": "Failed to load channel"})
				return
			}

			doc, err := VideoDocument(video, channel, s.conf)
			if err != nil {
				c.JSON(500, gin.H{"error": "Failed to render video"})
				return
			}
			c.Render(200, render.String{Format: doc})
		})

		inboxHandler := func(c *gin.Context) {
			body, err := c.GetRawData()
			if err != nil {
				log.Printf("Inbox: Failed to read body: %v", err)
				c.Status(400)
				return
			}

			status, err := s.handleInbox(c.Request, body)
			if err != nil {
				log.Printf("Inbox: %v", err)
			}
			c.Status(status)
		}

		g.POST("/inbox", RateLimitMiddleware(apLimiter), maxBodySize, inboxHandler)
		g.POST("/accounts/:name/inbox", RateLimitMiddleware(apLimiter), maxBodySize, inboxHandler)

		s.registerAdminRoutes(g, RateLimitMiddleware(apLimiter))

		g.GET("/accounts/:name/outbox", func(c *gin.Context) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")
			c.Render(200, render.String{Format: `{"type":"OrderedCollection","totalItems":0,"orderedItems":[]}`})
		})

		g.GET("/accounts/:name/followers", func(c *gin.Context) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")
			c.Render(200, render.String{Format: `{"type":"OrderedCollection","totalItems":0,"orderedItems":[]}`})
		})

		g.GET("/.well-known/webfinger", func(c *gin.Context) {
			c.Header("Content-Type", "application/json; charset=utf-8")

			username, ok := ParseWebfingerResource(c.Query("resource"), s.conf.Conf.SslDomain)
			if !ok {
				c.Render(404, render.String{Format: WebfingerNotFound()})
				return
			}

			actor, err := s.store.ReadLocalActorByUsername(username)
			if err == sql.ErrNoRows {
				c.Render(404, render.String{Format: WebfingerNotFound()})
				return
			}
			if err != nil {
				c.Render(500, render.String{Format: WebfingerNotFound()})
				return
			}

			c.Render(200, render.String{Format: Webfinger(username, actor, s.conf)})
		})
	}

	return g
}

// Run starts the HTTP server on the configured port.
func (s *Server) Run() error {
	log.Printf("Starting web server on %s:%d", s.conf.Conf.Host, s.conf.Conf.HttpPort)
	return s.Router().Run(fmt.Sprintf(":%d", s.conf.Conf.HttpPort))
}
