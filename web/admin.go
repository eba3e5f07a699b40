package web

import (
	"fmt"
	"log"
	"time"

	"github.com/deemkeen/vidodon/domain"
	"github.com/gin-gonic/gin"
)

// registerAdminRoutes exposes the locally originated federation actions.
// Operator authentication is out of scope; deployments front these routes
// with their own access control.
func (s *Server) registerAdminRoutes(g *gin.Engine, middleware ...gin.HandlerFunc) {
	api := g.Group("/api/server", middleware...)

	api.POST("/following", func(c *gin.Context) {
		var body struct {
			Uri string `json:"uri"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.Uri == "" {
			c.JSON(400, gin.H{"error": "Missing target uri"})
			return
		}
		if err := s.outbound.FollowActor(c.Request.Context(), body.Uri); err != nil {
			log.Printf("Web: Follow of %s failed: %v", body.Uri, err)
			c.JSON(500, gin.H{"error": "Follow failed"})
			return
		}
		c.Status(204)
	})

	api.DELETE("/following", func(c *gin.Context) {
		uri := c.Query("uri")
		if uri == "" {
			c.JSON(400, gin.H{"error": "Missing target uri"})
			return
		}
		if err := s.outbound.UnfollowActor(c.Request.Context(), uri); err != nil {
			log.Printf("Web: Unfollow of %s failed: %v", uri, err)
			c.JSON(500, gin.H{"error": "Unfollow failed"})
			return
		}
		c.Status(204)
	})

	api.POST("/videos/:id/announce", func(c *gin.Context) {
		video, ok := s.lookupLocalVideo(c)
		if !ok {
			return
		}
		if err := s.outbound.AnnounceVideo(c.Request.Context(), video); err != nil {
			log.Printf("Web: Announce of %s failed: %v", video.Url, err)
			c.JSON(500, gin.H{"error": "Announce failed"})
			return
		}
		c.Status(204)
	})

	api.POST("/videos/:id/views", func(c *gin.Context) {
		videoURL := fmt.Sprintf("https://%s/videos/watch/%s", s.conf.Conf.SslDomain, c.Param("id"))
		video, err := s.store.ReadVideoByUrl(videoURL)
		if err != nil {
			c.JSON(404, gin.H{"error": "Video not found"})
			return
		}
		if err := s.outbound.ReportView(c.Request.Context(), video, 1, time.Now().Add(time.Hour)); err != nil {
			log.Printf("Web: View report for %s failed: %v", video.Url, err)
			c.JSON(500, gin.H{"error": "View report failed"})
			return
		}
		c.Status(204)
	})
}

func (s *Server) lookupLocalVideo(c *gin.Context) (*domain.Video, bool) {
	videoURL := fmt.Sprintf("https://%s/videos/watch/%s", s.conf.Conf.SslDomain, c.Param("id"))
	video, err := s.store.ReadVideoByUrl(videoURL)
	if err != nil || !video.Local {
		c.JSON(404, gin.H{"error": "Video not found"})
		return nil, false
	}
	return video, true
}
