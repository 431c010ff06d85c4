// Package api serves the published feed read-only, plus health and metrics.
package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/deusflow/briefs/internal/feed"
	"github.com/deusflow/briefs/internal/metrics"
)

type Server struct {
	store   feed.Store
	metrics *metrics.Metrics
}

func NewServer(store feed.Store, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.Global
	}
	return &Server{store: store, metrics: m}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	s.RegisterRoutes(r)
	return r
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", s.handleMetrics)

	api := r.Group("/api")
	{
		api.GET("/cards", s.handleCards)
		api.GET("/hosts", s.handleHosts)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if !s.metrics.Healthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.GetStats())
}

// handleCards supports ?q=, ?host=, ?sort=asc|desc, ?page=, ?pageSize=.
func (s *Server) handleCards(c *gin.Context) {
	snap, err := s.store.Read(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read feed: " + err.Error()})
		return
	}

	q := feed.Query{
		Text:   c.Query("q"),
		Host:   c.Query("host"),
		Oldest: strings.EqualFold(c.Query("sort"), "asc"),
	}
	if q.Page, err = intParam(c, "page"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.PageSize, err = intParam(c, "pageSize"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.PageSize > 100 {
		q.PageSize = 100
	}

	c.JSON(http.StatusOK, feed.Search(snap.Cards, q))
}

func (s *Server) handleHosts(c *gin.Context) {
	snap, err := s.store.Read(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read feed: " + err.Error()})
		return
	}
	hosts := feed.Hosts(snap.Cards)
	if hosts == nil {
		hosts = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"hosts": hosts})
}

func intParam(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &paramError{name}
	}
	return n, nil
}

type paramError struct{ name string }

func (e *paramError) Error() string { return "invalid " + e.name + " parameter" }
