// Package server exposes the enrichment API over HTTP: job submission
// and tracking, the user-action surface, an SSE event stream and
// Prometheus metrics.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/folioenrich/folioenrich/internal/enrich"
	"github.com/folioenrich/folioenrich/internal/jobstore"
	"github.com/folioenrich/folioenrich/internal/metrics"
	"github.com/folioenrich/folioenrich/internal/model"
)

// Server wraps the enrichment service with HTTP routes.
type Server struct {
	svc *enrich.Service
	log *zap.Logger
}

// New creates a server.
func New(svc *enrich.Service, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{svc: svc, log: log}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.observe())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		api.POST("/jobs", s.submit)
		api.GET("/jobs", s.list)
		api.GET("/jobs/:id", s.status)
		api.GET("/jobs/:id/result", s.result)
		api.GET("/jobs/:id/events", s.events)
		api.POST("/jobs/:id/cancel", s.cancel)

		api.POST("/jobs/:id/annotations/:aid/promote", s.promote)
		api.POST("/jobs/:id/annotations/:aid/reject", s.reject)
		api.POST("/jobs/:id/annotations/:aid/restore", s.restore)
		api.GET("/jobs/:id/annotations/:aid/lineage", s.lineage)

		api.POST("/jobs/:id/actions/cascade-promote", s.cascadePromote)
		api.POST("/jobs/:id/actions/bulk-reject", s.bulkReject)
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// fail maps service errors onto HTTP statuses.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, jobstore.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInput):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrTransientDependency):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func jobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return uuid.Nil, false
	}
	return id, true
}

type submitRequest struct {
	Text   string `json:"text"`
	Format string `json:"format"`
}

func (s *Server) submit(c *gin.Context) {
	var raw []byte
	format := model.FormatPlainText

	switch c.ContentType() {
	case "application/json":
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		raw = []byte(req.Text)
		if req.Format != "" {
			format = model.DocumentFormat(req.Format)
		}
	default:
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		raw = body
		switch c.ContentType() {
		case "text/html":
			format = model.FormatHTML
		case "text/markdown":
			format = model.FormatMarkdown
		}
	}

	id, err := s.svc.Submit(c.Request.Context(), raw, format)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": id.String()})
}

func (s *Server) list(c *gin.Context) {
	jobs, err := s.svc.List()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) status(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	st, err := s.svc.Status(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) result(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	partial := c.Query("partial") == "true"
	res, err := s.svc.Result(c.Request.Context(), id, partial)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) cancel(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	if err := s.svc.Cancel(id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": id.String()})
}

// events streams job progress as server-sent events until the client
// disconnects or the job reaches a terminal state.
func (s *Server) events(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	ch, unsubscribe, err := s.svc.Subscribe(id)
	if err != nil {
		fail(c, err)
		return
	}
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	// Replay current state first so late subscribers see where the job is.
	if st, err := s.svc.Status(id); err == nil {
		c.SSEvent("status", st)
		c.Writer.Flush()
		if st.State != model.JobPending && st.State != model.JobRunning {
			return
		}
	}

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			c.SSEvent(ev.Kind, ev)
			c.Writer.Flush()
			if len(ev.Kind) > 4 && ev.Kind[:4] == "job." {
				return
			}
		}
	}
}

type promoteRequest struct {
	BackupIRI string `json:"backup_iri" binding:"required"`
}

func (s *Server) promote(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	var req promoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.svc.Promote(id, c.Param("aid"), req.BackupIRI); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"promoted": req.BackupIRI})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) reject(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)
	if err := s.svc.Reject(id, c.Param("aid"), req.Reason); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rejected": c.Param("aid")})
}

func (s *Server) restore(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	if err := s.svc.Restore(id, c.Param("aid")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": c.Param("aid")})
}

func (s *Server) lineage(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	events, err := s.svc.Lineage(id, c.Param("aid"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lineage": events})
}

type iriRequest struct {
	IRI    string `json:"iri" binding:"required"`
	Reason string `json:"reason"`
}

func (s *Server) cascadePromote(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	var req iriRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := s.svc.CascadePromote(id, req.IRI)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"promoted": n})
}

func (s *Server) bulkReject(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	var req iriRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := s.svc.BulkReject(id, req.IRI, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rejected": n})
}
