// Package api exposes the search pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"price-agent/metrics"
	"price-agent/models"
	"price-agent/storage"
	"price-agent/utils"
)

// Searcher runs one search. *services.Engine satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string) (*models.Recommendation, error)
	Platforms() []string
}

// Server is the gin front end. Running totals live on the instance.
type Server struct {
	engine   Searcher
	exporter storage.ListingExporter
	metrics  *metrics.Registry
	logger   *utils.Logger
	router   *gin.Engine
	started  time.Time

	mu    sync.Mutex
	stats stats
}

type stats struct {
	Searches   int            `json:"searches"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	ByFailure  map[string]int `json:"by_failure"`
	Fallbacks  int            `json:"narrative_fallbacks"`
	Degraded   int            `json:"history_degraded"`
	LastQuery  string         `json:"last_query,omitempty"`
	LastSearch *time.Time     `json:"last_search,omitempty"`
}

type searchRequest struct {
	Query string `json:"query" binding:"required"`
}

type errorResponse struct {
	Error       string   `json:"error"`
	Kind        string   `json:"kind,omitempty"`
	Retryable   bool     `json:"retryable"`
	Unavailable []string `json:"unavailable_platforms,omitempty"`
}

// NewServer builds the router. exporter and reg may be nil.
func NewServer(engine Searcher, exporter storage.ListingExporter, reg *metrics.Registry, logger *utils.Logger) *Server {
	s := &Server{
		engine:   engine,
		exporter: exporter,
		metrics:  reg,
		logger:   logger,
		router:   gin.New(),
		started:  time.Now(),
		stats:    stats{ByFailure: make(map[string]int)},
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("[api] Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	g := s.router.Group("/api")
	g.GET("/health", s.handleHealth)
	g.GET("/stats", s.handleStats)
	g.POST("/search", s.handleSearch)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"platforms": s.engine.Platforms(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	s.mu.Lock()
	snapshot := s.stats
	snapshot.ByFailure = make(map[string]int, len(s.stats.ByFailure))
	for k, v := range s.stats.ByFailure {
		snapshot.ByFailure[k] = v
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "query is required", Kind: string(models.FailureValidation)})
		return
	}

	rec, err := s.engine.Search(c.Request.Context(), req.Query)
	s.record(req.Query, rec, err)
	if err != nil {
		status, body := failureResponse(err)
		c.JSON(status, body)
		return
	}

	if s.exporter != nil {
		if xerr := s.exporter.WriteListings(rec.Query, rec.AllProducts); xerr != nil {
			s.logger.Warn("[api] CSV export failed: %v", xerr)
		}
	}
	c.JSON(http.StatusOK, rec)
}

// failureResponse maps a search failure to an HTTP status: bad input is
// 400, no matching products 404, temporary faults 503.
func failureResponse(err error) (int, errorResponse) {
	var se *models.SearchError
	if !errors.As(err, &se) {
		return http.StatusInternalServerError, errorResponse{Error: err.Error()}
	}
	body := errorResponse{Error: se.Error(), Kind: string(se.Kind), Retryable: se.Retryable, Unavailable: se.Unavailable}
	switch {
	case se.Kind == models.FailureValidation:
		return http.StatusBadRequest, body
	case se.Retryable:
		return http.StatusServiceUnavailable, body
	case se.Kind == models.FailureNoResults:
		return http.StatusNotFound, body
	default:
		return http.StatusInternalServerError, body
	}
}

func (s *Server) record(query string, rec *models.Recommendation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.stats.Searches++
	s.stats.LastQuery = query
	s.stats.LastSearch = &now
	if err != nil {
		s.stats.Failed++
		kind := "internal"
		var se *models.SearchError
		if errors.As(err, &se) {
			kind = string(se.Kind)
		}
		s.stats.ByFailure[kind]++
		return
	}
	s.stats.Succeeded++
	if rec.NarrativeFallback {
		s.stats.Fallbacks++
	}
	if rec.HistoryDegraded {
		s.stats.Degraded++
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("[api] %s %s → %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}
