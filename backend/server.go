// Package backend serves live trip sessions to the web front end over
// HTTP. Each browser tab gets a live session held in memory; the server
// calls the trip planner API on the user's behalf with the tokens it was
// given when the session was opened.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/config"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/errors"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/logging"
)

const shutdownTimeout = 15 * time.Second

// Server is the live trip HTTP service.
type Server struct {
	cfg      *config.Config
	logger   *logging.Logger
	registry *Registry
	engine   *gin.Engine
	closers  []func(context.Context) error
}

// NewServer wires the live session registry from configuration: the remote
// API, the optional Mongo plan store and the suggestion provider.
func NewServer(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Server, error) {
	rc := RegistryConfig{
		APIBaseURL: cfg.API.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.API.Timeout},
		Session:    sessionConfig(cfg),
		IdleTTL:    cfg.Session.IdleTTL,
		Logger:     logger,
	}
	var closers []func(context.Context) error

	if cfg.Mongo.URI != "" {
		store, err := NewMongoPlanStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err != nil {
			return nil, err
		}
		rc.Plans = store
		closers = append(closers, store.Close)
		logger.Info("MongoDB connected", "database", cfg.Mongo.Database, "collection", cfg.Mongo.Collection)
	}

	if cfg.Suggestions.Provider == config.ProviderGemini {
		gemini, err := NewGeminiSuggester(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, logger)
		if err != nil {
			return nil, err
		}
		rc.Suggester = gemini
		closers = append(closers, func(context.Context) error { return gemini.Close() })
	}

	s := newServer(cfg, logger, NewRegistry(rc))
	s.closers = closers
	return s, nil
}

func newServer(cfg *config.Config, logger *logging.Logger, registry *Registry) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger.WithComponent("backend"),
		registry: registry,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	corsCfg := cors.Config{
		AllowOrigins:     s.cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Refresh-Token"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsCfg.AllowOrigins) == 0 {
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	}
	r.Use(cors.New(corsCfg))

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":   "ok",
				"time":     time.Now(),
				"sessions": s.registry.Len(),
			})
		})

		live := api.Group("/live/sessions")
		live.POST("", s.openSession)
		live.GET("/:sid", s.getSession)
		live.DELETE("/:sid", s.closeSession)
		live.POST("/:sid/navigate", s.navigate)
		live.GET("/:sid/notifications", s.notifications)

		live.POST("/:sid/activities/:aid/toggle", s.toggleActivity)
		live.DELETE("/:sid/activities/:aid", s.removeActivity)
		live.GET("/:sid/navigate-link/:aid", s.navigateLink)
		live.POST("/:sid/notes", s.saveNote)

		live.POST("/:sid/chat", s.openChat)
		live.GET("/:sid/chat", s.getChat)
		live.DELETE("/:sid/chat", s.closeChat)
		live.POST("/:sid/chat/messages", s.chatMessage)
		live.POST("/:sid/chat/accept", s.acceptSuggestion)
		live.POST("/:sid/chat/reject", s.rejectSuggestion)
	}
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully and closes
// every live session so pending plan writes finish.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			serveErr = fmt.Errorf("shutdown: %w", err)
		}
	}

	s.registry.Close()
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, closeFn := range s.closers {
		if err := closeFn(closeCtx); err != nil {
			s.logger.Warn("failed to release resource", "error", err)
		}
	}
	return serveErr
}
