// Package server exposes the HTTP surface: a health probe and the
// multipart upload endpoint that feeds the pipeline.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/voicepost/voicepost/iox"
	"github.com/voicepost/voicepost/log"
	"github.com/voicepost/voicepost/pipeline"
	"github.com/voicepost/voicepost/types"
)

// Config carries the HTTP server settings.
type Config struct {
	// Port to listen on.
	Port int
	// UploadField is the multipart form field holding the audio file.
	UploadField string
	// MaxUploadBytes caps the request body. Zero disables the cap.
	MaxUploadBytes int64
	// CORSOrigins lists allowed origins. Empty allows all.
	CORSOrigins []string
}

// Server handles upload requests and hands them to the pipeline.
type Server struct {
	config   Config
	pipeline *pipeline.Pipeline
	logger   *log.Logger
	engine   *gin.Engine
	http     *http.Server
}

// response is the JSON body returned for every upload request.
type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// New creates a server with its routes registered.
func New(cfg Config, p *pipeline.Pipeline, logger *log.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config:   cfg,
		pipeline: p,
		logger:   logger,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware(cfg.CORSOrigins))

	engine.GET("/", s.handleHealth)
	engine.POST("/upload-audio", s.handleUpload)

	s.engine = engine
	return s
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.DefaultConfig()
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	cc.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	return cors.New(cc)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving and blocks until the listener stops.
// Returns nil after a clean Shutdown.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("server listening", map[string]any{
		"port":    s.config.Port,
		"version": types.Version,
	})
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on port %d: %w", s.config.Port, err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "Voice message server is running")
}

// handleUpload processes one multipart voice upload. The missing-file
// check runs before anything touches disk, so a bad request leaves no
// temp file behind. Everything after that is the pipeline's problem.
func (s *Server) handleUpload(c *gin.Context) {
	requestID := uuid.NewString()
	logger := s.logger.WithRequest(requestID)

	if s.config.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes)
	}

	header, err := c.FormFile(s.config.UploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			logger.Warn("upload body too large", map[string]any{"limit_bytes": maxErr.Limit})
			c.JSON(http.StatusBadRequest, response{Success: false, Message: "File too large"})
			return
		}
		logger.Warn("upload missing file", map[string]any{
			"field": s.config.UploadField,
			"error": err.Error(),
		})
		c.JSON(http.StatusBadRequest, response{Success: false, Message: "No file uploaded"})
		return
	}

	file, err := header.Open()
	if err != nil {
		logger.Error("upload open failed", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, response{Success: false, Message: "Upload failed"})
		return
	}
	defer iox.DiscardClose(file)

	outcome := s.pipeline.Run(c.Request.Context(), logger, header.Filename, file)
	logger.Info("request complete", map[string]any{
		"status":  outcome.Status.String(),
		"message": outcome.Message,
	})

	c.JSON(outcome.HTTPStatus(), response{Success: outcome.OK(), Message: outcome.Message})
}
