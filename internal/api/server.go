package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"example.com/safegear/services/ppe/config"
)

// Server wraps the HTTP server
type Server struct {
	httpServer *http.Server
	log        *logrus.Logger
}

// NewServer creates the HTTP server with all middleware and routes mounted
func NewServer(cfg *config.ServerConfig, handler *Handler, nrApp *newrelic.Application, log *logrus.Logger) *Server {
	gin.SetMode(cfg.Mode)

	router := gin.New()
	if nrApp != nil {
		router.Use(nrgin.Middleware(nrApp))
	}
	router.Use(recovery(log))
	router.Use(requestLogger(log))

	handler.Register(router)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		log: log,
	}
}

// Start begins serving; it blocks until the server stops
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("Starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
