package api

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mailfleet/mailfleet/pkg/config"
	"github.com/mailfleet/mailfleet/pkg/metrics"
)

// CorrelationIDHeader carries the request correlation id for tracing.
const CorrelationIDHeader = "X-Correlation-ID"

type APIController interface {
	BasePath() string
	Register(rg *gin.RouterGroup) error
}

type Server struct {
	gin    *gin.Engine
	config config.Config
}

func NewServer(log *zap.Logger, cfg config.Config, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		CorrelationID(),
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
	)

	if len(cfg.Server.TrustedProxies) > 0 {
		_ = engine.SetTrustedProxies(cfg.Server.TrustedProxies)
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	return &Server{gin: engine, config: cfg}
}

func (s *Server) RegisterAll(controllers []APIController) error {
	r := s.gin.Group("api")
	for _, c := range controllers {
		if err := c.Register(r.Group(c.BasePath())); err != nil {
			return err
		}
	}
	return nil
}

// Listen blocks serving HTTP (or HTTPS when TLS files are configured).
func (s *Server) Listen() error {
	if s.config.Server.TLSCertFile != "" && s.config.Server.TLSKeyFile != "" {
		return s.gin.RunTLS(s.config.Server.ListenAddress, s.config.Server.TLSCertFile, s.config.Server.TLSKeyFile)
	}
	return s.gin.Run(s.config.Server.ListenAddress)
}

// Engine exposes the router, primarily for tests.
func (s *Server) Engine() *gin.Engine { return s.gin }

// CorrelationID honors an inbound X-Correlation-ID header or mints a new
// uuid, and echoes it on the response.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("correlationID", id)
		c.Header(CorrelationIDHeader, id)
		c.Next()
	}
}
