// Package web serves the bancho endpoint over HTTP.
package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cory-johannsen/bancho/internal/config"
	"github.com/cory-johannsen/bancho/internal/gameserver"
)

// Header names of the bancho exchange.
const (
	HeaderRequestToken  = "osu-token"
	HeaderResponseToken = "cho-token"
	HeaderProtocol      = "cho-protocol"
	// ClientUserAgent is the user agent every game client sends.
	ClientUserAgent = "osu!"
)

// Bancho is the protocol engine behind the endpoint.
type Bancho interface {
	Login(ctx context.Context, body []byte) gameserver.LoginResult
	HandleRequest(ctx context.Context, token string, body []byte) []byte
	OnlineCount() int
}

var banner = template.Must(template.New("banner").Parse(`<!DOCTYPE html>
<html><head><title>bancho</title></head>
<body><pre>bancho is running
protocol {{.Protocol}}
{{.Online}} online</pre></body></html>
`))

// Server is the HTTP listener for the bancho endpoint.
type Server struct {
	cfg      config.HTTPConfig
	protocol int32
	bancho   Bancho
	logger   *zap.Logger
	router   *gin.Engine

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds the router for bancho.
//
// Precondition: bancho and logger must be non-nil.
func NewServer(cfg config.HTTPConfig, protocol int32, bancho Bancho, logger *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		protocol: protocol,
		bancho:   bancho,
		logger:   logger,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.logger))
	router.SetHTMLTemplate(banner)

	router.GET("/", s.handleBanner)
	router.POST("/", s.handleBancho)
	return router
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.mu.Lock()
	s.listener = ln
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("http listener started", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// Stop shuts the listener down, waiting for in-flight requests until ctx
// expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http: %w", err)
	}
	return nil
}

func (s *Server) handleBanner(c *gin.Context) {
	c.HTML(http.StatusOK, "banner", gin.H{
		"Protocol": s.protocol,
		"Online":   s.bancho.OnlineCount(),
	})
}

func (s *Server) handleBancho(c *gin.Context) {
	if c.GetHeader("User-Agent") != ClientUserAgent {
		c.String(http.StatusBadRequest, "unsupported client")
		return
	}
	body, err := s.readBody(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		s.logger.Warn("reading request body", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}

	ctx := c.Request.Context()
	c.Header(HeaderProtocol, fmt.Sprint(s.protocol))
	token := c.GetHeader(HeaderRequestToken)
	if token == "" {
		res := s.bancho.Login(ctx, body)
		c.Header(HeaderResponseToken, res.Token)
		c.Data(http.StatusOK, "application/octet-stream", res.Body)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", s.bancho.HandleRequest(ctx, token, body))
}

func (s *Server) readBody(c *gin.Context) ([]byte, error) {
	limit := s.cfg.MaxBodyBytes
	if limit <= 0 {
		return io.ReadAll(c.Request.Body)
	}
	if c.Request.ContentLength > limit {
		return nil, &http.MaxBytesError{Limit: limit}
	}
	return io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Bool("login", c.GetHeader(HeaderRequestToken) == ""))
	}
}
