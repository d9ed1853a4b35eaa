// Package server exposes the session pool, the sandbox and the result
// storage over HTTP. It is a thin surface: all concurrency, lifecycle and
// retry semantics live in the components it wires.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/scenicrun/scenic/internal/cache"
	"github.com/scenicrun/scenic/internal/logging"
	"github.com/scenicrun/scenic/internal/pool"
	"github.com/scenicrun/scenic/internal/results"
	"github.com/scenicrun/scenic/internal/sandbox"
)

// Server wires the HTTP surface to the core components.
type Server struct {
	router  *gin.Engine
	pool    *pool.Pool
	sandbox *sandbox.Sandbox
	cache   *cache.Cache
	results *results.Store
	log     *logging.Logger
	httpSrv *http.Server
}

// New creates a server over the given components.
func New(p *pool.Pool, sb *sandbox.Sandbox, c *cache.Cache, rs *results.Store, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	s := &Server{
		router:  router,
		pool:    p,
		sandbox: sb,
		cache:   c,
		results: rs,
		log:     log,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	{
		remote := api.Group("/remote")
		{
			remote.POST("/sessions", s.handleCreateSession)
			remote.GET("/sessions", s.handleListSessions)
			remote.GET("/sessions/:id", s.handleGetSession)
			remote.DELETE("/sessions/:id", s.handleTerminateSession)
			remote.POST("/sessions/:id/execute", s.handleExecuteOn)
		}

		api.POST("/execute", s.handleExecute)

		api.GET("/results", s.handleListResults)
		api.GET("/results/:id", s.handleGetResult)
		api.DELETE("/results/:id", s.handleDeleteResult)
	}
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP on addr until Close is called.
func (s *Server) Run(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("http server listening", zap.String("addr", addr))

	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts the HTTP server down gracefully.
func (s *Server) Close(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
