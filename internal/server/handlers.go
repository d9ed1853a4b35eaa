package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scenicrun/scenic/internal/browser"
	"github.com/scenicrun/scenic/internal/outcome"
	"github.com/scenicrun/scenic/internal/pool"
)

// executeRequest is the script execution payload.
type executeRequest struct {
	Script         string         `json:"script" binding:"required"`
	Params         map[string]any `json:"params"`
	TimeoutSeconds int            `json:"timeoutSeconds"`
}

func (r executeRequest) timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	cfg := browser.DefaultConfig()
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	id, err := s.pool.Create(c.Request.Context(), cfg)
	if err != nil {
		s.log.Error("session creation failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (s *Server) handleListSessions(c *gin.Context) {
	infos := s.pool.ListActive()
	if infos == nil {
		infos = []pool.Info{}
	}
	c.JSON(http.StatusOK, infos)
}

func (s *Server) handleGetSession(c *gin.Context) {
	h, err := s.pool.Get(c.Param("id"))
	if err != nil {
		c.JSON(sessionStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.Info())
}

func (s *Server) handleTerminateSession(c *gin.Context) {
	s.pool.Terminate(c.Request.Context(), c.Param("id"))
	c.Status(http.StatusNoContent)
}

// handleExecuteOn runs a script on a specific session.
func (s *Server) handleExecuteOn(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	out, err := s.pool.ExecuteOn(c.Request.Context(), id, s.task(c.Request.Context(), req))
	if err != nil {
		c.JSON(sessionStatus(err), gin.H{"error": err.Error()})
		return
	}

	s.results.Save(id, out)
	c.JSON(http.StatusOK, out)
}

// handleExecute runs a script on the most recent session, creating and
// replacing sessions as needed.
func (s *Server) handleExecute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := s.pool.Execute(c.Request.Context(), s.task(c.Request.Context(), req))
	if err != nil {
		c.JSON(sessionStatus(err), gin.H{"error": err.Error()})
		return
	}

	s.results.Save("", out)
	c.JSON(http.StatusOK, out)
}

// task adapts an execute request into a pool task running in the sandbox.
func (s *Server) task(ctx context.Context, req executeRequest) pool.Task {
	return func(h *pool.Handle) (outcome.Outcome, error) {
		return s.sandbox.Run(ctx, h.ID, h.Session, req.Script, req.Params, req.timeout())
	}
}

func (s *Server) handleListResults(c *gin.Context) {
	c.JSON(http.StatusOK, s.results.GetAll())
}

func (s *Server) handleGetResult(c *gin.Context) {
	rec, ok := s.results.GetByID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleDeleteResult(c *gin.Context) {
	if !s.results.DeleteByID(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// sessionStatus maps pool errors to HTTP statuses.
func sessionStatus(err error) int {
	switch {
	case errors.Is(err, pool.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pool.ErrExpired):
		return http.StatusGone
	case errors.Is(err, pool.ErrProvisioning), errors.Is(err, pool.ErrRetriesExhausted):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
