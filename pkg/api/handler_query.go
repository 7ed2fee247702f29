package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ecomops/opsloop/pkg/models"
)

// queryHandler handles POST /api/v1/query. Runs the question through the
// engine; when the run proposes mutations the response carries the pending
// actions and the thread id to resume with.
func (s *Server) queryHandler(c *gin.Context) {
	var req models.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	resp, err := s.engine.Run(c.Request.Context(), req)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// resumeHandler handles POST /api/v1/query/resume. Loads the suspended
// thread, applies the approval decisions and finishes the run.
func (s *Server) resumeHandler(c *gin.Context) {
	var req models.ResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	resp, err := s.engine.Resume(c.Request.Context(), req)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// activeRunsHandler handles GET /api/v1/runs/active: the threads currently
// held by an in-flight query or resume.
func (s *Server) activeRunsHandler(c *gin.Context) {
	runs := s.sessions.Active()
	c.JSON(http.StatusOK, gin.H{"items": runs, "count": len(runs)})
}
