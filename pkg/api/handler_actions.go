package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ecomops/opsloop/pkg/models"
)

// actionID parses the :id path parameter. Writes a 400 and returns false on
// garbage input.
func actionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid action id"})
		return 0, false
	}
	return id, true
}

// pendingActionsHandler handles GET /api/v1/actions/pending.
func (s *Server) pendingActionsHandler(c *gin.Context) {
	items, err := s.actions.ListPending(c.Request.Context())
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.PendingActionsResponse{Items: items})
}

// approveActionHandler handles POST /api/v1/actions/approve/:id. The body
// carries the decision; execute_immediately runs an approved action in the
// same request.
func (s *Server) approveActionHandler(c *gin.Context) {
	id, ok := actionID(c)
	if !ok {
		return
	}

	var req models.ApproveActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	ctx := c.Request.Context()
	author := extractAuthor(c)

	switch req.Status {
	case models.ActionApproved:
		action, err := s.actions.Approve(ctx, id, req.Comment)
		if err != nil {
			mapServiceError(c, err)
			return
		}
		s.logger.Info("Action approved", "action_id", id, "author", author)

		resp := ActionDecisionResponse{Action: action}
		if req.ExecuteImmediately {
			result, err := s.runner.ExecuteApproved(ctx, id)
			if err != nil {
				mapServiceError(c, err)
				return
			}
			resp.Execution = result
		}
		c.JSON(http.StatusOK, resp)

	case models.ActionRejected:
		action, err := s.actions.Reject(ctx, id, req.Comment)
		if err != nil {
			mapServiceError(c, err)
			return
		}
		s.logger.Info("Action rejected", "action_id", id, "author", author)
		c.JSON(http.StatusOK, ActionDecisionResponse{Action: action})

	default:
		c.JSON(http.StatusBadRequest, gin.H{"detail": "status must be approved or rejected"})
	}
}

// executeActionHandler handles POST /api/v1/actions/execute/:id. The action
// must already be approved. Tool faults come back as a failed execution
// result with HTTP 200; the row stays approved so the call can be retried.
func (s *Server) executeActionHandler(c *gin.Context) {
	id, ok := actionID(c)
	if !ok {
		return
	}

	result, err := s.runner.ExecuteApproved(c.Request.Context(), id)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
