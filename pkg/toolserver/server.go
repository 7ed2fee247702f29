package toolserver

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Server is the HTTP surface of the tool registry. Every tool call goes
// through POST /invoke; GET /health reports liveness and the tool count.
type Server struct {
	registry *Registry
	apiKey   string
	logger   *slog.Logger
}

// NewServer builds the server. An empty apiKey disables auth, which is only
// sensible for local development; production deployments set MCP_API_KEY on
// both sides of the transport.
func NewServer(registry *Registry, apiKey string) *Server {
	s := &Server{
		registry: registry,
		apiKey:   apiKey,
		logger:   slog.With("component", "toolserver"),
	}
	if apiKey == "" {
		s.logger.Warn("No API key configured, running without authentication")
	}
	return s
}

// invokeRequest is the wire shape of a tool call.
type invokeRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.healthHandler)
	router.POST("/invoke", s.invokeHandler)

	return router
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"tools":  s.registry.Len(),
	})
}

// invokeHandler dispatches one tool call. The error contract mirrors what
// the client expects: 401 unauthorized, 404 unknown_tool, 400
// invalid_arguments, 500 query_failed, all as {success: false, error:
// {type, message}} bodies.
func (s *Server) invokeHandler(c *gin.Context) {
	start := time.Now()

	if !s.authorized(c) {
		errorJSON(c, http.StatusUnauthorized, "unauthorized", "missing or invalid API key")
		return
	}

	var req invokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_arguments", "request body must be a JSON object with tool and arguments")
		return
	}
	if req.Tool == "" {
		errorJSON(c, http.StatusBadRequest, "invalid_arguments", "tool name is required")
		return
	}

	handler, ok := s.registry.Lookup(req.Tool)
	if !ok {
		errorJSON(c, http.StatusNotFound, "unknown_tool", fmt.Sprintf("unknown tool %q", req.Tool))
		return
	}

	args := req.Arguments
	if args == nil {
		args = map[string]any{}
	}

	result, err := handler(c.Request.Context(), args)
	if err != nil {
		if errors.Is(err, ErrInvalidArguments) {
			errorJSON(c, http.StatusBadRequest, "invalid_arguments", err.Error())
			return
		}
		s.logger.Error("Tool execution failed", "tool", req.Tool, "error", err)
		errorJSON(c, http.StatusInternalServerError, "query_failed", fmt.Sprintf("tool %s failed: %v", req.Tool, err))
		return
	}

	durationMS := float64(time.Since(start).Microseconds()) / 1000.0
	s.logger.Info("Tool invoked", "tool", req.Tool, "duration_ms", durationMS)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  result,
		"metadata": gin.H{
			"tool":        req.Tool,
			"duration_ms": durationMS,
		},
	})
}

func (s *Server) authorized(c *gin.Context) bool {
	if s.apiKey == "" {
		return true
	}
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.apiKey)) == 1
}

func errorJSON(c *gin.Context, status int, errType, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"type":    errType,
			"message": message,
		},
	})
}
