package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ecomops/opsloop/pkg/models"
)

// queryInt parses an optional integer query parameter. Returns false after
// writing a 400 when the value is present but not a number.
func queryInt(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid " + name})
		return 0, false
	}
	return v, true
}

// incidentsHandler handles GET /api/v1/history/incidents?limit=&offset=.
func (s *Server) incidentsHandler(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}

	items, total, err := s.history.ListIncidents(c.Request.Context(), limit, offset)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.IncidentsResponse{Items: items, Total: total})
}

// incidentSearchHandler handles GET /api/v1/history/incidents/search?query=&k=.
func (s *Server) incidentSearchHandler(c *gin.Context) {
	k, ok := queryInt(c, "k", 0)
	if !ok {
		return
	}

	items, err := s.history.Search(c.Request.Context(), c.Query("query"), k)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.IncidentSearchResponse{Items: items})
}
