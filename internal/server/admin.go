package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	schemaerrors "github.com/Aman-CERP/searchschema/internal/errors"
	"github.com/Aman-CERP/searchschema/internal/telemetry"
)

// abortWithError writes the structured error body. Retryable store errors
// map to 503, everything else to 500.
func (s *Server) abortWithError(c *gin.Context, event string, err error) {
	s.logger.Warn(event, schemaerrors.LogAttrs(err)...)

	status := http.StatusInternalServerError
	if se, ok := schemaerrors.As(err); ok && se.Retryable {
		status = http.StatusServiceUnavailable
	}
	body, jerr := schemaerrors.FormatJSON(err)
	if jerr != nil {
		c.AbortWithStatus(status)
		return
	}
	c.Data(status, "application/json", body)
	c.Abort()
}

func (s *Server) handleStatus(c *gin.Context) {
	st, err := s.currentManager().Status(c.Request.Context())
	if err != nil {
		s.abortWithError(c, "admin_status_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleHistory(c *gin.Context) {
	passes := s.currentManager().History().Passes()
	if passes == nil {
		passes = []telemetry.Pass{}
	}
	c.JSON(http.StatusOK, passes)
}

func (s *Server) handleArchived(c *gin.Context) {
	names, err := s.currentManager().ArchivedIndices(c.Request.Context())
	if err != nil {
		s.abortWithError(c, "admin_archived_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"indices": orEmpty(names)})
}

type confirmRequest struct {
	Confirm bool `form:"confirm"`
}

func (s *Server) handleTruncate(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindQuery(&req); err != nil || !req.Confirm {
		c.JSON(http.StatusBadRequest, gin.H{"error": "truncate removes every document; repeat with ?confirm=true"})
		return
	}

	names, err := s.currentManager().TruncateIndices(c.Request.Context())
	if err != nil {
		s.abortWithError(c, "admin_truncate_failed", err)
		return
	}
	s.logger.Info("admin_truncate", slog.Int("indices", len(names)))
	c.JSON(http.StatusOK, gin.H{"truncated": orEmpty(names)})
}

func (s *Server) handleDeleteArchived(c *gin.Context) {
	m := s.currentManager()
	names, err := m.ArchivedIndices(c.Request.Context())
	if err != nil {
		s.abortWithError(c, "admin_delete_archived_failed", err)
		return
	}
	if err := m.DeleteArchivedIndices(c.Request.Context()); err != nil {
		s.abortWithError(c, "admin_delete_archived_failed", err)
		return
	}
	s.logger.Info("admin_delete_archived", slog.Int("indices", len(names)))
	c.JSON(http.StatusOK, gin.H{"deleted": orEmpty(names)})
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
