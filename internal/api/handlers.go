package api

import (
	"net/http"

	"bankfeed-reconciliation-service/internal/models"
	apperrors "bankfeed-reconciliation-service/pkg/errors"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleAutoMatch runs one matching pass over all matchable lines
func (s *Server) handleAutoMatch(c *gin.Context) {
	report, err := s.service.RunAutoMatch(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) handleListLines(c *gin.Context) {
	lines, err := s.store.ListLines(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"lines": lines, "count": len(lines)})
}

func (s *Server) handleGetLine(c *gin.Context) {
	line, err := s.store.GetLine(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, line)
}

func (s *Server) handleSuggestions(c *gin.Context) {
	ranked, err := s.service.Suggestions(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ranked)
}

// handleQuickMatch matches a single line on demand. When no candidate clears
// the threshold the ranked suggestions come back with 200 and matched=false
// so the frontend can offer them for manual review.
func (s *Server) handleQuickMatch(c *gin.Context) {
	match, ranked, err := s.service.QuickMatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNoSuggestion) {
			c.JSON(http.StatusOK, gin.H{"matched": false, "suggestions": ranked})
			return
		}
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"matched": true, "match": match, "suggestions": ranked})
}

type acceptSuggestionRequest struct {
	RecordType string `json:"record_type" binding:"required"`
	RecordID   string `json:"record_id" binding:"required"`
	Score      int    `json:"score"`
}

func (s *Server) handleAcceptSuggestion(c *gin.Context) {
	var req acceptSuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	recordType, err := models.ParseRecordType(req.RecordType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	match, err := s.service.AcceptSuggestion(c.Request.Context(), c.Param("id"), recordType, req.RecordID, req.Score)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, match)
}

func (s *Server) handleUnmatch(c *gin.Context) {
	if err := s.service.Unmatch(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "line unmatched"})
}

func (s *Server) handleIgnore(c *gin.Context) {
	if err := s.service.IgnoreLine(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "line ignored"})
}

func (s *Server) handleMissingRecord(c *gin.Context) {
	if err := s.service.MarkMissingRecord(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "line marked as missing record"})
}

func (s *Server) handleRestore(c *gin.Context) {
	if err := s.service.RestoreLine(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "line restored"})
}

func (s *Server) handleDeleteLine(c *gin.Context) {
	if err := s.service.DeleteLine(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "line deleted"})
}

func (s *Server) handleUnmatchedRecords(c *gin.Context) {
	records, err := s.store.ListUnmatchedRecords(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// respondError maps service errors onto HTTP statuses
func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	if serviceErr, ok := apperrors.AsServiceError(err); ok {
		switch serviceErr.Code {
		case apperrors.CodeNotFound:
			status = http.StatusNotFound
		case apperrors.CodeDuplicateMatch, apperrors.CodeConflict, apperrors.CodeLineNotMatchable:
			status = http.StatusConflict
		case apperrors.CodeInvalidField, apperrors.CodeMissingField, apperrors.CodeInvalidData:
			status = http.StatusBadRequest
		}
	}

	if status == http.StatusInternalServerError {
		s.logger.WithError(err).Error("request failed")
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
