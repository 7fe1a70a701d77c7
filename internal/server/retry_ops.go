package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RetryQueue lists submission attempts parked for an operator: paused
// after an authentication failure or exhausted beyond the retry budget.
func (s *Server) RetryQueue(c *gin.Context) {
	limit := 50
	if parsed, err := parseOptionalInt(c.Query("limit")); err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	} else if parsed != nil {
		limit = *parsed
	}

	attempts, err := s.complianceSvc.RetryQueue(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": attempts})
}

type resetRetryRequest struct {
	Channel string `json:"channel"`
}

// ResetRetry re-arms a parked attempt with a fresh retry budget. This is
// the only way an exhausted or paused invoice gets submitted again.
func (s *Server) ResetRetry(c *gin.Context) {
	id, ok := s.invoiceID(c)
	if !ok {
		return
	}

	var req resetRetryRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Channel) == "" {
		AbortWithError(c, newValidationError("channel", "required", "submission channel is required"))
		return
	}

	reset, err := s.complianceSvc.ResetRetry(c.Request.Context(), id, strings.TrimSpace(req.Channel))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !reset {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"reset": true}})
}
