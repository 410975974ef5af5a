package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetLastRun returns the summary of the most recent batch
func (h *Handlers) GetLastRun(c *gin.Context) {
	summary := h.scheduler.LastSummary()
	if summary == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "No batch has run yet",
			Code:    http.StatusNotFound,
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}
