package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// StartScheduler starts the email processing scheduler
func (h *Handlers) StartScheduler(c *gin.Context) {
	if err := h.scheduler.Start(); err != nil {
		logrus.Errorf("Failed to start scheduler: %v", err)
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "scheduler_error",
			Message: err.Error(),
			Code:    http.StatusConflict,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler started successfully",
		"status":  "running",
	})
}

// StopScheduler stops the email processing scheduler
func (h *Handlers) StopScheduler(c *gin.Context) {
	if err := h.scheduler.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: "Failed to stop scheduler",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler stopped successfully",
		"status":  "stopped",
	})
}

// RunOnce runs one batch synchronously and returns its summary
func (h *Handlers) RunOnce(c *gin.Context) {
	summary := h.scheduler.RunOnce(c.Request.Context())
	c.JSON(http.StatusOK, summary)
}

// GetSchedulerStatus returns the current scheduler status
func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	response := SchedulerStatusResponse{
		Status:   "stopped",
		Interval: h.scheduler.Interval().String(),
	}
	if h.scheduler.IsRunning() {
		response.Status = "running"
		response.NextRun = timePtr(h.scheduler.NextRun())
	}
	response.LastRun = timePtr(h.scheduler.LastRun())

	c.JSON(http.StatusOK, response)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
