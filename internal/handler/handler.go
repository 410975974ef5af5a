package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smart-mail-responder-go/internal/model"
)

// Scheduler is the part of the batch scheduler exposed over HTTP.
type Scheduler interface {
	Start() error
	Stop() error
	IsRunning() bool
	RunOnce(ctx context.Context) *model.BatchRunSummary
	NextRun() time.Time
	LastRun() time.Time
	LastSummary() *model.BatchRunSummary
	Interval() time.Duration
}

// Handlers contains all HTTP handlers
type Handlers struct {
	scheduler Scheduler
	gatherer  prometheus.Gatherer
	mailbox   string
	generator string
}

// NewHandlers creates new HTTP handlers. mailbox and generator are the
// provider names reported by the health check.
func NewHandlers(scheduler Scheduler, gatherer prometheus.Gatherer, mailbox, generator string) *Handlers {
	return &Handlers{
		scheduler: scheduler,
		gatherer:  gatherer,
		mailbox:   mailbox,
		generator: generator,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)

		api.GET("/runs/last", h.GetLastRun)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Mailbox:   h.mailbox,
		Generator: h.generator,
		Metrics:   make(map[string]string),
	}

	if h.scheduler.IsRunning() {
		response.Metrics["scheduler"] = "running"
		response.Metrics["next_run"] = h.scheduler.NextRun().Format(time.RFC3339)
	} else {
		response.Metrics["scheduler"] = "stopped"
	}
	if last := h.scheduler.LastRun(); !last.IsZero() {
		response.Metrics["last_run"] = last.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, response)
}
