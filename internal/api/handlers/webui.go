package handlers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/blindscan/scanhost/internal/core"
)

type DashboardStats struct {
	TotalDevices     int `json:"total_devices"`
	AvailableDevices int `json:"available_devices"`
	BusyDevices      int `json:"busy_devices"`
	TotalJobs        int `json:"total_jobs"`
	ActiveJobs       int `json:"active_jobs"`
	CompletedJobs    int `json:"completed_jobs"`
	FailedJobs       int `json:"failed_jobs"`
}

// WebUIHandler backs the single-page frontend: static assets plus the
// aggregate stats the dashboard polls.
type WebUIHandler struct {
	orchestrator *core.Orchestrator
	registry     *core.DeviceRegistry
	staticPath   string
}

func NewWebUIHandler(orchestrator *core.Orchestrator, registry *core.DeviceRegistry, staticPath string) *WebUIHandler {
	return &WebUIHandler{
		orchestrator: orchestrator,
		registry:     registry,
		staticPath:   staticPath,
	}
}

func (h *WebUIHandler) GetDashboardStats(c *gin.Context) {
	stats := DashboardStats{}

	for _, d := range h.registry.List() {
		stats.TotalDevices++
		switch d.Status {
		case core.DeviceAvailable:
			stats.AvailableDevices++
		case core.DeviceBusy:
			stats.BusyDevices++
		}
	}

	for _, job := range h.orchestrator.ListJobs() {
		stats.TotalJobs++
		switch job.Status {
		case core.JobStatusQueued, core.JobStatusScanning, core.JobStatusProcessing:
			stats.ActiveJobs++
		case core.JobStatusCompleted:
			stats.CompletedJobs++
		case core.JobStatusFailed:
			stats.FailedJobs++
		}
	}

	c.JSON(http.StatusOK, stats)
}

func (h *WebUIHandler) RegisterRoutes(router *gin.Engine, api *gin.RouterGroup) {
	api.GET("/dashboard/stats", h.GetDashboardStats)

	if h.staticPath == "" {
		return
	}
	if _, err := os.Stat(h.staticPath); err != nil {
		return
	}
	router.Static("/ui", h.staticPath)
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/ui/")
	})
}
