package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/blindscan/scanhost/internal/core"
)

type StartScanRequest struct {
	DeviceID    string `json:"device_id" binding:"required"`
	DPI         int    `json:"dpi"`
	ColorMode   bool   `json:"color_mode"`
	Duplex      bool   `json:"duplex"`
	OCRLanguage string `json:"ocr_language"`
}

type JobResponse struct {
	ID           string     `json:"id"`
	DeviceID     string     `json:"device_id"`
	DeviceName   string     `json:"device_name"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	PageCount    int        `json:"page_count"`
	OutputPath   string     `json:"output_path,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	DPI          int        `json:"dpi"`
	ColorMode    bool       `json:"color_mode"`
	Duplex       bool       `json:"duplex"`
	OCRLanguage  string     `json:"ocr_language"`
	Duration     *int64     `json:"duration_ms,omitempty"`
}

type JobHandler struct {
	orchestrator *core.Orchestrator
	outputFolder string
}

func NewJobHandler(orchestrator *core.Orchestrator, outputFolder string) *JobHandler {
	return &JobHandler{
		orchestrator: orchestrator,
		outputFolder: outputFolder,
	}
}

// StartScan hands the job off to the orchestrator and returns immediately.
// A busy device still yields 202: the job comes back already failed and the
// caller reads the outcome from its status.
func (h *JobHandler) StartScan(c *gin.Context) {
	var req StartScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	job, err := h.orchestrator.StartScan(req.DeviceID, core.ScanParams{
		DPI:         req.DPI,
		ColorMode:   req.ColorMode,
		Duplex:      req.Duplex,
		OCRLanguage: req.OCRLanguage,
	})
	if err != nil {
		if errors.Is(err, core.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scan_failed",
			Message: "Failed to start scan",
		})
		return
	}

	c.JSON(http.StatusAccepted, jobToResponse(job))
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	jobs := h.orchestrator.ListJobs()

	responses := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, jobToResponse(job))
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  responses,
		"count": len(responses),
	})
}

func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.orchestrator.GetJob(c.Param("id"))
	if err != nil {
		if errors.Is(err, core.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Job not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "lookup_failed",
			Message: "Failed to look up job",
		})
		return
	}

	c.JSON(http.StatusOK, jobToResponse(job))
}

// CancelJob force-fails a running job. Terminal and unknown jobs both come
// back as 409/404 so retried cancels are safe.
func (h *JobHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")

	if _, err := h.orchestrator.GetJob(id); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Job not found",
		})
		return
	}

	if !h.orchestrator.Cancel(id) {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "not_cancellable",
			Message: "Job is not in a cancellable state",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "job cancelled"})
}

// DownloadOutput serves the first page image of a completed job.
func (h *JobHandler) DownloadOutput(c *gin.Context) {
	job, err := h.orchestrator.GetJob(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Job not found",
		})
		return
	}

	if job.Status != core.JobStatusCompleted || job.OutputPath == "" {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "not_ready",
			Message: "Job has no downloadable output",
		})
		return
	}

	// The stored path must stay inside the output folder.
	abs, err := filepath.Abs(job.OutputPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "io_error",
			Message: "Failed to resolve output path",
		})
		return
	}
	root, err := filepath.Abs(h.outputFolder)
	if err != nil || !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "io_error",
			Message: "Output path is outside the output folder",
		})
		return
	}

	c.FileAttachment(abs, job.ID+"_"+filepath.Base(abs))
}

func jobToResponse(job core.ScanJob) JobResponse {
	resp := JobResponse{
		ID:           job.ID,
		DeviceID:     job.DeviceID,
		DeviceName:   job.DeviceName,
		Status:       string(job.Status),
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
		PageCount:    job.PageCount,
		OutputPath:   job.OutputPath,
		ErrorMessage: job.ErrorMessage,
		DPI:          job.DPI,
		ColorMode:    job.ColorMode,
		Duplex:       job.Duplex,
		OCRLanguage:  job.OCRLanguage,
	}
	if job.StartedAt != nil && job.CompletedAt != nil {
		duration := job.CompletedAt.Sub(*job.StartedAt).Milliseconds()
		resp.Duration = &duration
	}
	return resp
}

func (h *JobHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/scan", h.StartScan)
	r.GET("/jobs", h.ListJobs)
	r.GET("/jobs/:id", h.GetJob)
	r.POST("/jobs/:id/cancel", h.CancelJob)
	r.GET("/jobs/:id/download", h.DownloadOutput)
}
