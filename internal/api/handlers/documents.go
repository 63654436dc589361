package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/blindscan/scanhost/internal/core"
	"github.com/blindscan/scanhost/internal/ocr"
	"github.com/blindscan/scanhost/internal/pdf"
)

type ComposeDocumentRequest struct {
	Searchable bool   `json:"searchable"`
	Language   string `json:"language"`
}

type DocumentResponse struct {
	JobID      string `json:"job_id"`
	Path       string `json:"path"`
	PageCount  int    `json:"page_count"`
	Searchable bool   `json:"searchable"`
}

// DocumentHandler turns completed scan jobs into PDF documents, optionally
// with an OCR text layer.
type DocumentHandler struct {
	orchestrator *core.Orchestrator
	ocr          *ocr.Service
	pdf          *pdf.Service
	outputFolder string
}

func NewDocumentHandler(orchestrator *core.Orchestrator, ocrService *ocr.Service, pdfService *pdf.Service, outputFolder string) *DocumentHandler {
	return &DocumentHandler{
		orchestrator: orchestrator,
		ocr:          ocrService,
		pdf:          pdfService,
		outputFolder: outputFolder,
	}
}

func (h *DocumentHandler) ComposeDocument(c *gin.Context) {
	jobID := c.Param("id")

	job, err := h.orchestrator.GetJob(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Job not found",
		})
		return
	}

	if job.Status != core.JobStatusCompleted {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "not_ready",
			Message: "Job has not completed",
		})
		return
	}

	// An empty body means a plain, non-searchable PDF.
	var req ComposeDocumentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: err.Error(),
			})
			return
		}
	}

	pages, err := h.pageImages(jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "io_error",
			Message: "Failed to read job pages",
		})
		return
	}
	if len(pages) == 0 {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "no_pages",
			Message: "Job has no page images",
		})
		return
	}

	outPath := filepath.Join(h.outputFolder, jobID, "document.pdf")

	searchable := req.Searchable
	if searchable && !h.ocr.Enabled() {
		searchable = false
	}

	if searchable {
		lang := req.Language
		if lang == "" {
			lang = job.OCRLanguage
		}
		results, err := h.ocr.RecognizeBatch(pages, lang, job.DPI)
		if err != nil {
			if errors.Is(err, ocr.ErrUnknownLanguage) {
				c.JSON(http.StatusBadRequest, ErrorResponse{
					Error:   "unknown_language",
					Message: err.Error(),
				})
				return
			}
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "ocr_failed",
				Message: err.Error(),
			})
			return
		}
		err = h.pdf.CreateSearchable(pages, results, job.DPI, outPath)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "pdf_failed",
				Message: err.Error(),
			})
			return
		}
	} else {
		if err := h.pdf.CreateFromImages(pages, job.DPI, outPath); err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "pdf_failed",
				Message: err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusCreated, DocumentResponse{
		JobID:      jobID,
		Path:       outPath,
		PageCount:  len(pages),
		Searchable: searchable,
	})
}

// DownloadDocument serves a previously composed PDF.
func (h *DocumentHandler) DownloadDocument(c *gin.Context) {
	jobID := c.Param("id")

	if _, err := h.orchestrator.GetJob(jobID); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Job not found",
		})
		return
	}

	docPath := filepath.Join(h.outputFolder, jobID, "document.pdf")
	if _, err := os.Stat(docPath); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "No document has been composed for this job",
		})
		return
	}

	c.FileAttachment(docPath, jobID+".pdf")
}

// pageImages returns the job's page files in page order.
func (h *DocumentHandler) pageImages(jobID string) ([]string, error) {
	pages, err := filepath.Glob(filepath.Join(h.outputFolder, jobID, "page_*.jpg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(pages)
	return pages, nil
}

func (h *DocumentHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/jobs/:id/document", h.ComposeDocument)
	r.GET("/jobs/:id/document", h.DownloadDocument)
}
