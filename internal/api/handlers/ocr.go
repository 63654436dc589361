package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blindscan/scanhost/internal/ocr"
)

type OCRHandler struct {
	ocr *ocr.Service
}

func NewOCRHandler(ocrService *ocr.Service) *OCRHandler {
	return &OCRHandler{ocr: ocrService}
}

// ListLanguages reports the installed recognition languages.
func (h *OCRHandler) ListLanguages(c *gin.Context) {
	langs, err := h.ocr.Languages()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "io_error",
			Message: "Failed to list installed languages",
		})
		return
	}
	if langs == nil {
		langs = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"enabled":   h.ocr.Enabled(),
		"languages": langs,
	})
}

func (h *OCRHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/ocr/languages", h.ListLanguages)
}
