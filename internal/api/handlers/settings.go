package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/blindscan/scanhost/internal/config"
	"github.com/blindscan/scanhost/internal/settings"
)

type SettingsHandler struct {
	store  *settings.Store
	config *config.Config
}

type SettingsResponse struct {
	SharedFolder         string `json:"shared_folder"`
	AutoSaveSharedFolder bool   `json:"auto_save_shared_folder"`
	DefaultDPI           int    `json:"default_dpi"`
	DefaultOCRLanguage   string `json:"default_ocr_language"`
}

type UpdateSettingsRequest struct {
	SharedFolder         *string `json:"shared_folder"`
	AutoSaveSharedFolder *bool   `json:"auto_save_shared_folder"`
	DefaultDPI           *int    `json:"default_dpi"`
}

type ServerConfigResponse struct {
	Port              int    `json:"port"`
	DatabasePath      string `json:"database_path"`
	OutputFolder      string `json:"output_folder"`
	CaptureBackend    string `json:"capture_backend"`
	MDNSEnabled       bool   `json:"mdns_enabled"`
	DiscoveryTimeout  string `json:"discovery_timeout"`
	RequestTimeout    string `json:"request_timeout"`
	MaxConcurrentJobs int    `json:"max_concurrent_jobs"`
	OCREnabled        bool   `json:"ocr_enabled"`
	TessdataPath      string `json:"tessdata_path"`
	LogLevel          string `json:"log_level"`
	LogFormat         string `json:"log_format"`
}

func NewSettingsHandler(store *settings.Store, cfg *config.Config) *SettingsHandler {
	return &SettingsHandler{
		store:  store,
		config: cfg,
	}
}

func (h *SettingsHandler) GetSettings(c *gin.Context) {
	resp := SettingsResponse{
		DefaultDPI:         h.config.Scan.DefaultDPI,
		DefaultOCRLanguage: h.config.OCR.DefaultLanguage,
	}

	resp.SharedFolder, resp.AutoSaveSharedFolder = h.store.SharedFolder()

	if v, ok := h.store.Get(settings.KeyDefaultDPI); ok {
		if dpi, err := strconv.Atoi(v); err == nil && dpi > 0 {
			resp.DefaultDPI = dpi
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	ctx := c.Request.Context()

	if req.SharedFolder != nil {
		if err := h.store.Set(ctx, settings.KeySharedFolder, *req.SharedFolder); err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "database_error",
				Message: "Failed to update shared folder",
			})
			return
		}
	}

	if req.AutoSaveSharedFolder != nil {
		if err := h.store.Set(ctx, settings.KeyAutoSaveShared, strconv.FormatBool(*req.AutoSaveSharedFolder)); err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "database_error",
				Message: "Failed to update auto-save setting",
			})
			return
		}
	}

	if req.DefaultDPI != nil {
		if *req.DefaultDPI < 50 || *req.DefaultDPI > 6400 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: "default_dpi must be between 50 and 6400",
			})
			return
		}
		if err := h.store.Set(ctx, settings.KeyDefaultDPI, strconv.Itoa(*req.DefaultDPI)); err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "database_error",
				Message: "Failed to update default dpi",
			})
			return
		}
	}

	h.GetSettings(c)
}

func (h *SettingsHandler) GetServerConfig(c *gin.Context) {
	resp := ServerConfigResponse{
		Port:              h.config.Server.Port,
		DatabasePath:      h.config.Database.Path,
		OutputFolder:      h.config.Storage.OutputFolder,
		CaptureBackend:    h.config.Capture.Backend,
		MDNSEnabled:       h.config.Capture.EnableMDNS,
		DiscoveryTimeout:  h.config.Capture.DiscoveryTimeout.String(),
		RequestTimeout:    h.config.Capture.RequestTimeout.String(),
		MaxConcurrentJobs: h.config.Scan.MaxConcurrentJobs,
		OCREnabled:        h.config.OCR.Enabled,
		TessdataPath:      h.config.OCR.TessdataPath,
		LogLevel:          h.config.Logging.Level,
		LogFormat:         h.config.Logging.Format,
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SettingsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/settings", h.GetSettings)
	r.PUT("/settings", h.UpdateSettings)
	r.GET("/settings/server", h.GetServerConfig)
}
