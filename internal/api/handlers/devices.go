package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/blindscan/scanhost/internal/core"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type DeviceResponse struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Manufacturer         string    `json:"manufacturer,omitempty"`
	Model                string    `json:"model,omitempty"`
	Status               string    `json:"status"`
	SupportsDuplex       bool      `json:"supports_duplex"`
	SupportsColor        bool      `json:"supports_color"`
	SupportedResolutions []int     `json:"supported_resolutions"`
	ConnectionType       string    `json:"connection_type,omitempty"`
	LastSeenAt           time.Time `json:"last_seen_at"`
}

type DeviceHandler struct {
	registry *core.DeviceRegistry
}

func NewDeviceHandler(registry *core.DeviceRegistry) *DeviceHandler {
	return &DeviceHandler{registry: registry}
}

// ListDevices returns the cached snapshot without touching the network.
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	devices := h.registry.List()

	responses := make([]DeviceResponse, 0, len(devices))
	for _, d := range devices {
		responses = append(responses, deviceToResponse(d))
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": responses,
		"count":   len(responses),
	})
}

// RefreshDevices re-enumerates scanners and returns the new snapshot.
func (h *DeviceHandler) RefreshDevices(c *gin.Context) {
	if err := h.registry.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "enumeration_failed",
			Message: err.Error(),
		})
		return
	}

	devices := h.registry.List()
	responses := make([]DeviceResponse, 0, len(devices))
	for _, d := range devices {
		responses = append(responses, deviceToResponse(d))
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": responses,
		"count":   len(responses),
	})
}

func (h *DeviceHandler) GetDevice(c *gin.Context) {
	device, err := h.registry.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, core.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Device not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "lookup_failed",
			Message: "Failed to look up device",
		})
		return
	}

	c.JSON(http.StatusOK, deviceToResponse(device))
}

func deviceToResponse(d core.ScannerDevice) DeviceResponse {
	resolutions := d.SupportedResolutions
	if resolutions == nil {
		resolutions = []int{}
	}
	return DeviceResponse{
		ID:                   d.ID,
		Name:                 d.Name,
		Manufacturer:         d.Manufacturer,
		Model:                d.Model,
		Status:               string(d.Status),
		SupportsDuplex:       d.SupportsDuplex,
		SupportsColor:        d.SupportsColor,
		SupportedResolutions: resolutions,
		ConnectionType:       d.ConnectionType,
		LastSeenAt:           d.LastSeenAt,
	}
}

func (h *DeviceHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/devices", h.ListDevices)
	r.POST("/devices/refresh", h.RefreshDevices)
	r.GET("/devices/:id", h.GetDevice)
}
