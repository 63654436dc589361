package core

import (
	"time"
)

type DeviceStatus string

const (
	DeviceAvailable DeviceStatus = "available"
	DeviceBusy      DeviceStatus = "busy"
	DeviceOffline   DeviceStatus = "offline"
	DeviceError     DeviceStatus = "error"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusScanning   JobStatus = "scanning"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions may occur from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type ScannerDevice struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	Manufacturer         string       `json:"manufacturer"`
	Model                string       `json:"model"`
	Status               DeviceStatus `json:"status"`
	SupportsDuplex       bool         `json:"supports_duplex"`
	SupportsColor        bool         `json:"supports_color"`
	SupportedResolutions []int        `json:"supported_resolutions"`
	ConnectionType       string       `json:"connection_type"`
	LastSeenAt           time.Time    `json:"last_seen_at"`
}

type ScanJob struct {
	ID           string     `json:"id"`
	DeviceID     string     `json:"device_id"`
	DeviceName   string     `json:"device_name"`
	Status       JobStatus  `json:"status"`
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
}

// ScanParams are the capture parameters fixed at job creation.
type ScanParams struct {
	DPI         int
	ColorMode   bool
	Duplex      bool
	OCRLanguage string
}

// Notifier receives job lifecycle events. The orchestrator calls it from the
// capture goroutine, so implementations must not block.
type Notifier interface {
	ScanStarted(job ScanJob)
	ScanCompleted(job ScanJob)
	ScanFailed(job ScanJob)
}
