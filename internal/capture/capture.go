package capture

import (
	"context"
	"errors"
	"io"
)

var (
	ErrDeviceNotFound = errors.New("capture device not found")
	ErrCaptureFailed  = errors.New("capture transfer failed")
	ErrNotSupported   = errors.New("capture backend does not support operation")
)

// DeviceInfo describes a scanner as reported by the capture backend.
type DeviceInfo struct {
	ID             string
	Name           string
	Manufacturer   string
	Model          string
	ConnectionType string
	SupportsDuplex bool
	SupportsColor  bool
	Resolutions    []int
}

// Params are the per-transfer capture settings.
type Params struct {
	DPI    int
	Color  bool
	Duplex bool
}

// Connection is an open session with a single device. Close must be called
// on every exit path regardless of transfer outcome.
type Connection interface {
	// Transfer captures one page and returns the encoded image stream.
	// The caller owns the returned reader and must close it.
	Transfer(ctx context.Context, params Params) (io.ReadCloser, error)

	Close() error
}

// Driver is the capture backend contract. One implementation per backend,
// selected at startup and injected into the registry and orchestrator.
type Driver interface {
	Enumerate(ctx context.Context) ([]DeviceInfo, error)
	Connect(ctx context.Context, deviceID string) (Connection, error)
}
