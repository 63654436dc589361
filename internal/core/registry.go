package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/blindscan/scanhost/internal/capture"
)

var ErrDeviceNotFound = errors.New("device not found")

// DeviceRegistry caches the last-known device set. Refresh replaces the
// snapshot wholesale; readers see either the old or the new set, never a
// torn one. Devices missing from an enumeration are dropped, not retained
// as offline.
type DeviceRegistry struct {
	driver capture.Driver
	leases *LeaseManager

	group singleflight.Group

	mu      sync.RWMutex
	devices []ScannerDevice
}

func NewDeviceRegistry(driver capture.Driver, leases *LeaseManager) *DeviceRegistry {
	return &DeviceRegistry{
		driver: driver,
		leases: leases,
	}
}

// Refresh enumerates devices from the capture backend and swaps the cached
// snapshot. Concurrent refreshes are coalesced into a single enumeration.
func (r *DeviceRegistry) Refresh(ctx context.Context) error {
	_, err, _ := r.group.Do("refresh", func() (interface{}, error) {
		infos, err := r.driver.Enumerate(ctx)
		if err != nil {
			return nil, fmt.Errorf("enumerate devices: %w", err)
		}

		now := time.Now()
		devices := make([]ScannerDevice, 0, len(infos))
		for _, info := range infos {
			status := DeviceAvailable
			if r.leases.IsHeld(info.ID) {
				status = DeviceBusy
			}
			devices = append(devices, ScannerDevice{
				ID:                   info.ID,
				Name:                 info.Name,
				Manufacturer:         info.Manufacturer,
				Model:                info.Model,
				Status:               status,
				SupportsDuplex:       info.SupportsDuplex,
				SupportsColor:        info.SupportsColor,
				SupportedResolutions: append([]int(nil), info.Resolutions...),
				ConnectionType:       info.ConnectionType,
				LastSeenAt:           now,
			})
		}

		r.mu.Lock()
		r.devices = devices
		r.mu.Unlock()

		return nil, nil
	})
	return err
}

// List returns a copy of the current snapshot.
func (r *DeviceRegistry) List() []ScannerDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]ScannerDevice, len(r.devices))
	copy(devices, r.devices)
	return devices
}

// Get returns the cached device with the given id. It never triggers an
// implicit refresh.
func (r *DeviceRegistry) Get(deviceID string) (ScannerDevice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.devices {
		if d.ID == deviceID {
			return d, nil
		}
	}
	return ScannerDevice{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
}
