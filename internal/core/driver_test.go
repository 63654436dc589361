package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/blindscan/scanhost/internal/capture"
)

// fakeDriver is an in-memory capture backend. A non-nil release channel
// blocks every Transfer until the channel is closed, which lets tests hold a
// job in the Scanning state.
type fakeDriver struct {
	mu           sync.Mutex
	devices      []capture.DeviceInfo
	enumerateErr error
	enumerations int
	connectErr   error
	transferErr  error
	release      chan struct{}
	payload      []byte
}

func newFakeDriver(deviceIDs ...string) *fakeDriver {
	d := &fakeDriver{payload: []byte("jpeg-bytes")}
	for _, id := range deviceIDs {
		d.devices = append(d.devices, capture.DeviceInfo{
			ID:             id,
			Name:           "Fake Scanner " + id,
			Manufacturer:   "Fake",
			Model:          "Scanner",
			ConnectionType: "test",
			Resolutions:    []int{150, 300},
			SupportsColor:  true,
		})
	}
	return d
}

func (d *fakeDriver) Enumerate(ctx context.Context) ([]capture.DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.enumerations++
	if d.enumerateErr != nil {
		return nil, d.enumerateErr
	}
	out := make([]capture.DeviceInfo, len(d.devices))
	copy(out, d.devices)
	return out, nil
}

func (d *fakeDriver) Connect(ctx context.Context, deviceID string) (capture.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connectErr != nil {
		return nil, d.connectErr
	}
	for _, dev := range d.devices {
		if dev.ID == deviceID {
			return &fakeConnection{
				payload:     d.payload,
				release:     d.release,
				transferErr: d.transferErr,
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", capture.ErrDeviceNotFound, deviceID)
}

func (d *fakeDriver) setDevices(deviceIDs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.devices = d.devices[:0]
	for _, id := range deviceIDs {
		d.devices = append(d.devices, capture.DeviceInfo{ID: id, Name: "Fake Scanner " + id})
	}
}

func (d *fakeDriver) enumerationCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.enumerations
}

type fakeConnection struct {
	payload     []byte
	release     chan struct{}
	transferErr error
}

func (c *fakeConnection) Transfer(ctx context.Context, params capture.Params) (io.ReadCloser, error) {
	if c.release != nil {
		<-c.release
	}
	if c.transferErr != nil {
		return nil, c.transferErr
	}
	return io.NopCloser(bytes.NewReader(c.payload)), nil
}

func (c *fakeConnection) Close() error {
	return nil
}
