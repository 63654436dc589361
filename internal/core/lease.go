package core

import (
	"sync"
)

// LeaseManager enforces at most one active job per device id. A lease is a
// plain in-process hold; nothing is persisted.
type LeaseManager struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLeaseManager() *LeaseManager {
	return &LeaseManager{
		held: make(map[string]bool),
	}
}

// TryAcquire marks the device held and returns true only if it was free.
// The check-and-set is atomic across concurrent callers.
func (m *LeaseManager) TryAcquire(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held[deviceID] {
		return false
	}
	m.held[deviceID] = true
	return true
}

// Release frees the device. Releasing a device that is not held is a no-op,
// which guards against double-release on overlapping failure and cancel paths.
func (m *LeaseManager) Release(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.held, deviceID)
}

func (m *LeaseManager) IsHeld(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.held[deviceID]
}
