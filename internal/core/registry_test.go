package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRefreshAndList(t *testing.T) {
	driver := newFakeDriver("dev-1", "dev-2")
	r := NewDeviceRegistry(driver, NewLeaseManager())

	assert.Empty(t, r.List())

	require.NoError(t, r.Refresh(context.Background()))

	devices := r.List()
	require.Len(t, devices, 2)
	assert.Equal(t, "dev-1", devices[0].ID)
	assert.Equal(t, DeviceAvailable, devices[0].Status)
	assert.False(t, devices[0].LastSeenAt.IsZero())
}

func TestRegistryBusyStatusFromLease(t *testing.T) {
	driver := newFakeDriver("dev-1", "dev-2")
	leases := NewLeaseManager()
	r := NewDeviceRegistry(driver, leases)

	leases.TryAcquire("dev-2")
	require.NoError(t, r.Refresh(context.Background()))

	d1, err := r.Get("dev-1")
	require.NoError(t, err)
	assert.Equal(t, DeviceAvailable, d1.Status)

	d2, err := r.Get("dev-2")
	require.NoError(t, err)
	assert.Equal(t, DeviceBusy, d2.Status)
}

func TestRegistryDropsStaleDevices(t *testing.T) {
	driver := newFakeDriver("dev-1", "dev-2")
	r := NewDeviceRegistry(driver, NewLeaseManager())

	require.NoError(t, r.Refresh(context.Background()))
	require.Len(t, r.List(), 2)

	driver.setDevices("dev-2")
	require.NoError(t, r.Refresh(context.Background()))

	devices := r.List()
	require.Len(t, devices, 1)
	assert.Equal(t, "dev-2", devices[0].ID)

	_, err := r.Get("dev-1")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestRegistryRefreshErrorKeepsSnapshot(t *testing.T) {
	driver := newFakeDriver("dev-1")
	r := NewDeviceRegistry(driver, NewLeaseManager())

	require.NoError(t, r.Refresh(context.Background()))
	require.Len(t, r.List(), 1)

	driver.mu.Lock()
	driver.enumerateErr = errors.New("backend down")
	driver.mu.Unlock()

	assert.Error(t, r.Refresh(context.Background()))
	assert.Len(t, r.List(), 1)
}

func TestRegistryGetDoesNotRefresh(t *testing.T) {
	driver := newFakeDriver("dev-1")
	r := NewDeviceRegistry(driver, NewLeaseManager())

	_, err := r.Get("dev-1")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Equal(t, 0, driver.enumerationCount())
}

func TestRegistryConcurrentRefresh(t *testing.T) {
	driver := newFakeDriver("dev-1")
	r := NewDeviceRegistry(driver, NewLeaseManager())

	const goroutines = 20
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Refresh(context.Background()))
		}()
	}
	wg.Wait()

	// Coalescing keeps the enumeration count well below the caller count.
	assert.Less(t, driver.enumerationCount(), goroutines)
	assert.Len(t, r.List(), 1)
}
