package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLeaseAcquireRelease(t *testing.T) {
	m := NewLeaseManager()

	assert.True(t, m.TryAcquire("dev-1"))
	assert.True(t, m.IsHeld("dev-1"))
	assert.False(t, m.TryAcquire("dev-1"))

	// Other devices are unaffected.
	assert.True(t, m.TryAcquire("dev-2"))

	m.Release("dev-1")
	assert.False(t, m.IsHeld("dev-1"))
	assert.True(t, m.TryAcquire("dev-1"))
}

func TestLeaseReleaseIdempotent(t *testing.T) {
	m := NewLeaseManager()

	m.Release("dev-1")
	assert.False(t, m.IsHeld("dev-1"))

	assert.True(t, m.TryAcquire("dev-1"))
	m.Release("dev-1")
	m.Release("dev-1")
	assert.True(t, m.TryAcquire("dev-1"))
}

func TestLeaseConcurrentAcquire(t *testing.T) {
	m := NewLeaseManager()

	const goroutines = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.TryAcquire("dev-1") {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, acquired)
}
