package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/blindscan/scanhost/internal/capture"
	"github.com/blindscan/scanhost/internal/core"
)

type stubDriver struct {
	devices []capture.DeviceInfo
	payload []byte
}

func (d *stubDriver) Enumerate(ctx context.Context) ([]capture.DeviceInfo, error) {
	out := make([]capture.DeviceInfo, len(d.devices))
	copy(out, d.devices)
	return out, nil
}

func (d *stubDriver) Connect(ctx context.Context, deviceID string) (capture.Connection, error) {
	for _, dev := range d.devices {
		if dev.ID == deviceID {
			return &stubConnection{payload: d.payload}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", capture.ErrDeviceNotFound, deviceID)
}

type stubConnection struct {
	payload []byte
}

func (c *stubConnection) Transfer(ctx context.Context, params capture.Params) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(c.payload)), nil
}

func (c *stubConnection) Close() error { return nil }

type testEnv struct {
	router       *gin.Engine
	orchestrator *core.Orchestrator
	registry     *core.DeviceRegistry
	outputFolder string
}

func newTestEnv(t *testing.T, deviceIDs ...string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	driver := &stubDriver{payload: []byte("jpeg-bytes")}
	for _, id := range deviceIDs {
		driver.devices = append(driver.devices, capture.DeviceInfo{
			ID:            id,
			Name:          "Stub Scanner " + id,
			Resolutions:   []int{300},
			SupportsColor: true,
		})
	}

	leases := core.NewLeaseManager()
	registry := core.NewDeviceRegistry(driver, leases)
	require.NoError(t, registry.Refresh(context.Background()))

	out := t.TempDir()
	orchestrator := core.NewOrchestrator(driver, registry, leases, core.NewJobStore(), nil, nil, core.OrchestratorConfig{
		OutputFolder: out,
	})

	router := gin.New()
	api := router.Group("/api")
	NewDeviceHandler(registry).RegisterRoutes(api)
	NewJobHandler(orchestrator, out).RegisterRoutes(api)

	return &testEnv{
		router:       router,
		orchestrator: orchestrator,
		registry:     registry,
		outputFolder: out,
	}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) waitForStatus(t *testing.T, jobID string, want core.JobStatus) core.ScanJob {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := e.orchestrator.GetJob(jobID)
		require.NoError(t, err)
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return core.ScanJob{}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}
