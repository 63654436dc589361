package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blindscan/scanhost/internal/core"
)

func TestListDevices(t *testing.T) {
	env := newTestEnv(t, "dev-1", "dev-2")

	rec := env.request(t, http.MethodGet, "/api/devices", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Devices []DeviceResponse `json:"devices"`
		Count   int              `json:"count"`
	}
	decodeJSON(t, rec, &resp)

	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Devices, 2)
	assert.Equal(t, "dev-1", resp.Devices[0].ID)
	assert.Equal(t, "available", resp.Devices[0].Status)
	assert.Equal(t, []int{300}, resp.Devices[0].SupportedResolutions)
}

func TestGetDevice(t *testing.T) {
	env := newTestEnv(t, "dev-1")

	rec := env.request(t, http.MethodGet, "/api/devices/dev-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DeviceResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "Stub Scanner dev-1", resp.Name)

	rec = env.request(t, http.MethodGet, "/api/devices/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshDevicesReportsBusy(t *testing.T) {
	env := newTestEnv(t, "dev-1")

	// Hold the device through a real scan start so refresh sees the lease.
	start := env.request(t, http.MethodPost, "/api/scan", StartScanRequest{DeviceID: "dev-1"})
	require.Equal(t, http.StatusAccepted, start.Code)

	var job JobResponse
	decodeJSON(t, start, &job)
	env.waitForStatus(t, job.ID, core.JobStatusCompleted)

	rec := env.request(t, http.MethodPost, "/api/devices/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Devices []DeviceResponse `json:"devices"`
	}
	decodeJSON(t, rec, &resp)
	require.Len(t, resp.Devices, 1)
	assert.Equal(t, "available", resp.Devices[0].Status)
}
