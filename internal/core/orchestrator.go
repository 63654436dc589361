package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blindscan/scanhost/internal/capture"
)

var ErrInvalidRequest = errors.New("invalid scan request")

const (
	maxDPI = 6400

	busyMessage      = "device is currently busy"
	cancelledMessage = "cancelled by user"
)

// SettingsSource exposes the runtime-mutable storage settings the
// orchestrator consults during post-processing.
type SettingsSource interface {
	// SharedFolder returns the auto-save target directory and whether the
	// auto-save-to-shared-folder policy is enabled.
	SharedFolder() (string, bool)
}

type OrchestratorConfig struct {
	OutputFolder       string
	DefaultDPI         int
	DefaultOCRLanguage string
	// MaxConcurrentJobs caps in-flight capture tasks across all devices.
	// Zero means unlimited.
	MaxConcurrentJobs int
}

// Orchestrator drives scan jobs from creation to a terminal state. The
// registry, lease manager and job store are leaf collaborators it composes;
// OCR and PDF services are composed by callers on top of completed jobs.
type Orchestrator struct {
	driver   capture.Driver
	registry *DeviceRegistry
	leases   *LeaseManager
	jobs     *JobStore
	settings SettingsSource
	notifier Notifier
	cfg      OrchestratorConfig

	mu       sync.Mutex
	active   int
	releases map[string]func()

	wg sync.WaitGroup
}

func NewOrchestrator(driver capture.Driver, registry *DeviceRegistry, leases *LeaseManager, jobs *JobStore, settings SettingsSource, notifier Notifier, cfg OrchestratorConfig) *Orchestrator {
	if cfg.DefaultDPI <= 0 {
		cfg.DefaultDPI = 300
	}
	if cfg.DefaultOCRLanguage == "" {
		cfg.DefaultOCRLanguage = "eng"
	}
	return &Orchestrator{
		driver:   driver,
		registry: registry,
		leases:   leases,
		jobs:     jobs,
		settings: settings,
		notifier: notifier,
		cfg:      cfg,
		releases: make(map[string]func()),
	}
}

// StartScan validates the request, registers a queued job, and hands capture
// off to a background task. It never blocks on the device: callers poll job
// status to observe progress. A busy device yields an immediately-Failed job
// rather than an error.
func (o *Orchestrator) StartScan(deviceID string, params ScanParams) (ScanJob, error) {
	if deviceID == "" {
		return ScanJob{}, fmt.Errorf("%w: device id is required", ErrInvalidRequest)
	}
	if params.DPI < 0 || params.DPI > maxDPI {
		return ScanJob{}, fmt.Errorf("%w: dpi %d out of range", ErrInvalidRequest, params.DPI)
	}
	if params.DPI == 0 {
		params.DPI = o.cfg.DefaultDPI
	}
	if params.OCRLanguage == "" {
		params.OCRLanguage = o.cfg.DefaultOCRLanguage
	}

	deviceName := deviceID
	if device, err := o.registry.Get(deviceID); err == nil {
		deviceName = device.Name
	}

	job := &ScanJob{
		ID:          uuid.NewString(),
		DeviceID:    deviceID,
		DeviceName:  deviceName,
		Status:      JobStatusQueued,
		CreatedAt:   time.Now(),
		DPI:         params.DPI,
		ColorMode:   params.ColorMode,
		Duplex:      params.Duplex,
		OCRLanguage: params.OCRLanguage,
	}
	if err := o.jobs.Create(job); err != nil {
		return ScanJob{}, fmt.Errorf("register job: %w", err)
	}

	if !o.leases.TryAcquire(deviceID) {
		o.failJob(job.ID, busyMessage)
		return o.mustGet(job.ID), nil
	}

	if !o.reserveSlot() {
		o.leases.Release(deviceID)
		o.failJob(job.ID, "maximum concurrent scan jobs reached")
		return o.mustGet(job.ID), nil
	}

	now := time.Now()
	o.jobs.Update(job.ID, func(j *ScanJob) {
		j.StartedAt = &now
	})

	o.registerRelease(job.ID, deviceID)
	o.wg.Add(1)
	go o.runCapture(job.ID, deviceID, params)

	return o.mustGet(job.ID), nil
}

// runCapture is the background task for one started job. The lease and the
// concurrency slot are released on every exit path, including panics in the
// capture backend.
func (o *Orchestrator) runCapture(jobID, deviceID string, params ScanParams) {
	defer o.wg.Done()
	defer o.releaseSlot()
	defer o.releaseLease(jobID)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[scan] capture task for job %s panicked: %v", jobID, r)
			o.failJob(jobID, fmt.Sprintf("internal capture error: %v", r))
		}
	}()

	if o.transition(jobID, func(j *ScanJob) {
		j.Status = JobStatusScanning
	}) && o.notifier != nil {
		o.notifier.ScanStarted(o.mustGet(jobID))
	}

	// Cancellation is cooperative: the in-flight capture call is never
	// aborted, so the context here is deliberately not tied to Cancel.
	ctx := context.Background()

	conn, err := o.driver.Connect(ctx, deviceID)
	if err != nil {
		o.failJob(jobID, fmt.Sprintf("device connect failed: %v", err))
		return
	}
	defer conn.Close()

	stream, err := conn.Transfer(ctx, capture.Params{
		DPI:    params.DPI,
		Color:  params.ColorMode,
		Duplex: params.Duplex,
	})
	if err != nil {
		o.failJob(jobID, fmt.Sprintf("capture failed: %v", err))
		return
	}

	imagePath, err := o.writePage(jobID, stream)
	stream.Close()
	if err != nil {
		o.failJob(jobID, fmt.Sprintf("write scan output: %v", err))
		return
	}

	// A cancel may have landed while the transfer was in flight; the late
	// completion must not overwrite the terminal record.
	if !o.transition(jobID, func(j *ScanJob) {
		j.PageCount++
		j.OutputPath = imagePath
		j.Status = JobStatusProcessing
	}) {
		return
	}

	o.copyToSharedFolder(jobID, imagePath)

	now := time.Now()
	if o.transition(jobID, func(j *ScanJob) {
		j.Status = JobStatusCompleted
		j.CompletedAt = &now
	}) {
		log.Printf("[scan] job %s completed (%s)", jobID, imagePath)
		if o.notifier != nil {
			o.notifier.ScanCompleted(o.mustGet(jobID))
		}
	}
}

// writePage stores one captured page in a job-scoped output directory.
func (o *Orchestrator) writePage(jobID string, stream io.Reader) (string, error) {
	jobDir := filepath.Join(o.cfg.OutputFolder, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", fmt.Errorf("create job directory: %w", err)
	}

	imagePath := filepath.Join(jobDir, "page_001.jpg")
	f, err := os.Create(imagePath)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	if _, err := io.Copy(f, stream); err != nil {
		f.Close()
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close image file: %w", err)
	}
	return imagePath, nil
}

// copyToSharedFolder applies the auto-save policy. Failure is logged and
// never fails the job.
func (o *Orchestrator) copyToSharedFolder(jobID, imagePath string) {
	if o.settings == nil {
		return
	}
	dir, enabled := o.settings.SharedFolder()
	if !enabled || dir == "" {
		return
	}

	if err := copyFile(imagePath, filepath.Join(dir, jobID+"_"+filepath.Base(imagePath))); err != nil {
		log.Printf("[scan] warning: could not copy job %s output to shared folder: %v", jobID, err)
		return
	}
	log.Printf("[scan] job %s output copied to shared folder %s", jobID, dir)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Cancel force-fails a job that is Scanning or Processing and frees its
// device. It returns false for unknown, queued-without-lease, or already
// terminal jobs. Cancellation is cooperative: the in-flight capture call is
// not signalled, only the bookkeeping changes.
func (o *Orchestrator) Cancel(jobID string) bool {
	var cancelled bool

	err := o.jobs.Update(jobID, func(j *ScanJob) {
		if j.Status != JobStatusScanning && j.Status != JobStatusProcessing {
			return
		}
		now := time.Now()
		j.Status = JobStatusFailed
		j.ErrorMessage = cancelledMessage
		j.CompletedAt = &now
		cancelled = true
	})
	if err != nil || !cancelled {
		return false
	}

	// Frees the device now instead of when the in-flight capture call
	// returns. The capture task's own deferred release becomes a no-op.
	o.releaseLease(jobID)
	log.Printf("[scan] job %s cancelled by user", jobID)
	if o.notifier != nil {
		o.notifier.ScanFailed(o.mustGet(jobID))
	}
	return true
}

func (o *Orchestrator) GetJob(jobID string) (ScanJob, error) {
	return o.jobs.Get(jobID)
}

func (o *Orchestrator) ListJobs() []ScanJob {
	return o.jobs.List()
}

func (o *Orchestrator) IsDeviceBusy(deviceID string) bool {
	return o.leases.IsHeld(deviceID)
}

// Shutdown waits for in-flight capture tasks to finish or ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// transition applies mutate only while the job is non-terminal and reports
// whether it was applied. This keeps the lifecycle monotonic under races
// between the capture task and Cancel.
func (o *Orchestrator) transition(jobID string, mutate func(*ScanJob)) bool {
	applied := false
	o.jobs.Update(jobID, func(j *ScanJob) {
		if j.Status.Terminal() {
			return
		}
		mutate(j)
		applied = true
	})
	return applied
}

func (o *Orchestrator) failJob(jobID, message string) {
	if o.transition(jobID, func(j *ScanJob) {
		now := time.Now()
		j.Status = JobStatusFailed
		j.ErrorMessage = message
		j.CompletedAt = &now
	}) {
		log.Printf("[scan] job %s failed: %s", jobID, message)
		if o.notifier != nil {
			o.notifier.ScanFailed(o.mustGet(jobID))
		}
	}
}

func (o *Orchestrator) mustGet(jobID string) ScanJob {
	job, _ := o.jobs.Get(jobID)
	return job
}

// registerRelease arms a once-only release of the device lease the job just
// acquired. Both the capture task's deferred cleanup and Cancel go through
// it, so overlapping exits free the lease exactly once and can never free a
// lease a later job acquired on the same device.
func (o *Orchestrator) registerRelease(jobID, deviceID string) {
	var once sync.Once
	o.mu.Lock()
	o.releases[jobID] = func() {
		once.Do(func() { o.leases.Release(deviceID) })
	}
	o.mu.Unlock()
}

func (o *Orchestrator) releaseLease(jobID string) {
	o.mu.Lock()
	release := o.releases[jobID]
	o.mu.Unlock()

	if release != nil {
		release()
	}
}

func (o *Orchestrator) reserveSlot() bool {
	if o.cfg.MaxConcurrentJobs <= 0 {
		return true
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active >= o.cfg.MaxConcurrentJobs {
		return false
	}
	o.active++
	return true
}

func (o *Orchestrator) releaseSlot() {
	if o.cfg.MaxConcurrentJobs <= 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active > 0 {
		o.active--
	}
}
