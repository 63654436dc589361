package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/blindscan/scanhost/internal/api/handlers"
	"github.com/blindscan/scanhost/internal/api/middleware"
	"github.com/blindscan/scanhost/internal/capture"
	"github.com/blindscan/scanhost/internal/config"
	"github.com/blindscan/scanhost/internal/core"
	"github.com/blindscan/scanhost/internal/db"
	"github.com/blindscan/scanhost/internal/ocr"
	"github.com/blindscan/scanhost/internal/pdf"
	"github.com/blindscan/scanhost/internal/settings"
	"github.com/blindscan/scanhost/internal/webhook"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[main] failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[main] invalid config: %v", err)
	}

	database, err := db.Open(db.Config{Path: cfg.Database.Path})
	if err != nil {
		log.Fatalf("[main] failed to open database: %v", err)
	}
	defer database.Close()

	store, err := settings.NewStore(context.Background(), database, map[string]string{
		settings.KeySharedFolder:   cfg.Storage.SharedFolder,
		settings.KeyAutoSaveShared: strconv.FormatBool(cfg.Storage.AutoSaveSharedFolder),
	})
	if err != nil {
		log.Fatalf("[main] failed to load settings: %v", err)
	}

	driver := capture.NewESCLDriver(capture.ESCLConfig{
		Endpoints:        cfg.Capture.Endpoints,
		EnableMDNS:       cfg.Capture.EnableMDNS,
		DiscoveryTimeout: cfg.Capture.DiscoveryTimeout,
		RequestTimeout:   cfg.Capture.RequestTimeout,
	})

	leases := core.NewLeaseManager()
	registry := core.NewDeviceRegistry(driver, leases)
	jobs := core.NewJobStore()

	sender := webhook.NewSender(database, webhook.Config{
		RetryCount:  cfg.Webhooks.RetryCount,
		RetryDelay:  cfg.Webhooks.RetryDelay,
		Timeout:     cfg.Webhooks.Timeout,
		WorkerCount: cfg.Webhooks.WorkerCount,
		QueueSize:   cfg.Webhooks.QueueSize,
	})
	sender.Start()
	defer sender.Stop()

	orchestrator := core.NewOrchestrator(driver, registry, leases, jobs, store, sender, core.OrchestratorConfig{
		OutputFolder:       cfg.Storage.OutputFolder,
		DefaultDPI:         cfg.Scan.DefaultDPI,
		DefaultOCRLanguage: cfg.OCR.DefaultLanguage,
		MaxConcurrentJobs:  cfg.Scan.MaxConcurrentJobs,
	})

	ocrService := ocr.NewService(ocr.Config{
		Enabled:         cfg.OCR.Enabled,
		TessdataPath:    cfg.OCR.TessdataPath,
		DefaultLanguage: cfg.OCR.DefaultLanguage,
	})
	pdfService := pdf.NewService()

	auth, err := middleware.NewAuthMiddleware(database)
	if err != nil {
		log.Fatalf("[main] failed to init auth: %v", err)
	}

	// Initial enumeration so the first /devices call has a snapshot. Failure
	// is not fatal, the registry stays empty until a refresh succeeds.
	discoverCtx, cancelDiscover := context.WithTimeout(context.Background(), 10*time.Second)
	if err := registry.Refresh(discoverCtx); err != nil {
		log.Printf("[main] initial device enumeration failed: %v", err)
	}
	cancelDiscover()

	router := buildRouter(cfg, orchestrator, registry, database, store, ocrService, pdfService, auth)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("[main] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[main] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] http shutdown: %v", err)
	}
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] capture tasks did not finish: %v", err)
	}
	log.Println("[main] stopped")
}

func buildRouter(
	cfg *config.Config,
	orchestrator *core.Orchestrator,
	registry *core.DeviceRegistry,
	database *db.DB,
	store *settings.Store,
	ocrService *ocr.Service,
	pdfService *pdf.Service,
	auth *middleware.AuthMiddleware,
) *gin.Engine {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	api := router.Group("/api")
	auth.RegisterRoutes(api)

	protected := api.Group("", auth.RequireAuth())

	handlers.NewDeviceHandler(registry).RegisterRoutes(protected)
	handlers.NewJobHandler(orchestrator, cfg.Storage.OutputFolder).RegisterRoutes(protected)
	handlers.NewDocumentHandler(orchestrator, ocrService, pdfService, cfg.Storage.OutputFolder).RegisterRoutes(protected)
	handlers.NewOCRHandler(ocrService).RegisterRoutes(protected)
	handlers.NewSettingsHandler(store, cfg).RegisterRoutes(protected)
	handlers.NewWebhookHandler(database).RegisterRoutes(protected)

	webui := handlers.NewWebUIHandler(orchestrator, registry, cfg.Server.WebUIPath)
	webui.RegisterRoutes(router, protected)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}
