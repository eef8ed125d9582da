package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/antoniostano/ascolta/internal/assistant"
	"github.com/antoniostano/ascolta/internal/audio"
	"github.com/antoniostano/ascolta/internal/config"
	"github.com/antoniostano/ascolta/internal/eventlog"
	"github.com/antoniostano/ascolta/internal/hotword"
	"github.com/antoniostano/ascolta/internal/httpapi"
	"github.com/antoniostano/ascolta/internal/logging"
	"github.com/antoniostano/ascolta/internal/messaging"
	"github.com/antoniostano/ascolta/internal/observability"
	"github.com/antoniostano/ascolta/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := logging.Initialize(); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}
	defer logging.Sync()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := eventlog.NewStore(ctx, cfg.DatabaseURL, cfg.DBPath, cfg.HistoryKeep)
	if err != nil {
		logging.Logger.Fatal("event log init failed", zap.Error(err))
	}
	defer store.Close()

	bus, err := messaging.Connect(cfg.NATSURL)
	if err != nil {
		// The bus is optional; run without it rather than refuse to start.
		logging.LogWarn("message bus unavailable", zap.Error(err))
		bus = nil
	}
	defer bus.Close()

	capture := audio.NewCommandCapture(cfg.RecorderCommand, cfg.SampleRateIn)
	output := audio.NewCommandOutput(cfg.PlayerCommand, cfg.SampleRateOut)
	chime := audio.NewChime(cfg.ChimePlayerCommand, cfg.ChimePath, cfg.SampleRateOut)

	var service assistant.Service
	mode := strings.ToLower(strings.TrimSpace(cfg.AssistantMode))
	switch mode {
	case "ws":
		service, err = assistant.NewWSService(assistant.WSConfig{URL: cfg.AssistantWSURL, APIKey: cfg.AssistantAPIKey})
		if err != nil {
			logging.Logger.Fatal("assistant service init failed", zap.Error(err))
		}
		logging.Logger.Info("assistant service: websocket", zap.String("url", cfg.AssistantWSURL))
	case "mock":
		service = assistant.NewMockService()
		logging.Logger.Info("assistant service: mock")
	case "auto", "":
		if strings.TrimSpace(cfg.AssistantWSURL) != "" {
			service, err = assistant.NewWSService(assistant.WSConfig{URL: cfg.AssistantWSURL, APIKey: cfg.AssistantAPIKey})
			if err != nil {
				logging.Logger.Fatal("assistant service init failed", zap.Error(err))
			}
			logging.Logger.Info("assistant service: websocket", zap.String("url", cfg.AssistantWSURL))
		} else {
			service = assistant.NewMockService()
			logging.Logger.Info("assistant service: mock (no ASSISTANT_WS_URL set)")
		}
	default:
		logging.Logger.Fatal("invalid ASSISTANT_MODE", zap.String("mode", cfg.AssistantMode))
	}

	detector := hotword.NewEnergyDetector(cfg.HotwordID, cfg.HotwordThreshold, cfg.HotwordWindow, cfg.SampleRateIn)
	gate := hotword.NewGate(capture, detector)
	gate.ClassifierError = func(error) { metrics.ClassifierErrors.Inc() }

	orchestrator := session.NewOrchestrator(session.OrchestratorConfig{
		HotwordID:            cfg.HotwordID,
		SampleRateIn:         cfg.SampleRateIn,
		SampleRateOut:        cfg.SampleRateOut,
		ConversationDeadline: cfg.ConversationDeadline,
	}, gate, capture, output, service, chime, session.SystemClock, metrics, store, bus)

	api := httpapi.New(orchestrator, store, metrics.Latency)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()

	runDone := make(chan error, 1)
	go func() { runDone <- orchestrator.Run(runCtx) }()

	go func() {
		logging.Logger.Info("server listening", zap.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Logger.Fatal("listen error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logging.Logger.Info("shutdown signal received")
	case err := <-runDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.LogError(err, "controller stopped")
		}
	}

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.LogError(err, "graceful shutdown failed")
		_ = httpServer.Close()
	}

	logging.Logger.Info("shutdown complete")
}
