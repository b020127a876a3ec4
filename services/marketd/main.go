package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"nftmarket/config"
	"nftmarket/core/events"
	"nftmarket/native/sandbox"
	"nftmarket/observability"
	"nftmarket/observability/logging"
	telemetry "nftmarket/observability/otel"
	"nftmarket/services/marketd/archive"
	"nftmarket/services/marketd/sequencer"
	"nftmarket/services/marketd/server"
	"nftmarket/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "marketd.toml", "path to marketd configuration file (TOML or YAML)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("marketd: load config: %v", err)
	}

	logger := logging.Setup("marketd", cfg.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "marketd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatalf("marketd: init telemetry: %v", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	db, err := openDatabase(cfg.DataDir)
	if err != nil {
		log.Fatalf("marketd: open state: %v", err)
	}
	defer db.Close()

	params, err := cfg.Params()
	if err != nil {
		log.Fatalf("marketd: marketplace params: %v", err)
	}
	sb, err := sandbox.New(db, params)
	if err != nil {
		log.Fatalf("marketd: build marketplace: %v", err)
	}
	genesis, err := cfg.Genesis.Sandbox()
	if err != nil {
		log.Fatalf("marketd: genesis: %v", err)
	}
	if err := sb.ApplyGenesis(genesis); err != nil {
		log.Fatalf("marketd: apply genesis: %v", err)
	}

	arch, err := archive.Open(cfg.Archive.DSN, logger)
	if err != nil {
		log.Fatalf("marketd: open archive: %v", err)
	}
	defer arch.Close()
	if err := arch.Verify(context.Background()); err != nil {
		log.Fatalf("marketd: archive integrity: %v", err)
	}

	hub := server.NewHub(0, logger)
	recorder := observability.NewEventRecorder(params.FeeBps)
	sb.Engine.SetEmitter(events.Fanout{arch, hub, recorder})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seq := sequencer.New(256, logger)
	seqCtx, stopSeq := context.WithCancel(context.Background())
	go seq.Run(seqCtx)

	srv, err := server.New(server.Config{
		Sandbox:  sb,
		Executor: seq,
		Archive:  arch,
		Hub:      hub,
		Fees:     recorder,
		Auth: server.AuthConfig{
			HMACSecret: cfg.Auth.Secret,
			Issuer:     cfg.Auth.Issuer,
		},
		RateLimit: server.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("marketd: build server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("marketd listening",
			slog.String("addr", cfg.ListenAddress),
			slog.String("market", strings.ToLower(params.Address.Hex())),
			slog.Int("fee_bps", int(params.FeeBps)))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok && err != nil {
			logger.Error("http server failed", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.Any("error", err))
	}
	// In-flight operations finish before the state database closes.
	stopSeq()
	<-seq.Stopped()
	logger.Info("marketd stopped")
}

func openDatabase(dataDir string) (storage.Database, error) {
	dir := strings.TrimSpace(dataDir)
	if dir == "" {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return storage.NewLevelDB(filepath.Join(dir, "state"))
}
