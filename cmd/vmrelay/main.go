package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/karmatek/vmrelay/internal/api"
	"github.com/karmatek/vmrelay/internal/archive"
	"github.com/karmatek/vmrelay/internal/audio"
	"github.com/karmatek/vmrelay/internal/cloudstorage"
	"github.com/karmatek/vmrelay/internal/config"
	"github.com/karmatek/vmrelay/internal/cucm"
	"github.com/karmatek/vmrelay/internal/dedup"
	"github.com/karmatek/vmrelay/internal/greeting"
	"github.com/karmatek/vmrelay/internal/notify"
	"github.com/karmatek/vmrelay/internal/pipeline"
	"github.com/karmatek/vmrelay/internal/speech"
	"github.com/karmatek/vmrelay/internal/transcription"
	"github.com/karmatek/vmrelay/internal/ucxn"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	slog.SetDefault(slog.New(cfg.SlogHandler(os.Stdout)))

	slog.Info("starting vmrelay",
		"version", version,
		"http_port", cfg.HTTPPort,
		"ucxn_server", cfg.UCXNServer,
		"spool_dir", cfg.SpoolDir,
	)

	if err := os.MkdirAll(cfg.SpoolDir, 0o755); err != nil {
		slog.Error("failed to create spool directory", "error", err)
		os.Exit(1)
	}

	pbx := ucxn.New(ucxn.Options{
		BaseURL:     cfg.UCXNBaseURL(),
		Username:    cfg.UCXNUser,
		Password:    cfg.UCXNPassword,
		InsecureTLS: cfg.UCXNInsecureTLS,
	})

	store, err := openDedupStore(cfg)
	if err != nil {
		slog.Error("failed to open dedup store", "backend", cfg.DedupBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		slog.Error("failed to load aws configuration", "error", err)
		os.Exit(1)
	}

	objects := cloudstorage.NewS3Store(awsCfg, cfg.S3Bucket)
	transcriber := transcription.NewAWS(awsCfg, cfg.S3Bucket, cfg.TranscribeLanguage)
	notifier := notify.NewWebex(notify.WebexOptions{
		Token:   cfg.WebexToken,
		RoomID:  cfg.WebexRoomID,
		ToEmail: cfg.WebexToEmail,
	})

	relay := pipeline.New(pipeline.Options{
		Messages:     pbx,
		Objects:      objects,
		Transcriber:  transcriber,
		Notifier:     notifier,
		Dedup:        store,
		SpoolDir:     cfg.SpoolDir,
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
	})

	var forwarder greeting.Forwarder
	if cfg.ForwardingEnabled() {
		forwarder = cucm.New(cucm.Options{
			Endpoint:    cfg.CUCMEndpoint,
			Username:    cfg.CUCMUser,
			Password:    cfg.CUCMPassword,
			Pattern:     cfg.ForwardTarget,
			Destination: cfg.ForwardDest,
			InsecureTLS: cfg.UCXNInsecureTLS,
		})
		slog.Info("call forwarding updates enabled", "pattern", cfg.ForwardTarget)
	}

	greetings := greeting.New(greeting.Options{
		PBX:         pbx,
		Synthesizer: speech.NewPolly(awsCfg),
		Converter:   audio.NewConverter(cfg.SoxPath),
		Forwarder:   forwarder,
		SpoolDir:    cfg.SpoolDir,
		Locale:      cfg.GreetingLocale,
	})

	handler := api.NewServer(relay, pbx, greetings, version)
	defer handler.Close()

	// Application context for background goroutines.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Retention sweep for archived recordings.
	archive.StartCleanupTicker(appCtx, cfg.SpoolDir, cfg.ArchiveMaxDays, time.Hour)

	// Keep the PBX message event subscription alive while running.
	var renewer *ucxn.SubscriptionRenewer
	if cfg.SubscriptionEnabled() {
		renewer = ucxn.NewSubscriptionRenewer(pbx, ucxn.SubscribeRequest{
			Resource:    cfg.SubscribeResource,
			CallbackURL: cfg.SubscribeCallback,
			TTL:         cfg.SubscribeTTL,
		}, cfg.SubscribeRenew)
		go renewer.Run(appCtx)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout. Cancelling appCtx triggers the
	// subscription teardown.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	appCancel()
	if renewer != nil {
		renewer.Wait()
	}

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("vmrelay stopped")
}

// openDedupStore picks the processed-message store backend. The file
// backend keeps a flat JSON document in the spool directory; sqlite scales
// to years of traffic without rewriting the whole document per message.
func openDedupStore(cfg *config.Config) (dedup.Store, error) {
	switch cfg.DedupBackend {
	case "sqlite":
		return dedup.OpenSQLite(filepath.Join(cfg.SpoolDir, "processed.db"))
	case "file":
		return dedup.OpenFile(filepath.Join(cfg.SpoolDir, "processed.json"))
	default:
		return nil, fmt.Errorf("unknown dedup backend %q", cfg.DedupBackend)
	}
}
