// harkd is the audio capture daemon. It owns the devices, recording
// sessions, background tasks, and resource cache, and serves clients
// over a unix socket, standard streams, or websocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"hark/internal/audio"
	"hark/internal/broadcast"
	"hark/internal/cache"
	"hark/internal/config"
	"hark/internal/gdrive"
	"hark/internal/logging"
	"hark/internal/rpc"
	"hark/internal/server"
	"hark/internal/session"
	"hark/internal/storage"
	"hark/internal/summary"
	"hark/internal/task"
	"hark/internal/transcribe"
	"hark/internal/transport"
)

const gdriveSyncInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to config file")
	stdio := flag.Bool("stdio", false, "serve a single client over stdin/stdout instead of the socket")
	flag.Parse()

	if err := run(*configPath, *stdio); err != nil {
		fmt.Fprintf(os.Stderr, "harkd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, stdio bool) error {
	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// In stdio mode stdout carries the protocol; logs go to stderr
	// either way.
	logger := logging.NewConsole(os.Stderr, cfg.LogLevel)
	for _, w := range warnings {
		logger.Warn().Str("component", "config").Msg(w)
	}

	for _, dir := range []string{cfg.RecordingsDir, filepath.Dir(cfg.DBPath), filepath.Dir(cfg.SocketPath)} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	strategy, ok := cache.ParseStrategy(cfg.CacheStrategy)
	if !ok {
		strategy = cache.LRU
	}
	resources, err := cache.New(cache.Config{
		Capacity:        cfg.CacheCapacityBytes,
		Strategy:        strategy,
		SweepInterval:   cfg.ParsedCacheSweepInterval(),
		MemoryHighWater: cfg.MemoryHighWater,
		MemoryLowWater:  cfg.MemoryLowWater,
	}, logger)
	if err != nil {
		return fmt.Errorf("build cache: %w", err)
	}

	var audioCtx audio.Context
	if pa, err := audio.NewPortAudioContext(); err != nil {
		logger.Warn().
			Str("component", "audio").
			Err(err).
			Msg("audio host unavailable, capture disabled")
		audioCtx = audio.DisabledContext{}
	} else {
		audioCtx = pa
		defer pa.Close()
	}

	hub := server.NewHub(logger)

	sessions := session.NewManager(audioCtx, hub, store, logger, session.Config{
		OutputDir:        cfg.RecordingsDir,
		RetainTerminal:   cfg.ParsedSessionRetention(),
		StopWait:         cfg.ParsedStopWait(),
		SilenceThreshold: cfg.SilenceThreshold,
		SampleRate:       cfg.SampleRate,
	})
	tasks := task.NewManager(hub, logger)

	transcriber := transcribe.NewService(transcribe.Config{
		OpenAIKey:       cfg.OpenAIAPIKey,
		DeepgramKey:     cfg.DeepgramAPIKey,
		DefaultBackend:  cfg.Transcriber,
		DefaultModel:    map[string]string{"deepgram": cfg.DeepgramModel},
		DefaultLanguage: cfg.Language,
	}, resources, logger)

	var summarizer *summary.Summarizer
	if cfg.OpenAIAPIKey != "" {
		summarizer = summary.NewSummarizer(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}

	core := &rpc.Core{
		Sessions:    sessions,
		Tasks:       tasks,
		Cache:       resources,
		Transcriber: transcriber,
		Summarizer:  summarizer,
		History:     store,
		StartedAt:   time.Now().UTC(),
	}
	dispatcher := rpc.NewDispatcher(logger)
	core.RegisterAll(dispatcher)

	broadcaster := broadcast.New(sessions, tasks, resources, hub, store, cfg.ParsedSnapshotInterval(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sessions.Run(ctx)
	go tasks.Run(ctx, cfg.ParsedTaskRetention())
	go resources.Run(ctx)
	go broadcaster.Run(ctx)

	if cfg.GDriveFolderID != "" {
		syncer, err := gdrive.NewSyncer(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID, store, logger)
		if err != nil {
			logger.Warn().
				Str("component", "gdrive").
				Err(err).
				Msg("drive sync disabled")
		} else {
			go syncer.Run(ctx, gdriveSyncInterval)
		}
	}

	if stdio {
		logger.Info().Str("component", "harkd").Msg("serving on stdio")
		err := transport.ServeStdio(ctx, os.Stdin, os.Stdout, dispatcher, hub, logger)
		shutdown(sessions, tasks, broadcaster)
		return err
	}

	socket, err := transport.NewSocketServer(ctx, cfg.SocketPath, dispatcher, hub, logger)
	if err != nil {
		return fmt.Errorf("socket server: %w", err)
	}
	socket.Serve()

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Handler(hub, dispatcher, store, core.StatusDoc, logger),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Str("component", "http").Err(err).Msg("http server")
		}
	}()

	logger.Info().
		Str("component", "harkd").
		Str("socket", cfg.SocketPath).
		Str("http", cfg.HTTPAddr).
		Msg("daemon ready")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Str("component", "harkd").Msg("shutting down")
	cancel()
	socket.Close()
	shutdown(sessions, tasks, broadcaster)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Str("component", "http").Err(err).Msg("http shutdown")
	}
	return nil
}

// shutdown flushes active work: buffered audio is saved, tasks are
// cancelled, and one last snapshot is persisted for the next start.
func shutdown(sessions *session.Manager, tasks *task.Manager, broadcaster *broadcast.Broadcaster) {
	sessions.StopAll()
	tasks.CancelAll()
	broadcaster.Emit()
}
