package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alxayo/streamcast/internal/auth"
	"github.com/alxayo/streamcast/internal/dumpsink"
	"github.com/alxayo/streamcast/internal/dumpsink/blob"
	"github.com/alxayo/streamcast/internal/dumpsink/file"
	"github.com/alxayo/streamcast/internal/logger"
	"github.com/alxayo/streamcast/internal/source"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	hookMgr, err := buildHookManager(cfg, log)
	if err != nil {
		log.Error("failed to build hook manager", "error", err)
		os.Exit(1)
	}

	var sinks dumpsink.Multi
	if cfg.dumpDir != "" {
		fileSink, err := file.New(cfg.dumpDir, log)
		if err != nil {
			log.Error("failed to open dump directory", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, fileSink)
	}
	if cfg.blobURL != "" {
		blobSink, err := blob.New(cfg.blobURL, log)
		if err != nil {
			log.Error("failed to initialize blob dump sink", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, blobSink)
	}
	var dump dumpsink.Sink
	if len(sinks) > 0 {
		dump = sinks
	}

	server := New(Config{
		ListenAddr: cfg.listenAddr,
		LogLevel:   cfg.logLevel,
		DefaultMount: source.Config{
			MaxListeners:   0,
			QueueSizeLimit: 1 << 20,
			BurstSizeBytes: 65536,
			SourceTimeout:  10 * time.Second,
		},
	}, log, hookMgr, dump, auth.Chain{})

	if err := server.Start(); err != nil {
		log.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	log.Info("server started", "addr", server.Addr().String(), "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if err := server.Stop(); err != nil {
			log.Error("server stop error", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("server stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout")
	}
}
