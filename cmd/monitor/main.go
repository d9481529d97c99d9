package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"btmonitor/internal/archive"
	"btmonitor/internal/config"
	"btmonitor/internal/eventlog"
	"btmonitor/internal/logging"
	"btmonitor/internal/mirror"
	"btmonitor/internal/relay"
	"btmonitor/internal/status"
	"btmonitor/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "monitor:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var workers sync.WaitGroup

	// 1. Optional event archive
	var arc *archive.Archive
	if cfg.DatabaseURL != "" {
		db, err := archive.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		arc = archive.New(db, logger, archive.DefaultQueueSize)
		if err := arc.EnsureSchema(ctx); err != nil {
			return err
		}
		workers.Add(1)
		go func() {
			defer workers.Done()
			arc.Run(context.Background())
		}()
		logger.Info("archiving events to postgres")
	} else {
		logger.Info("DATABASE_URL not set, event archive disabled")
	}

	// 2. Upstream mirror
	m := mirror.New(mirror.Options{
		URL:              cfg.WSURL,
		Dialer:           transport.NewDialer(transport.DefaultConfig().WithKeepalive(cfg.PingInterval)),
		ReconnectDelay:   cfg.ReconnectDelay,
		PingInterval:     cfg.PingInterval,
		EventLogCapacity: cfg.EventLogCap,
		Logger:           logger,
		OnPhaseChange: func(p mirror.Phase) {
			logger.Info("connection phase", zap.Stringer("phase", p))
		},
		OnEvent: func(e eventlog.Entry) {
			if arc != nil {
				arc.Record(e)
			}
		},
	})

	// 3. Dashboard relay
	hub := relay.NewHub(logger)
	workers.Add(1)
	go func() {
		defer workers.Done()
		hub.Run(ctx)
	}()
	unsubscribe := m.Subscribe(hub.Publish)
	defer unsubscribe()

	if err := m.Start(ctx); err != nil {
		return err
	}

	// 4. Configure routes
	mux := http.NewServeMux()
	api := status.NewService(m, logger)
	api.Relay = hub
	api.Routes(mux)
	mux.HandleFunc("/ws", hub.Handler(m.Snapshot))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", srv.Addr), zap.String("upstream", cfg.WSURL))
		serveErr <- srv.ListenAndServe()
	}()

	// 5. Wait for a signal or a server failure, then unwind
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	m.Stop()
	if arc != nil {
		arc.Close()
	}
	workers.Wait()
	if arc != nil {
		logger.Info("archive flushed",
			zap.Uint64("written", arc.Written()),
			zap.Uint64("dropped", arc.Dropped()),
			zap.Uint64("failed", arc.Failed()))
	}
	return nil
}
