// Command monitor-tui shows the mirrored game state in the terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"btmonitor/internal/config"
	"btmonitor/internal/eventlog"
	"btmonitor/internal/logging"
	"btmonitor/internal/mirror"
	"btmonitor/internal/summary"
	"btmonitor/internal/transport"
)

func main() {
	sound := flag.Bool("sound", false, "play a tone on warnings, errors and connection failures")
	logPath := flag.String("log", "monitor-tui.log", "log file (the terminal is busy drawing)")
	flag.Parse()

	if err := run(*sound, *logPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to run: %v\n", err)
		os.Exit(1)
	}
}

func run(sound bool, logPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		OutputPaths: []string{logPath},
	})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	alert, err := newAlerter(sound)
	if err != nil {
		// Non-fatal, the view works without sound.
		logger.Warn("audio initialization failed", zap.Error(err))
	}
	defer alert.close()

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	m := mirror.New(mirror.Options{
		URL:              cfg.WSURL,
		Dialer:           transport.NewDialer(transport.DefaultConfig().WithKeepalive(cfg.PingInterval)),
		ReconnectDelay:   cfg.ReconnectDelay,
		PingInterval:     cfg.PingInterval,
		EventLogCapacity: cfg.EventLogCap,
		Logger:           logger,
		OnPhaseChange: func(p mirror.Phase) {
			if p == mirror.PhaseError {
				alert.failure()
			}
		},
		OnEvent: func(e eventlog.Entry) {
			if e.Level == eventlog.LevelWarning || e.Level == eventlog.LevelError {
				alert.warning()
			}
		},
	})

	dirty := make(chan struct{}, 1)
	cancel := m.Subscribe(func(mirror.Snapshot) {
		select {
		case dirty <- struct{}{}:
		default:
		}
	})
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if err := m.Start(ctx); err != nil {
		return err
	}
	defer m.Stop()

	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	// Redraw at least once a second so "ago" columns stay current.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	redraw := func() {
		_, h := screen.Size()
		draw(screen, render(cfg.WSURL, summary.Build(m.Snapshot(), summary.Filter{}), time.Now(), h))
	}
	redraw()

	for {
		select {
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				switch {
				case ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC:
					return nil
				case ev.Key() == tcell.KeyRune && ev.Rune() == 'q':
					return nil
				case ev.Key() == tcell.KeyRune && ev.Rune() == 'r':
					logger.Info("manual reconnect")
					m.Connect()
				case ev.Key() == tcell.KeyRune && ev.Rune() == 'd':
					logger.Info("manual disconnect")
					m.Disconnect()
				}
			case *tcell.EventResize:
				screen.Sync()
				redraw()
			}
		case <-dirty:
			redraw()
		case <-ticker.C:
			redraw()
		}
	}
}
