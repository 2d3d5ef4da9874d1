package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"moviegpt/internal/backend"
	"moviegpt/internal/clock"
	"moviegpt/internal/config"
	"moviegpt/internal/conversation"
	"moviegpt/internal/infocache"
	"moviegpt/internal/render"
	"moviegpt/internal/terminal"
	"moviegpt/internal/transcript"
)

// app wires the configured backend, transcript and controller together
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend backend.Backend
	ctrl    *conversation.Controller

	closers []io.Closer
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	logger, logFile, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a.logger = logger
	if logFile != nil {
		a.closers = append(a.closers, logFile)
	}

	clk := clock.Real{}
	if cfg.Mock {
		a.backend = backend.NewMock(clk, cfg.MockSeed)
	} else {
		a.backend = backend.NewClient(backend.Options{
			BaseURL:     cfg.BackendURL,
			APIPrefix:   cfg.APIPrefix,
			Timeout:     cfg.RequestTimeout,
			InfoRetries: cfg.InfoRetries,
			InfoBackoff: cfg.InfoBackoff,
			InfoCache:   a.infoCache(),
			Clock:       clk,
			Logger:      logger,
		})
	}

	a.ctrl = conversation.New(conversation.Options{
		Backend: a.backend,
		Store:   transcript.NewStore(clk),
		Stream:  cfg.Stream,
		Timeout: cfg.RequestTimeout,
		Logger:  logger,
	})

	logger.Info("starting", "version", version, "mode", a.mode(), "backend", cfg.BackendURL)
	return a, nil
}

// infoCache opens the persistent movie detail cache, falling back to memory
func (a *app) infoCache() backend.InfoCache {
	if a.cfg.InfoCachePath == "" {
		return backend.NewMemoryCache()
	}
	cache, err := infocache.Open(a.cfg.InfoCachePath, a.cfg.InfoCacheTTL)
	if err != nil {
		a.logger.Warn("movie info cache unavailable, using memory", "path", a.cfg.InfoCachePath, "error", err)
		return backend.NewMemoryCache()
	}
	a.closers = append(a.closers, cache)
	return cache
}

func (a *app) mode() string {
	switch {
	case a.cfg.Mock:
		return "mock"
	case a.cfg.Stream:
		return "stream"
	}
	return "buffered"
}

// start probes the backend and loads the server-side history concurrently,
// then applies both results to the controller
func (a *app) start() {
	var (
		health, history tea.Msg
		g               errgroup.Group
	)
	g.Go(func() error {
		health = a.ctrl.CheckHealth()()
		return nil
	})
	g.Go(func() error {
		history = a.ctrl.LoadHistory()()
		return nil
	})
	_ = g.Wait()

	a.ctrl.Update(health)
	a.ctrl.Update(history)
}

func (a *app) display(out io.Writer) *terminal.Display {
	style := a.cfg.MarkdownStyle
	width := 80
	animate := false
	if f, ok := out.(*os.File); ok && terminal.IsTerminal(f) {
		width = terminal.Width(f, width)
		animate = true
	} else {
		style = "notty"
	}
	return terminal.NewDisplay(out, terminal.DisplayOptions{
		Markdown: render.NewMarkdown(style),
		Width:    width,
		Animate:  animate,
	})
}

func (a *app) runPlain(ctx context.Context, in io.Reader, out io.Writer) error {
	stop := context.AfterFunc(ctx, a.ctrl.Close)
	defer stop()

	d := a.display(out)
	if !a.ctrl.Online() {
		d.PrintWarning("The backend at " + a.cfg.BackendURL + " is not reachable; messages will fail until it is.")
		a.ctrl.SetOnline(true)
	}
	return terminal.NewSession(a.ctrl, d, in, a.logger).Run(ctx, a.mode())
}

func (a *app) ask(ctx context.Context, question string, out io.Writer) error {
	stop := context.AfterFunc(ctx, a.ctrl.Close)
	defer stop()

	s := terminal.NewSession(a.ctrl, a.display(out), nil, a.logger)
	if err := s.Ask(question); err != nil {
		return &AnswerFailedError{Err: err}
	}
	return nil
}

// Close releases the cache and log files
func (a *app) Close() {
	a.ctrl.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// newLogger logs to the configured file, since stdout belongs to the
// interface. Without a log path nothing is logged.
func newLogger(cfg *config.Config) (*slog.Logger, *os.File, error) {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	if cfg.LogPath == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})), f, nil
}
