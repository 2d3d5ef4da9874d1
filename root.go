package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"moviegpt/internal/config"
	"moviegpt/internal/render"
	"moviegpt/internal/terminal"
	"moviegpt/internal/ui"
)

var version = "dev"

// flags holds command-line overrides; they win over the config file and
// the environment
type flags struct {
	configPath string
	backendURL string
	mock       bool
	noStream   bool
	debug      bool
	plain      bool
}

func newRootCommand() *cobra.Command {
	return newCommand(&flags{})
}

func newCommand(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "moviegpt",
		Short: "MovieGPT - chat with a movie database",
		Long: `MovieGPT is a terminal client for a natural-language movie database.

Questions are answered by the MovieGPT backend, which translates them into
SQL. Movies mentioned in an answer can be opened for details, and the
queries behind an answer can be expanded inline.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), cfg, f.plain)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", config.DefaultPath(), "Path to the config file")
	pf.StringVar(&f.backendURL, "backend", "", "Backend base URL (overrides config)")
	pf.BoolVar(&f.mock, "mock", false, "Answer from built-in sample data instead of the backend")
	pf.BoolVar(&f.noStream, "no-stream", false, "Wait for whole answers instead of streaming tokens")
	pf.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&f.plain, "plain", false, "Use the line-oriented interface instead of the full screen")

	cmd.AddCommand(newAskCommand(f))
	return cmd
}

func newAskCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question and print the answer",
		Example: `  moviegpt ask "评分最高的10部电影"
  moviegpt ask --mock which Nolan films are in the catalog`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return runAsk(cmd.Context(), cfg, strings.Join(args, " "))
		},
	}
}

// loadConfig layers defaults, the config file, MOVIEGPT_* variables and
// explicitly set flags, in that order
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg := config.NewConfig()
	if err := cfg.LoadFile(f.configPath); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	set := cmd.Flags().Changed
	if set("backend") {
		cfg.BackendURL = f.backendURL
	}
	if set("mock") {
		cfg.Mock = f.mock
	}
	if set("no-stream") {
		cfg.Stream = !f.noStream
	}
	if set("debug") {
		cfg.Debug = f.debug
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func runChat(ctx context.Context, cfg *config.Config, plain bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	a.start()

	if plain || !terminal.IsTerminal(os.Stdin) || !terminal.IsTerminal(os.Stdout) {
		return a.runPlain(ctx, os.Stdin, os.Stdout)
	}

	model := ui.New(ui.Options{
		Controller:      a.ctrl,
		Markdown:        render.NewMarkdown(cfg.MarkdownStyle),
		HealthInterval:  cfg.HealthInterval,
		FollowThreshold: cfg.FollowThreshold,
		Mode:            a.mode(),
		Logger:          a.logger,
	})
	p := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running interface: %w", err)
	}
	return nil
}

func runAsk(ctx context.Context, cfg *config.Config, question string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.ask(ctx, question, os.Stdout)
}
