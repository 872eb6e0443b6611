package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MegaGrindStone/sse-chat/internal/chat"
	"github.com/MegaGrindStone/sse-chat/internal/models"
	"github.com/MegaGrindStone/sse-chat/internal/services"
	"github.com/MegaGrindStone/sse-chat/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type flags struct {
	configPath string
	endpoint   string
	logFile    string
	logLevel   string
}

type app struct {
	cfg      config
	logger   zerolog.Logger
	streamer services.SSE
	closeLog func() error
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	runChat := func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(f)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if !isTerminal(cmd.InOrStdin()) || !isTerminal(cmd.OutOrStdout()) {
			return a.runLines(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		}
		return a.runTUI(ctx)
	}

	root := &cobra.Command{
		Use:          "sse-chat",
		Short:        "Chat with a streaming backend from the terminal",
		SilenceUsage: true,
		RunE:         runChat,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "config file (default: <user config dir>/sse-chat/config.yaml)")
	pf.StringVar(&f.endpoint, "endpoint", "", "base URL of the chat backend")
	pf.StringVar(&f.logFile, "log-file", "", "write logs to this file")
	pf.StringVar(&f.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat (default)",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}

	askCmd := &cobra.Command{
		Use:   "ask question...",
		Short: "Ask one question and stream the reply to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(f)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.ask(ctx, strings.Join(args, " "), cmd.OutOrStdout())
		},
	}

	root.AddCommand(chatCmd, askCmd)
	return root
}

func newApp(f *flags) (app, error) {
	path, explicit := f.configPath, f.configPath != ""
	if !explicit {
		var err error
		if path, err = defaultConfigPath(); err != nil {
			return app{}, err
		}
	}

	cfg, err := loadConfig(path, explicit)
	if err != nil {
		return app{}, err
	}
	if f.endpoint != "" {
		cfg.Endpoint = f.endpoint
	}
	if f.logFile != "" {
		cfg.Log.File = f.logFile
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}

	logger, closeLog, err := cfg.Log.newLogger()
	if err != nil {
		return app{}, err
	}

	streamer, err := services.NewSSE(cfg.Endpoint, cfg.Path, cfg.MaxEventSize, nil, logger)
	if err != nil {
		_ = closeLog()
		return app{}, err
	}

	logger.Info().
		Str("endpoint", streamer.URL("")).
		Bool("cancelPrevious", cfg.CancelPrevious).
		Dur("streamTimeout", cfg.StreamTimeout).
		Msg("Starting")

	return app{
		cfg:      cfg,
		logger:   logger,
		streamer: streamer,
		closeLog: closeLog,
	}, nil
}

func (a app) close() {
	if err := a.closeLog(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to close log file")
	}
}

func (a app) newController(viewport chat.Viewport) *chat.Controller {
	transcript := chat.NewTranscript(viewport)
	return chat.NewController(transcript, a.streamer, a.cfg.chatOptions(), a.logger)
}

func (a app) greet(ctl *chat.Controller) {
	if a.cfg.Greeting != "" {
		ctl.Transcript().Append(a.cfg.Greeting, models.AuthorBot)
	}
}

func (a app) runTUI(ctx context.Context) error {
	notifier := tui.NewNotifier()
	ctl := a.newController(notifier)
	a.greet(ctl)

	m := tui.New(ctx, ctl, notifier, tui.Options{Markdown: a.cfg.Markdown}, a.logger)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))

	_, err := p.Run()

	ctl.CancelAll()
	ctl.Wait()

	if err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "error running terminal UI")
	}
	return nil
}

// runLines reads one query per line from in and prints the transcript to out, waiting for each reply
// before reading the next line.
func (a app) runLines(ctx context.Context, in io.Reader, out io.Writer) error {
	printer := tui.NewPrinter(out)
	defer printer.Close()

	ctl := a.newController(printer)
	a.greet(ctl)
	defer ctl.Wait()
	defer ctl.CancelAll()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		s, ok := ctl.Submit(ctx, scanner.Text())
		if !ok {
			continue
		}
		if err := s.Wait(ctx); err != nil {
			return nil
		}
	}
	return errors.Wrap(scanner.Err(), "error reading input")
}

// ask submits a single question and streams only the reply to out.
func (a app) ask(ctx context.Context, question string, out io.Writer) error {
	printer := tui.NewReplyPrinter(out)
	ctl := a.newController(printer)

	s, ok := ctl.Submit(ctx, question)
	if !ok {
		return errors.New("question is empty")
	}

	waitErr := s.Wait(ctx)
	ctl.CancelAll()
	ctl.Wait()
	_ = printer.Close()

	if waitErr != nil {
		return waitErr
	}
	if s.Reason() == chat.ReasonError {
		return errors.Wrap(s.Err(), "reply failed")
	}
	if s.Reason() == chat.ReasonCancelled {
		return errors.New("reply cancelled")
	}
	return nil
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
