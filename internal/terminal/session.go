package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"moviegpt/internal/conversation"
	"moviegpt/internal/render"
	"moviegpt/internal/transcript"
)

// Session runs a conversation over plain lines of input and output
type Session struct {
	ctrl    *conversation.Controller
	display *Display
	input   *Reader
	logger  *slog.Logger

	// refs are the movie references of the last answer, for /info
	refs []render.Ref
}

// NewSession creates a line-mode session reading from in. A session that
// only answers through Ask may pass a nil reader.
func NewSession(ctrl *conversation.Controller, display *Display, in io.Reader, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		ctrl:    ctrl,
		display: display,
		logger:  logger,
	}
	if in != nil {
		s.input = NewReader(in)
	}
	return s
}

// Run prompts for input until /exit, end of input or ctx is done
func (s *Session) Run(ctx context.Context, mode string) error {
	if s.input == nil {
		return errors.New("session has no input")
	}
	defer s.display.Cleanup()

	s.display.PrintWelcome(mode)
	if s.ctrl.Store().Len() > 0 {
		s.printHistory()
	}

	for {
		s.display.PrintPrompt()
		line, err := s.input.ReadLine(ctx)
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
			s.display.PrintGoodbye()
			return nil
		case err != nil:
			return fmt.Errorf("reading input: %w", err)
		}

		if quit := s.handle(line); quit {
			s.display.PrintGoodbye()
			return nil
		}
	}
}

// Ask sends a single question and prints the answer. The returned error is
// the cause of a failed send.
func (s *Session) Ask(text string) error {
	if err := s.send(text); err != nil {
		return err
	}
	return s.ctrl.LastError()
}

func (s *Session) handle(line string) (quit bool) {
	name, arg, isCommand := parseCommand(line)
	if !isCommand {
		if err := s.send(line); err != nil && !errors.Is(err, conversation.ErrBlankInput) {
			s.display.PrintError(err)
		}
		return false
	}

	switch name {
	case "/exit":
		return true

	case "/new":
		s.ctrl.Drive(s.ctrl.NewConversation(), func(msg tea.Msg) {
			if cleared, ok := msg.(conversation.ClearedMsg); ok && cleared.Err != nil {
				s.display.PrintWarning("The server could not clear its history; starting fresh locally.")
			}
		})
		s.refs = nil
		s.display.PrintSuccess("Started a new conversation")

	case "/history":
		if s.ctrl.Store().Len() == 0 {
			s.display.PrintInfo("No messages yet")
			return false
		}
		s.printHistory()

	case "/show":
		last, ok := s.lastAnswer()
		if !ok || len(last.Results) == 0 {
			s.display.PrintInfo("The last answer has no query results")
			return false
		}
		s.display.PrintResults(last, true)

	case "/info":
		s.info(arg)

	case "/help":
		s.display.PrintHelp()

	default:
		s.display.PrintWarning(fmt.Sprintf("Unknown command %s; try /help", name))
	}
	return false
}

func (s *Session) send(text string) error {
	cmd, err := s.ctrl.Submit(text)
	if err != nil {
		return err
	}

	s.display.ShowSpinner("Thinking…")
	var streamed strings.Builder
	s.ctrl.Drive(cmd, func(msg tea.Msg) {
		tok, ok := msg.(conversation.TokenMsg)
		if !ok || tok.Epoch != s.ctrl.Epoch() {
			return
		}
		if streamed.Len() == 0 {
			s.display.StopSpinner()
			s.display.PrintAssistantPrefix()
		}
		streamed.WriteString(tok.Token)
		s.display.WriteChunk(tok.Token)
	})
	s.display.StopSpinner()
	if streamed.Len() > 0 {
		s.display.WriteNewline()
	}

	last, ok := s.lastAnswer()
	if !ok {
		return nil
	}
	s.refs = s.display.PrintAnswer(last, streamed.String())
	return nil
}

func (s *Session) info(arg string) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(s.refs) {
		if len(s.refs) == 0 {
			s.display.PrintInfo("The last answer mentions no movies")
		} else {
			s.display.PrintWarning(fmt.Sprintf("Usage: /info N with N from 1 to %d", len(s.refs)))
		}
		return
	}

	ref := s.refs[n-1]
	s.display.ShowSpinner("Looking up " + ref.Title + "…")
	s.ctrl.Drive(s.ctrl.LookupMovie(ref.ID), func(msg tea.Msg) {
		info, ok := msg.(conversation.MovieInfoMsg)
		if !ok {
			return
		}
		s.display.StopSpinner()
		if info.Err != nil {
			s.logger.Warn("movie lookup failed", "id", ref.ID, "error", info.Err)
			s.display.PrintWarning("Could not load details for " + ref.Title)
			return
		}
		s.display.PrintMovieInfo(info.Info)
	})
	s.display.StopSpinner()
}

func (s *Session) printHistory() {
	for _, e := range s.ctrl.Store().All() {
		if e.Role == transcript.RoleUser {
			s.display.PrintUser(e)
			continue
		}
		s.refs = s.display.PrintAnswer(e, "")
	}
}

func (s *Session) lastAnswer() (transcript.Entry, bool) {
	last, ok := s.ctrl.Store().Last()
	if !ok || last.Role != transcript.RoleAssistant {
		return transcript.Entry{}, false
	}
	return last, true
}
