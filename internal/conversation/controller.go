// Package conversation drives a chat session: it records what the user
// says, dispatches it to the backend and records the answer.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"moviegpt/internal/backend"
	"moviegpt/internal/transcript"
)

// Apology is shown in place of an answer when a send fails
const Apology = "抱歉，服务暂时不可用，请稍后再试。"

// State is the controller's send state
type State int

const (
	// Idle accepts submits
	Idle State = iota
	// Sending has one request in flight and rejects submits
	Sending
	// Error is entered after a failed send; it accepts submits like Idle
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Error:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ValidationError rejects a submit before any side effect
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

var (
	// ErrBlankInput rejects empty or whitespace-only input
	ErrBlankInput = &ValidationError{Reason: "message cannot be blank"}
	// ErrBusy rejects a submit while a send is in flight
	ErrBusy = errors.New("a message is already being sent")
	// ErrOffline rejects a submit while the backend is unreachable
	ErrOffline = errors.New("backend is offline")
)

// Options configures a Controller
type Options struct {
	Backend backend.Backend
	Store   *transcript.Store

	// Stream selects incremental token delivery instead of a buffered answer
	Stream bool
	// Timeout bounds backend calls other than streaming; 0 means none
	Timeout time.Duration

	Logger *slog.Logger
}

// Controller is the single writer of the transcript. All methods must be
// called from one goroutine, normally the bubbletea update loop; network
// work happens in the tea.Cmds it returns.
type Controller struct {
	backend backend.Backend
	store   *transcript.Store
	stream  bool
	timeout time.Duration
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	state   State
	epoch   uint64
	online  bool
	pending strings.Builder
	lastErr error
}

// New creates a controller in the Idle state
func New(opts Options) *Controller {
	if opts.Store == nil {
		opts.Store = transcript.NewStore(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		backend: opts.Backend,
		store:   opts.Store,
		stream:  opts.Stream,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
		online:  true,
	}
}

// Close abandons in-flight work
func (c *Controller) Close() {
	c.cancel()
}

// Store returns the transcript
func (c *Controller) Store() *transcript.Store {
	return c.store
}

// State returns the current send state
func (c *Controller) State() State {
	return c.state
}

// Busy reports whether a send is in flight
func (c *Controller) Busy() bool {
	return c.state == Sending
}

// Online reports the last known backend connectivity
func (c *Controller) Online() bool {
	return c.online
}

// SetOnline records backend connectivity from a health probe
func (c *Controller) SetOnline(online bool) {
	if online != c.online {
		c.logger.Info("backend connectivity changed", "online", online)
	}
	c.online = online
}

// Pending returns the text streamed so far for the in-flight send
func (c *Controller) Pending() string {
	return c.pending.String()
}

// LastError returns the cause of the most recent failed send
func (c *Controller) LastError() error {
	return c.lastErr
}

// Epoch identifies the current conversation generation
func (c *Controller) Epoch() uint64 {
	return c.epoch
}

// Submit records the user's message and returns the command that sends it.
// The user entry is appended before the command runs.
func (c *Controller) Submit(text string) (tea.Cmd, error) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return nil, ErrBlankInput
	case c.state == Sending:
		return nil, ErrBusy
	case !c.online:
		return nil, ErrOffline
	}

	c.store.Append(transcript.RoleUser, text, nil)
	c.state = Sending
	c.pending.Reset()
	c.lastErr = nil

	c.logger.Debug("sending message", "epoch", c.epoch, "stream", c.stream, "length", len(text))

	if c.stream {
		return c.streamCmd(c.epoch, text), nil
	}
	return c.chatCmd(c.epoch, text), nil
}

func (c *Controller) chatCmd(epoch uint64, text string) tea.Cmd {
	b, parent, timeout := c.backend, c.ctx, c.timeout
	return func() tea.Msg {
		ctx, cancel := withTimeout(parent, timeout)
		defer cancel()

		answer, err := b.Chat(ctx, text)
		return AnswerMsg{Epoch: epoch, Answer: answer, Err: err}
	}
}

// streamCmd starts the stream and returns its first event. Every TokenMsg
// carries the command that waits for the next one, so events are applied
// in order and the AnswerMsg is always last.
func (c *Controller) streamCmd(epoch uint64, text string) tea.Cmd {
	b, ctx := c.backend, c.ctx
	events := make(chan tea.Msg, 64)

	var wait tea.Cmd
	wait = func() tea.Msg {
		select {
		case msg := <-events:
			if tok, ok := msg.(TokenMsg); ok {
				tok.next = wait
				return tok
			}
			return msg
		case <-ctx.Done():
			return AnswerMsg{Epoch: epoch, Err: ctx.Err()}
		}
	}

	send := func(msg tea.Msg) {
		select {
		case events <- msg:
		case <-ctx.Done():
		}
	}

	return func() tea.Msg {
		go b.ChatStream(ctx, text, backend.StreamCallbacks{
			OnToken: func(token string) {
				send(TokenMsg{Epoch: epoch, Token: token})
			},
			OnComplete: func(answer backend.Answer) {
				send(AnswerMsg{Epoch: epoch, Answer: answer, Err: answer.Err})
			},
		})
		return wait()
	}
}

// Update applies a message produced by one of the controller's commands
// and returns the follow-up command, if any
func (c *Controller) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case TokenMsg:
		if msg.Epoch == c.epoch && c.state == Sending {
			c.pending.WriteString(msg.Token)
		}
		// Keep draining a superseded stream so its sender is not blocked
		return msg.next

	case AnswerMsg:
		c.finish(msg)

	case ClearedMsg:
		if msg.Err != nil {
			c.logger.Warn("failed to clear backend history", "error", msg.Err)
		}

	case HealthMsg:
		if msg.Err != nil {
			c.logger.Debug("health check failed", "error", msg.Err)
		}
		c.SetOnline(msg.Err == nil)

	case HistoryMsg:
		if msg.Err != nil {
			c.logger.Warn("failed to load history", "error", msg.Err)
			return nil
		}
		c.Hydrate(msg.Items)
	}
	return nil
}

func (c *Controller) finish(msg AnswerMsg) {
	if msg.Epoch != c.epoch || c.state != Sending {
		c.logger.Debug("discarding stale answer", "epoch", msg.Epoch, "current", c.epoch)
		return
	}
	defer c.pending.Reset()

	answer := msg.Answer
	err := msg.Err
	if err == nil && answer.Error != "" {
		err = fmt.Errorf("backend reported error: %s", answer.Error)
	}

	text := answer.Text
	if err == nil && strings.TrimSpace(text) == "" {
		// An implicit completion carries no text; the streamed tokens stand
		text = c.pending.String()
	}
	if err == nil && strings.TrimSpace(text) == "" && len(answer.Results) == 0 {
		err = errors.New("backend returned an empty answer")
	}

	if err != nil {
		c.logger.Warn("message failed", "error", err)
		c.store.Append(transcript.RoleAssistant, Apology, nil)
		c.lastErr = err
		c.state = Error
		return
	}

	c.store.Append(transcript.RoleAssistant, text, answer.Results)
	c.state = Idle
}

// NewConversation clears the transcript locally and returns a best-effort
// request for the backend to do the same. A send in flight is not
// cancelled; its answer is discarded when it arrives.
func (c *Controller) NewConversation() tea.Cmd {
	c.store.Clear()
	c.epoch++
	c.state = Idle
	c.pending.Reset()
	c.lastErr = nil

	c.logger.Info("started new conversation", "epoch", c.epoch)

	b, parent, timeout := c.backend, c.ctx, c.timeout
	return func() tea.Msg {
		ctx, cancel := withTimeout(parent, timeout)
		defer cancel()
		return ClearedMsg{Err: b.Clear(ctx)}
	}
}

// Hydrate loads server-side history into an empty transcript. It is a no-op
// once the conversation has started.
func (c *Controller) Hydrate(items []backend.HistoryItem) {
	if c.store.Len() > 0 || c.state == Sending {
		return
	}
	for _, item := range items {
		role, ok := transcript.ParseRole(item.Type)
		if !ok || strings.TrimSpace(item.Text) == "" {
			continue
		}
		if at, ok := timestamp(item.Timestamp); ok {
			c.store.AppendAt(role, item.Text, nil, at)
		} else {
			c.store.Append(role, item.Text, nil)
		}
	}
}

// CheckHealth probes the backend
func (c *Controller) CheckHealth() tea.Cmd {
	b, parent, timeout := c.backend, c.ctx, c.timeout
	return func() tea.Msg {
		ctx, cancel := withTimeout(parent, timeout)
		defer cancel()
		return HealthMsg{Err: b.Health(ctx)}
	}
}

// LoadHistory fetches the server-side history
func (c *Controller) LoadHistory() tea.Cmd {
	b, parent, timeout := c.backend, c.ctx, c.timeout
	return func() tea.Msg {
		ctx, cancel := withTimeout(parent, timeout)
		defer cancel()
		items, err := b.History(ctx)
		return HistoryMsg{Items: items, Err: err}
	}
}

// LookupMovie fetches the detail record for an entity reference
func (c *Controller) LookupMovie(id string) tea.Cmd {
	b, ctx := c.backend, c.ctx
	return func() tea.Msg {
		info, err := b.MovieInfo(ctx, id)
		return MovieInfoMsg{ID: id, Info: info, Err: err}
	}
}

// timestamp accepts Unix seconds or milliseconds. ok is false for a
// missing (zero) timestamp.
func timestamp(ts int64) (t time.Time, ok bool) {
	switch {
	case ts <= 0:
		return time.Time{}, false
	case ts > 1e12:
		return time.UnixMilli(ts), true
	default:
		return time.Unix(ts, 0), true
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Drive runs cmd synchronously along with every follow-up command, passing
// each message through Update and then to observe. It is the line-mode
// counterpart of the bubbletea runtime.
func (c *Controller) Drive(cmd tea.Cmd, observe func(tea.Msg)) {
	for cmd != nil {
		msg := cmd()
		if msg == nil {
			return
		}
		next := c.Update(msg)
		if observe != nil {
			observe(msg)
		}
		cmd = next
	}
}
