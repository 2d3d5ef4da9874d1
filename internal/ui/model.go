// Package ui implements the full-screen chat interface.
package ui

import (
	"errors"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"moviegpt/internal/conversation"
	"moviegpt/internal/render"
)

const (
	headerHeight = 1
	statusHeight = 1
	helpHeight   = 1
	inputHeight  = 3
	// inputStyle draws a top border
	inputChrome = 1

	maxPanelWidth = 44
	minViewport   = 3
)

// Options configures the chat screen
type Options struct {
	Controller *conversation.Controller
	Markdown   *render.Markdown

	// HealthInterval is the delay between backend probes; 0 disables them
	HealthInterval time.Duration
	// FollowThreshold is how many lines from the bottom still count as
	// following the conversation
	FollowThreshold int
	// Mode is shown in the header, e.g. "stream" or "mock"
	Mode string

	Logger *slog.Logger
}

type healthTickMsg struct{}

// Model is the bubbletea model of the chat screen
type Model struct {
	ctrl   *conversation.Controller
	md     *render.Markdown
	logger *slog.Logger
	mode   string

	keys     KeyMap
	help     help.Model
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	follower *Follower

	width, height int
	ready         bool

	cache    map[string]*entryCache
	expanded map[string]bool
	controls []control
	// focus is the key of the focused control; empty means the input
	focus string

	panel          panel
	status         string
	healthInterval time.Duration
}

// New creates the chat screen model
func New(opts Options) Model {
	if opts.Markdown == nil {
		opts.Markdown = render.NewMarkdown("dark")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	keys := DefaultKeyMap()

	ta := textarea.New()
	ta.Placeholder = "Ask about movies… (e.g. 评分最高的10部电影)"
	ta.ShowLineNumbers = false
	ta.Prompt = "┃ "
	ta.CharLimit = 2000
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline = keys.Newline
	ta.Focus()

	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true

	return Model{
		ctrl:           opts.Controller,
		md:             opts.Markdown,
		logger:         opts.Logger,
		mode:           opts.Mode,
		keys:           keys,
		help:           help.New(),
		viewport:       vp,
		input:          ta,
		spinner:        spinner.New(spinner.WithSpinner(spinner.Dot)),
		follower:       NewFollower(opts.FollowThreshold),
		cache:          make(map[string]*entryCache),
		expanded:       make(map[string]bool),
		healthInterval: opts.HealthInterval,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.scheduleHealth())
}

func (m Model) scheduleHealth() tea.Cmd {
	if m.healthInterval <= 0 {
		return nil
	}
	return tea.Tick(m.healthInterval, func(time.Time) tea.Msg {
		return healthTickMsg{}
	})
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case spinner.TickMsg:
		if !m.ctrl.Busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case healthTickMsg:
		return m, m.ctrl.CheckHealth()

	case conversation.HealthMsg:
		m.ctrl.Update(msg)
		return m, m.scheduleHealth()

	case conversation.MovieInfoMsg:
		m.panel.resolve(msg)
		return m, nil

	case conversation.TokenMsg, conversation.AnswerMsg, conversation.HistoryMsg:
		cmd := m.ctrl.Update(msg)
		if err := m.ctrl.LastError(); err != nil && !m.ctrl.Busy() {
			m.status = "The last message failed; you can try again."
		}
		m.refresh(true)
		return m, cmd

	case conversation.ClearedMsg:
		m.ctrl.Update(msg)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.New):
		cmd := m.ctrl.NewConversation()
		m.expanded = make(map[string]bool)
		m.panel = panel{}
		m.status = ""
		m.focusInput()
		m.layout()
		m.follower.Force(m.gotoBottom)
		return m, cmd

	case key.Matches(msg, m.keys.NextFocus):
		m.cycleFocus(1)
		return m, nil

	case key.Matches(msg, m.keys.PrevFocus):
		m.cycleFocus(-1)
		return m, nil

	case key.Matches(msg, m.keys.Back):
		switch {
		case m.focus != "":
			m.focusInput()
			m.refresh(false)
		case m.panel.open:
			m.panel = panel{}
			m.layout()
		}
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.ViewUp()
		m.scrolled()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.ViewDown()
		m.scrolled()
		return m, nil

	case key.Matches(msg, m.keys.HalfUp):
		m.viewport.HalfViewUp()
		m.scrolled()
		return m, nil

	case key.Matches(msg, m.keys.HalfDown):
		m.viewport.HalfViewDown()
		m.scrolled()
		return m, nil

	case key.Matches(msg, m.keys.Latest):
		m.follower.Force(m.gotoBottom)
		return m, nil
	}

	if m.focus != "" {
		if key.Matches(msg, m.keys.Activate) {
			if c, ok := m.focused(); ok {
				return m.activate(c)
			}
		}
		// Typing while a control is focused returns to the input
		if msg.Type == tea.KeyRunes {
			m.focusInput()
			m.refresh(false)
		} else {
			return m, nil
		}
	}

	if key.Matches(msg, m.keys.Send) {
		return m.send()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) send() (tea.Model, tea.Cmd) {
	cmd, err := m.ctrl.Submit(m.input.Value())
	var ve *conversation.ValidationError
	switch {
	case errors.As(err, &ve):
		return m, nil
	case errors.Is(err, conversation.ErrBusy):
		m.status = "Still waiting for the previous answer…"
		return m, nil
	case errors.Is(err, conversation.ErrOffline):
		m.status = "The backend is offline; your message was not sent."
		return m, nil
	case err != nil:
		m.status = err.Error()
		return m, nil
	}

	m.input.Reset()
	m.status = ""
	m.refresh(true)
	return m, tea.Batch(cmd, m.spinner.Tick)
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
		row := msg.Y - headerHeight
		if row < 0 || row >= m.viewport.Height || msg.X >= m.viewport.Width {
			return m, nil
		}
		line := m.viewport.YOffset + row
		for _, c := range m.controls {
			if c.line == line {
				return m.activate(c)
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	m.scrolled()
	return m, cmd
}

// activate runs a control: a toggle flips its results block, a reference
// opens the detail panel. Either way the control gives focus back to the
// input.
func (m Model) activate(c control) (tea.Model, tea.Cmd) {
	m.focusInput()
	switch c.kind {
	case controlToggle:
		m.expanded[c.entryID] = !m.expanded[c.entryID]
		m.refresh(false)
		return m, nil

	default:
		m.logger.Debug("opening movie details", "id", c.ref.ID)
		m.panel = panel{open: true, id: c.ref.ID, title: c.ref.Title, loading: true}
		m.layout()
		return m, m.ctrl.LookupMovie(c.ref.ID)
	}
}

func (m *Model) cycleFocus(delta int) {
	if len(m.controls) == 0 {
		m.focusInput()
		return
	}

	// Positions: -1 is the input, 0..n-1 the controls
	n := len(m.controls)
	cur := m.controlIndex(m.focus)
	next := cur + delta
	switch {
	case next >= n:
		next = -1
	case next < -1:
		next = n - 1
	}

	if next < 0 {
		m.focusInput()
	} else {
		m.focus = m.controls[next].key()
		m.input.Blur()
	}
	m.refresh(false)

	if next >= 0 {
		m.reveal(m.controls[next].line)
	}
}

func (m *Model) focusInput() {
	m.focus = ""
	m.input.Focus()
}

func (m *Model) focused() (control, bool) {
	i := m.controlIndex(m.focus)
	if i < 0 {
		return control{}, false
	}
	return m.controls[i], true
}

func (m *Model) controlIndex(k string) int {
	if k == "" {
		return -1
	}
	for i, c := range m.controls {
		if c.key() == k {
			return i
		}
	}
	return -1
}

// reveal scrolls just enough for line to be visible
func (m *Model) reveal(line int) {
	switch {
	case line < m.viewport.YOffset:
		m.viewport.SetYOffset(line)
	case line >= m.viewport.YOffset+m.viewport.Height:
		m.viewport.SetYOffset(line - m.viewport.Height + 1)
	default:
		return
	}
	m.scrolled()
}

func (m *Model) gotoBottom() {
	m.viewport.GotoBottom()
}

func (m *Model) scrolled() {
	m.follower.OnScroll(m.viewport.YOffset, m.viewport.TotalLineCount(), m.viewport.Height)
}

// refresh re-renders the transcript. grew marks a growth event, after which
// the view follows the conversation only if it was at the bottom.
func (m *Model) refresh(grew bool) {
	if !m.ready {
		return
	}
	content, controls := m.renderTranscript()
	m.controls = controls
	m.viewport.SetContent(content)

	if m.focus != "" && m.controlIndex(m.focus) < 0 {
		m.focusInput()
	}
	if grew {
		m.follower.OnGrowth(m.gotoBottom)
	}
}

func (m *Model) layout() {
	if !m.ready {
		return
	}
	vpHeight := max(m.height-headerHeight-statusHeight-helpHeight-inputHeight-inputChrome, minViewport)
	vpWidth := m.width
	if m.panel.open {
		vpWidth -= m.panelWidth()
	}

	m.viewport.Width = max(vpWidth, 20)
	m.viewport.Height = vpHeight
	m.input.SetWidth(m.width)
	m.help.Width = m.width

	m.refresh(false)
	if m.follower.AtBottom() {
		m.viewport.GotoBottom()
	}
}

func (m Model) panelWidth() int {
	return min(maxPanelWidth, m.width/3)
}

// View implements tea.Model
func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	body := m.viewport.View()
	if m.panel.open {
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, m.panel.view(m.panelWidth(), m.viewport.Height))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		body,
		m.statusView(),
		inputStyle.Render(m.input.View()),
		m.help.View(m.keys),
	)
}

func (m Model) headerView() string {
	title := headerStyle.Render("🎬 MovieGPT")
	conn := onlineStyle.Render(" ● online")
	if !m.ctrl.Online() {
		conn = offlineStyle.Render(" ● offline")
	}
	mode := ""
	if m.mode != "" {
		mode = timeStyle.Render(" · " + m.mode)
	}
	return title + conn + mode
}

func (m Model) statusView() string {
	switch {
	case m.ctrl.Busy():
		return statusStyle.Render(m.spinner.View() + " Thinking…")
	case m.focus != "":
		return statusStyle.Render("enter/space to activate · esc to return to the input")
	case m.status != "":
		return statusStyle.Render(m.status)
	}
	return ""
}
