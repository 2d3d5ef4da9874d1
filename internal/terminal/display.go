// Package terminal implements the line-oriented interface used when the
// full-screen UI is unavailable or unwanted.
package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"moviegpt/internal/backend"
	"moviegpt/internal/conversation"
	"moviegpt/internal/render"
	"moviegpt/internal/transcript"
)

// Display handles terminal output with colors and formatting
type Display struct {
	out   io.Writer
	md    *render.Markdown
	width int
	// animate enables the spinner; it only makes sense on a terminal
	animate bool

	mu      sync.Mutex
	spinner chan struct{}
	spunWG  sync.WaitGroup

	info, warn, fail, ok, dim, user, assistant, ref lipgloss.Style
}

// DisplayOptions configures a Display
type DisplayOptions struct {
	Markdown *render.Markdown
	// Width wraps markdown; 0 means 80
	Width int
	// Animate shows a spinner while waiting
	Animate bool
}

// NewDisplay creates a display writing to out. Colors follow what out
// supports.
func NewDisplay(out io.Writer, opts DisplayOptions) *Display {
	if opts.Markdown == nil {
		opts.Markdown = render.NewMarkdown("notty")
	}
	if opts.Width <= 0 {
		opts.Width = 80
	}
	r := lipgloss.NewRenderer(out)
	return &Display{
		out:       out,
		md:        opts.Markdown,
		width:     opts.Width,
		animate:   opts.Animate,
		info:      r.NewStyle().Foreground(lipgloss.Color("6")),
		warn:      r.NewStyle().Foreground(lipgloss.Color("3")),
		fail:      r.NewStyle().Foreground(lipgloss.Color("1")),
		ok:        r.NewStyle().Foreground(lipgloss.Color("2")),
		dim:       r.NewStyle().Foreground(lipgloss.Color("8")),
		user:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		assistant: r.NewStyle().Bold(true).Foreground(lipgloss.Color("4")),
		ref:       r.NewStyle().Foreground(lipgloss.Color("14")),
	}
}

func (d *Display) printf(format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, format, args...)
}

// PrintWelcome displays the welcome message
func (d *Display) PrintWelcome(mode string) {
	d.printf("%s\n", d.info.Render("╔════════════════════════════════════════╗"))
	d.printf("%s\n", d.info.Render("║   MovieGPT - ask the movie catalog     ║"))
	d.printf("%s\n", d.info.Render("╚════════════════════════════════════════╝"))
	if mode != "" {
		d.printf("\n%s\n", d.dim.Render("Mode: "+mode))
	}
	d.printf("%s\n\n", d.dim.Render("Type a question, /help for commands or /exit to quit"))
}

// PrintHelp lists the commands
func (d *Display) PrintHelp() {
	for _, c := range commands {
		d.printf("  %-10s %s\n", c.name, d.dim.Render(c.help))
	}
}

// PrintGoodbye displays the goodbye message
func (d *Display) PrintGoodbye() {
	d.printf("\n%s\n", d.info.Render("Goodbye! 👋"))
}

// PrintError displays an error message
func (d *Display) PrintError(err error) {
	d.printf("%s\n", d.fail.Render("✗ Error: "+err.Error()))
}

// PrintInfo displays an info message
func (d *Display) PrintInfo(msg string) {
	d.printf("%s\n", d.info.Render("ℹ "+msg))
}

// PrintWarning displays a warning message
func (d *Display) PrintWarning(msg string) {
	d.printf("%s\n", d.warn.Render("⚠ "+msg))
}

// PrintSuccess displays a success message
func (d *Display) PrintSuccess(msg string) {
	d.printf("%s\n", d.ok.Render("✓ "+msg))
}

// ShowSpinner animates msg until StopSpinner is called. Without animation
// it does nothing.
func (d *Display) ShowSpinner(msg string) {
	if !d.animate {
		return
	}
	d.StopSpinner()

	stop := make(chan struct{})
	d.mu.Lock()
	d.spinner = stop
	d.mu.Unlock()

	d.spunWG.Add(1)
	go func() {
		defer d.spunWG.Done()
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(frames) {
			d.printf("\r%s", d.info.Render(frames[i]+" "+msg))
			select {
			case <-stop:
				d.printf("\r\033[2K\r")
				return
			case <-ticker.C:
			}
		}
	}()
}

// StopSpinner stops the active spinner and clears its line
func (d *Display) StopSpinner() {
	d.mu.Lock()
	stop := d.spinner
	d.spinner = nil
	d.mu.Unlock()

	if stop != nil {
		close(stop)
		d.spunWG.Wait()
	}
}

// WriteChunk writes a chunk of text without a newline (for streaming)
func (d *Display) WriteChunk(text string) {
	d.printf("%s", text)
}

// WriteNewline writes a newline
func (d *Display) WriteNewline() {
	d.printf("\n")
}

// PrintPrompt displays the user input prompt
func (d *Display) PrintPrompt() {
	d.printf("\n%s", d.ok.Render("> "))
}

// PrintAssistantPrefix prints the assistant response prefix
func (d *Display) PrintAssistantPrefix() {
	d.printf("\n%s ", d.assistant.Render("MovieGPT:"))
}

// PrintUser prints a user entry
func (d *Display) PrintUser(e transcript.Entry) {
	d.printf("\n%s %s\n%s\n", d.user.Render("You"), d.dim.Render(stamp(e)), e.Text)
}

// PrintAnswer prints an assistant entry and returns its movie references in
// display order. When streamed holds the text already shown, the answer
// body is not repeated.
func (d *Display) PrintAnswer(e transcript.Entry, streamed string) []render.Ref {
	if e.Text == conversation.Apology {
		if streamed == "" {
			d.printf("\n%s\n", d.assistant.Render("MovieGPT:"))
		}
		d.PrintWarning(e.Text)
		return nil
	}

	doc := render.Answer(e.Text, e.Results)
	if streamed == "" || strings.TrimSpace(streamed) != strings.TrimSpace(e.Text) {
		d.printf("\n%s %s\n", d.assistant.Render("MovieGPT"), d.dim.Render(stamp(e)))
		d.printf("%s\n", d.md.Render(doc.Markdown, d.width))
	}

	for _, r := range doc.Refs {
		d.printf("  %s %s\n", d.ref.Render(fmt.Sprintf("[%d] %s", r.N, r.Title)), d.dim.Render(fmt.Sprintf("/info %d", r.N)))
	}
	d.PrintResults(e, false)
	return doc.Refs
}

// PrintResults prints the query-results block of an entry
func (d *Display) PrintResults(e transcript.Entry, expanded bool) {
	block := render.Results(e.Results, expanded, render.Options{Width: d.width - 2, Color: d.animate})
	if block.Empty() {
		return
	}
	label := block.Label()
	if !expanded {
		label += " (/show)"
	}
	d.printf("  %s\n", d.ref.Render(label))
	if block.Body != "" {
		d.printf("%s\n", block.Body)
	}
}

// PrintMovieInfo prints a movie detail record
func (d *Display) PrintMovieInfo(info backend.MovieInfo) {
	d.printf("\n%s", d.assistant.Render(info.Title))
	if info.Year != "" {
		d.printf(" (%s)", info.Year)
	}
	d.printf("\n")
	for _, f := range []struct{ label, value string }{
		{"Rating", info.IMDBRating},
		{"Director", info.Director},
		{"Cast", info.Actors},
		{"Genre", info.Genre},
		{"Country", info.Country},
		{"Plot", info.Plot},
	} {
		if f.value == "" || f.value == "N/A" {
			continue
		}
		d.printf("  %s %s\n", d.dim.Render(fmt.Sprintf("%-9s", f.label)), f.value)
	}
}

// Cleanup ensures the display is in a good state before exit
func (d *Display) Cleanup() {
	d.StopSpinner()
}

func stamp(e transcript.Entry) string {
	if e.CreatedAt.IsZero() {
		return ""
	}
	return e.CreatedAt.Format("15:04")
}

// IsTerminal checks if f is a terminal
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of f, or fallback when it is not a
// terminal
func Width(f *os.File, fallback int) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
