package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"moviegpt/internal/backend"
	"moviegpt/internal/conversation"
)

// panel is the movie detail side panel opened from an entity reference
type panel struct {
	open    bool
	id      string
	title   string
	loading bool
	info    backend.MovieInfo
	err     error
}

// resolve applies a lookup result. Results for a movie that is no longer
// shown are dropped.
func (p *panel) resolve(msg conversation.MovieInfoMsg) {
	if !p.open || msg.ID != p.id {
		return
	}
	p.loading = false
	p.info = msg.Info
	p.err = msg.Err
}

func (p panel) view(width, height int) string {
	inner := max(width-4, 10)
	title := p.title
	if p.info.Title != "" {
		title = p.info.Title
	}

	var b strings.Builder
	b.WriteString(panelTitleStyle.Width(inner).Render(title))
	b.WriteString("\n\n")

	switch {
	case p.loading:
		b.WriteString(panelLabelStyle.Render("Loading details…"))
	case p.err != nil:
		b.WriteString(offlineStyle.Width(inner).Render("Could not load details for " + p.id + "."))
	default:
		for _, f := range []struct{ label, value string }{
			{"Year", p.info.Year},
			{"Rating", p.info.IMDBRating},
			{"Director", p.info.Director},
			{"Cast", p.info.Actors},
			{"Genre", p.info.Genre},
			{"Country", p.info.Country},
		} {
			if f.value == "" || f.value == "N/A" {
				continue
			}
			b.WriteString(panelLabelStyle.Render(f.label))
			b.WriteString("\n")
			b.WriteString(lipgloss.NewStyle().Width(inner).Render(f.value))
			b.WriteString("\n")
		}
		if p.info.Plot != "" && p.info.Plot != "N/A" {
			b.WriteString("\n")
			b.WriteString(lipgloss.NewStyle().Width(inner).Render(p.info.Plot))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(panelLabelStyle.Render("imdb.com/title/" + p.id))
	}

	return panelStyle.
		Width(width - 2).
		Height(max(height-2, 1)).
		MaxHeight(height).
		Render(b.String())
}
