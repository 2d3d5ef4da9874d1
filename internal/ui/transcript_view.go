package ui

import (
	"fmt"
	"strings"

	"moviegpt/internal/conversation"
	"moviegpt/internal/render"
	"moviegpt/internal/transcript"
)

type controlKind int

const (
	controlToggle controlKind = iota
	controlRef
)

// control is an actionable line in the transcript: a results toggle or a
// movie reference
type control struct {
	kind    controlKind
	entryID string
	ref     render.Ref
	// line is the control's line within the viewport content
	line int
}

// key identifies the control across re-renders
func (c control) key() string {
	if c.kind == controlRef {
		return fmt.Sprintf("%s/ref/%s", c.entryID, c.ref.ID)
	}
	return c.entryID + "/toggle"
}

// entryCache holds the expensive parts of a rendered assistant entry. The
// markdown depends only on the width; the results body also on the toggle.
type entryCache struct {
	width    int
	markdown string
	refs     []render.Ref

	body         string
	bodyExpanded bool
	bodyValid    bool
}

// lines accumulates content while tracking the current line number
type lines struct {
	sb strings.Builder
	n  int
}

func (l *lines) add(s string) int {
	at := l.n
	if l.n > 0 {
		l.sb.WriteByte('\n')
	}
	l.sb.WriteString(s)
	l.n += strings.Count(s, "\n") + 1
	return at
}

func (l *lines) String() string {
	return l.sb.String()
}

// renderTranscript builds the viewport content and the controls in it
func (m *Model) renderTranscript() (string, []control) {
	width := max(m.viewport.Width-2, 20)
	var out lines
	var controls []control

	entries := m.ctrl.Store().All()
	if len(entries) == 0 && !m.ctrl.Busy() {
		out.add(timeStyle.Render("  Ask anything about the movie catalog, e.g. 评分最高的10部电影"))
	}

	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		seen[e.ID] = true
		if i > 0 {
			out.add("")
		}

		switch e.Role {
		case transcript.RoleUser:
			out.add(userLabelStyle.Render("You") + timeStyle.Render(" · "+e.CreatedAt.Format("15:04")))
			out.add(userTextStyle.Width(width).Render(e.Text))

		default:
			out.add(assistantLabelStyle.Render("MovieGPT") + timeStyle.Render(" · "+e.CreatedAt.Format("15:04")))
			c := m.entry(e, width)
			out.add(c.markdown)

			for _, ref := range c.refs {
				ctl := control{kind: controlRef, entryID: e.ID, ref: ref}
				ctl.line = out.add(m.controlLine(ctl, fmt.Sprintf("◆ [%d] %s", ref.N, ref.Title)))
				controls = append(controls, ctl)
			}

			if len(e.Results) > 0 {
				block := m.results(e, c, width)
				ctl := control{kind: controlToggle, entryID: e.ID}
				ctl.line = out.add(m.controlLine(ctl, block.Label()))
				controls = append(controls, ctl)
				if block.Body != "" {
					out.add(block.Body)
				}
			}
		}
	}

	if m.ctrl.Busy() {
		if len(entries) > 0 {
			out.add("")
		}
		out.add(assistantLabelStyle.Render("MovieGPT") + timeStyle.Render(" · thinking"))
		if pending := m.ctrl.Pending(); pending != "" {
			out.add(pendingStyle.Width(width).Render(pending))
		} else {
			out.add(pendingStyle.Render("…"))
		}
	}

	// Drop cached renders of entries that no longer exist
	for id := range m.cache {
		if !seen[id] {
			delete(m.cache, id)
			delete(m.expanded, id)
		}
	}

	return out.String(), controls
}

// entry returns the cached markdown render of an assistant entry
func (m *Model) entry(e transcript.Entry, width int) *entryCache {
	c, ok := m.cache[e.ID]
	if ok && c.width == width {
		return c
	}

	text := e.Text
	if text == conversation.Apology {
		c = &entryCache{width: width, markdown: pendingStyle.Render(text)}
		m.cache[e.ID] = c
		return c
	}

	doc := render.Answer(text, e.Results)
	c = &entryCache{
		width:    width,
		markdown: m.md.Render(doc.Markdown, width),
		refs:     doc.Refs,
	}
	m.cache[e.ID] = c
	return c
}

func (m *Model) results(e transcript.Entry, c *entryCache, width int) render.Block {
	expanded := m.expanded[e.ID]
	if !c.bodyValid || c.bodyExpanded != expanded {
		block := render.Results(e.Results, expanded, render.Options{Width: width - 2, Color: true})
		c.body = block.Body
		c.bodyExpanded = expanded
		c.bodyValid = true
	}
	return render.Block{Count: len(e.Results), Expanded: expanded, Body: c.body}
}

func (m *Model) controlLine(c control, label string) string {
	if m.focus == c.key() {
		return focusedStyle.Render(label)
	}
	return controlStyle.Render(label)
}
