package render

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"moviegpt/internal/backend"
	"moviegpt/internal/entity"
)

// LinkKind classifies a markdown link by its destination
type LinkKind int

const (
	// KindEntityRef is a movie reference; it becomes a numbered control and
	// is never opened as a URL
	KindEntityRef LinkKind = iota
	// KindExternal is a web or mail link left to the markdown renderer
	KindExternal
	// KindOther is any other destination; only its label is kept
	KindOther
)

func (k LinkKind) String() string {
	switch k {
	case KindEntityRef:
		return "entity-reference"
	case KindExternal:
		return "external-link"
	case KindOther:
		return "other"
	}
	return fmt.Sprintf("LinkKind(%d)", int(k))
}

// Classify decides how a link destination is rendered
func Classify(dest string) LinkKind {
	if _, ok := entity.ParseReference(dest); ok {
		return KindEntityRef
	}
	lower := strings.ToLower(dest)
	for _, scheme := range []string{"http://", "https://", "mailto:"} {
		if strings.HasPrefix(lower, scheme) {
			return KindExternal
		}
	}
	return KindOther
}

// Ref is an actionable movie reference in a rendered answer
type Ref struct {
	// N is the 1-based number shown next to the title
	N     int
	ID    string
	Title string
}

// Document is answer markdown with entity references replaced by numbered
// markers and the references collected in order of appearance
type Document struct {
	Markdown string
	Refs     []Ref
}

// Answer links the movies found in results into the prose of text and
// prepares it for rendering
func Answer(text string, results []backend.QueryResult) Document {
	return Prepare(linkProse(text, entity.NewLinker(entity.Extract(results))))
}

// linkProse applies l to plain text only. Code, raw HTML and the labels of
// links already in src are left as written.
func linkProse(src string, l *entity.Linker) string {
	if l.Empty() {
		return src
	}
	source := []byte(src)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	// Adjacent text nodes are merged so a title split by the inline parser
	// still matches as a whole
	var runs []text.Segment
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.CodeSpan, *ast.Link, *ast.AutoLink, *ast.RawHTML, *ast.Image:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			seg := n.Segment
			if seg.IsEmpty() {
				break
			}
			if k := len(runs) - 1; k >= 0 && runs[k].Stop == seg.Start {
				runs[k].Stop = seg.Stop
			} else {
				runs = append(runs, seg)
			}
		}
		return ast.WalkContinue, nil
	})

	var (
		out    strings.Builder
		cursor int
	)
	for _, r := range runs {
		if r.Start < cursor {
			continue
		}
		out.Write(source[cursor:r.Start])
		out.WriteString(l.Link(string(source[r.Start:r.Stop])))
		cursor = r.Stop
	}
	out.Write(source[cursor:])
	return out.String()
}

type linkSpan struct {
	start, end           int // whole link source
	labelStart, labelEnd int
	kind                 LinkKind
	id                   string
	// emphasized is set when emphasis already surrounds or fills the label
	emphasized bool
}

// Prepare dispatches every link in src by kind. Entity references become a
// bold title followed by its number, or the plain title when emphasis is
// already present. Other non-web links collapse to their label, and
// external links are left untouched.
func Prepare(src string) Document {
	source := []byte(src)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var spans []linkSpan
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		link, ok := n.(*ast.Link)
		if !ok {
			return ast.WalkContinue, nil
		}

		dest := string(link.Destination)
		span, found := locate(source, link)
		if !found {
			return ast.WalkSkipChildren, nil
		}
		span.kind = Classify(dest)
		if span.kind == KindEntityRef {
			span.id, _ = entity.ParseReference(dest)
			span.emphasized = hasEmphasis(link)
		}
		spans = append(spans, span)
		return ast.WalkSkipChildren, nil
	})

	var (
		out    strings.Builder
		refs   []Ref
		byID   = make(map[string]int)
		cursor int
	)
	for _, s := range spans {
		if s.start < cursor {
			continue
		}
		out.Write(source[cursor:s.start])
		label := string(source[s.labelStart:s.labelEnd])

		switch s.kind {
		case KindEntityRef:
			n, seen := byID[s.id]
			if !seen {
				n = len(refs) + 1
				byID[s.id] = n
				refs = append(refs, Ref{N: n, ID: s.id, Title: unescapeLabel(strings.Trim(label, "*_"))})
			}
			if s.emphasized {
				fmt.Fprintf(&out, "%s \\[%d\\]", label, n)
			} else {
				fmt.Fprintf(&out, "**%s** \\[%d\\]", label, n)
			}
		case KindExternal:
			out.Write(source[s.start:s.end])
		case KindOther:
			out.WriteString(label)
		}
		cursor = s.end
	}
	out.Write(source[cursor:])

	return Document{Markdown: out.String(), Refs: refs}
}

// hasEmphasis reports whether link sits inside emphasis or its label
// carries emphasis of its own
func hasEmphasis(link *ast.Link) bool {
	for p := link.Parent(); p != nil; p = p.Parent() {
		if _, ok := p.(*ast.Emphasis); ok {
			return true
		}
	}
	found := false
	_ = ast.Walk(link, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if _, ok := n.(*ast.Emphasis); ok && entering {
			found = true
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return found
}

// locate finds the source span of an inline link from its label text
// segments. Links without label text are not located.
func locate(source []byte, link *ast.Link) (linkSpan, bool) {
	start, end := -1, -1
	_ = ast.Walk(link, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			if start < 0 || t.Segment.Start < start {
				start = t.Segment.Start
			}
			if t.Segment.Stop > end {
				end = t.Segment.Stop
			}
		}
		return ast.WalkContinue, nil
	})
	if start < 0 {
		return linkSpan{}, false
	}

	open := start - 1
	for open >= 0 && !(source[open] == '[' && !escaped(source, open)) {
		open--
	}
	if open < 0 {
		return linkSpan{}, false
	}

	mid := strings.Index(string(source[end:]), "](")
	if mid < 0 {
		return linkSpan{}, false
	}
	labelEnd := end + mid
	// Only closing emphasis markup or escapes may sit between the last
	// label text and "]("
	for i := end; i < labelEnd; i++ {
		switch source[i] {
		case '*', '_', '`', '~':
		case '\\':
			i++
		default:
			return linkSpan{}, false
		}
	}

	depth := 0
	for i := labelEnd + 1; i < len(source); i++ {
		switch source[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return linkSpan{start: open, end: i + 1, labelStart: open + 1, labelEnd: labelEnd}, true
			}
		}
	}
	return linkSpan{}, false
}

func escaped(source []byte, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && source[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

func unescapeLabel(label string) string {
	return strings.NewReplacer(`\\`, `\`, `\[`, "[", `\]`, "]").Replace(label)
}

// Markdown renders prepared answer markdown for the terminal
type Markdown struct {
	style string

	mu       sync.Mutex
	width    int
	renderer *glamour.TermRenderer
}

// NewMarkdown creates a renderer. style is a glamour standard style name
// such as "dark", "light" or "notty"; "auto" detects the terminal background.
func NewMarkdown(style string) *Markdown {
	if style == "" {
		style = "dark"
	}
	return &Markdown{style: style}
}

// Render renders markdown wrapped to width. On failure the source is
// returned unchanged.
func (m *Markdown) Render(markdown string, width int) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.renderer == nil || width != m.width {
		styleOpt := glamour.WithStandardStyle(m.style)
		if m.style == "auto" {
			styleOpt = glamour.WithAutoStyle()
		}
		opts := []glamour.TermRendererOption{styleOpt, glamour.WithEmoji()}
		if width > 0 {
			opts = append(opts, glamour.WithWordWrap(width))
		}
		r, err := glamour.NewTermRenderer(opts...)
		if err != nil {
			return markdown
		}
		m.renderer = r
		m.width = width
	}

	out, err := m.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.Trim(out, "\n")
}
