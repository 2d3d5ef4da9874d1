// Package render turns answers into terminal output: query results as
// collapsible tables and answer text as markdown with movie references.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"moviegpt/internal/backend"
)

// Options controls how blocks are rendered
type Options struct {
	// Width is the available width in cells; 0 means unconstrained
	Width int
	// Color enables syntax highlighting and styled output
	Color bool
}

// Block is the rendered form of an answer's results
type Block struct {
	Count    int
	Expanded bool
	// Body is empty while collapsed
	Body string
}

// Empty reports whether there is nothing to show, not even a toggle
func (b Block) Empty() bool {
	return b.Count == 0
}

// Label is the text of the toggle control
func (b Block) Label() string {
	noun := "result"
	if b.Count != 1 {
		noun = "results"
	}
	if b.Expanded {
		return fmt.Sprintf("▾ hide %d query %s", b.Count, noun)
	}
	return fmt.Sprintf("▸ show %d query %s", b.Count, noun)
}

var (
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// Results renders results collapsed or expanded. Collapsed output carries
// only the count; nothing from the rows is rendered.
func Results(results []backend.QueryResult, expanded bool, opts Options) Block {
	b := Block{Count: len(results), Expanded: expanded}
	if !expanded || len(results) == 0 {
		return b
	}

	sections := make([]string, 0, len(results))
	for i, r := range results {
		sections = append(sections, result(i, len(results), r, opts))
	}
	b.Body = strings.Join(sections, "\n\n")
	return b
}

func result(i, n int, r backend.QueryResult, opts Options) string {
	var parts []string
	style := func(s lipgloss.Style, text string) string {
		if opts.Color {
			return s.Render(text)
		}
		return text
	}

	title := "Query"
	if n > 1 {
		title = fmt.Sprintf("Query %d", i+1)
	}

	if q := strings.TrimSpace(r.Query); q != "" {
		parts = append(parts, style(sectionStyle, title))
		if opts.Color {
			q = HighlightSQL(q)
		}
		parts = append(parts, indent(q, "  "))
	}

	if len(r.Rows) > 0 {
		parts = append(parts, style(sectionStyle, "Rows"))
		if headers, cells, ok := Table(r.Rows); ok {
			parts = append(parts, renderTable(headers, cells, opts))
		} else {
			parts = append(parts, indent(Dump(r.Rows), "  "))
		}
	}

	if r.Error != "" {
		parts = append(parts, style(errorStyle, "Error"))
		parts = append(parts, indent(r.Error, "  "))
	}

	return strings.Join(parts, "\n")
}

// Table converts rows into a table when they are a non-empty list whose
// first element is a record. Columns are the union of keys across all
// records in first-seen order; cells for missing keys are blank.
func Table(rows json.RawMessage) (headers []string, cells [][]string, ok bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(rows, &items); err != nil || len(items) == 0 {
		return nil, nil, false
	}
	if !isObject(items[0]) {
		return nil, nil, false
	}

	columns := orderedmap.New[string, int]()
	records := make([]*orderedmap.OrderedMap[string, json.RawMessage], len(items))
	for i, item := range items {
		record := orderedmap.New[string, json.RawMessage]()
		if isObject(item) {
			if err := json.Unmarshal(item, record); err != nil {
				return nil, nil, false
			}
		}
		for pair := record.Oldest(); pair != nil; pair = pair.Next() {
			if _, seen := columns.Get(pair.Key); !seen {
				columns.Set(pair.Key, columns.Len())
			}
		}
		records[i] = record
	}

	for pair := columns.Oldest(); pair != nil; pair = pair.Next() {
		headers = append(headers, pair.Key)
	}

	cells = make([][]string, len(records))
	for i, record := range records {
		row := make([]string, len(headers))
		for j, h := range headers {
			if v, present := record.Get(h); present {
				row[j] = Stringify(v)
			}
		}
		cells[i] = row
	}

	return headers, cells, true
}

// Stringify renders a JSON value as a cell: strings unquoted, null blank,
// everything else as compact JSON
func Stringify(v json.RawMessage) string {
	trimmed := bytes.TrimSpace(v)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}

// Dump pretty-prints any JSON value with two-space indentation
func Dump(v json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(v), "", "  "); err != nil {
		return string(v)
	}
	return buf.String()
}

func renderTable(headers []string, cells [][]string, opts Options) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(cells...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	if opts.Width > 0 {
		t = t.Width(opts.Width)
	}
	return t.Render()
}

// HighlightSQL colours a query for a 256-colour terminal. The query is
// returned unchanged if highlighting fails.
func HighlightSQL(query string) string {
	lexer := lexers.Get("sql")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, query)
	if err != nil {
		return query
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return query
	}
	return buf.String()
}

func isObject(v json.RawMessage) bool {
	trimmed := bytes.TrimSpace(v)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
