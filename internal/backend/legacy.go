package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// legacyResult builds a QueryResult from the older sql/data response fields.
// Both may carry HTML markup meant for a browser; it is reduced to text and
// an HTML table becomes a list of records keyed by its header row.
func legacyResult(sql string, data json.RawMessage) (QueryResult, bool) {
	var result QueryResult

	if strings.TrimSpace(sql) != "" {
		result.Query = sql
		if looksLikeHTML(sql) {
			if text, err := HTMLToText(sql); err == nil {
				result.Query = text
			}
		}
	}

	rows, err := legacyRows(data)
	if err == nil {
		result.Rows = rows
	}

	return result, !result.Empty()
}

// legacyRows normalises the data field into a rows payload
func legacyRows(data json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Already structured JSON (array or object)
		return data, nil
	}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	if looksLikeHTML(s) {
		records, err := ExtractTable(s)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			return json.Marshal(records)
		}
		text, err := HTMLToText(s)
		if err != nil {
			return nil, err
		}
		s = text
	}

	return json.Marshal(s)
}

// ExtractTable parses the first <table> in the fragment into ordered
// records. The first row supplies column names when it consists of <th>
// cells; otherwise columns are named col1, col2, ...
func ExtractTable(fragment string) ([]*orderedmap.OrderedMap[string, any], error) {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	table := findElement(doc, atom.Table)
	if table == nil {
		return nil, nil
	}

	var rows [][]*html.Node
	collectRows(table, &rows)
	if len(rows) == 0 {
		return nil, nil
	}

	var headers []string
	if allHeaderCells(rows[0]) {
		for _, cell := range rows[0] {
			headers = append(headers, cleanText(getNodeText(cell)))
		}
		rows = rows[1:]
	}

	records := make([]*orderedmap.OrderedMap[string, any], 0, len(rows))
	for _, row := range rows {
		record := orderedmap.New[string, any]()
		for i, cell := range row {
			record.Set(columnName(headers, i), cleanText(getNodeText(cell)))
		}
		records = append(records, record)
	}

	return records, nil
}

// HTMLToText strips markup, turning <br> and block boundaries into newlines
func HTMLToText(fragment string) (string, error) {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var sb strings.Builder
	writeText(&sb, doc)

	lines := strings.Split(sb.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = cleanText(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), nil
}

func writeText(sb *strings.Builder, n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style:
			return
		case atom.Br:
			sb.WriteString("\n")
			return
		case atom.P, atom.Div, atom.Tr, atom.Li, atom.Pre:
			sb.WriteString("\n")
		}
	}

	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(sb, c)
	}

	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.P, atom.Div, atom.Tr, atom.Li, atom.Pre:
			sb.WriteString("\n")
		case atom.Td, atom.Th:
			sb.WriteString(" ")
		}
	}
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// collectRows gathers the cells of every <tr> below n, skipping nested tables
func collectRows(n *html.Node, rows *[][]*html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.Tr:
			var cells []*html.Node
			for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
				if cell.Type == html.ElementNode && (cell.DataAtom == atom.Td || cell.DataAtom == atom.Th) {
					cells = append(cells, cell)
				}
			}
			if len(cells) > 0 {
				*rows = append(*rows, cells)
			}
		case atom.Table:
		default:
			collectRows(c, rows)
		}
	}
}

func allHeaderCells(cells []*html.Node) bool {
	for _, cell := range cells {
		if cell.DataAtom != atom.Th {
			return false
		}
	}
	return true
}

func columnName(headers []string, i int) string {
	if i < len(headers) && headers[i] != "" {
		return headers[i]
	}
	return fmt.Sprintf("col%d", i+1)
}

// getNodeText extracts all text from a node and its children
func getNodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}

	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		text.WriteString(getNodeText(c))
	}

	return text.String()
}

// cleanText collapses runs of whitespace
func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func looksLikeHTML(s string) bool {
	i := strings.IndexByte(s, '<')
	return i >= 0 && strings.IndexByte(s[i:], '>') > 0
}
