// Package entity recognises movie mentions in answer text and turns them into
// inline references that the renderer can make actionable.
package entity

import (
	"encoding/json"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"moviegpt/internal/backend"
)

// Scheme is the reserved link scheme for entity references
const Scheme = "movie:"

// Entity is a recognised movie
type Entity struct {
	ID    string
	Title string
}

var (
	titleKeys = []string{"title", "primaryTitle", "primary_title", "original_title", "Title"}
	idKeys    = []string{"imdb_id", "tconst", "imdbID", "movie_id", "id"}
)

// Extract collects entities from every row-set of results. Rows without
// both a title and an id are skipped. Entities are unique by id and keep
// the order in which they were first seen.
func Extract(results []backend.QueryResult) []Entity {
	var entities []Entity
	seen := make(map[string]bool)

	for _, r := range results {
		var rows []map[string]any
		if len(r.Rows) == 0 || json.Unmarshal(r.Rows, &rows) != nil {
			continue
		}
		for _, row := range rows {
			title := field(row, titleKeys)
			id := field(row, idKeys)
			if title == "" || id == "" || seen[id] {
				continue
			}
			seen[id] = true
			entities = append(entities, Entity{ID: id, Title: title})
		}
	}

	return entities
}

func field(row map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := row[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// Link rewrites every literal, case-sensitive occurrence of an entity title
// in text into a reference of the form [Title](movie:ID).
//
// Matching is a single left-to-right pass over text. At any position the
// longest matching title wins, and titles of equal length keep the order
// of entities. Matches never overlap, so no region is rewritten twice.
func Link(text string, entities []Entity) string {
	return NewLinker(entities).Link(text)
}

// Linker holds the compiled title matcher for a set of entities so that
// many text fragments can be linked against the same answer
type Linker struct {
	re      *regexp.Regexp
	byTitle map[string]Entity
}

// NewLinker compiles the titles of entities
func NewLinker(entities []Entity) *Linker {
	re, byTitle := matcher(entities)
	return &Linker{re: re, byTitle: byTitle}
}

// Empty reports whether there is no title to match
func (l *Linker) Empty() bool {
	return l.re == nil
}

// Link rewrites title occurrences in text as Link does
func (l *Linker) Link(text string) string {
	if l.re == nil {
		return text
	}
	return l.re.ReplaceAllStringFunc(text, func(title string) string {
		return Reference(l.byTitle[title])
	})
}

// Reference formats a single entity reference
func Reference(e Entity) string {
	label := strings.NewReplacer(`\`, `\\`, "[", `\[`, "]", `\]`).Replace(e.Title)
	return "[" + label + "](" + Scheme + url.PathEscape(e.ID) + ")"
}

// ParseReference extracts the entity id from a link destination. ok is false
// for anything that is not an entity reference.
func ParseReference(dest string) (id string, ok bool) {
	rest, found := strings.CutPrefix(dest, Scheme)
	if !found || rest == "" {
		return "", false
	}
	id, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return id, true
}

// matcher builds one alternation of all titles, longest first. Go's regexp
// picks the leftmost match and, among those, the first alternative, so the
// ordering yields the longest title at each position.
func matcher(entities []Entity) (*regexp.Regexp, map[string]Entity) {
	byTitle := make(map[string]Entity)
	var titles []string
	for _, e := range entities {
		if e.Title == "" {
			continue
		}
		if _, dup := byTitle[e.Title]; dup {
			continue
		}
		byTitle[e.Title] = e
		titles = append(titles, e.Title)
	}
	if len(titles) == 0 {
		return nil, nil
	}

	sort.SliceStable(titles, func(i, j int) bool {
		return len(titles[i]) > len(titles[j])
	})

	quoted := make([]string, len(titles))
	for i, t := range titles {
		quoted[i] = QuoteLiteral(t)
	}
	return regexp.MustCompile(strings.Join(quoted, "|")), byTitle
}

const metachars = `\.+*?()|[]{}^$`

// QuoteLiteral escapes every regular expression metacharacter in s so the
// result matches s literally
func QuoteLiteral(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(metachars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
