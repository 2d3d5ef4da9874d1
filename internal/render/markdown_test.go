package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviegpt/internal/backend"
)

func TestClassify(t *testing.T) {
	cases := map[string]LinkKind{
		"movie:tt0111161":        KindEntityRef,
		"https://www.imdb.com/":  KindExternal,
		"HTTP://example.com":     KindExternal,
		"mailto:someone@host":    KindExternal,
		"javascript:alert(1)":    KindOther,
		"/relative/path":         KindOther,
		"movie:":                 KindOther,
		"file:///etc/passwd":     KindOther,
	}
	for dest, want := range cases {
		assert.Equal(t, want, Classify(dest), dest)
	}
	assert.Equal(t, "entity-reference", KindEntityRef.String())
}

func TestPrepareEntityReferences(t *testing.T) {
	doc := Prepare("See [Heat](movie:tt0113277) and [Alien](movie:tt0078748), then [Heat](movie:tt0113277) again.")

	assert.Equal(t, `See **Heat** \[1\] and **Alien** \[2\], then **Heat** \[1\] again.`, doc.Markdown)
	assert.Equal(t, []Ref{
		{N: 1, ID: "tt0113277", Title: "Heat"},
		{N: 2, ID: "tt0078748", Title: "Alien"},
	}, doc.Refs)
	assert.NotContains(t, doc.Markdown, "movie:")
}

func TestPrepareDispatchesByKind(t *testing.T) {
	src := "Read [the docs](https://example.com/a_(b)) or [run this](javascript:alert(1)) and [*bold* label](docs/x.md)."
	doc := Prepare(src)

	assert.Equal(t, "Read [the docs](https://example.com/a_(b)) or run this and *bold* label.", doc.Markdown)
	assert.Empty(t, doc.Refs)
}

func TestPrepareEscapedLabel(t *testing.T) {
	doc := Prepare(`Try [Se7en \[Director's Cut\]](movie:x1).`)

	require.Len(t, doc.Refs, 1)
	assert.Equal(t, "Se7en [Director's Cut]", doc.Refs[0].Title)
	assert.Equal(t, `Try **Se7en \[Director's Cut\]** \[1\].`, doc.Markdown)
}

func TestPrepareLeavesPlainTextAlone(t *testing.T) {
	for _, src := range []string{
		"",
		"no links here",
		"# Heading\n\n- item [not a link]\n- `code [x](movie:1)`",
		"```\n[x](movie:1)\n```",
	} {
		doc := Prepare(src)
		assert.Equal(t, src, doc.Markdown)
		assert.Empty(t, doc.Refs)
	}
}

func TestAnswerLinksMoviesFromResults(t *testing.T) {
	results := []backend.QueryResult{{
		Query: "SELECT",
		Rows:  json.RawMessage(`[{"imdb_id":"tt0068646","title":"教父"},{"imdb_id":"tt0071562","title":"教父2"}]`),
	}}
	doc := Answer("推荐 教父 和 教父2。", results)

	assert.Equal(t, `推荐 **教父** \[1\] 和 **教父2** \[2\]。`, doc.Markdown)
	require.Len(t, doc.Refs, 2)
	assert.Equal(t, "tt0071562", doc.Refs[1].ID)
}

func TestMarkdownRender(t *testing.T) {
	md := NewMarkdown("notty")
	out := md.Render("Hello **world**\n\n- one\n- two", 40)

	assert.Contains(t, out, "Hello")
	assert.Contains(t, out, "world")
	assert.Contains(t, out, "one")
	assert.False(t, strings.HasPrefix(out, "\n"))

	// Width changes rebuild the renderer
	assert.Contains(t, md.Render("again", 20), "again")
}

func inceptionResults() []backend.QueryResult {
	return []backend.QueryResult{{
		Query: "SELECT imdb_id, title FROM movies",
		Rows:  json.RawMessage(`[{"imdb_id":"tt1375666","title":"Inception"}]`),
	}}
}

func TestAnswerSkipsCode(t *testing.T) {
	src := "SQL:\n\n```sql\nSELECT * FROM movies WHERE title = 'Inception'\n```\n"
	doc := Answer(src, inceptionResults())

	assert.Equal(t, src, doc.Markdown)
	assert.Empty(t, doc.Refs)
	assert.NotContains(t, NewMarkdown("notty").Render(doc.Markdown, 80), "movie:")

	doc = Answer("Run `title = 'Inception'` to find Inception.", inceptionResults())
	assert.Equal(t, "Run `title = 'Inception'` to find **Inception** \\[1\\].", doc.Markdown)
	require.Len(t, doc.Refs, 1)
	assert.Equal(t, "tt1375666", doc.Refs[0].ID)
}

func TestAnswerKeepsExistingLinkLabels(t *testing.T) {
	src := "Watch the [Inception trailer](https://example.com/inception)."
	doc := Answer(src, inceptionResults())

	assert.Equal(t, src, doc.Markdown)
	assert.Empty(t, doc.Refs)
}

func TestAnswerInsideEmphasis(t *testing.T) {
	cases := map[string]string{
		"I like **Inception**.":     `I like **Inception \[1\]**.`,
		"I like *Inception*.":       `I like *Inception \[1\]*.`,
		"Watch ***Inception*** now": `Watch ***Inception \[1\]*** now`,
	}
	md := NewMarkdown("notty")
	for src, want := range cases {
		doc := Answer(src, inceptionResults())
		assert.Equal(t, want, doc.Markdown, src)
		require.Len(t, doc.Refs, 1, src)
		assert.Equal(t, "Inception", doc.Refs[0].Title)

		out := md.Render(doc.Markdown, 80)
		assert.Contains(t, out, "Inception [1]", src)
		assert.NotContains(t, out, "***Inception*", src)
		assert.NotContains(t, out, "****", src)
	}
}

func TestPrepareEmphasizedLabel(t *testing.T) {
	doc := Prepare("See [**Heat**](movie:tt0113277).")

	assert.Equal(t, `See **Heat** \[1\].`, doc.Markdown)
	require.Len(t, doc.Refs, 1)
	assert.Equal(t, "Heat", doc.Refs[0].Title)
}
