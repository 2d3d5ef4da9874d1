package backend

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTable(t *testing.T) {
	records, err := ExtractTable(`<table border="1">
		<tr><th>电影名称</th><th>评分</th></tr>
		<tr><td>奥本海默</td><td><strong>8.6</strong></td></tr>
		<tr><td> 芭比 </td><td>7.9</td><td>extra</td></tr>
	</table>`)
	require.NoError(t, err)
	require.Len(t, records, 2)

	var keys []string
	for pair := records[0].Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	assert.Equal(t, []string{"电影名称", "评分"}, keys)

	v, _ := records[0].Get("评分")
	assert.Equal(t, "8.6", v)
	v, _ = records[1].Get("电影名称")
	assert.Equal(t, "芭比", v)
	v, _ = records[1].Get("col3")
	assert.Equal(t, "extra", v)
}

func TestExtractTableWithoutHeader(t *testing.T) {
	records, err := ExtractTable(`<table><tr><td>a</td><td>b</td></tr></table>`)
	require.NoError(t, err)
	require.Len(t, records, 1)

	out, err := json.Marshal(records)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"col1":"a","col2":"b"}]`, string(out))

	none, err := ExtractTable(`<p>no table here</p>`)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHTMLToText(t *testing.T) {
	text, err := HTMLToText(`<span style="color: #569CD6;">SELECT</span> title<br><span>FROM</span>   movies<script>alert(1)</script><p>second</p>`)
	require.NoError(t, err)
	assert.Equal(t, "SELECT title\nFROM movies\nsecond", text)
}

func TestLegacyResult(t *testing.T) {
	t.Run("structured data passes through", func(t *testing.T) {
		r, ok := legacyResult("SELECT 1", json.RawMessage(`[{"a":1}]`))
		require.True(t, ok)
		assert.Equal(t, "SELECT 1", r.Query)
		assert.JSONEq(t, `[{"a":1}]`, string(r.Rows))
	})

	t.Run("html text without table", func(t *testing.T) {
		r, ok := legacyResult("", json.RawMessage(`"<b>nothing</b> found"`))
		require.True(t, ok)
		assert.Empty(t, r.Query)
		assert.JSONEq(t, `"nothing found"`, string(r.Rows))
	})

	t.Run("empty", func(t *testing.T) {
		_, ok := legacyResult("  ", json.RawMessage(`null`))
		assert.False(t, ok)
		_, ok = legacyResult("", nil)
		assert.False(t, ok)
	})
}

func TestPayloadPrefersResults(t *testing.T) {
	p := payload{
		Text:    "ok",
		SQL:     "SELECT legacy",
		Results: []QueryResult{{Query: "SELECT new"}},
	}
	a := p.answer()
	require.Len(t, a.Results, 1)
	assert.Equal(t, "SELECT new", a.Results[0].Query)
}

func TestQueryResultAcceptsSQLKey(t *testing.T) {
	var r QueryResult
	require.NoError(t, json.Unmarshal([]byte(`{"sql":"SELECT 2","rows":null,"error":"timeout"}`), &r))
	assert.Equal(t, "SELECT 2", r.Query)
	assert.Nil(t, r.Rows)
	assert.Equal(t, "timeout", r.Error)
	assert.False(t, r.Empty())
	assert.True(t, QueryResult{}.Empty())
}
