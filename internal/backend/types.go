package backend

import (
	"context"
	"encoding/json"
	"strings"
)

// Backend is the set of operations the conversation engine needs from the
// MovieGPT service. Client talks HTTP, Mock answers from canned data.
type Backend interface {
	Chat(ctx context.Context, message string) (Answer, error)
	ChatStream(ctx context.Context, message string, callbacks StreamCallbacks)
	Clear(ctx context.Context) error
	History(ctx context.Context) ([]HistoryItem, error)
	Health(ctx context.Context) error
	MovieInfo(ctx context.Context, id string) (MovieInfo, error)
}

// ChatRequest is the body of /chat and /chat/stream
type ChatRequest struct {
	Message string `json:"message"`
}

// QueryResult is one structured query issued by the backend and its outcome
type QueryResult struct {
	Query string          `json:"query,omitempty"`
	Rows  json.RawMessage `json:"rows,omitempty"`
	Error string          `json:"error,omitempty"`
}

// UnmarshalJSON accepts both "query" and the older "sql" key
func (q *QueryResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		Query string          `json:"query"`
		SQL   string          `json:"sql"`
		Rows  json.RawMessage `json:"rows"`
		Error string          `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	q.Query = raw.Query
	if q.Query == "" {
		q.Query = raw.SQL
	}
	q.Rows = nil
	if trimmed := strings.TrimSpace(string(raw.Rows)); trimmed != "" && trimmed != "null" {
		q.Rows = raw.Rows
	}
	q.Error = raw.Error
	return nil
}

// Empty reports whether the result carries nothing worth showing
func (q QueryResult) Empty() bool {
	return q.Query == "" && len(q.Rows) == 0 && q.Error == ""
}

// Answer is a complete assistant reply
type Answer struct {
	Text    string        `json:"text"`
	Results []QueryResult `json:"results,omitempty"`

	// Error is an application-level error reported by the backend
	Error string `json:"error,omitempty"`

	// Err is set when the transport failed; Text then holds a fallback
	Err error `json:"-"`
}

// Failed reports whether the answer carries a transport or backend error
func (a Answer) Failed() bool {
	return a.Err != nil || a.Error != ""
}

// StreamCallbacks receive the incremental parts of a streamed answer.
// OnToken is called zero or more times, strictly before the single OnComplete.
type StreamCallbacks struct {
	OnToken    func(token string)
	OnComplete func(answer Answer)
}

// HistoryItem is one entry of the server-side conversation history
type HistoryItem struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // "user" or "assistant"
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// MovieInfo is the detail record shown in the side panel
type MovieInfo struct {
	Title      string `json:"Title"`
	Year       string `json:"Year"`
	Director   string `json:"Director"`
	Actors     string `json:"Actors"`
	Genre      string `json:"Genre"`
	Plot       string `json:"Plot"`
	Country    string `json:"Country"`
	Poster     string `json:"Poster"`
	IMDBRating string `json:"imdbRating"`
	IMDBID     string `json:"imdbID"`
}

// payload is the wire shape shared by the /chat response and every
// stream frame. sql/data are the older single-result fields.
type payload struct {
	Token    string          `json:"token"`
	Complete bool            `json:"complete"`
	Text     string          `json:"text"`
	SQL      string          `json:"sql"`
	Data     json.RawMessage `json:"data"`
	Results  []QueryResult   `json:"results"`
	Error    string          `json:"error"`
}

// answer converts the payload into an Answer, folding legacy sql/data
// fields into Results when no results list was sent
func (p payload) answer() Answer {
	a := Answer{
		Text:  p.Text,
		Error: p.Error,
	}
	for _, r := range p.Results {
		if !r.Empty() {
			a.Results = append(a.Results, r)
		}
	}
	if len(a.Results) == 0 {
		if legacy, ok := legacyResult(p.SQL, p.Data); ok {
			a.Results = []QueryResult{legacy}
		}
	}
	return a
}
