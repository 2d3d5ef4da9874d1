package conversation

import (
	tea "github.com/charmbracelet/bubbletea"

	"moviegpt/internal/backend"
)

// TokenMsg carries one streamed token. Epoch identifies the send it belongs
// to; tokens from a superseded send are dropped.
type TokenMsg struct {
	Epoch uint64
	Token string

	next tea.Cmd
}

// AnswerMsg is the final outcome of a send
type AnswerMsg struct {
	Epoch  uint64
	Answer backend.Answer
	Err    error
}

// ClearedMsg reports the result of asking the backend to drop its history
type ClearedMsg struct {
	Err error
}

// HealthMsg reports a backend liveness probe
type HealthMsg struct {
	Err error
}

// HistoryMsg carries the server-side history fetched at startup
type HistoryMsg struct {
	Items []backend.HistoryItem
	Err   error
}

// MovieInfoMsg carries a movie detail lookup
type MovieInfoMsg struct {
	ID   string
	Info backend.MovieInfo
	Err  error
}
