package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviegpt/internal/clock"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *clock.Fake) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	fake := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewClient(Options{
		BaseURL:     srv.URL + "/",
		APIPrefix:   "api",
		Timeout:     5 * time.Second,
		InfoRetries: 3,
		InfoBackoff: time.Second,
		Clock:       fake,
		Logger:      quietLogger(),
	})
	return c, fake
}

func TestClientChat(t *testing.T) {
	var got ChatRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		fmt.Fprint(w, `{"text":"ok","results":[{"query":"SELECT 1","rows":[{"a":1}]},{}]}`)
	})
	c, _ := newTestClient(t, mux)

	answer, err := c.Chat(context.Background(), "评分最高的10部电影")
	require.NoError(t, err)

	assert.Equal(t, "评分最高的10部电影", got.Message)
	assert.Equal(t, "ok", answer.Text)
	require.Len(t, answer.Results, 1, "empty results are dropped")
	assert.Equal(t, "SELECT 1", answer.Results[0].Query)
	assert.False(t, answer.Failed())
}

func TestClientChatRejectsBlank(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	_, err := c.Chat(context.Background(), "  \n\t")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Zero(t, calls.Load())
}

func TestClientChatStatusError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.Chat(context.Background(), "hello")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusInternalServerError, te.StatusCode)
	assert.Equal(t, "boom", te.Body)
	assert.Contains(t, err.Error(), "status 500")
}

func TestClientChatNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewClient(Options{BaseURL: srv.URL, APIPrefix: "/api", Logger: quietLogger()})

	_, err := c.Chat(context.Background(), "hello")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.StatusCode)
	assert.Error(t, te.Unwrap())
}

func TestClientChatLegacyFields(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"text":"ok","sql":"SELECT title FROM movies","data":[{"title":"Heat"}]}`)
	}))

	answer, err := c.Chat(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, answer.Results, 1)
	assert.Equal(t, "SELECT title FROM movies", answer.Results[0].Query)
	assert.JSONEq(t, `[{"title":"Heat"}]`, string(answer.Results[0].Rows))
}

type streamRecorder struct {
	tokens    []string
	completes []Answer
	order     []string
}

func (s *streamRecorder) callbacks() StreamCallbacks {
	return StreamCallbacks{
		OnToken: func(token string) {
			s.tokens = append(s.tokens, token)
			s.order = append(s.order, "token")
		},
		OnComplete: func(a Answer) {
			s.completes = append(s.completes, a)
			s.order = append(s.order, "complete")
		},
	}
}

func TestClientChatStream(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/stream", r.URL.Path)
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		parts := []string{
			"data: {\"tok", "en\":\"Hello\"}\n",
			"data: {\"token\":\" world\"}\n\n",
			"data: {\"complete\":true,\"text\":\"Hello world!\"}\n",
			"data: [DONE]\n",
		}
		for _, p := range parts {
			fmt.Fprint(w, p)
			flusher.Flush()
		}
	}))

	rec := &streamRecorder{}
	c.ChatStream(context.Background(), "hi", rec.callbacks())

	assert.Equal(t, []string{"Hello", " world"}, rec.tokens)
	require.Len(t, rec.completes, 1)
	assert.Equal(t, "Hello world!", rec.completes[0].Text)
	assert.Equal(t, []string{"token", "token", "complete"}, rec.order)
}

func TestClientChatStreamClosedWithoutCompletion(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"token\":\"cut\"}\n")
	}))

	rec := &streamRecorder{}
	c.ChatStream(context.Background(), "hi", rec.callbacks())

	assert.Equal(t, []string{"cut"}, rec.tokens)
	require.Len(t, rec.completes, 1)
	assert.Empty(t, rec.completes[0].Text)
	assert.NoError(t, rec.completes[0].Err)
}

func TestClientChatStreamFailures(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		rec := &streamRecorder{}
		c.ChatStream(context.Background(), "hi", rec.callbacks())

		require.Len(t, rec.completes, 1)
		var te *TransportError
		require.ErrorAs(t, rec.completes[0].Err, &te)
		assert.Equal(t, http.StatusBadGateway, te.StatusCode)
		assert.Empty(t, rec.tokens)
	})

	t.Run("blank", func(t *testing.T) {
		c, _ := newTestClient(t, http.NotFoundHandler())
		rec := &streamRecorder{}
		c.ChatStream(context.Background(), " ", rec.callbacks())

		require.Len(t, rec.completes, 1)
		assert.ErrorIs(t, rec.completes[0].Err, ErrEmptyMessage)
	})

	t.Run("cancelled", func(t *testing.T) {
		c, _ := newTestClient(t, http.NotFoundHandler())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		rec := &streamRecorder{}
		c.ChatStream(ctx, "hi", rec.callbacks())

		require.Len(t, rec.completes, 1)
		assert.ErrorIs(t, rec.completes[0].Err, context.Canceled)
	})

	t.Run("backend error frame", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "data: {\"token\":\"a\"}\ndata: {\"error\":\"db down\"}\ndata: {\"complete\":true,\"text\":\"x\"}\n")
		}))
		rec := &streamRecorder{}
		c.ChatStream(context.Background(), "hi", rec.callbacks())

		require.Len(t, rec.completes, 1)
		assert.Equal(t, "db down", rec.completes[0].Error)
		assert.Equal(t, []string{"token", "complete"}, rec.order)
	})
}

type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestReadChunks(t *testing.T) {
	var got []string
	err := ReadChunks(strings.NewReader("abc"), func(chunk []byte) bool {
		got = append(got, string(chunk))
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, got)

	cause := errors.New("reset")
	err = ReadChunks(&failingReader{data: []byte("x"), err: cause}, func([]byte) bool { return true })
	assert.ErrorIs(t, err, cause)

	calls := 0
	err = ReadChunks(&failingReader{data: []byte("x"), err: cause}, func([]byte) bool {
		calls++
		return false
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestClientClearAndHealth(t *testing.T) {
	var cleared atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/clear", func(w http.ResponseWriter, r *http.Request) {
		cleared.Store(true)
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"healthy"}`)
	})
	c, _ := newTestClient(t, mux)

	require.NoError(t, c.Clear(context.Background()))
	assert.True(t, cleared.Load())
	require.NoError(t, c.Health(context.Background()))

	down, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	assert.Error(t, down.Clear(context.Background()))
	assert.Error(t, down.Health(context.Background()))
}

func TestClientHistory(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history", r.URL.Path)
		fmt.Fprint(w, `{"history":[{"id":"1","type":"user","text":"hi","timestamp":1700000000000},{"id":"2","type":"assistant","text":"hello","timestamp":1700000001000}]}`)
	}))

	items, err := c.History(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "user", items[0].Type)
	assert.Equal(t, "hello", items[1].Text)
	assert.Equal(t, int64(1700000001000), items[1].Timestamp)
}

func TestClientMovieInfoRetriesAndCaches(t *testing.T) {
	var calls atomic.Int32
	c, fake := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/info/tt1375666", r.URL.Path)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"Title":"Inception","Year":"2010","imdbRating":"8.8","imdbID":"tt1375666","Response":"True"}`)
	}))

	info, err := c.MovieInfo(context.Background(), "tt1375666")
	require.NoError(t, err)
	assert.Equal(t, "Inception", info.Title)
	assert.Equal(t, "8.8", info.IMDBRating)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, fake.Slept())

	again, err := c.MovieInfo(context.Background(), "tt1375666")
	require.NoError(t, err)
	assert.Equal(t, info, again)
	assert.Equal(t, int32(3), calls.Load(), "second lookup is served from cache")
}

func TestClientMovieInfoGivesUp(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"Response":"False","Error":"Incorrect IMDb ID."}`)
	}))

	_, err := c.MovieInfo(context.Background(), "tt0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect IMDb ID.")
	assert.Equal(t, int32(3), calls.Load())

	_, err = c.MovieInfo(context.Background(), " ")
	assert.Error(t, err)
}
