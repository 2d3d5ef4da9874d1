package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"moviegpt/internal/clock"
)

// ErrEmptyMessage is returned when a blank message is sent
var ErrEmptyMessage = errors.New("message cannot be empty")

// TransportError is a network failure or a non-success HTTP status
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("%s: backend returned status %d: %s", e.Op, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("%s: backend returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Options configures a Client
type Options struct {
	BaseURL   string
	APIPrefix string
	Timeout   time.Duration

	// InfoRetries is the number of attempts for a movie detail lookup
	InfoRetries int
	// InfoBackoff is the delay before the second attempt; it doubles after
	InfoBackoff time.Duration

	// InfoCache keeps movie detail records; an in-memory cache is used
	// when nil
	InfoCache InfoCache

	Clock  clock.Clock
	Logger *slog.Logger
}

// InfoCache stores movie detail records between lookups
type InfoCache interface {
	Get(id string) (MovieInfo, bool)
	Put(id string, info MovieInfo) error
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string]MovieInfo
}

// NewMemoryCache creates an InfoCache that lives as long as the process
func NewMemoryCache() InfoCache {
	return &memoryCache{items: make(map[string]MovieInfo)}
}

func (m *memoryCache) Get(id string) (MovieInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.items[id]
	return info, ok
}

func (m *memoryCache) Put(id string, info MovieInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[id] = info
	return nil
}

// Client handles communication with the MovieGPT backend
type Client struct {
	baseURL         string
	apiPrefix       string
	httpClient      *http.Client
	streamingClient *http.Client
	infoRetries     int
	infoBackoff     time.Duration
	infoCache       InfoCache
	clock           clock.Clock
	logger          *slog.Logger
}

// NewClient creates a new backend client
func NewClient(opts Options) *Client {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.InfoRetries < 1 {
		opts.InfoRetries = 1
	}
	if opts.InfoCache == nil {
		opts.InfoCache = NewMemoryCache()
	}

	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		apiPrefix: "/" + strings.Trim(opts.APIPrefix, "/"),
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		// Streams stay open for as long as the answer takes; the caller's
		// context bounds them instead
		streamingClient: &http.Client{},
		infoRetries:     opts.InfoRetries,
		infoBackoff:     opts.InfoBackoff,
		infoCache:       opts.InfoCache,
		clock:           opts.Clock,
		logger:          opts.Logger,
	}
}

func (c *Client) apiURL(path string) string {
	prefix := c.apiPrefix
	if prefix == "/" {
		prefix = ""
	}
	return c.baseURL + prefix + path
}

// Chat sends a message and returns the complete, buffered answer
func (c *Client) Chat(ctx context.Context, message string) (Answer, error) {
	if strings.TrimSpace(message) == "" {
		return Answer{}, ErrEmptyMessage
	}

	resp, err := c.postJSON(ctx, c.httpClient, c.apiURL("/chat"), ChatRequest{Message: message})
	if err != nil {
		return Answer{}, &TransportError{Op: "chat", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Answer{}, statusError("chat", resp)
	}

	var p payload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Answer{}, &TransportError{Op: "chat", Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	return p.answer(), nil
}

// Clear drops the server-side conversation history
func (c *Client) Clear(ctx context.Context) error {
	resp, err := c.postJSON(ctx, c.httpClient, c.apiURL("/clear"), struct{}{})
	if err != nil {
		return &TransportError{Op: "clear", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("clear", resp)
	}
	return nil
}

// History returns the server-side conversation history
func (c *Client) History(ctx context.Context) ([]HistoryItem, error) {
	resp, err := c.get(ctx, c.apiURL("/history"))
	if err != nil {
		return nil, &TransportError{Op: "history", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("history", resp)
	}

	var result struct {
		History []HistoryItem `json:"history"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}

	return result.History, nil
}

// Health verifies that the backend is reachable
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.get(ctx, c.baseURL+"/health")
	if err != nil {
		return &TransportError{Op: "health", Err: fmt.Errorf("backend is unreachable at %s: %w", c.baseURL, err)}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return statusError("health", resp)
	}
	return nil
}

// MovieInfo fetches the detail record for a movie id. Failed attempts are
// retried with exponential backoff and successful lookups are cached.
func (c *Client) MovieInfo(ctx context.Context, id string) (MovieInfo, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return MovieInfo{}, errors.New("movie id cannot be empty")
	}

	if cached, ok := c.infoCache.Get(id); ok {
		return cached, nil
	}

	var lastErr error
	delay := c.infoBackoff
	for attempt := 0; attempt < c.infoRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying movie info", "id", id, "attempt", attempt+1, "error", lastErr)
			if err := c.clock.Sleep(ctx, delay); err != nil {
				return MovieInfo{}, err
			}
			delay *= 2
		}

		info, err := c.fetchMovieInfo(ctx, id)
		if err == nil {
			if err := c.infoCache.Put(id, info); err != nil {
				c.logger.Warn("failed to cache movie info", "id", id, "error", err)
			}
			return info, nil
		}
		lastErr = err
	}

	return MovieInfo{}, lastErr
}

func (c *Client) fetchMovieInfo(ctx context.Context, id string) (MovieInfo, error) {
	resp, err := c.get(ctx, c.apiURL("/info/"+url.PathEscape(id)))
	if err != nil {
		return MovieInfo{}, &TransportError{Op: "info", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return MovieInfo{}, statusError("info", resp)
	}

	// OMDb signals lookup failures in-band with Response "False"
	var result struct {
		MovieInfo
		Response string `json:"Response"`
		Error    string `json:"Error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return MovieInfo{}, fmt.Errorf("failed to parse movie info: %w", err)
	}
	if result.Response == "False" {
		if result.Error == "" {
			result.Error = "unknown error"
		}
		return MovieInfo{}, fmt.Errorf("movie info for %s: %s", id, result.Error)
	}

	return result.MovieInfo, nil
}

func (c *Client) postJSON(ctx context.Context, hc *http.Client, endpoint string, body any) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return hc.Do(httpReq)
}

func (c *Client) get(ctx context.Context, endpoint string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	return c.httpClient.Do(httpReq)
}

func statusError(op string, resp *http.Response) *TransportError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &TransportError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
