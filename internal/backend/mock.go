package backend

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"moviegpt/internal/clock"
)

// Mock is an offline Backend that answers from canned movie data with
// simulated latency. It is selected once at startup by configuration.
type Mock struct {
	clock clock.Clock

	mu   sync.Mutex
	rand *rand.Rand

	// Latency is the base delay before a buffered answer
	Latency time.Duration
	// Jitter is the maximum random delay added to Latency
	Jitter time.Duration
	// TokenDelay is the pause between streamed tokens
	TokenDelay time.Duration
}

// NewMock creates a mock backend. seed makes answer selection repeatable.
func NewMock(clk clock.Clock, seed uint64) *Mock {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Mock{
		clock:      clk,
		rand:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		Latency:    800 * time.Millisecond,
		Jitter:     1200 * time.Millisecond,
		TokenDelay: 100 * time.Millisecond,
	}
}

var mockPrefixes = []string{
	"根据您的查询，我找到了以下结果：",
	"以下是查询结果，希望对您有帮助：",
	"根据数据库搜索，为您推荐：",
	"查询完成，找到了相关的电影信息：",
}

var mockAnswers = []payload{
	{
		Text: "以下是评分最高的几部电影：肖申克的救赎、教父、教父2 和 黑暗骑士，这些都是影史经典之作。",
		Results: []QueryResult{{
			Query: "SELECT imdb_id, title, release_year, rating FROM movies ORDER BY rating DESC LIMIT 10",
			Rows: json.RawMessage(`[
				{"imdb_id": "tt0111161", "title": "肖申克的救赎", "release_year": 1994, "rating": 9.3},
				{"imdb_id": "tt0068646", "title": "教父", "release_year": 1972, "rating": 9.2},
				{"imdb_id": "tt0071562", "title": "教父2", "release_year": 1974, "rating": 9.0},
				{"imdb_id": "tt0468569", "title": "黑暗骑士", "release_year": 2008, "rating": 9.0}
			]`),
		}},
	},
	{
		Text: "克里斯托弗·诺兰以复杂的叙事结构著称，代表作包括 盗梦空间、星际穿越、敦刻尔克 和 信条。",
		Results: []QueryResult{{
			Query: "SELECT imdb_id, title, release_year, rating FROM movies WHERE director = 'Christopher Nolan' ORDER BY release_year DESC",
			Rows: json.RawMessage(`[
				{"imdb_id": "tt6723592", "title": "信条", "release_year": 2020, "rating": 7.8},
				{"imdb_id": "tt5013056", "title": "敦刻尔克", "release_year": 2017, "rating": 8.5},
				{"imdb_id": "tt0816692", "title": "星际穿越", "release_year": 2014, "rating": 8.7},
				{"imdb_id": "tt1375666", "title": "盗梦空间", "release_year": 2010, "rating": 8.8}
			]`),
		}},
	},
	{
		Text: "2023年是电影业复苏的重要一年，出现了许多优秀的作品。",
		SQL:  `<span style="color: #569CD6;">SELECT</span> title, genre, rating<br><span style="color: #569CD6;">FROM</span> movies<br><span style="color: #569CD6;">WHERE</span> release_year = <span style="color: #B5CEA8;">2023</span>`,
		Data: json.RawMessage(`"<table border=\"1\"><tr><th>电影名称</th><th>类型</th><th>评分</th></tr><tr><td>奥本海默</td><td>传记/历史</td><td><strong>8.6</strong></td></tr><tr><td>芭比</td><td>喜剧/奇幻</td><td>7.9</td></tr></table>"`),
	},
	{
		Text: "这个数据库里暂时没有找到相关的电影。",
		Results: []QueryResult{{
			Query: "SELECT title FROM movies WHERE genre = '西部' AND release_year > 2030",
			Rows:  json.RawMessage(`[]`),
		}},
	},
}

var mockInfo = map[string]MovieInfo{
	"tt1375666": {Title: "Inception", Year: "2010", Director: "Christopher Nolan", Actors: "Leonardo DiCaprio, Joseph Gordon-Levitt, Elliot Page", Genre: "Action, Adventure, Sci-Fi", Plot: "A thief who steals corporate secrets through the use of dream-sharing technology is given the inverse task of planting an idea into the mind of a C.E.O.", Country: "United States, United Kingdom", IMDBRating: "8.8", IMDBID: "tt1375666"},
	"tt0111161": {Title: "The Shawshank Redemption", Year: "1994", Director: "Frank Darabont", Actors: "Tim Robbins, Morgan Freeman, Bob Gunton", Genre: "Drama", Plot: "Over the course of several years, two convicts form a friendship, seeking consolation and, eventually, redemption through basic compassion.", Country: "United States", IMDBRating: "9.3", IMDBID: "tt0111161"},
	"tt0816692": {Title: "Interstellar", Year: "2014", Director: "Christopher Nolan", Actors: "Matthew McConaughey, Anne Hathaway, Jessica Chastain", Genre: "Adventure, Drama, Sci-Fi", Plot: "When Earth becomes uninhabitable in the future, a farmer and ex-NASA pilot is tasked to pilot a spacecraft to find a new planet for humans.", Country: "United States, United Kingdom, Canada", IMDBRating: "8.7", IMDBID: "tt0816692"},
}

func (m *Mock) intN(n int) int {
	if n <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rand.IntN(n)
}

func (m *Mock) pick() Answer {
	base := mockAnswers[m.intN(len(mockAnswers))]
	base.Text = mockPrefixes[m.intN(len(mockPrefixes))] + "\n\n" + base.Text
	return base.answer()
}

func (m *Mock) delay() time.Duration {
	d := m.Latency
	if m.Jitter > 0 {
		d += time.Duration(m.intN(int(m.Jitter)))
	}
	return d
}

// Chat returns a canned answer after a simulated delay
func (m *Mock) Chat(ctx context.Context, message string) (Answer, error) {
	if strings.TrimSpace(message) == "" {
		return Answer{}, ErrEmptyMessage
	}
	if err := m.clock.Sleep(ctx, m.delay()); err != nil {
		return Answer{}, &TransportError{Op: "chat", Err: err}
	}
	return m.pick(), nil
}

// ChatStream emits a canned answer a few characters at a time
func (m *Mock) ChatStream(ctx context.Context, message string, callbacks StreamCallbacks) {
	complete := callbacks.OnComplete
	if complete == nil {
		complete = func(Answer) {}
	}
	if strings.TrimSpace(message) == "" {
		complete(Answer{Err: ErrEmptyMessage})
		return
	}

	answer := m.pick()
	for _, token := range splitTokens(answer.Text, 4) {
		if err := m.clock.Sleep(ctx, m.TokenDelay); err != nil {
			complete(Answer{Err: &TransportError{Op: "chat stream", Err: err}})
			return
		}
		if callbacks.OnToken != nil {
			callbacks.OnToken(token)
		}
	}
	complete(answer)
}

// Clear always succeeds
func (m *Mock) Clear(ctx context.Context) error {
	return m.clock.Sleep(ctx, 200*time.Millisecond)
}

// History is always empty
func (m *Mock) History(ctx context.Context) ([]HistoryItem, error) {
	return nil, nil
}

// Health always succeeds
func (m *Mock) Health(ctx context.Context) error {
	return nil
}

// MovieInfo returns a known record or a placeholder
func (m *Mock) MovieInfo(ctx context.Context, id string) (MovieInfo, error) {
	if err := m.clock.Sleep(ctx, 500*time.Millisecond); err != nil {
		return MovieInfo{}, err
	}
	if info, ok := mockInfo[id]; ok {
		return info, nil
	}
	return MovieInfo{
		Title:    "示例电影",
		Year:     "2023",
		Director: "示例导演",
		Plot:     "这是一个示例电影的简介...",
		IMDBID:   id,
	}, nil
}

// splitTokens cuts text into pieces of at most n runes
func splitTokens(text string, n int) []string {
	var tokens []string
	for len(text) > 0 {
		end := 0
		for i := 0; i < n && end < len(text); i++ {
			_, size := utf8.DecodeRuneInString(text[end:])
			end += size
		}
		tokens = append(tokens, text[:end])
		text = text[end:]
	}
	return tokens
}
