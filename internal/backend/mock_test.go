package backend

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviegpt/internal/clock"
)

func TestMockStreamsThenCompletes(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	m := NewMock(fake, 7)

	var tokens []string
	var completes []Answer
	m.ChatStream(context.Background(), "推荐几部电影", StreamCallbacks{
		OnToken:    func(s string) { tokens = append(tokens, s) },
		OnComplete: func(a Answer) { completes = append(completes, a) },
	})

	require.Len(t, completes, 1)
	require.NotEmpty(t, tokens)
	assert.Equal(t, completes[0].Text, strings.Join(tokens, ""))
	assert.NotEmpty(t, completes[0].Results)
	assert.Len(t, fake.Slept(), len(tokens))
}

func TestMockChatIsRepeatable(t *testing.T) {
	a1, err := NewMock(clock.NewFake(time.Unix(0, 0)), 42).Chat(context.Background(), "q")
	require.NoError(t, err)
	a2, err := NewMock(clock.NewFake(time.Unix(0, 0)), 42).Chat(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)

	_, err = NewMock(nil, 1).Chat(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestMockHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMock(clock.NewFake(time.Unix(0, 0)), 1)

	_, err := m.Chat(ctx, "q")
	assert.ErrorIs(t, err, context.Canceled)

	var completes []Answer
	m.ChatStream(ctx, "q", StreamCallbacks{OnComplete: func(a Answer) { completes = append(completes, a) }})
	require.Len(t, completes, 1)
	assert.ErrorIs(t, completes[0].Err, context.Canceled)
}

func TestMockAnswersCarryLinkableRows(t *testing.T) {
	for _, p := range mockAnswers {
		a := p.answer()
		require.NotEmpty(t, a.Results, a.Text)
	}
}

func TestMockMovieInfo(t *testing.T) {
	m := NewMock(clock.NewFake(time.Unix(0, 0)), 1)

	info, err := m.MovieInfo(context.Background(), "tt1375666")
	require.NoError(t, err)
	assert.Equal(t, "Inception", info.Title)

	info, err = m.MovieInfo(context.Background(), "tt9999999")
	require.NoError(t, err)
	assert.Equal(t, "tt9999999", info.IMDBID)
}

func TestSplitTokens(t *testing.T) {
	assert.Equal(t, []string{"肖申克的", "救赎"}, splitTokens("肖申克的救赎", 4))
	assert.Equal(t, []string{"ab"}, splitTokens("ab", 4))
	assert.Empty(t, splitTokens("", 4))
}

var _ Backend = (*Mock)(nil)
var _ Backend = (*Client)(nil)
