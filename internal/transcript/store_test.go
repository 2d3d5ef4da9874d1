package transcript

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviegpt/internal/backend"
	"moviegpt/internal/clock"
)

func TestStoreAppendKeepsOrder(t *testing.T) {
	fake := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	s := NewStore(fake)

	id1 := s.Append(RoleUser, "评分最高的10部电影", nil)
	fake.Advance(time.Second)
	id2 := s.Append(RoleAssistant, "ok", []backend.QueryResult{{Query: "SELECT 1"}})

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, id1, all[0].ID)
	assert.Equal(t, id2, all[1].ID)
	assert.Equal(t, RoleUser, all[0].Role)
	assert.Equal(t, "评分最高的10部电影", all[0].Text)
	assert.Empty(t, all[0].Results)
	assert.Len(t, all[1].Results, 1)
	assert.True(t, all[1].CreatedAt.After(all[0].CreatedAt))
	assert.Equal(t, 2, s.Len())

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, id2, last.ID)
}

func TestStoreIDsAreUnique(t *testing.T) {
	s := NewStore(nil)
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := s.Append(RoleUser, "x", nil)
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestStoreTimestampsNeverGoBackwards(t *testing.T) {
	s := NewStore(nil)
	now := time.Now()
	s.AppendAt(RoleUser, "a", nil, now)
	s.AppendAt(RoleAssistant, "b", nil, now.Add(-time.Hour))

	all := s.All()
	assert.False(t, all[1].CreatedAt.Before(all[0].CreatedAt))
}

func TestStoreEntriesAreNotShared(t *testing.T) {
	s := NewStore(nil)
	results := []backend.QueryResult{{Query: "SELECT 1", Rows: json.RawMessage(`[]`)}}
	id := s.Append(RoleAssistant, "ok", results)

	results[0].Query = "mutated"
	all := s.All()
	all[0].Text = "mutated"

	e, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, "ok", e.Text)
	assert.Equal(t, "SELECT 1", e.Results[0].Query)
}

func TestStoreClear(t *testing.T) {
	s := NewStore(nil)
	old := s.Append(RoleUser, "a", nil)
	session := s.Session()

	s.Clear()
	assert.Empty(t, s.All())
	assert.Zero(t, s.Len())
	assert.NotEqual(t, session, s.Session())
	_, ok := s.Get(old)
	assert.False(t, ok)
	_, ok = s.Last()
	assert.False(t, ok)

	fresh := s.Append(RoleUser, "b", nil)
	all := s.All()
	require.Len(t, all, 1)
	assert.Equal(t, fresh, all[0].ID)
}

func TestStoreConcurrentReaders(t *testing.T) {
	s := NewStore(nil)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.All()
				_ = s.Len()
			}
		}()
	}
	for j := 0; j < 100; j++ {
		s.Append(RoleUser, "x", nil)
		if j%25 == 0 {
			s.Clear()
		}
	}
	wg.Wait()
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole("assistant")
	require.True(t, ok)
	assert.Equal(t, RoleAssistant, r)

	_, ok = ParseRole("system")
	assert.False(t, ok)
}
