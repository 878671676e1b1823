package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanthraa/chat-memory/internal/model"
)

func match(chatID string, score float64, createdAt time.Time) Match {
	return Match{
		Record: model.ConversationRecord{ChatID: chatID, CreatedAt: createdAt},
		Score:  score,
	}
}

func chatIDs(matches []Match) []string {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.Record.ChatID
	}
	return ids
}

func TestRank_ThresholdAndCap(t *testing.T) {
	now := time.Now()
	in := []Match{
		match("a", 0.95, now),
		match("b", 0.72, now),
		match("c", 0.65, now),
		match("d", 0.40, now),
	}

	out := Rank(in, 3, 0.7)
	require.Equal(t, []string{"a", "b"}, chatIDs(out))
}

func TestRank_OrdersByScoreDescending(t *testing.T) {
	now := time.Now()
	in := []Match{
		match("low", 0.71, now),
		match("high", 0.99, now),
		match("mid", 0.85, now),
	}

	out := Rank(in, 5, 0.7)
	require.Equal(t, []string{"high", "mid", "low"}, chatIDs(out))
}

func TestRank_TieBreaksOnRecency(t *testing.T) {
	now := time.Now()
	in := []Match{
		match("older", 0.8, now.Add(-time.Hour)),
		match("newer", 0.8, now),
	}

	out := Rank(in, 5, 0.7)
	require.Equal(t, []string{"newer", "older"}, chatIDs(out))
}

func TestRank_FewerThanKIsValid(t *testing.T) {
	out := Rank([]Match{match("a", 0.9, time.Now())}, 5, 0.7)
	require.Len(t, out, 1)

	out = Rank(nil, 5, 0.7)
	require.Empty(t, out)
}

func TestRank_DefaultsKWhenUnset(t *testing.T) {
	now := time.Now()
	var in []Match
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		in = append(in, match(id, 0.9, now))
	}

	out := Rank(in, 0, 0.7)
	require.Len(t, out, DefaultTopK)
}

func TestScoreCandidates_ExcludesUnusableVectors(t *testing.T) {
	query := []float32{1, 0, 0}
	candidates := []Candidate{
		{Record: model.ConversationRecord{ChatID: "same"}, Vector: []float32{1, 0, 0}},
		{Record: model.ConversationRecord{ChatID: "short"}, Vector: []float32{1, 0}},
		{Record: model.ConversationRecord{ChatID: "zero"}, Vector: []float32{0, 0, 0}},
		{Record: model.ConversationRecord{ChatID: "missing"}},
	}

	matches := ScoreCandidates(query, candidates)
	require.Equal(t, []string{"same"}, chatIDs(matches))
	require.InDelta(t, 1.0, matches[0].Score, 1e-9)
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("orthogonal vectors score zero", func(t *testing.T) {
		score, ok := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
		require.True(t, ok)
		require.InDelta(t, 0, score, 1e-9)
	})

	t.Run("opposite vectors score negative one", func(t *testing.T) {
		score, ok := CosineSimilarity([]float32{1, 2}, []float32{-1, -2})
		require.True(t, ok)
		require.InDelta(t, -1, score, 1e-9)
	})

	t.Run("empty vectors are not comparable", func(t *testing.T) {
		_, ok := CosineSimilarity(nil, nil)
		require.False(t, ok)
	})
}
