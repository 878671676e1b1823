// Package retrieval ranks scope-filtered conversation records against a
// query vector. Vector backends return distance-ordered candidates; this
// package applies the threshold, result cap, and tie-break policy.
package retrieval

import (
	"math"
	"sort"

	"github.com/yanthraa/chat-memory/internal/model"
)

const (
	// DefaultTopK caps how many historical summaries surface per query.
	DefaultTopK = 5
	// DefaultThreshold is the minimum cosine similarity for a match.
	DefaultThreshold = 0.7
)

// Match pairs a conversation record with its similarity score,
// score = 1 - cosine distance to the query vector.
type Match struct {
	Record model.ConversationRecord
	Score  float64
}

// Candidate is a record with its stored embedding, for local scoring paths
// where the backend does not compute distances itself.
type Candidate struct {
	Record model.ConversationRecord
	Vector []float32
}

// Rank filters matches below threshold, orders the rest by score descending
// with most-recent CreatedAt breaking ties, and truncates to k. Fewer than k
// results is valid; an empty result means no relevant history, not an error.
func Rank(matches []Match, k int, threshold float64) []Match {
	if k <= 0 {
		k = DefaultTopK
	}

	kept := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.Score >= threshold {
			kept = append(kept, m)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].Record.CreatedAt.After(kept[j].Record.CreatedAt)
	})

	if len(kept) > k {
		kept = kept[:k]
	}
	return kept
}

// ScoreCandidates computes similarity scores for candidates against the
// query vector. Candidates with a missing or dimension-mismatched embedding
// are excluded rather than failing the query.
func ScoreCandidates(query []float32, candidates []Candidate) []Match {
	var matches []Match
	for _, c := range candidates {
		score, ok := CosineSimilarity(query, c.Vector)
		if !ok {
			continue
		}
		matches = append(matches, Match{Record: c.Record, Score: score})
	}
	return matches
}

// CosineSimilarity returns the cosine similarity of two vectors. The second
// return is false when the vectors cannot be compared: empty, mismatched
// dimensionality, or zero magnitude.
func CosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
