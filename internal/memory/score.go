package memory

import (
	"crypto/sha256"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// ContentHash returns a stable short hash of text, used for chunk identity
// and embedding-cache keys.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", sum[:16])
}

// NewID returns a time-ordered unique id for transcripts and chunks.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// distanceToScore maps a cosine distance in [0, 2] to a similarity score
// clamped to [0, 1]. Distances above 1 (anti-correlated vectors) score 0.
func distanceToScore(distance float64) float64 {
	return math.Max(0, 1-distance)
}

// bm25RankToScore maps an FTS5 BM25 rank (more negative is better) to (0, 1].
// Non-finite ranks are treated as very poor matches rather than dropped.
func bm25RankToScore(rank float64) float64 {
	if math.IsNaN(rank) || math.IsInf(rank, 0) {
		rank = 999
	}
	return 1 / (1 + math.Abs(rank))
}

// Snippet shortens content to at most maxLen characters, preferring a word
// boundary in the final 30% and appending an ellipsis when truncated.
func Snippet(content string, maxLen int) string {
	content = strings.Join(strings.Fields(content), " ")
	if len(content) <= maxLen {
		return content
	}

	cut := content[:maxLen]
	if idx := strings.LastIndex(cut, " "); idx > maxLen*7/10 {
		cut = cut[:idx]
	}
	return cut + "..."
}
