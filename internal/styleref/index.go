package styleref

import (
	"math"
	"sort"
	"sync"

	"github.com/heishia/thread-auto/pkg/logging"
)

// Index ranks references by cosine similarity with a full scan. The corpus
// is a personal style library, small enough that linear scan beats
// maintaining an ANN structure.
type Index struct {
	mu     sync.RWMutex
	refs   []Reference
	logger logging.Logger
}

func NewIndex(logger logging.Logger) *Index {
	return &Index{logger: logger}
}

// Add appends a reference. Insertion order is the tie-break for equal
// similarity scores.
func (idx *Index) Add(ref Reference) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.refs = append(idx.refs, ref)
	indexSize.Set(float64(len(idx.refs)))
}

// Remove drops the reference with the given id. Unknown ids are a no-op.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i, ref := range idx.refs {
		if ref.ID == id {
			idx.refs = append(idx.refs[:i], idx.refs[i+1:]...)
			indexSize.Set(float64(len(idx.refs)))
			return
		}
	}
}

// Clear drops every reference.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.refs = nil
	indexSize.Set(0)
}

// Len returns the number of indexed references.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.refs)
}

// FindSimilar returns the k references most similar to the query vector,
// highest first. Fewer than k results means the corpus is smaller than k.
func (idx *Index) FindSimilar(query []float32, k int) []Match {
	if k <= 0 {
		return nil
	}
	similarityQueries.Inc()

	idx.mu.RLock()
	matches := make([]Match, 0, len(idx.refs))
	for _, ref := range idx.refs {
		matches = append(matches, Match{
			Reference:  ref,
			Similarity: idx.similarity(query, ref),
		})
	}
	idx.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func (idx *Index) similarity(query []float32, ref Reference) float64 {
	if len(query) != len(ref.Embedding) {
		if idx.logger != nil {
			idx.logger.WithFields(logging.Fields{
				"reference_id": ref.ID,
				"query_dims":   len(query),
				"ref_dims":     len(ref.Embedding),
			}).Debug("Embedding dimension mismatch, scoring as 0")
		}
		return 0
	}
	return cosineSimilarity(query, ref.Embedding)
}

// cosineSimilarity returns 0 when either vector has zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
